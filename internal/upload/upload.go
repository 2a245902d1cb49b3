// Package upload turns an uploaded image into a canonical media file.
//
// Each request runs Validate, then CheckDuplicate. A hit reuses the stored
// file and writes nothing. A miss runs Convert, VerifyOutput and RegisterHash
// before responding with the canonical path.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/starford/growthlab/internal/apperr"
	"github.com/starford/growthlab/internal/checksum"
	"github.com/starford/growthlab/internal/convert"
	"github.com/starford/growthlab/internal/index"
	"github.com/starford/growthlab/internal/models"
	"github.com/starford/growthlab/internal/parser"
	"github.com/starford/growthlab/internal/session"
	"github.com/starford/growthlab/internal/storage"
)

const (
	// DefaultSession receives uploads that name no session.
	DefaultSession = "session-01"
	// DefaultMaxBytes is the upload size ceiling when none is configured.
	DefaultMaxBytes int64 = 20 << 20

	nameLayout = "20060102_150405"
	sniffLen   = 512
)

// DefaultExtensions lists the source formats accepted when none are configured.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tiff", ".webp"}

// Converter produces the canonical rendition of src at dst.
type Converter interface {
	Convert(ctx context.Context, src, dst string, kind convert.Kind) error
}

// Config holds the validation limits.
type Config struct {
	MaxBytes          int64
	AllowedExtensions []string
	DefaultSession    string
}

// Request is one uploaded file.
type Request struct {
	SessionID string
	Filename  string
	Data      []byte
}

// Service runs the upload pipeline.
type Service struct {
	store    storage.Provider
	index    index.HashIndex
	conv     Converter
	cfg      Config
	logger   *slog.Logger
	stageDir string
	now      func() time.Time
	group    singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used to name output files.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithStageDir sets where payloads are staged before conversion.
func WithStageDir(dir string) Option {
	return func(s *Service) { s.stageDir = dir }
}

// New creates an upload service. idx may be nil, which disables deduplication.
func New(store storage.Provider, idx index.HashIndex, conv Converter, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = DefaultExtensions
	}
	if cfg.DefaultSession == "" {
		cfg.DefaultSession = DefaultSession
	}
	s := &Service{
		store:    store,
		index:    idx,
		conv:     conv,
		cfg:      cfg,
		logger:   logger,
		stageDir: os.TempDir(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxBytes returns the configured size ceiling.
func (s *Service) MaxBytes() int64 { return s.cfg.MaxBytes }

// Validate checks req and returns the sanitized session id and the
// lower-cased source extension.
func (s *Service) Validate(req Request) (string, string, error) {
	if int64(len(req.Data)) > s.cfg.MaxBytes {
		return "", "", fmt.Errorf("upload: %w: %d bytes exceeds limit of %d", apperr.ErrTooLarge, len(req.Data), s.cfg.MaxBytes)
	}
	if len(req.Data) == 0 {
		return "", "", fmt.Errorf("upload: %w", apperr.ErrEmptyFile)
	}

	ext := strings.ToLower(filepath.Ext(req.Filename))
	allowed := make([]interface{}, len(s.cfg.AllowedExtensions))
	for i, e := range s.cfg.AllowedExtensions {
		allowed[i] = strings.ToLower(e)
	}
	if err := validation.Validate(ext, validation.Required, validation.In(allowed...)); err != nil {
		return "", "", fmt.Errorf("upload: %w: %q", apperr.ErrUnsupportedType, ext)
	}

	raw := strings.TrimSpace(req.SessionID)
	if raw == "" {
		raw = s.cfg.DefaultSession
	}
	sid, err := session.Sanitize(raw)
	if err != nil {
		return "", "", fmt.Errorf("upload: %w", err)
	}
	return sid, ext, nil
}

// Upload stores req as a canonical media file and returns its path. Identical
// content already present in the session's media directory is reused.
func (s *Service) Upload(ctx context.Context, req Request) (models.UploadResult, error) {
	sid, ext, err := s.Validate(req)
	if err != nil {
		return models.UploadResult{}, err
	}
	dir := session.MediaDir(parser.MediaRoot, sid)
	hash := checksum.Sum(req.Data)

	v, err, _ := s.group.Do(dir+"|"+hash, func() (interface{}, error) {
		return s.process(ctx, dir, hash, ext, req.Data)
	})
	if err != nil {
		return models.UploadResult{}, err
	}
	return v.(models.UploadResult), nil
}

func (s *Service) process(ctx context.Context, dir, hash, ext string, data []byte) (models.UploadResult, error) {
	if s.index != nil {
		if name, ok := index.FindDuplicate(ctx, s.index, s.store, dir, hash, s.logger); ok {
			p := path.Join(dir, name)
			s.logger.Info("upload: duplicate reused", slog.String("path", p))
			return models.UploadResult{Path: p, Duplicate: true}, nil
		}
	}

	src, err := s.stage(ext, data)
	if err != nil {
		return models.UploadResult{}, err
	}
	defer os.Remove(src)

	name, dst, err := s.reserve(dir)
	if err != nil {
		return models.UploadResult{}, err
	}
	rel := path.Join(dir, name)

	kind := convert.DetectKind(ext, data[:min(len(data), sniffLen)])
	if err := s.conv.Convert(ctx, src, dst, kind); err != nil {
		_ = os.Remove(dst)
		return models.UploadResult{}, fmt.Errorf("upload: %w", err)
	}
	if err := s.verify(rel); err != nil {
		_ = os.Remove(dst)
		return models.UploadResult{}, err
	}

	hashes := []string{hash}
	if out, err := checksum.SumFile(dst); err != nil {
		s.logger.Warn("upload: hash output failed", slog.String("path", rel), slog.String("error", err.Error()))
	} else {
		hashes = append(hashes, out)
	}
	if s.index != nil {
		if err := s.index.Register(ctx, dir, name, hashes...); err != nil {
			s.logger.Warn("upload: register hash failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
	}

	s.logger.Info("upload: stored",
		slog.String("path", rel),
		slog.String("kind", kind.String()),
		slog.Int("bytes", len(data)))
	return models.UploadResult{Path: rel}, nil
}

// stage writes data to a uniquely named file for the converters to read.
func (s *Service) stage(ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.stageDir, 0o755); err != nil {
		return "", fmt.Errorf("upload: stage dir: %w", err)
	}
	p := filepath.Join(s.stageDir, "upload-"+uuid.NewString()+ext)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("upload: stage: %w", err)
	}
	return p, nil
}

// reserve claims a free YYYYMMDD_HHMMSS.webp name in dir, appending _N on
// collision. The claim is an empty placeholder created exclusively, which the
// converter overwrites.
func (s *Service) reserve(dir string) (string, string, error) {
	absDir, err := s.store.Abs(dir)
	if err != nil {
		return "", "", fmt.Errorf("upload: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", "", fmt.Errorf("upload: mkdir: %w", err)
	}
	stamp := s.now().Format(nameLayout)
	for n := 0; ; n++ {
		name := stamp + parser.MediaExt
		if n > 0 {
			name = fmt.Sprintf("%s_%d%s", stamp, n, parser.MediaExt)
		}
		dst := filepath.Join(absDir, name)
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_ = f.Close()
			return name, dst, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("upload: reserve %s: %w", name, err)
		}
	}
}

// verify confirms the converted file exists and is not empty.
func (s *Service) verify(rel string) error {
	info, err := s.store.Stat(rel)
	if err != nil || info.Size == 0 {
		return fmt.Errorf("upload: %w: %s", apperr.ErrOutputMissing, rel)
	}
	return nil
}
