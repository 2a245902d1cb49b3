// Package convert normalises uploaded images into the canonical media format
// by delegating to external converters, tried in a fixed order until one
// succeeds.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/starford/growthlab/internal/apperr"
	"github.com/starford/growthlab/internal/storage"
)

// Kind is the declared kind of a source image.
type Kind int

const (
	KindStill Kind = iota
	KindAnimated
)

func (k Kind) String() string {
	if k == KindAnimated {
		return "animated"
	}
	return "still"
}

// DetectKind sniffs whether a source is animated from its extension and
// leading bytes. Only GIF is treated as animated.
func DetectKind(ext string, head []byte) Kind {
	if strings.EqualFold(ext, ".gif") {
		return KindAnimated
	}
	if len(head) > 0 && http.DetectContentType(head) == "image/gif" {
		return KindAnimated
	}
	return KindStill
}

// Role orders converters inside the fallback chain.
type Role int

const (
	GifSpecialist Role = iota
	GeneralPurpose
	Fallback
)

func (r Role) String() string {
	switch r {
	case GifSpecialist:
		return "gif-specialist"
	case GeneralPurpose:
		return "general-purpose"
	default:
		return "fallback"
	}
}

// Converter converts one file into the canonical format.
type Converter interface {
	Name() string
	Role() Role
	Supports(kind Kind) bool
	Convert(ctx context.Context, src, dst string, kind Kind) error
}

// Options bound and tune conversions.
type Options struct {
	Timeout         time.Duration // per attempt, still images
	AnimatedTimeout time.Duration // per attempt, animated images
	MaxWidth        int
	Quality         int
	MaxConcurrent   int64
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.AnimatedTimeout <= 0 {
		o.AnimatedTimeout = 60 * time.Second
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = 1600
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 75
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 2
	}
	return o
}

// Gateway runs the ordered fallback chain.
type Gateway struct {
	converters []Converter
	opts       Options
	sem        *semaphore.Weighted
	logger     *slog.Logger
}

// NewGateway creates a gateway over the given converters. Converters are
// ordered by Role; registration order breaks ties.
func NewGateway(converters []Converter, opts Options, logger *slog.Logger) *Gateway {
	opts = opts.withDefaults()
	ordered := append([]Converter(nil), converters...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Role() < ordered[j].Role() })
	return &Gateway{
		converters: ordered,
		opts:       opts,
		sem:        semaphore.NewWeighted(opts.MaxConcurrent),
		logger:     logger,
	}
}

// Available returns the names of the converters in chain order.
func (g *Gateway) Available() []string {
	out := make([]string, len(g.converters))
	for i, c := range g.converters {
		out[i] = c.Name()
	}
	return out
}

// Convert writes the canonical rendition of src to dst. The first converter
// that succeeds and leaves a non-empty file wins. Every attempt writes to its
// own temporary file next to dst, which is renamed onto dst only on success,
// so a file already at dst is replaced once or not at all. When every attempt
// fails dst is left untouched and the error wraps apperr.ErrConversion.
func (g *Gateway) Convert(ctx context.Context, src, dst string, kind Kind) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("convert: %w: %w", apperr.ErrConversion, err)
	}
	defer g.sem.Release(1)

	timeout := g.opts.Timeout
	if kind == KindAnimated {
		timeout = g.opts.AnimatedTimeout
	}

	var errs []error
	for _, c := range g.converters {
		if !c.Supports(kind) {
			continue
		}
		part := partPath(dst)
		err := g.attempt(ctx, c, src, part, kind, timeout)
		if err == nil {
			if err = os.Rename(part, dst); err == nil {
				g.logger.Debug("convert: succeeded",
					slog.String("converter", c.Name()),
					slog.String("kind", kind.String()))
				return nil
			}
			err = fmt.Errorf("install output: %w", err)
		}
		removeQuietly(part)
		g.logger.Warn("convert: attempt failed",
			slog.String("converter", c.Name()),
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}

	if len(errs) == 0 {
		return fmt.Errorf("convert: %w: no converter available for %s images", apperr.ErrConversion, kind)
	}
	return fmt.Errorf("convert: %w: %w", apperr.ErrConversion, errors.Join(errs...))
}

func (g *Gateway) attempt(ctx context.Context, c Converter, src, dst string, kind Kind, timeout time.Duration) error {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := c.Convert(actx, src, dst, kind)
	if errors.Is(actx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s", timeout)
	}
	if err != nil {
		return err
	}
	info, statErr := os.Stat(dst)
	if statErr != nil {
		return fmt.Errorf("reported success but produced no output: %w", statErr)
	}
	if info.Size() == 0 {
		return errors.New("reported success but produced an empty file")
	}
	return nil
}

// partPath returns a fresh temporary name beside dst. The extension is kept
// because converters pick the output format from it.
func partPath(dst string) string {
	return filepath.Join(filepath.Dir(dst), storage.TempPrefix+uuid.NewString()+filepath.Ext(dst))
}

func removeQuietly(p string) {
	_ = os.Remove(p)
}
