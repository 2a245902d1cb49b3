package index

import (
	"context"
	"log/slog"
	"path"

	"github.com/starford/growthlab/internal/checksum"
	"github.com/starford/growthlab/internal/storage"
)

// SyncReport summarises a Sync pass.
type SyncReport struct {
	Removed int
	Indexed int
}

// Sync brings the index in line with the media directory:
//   - rows whose file no longer exists are removed
//   - media files with no row are hashed and registered by content
func Sync(ctx context.Context, db HashIndex, store storage.Provider, mediaRoot, ext string, logger *slog.Logger) (SyncReport, error) {
	var rep SyncReport

	entries, err := db.Entries(ctx)
	if err != nil {
		return rep, err
	}
	files, err := store.List(mediaRoot, ext)
	if err != nil {
		return rep, err
	}

	disk := make(map[string]struct{}, len(files))
	for _, f := range files {
		disk[f.Path] = struct{}{}
	}

	known := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		p := path.Join(e.Dir, e.Filename)
		if _, ok := disk[p]; ok {
			known[p] = struct{}{}
			continue
		}
		if _, done := known[p]; done {
			continue
		}
		if err := db.Forget(ctx, e.Dir, e.Filename); err != nil {
			logger.Warn("sync: forget failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		known[p] = struct{}{}
		rep.Removed++
		logger.Debug("sync: removed stale", slog.String("path", p))
	}

	for _, f := range files {
		if _, ok := known[f.Path]; ok {
			continue
		}
		data, err := store.Read(f.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		dir, name := path.Split(f.Path)
		if err := db.Register(ctx, path.Clean(dir), name, checksum.Sum(data)); err != nil {
			logger.Warn("sync: register failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		rep.Indexed++
		logger.Debug("sync: indexed", slog.String("path", f.Path))
	}

	return rep, nil
}
