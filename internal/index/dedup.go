package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path"

	"github.com/starford/growthlab/internal/storage"
)

// FindDuplicate reports whether content with hash is already stored in dir.
// A recorded file that has since vanished from disk is dropped from the
// index and reported as a miss.
func FindDuplicate(ctx context.Context, idx HashIndex, store storage.Provider, dir, hash string, logger *slog.Logger) (string, bool) {
	name, ok, err := idx.Lookup(ctx, dir, hash)
	if err != nil {
		logger.Warn("index: lookup failed", slog.String("dir", dir), slog.String("error", err.Error()))
		return "", false
	}
	if !ok {
		return "", false
	}
	if _, err := store.Stat(path.Join(dir, name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("index: dropping stale entry", slog.String("dir", dir), slog.String("file", name))
			if fErr := idx.Forget(ctx, dir, name); fErr != nil {
				logger.Warn("index: forget stale failed", slog.String("file", name), slog.String("error", fErr.Error()))
			}
		}
		return "", false
	}
	return name, true
}
