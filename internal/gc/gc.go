// Package gc removes media files that session documents no longer
// reference.
//
// Reference counting is implicit: the set of files a document keeps alive is
// recomputed from its text on every mutation, and a file is deleted only when
// it was referenced before the mutation and is not referenced after it.
package gc

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/growthlab/internal/parser"
	"github.com/starford/growthlab/internal/storage"
)

// Forgetter drops hash-index rows for a deleted file.
type Forgetter interface {
	Forget(ctx context.Context, dir, filename string) error
}

// Collector deletes orphaned media files.
type Collector struct {
	store  storage.Provider
	index  Forgetter
	logger *slog.Logger
	onDel  func(path string)
}

// Option configures a Collector.
type Option func(*Collector)

// WithIndex makes the collector drop hash-index rows of files it deletes.
func WithIndex(idx Forgetter) Option {
	return func(c *Collector) { c.index = idx }
}

// WithDeleteHook registers a callback run after each successful deletion.
func WithDeleteHook(fn func(path string)) Option {
	return func(c *Collector) { c.onDel = fn }
}

// New creates a Collector over the content root.
func New(store storage.Provider, logger *slog.Logger, opts ...Option) *Collector {
	c := &Collector{store: store, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reconcile deletes every media file of sessionID referenced by oldText but
// not by newText and returns how many files it actually removed.
//
// For a card deletion oldText is the deleted card and newText the remaining
// document, so images still used by a surviving card are kept.
func (c *Collector) Reconcile(ctx context.Context, oldText, newText, sessionID string) int {
	toDelete := parser.Difference(
		parser.MediaRefs(oldText, sessionID),
		parser.MediaRefs(newText, sessionID),
	)
	deleted := 0
	for _, p := range parser.Sorted(toDelete) {
		if sid, ok := parser.SessionOf(p); !ok || sid != sessionID || !Confined(p) {
			c.logger.Warn("gc: skipping path outside session media",
				slog.String("session", sessionID), slog.String("path", p))
			continue
		}
		if c.remove(ctx, p) {
			deleted++
		}
	}
	if deleted > 0 {
		c.logger.Info("gc: reconciled",
			slog.String("session", sessionID),
			slog.Int("deleted", deleted))
	}
	return deleted
}

// DiscardUpload deletes path if it is a canonical media file under the
// media root. It does not check references: callers pass files uploaded
// during an edit that never made it into a saved document.
func (c *Collector) DiscardUpload(ctx context.Context, p string) bool {
	if !Confined(p) {
		c.logger.Warn("gc: refusing to discard path outside media root", slog.String("path", p))
		return false
	}
	return c.remove(ctx, p)
}

// DiscardUploads applies DiscardUpload to each path and returns the number
// of files removed.
func (c *Collector) DiscardUploads(ctx context.Context, paths []string) int {
	n := 0
	for _, p := range paths {
		if c.DiscardUpload(ctx, p) {
			n++
		}
	}
	return n
}

// PruneUnreferenced discards the candidates that finalText does not embed.
// Each candidate is checked against references for its own session.
func (c *Collector) PruneUnreferenced(ctx context.Context, candidates []string, finalText string) int {
	n := 0
	for _, p := range candidates {
		if parser.References(finalText, p) {
			continue
		}
		if c.DiscardUpload(ctx, p) {
			n++
		}
	}
	return n
}

// Confined reports whether p is a clean relative path under the media root
// that ends in the canonical extension.
func Confined(p string) bool {
	if p == "" || strings.ContainsRune(p, 0) || strings.Contains(p, "\\") {
		return false
	}
	if path.IsAbs(p) || path.Clean(p) != p {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return false
		}
	}
	return strings.HasPrefix(p, parser.MediaRoot+"/") && strings.HasSuffix(p, parser.MediaExt)
}

// remove deletes one file. A file that is already gone is not an error but
// does not count as a deletion; any other failure is logged and swallowed.
func (c *Collector) remove(ctx context.Context, p string) bool {
	if err := c.store.Delete(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("gc: already absent", slog.String("path", p))
		} else {
			c.logger.Warn("gc: could not delete", slog.String("path", p), slog.String("error", err.Error()))
		}
		return false
	}
	c.logger.Info("gc: deleted unused image", slog.String("path", p))

	if c.index != nil {
		dir, name := path.Split(p)
		if err := c.index.Forget(ctx, path.Clean(dir), name); err != nil {
			c.logger.Warn("gc: forget hash failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
	if c.onDel != nil {
		c.onDel(p)
	}
	return true
}
