package gc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/growthlab/internal/apperr"
	"github.com/starford/growthlab/internal/parser"
	"github.com/starford/growthlab/internal/session"
)

// Documents lists and reads session documents.
type Documents interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, name string) (string, []string, error)
}

// SweepReport summarises a Sweep pass.
type SweepReport struct {
	Session    string `json:"session"`
	Scanned    int    `json:"scanned"`
	Referenced int    `json:"referenced"`
	Young      int    `json:"young"`
	Deleted    int    `json:"deleted"`
}

// Sweep deletes media files of sessionID that no session document
// references. Files modified less than minAge ago are kept so uploads that
// are not yet saved into a card survive. Any document read failure other
// than a vanished file aborts the sweep before anything is deleted.
func (c *Collector) Sweep(ctx context.Context, docs Documents, sessionID string, minAge time.Duration) (SweepReport, error) {
	sid, err := session.Sanitize(sessionID)
	if err != nil {
		return SweepReport{}, err
	}
	rep := SweepReport{Session: sid}

	names, err := docs.List(ctx)
	if err != nil {
		return rep, fmt.Errorf("gc: sweep %s: %w", sid, err)
	}
	live := make(map[string]struct{})
	for _, name := range names {
		text, _, err := docs.Read(ctx, name)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return rep, fmt.Errorf("gc: sweep %s: read %s: %w", sid, name, err)
		}
		for p := range parser.MediaRefs(text, sid) {
			live[p] = struct{}{}
		}
	}

	files, err := c.store.List(session.MediaDir(parser.MediaRoot, sid), parser.MediaExt)
	if err != nil {
		return rep, fmt.Errorf("gc: sweep %s: %w", sid, err)
	}
	cutoff := time.Now().Add(-minAge)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		// Only media/<sid>/<file>.webp can be referenced; anything else was
		// not put there by an upload.
		if !parser.IsCanonical(f.Path) {
			continue
		}
		rep.Scanned++
		if _, ok := live[f.Path]; ok {
			rep.Referenced++
			continue
		}
		if minAge > 0 && f.ModTime.After(cutoff) {
			rep.Young++
			continue
		}
		if c.remove(ctx, f.Path) {
			rep.Deleted++
		}
	}

	c.logger.Info("gc: sweep finished",
		slog.String("session", sid),
		slog.Int("scanned", rep.Scanned),
		slog.Int("referenced", rep.Referenced),
		slog.Int("young", rep.Young),
		slog.Int("deleted", rep.Deleted))
	return rep, nil
}
