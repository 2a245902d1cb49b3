// Package cardservice coordinates an edit: read the document, compute the
// mutation, collect media the edit orphaned, then write.
//
// Collection runs before the write. A crash between the two leaves a
// document that may still reference a deleted image, which the editor shows
// as a broken embed.
package cardservice

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/growthlab/internal/cards"
	"github.com/starford/growthlab/internal/gc"
	"github.com/starford/growthlab/internal/models"
	"github.com/starford/growthlab/internal/session"
	"github.com/starford/growthlab/internal/sse"
	"github.com/starford/growthlab/internal/upload"
)

// Notifier receives change events. *sse.Broker implements it.
type Notifier interface {
	Publish(event sse.Event)
	PublishSessionEvent(kind, session string, data map[string]any)
}

// UpdateRequest replaces one card.
type UpdateRequest struct {
	Session        string
	CardIndex      int
	Content        string
	UploadedImages []string
}

// UpdateResult reports what an update did.
type UpdateResult struct {
	Session          string `json:"session"`
	CardIndex        int    `json:"cardIndex"`
	MediaDeleted     int    `json:"mediaDeleted"`
	UploadsDiscarded int    `json:"uploadsDiscarded"`
}

// DeleteRequest removes one card. UploadedImages lists uploads made while
// the card was open for editing; those the remaining document does not embed
// are discarded.
type DeleteRequest struct {
	Session        string
	CardIndex      int
	UploadedImages []string
}

// DeleteResult reports what a deletion did.
type DeleteResult struct {
	Session          string `json:"session"`
	CardIndex        int    `json:"cardIndex"`
	MediaDeleted     int    `json:"mediaDeleted"`
	UploadsDiscarded int    `json:"uploadsDiscarded"`
	Remaining        int    `json:"remaining"`
}

// Service is the single entry point used by the HTTP API and the MCP server.
type Service struct {
	cards   *cards.Store
	gc      *gc.Collector
	uploads *upload.Service
	notify  Notifier
	minAge  time.Duration
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier publishes change events to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notify = n }
}

// WithSweepMinAge sets the grace window used by Sweep.
func WithSweepMinAge(d time.Duration) Option {
	return func(s *Service) { s.minAge = d }
}

// New creates a card service.
func New(store *cards.Store, collector *gc.Collector, uploads *upload.Service, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{cards: store, gc: collector, uploads: uploads, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateCard replaces card req.CardIndex with req.Content. Media referenced
// only by the old text is deleted, and uploads from this edit that the saved
// text does not embed are discarded.
func (s *Service) UpdateCard(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	sid, err := session.Sanitize(req.Session)
	if err != nil {
		return UpdateResult{}, err
	}
	edit, err := s.cards.UpdateCard(ctx, sid, req.CardIndex, req.Content)
	if err != nil {
		return UpdateResult{}, err
	}

	deleted := s.gc.Reconcile(ctx, edit.OldText, edit.NewText, sid)
	if err := s.cards.Write(ctx, sid, edit.NewText); err != nil {
		return UpdateResult{}, err
	}
	discarded := s.gc.PruneUnreferenced(ctx, req.UploadedImages, edit.NewText)

	s.logger.Info("card updated",
		slog.String("session", sid),
		slog.Int("card", req.CardIndex),
		slog.Int("media_deleted", deleted),
		slog.Int("uploads_discarded", discarded))

	res := UpdateResult{Session: sid, CardIndex: req.CardIndex, MediaDeleted: deleted, UploadsDiscarded: discarded}
	s.publishSession(sse.CardUpdated, sid, map[string]any{"cardIndex": req.CardIndex})
	return res, nil
}

// DeleteCard removes card req.CardIndex. Media still referenced by any
// surviving card is kept.
func (s *Service) DeleteCard(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	sid, err := session.Sanitize(req.Session)
	if err != nil {
		return DeleteResult{}, err
	}
	del, err := s.cards.DeleteCard(ctx, sid, req.CardIndex)
	if err != nil {
		return DeleteResult{}, err
	}

	deleted := s.gc.Reconcile(ctx, del.DeletedCard, del.NewText, sid)
	if err := s.cards.Write(ctx, sid, del.NewText); err != nil {
		return DeleteResult{}, err
	}
	discarded := s.gc.PruneUnreferenced(ctx, req.UploadedImages, del.NewText)

	s.logger.Info("card deleted",
		slog.String("session", sid),
		slog.Int("card", req.CardIndex),
		slog.Int("media_deleted", deleted),
		slog.Int("uploads_discarded", discarded))

	res := DeleteResult{
		Session:          sid,
		CardIndex:        req.CardIndex,
		MediaDeleted:     deleted,
		UploadsDiscarded: discarded,
		Remaining:        len(cards.Split(del.NewText)),
	}
	s.publishSession(sse.CardDeleted, sid, map[string]any{"cardIndex": req.CardIndex})
	return res, nil
}

// GetSession returns the cards of one session.
func (s *Service) GetSession(ctx context.Context, name string) (*models.Session, error) {
	return s.cards.Session(ctx, name)
}

// ListSessions returns the names of all session documents.
func (s *Service) ListSessions(ctx context.Context) ([]string, error) {
	names, err := s.cards.List(ctx)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(names), nil
}

// Upload stores an image and announces new files.
func (s *Service) Upload(ctx context.Context, req upload.Request) (models.UploadResult, error) {
	res, err := s.uploads.Upload(ctx, req)
	if err != nil {
		return res, err
	}
	if !res.Duplicate && s.notify != nil {
		s.notify.Publish(sse.Event{Type: sse.MediaUploaded, Data: map[string]string{"path": res.Path}})
	}
	return res, nil
}

// Cleanup discards uploads that an abandoned edit never saved.
func (s *Service) Cleanup(ctx context.Context, paths []string) int {
	n := s.gc.DiscardUploads(ctx, paths)
	if n > 0 {
		s.logger.Info("uploads discarded", slog.Int("count", n))
	}
	return n
}

// Sweep deletes media of one session that no document references.
func (s *Service) Sweep(ctx context.Context, name string) (gc.SweepReport, error) {
	return s.gc.Sweep(ctx, s.cards, name, s.minAge)
}

// MaxUploadBytes returns the upload size ceiling.
func (s *Service) MaxUploadBytes() int64 {
	return s.uploads.MaxBytes()
}

func (s *Service) publishSession(kind, sid string, data map[string]any) {
	if s.notify != nil {
		s.notify.PublishSessionEvent(kind, sid, data)
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
