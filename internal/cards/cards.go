// Package cards owns session documents: a UTF-8 file split into an ordered
// list of cards separated by "\n---\n".
//
// Card identity is positional. Deleting card i shifts every later card down
// by one, so callers holding indices must re-read after a deletion.
//
// The store keeps no state between calls and takes no locks. Two concurrent
// read-mutate-write sequences on the same session race and the later Write
// wins, discarding the earlier change.
package cards

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/starford/growthlab/internal/apperr"
	"github.com/starford/growthlab/internal/models"
	"github.com/starford/growthlab/internal/session"
	"github.com/starford/growthlab/internal/storage"
)

// Separator delimits cards inside a session document. It is not escaped:
// card text must not contain it.
const Separator = "\n---\n"

// Split breaks a document into cards.
func Split(text string) []string {
	return strings.Split(text, Separator)
}

// Join rebuilds a document from cards.
func Join(cards []string) string {
	return strings.Join(cards, Separator)
}

// Edit is the before/after text of a card replacement.
type Edit struct {
	OldText string
	NewText string
}

// Deletion is the outcome of removing one card.
type Deletion struct {
	DeletedCard string
	OldText     string
	NewText     string
}

// Store reads and writes session documents under sessionsDir.
type Store struct {
	store       storage.Provider
	sessionsDir string
}

// NewStore creates a card store over the given provider.
func NewStore(store storage.Provider, sessionsDir string) *Store {
	return &Store{store: store, sessionsDir: sessionsDir}
}

func (s *Store) docPath(name string) (string, error) {
	clean, err := session.Sanitize(name)
	if err != nil {
		return "", err
	}
	return session.DocumentPath(s.sessionsDir, clean), nil
}

// Read returns the full text of a session and its cards.
func (s *Store) Read(_ context.Context, name string) (string, []string, error) {
	p, err := s.docPath(name)
	if err != nil {
		return "", nil, err
	}
	data, err := s.store.Read(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("cards: session %q: %w", name, apperr.ErrNotFound)
		}
		return "", nil, fmt.Errorf("cards: read %q: %w", name, err)
	}
	text := string(data)
	return text, Split(text), nil
}

// Session returns the parsed session document.
func (s *Store) Session(ctx context.Context, name string) (*models.Session, error) {
	clean, err := session.Sanitize(name)
	if err != nil {
		return nil, err
	}
	_, cs, err := s.Read(ctx, clean)
	if err != nil {
		return nil, err
	}
	return &models.Session{Name: clean, Cards: cs}, nil
}

// UpdateCard computes the document with card index replaced by text.
// Nothing is written.
func (s *Store) UpdateCard(ctx context.Context, name string, index int, text string) (Edit, error) {
	old, cs, err := s.Read(ctx, name)
	if err != nil {
		return Edit{}, err
	}
	if index < 0 || index >= len(cs) {
		return Edit{}, fmt.Errorf("cards: index %d of %d: %w", index, len(cs), apperr.ErrInvalidIndex)
	}
	cs[index] = text
	return Edit{OldText: old, NewText: Join(cs)}, nil
}

// DeleteCard computes the document with card index removed. A document
// always keeps at least one card. Nothing is written.
func (s *Store) DeleteCard(ctx context.Context, name string, index int) (Deletion, error) {
	old, cs, err := s.Read(ctx, name)
	if err != nil {
		return Deletion{}, err
	}
	if index < 0 || index >= len(cs) {
		return Deletion{}, fmt.Errorf("cards: index %d of %d: %w", index, len(cs), apperr.ErrInvalidIndex)
	}
	if len(cs) <= 1 {
		return Deletion{}, fmt.Errorf("cards: session %q: %w", name, apperr.ErrLastCard)
	}
	deleted := cs[index]
	rest := append(cs[:index:index], cs[index+1:]...)
	return Deletion{DeletedCard: deleted, OldText: old, NewText: Join(rest)}, nil
}

// Write replaces the whole document.
func (s *Store) Write(_ context.Context, name, text string) error {
	p, err := s.docPath(name)
	if err != nil {
		return err
	}
	if err := s.store.Write(p, []byte(text)); err != nil {
		return fmt.Errorf("cards: write %q: %w", name, err)
	}
	return nil
}

// List returns the names of all session documents, sorted.
func (s *Store) List(_ context.Context) ([]string, error) {
	files, err := s.store.List(s.sessionsDir, ".md")
	if err != nil {
		return nil, fmt.Errorf("cards: list: %w", err)
	}
	var out []string
	prefix := strings.TrimSuffix(s.sessionsDir, "/") + "/"
	for _, f := range files {
		rel := strings.TrimPrefix(f.Path, prefix)
		if strings.Contains(rel, "/") {
			continue
		}
		name := strings.TrimSuffix(rel, ".md")
		if clean, err := session.Sanitize(name); err == nil && clean == name {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}
