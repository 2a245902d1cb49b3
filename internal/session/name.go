// Package session holds the one validation routine applied to every
// caller-supplied session identifier, whether it names a document under
// sessions/ or a media directory under media/.
package session

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/starford/growthlab/internal/apperr"
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Sanitize discards any path components from raw and returns the remaining
// base name if it is a plain identifier.
func Sanitize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "\\", "/")
	s = path.Base(s)
	if s == "." || s == "/" || s == ".." || !nameRe.MatchString(s) {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidName, raw)
	}
	return s, nil
}

// DocumentPath returns the slash-separated path of a session document
// relative to the content root.
func DocumentPath(sessionsDir, name string) string {
	return path.Join(sessionsDir, name+".md")
}

// MediaDir returns the canonical media directory for a session.
func MediaDir(mediaDir, name string) string {
	return path.Join(mediaDir, name)
}
