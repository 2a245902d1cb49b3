// Package parser extracts media references from session document text.
//
// A reference is never stored; it is recomputed by scanning text whenever
// the garbage collector needs the set of files a document keeps alive.
package parser

import (
	"path"
	"regexp"
	"sort"
	"strings"
)

// MediaExt is the single canonical extension of stored media.
const MediaExt = ".webp"

// MediaRoot is the top-level directory all canonical paths live under.
const MediaRoot = "media"

var (
	markdownImageRe = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)
	htmlImageRe     = regexp.MustCompile(`(?i)<img[^>]+src=["']?([^"'>]+)["']?[^>]*>`)
	canonicalRe     = regexp.MustCompile(`^` + MediaRoot + `/([A-Za-z0-9_-]+)/[^/]+\` + MediaExt + `$`)
)

// canonicalPattern matches media/<sessionID>/<file>.webp anywhere inside a URL.
func canonicalPattern(sessionID string) *regexp.Regexp {
	return regexp.MustCompile(MediaRoot + `/` + regexp.QuoteMeta(sessionID) + `/[^)\s"']+\` + MediaExt)
}

// MediaRefs returns the distinct canonical paths that text embeds for
// sessionID, via markdown ![alt](url) or HTML <img src="url">. Any prefix in
// front of the canonical part of the URL (host, CDN, leading slash) is dropped.
// Paths belonging to other sessions are not matched, and neither are paths
// that are not already clean (dot segments, doubled slashes, nested dirs).
func MediaRefs(text, sessionID string) map[string]struct{} {
	out := make(map[string]struct{})
	if text == "" || sessionID == "" {
		return out
	}
	pat := canonicalPattern(sessionID)
	collect := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			p := pat.FindString(m[1])
			if sid, ok := SessionOf(p); ok && sid == sessionID {
				out[p] = struct{}{}
			}
		}
	}
	collect(markdownImageRe)
	collect(htmlImageRe)
	return out
}

// References reports whether text embeds the canonical path p.
func References(text, p string) bool {
	sid, ok := SessionOf(p)
	if !ok {
		return false
	}
	_, found := MediaRefs(text, sid)[p]
	return found
}

// SessionOf returns the session segment of a canonical media path.
func SessionOf(p string) (string, bool) {
	if p != path.Clean(p) {
		return "", false
	}
	m := canonicalRe.FindStringSubmatch(p)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Difference returns the members of a that are not in b.
func Difference(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for p := range a {
		if _, ok := b[p]; !ok {
			out[p] = struct{}{}
		}
	}
	return out
}

// Sorted returns the members of set in lexical order.
func Sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// IsCanonical reports whether p has the shape media/<session>/<file>.webp.
func IsCanonical(p string) bool {
	_, ok := SessionOf(p)
	return ok && !strings.Contains(p, "..")
}
