// Package models defines the domain types shared across packages.
package models

import "time"

// FileInfo describes a file under the content root.
type FileInfo struct {
	Path    string    `json:"path"` // slash-separated, relative to the content root
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Session is a session document split into its cards. Card identity is
// positional: Cards[i] is card i until a deletion shifts it.
type Session struct {
	Name  string   `json:"name"`
	Cards []string `json:"cards"`
}

// UploadResult is the outcome of a successful image upload.
type UploadResult struct {
	Path      string `json:"path"`
	Duplicate bool   `json:"duplicate,omitempty"`
}
