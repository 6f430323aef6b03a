// Package models defines the domain types shared across the notebook packages.
package models

import "time"

// Metadata is the structured front matter of a document.
type Metadata struct {
	Title string         `json:"title"`
	Date  string         `json:"date,omitempty"`
	Tags  []string       `json:"tags,omitempty"`
	ID    string         `json:"id,omitempty"`
	Draft bool           `json:"draft,omitempty"`
	Other map[string]any `json:"other,omitempty"`
}

// TodoItem is an open checkbox line. Line is 1-based within the source file.
type TodoItem struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Document is one indexed source file.
type Document struct {
	SystemPath      string     `json:"-"`
	LogicalPath     string     `json:"path"`
	LogicalDir      string     `json:"dir"`
	LogicalBasename string     `json:"basename"`
	Extension       string     `json:"extension"`
	ModTime         time.Time  `json:"modified_time"`
	Meta            Metadata   `json:"metadata"`
	RefName         string     `json:"reference_name"`
	Todos           []TodoItem `json:"todos,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	HTML            string     `json:"html,omitempty"`
	OutgoingLinks   []string   `json:"outgoing_links,omitempty"`
	SearchText      string     `json:"-"`
	IsBlogged       bool       `json:"is_blogged,omitempty"`
	BlogDate        *time.Time `json:"blog_date,omitempty"`

	// Cached is set when SyncOne returned the stored record without parsing.
	Cached bool `json:"-"`
}

// Href is the published location of the document.
func (d *Document) Href() string {
	return d.LogicalBasename + ".html"
}

// Title returns the (possibly draft-decorated) title.
func (d *Document) Title() string {
	return d.Meta.Title
}

// Viewer describes who is asking. Drafts are editor-only; protected
// directories need an authenticated viewer.
type Viewer struct {
	Authenticated bool
	Editor        bool
}

// Anonymous is the unauthenticated viewer.
var Anonymous = Viewer{}

// EditorViewer has every privilege.
var EditorViewer = Viewer{Authenticated: true, Editor: true}
