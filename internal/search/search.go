// Package search keeps a full-text index of the published pages of a wiki.
// Only targets that are visible to readers are indexed; drafts never are.
package search

import (
	"github.com/google/uuid"

	"publication/api/internal/document"
)

// pageNamespace derives stable index identifiers from page references.
var pageNamespace = uuid.MustParse("5b0e7f4a-3c1d-4e59-9a57-2f6c1d8e0b41")

// Result is a single search hit returned to the caller.
type Result struct {
	Ref     string `json:"ref"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Space   string `json:"space"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Wiki   string
	Space  string // empty = all spaces
	Limit  int
	Offset int
}

// Response is the envelope returned to search callers.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// PageRecord is the data we index for a published page.
type PageRecord struct {
	ID      string `json:"id"`
	Ref     string `json:"ref"`
	Wiki    string `json:"wiki"`
	Space   string `json:"space"`
	Name    string `json:"name"`
	Locale  string `json:"locale"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Author  string `json:"author"`
}

// PageID is the index identifier of ref.
func PageID(ref document.Ref) string {
	return uuid.NewSHA1(pageNamespace, []byte(ref.String())).String()
}

func RecordOf(doc *document.Document) PageRecord {
	return PageRecord{
		ID:      PageID(doc.Ref),
		Ref:     doc.Ref.String(),
		Wiki:    doc.Ref.Wiki,
		Space:   doc.Ref.Space,
		Name:    doc.Ref.Name,
		Locale:  doc.Locale,
		Title:   doc.Title,
		Content: doc.Content,
		Author:  doc.Author,
	}
}
