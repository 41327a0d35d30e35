package docdiff

import "publication/api/internal/document"

// MetadataChange is a difference on a single document metadata field.
type MetadataChange struct {
	Field  string
	Before string
	After  string
}

// metadataFields lists the compared fields in reporting order.
var metadataFields = []struct {
	name string
	get  func(*document.Document) string
}{
	{name: "title", get: func(d *document.Document) string { return d.Title }},
	{name: "parent", get: func(d *document.Document) string { return d.Parent }},
	{name: "syntax", get: func(d *document.Document) string { return d.Syntax }},
	{name: "locale", get: func(d *document.Document) string { return d.Locale }},
	{name: "author", get: func(d *document.Document) string { return d.Author }},
}

func Metadata(from, to *document.Document) []MetadataChange {
	var out []MetadataChange
	for _, field := range metadataFields {
		before, after := field.get(from), field.get(to)
		if before != after {
			out = append(out, MetadataChange{Field: field.name, Before: before, After: after})
		}
	}
	return out
}
