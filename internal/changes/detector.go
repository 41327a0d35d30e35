// Package changes decides whether two versions of a document differ in
// editorial content.
package changes

import (
	"bytes"
	"context"
	"fmt"

	"publication/api/internal/docdiff"
	"publication/api/internal/document"
)

type differ interface {
	ContentDiff(from, to *document.Document) []docdiff.Delta
	MetadataDiff(from, to *document.Document) []docdiff.MetadataChange
	ObjectDiff(from, to *document.Document) []docdiff.ObjectChange
	AttachmentContent(ctx context.Context, att *document.Attachment) ([]byte, error)
}

type Detector struct {
	store differ
}

func New(store differ) *Detector {
	return &Detector{store: store}
}

// IsModified compares from and to with comments, rights and the workflow
// record stripped. The author field is ignored. Attachment bytes are read one
// attachment at a time and not kept.
func (d *Detector) IsModified(ctx context.Context, from, to *document.Document) (bool, error) {
	next := to.Clone()
	document.Strip(next)
	prev := from.Duplicate(to.Ref)
	document.Strip(prev)

	if len(d.store.ContentDiff(prev, next)) > 0 {
		return true, nil
	}
	for _, change := range d.store.MetadataDiff(prev, next) {
		if change.Field != "author" {
			return true, nil
		}
	}
	if len(d.store.ObjectDiff(prev, next)) > 0 {
		return true, nil
	}

	prevAtts, nextAtts := prev.Attachments(), next.Attachments()
	if len(prevAtts) != len(nextAtts) {
		return true, nil
	}
	for _, att := range prevAtts {
		if next.Attachment(att.Filename) == nil {
			return true, nil
		}
	}
	for _, att := range nextAtts {
		if prev.Attachment(att.Filename) == nil {
			return true, nil
		}
	}

	for _, att := range prevAtts {
		same, err := d.sameBytes(ctx, att, next.Attachment(att.Filename))
		if err != nil {
			return false, err
		}
		if !same {
			return true, nil
		}
	}
	return false, nil
}

func (d *Detector) sameBytes(ctx context.Context, a, b *document.Attachment) (bool, error) {
	left, err := d.store.AttachmentContent(ctx, a)
	if err != nil {
		return false, fmt.Errorf("compare attachment %s: %w", a.Filename, err)
	}
	right, err := d.store.AttachmentContent(ctx, b)
	if err != nil {
		return false, fmt.Errorf("compare attachment %s: %w", b.Filename, err)
	}
	return bytes.Equal(left, right), nil
}
