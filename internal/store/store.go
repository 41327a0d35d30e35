// Package store persists documents and exposes the diff and merge primitives
// the workflow works with. Memory keeps everything in process; SQLStore runs
// on PostgreSQL (pgx) or SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"publication/api/internal/blobstore"
	"publication/api/internal/docdiff"
	"publication/api/internal/document"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionConflict = errors.New("document version conflict")
)

// SaveOptions describe a save. Publishing marks the target save of a publish
// so listeners can tell it apart from ordinary edits.
type SaveOptions struct {
	Message    string
	MinorEdit  bool
	Publishing bool
}

type SaveEvent struct {
	Document   *document.Document
	Message    string
	MinorEdit  bool
	Publishing bool
}

// Listener is notified after a save or delete has been committed. Listeners
// handle their own failures; they cannot fail the operation.
type Listener interface {
	DocumentSaved(ctx context.Context, ev SaveEvent)
	DocumentDeleted(ctx context.Context, ref document.Ref)
}

// Query selects documents of a wiki carrying an object of Class whose
// properties equal every entry of Equals.
type Query struct {
	Wiki   string
	Class  string
	Equals map[string]string
}

type listeners struct {
	mu   sync.RWMutex
	subs []Listener
}

// Subscribe registers l for every later save and delete.
func (l *listeners) Subscribe(sub Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, sub)
}

func (l *listeners) saved(ctx context.Context, doc *document.Document, opts SaveOptions) {
	l.mu.RLock()
	subs := append([]Listener(nil), l.subs...)
	l.mu.RUnlock()
	ev := SaveEvent{Document: doc, Message: opts.Message, MinorEdit: opts.MinorEdit, Publishing: opts.Publishing}
	for _, sub := range subs {
		sub.DocumentSaved(ctx, ev)
	}
}

func (l *listeners) deleted(ctx context.Context, ref document.Ref) {
	l.mu.RLock()
	subs := append([]Listener(nil), l.subs...)
	l.mu.RUnlock()
	for _, sub := range subs {
		sub.DocumentDeleted(ctx, ref)
	}
}

// primitives are the store operations that do not touch persisted rows.
type primitives struct {
	blobs blobstore.Store
}

func (p primitives) Clone(doc *document.Document) *document.Document {
	return doc.Clone()
}

func (p primitives) Duplicate(doc *document.Document, ref document.Ref) *document.Document {
	return doc.Duplicate(ref)
}

func (p primitives) ContentDiff(from, to *document.Document) []docdiff.Delta {
	return docdiff.Content(from.Content, to.Content)
}

func (p primitives) MetadataDiff(from, to *document.Document) []docdiff.MetadataChange {
	return docdiff.Metadata(from, to)
}

func (p primitives) ObjectDiff(from, to *document.Document) []docdiff.ObjectChange {
	return docdiff.Objects(from, to)
}

// Merge applies next - base onto current in place.
func (p primitives) Merge(ctx context.Context, base, current, next *document.Document) (docdiff.MergeResult, error) {
	return docdiff.Merge(ctx, p, base, current, next)
}

// AttachmentContent reads the bytes of att without keeping them on it.
func (p primitives) AttachmentContent(ctx context.Context, att *document.Attachment) ([]byte, error) {
	if att.Loaded() {
		return att.Content(), nil
	}
	if att.Key == "" {
		return nil, fmt.Errorf("attachment %s has no content", att.Filename)
	}
	content, err := p.blobs.Get(ctx, att.Key)
	if err != nil {
		return nil, fmt.Errorf("read attachment %s: %w", att.Filename, err)
	}
	return content, nil
}

// LoadAttachments materializes every attachment of doc in memory.
func (p primitives) LoadAttachments(ctx context.Context, doc *document.Document) error {
	for _, att := range doc.Attachments() {
		if att.Loaded() {
			continue
		}
		content, err := p.AttachmentContent(ctx, att)
		if err != nil {
			return err
		}
		att.Hydrate(content)
	}
	return nil
}

// persistAttachments writes dirty attachment bytes under their content key
// and drops them from memory.
func (p primitives) persistAttachments(ctx context.Context, doc *document.Document) error {
	for _, att := range doc.Attachments() {
		if !att.Dirty() {
			continue
		}
		content := att.Content()
		key := document.ContentKey(content)
		if err := p.blobs.Put(ctx, key, content, att.MimeType); err != nil {
			return fmt.Errorf("store attachment %s: %w", att.Filename, err)
		}
		att.MarkPersisted(key)
		att.Release()
	}
	return nil
}

func releaseAttachments(doc *document.Document) {
	for _, att := range doc.Attachments() {
		att.Release()
	}
}

// matches reports whether doc carries an object satisfying q.
func matches(doc *document.Document, q Query) bool {
	for _, obj := range doc.Objects(q.Class) {
		if obj == nil {
			continue
		}
		ok := true
		for name, value := range q.Equals {
			if !obj.Has(name) || obj.Get(name) != value {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// candidateName yields Name, Name_0, Name_1, ... for unique page names.
func candidateName(name string, attempt int) string {
	if attempt == 0 {
		return name
	}
	return fmt.Sprintf("%s_%d", name, attempt-1)
}
