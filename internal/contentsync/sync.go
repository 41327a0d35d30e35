// Package contentsync copies editorial content from one document onto
// another with a three-way merge, keeping what only the destination has.
package contentsync

import (
	"context"
	"fmt"
	"strings"

	"publication/api/internal/docdiff"
	"publication/api/internal/document"
)

type merger interface {
	LoadAttachments(ctx context.Context, doc *document.Document) error
	Merge(ctx context.Context, base, current, next *document.Document) (docdiff.MergeResult, error)
}

// MergeError reports the error entries of a failed merge. The destination
// may be partially modified and must not be saved.
type MergeError struct {
	Source      document.Ref
	Destination document.Ref
	Messages    []string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("copy contents from %s to %s: %s", e.Source, e.Destination, strings.Join(e.Messages, "; "))
}

type Synchronizer struct {
	store merger
}

func New(store merger) *Synchronizer {
	return &Synchronizer{store: store}
}

// Synchronize merges the content of source onto destination in place. It
// never saves. Comments, rights and the workflow record of destination are
// left as they are.
func (s *Synchronizer) Synchronize(ctx context.Context, source, destination *document.Document) error {
	wasNew := destination.IsNew

	previous := destination.Clone()
	document.Strip(previous)

	if err := s.store.LoadAttachments(ctx, source); err != nil {
		return fmt.Errorf("copy contents from %s to %s: %w", source.Ref, destination.Ref, err)
	}
	defer releaseAttachments(source)

	next := source.Duplicate(destination.Ref)
	next.Locale = destination.Locale
	document.Strip(next)

	result, err := s.store.Merge(ctx, previous, destination, next)
	if err != nil {
		return fmt.Errorf("copy contents from %s to %s: %w", source.Ref, destination.Ref, err)
	}

	destination.Author = source.Author
	if wasNew {
		destination.Creator = source.Creator
	}
	destination.Locale = source.Locale

	if errs := result.Errors(); len(errs) > 0 {
		messages := make([]string, 0, len(errs))
		for _, entry := range errs {
			messages = append(messages, entry.Message)
		}
		return &MergeError{Source: source.Ref, Destination: destination.Ref, Messages: messages}
	}
	return nil
}

func releaseAttachments(doc *document.Document) {
	for _, att := range doc.Attachments() {
		att.Release()
	}
}
