package docdiff

import (
	"bytes"
	"context"
	"fmt"

	"publication/api/internal/document"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

type LogEntry struct {
	Level   Level
	Message string
}

// MergeResult reports what a merge did to the current document.
type MergeResult struct {
	Modified bool
	Log      []LogEntry
}

// Errors returns the error-severity entries of the log.
func (r MergeResult) Errors() []LogEntry {
	var out []LogEntry
	for _, entry := range r.Log {
		if entry.Level == LevelError {
			out = append(out, entry)
		}
	}
	return out
}

func (r *MergeResult) logf(level Level, format string, args ...any) {
	r.Log = append(r.Log, LogEntry{Level: level, Message: fmt.Sprintf(format, args...)})
}

// ContentLoader reads persisted attachment bytes.
type ContentLoader interface {
	AttachmentContent(ctx context.Context, att *document.Attachment) ([]byte, error)
}

// Merge applies the changes between base and next onto current, in place.
// Whatever current holds that base does not know about is kept. Conflicts
// are recorded as error entries; the returned error is reserved for
// attachment I/O failures.
func Merge(ctx context.Context, loader ContentLoader, base, current, next *document.Document) (MergeResult, error) {
	var result MergeResult

	merged, conflicts := MergeText(base.Content, current.Content, next.Content)
	for _, c := range conflicts {
		result.logf(LevelError, "content conflict on lines %d-%d", c.BaseStart+1, c.BaseEnd)
	}
	if merged != current.Content {
		current.Content = merged
		result.Modified = true
	}

	mergeField(&result, "title", base.Title, &current.Title, next.Title)
	mergeField(&result, "parent", base.Parent, &current.Parent, next.Parent)
	mergeField(&result, "syntax", base.Syntax, &current.Syntax, next.Syntax)

	mergeObjects(&result, base, current, next)

	if err := mergeAttachments(ctx, loader, &result, base, current, next); err != nil {
		return result, err
	}
	return result, nil
}

func mergeField(result *MergeResult, name, base string, current *string, next string) {
	switch {
	case base == next, *current == next:
		return
	case *current == base:
		*current = next
		result.Modified = true
	default:
		result.logf(LevelError, "conflict on field %s: %q changed to both %q and %q", name, base, *current, next)
	}
}

func mergeObjects(result *MergeResult, base, current, next *document.Document) {
	for _, change := range Objects(base, next) {
		switch change.Kind {
		case Added:
			added := next.ObjectAt(change.Class, change.Number).Clone()
			existing := current.ObjectAt(change.Class, change.Number)
			switch {
			case existing == nil:
				current.PutObject(added)
			case existing.Equal(added):
				continue
			default:
				fresh := current.NewObject(change.Class)
				for name, value := range added.Properties() {
					fresh.Set(name, value)
				}
				result.logf(LevelWarn, "object %s[%d] already taken, added as %s[%d]", change.Class, change.Number, change.Class, fresh.Number)
			}
			result.Modified = true
		case Removed:
			existing := current.ObjectAt(change.Class, change.Number)
			if existing == nil {
				continue
			}
			if !existing.Equal(base.ObjectAt(change.Class, change.Number)) {
				result.logf(LevelError, "object %s[%d] was modified and cannot be removed", change.Class, change.Number)
				continue
			}
			current.RemoveObject(existing)
			result.Modified = true
		case Changed:
			existing := current.ObjectAt(change.Class, change.Number)
			if existing == nil {
				result.logf(LevelWarn, "object %s[%d] no longer exists, changes skipped", change.Class, change.Number)
				continue
			}
			for _, prop := range change.Properties {
				if applyProperty(result, existing, prop) {
					result.Modified = true
				}
			}
		}
	}
}

func applyProperty(result *MergeResult, obj *document.Object, prop PropertyChange) bool {
	mine, present := obj.Get(prop.Name), obj.Has(prop.Name)
	switch prop.Kind {
	case Removed:
		if !present {
			return false
		}
		if mine != prop.Before {
			result.logf(LevelError, "conflict on %s[%d].%s: removed but modified to %q", obj.Class, obj.Number, prop.Name, mine)
			return false
		}
		obj.Unset(prop.Name)
		return true
	default:
		if present && mine == prop.After {
			return false
		}
		if prop.Kind == Changed && present && mine != prop.Before {
			result.logf(LevelError, "conflict on %s[%d].%s: %q changed to both %q and %q", obj.Class, obj.Number, prop.Name, prop.Before, mine, prop.After)
			return false
		}
		obj.Set(prop.Name, prop.After)
		return true
	}
}

func mergeAttachments(ctx context.Context, loader ContentLoader, result *MergeResult, base, current, next *document.Document) error {
	for _, att := range next.Attachments() {
		if base.Attachment(att.Filename) != nil {
			continue
		}
		if existing := current.Attachment(att.Filename); existing != nil {
			same, err := sameContent(ctx, loader, existing, att)
			if err != nil {
				return err
			}
			if !same {
				result.logf(LevelError, "attachment %s was added on both sides with different content", att.Filename)
			}
			continue
		}
		current.AddAttachment(copyAttachment(att))
		result.Modified = true
	}

	for _, prev := range base.Attachments() {
		incoming := next.Attachment(prev.Filename)
		existing := current.Attachment(prev.Filename)
		if incoming == nil {
			if existing == nil {
				continue
			}
			if existing.Key != prev.Key || existing.Dirty() {
				result.logf(LevelError, "attachment %s was modified and cannot be removed", prev.Filename)
				continue
			}
			current.RemoveAttachment(prev.Filename)
			result.Modified = true
			continue
		}

		same, err := sameContent(ctx, loader, prev, incoming)
		if err != nil {
			return err
		}
		if same {
			continue
		}
		if existing == nil {
			result.logf(LevelWarn, "attachment %s no longer exists, update skipped", prev.Filename)
			continue
		}
		if existing.Key != prev.Key || existing.Dirty() {
			result.logf(LevelError, "attachment %s was modified on both sides", prev.Filename)
			continue
		}
		replacement := copyAttachment(incoming)
		current.AddAttachment(replacement)
		result.Modified = true
	}
	return nil
}

// copyAttachment prepares an incoming attachment for the current document.
// Loaded bytes are re-marked for persistence under the new owner.
func copyAttachment(att *document.Attachment) *document.Attachment {
	out := att.Clone()
	if out.Loaded() {
		out.SetContent(out.Content())
	}
	return out
}

func sameContent(ctx context.Context, loader ContentLoader, a, b *document.Attachment) (bool, error) {
	if a.Key != "" && a.Key == b.Key && !a.Dirty() && !b.Dirty() {
		return true, nil
	}
	left, err := contentOf(ctx, loader, a)
	if err != nil {
		return false, err
	}
	right, err := contentOf(ctx, loader, b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(left, right), nil
}

// contentOf returns attachment bytes without keeping them on the attachment.
func contentOf(ctx context.Context, loader ContentLoader, att *document.Attachment) ([]byte, error) {
	if att.Loaded() {
		return att.Content(), nil
	}
	if loader == nil || att.Key == "" {
		return nil, fmt.Errorf("attachment %s has no content", att.Filename)
	}
	content, err := loader.AttachmentContent(ctx, att)
	if err != nil {
		return nil, fmt.Errorf("load attachment %s: %w", att.Filename, err)
	}
	return content, nil
}

// AttachmentContent is contentOf for callers outside the package.
func AttachmentContent(ctx context.Context, loader ContentLoader, att *document.Attachment) ([]byte, error) {
	return contentOf(ctx, loader, att)
}
