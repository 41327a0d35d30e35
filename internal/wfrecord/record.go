// Package wfrecord reads and writes the workflow record object a document
// carries once a publication workflow has been started on it.
package wfrecord

import (
	"publication/api/internal/document"
)

// Property names of the workflow record object.
const (
	FieldConfig       = "workflow"
	FieldTarget       = "target"
	FieldStatus       = "status"
	FieldStatusAuthor = "statusAuthor"
	FieldIsTarget     = "istarget"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusModerating Status = "moderating"
	StatusValidating Status = "validating"
	StatusValid      Status = "valid"
	StatusPublished  Status = "published"
	StatusArchived   Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusModerating, StatusValidating, StatusValid, StatusPublished, StatusArchived:
		return true
	default:
		return false
	}
}

// Record is a view over the workflow object of a document. Writes go straight
// to the object.
type Record struct {
	owner document.Ref
	obj   *document.Object
}

// Of returns the record of doc, if it has one.
func Of(doc *document.Document) (Record, bool) {
	obj := doc.Object(document.ClassWorkflow)
	if obj == nil {
		return Record{}, false
	}
	return Record{owner: doc.Ref, obj: obj}, true
}

// Create adds an empty record to doc.
func Create(doc *document.Document) Record {
	return Record{owner: doc.Ref, obj: doc.NewObject(document.ClassWorkflow)}
}

// Config is the serialized reference of the workflow configuration.
func (r Record) Config() string {
	return r.obj.Get(FieldConfig)
}

func (r Record) SetConfig(ref string) {
	r.obj.Set(FieldConfig, ref)
}

// Target resolves the target reference relative to the owning document. It
// is zero when no target is set.
func (r Record) Target() document.Ref {
	return document.ParseRef(r.obj.Get(FieldTarget), r.owner)
}

// SetTarget stores the target compacted against the owning document.
func (r Record) SetTarget(target document.Ref) {
	r.obj.Set(FieldTarget, target.Compact(r.owner))
}

func (r Record) Status() Status {
	return Status(r.obj.Get(FieldStatus))
}

func (r Record) SetStatus(s Status) {
	r.obj.Set(FieldStatus, string(s))
}

func (r Record) StatusAuthor() string {
	return r.obj.Get(FieldStatusAuthor)
}

func (r Record) SetStatusAuthor(actor string) {
	r.obj.Set(FieldStatusAuthor, actor)
}

// IsTarget reports whether the owning document is the published copy.
func (r Record) IsTarget() bool {
	return r.obj.Int(FieldIsTarget, 0) > 0
}

func (r Record) SetIsTarget(v bool) {
	if v {
		r.obj.SetInt(FieldIsTarget, 1)
		return
	}
	r.obj.SetInt(FieldIsTarget, 0)
}
