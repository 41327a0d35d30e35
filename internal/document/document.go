// Package document holds the in-memory model of a versioned content item:
// text content, metadata, attachments and numbered structured objects.
package document

import (
	"sort"
	"time"
)

// Class labels of the structured object groups the publication workflow
// reads or writes.
const (
	ClassComments       = "Publication.Comments"
	ClassRights         = "Publication.Rights"
	ClassWorkflow       = "Publication.Workflow"
	ClassWorkflowConfig = "Publication.WorkflowConfig"
)

// nonEditorialClasses are excluded from comparison and synchronization.
var nonEditorialClasses = []string{ClassComments, ClassRights, ClassWorkflow}

type Document struct {
	Ref     Ref
	Locale  string
	Title   string
	Parent  string
	Syntax  string
	Content string
	Creator string
	Author  string
	Hidden  bool

	// IsNew is true until the document has been saved once.
	IsNew     bool
	Version   int
	UpdatedAt time.Time

	attachments map[string]*Attachment
	objects     map[string][]*Object
}

// New returns an empty, not yet persisted document.
func New(ref Ref) *Document {
	return &Document{
		Ref:         ref,
		IsNew:       true,
		attachments: make(map[string]*Attachment),
		objects:     make(map[string][]*Object),
	}
}

// Classes returns the class labels that have at least one slot, sorted.
func (d *Document) Classes() []string {
	classes := make([]string, 0, len(d.objects))
	for class, slots := range d.objects {
		if len(slots) > 0 {
			classes = append(classes, class)
		}
	}
	sort.Strings(classes)
	return classes
}

// Objects returns the raw slots of a class; removed slots are nil.
func (d *Document) Objects(class string) []*Object {
	return d.objects[class]
}

// Object returns the first non-empty object of a class.
func (d *Document) Object(class string) *Object {
	for _, obj := range d.objects[class] {
		if obj != nil {
			return obj
		}
	}
	return nil
}

// ObjectAt returns the object at a slot number, or nil.
func (d *Document) ObjectAt(class string, number int) *Object {
	slots := d.objects[class]
	if number < 0 || number >= len(slots) {
		return nil
	}
	return slots[number]
}

// NewObject appends a fresh object at the end of the class group.
func (d *Document) NewObject(class string) *Object {
	obj := newObject(class, len(d.objects[class]))
	d.objects[class] = append(d.objects[class], obj)
	return obj
}

// NewObjectAt creates an empty object in slot number, replacing whatever the
// slot held. Stores use it to rebuild groups with their gaps.
func (d *Document) NewObjectAt(class string, number int) *Object {
	obj := newObject(class, number)
	d.PutObject(obj)
	return obj
}

// PutObject places obj at its Number, growing the group with empty slots
// when needed.
func (d *Document) PutObject(obj *Object) {
	slots := d.objects[obj.Class]
	for len(slots) <= obj.Number {
		slots = append(slots, nil)
	}
	slots[obj.Number] = obj
	d.objects[obj.Class] = slots
}

// RemoveObject empties the slot of obj, leaving the other numbers intact.
func (d *Document) RemoveObject(obj *Object) {
	if obj == nil {
		return
	}
	slots := d.objects[obj.Class]
	if obj.Number >= 0 && obj.Number < len(slots) && slots[obj.Number] == obj {
		slots[obj.Number] = nil
	}
}

// RemoveObjects drops a whole class group.
func (d *Document) RemoveObjects(class string) {
	delete(d.objects, class)
}

func (d *Document) Attachment(filename string) *Attachment {
	return d.attachments[filename]
}

// Attachments returns attachments sorted by filename.
func (d *Document) Attachments() []*Attachment {
	out := make([]*Attachment, 0, len(d.attachments))
	for _, att := range d.attachments {
		out = append(out, att)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

func (d *Document) AddAttachment(att *Attachment) {
	d.attachments[att.Filename] = att
}

func (d *Document) RemoveAttachment(filename string) {
	delete(d.attachments, filename)
}

// Clone deep-copies the document, keeping its reference and persistence state.
func (d *Document) Clone() *Document {
	out := *d
	out.attachments = make(map[string]*Attachment, len(d.attachments))
	for name, att := range d.attachments {
		out.attachments[name] = att.Clone()
	}
	out.objects = make(map[string][]*Object, len(d.objects))
	for class, slots := range d.objects {
		copied := make([]*Object, len(slots))
		for i, obj := range slots {
			copied[i] = obj.Clone()
		}
		out.objects[class] = copied
	}
	return &out
}

// Duplicate deep-copies the document under another reference. The copy is new.
func (d *Document) Duplicate(ref Ref) *Document {
	out := d.Clone()
	out.Ref = ref
	out.IsNew = true
	out.Version = 0
	return out
}

// Strip removes the comment, rights and workflow groups, which are never
// part of what is compared or synchronized between a draft and its target.
func Strip(d *Document) {
	for _, class := range nonEditorialClasses {
		d.RemoveObjects(class)
	}
}

// IsNonEditorial reports whether a class is excluded by Strip.
func IsNonEditorial(class string) bool {
	for _, c := range nonEditorialClasses {
		if c == class {
			return true
		}
	}
	return false
}
