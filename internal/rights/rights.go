// Package rights manages the ordered access entries of a document. Entries are
// addressed by their ordinal among non-empty slots, so rewriting the rights of
// a document reuses existing objects instead of growing the slot array.
package rights

import (
	"strings"

	"publication/api/internal/document"
)

type Level string

const (
	LevelView    Level = "view"
	LevelComment Level = "comment"
	LevelEdit    Level = "edit"
)

const (
	fieldLevels = "levels"
	fieldGroups = "groups"
	fieldUsers  = "users"
	fieldAllow  = "allow"
)

// Entry is one access rule. Earlier entries are consulted first.
type Entry struct {
	Levels []Level
	Groups []string
	Users  []string
	Allow  bool
}

// ordinalSlots returns the non-empty rights objects in slot order.
func ordinalSlots(doc *document.Document) []*document.Object {
	var out []*document.Object
	for _, obj := range doc.Objects(document.ClassRights) {
		if obj != nil {
			out = append(out, obj)
		}
	}
	return out
}

// Count is the number of non-empty entries.
func Count(doc *document.Document) int {
	return len(ordinalSlots(doc))
}

// SetEntry overwrites the ordinal-th non-empty entry, appending a new one when
// fewer exist.
func SetEntry(doc *document.Document, ordinal int, entry Entry) {
	slots := ordinalSlots(doc)
	var obj *document.Object
	if ordinal >= 0 && ordinal < len(slots) {
		obj = slots[ordinal]
	} else {
		obj = doc.NewObject(document.ClassRights)
	}

	levels := make([]string, 0, len(entry.Levels))
	for _, l := range entry.Levels {
		levels = append(levels, string(l))
	}
	obj.SetList(fieldLevels, levels)
	obj.SetList(fieldGroups, entry.Groups)
	obj.SetList(fieldUsers, entry.Users)
	if entry.Allow {
		obj.SetInt(fieldAllow, 1)
	} else {
		obj.SetInt(fieldAllow, 0)
	}
}

// TruncateFrom removes every non-empty entry at or after ordinal. An ordinal
// of zero or less removes them all.
func TruncateFrom(doc *document.Document, ordinal int) {
	if ordinal < 0 {
		ordinal = 0
	}
	slots := ordinalSlots(doc)
	for i := ordinal; i < len(slots); i++ {
		doc.RemoveObject(slots[i])
	}
}

// Entries reads the non-empty entries in ordinal order.
func Entries(doc *document.Document) []Entry {
	slots := ordinalSlots(doc)
	out := make([]Entry, 0, len(slots))
	for _, obj := range slots {
		var levels []Level
		for _, l := range obj.List(fieldLevels) {
			levels = append(levels, Level(l))
		}
		out = append(out, Entry{
			Levels: levels,
			Groups: obj.List(fieldGroups),
			Users:  obj.List(fieldUsers),
			Allow:  obj.Int(fieldAllow, 1) == 1,
		})
	}
	return out
}

// principals merges serialized principal lists, keeping the first occurrence
// of each principal.
func principals(lists ...string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range lists {
		for _, p := range document.SplitList(list) {
			p = strings.TrimSpace(p)
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
