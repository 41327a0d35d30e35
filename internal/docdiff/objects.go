package docdiff

import (
	"sort"

	"publication/api/internal/document"
)

type ChangeKind string

const (
	Added   ChangeKind = "added"
	Removed ChangeKind = "removed"
	Changed ChangeKind = "changed"
)

type PropertyChange struct {
	Name   string
	Kind   ChangeKind
	Before string
	After  string
}

// ObjectChange describes how one numbered object differs between versions.
type ObjectChange struct {
	Class      string
	Number     int
	Kind       ChangeKind
	Properties []PropertyChange
}

// Objects diffs the structured objects of two documents, matching objects by
// class and slot number.
func Objects(from, to *document.Document) []ObjectChange {
	var out []ObjectChange
	for _, class := range unionClasses(from, to) {
		fromSlots, toSlots := from.Objects(class), to.Objects(class)
		size := len(fromSlots)
		if len(toSlots) > size {
			size = len(toSlots)
		}
		for n := 0; n < size; n++ {
			before, after := from.ObjectAt(class, n), to.ObjectAt(class, n)
			if change, ok := diffObject(class, n, before, after); ok {
				out = append(out, change)
			}
		}
	}
	return out
}

func diffObject(class string, number int, before, after *document.Object) (ObjectChange, bool) {
	switch {
	case before == nil && after == nil:
		return ObjectChange{}, false
	case before == nil:
		return ObjectChange{Class: class, Number: number, Kind: Added, Properties: propertyDiff(nil, after)}, true
	case after == nil:
		return ObjectChange{Class: class, Number: number, Kind: Removed, Properties: propertyDiff(before, nil)}, true
	}
	props := propertyDiff(before, after)
	if len(props) == 0 {
		return ObjectChange{}, false
	}
	return ObjectChange{Class: class, Number: number, Kind: Changed, Properties: props}, true
}

func propertyDiff(before, after *document.Object) []PropertyChange {
	names := map[string]struct{}{}
	if before != nil {
		for _, name := range before.Names() {
			names[name] = struct{}{}
		}
	}
	if after != nil {
		for _, name := range after.Names() {
			names[name] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var out []PropertyChange
	for _, name := range sorted {
		inBefore := before != nil && before.Has(name)
		inAfter := after != nil && after.Has(name)
		switch {
		case inBefore && !inAfter:
			out = append(out, PropertyChange{Name: name, Kind: Removed, Before: before.Get(name)})
		case !inBefore && inAfter:
			out = append(out, PropertyChange{Name: name, Kind: Added, After: after.Get(name)})
		case before.Get(name) != after.Get(name):
			out = append(out, PropertyChange{Name: name, Kind: Changed, Before: before.Get(name), After: after.Get(name)})
		}
	}
	return out
}

func unionClasses(docs ...*document.Document) []string {
	seen := map[string]struct{}{}
	for _, d := range docs {
		for _, class := range d.Classes() {
			seen[class] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for class := range seen {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}
