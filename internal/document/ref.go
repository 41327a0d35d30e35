package document

import "strings"

// Ref identifies a document: wiki (the namespace queries are scoped to),
// space and page name.
type Ref struct {
	Wiki  string
	Space string
	Name  string
}

func NewRef(wiki, space, name string) Ref {
	return Ref{Wiki: wiki, Space: space, Name: name}
}

func (r Ref) IsZero() bool {
	return r.Wiki == "" && r.Space == "" && r.Name == ""
}

// String serializes the reference as wiki:Space.Name.
func (r Ref) String() string {
	if r.Wiki == "" {
		return r.local()
	}
	return r.Wiki + ":" + r.local()
}

// Compact serializes the reference relative to base, omitting the wiki when
// both live in the same one.
func (r Ref) Compact(base Ref) string {
	if r.Wiki == base.Wiki {
		return r.local()
	}
	return r.String()
}

func (r Ref) local() string {
	if r.Space == "" {
		return r.Name
	}
	return r.Space + "." + r.Name
}

// ParseRef resolves a serialized reference. Missing parts are taken from base.
func ParseRef(value string, base Ref) Ref {
	value = strings.TrimSpace(value)
	if value == "" {
		return Ref{}
	}
	ref := Ref{Wiki: base.Wiki, Space: base.Space}
	if idx := strings.Index(value, ":"); idx >= 0 {
		ref.Wiki = value[:idx]
		value = value[idx+1:]
	}
	if idx := strings.LastIndex(value, "."); idx >= 0 {
		ref.Space = value[:idx]
		value = value[idx+1:]
	}
	ref.Name = value
	return ref
}
