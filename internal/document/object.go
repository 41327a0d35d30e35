package document

import (
	"sort"
	"strconv"
	"strings"
)

// Object is one structured entry of a class group. Its Number is the slot it
// occupies in the group; removed slots stay nil so numbers never shift.
type Object struct {
	Class  string
	Number int
	props  map[string]string
}

func newObject(class string, number int) *Object {
	return &Object{Class: class, Number: number, props: make(map[string]string)}
}

func (o *Object) Get(name string) string {
	return o.props[name]
}

func (o *Object) Has(name string) bool {
	_, ok := o.props[name]
	return ok
}

func (o *Object) Set(name, value string) {
	o.props[name] = value
}

func (o *Object) Unset(name string) {
	delete(o.props, name)
}

// Int reads an integer property, returning fallback when it is absent or
// not a number.
func (o *Object) Int(name string, fallback int) int {
	value, ok := o.props[name]
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func (o *Object) SetInt(name string, value int) {
	o.props[name] = strconv.Itoa(value)
}

// List reads a comma separated list property, dropping blank items.
func (o *Object) List(name string) []string {
	return SplitList(o.props[name])
}

func (o *Object) SetList(name string, values []string) {
	o.props[name] = JoinList(values)
}

// Names returns the property names in sorted order.
func (o *Object) Names() []string {
	names := make([]string, 0, len(o.props))
	for name := range o.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Properties returns a copy of the property map.
func (o *Object) Properties() map[string]string {
	out := make(map[string]string, len(o.props))
	for k, v := range o.props {
		out[k] = v
	}
	return out
}

// Equal compares property values, ignoring class and number.
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}
	if len(o.props) != len(other.props) {
		return false
	}
	for k, v := range o.props {
		if ov, ok := other.props[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	return &Object{Class: o.Class, Number: o.Number, props: o.Properties()}
}

// SplitList parses a comma separated principal or level list.
func SplitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func JoinList(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ",")
}
