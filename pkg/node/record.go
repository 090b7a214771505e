// ABOUTME: Generic node record with first-child/next-sibling pointers
// ABOUTME: Pointers are location-derived references, never ownership

// Package node defines the persisted outline records.
//
// Records form a forest using the first-child/next-sibling encoding: Child
// descends one level, Next stays at the same level. There is no parent
// pointer and no stored position; a record's place in the outline is implied
// by whichever record currently references it.
package node

// Record holds an opaque value plus the two structural pointers.
type Record[V any] struct {
	Value V       `json:"value" msgpack:"value"`
	Next  *string `json:"next" msgpack:"next"`
	Child *string `json:"child" msgpack:"child"`
}

// Detached reports whether the record is not linked to anything below or after it.
func (r *Record[V]) Detached() bool {
	return r.Next == nil && r.Child == nil
}

// Ref returns a pointer value for s, or nil for the empty string.
func Ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string, or "" for nil.
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
