package outline

import (
	"strings"

	"github.com/nainya/outlinestore/pkg/node"
)

// Reference returns the location-derived form of id, "<base>/<id>.json". This
// is the only form ever written into next/child.
func (m *Manager) Reference(id string) string {
	return node.JoinURL(m.baseURL, node.Location(IDFromReference(id)))
}

// IDFromReference returns the bare identifier for a reference. Bare
// identifiers are returned unchanged, so callers may pass either form.
func IDFromReference(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	return strings.TrimSuffix(ref, node.FileExt)
}

// refersTo reports whether a pointer field references id.
func refersTo(ptr *string, id string) bool {
	return ptr != nil && IDFromReference(*ptr) == id
}

// checkID rejects caller-chosen identifiers that would not survive the
// round trip through Reference and IDFromReference.
func checkID(op, id string) error {
	switch {
	case strings.ContainsAny(id, `/\`):
		return invalidArg(op, "identifier %q contains a path separator", id)
	case strings.HasSuffix(id, node.FileExt):
		return invalidArg(op, "identifier %q ends in %s", id, node.FileExt)
	case strings.HasPrefix(id, "."):
		return invalidArg(op, "identifier %q starts with a dot", id)
	}
	return nil
}
