// ABOUTME: Tagged content body carried by a content node
// ABOUTME: Closed sum type: text, link, reference

package node

import (
	"encoding/json"
	"fmt"
)

// BodyKind is the wire tag of a content body.
type BodyKind string

const (
	KindText      BodyKind = "text"
	KindLink      BodyKind = "link"
	KindReference BodyKind = "reference"
)

// Body is one of TextBody, LinkBody or ReferenceBody.
type Body interface {
	Kind() BodyKind
	fields() map[string]string
}

// TextBody carries inline text.
type TextBody struct {
	Text string
}

// LinkBody points at an external resource.
type LinkBody struct {
	Href string
}

// ReferenceBody points at another stored resource.
type ReferenceBody struct {
	Href string
}

func (TextBody) Kind() BodyKind      { return KindText }
func (LinkBody) Kind() BodyKind      { return KindLink }
func (ReferenceBody) Kind() BodyKind { return KindReference }

func (b TextBody) fields() map[string]string      { return map[string]string{"text": b.Text} }
func (b LinkBody) fields() map[string]string      { return map[string]string{"href": b.Href} }
func (b ReferenceBody) fields() map[string]string { return map[string]string{"href": b.Href} }

// newBody rebuilds a body from its tag and data fields.
func newBody(kind BodyKind, data map[string]string) (Body, error) {
	switch kind {
	case KindText:
		return TextBody{Text: data["text"]}, nil
	case KindLink:
		return LinkBody{Href: data["href"]}, nil
	case KindReference:
		return ReferenceBody{Href: data["href"]}, nil
	default:
		return nil, fmt.Errorf("node: unknown body type %q", kind)
	}
}

// wireBody is the tagged encoding {type, data}.
type wireBody struct {
	Type BodyKind          `json:"type" msgpack:"type"`
	Data map[string]string `json:"data" msgpack:"data"`
}

func toWire(b Body) *wireBody {
	if b == nil {
		return nil
	}
	return &wireBody{Type: b.Kind(), Data: b.fields()}
}

func fromWire(w *wireBody) (Body, error) {
	if w == nil {
		return nil, nil
	}
	return newBody(w.Type, w.Data)
}

// MarshalBody encodes a body in its tagged JSON form.
func MarshalBody(b Body) ([]byte, error) {
	return json.Marshal(toWire(b))
}

// UnmarshalBody decodes a tagged JSON body.
func UnmarshalBody(data []byte) (Body, error) {
	var w *wireBody
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(w)
}
