// ABOUTME: Content node: a record whose value is metadata plus a tagged body
// ABOUTME: Derives storage location and retrieval URL from the metadata

package node

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// FileExt is appended to an identifier to form its storage location.
const FileExt = ".json"

// Meta describes a content node.
type Meta struct {
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt"`
	Title     string    `json:"title" msgpack:"title"`
	UUID      string    `json:"uuid" msgpack:"uuid"`
	BaseURL   string    `json:"baseUrl" msgpack:"baseUrl"`
}

// Value is the payload of a content node. The body is forwarded untouched by
// structural operations.
type Value struct {
	Meta Meta
	Body Body
}

type wireValue struct {
	Meta Meta      `json:"meta" msgpack:"meta"`
	Body *wireBody `json:"body" msgpack:"body"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireValue{Meta: v.Meta, Body: toWire(v.Body)})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return v.fromWire(w)
}

func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(wireValue{Meta: v.Meta, Body: toWire(v.Body)})
}

func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	var w wireValue
	if err := dec.Decode(&w); err != nil {
		return err
	}
	return v.fromWire(w)
}

func (v *Value) fromWire(w wireValue) error {
	body, err := fromWire(w.Body)
	if err != nil {
		return err
	}
	v.Meta = w.Meta
	v.Body = body
	return nil
}

// ContentNode is the record type persisted by the outline store.
type ContentNode struct {
	Record[Value]
}

// New creates a detached content node.
func New(value Value) *ContentNode {
	return &ContentNode{Record: Record[Value]{Value: value}}
}

// ID returns the bare identifier used to key the store.
func (n *ContentNode) ID() string {
	return n.Value.Meta.UUID
}

// Location returns the storage address, "<uuid>.json".
func (n *ContentNode) Location() string {
	return Location(n.Value.Meta.UUID)
}

// URL returns the retrieval address, "<baseUrl>/<uuid>.json".
func (n *ContentNode) URL() string {
	return JoinURL(n.Value.Meta.BaseURL, n.Location())
}

// Clone returns a copy that shares no pointer fields with n.
func (n *ContentNode) Clone() *ContentNode {
	c := *n
	c.Next = Ref(Deref(n.Next))
	c.Child = Ref(Deref(n.Child))
	return &c
}

// Encode returns the canonical serialization {value, next, child}.
func (n *ContentNode) Encode() ([]byte, error) {
	return json.Marshal(n)
}

// Decode reconstructs a content node from its canonical serialization.
func Decode(data []byte) (*ContentNode, error) {
	n := &ContentNode{}
	if err := json.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("node: decode: %w", err)
	}
	return n, nil
}

// Location returns the storage address for an identifier.
func Location(id string) string {
	return id + FileExt
}

// JoinURL joins a base address and a location with exactly one slash.
func JoinURL(base, location string) string {
	if base == "" {
		return location
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(location, "/")
}
