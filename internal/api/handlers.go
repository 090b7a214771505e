package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nainya/outlinestore/pkg/node"
	"github.com/nainya/outlinestore/pkg/outline"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// UpdateNodeRequest replaces a node's value and pointers wholesale.
type UpdateNodeRequest struct {
	Value *node.Value `json:"value" validate:"required"`
	Next  *string     `json:"next"`
	Child *string     `json:"child"`
}

// PositionRequest names the adjacent record for a structural edit.
type PositionRequest struct {
	ParentUUID      string `json:"parentUuid" validate:"required"`
	PredecessorUUID string `json:"predecessorUuid,omitempty" validate:"omitempty,nefield=ParentUUID"`
}

// MoveDownRequest is optional; an empty body means no predecessor.
type MoveDownRequest struct {
	PredecessorUUID string `json:"predecessorUuid,omitempty"`
}

// AddNodeRequest creates a node linked after, or under, the path node.
type AddNodeRequest struct {
	Value   *node.Value `json:"value" validate:"required"`
	AsChild bool        `json:"asChild"`
}

// createNode handles POST /users/{userID}/nodes. The body is the node value.
func (rt *Router) createNode(w http.ResponseWriter, r *http.Request) {
	var value node.Value
	if err := decodeBody(r, &value, false); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	n, err := rt.mgr.Create(r.Context(), value)
	if rt.fail(w, "create", err) {
		return
	}
	respondJSON(w, http.StatusCreated, n)
}

func (rt *Router) getNode(w http.ResponseWriter, r *http.Request) {
	n, err := rt.mgr.Read(r.Context(), chi.URLParam(r, "uuid"))
	if rt.fail(w, "read", err) {
		return
	}
	respondJSON(w, http.StatusOK, n)
}

// updateNode handles PUT /users/{userID}/nodes/{uuid}. The path identifier
// wins over any uuid in the body.
func (rt *Router) updateNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	var req UpdateNodeRequest
	if !rt.decodeValid(w, r, &req, false) {
		return
	}
	existing, err := rt.mgr.Read(r.Context(), id)
	if rt.fail(w, "update", err) {
		return
	}

	value := *req.Value
	value.Meta.UUID = existing.ID()
	if value.Meta.CreatedAt.IsZero() {
		value.Meta.CreatedAt = existing.Value.Meta.CreatedAt
	}
	if value.Meta.BaseURL == "" {
		value.Meta.BaseURL = existing.Value.Meta.BaseURL
	}
	n := node.New(value)
	n.Next = nonEmpty(req.Next)
	n.Child = nonEmpty(req.Child)

	if rt.fail(w, "update", rt.mgr.Update(r.Context(), n)) {
		return
	}
	respondJSON(w, http.StatusOK, n)
}

// deleteNode handles DELETE /users/{userID}/nodes/{uuid}?parentUuid=...
func (rt *Router) deleteNode(w http.ResponseWriter, r *http.Request) {
	err := rt.mgr.Delete(r.Context(), chi.URLParam(r, "uuid"), r.URL.Query().Get("parentUuid"))
	if rt.fail(w, "delete", err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) moveUp(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !rt.decodeValid(w, r, &req, false) {
		return
	}
	err := rt.mgr.MoveUp(r.Context(), chi.URLParam(r, "uuid"), req.ParentUUID, predecessor(req.PredecessorUUID)...)
	if rt.fail(w, "moveUp", err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) moveDown(w http.ResponseWriter, r *http.Request) {
	var req MoveDownRequest
	if !rt.decodeValid(w, r, &req, true) {
		return
	}
	err := rt.mgr.MoveDown(r.Context(), chi.URLParam(r, "uuid"), predecessor(req.PredecessorUUID)...)
	if rt.fail(w, "moveDown", err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) indent(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !rt.decodeValid(w, r, &req, false) {
		return
	}
	if rt.fail(w, "indent", rt.mgr.Indent(r.Context(), chi.URLParam(r, "uuid"), req.ParentUUID)) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) unindent(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !rt.decodeValid(w, r, &req, false) {
		return
	}
	if rt.fail(w, "unIndent", rt.mgr.UnIndent(r.Context(), chi.URLParam(r, "uuid"), req.ParentUUID)) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// addNode handles POST /users/{userID}/nodes/{uuid}/add; {uuid} is the parent.
func (rt *Router) addNode(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if !rt.decodeValid(w, r, &req, false) {
		return
	}
	n, err := rt.mgr.Add(r.Context(), *req.Value, chi.URLParam(r, "uuid"), req.AsChild)
	if rt.fail(w, "add", err) {
		return
	}
	respondJSON(w, http.StatusCreated, n)
}

func (rt *Router) children(w http.ResponseWriter, r *http.Request) {
	kids, err := rt.mgr.Children(r.Context(), chi.URLParam(r, "uuid"))
	if rt.fail(w, "children", err) {
		return
	}
	if kids == nil {
		kids = []*node.ContentNode{}
	}
	respondJSON(w, http.StatusOK, kids)
}

// fail records the outcome of op and, when err is set, writes the error
// response and reports true.
func (rt *Router) fail(w http.ResponseWriter, op string, err error) bool {
	kind := outline.Classify(err)
	if rt.metrics != nil {
		rt.metrics.RecordEdit(op, kind.String())
	}
	if err == nil {
		return false
	}

	code := statusFor(kind)
	msg := err.Error()
	switch code {
	case http.StatusNotFound:
		msg = "Node not found"
	case http.StatusInternalServerError:
		rt.log.Error("operation failed").Str("op", op).Err(err).Send()
		msg = "Internal server error"
	}
	respondError(w, code, msg)
	return true
}

func statusFor(kind outline.ErrorKind) int {
	switch kind {
	case outline.KindNone:
		return http.StatusOK
	case outline.KindNotFound:
		return http.StatusNotFound
	case outline.KindInvariant:
		return http.StatusConflict
	case outline.KindInvalidArgument:
		return http.StatusBadRequest
	case outline.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeValid decodes and validates the body, writing a 400 on failure.
func (rt *Router) decodeValid(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	if err := decodeBody(r, dst, optional); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := rt.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Validation error: "+validationMessage(err))
		return false
	}
	return true
}

func decodeBody(r *http.Request, dst interface{}, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "nefield":
			msgs = append(msgs, fmt.Sprintf("%s must differ from %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func predecessor(id string) []outline.EditOption {
	if id == "" {
		return nil
	}
	return []outline.EditOption{outline.WithPredecessor(id)}
}

func nonEmpty(p *string) *string {
	if p == nil || *p == "" {
		return nil
	}
	return p
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
