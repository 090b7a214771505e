// Integration tests for the outline gRPC service
package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nainya/outlinestore/internal/api"
	"github.com/nainya/outlinestore/internal/logger"
	"github.com/nainya/outlinestore/internal/metrics"
	"github.com/nainya/outlinestore/pkg/node"
	"github.com/nainya/outlinestore/pkg/outline"
	"github.com/nainya/outlinestore/pkg/store"
)

const (
	bufSize  = 1024 * 1024
	testBase = "https://example.com/outline"
)

type testEnv struct {
	client  *Client
	mgr     *outline.Manager
	metrics *metrics.Metrics
	logs    *bytes.Buffer
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	return setupTestServerWithAuth(t, nil)
}

// setupTestServerWithAuth gates the service with auth when it is non-nil.
func setupTestServerWithAuth(t *testing.T, auth api.AuthFunc) *testEnv {
	t.Helper()

	var logs bytes.Buffer
	log := logger.NewLogger(logger.Config{Level: "debug", Output: &logs})
	m := metrics.NewMetrics(prometheus.NewRegistry())

	st := NewInstrumentedStore(store.NewMemory(), m, log)
	mgr := outline.New(testBase, st, outline.Options{Commit: outline.CommitAtomic})

	lis := bufconn.Listen(bufSize)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		GrpcMetricsInterceptor(m, log),
		AuthInterceptor(auth, log),
	))
	RegisterOutlineServer(grpcServer, NewServer(mgr, m))

	go func() {
		// Serve returns when the server is stopped during cleanup.
		_ = grpcServer.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		grpcServer.Stop()
		lis.Close()
	})

	return &testEnv{client: NewClient(conn), mgr: mgr, metrics: m, logs: &logs}
}

func textValue(id string) node.Value {
	return node.Value{
		Meta: node.Meta{Title: id, UUID: id},
		Body: node.TextBody{Text: "text of " + id},
	}
}

// seedChain creates ids over gRPC as a sibling chain.
func seedChain(t *testing.T, env *testEnv, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for i, id := range ids {
		if i == 0 {
			if _, err := env.client.Create(ctx, textValue(id)); err != nil {
				t.Fatalf("Create %s failed: %v", id, err)
			}
			continue
		}
		if _, err := env.client.Add(ctx, textValue(id), ids[i-1], false); err != nil {
			t.Fatalf("Add %s failed: %v", id, err)
		}
	}
}

func nextOf(t *testing.T, env *testEnv, id string) string {
	t.Helper()
	n, err := env.client.Read(context.Background(), id)
	if err != nil {
		t.Fatalf("Read %s failed: %v", id, err)
	}
	return outline.IDFromReference(node.Deref(n.Next))
}

func TestCreateAndRead(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	created, err := env.client.Create(ctx, node.Value{
		Meta: node.Meta{Title: "Link"},
		Body: node.LinkBody{Href: "https://example.org/page"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID() == "" {
		t.Fatal("Expected a generated uuid")
	}
	if created.Value.Meta.BaseURL != testBase {
		t.Errorf("Expected base url %s, got %s", testBase, created.Value.Meta.BaseURL)
	}

	got, err := env.client.Read(ctx, created.ID())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Value.Body != (node.LinkBody{Href: "https://example.org/page"}) {
		t.Errorf("Unexpected body %#v", got.Value.Body)
	}
	if got.Next != nil || got.Child != nil {
		t.Errorf("Expected detached node, got next=%v child=%v", got.Next, got.Child)
	}
}

func TestReadNotFound(t *testing.T) {
	env := setupTestServer(t)

	_, err := env.client.Read(context.Background(), "missing")
	if !errors.Is(err, outline.ErrNotFound) {
		t.Fatalf("Expected not found, got %v", err)
	}
	if status.Code(err) != codes.NotFound {
		t.Errorf("Expected NotFound code, got %v", status.Code(err))
	}
}

func TestAddAndChildren(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	seedChain(t, env, "root")

	if _, err := env.client.Add(ctx, textValue("c2"), "root", true); err != nil {
		t.Fatalf("Add c2 failed: %v", err)
	}
	if _, err := env.client.Add(ctx, textValue("c1"), "root", true); err != nil {
		t.Fatalf("Add c1 failed: %v", err)
	}

	kids, err := env.mgr.Children(ctx, "root")
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if len(kids) != 2 || kids[0].ID() != "c1" || kids[1].ID() != "c2" {
		t.Fatalf("Unexpected children order: %v", kids)
	}
}

func TestStructuralEdits(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	seedChain(t, env, "a", "b", "c")

	// a -> b -> c  becomes  b -> a -> c
	if err := env.client.MoveDown(ctx, "a", ""); err != nil {
		t.Fatalf("MoveDown failed: %v", err)
	}
	if got := nextOf(t, env, "b"); got != "a" {
		t.Errorf("Expected b.next = a, got %q", got)
	}
	if got := nextOf(t, env, "a"); got != "c" {
		t.Errorf("Expected a.next = c, got %q", got)
	}

	// back to a -> b -> c
	if err := env.client.MoveUp(ctx, "a", "b", ""); err != nil {
		t.Fatalf("MoveUp failed: %v", err)
	}
	if got := nextOf(t, env, "a"); got != "b" {
		t.Errorf("Expected a.next = b, got %q", got)
	}

	// b becomes the child of a
	if err := env.client.Indent(ctx, "b", "a"); err != nil {
		t.Fatalf("Indent failed: %v", err)
	}
	a, err := env.client.Read(ctx, "a")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if outline.IDFromReference(node.Deref(a.Child)) != "b" || outline.IDFromReference(node.Deref(a.Next)) != "c" {
		t.Errorf("Unexpected pointers after indent: child=%v next=%v", a.Child, a.Next)
	}

	if err := env.client.Unindent(ctx, "b", "a"); err != nil {
		t.Fatalf("Unindent failed: %v", err)
	}
	if got := nextOf(t, env, "a"); got != "b" {
		t.Errorf("Expected a.next = b after unindent, got %q", got)
	}

	if err := env.client.Delete(ctx, "b", "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := nextOf(t, env, "a"); got != "c" {
		t.Errorf("Expected a.next = c after delete, got %q", got)
	}
}

func TestInvariantViolation(t *testing.T) {
	env := setupTestServer(t)
	seedChain(t, env, "a", "b", "c")

	err := env.client.Indent(context.Background(), "c", "a")
	if !errors.Is(err, outline.ErrInvariantViolation) {
		t.Fatalf("Expected invariant violation, got %v", err)
	}
	if status.Code(err) != codes.FailedPrecondition {
		t.Errorf("Expected FailedPrecondition, got %v", status.Code(err))
	}

	got := testutil.ToFloat64(env.metrics.OutlineEditsTotal.WithLabelValues("indent", "invariant_violation"))
	if got != 1 {
		t.Errorf("Expected 1 rejected indent, got %v", got)
	}
}

func TestUpdate(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	seedChain(t, env, "a", "b")

	n, err := env.client.Read(ctx, "a")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	n.Value.Body = node.TextBody{Text: "rewritten"}
	n.Next = nil

	updated, err := env.client.Update(ctx, n)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Value.Body != (node.TextBody{Text: "rewritten"}) || updated.Next != nil {
		t.Errorf("Unexpected update result: %#v", updated)
	}

	missing := node.New(textValue("ghost"))
	if _, err := env.client.Update(ctx, missing); !errors.Is(err, outline.ErrNotFound) {
		t.Errorf("Expected not found for unknown node, got %v", err)
	}
}

func TestAuthInterceptor(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	env := setupTestServerWithAuth(t, api.JWTAuthorizer(secret, ""))
	ctx := context.Background()

	// Seed through the manager; writes over gRPC need credentials.
	if _, err := env.mgr.Create(ctx, textValue("a")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := env.mgr.Add(ctx, textValue("b"), "a", false); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	claims := jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	if err := env.client.Delete(ctx, "b", "a"); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("Delete without credentials: expected Unauthenticated, got %v", err)
	}
	if _, err := env.client.Add(ctx, textValue("c"), "b", false); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("Add without credentials: expected Unauthenticated, got %v", err)
	}
	if err := env.client.Delete(WithCredentials(ctx, "u2", token), "b", "a"); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("Delete as another user: expected Unauthenticated, got %v", err)
	}

	// Reads stay open and the rejected delete changed nothing.
	if got := nextOf(t, env, "a"); got != "b" {
		t.Fatalf("Expected a.next = b after rejected delete, got %q", got)
	}

	if err := env.client.Delete(WithCredentials(ctx, "u1", token), "b", "a"); err != nil {
		t.Fatalf("Delete with credentials failed: %v", err)
	}
	if _, err := env.client.Read(ctx, "b"); !errors.Is(err, outline.ErrNotFound) {
		t.Fatalf("Expected b to be deleted, got %v", err)
	}

	rejected := testutil.ToFloat64(env.metrics.GrpcRequestsTotal.WithLabelValues(fullMethod("Delete"), codes.Unauthenticated.String()))
	if rejected != 2 {
		t.Errorf("Expected 2 rejected deletes recorded, got %v", rejected)
	}
}

func TestInterceptorRecordsRequests(t *testing.T) {
	env := setupTestServer(t)
	env.client.Read(context.Background(), "missing")

	got := testutil.ToFloat64(env.metrics.GrpcRequestsTotal.WithLabelValues(fullMethod("Read"), "NotFound"))
	if got != 1 {
		t.Errorf("Expected 1 NotFound read, got %v", got)
	}
	if !strings.Contains(env.logs.String(), `"method":"/outlinestore.v1.Outline/Read"`) {
		t.Errorf("Expected request log line, got %s", env.logs.String())
	}
	if testutil.ToFloat64(env.metrics.StoreOperationsTotal.WithLabelValues("read", "not_found")) != 1 {
		t.Error("Expected store read to be recorded as not_found")
	}
}

func TestInstrumentedStoreRecordCount(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	mem := store.NewMemory()
	st := NewInstrumentedStore(mem, m, nil)
	ctx := context.Background()

	if err := st.Commit(ctx, new(store.Batch).Save(node.New(textValue("a"))).Save(node.New(textValue("b")))); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	st.RefreshRecordCount(ctx)

	if got := testutil.ToFloat64(m.StoreRecordsTotal); got != 2 {
		t.Errorf("Expected 2 records, got %v", got)
	}
	if got := testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("commit", "success")); got != 1 {
		t.Errorf("Expected 1 commit, got %v", got)
	}
}

func TestObservabilityHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.RecordEdit("create", "ok")

	notReady := errors.New("store closed")
	ready := func(context.Context) error { return notReady }
	h := ObservabilityHandler(reg, ready)

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/health", http.StatusOK, `"healthy"`},
		{"/ready", http.StatusServiceUnavailable, "store closed"},
		{"/metrics", http.StatusOK, "outlinestore_outline_edits_total"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.code, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), tt.body) {
			t.Errorf("%s: expected body to contain %q, got %s", tt.path, tt.body, rec.Body.String())
		}
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{nil, codes.OK},
		{outline.ErrNotFound, codes.NotFound},
		{&outline.InvariantError{Op: "indent", ID: "x", Reason: "r"}, codes.FailedPrecondition},
		{outline.ErrInvalidArgument, codes.InvalidArgument},
		{context.Canceled, codes.Canceled},
		{errors.New("disk full"), codes.Internal},
		{status.Error(codes.Unauthenticated, "no"), codes.Unauthenticated},
	}
	for _, tt := range tests {
		if got := status.Code(toStatus(tt.err)); got != tt.code {
			t.Errorf("toStatus(%v) = %v, want %v", tt.err, got, tt.code)
		}
	}
}
