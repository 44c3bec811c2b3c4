package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogkeeper886/mem0/internal/apperr"
)

// fakeQdrant is a small stateful stand-in for the Qdrant REST API.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]int
	creates     int
	points      map[string]map[string]Point
	requests    []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{collections: map[string]int{}, points: map[string]map[string]Point{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeQdrant) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})

	if r.URL.Path == "/healthz" {
		w.Write([]byte("healthz check passed"))
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/collections/"), "/")
	name := parts[0]
	_, exists := f.collections[name]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status":{"error":"Not found"}}`))
			return
		}
		writeResult(w, map[string]any{"status": "green"})

	case len(parts) == 1 && r.Method == http.MethodPut:
		if exists {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"status":{"error":"Collection already exists!"}}`))
			return
		}
		vectors := body["vectors"].(map[string]any)
		f.collections[name] = int(vectors["size"].(float64))
		f.points[name] = map[string]Point{}
		f.creates++
		writeResult(w, true)

	case !exists:
		w.WriteHeader(http.StatusNotFound)

	case parts[1] == "points" && len(parts) == 2:
		for _, raw := range body["points"].([]any) {
			p := raw.(map[string]any)
			key, ok := pointKey(p["id"])
			if !ok {
				writeBadPointID(w, p["id"])
				return
			}
			vec := []float32{}
			for _, v := range p["vector"].([]any) {
				vec = append(vec, float32(v.(float64)))
			}
			payload, _ := p["payload"].(map[string]any)
			f.points[name][key] = Point{ID: key, Vector: vec, Payload: payload}
		}
		writeResult(w, map[string]any{"status": "completed"})

	case parts[2] == "search":
		var out []map[string]any
		for _, p := range f.matching(name, body) {
			out = append(out, map[string]any{"id": p.ID, "score": 0.5, "payload": p.Payload})
		}
		writeResult(w, out)

	case parts[2] == "scroll":
		var out []map[string]any
		for _, p := range f.matching(name, body) {
			out = append(out, map[string]any{"id": p.ID, "payload": p.Payload})
		}
		writeResult(w, map[string]any{"points": out, "next_page_offset": nil})

	case parts[2] == "delete":
		if ids, ok := body["points"].([]any); ok {
			for _, id := range ids {
				if _, ok := pointKey(id); !ok {
					writeBadPointID(w, id)
					return
				}
			}
			for _, id := range ids {
				key, _ := pointKey(id)
				delete(f.points[name], key)
			}
		} else {
			for _, p := range f.matching(name, body) {
				delete(f.points[name], p.ID)
			}
		}
		writeResult(w, map[string]any{"status": "completed"})
	}
}

func (f *fakeQdrant) matching(name string, body map[string]any) []Point {
	var must []any
	if filter, ok := body["filter"].(map[string]any); ok {
		must, _ = filter["must"].([]any)
	}
	var out []Point
	for _, p := range f.points[name] {
		ok := true
		for _, raw := range must {
			c := raw.(map[string]any)
			want := c["match"].(map[string]any)["value"]
			if p.Payload[c["key"].(string)] != want {
				ok = false
			}
		}
		if ok {
			out = append(out, p)
		}
	}
	return out
}

// pointKey validates an id the way Qdrant does: a UUID string or an
// unsigned integer.
func pointKey(id any) (string, bool) {
	switch v := id.(type) {
	case string:
		u, err := uuid.Parse(v)
		if err != nil {
			return "", false
		}
		return u.String(), true
	case float64:
		if v < 0 || v != math.Trunc(v) {
			return "", false
		}
		return strconv.FormatUint(uint64(v), 10), true
	}
	return "", false
}

func writeBadPointID(w http.ResponseWriter, id any) {
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, `{"status":{"error":"Format error in JSON body: value %v is not a valid point ID, valid values are either an unsigned integer or a UUID at line 1 column 1"}}`, id)
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func TestQdrantClient_EnsureCollectionConcurrent(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	c := NewQdrantClient(srv.URL, nil)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.EnsureCollection(context.Background(), "memories", 768)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, fake.creates)
	assert.Equal(t, 768, fake.collections["memories"])
}

const (
	idA = "0b7f5c1e-2a44-4f0e-9c61-7d2a1b3c4d01"
	idB = "0b7f5c1e-2a44-4f0e-9c61-7d2a1b3c4d02"
	idC = "0b7f5c1e-2a44-4f0e-9c61-7d2a1b3c4d03"
)

func TestQdrantClient_PointLifecycle(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	c := NewQdrantClient(srv.URL+"/", nil)
	ctx := context.Background()

	require.NoError(t, c.HealthCheck(ctx))
	require.NoError(t, c.EnsureCollection(ctx, "mem", 2))

	points := []Point{
		{ID: idA, Vector: []float32{1, 0}, Payload: map[string]any{"user_id": "alice", "project_id": "p1"}},
		{ID: idB, Vector: []float32{0, 1}, Payload: map[string]any{"user_id": "alice", "project_id": "p2"}},
		{ID: idC, Vector: []float32{1, 1}, Payload: map[string]any{"user_id": "bob", "project_id": "p1"}},
	}
	require.NoError(t, c.Upsert(ctx, "mem", points))

	// Re-upserting an id overwrites it.
	require.NoError(t, c.Upsert(ctx, "mem", points[:1]))
	assert.Len(t, fake.points["mem"], 3)

	res, err := c.Search(ctx, "mem", []float32{1, 0}, Match("user_id", "alice").And("project_id", "p1"), 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, idA, res[0].ID)
	assert.Equal(t, "p1", res[0].Payload["project_id"])

	listed, err := c.Scroll(ctx, "mem", Match("user_id", "alice"), 100)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	require.NoError(t, c.DeleteByID(ctx, "mem", []string{"does-not-exist", "8d3f9c2e-0000-4000-8000-00000000dead"}))
	require.NoError(t, c.DeleteByFilter(ctx, "mem", Match("user_id", "alice")))
	assert.Len(t, fake.points["mem"], 1)
	assert.Contains(t, fake.points["mem"], idC)
}

func TestQdrantClient_DeleteByIDSkipsInvalidIDs(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	c := NewQdrantClient(srv.URL, nil)
	ctx := context.Background()
	require.NoError(t, c.EnsureCollection(ctx, "mem", 2))
	require.NoError(t, c.Upsert(ctx, "mem", []Point{
		{ID: idA, Vector: []float32{1, 0}, Payload: map[string]any{"user_id": "alice"}},
		{ID: idB, Vector: []float32{0, 1}, Payload: map[string]any{"user_id": "alice"}},
	}))

	deletes := func() []recordedRequest {
		var out []recordedRequest
		for _, r := range fake.requests {
			if strings.HasSuffix(r.Path, "/points/delete") {
				out = append(out, r)
			}
		}
		return out
	}

	// Ids Qdrant cannot parse never name a point, so nothing is sent.
	require.NoError(t, c.DeleteByID(ctx, "mem", []string{"nonexistent-id"}))
	assert.Empty(t, deletes())

	require.NoError(t, c.DeleteByID(ctx, "mem", []string{"nonexistent-id", strings.ToUpper(idA), "42"}))
	sent := deletes()
	require.Len(t, sent, 1)
	assert.Equal(t, []any{idA, float64(42)}, sent[0].Body["points"])
	assert.NotContains(t, fake.points["mem"], idA)
	assert.Contains(t, fake.points["mem"], idB)

	// Qdrant rejects a malformed id on write.
	err := c.Upsert(ctx, "mem", []Point{{ID: "not-a-uuid", Vector: []float32{1, 1}}})
	assert.True(t, apperr.IsKind(err, apperr.IndexUnavailable))
}

func TestQdrantClient_SearchRequestShape(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	c := NewQdrantClient(srv.URL, nil)
	ctx := context.Background()
	require.NoError(t, c.EnsureCollection(ctx, "mem", 2))

	_, err := c.Search(ctx, "mem", []float32{1, 0}, Match("user_id", "alice"), 7)
	require.NoError(t, err)
	_, err = c.Search(ctx, "mem", []float32{1, 0}, Filter{}, 3)
	require.NoError(t, err)

	var searches []recordedRequest
	for _, r := range fake.requests {
		if strings.HasSuffix(r.Path, "/points/search") {
			searches = append(searches, r)
		}
	}
	require.Len(t, searches, 2)

	filter := searches[0].Body["filter"].(map[string]any)
	must := filter["must"].([]any)
	require.Len(t, must, 1)
	cond := must[0].(map[string]any)
	assert.Equal(t, "user_id", cond["key"])
	assert.Equal(t, "alice", cond["match"].(map[string]any)["value"])
	assert.EqualValues(t, 7, searches[0].Body["limit"])
	assert.Equal(t, true, searches[0].Body["with_payload"])

	assert.NotContains(t, searches[1].Body, "filter")
}

func TestQdrantClient_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := NewQdrantClient(srv.URL, nil)
	ctx := context.Background()

	err := c.EnsureCollection(ctx, "mem", 4)
	assert.True(t, apperr.IsKind(err, apperr.IndexUnavailable))

	_, err = c.Search(ctx, "mem", []float32{1}, Filter{}, 1)
	assert.True(t, apperr.IsKind(err, apperr.IndexUnavailable))

	err = c.DeleteByFilter(ctx, "mem", Filter{})
	assert.True(t, apperr.IsKind(err, apperr.IndexUnavailable))

	srv.Close()
	assert.True(t, apperr.IsKind(c.HealthCheck(ctx), apperr.IndexUnavailable))
}

func TestFilter(t *testing.T) {
	base := Match("user_id", "alice")
	scoped := base.And("project_id", "p1")

	assert.False(t, base.Has("project_id"), "And must not mutate the receiver")
	assert.True(t, scoped.Has("project_id"))
	v, ok := scoped.Value("project_id")
	assert.True(t, ok)
	assert.Equal(t, "p1", v)
}
