package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	fs "google.golang.org/api/firestore/v1"

	"spendbook/internal/docstore"
)

const testParent = "projects/demo/databases/(default)/documents"

// fakeFirestore serves the subset of the v1 REST API the store uses. It keeps
// documents as the JSON objects it received so tests can inspect the wire
// form.
type fakeFirestore struct {
	mu       sync.Mutex
	docs     []map[string]any
	next     int
	pageSize int
	fail     bool
	deletes  []string
}

func (f *fakeFirestore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		http.Error(w, `{"error":{"code":503,"message":"unavailable","status":"UNAVAILABLE"}}`, http.StatusServiceUnavailable)
		return
	}

	collectionPath := "/v1/" + testParent + "/expenses"
	switch {
	case r.Method == http.MethodGet && r.URL.Path == collectionPath:
		f.list(w, r)
	case r.Method == http.MethodPost && r.URL.Path == collectionPath:
		f.create(w, r)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, collectionPath+"/"):
		name := strings.TrimPrefix(r.URL.Path, "/v1/")
		f.deletes = append(f.deletes, name)
		for i, d := range f.docs {
			if d["name"] == name {
				f.docs = append(f.docs[:i], f.docs[i+1:]...)
				break
			}
		}
		_, _ = w.Write([]byte(`{}`))
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	}
}

func (f *fakeFirestore) list(w http.ResponseWriter, r *http.Request) {
	start := 0
	if tok := r.URL.Query().Get("pageToken"); tok != "" {
		fmt.Sscanf(tok, "page-%d", &start)
	}
	size := f.pageSize
	if size <= 0 {
		size = len(f.docs)
	}
	end := start + size
	if end > len(f.docs) {
		end = len(f.docs)
	}
	resp := map[string]any{"documents": f.docs[start:end]}
	if end < len(f.docs) {
		resp["nextPageToken"] = fmt.Sprintf("page-%d", end)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeFirestore) create(w http.ResponseWriter, r *http.Request) {
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.next++
	doc["name"] = fmt.Sprintf("%s/expenses/doc%03d", testParent, f.next)
	f.docs = append(f.docs, doc)
	_ = json.NewEncoder(w).Encode(doc)
}

// wireField returns the JSON value sent for a field of the i-th document.
func (f *fakeFirestore) wireField(i int, name string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields, _ := f.docs[i]["fields"].(map[string]any)
	v, _ := fields[name].(map[string]any)
	return v
}

func newTestStore(t *testing.T, fake *fakeFirestore) *Store {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s, err := New(context.Background(), Config{
		ProjectID:    "demo",
		EmulatorHost: strings.TrimPrefix(srv.URL, "http://"),
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestStoreCreateListDelete(t *testing.T) {
	ctx := context.Background()
	fake := &fakeFirestore{}
	s := newTestStore(t, fake)

	id, err := s.Create(ctx, "expenses", docstore.Fields{
		"amount":   10.5,
		"category": "Food",
		"note":     "",
		"date":     "2025-03-01",
		"fullDate": "2025-03-01T12:00:00.000Z",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "doc001" {
		t.Fatalf("id = %q, want doc001", id)
	}

	docs, err := s.List(ctx, "expenses")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "doc001" {
		t.Fatalf("unexpected documents: %+v", docs)
	}
	got := docs[0].Fields
	if got["amount"] != 10.5 || got["category"] != "Food" || got["fullDate"] != "2025-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected fields: %#v", got)
	}
	if note, ok := got["note"]; !ok || note != "" {
		t.Fatalf("empty note should round-trip as \"\", got %#v (present=%v)", note, ok)
	}
	if wire := fake.wireField(0, "note"); wire == nil || wire["stringValue"] != "" {
		t.Fatalf("empty note should be sent as a typed string, got %#v", wire)
	}

	if err := s.Delete(ctx, "expenses", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "expenses", id); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if len(fake.deletes) != 2 || fake.deletes[0] != testParent+"/expenses/doc001" {
		t.Fatalf("unexpected delete calls: %v", fake.deletes)
	}
	docs, _ = s.List(ctx, "expenses")
	if len(docs) != 0 {
		t.Fatalf("expected empty collection, got %+v", docs)
	}
}

func TestStoreListFollowsPages(t *testing.T) {
	ctx := context.Background()
	fake := &fakeFirestore{pageSize: 2}
	s := newTestStore(t, fake)
	for i := 0; i < 5; i++ {
		if _, err := s.Create(ctx, "expenses", docstore.Fields{"amount": int64(i + 1)}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	docs, err := s.List(ctx, "expenses")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 5 {
		t.Fatalf("expected all 5 documents across pages, got %d", len(docs))
	}
	for i, d := range docs {
		if d.Fields["amount"] != int64(i+1) {
			t.Fatalf("doc %d amount = %#v", i, d.Fields["amount"])
		}
	}
}

func TestStoreErrorsAreUnavailable(t *testing.T) {
	ctx := context.Background()
	fake := &fakeFirestore{fail: true}
	s := newTestStore(t, fake)

	if _, err := s.List(ctx, "expenses"); !errors.Is(err, docstore.ErrStoreUnavailable) {
		t.Fatalf("list: expected store unavailable, got %v", err)
	}
	if _, err := s.Create(ctx, "expenses", docstore.Fields{"amount": 1.0}); !errors.Is(err, docstore.ErrStoreUnavailable) {
		t.Fatalf("create: expected store unavailable, got %v", err)
	}
	if err := s.Delete(ctx, "expenses", "x"); !errors.Is(err, docstore.ErrStoreUnavailable) {
		t.Fatalf("delete: expected store unavailable, got %v", err)
	}
}

func TestStoreRejectsPathLikeIDs(t *testing.T) {
	s := newTestStore(t, &fakeFirestore{})
	for _, id := range []string{"", "a/b"} {
		if err := s.Delete(context.Background(), "expenses", id); err == nil {
			t.Fatalf("%q expected error", id)
		}
	}
}

func TestNewRequiresProject(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without project id")
	}
}

func TestValueConversion(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	in := docstore.Fields{
		"s":   "text",
		"f":   2.5,
		"i":   int64(7),
		"n":   json.Number("3"),
		"b":   true,
		"t":   ts,
		"nil": nil,
	}
	values, err := encodeFields(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if values["n"].IntegerValue != 3 {
		t.Fatalf("json.Number should encode as integer: %+v", values["n"])
	}

	out := decodeFields(values)
	if out["s"] != "text" || out["f"] != 2.5 || out["i"] != int64(7) || out["n"] != int64(3) || out["b"] != true {
		t.Fatalf("unexpected round trip: %#v", out)
	}
	if got, ok := out["t"].(time.Time); !ok || !got.Equal(ts) {
		t.Fatalf("timestamp = %#v", out["t"])
	}
	if v, ok := out["nil"]; !ok || v != nil {
		t.Fatalf("null = %#v (present=%v)", v, ok)
	}

	if _, err := encodeFields(docstore.Fields{"bad": []string{"x"}}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
	if got := decodeFields(map[string]fs.Value{"m": {MapValue: &fs.MapValue{}}}); len(got) != 0 {
		t.Fatalf("unsupported kinds should be dropped: %#v", got)
	}
}

func TestZeroScalarsKeepTheirKind(t *testing.T) {
	tests := []struct {
		name string
		in   any
		key  string
	}{
		{"empty string", "", "stringValue"},
		{"zero double", 0.0, "doubleValue"},
		{"zero integer", int64(0), "integerValue"},
		{"false", false, "booleanValue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := encodeValue(tt.in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			raw, err := json.Marshal(v)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var wire map[string]any
			if err := json.Unmarshal(raw, &wire); err != nil {
				t.Fatalf("unmarshal %s: %v", raw, err)
			}
			if _, ok := wire[tt.key]; !ok {
				t.Fatalf("wire form %s lacks %s", raw, tt.key)
			}
		})
	}
}

func TestDecodeEmptyValue(t *testing.T) {
	out := decodeFields(map[string]fs.Value{
		"note":   {StringValue: ""},
		"amount": {DoubleValue: 0},
	})
	if v, ok := out["note"]; !ok || v != "" {
		t.Fatalf("note = %#v (present=%v)", v, ok)
	}
	if _, ok := out["amount"]; !ok {
		t.Fatalf("zero amount should be kept")
	}
}

func TestDocumentID(t *testing.T) {
	if got := documentID(testParent + "/expenses/abc"); got != "abc" {
		t.Fatalf("documentID = %q", got)
	}
	if got := documentID("plain"); got != "plain" {
		t.Fatalf("documentID = %q", got)
	}
}
