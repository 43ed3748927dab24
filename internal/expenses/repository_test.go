package expenses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"spendbook/internal/core"
	"spendbook/internal/docstore"
	"spendbook/internal/docstore/memory"
	applog "spendbook/internal/log"
)

// fakeStore records calls and can be switched into a failing mode.
type fakeStore struct {
	mu      sync.Mutex
	docs    []docstore.Document
	fail    bool
	creates int
	deletes int
	lists   int
	nextID  int
}

func (f *fakeStore) List(_ context.Context, _ string) ([]docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.fail {
		return nil, errors.New("connection refused")
	}
	out := make([]docstore.Document, len(f.docs))
	copy(out, f.docs)
	return out, nil
}

func (f *fakeStore) Create(_ context.Context, _ string, fields docstore.Fields) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.fail {
		return "", errors.New("connection refused")
	}
	f.nextID++
	id := fmt.Sprintf("id-%d", f.nextID)
	f.docs = append(f.docs, docstore.Document{ID: id, Fields: fields.Clone()})
	return id, nil
}

func (f *fakeStore) Delete(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.fail {
		return errors.New("connection refused")
	}
	for i, d := range f.docs {
		if d.ID == id {
			f.docs = append(f.docs[:i], f.docs[i+1:]...)
			break
		}
	}
	return nil
}

type fakePublisher struct {
	created []string
	deleted []string
	err     error
}

func (p *fakePublisher) PublishExpenseCreated(_ context.Context, id string, _ core.Expense) error {
	p.created = append(p.created, id)
	return p.err
}

func (p *fakePublisher) PublishExpenseDeleted(_ context.Context, id string) error {
	p.deleted = append(p.deleted, id)
	return p.err
}

func newRepo(store docstore.Store, opts ...Option) *Repository {
	return NewRepository(store, append([]Option{WithLogger(applog.Discard())}, opts...)...)
}

func mustExpense(t *testing.T, amount string, c core.Category, note string, at time.Time) core.Expense {
	t.Helper()
	e, err := core.NewExpense(core.Input{Amount: amount, Category: string(c), Note: note}, at)
	if err != nil {
		t.Fatalf("new expense: %v", err)
	}
	return e
}

func TestCreateReturnsRefreshedList(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	repo := newRepo(store)
	at := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	items, err := repo.Create(ctx, mustExpense(t, "12.50", core.Food, "lunch", at))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	got := items[0]
	if got.ID != "id-1" || got.Amount != 12.5 || got.Category != core.Food || got.Note != "lunch" {
		t.Fatalf("unexpected expense: %+v", got)
	}
	if got.Date != "2025-03-10" || !got.FullDate.Equal(at) {
		t.Fatalf("unexpected dates: %q %v", got.Date, got.FullDate)
	}
	if store.lists != 1 {
		t.Fatalf("expected one re-fetch, got %d", store.lists)
	}
}

func TestCreateIgnoresCallerID(t *testing.T) {
	store := &fakeStore{}
	repo := newRepo(store)
	e := mustExpense(t, "1", core.Other, "", time.Now())
	e.ID = "chosen-by-caller"

	if _, err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := store.docs[0].Fields["id"]; ok {
		t.Fatalf("id must not be written as a field")
	}
	if store.docs[0].ID != "id-1" {
		t.Fatalf("store should assign id, got %q", store.docs[0].ID)
	}
}

func TestListSortsMostRecentFirst(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{docs: []docstore.Document{
		{ID: "old", Fields: docstore.Fields{"fullDate": core.FormatTimestamp(base)}},
		{ID: "undated", Fields: docstore.Fields{"amount": 3.0}},
		{ID: "new", Fields: docstore.Fields{"fullDate": core.FormatTimestamp(base.Add(48 * time.Hour))}},
		{ID: "garbage", Fields: docstore.Fields{"fullDate": "yesterday"}},
		{ID: "mid", Fields: docstore.Fields{"fullDate": base.Add(24 * time.Hour)}},
	}}

	items := newRepo(store).List(context.Background())

	want := []string{"new", "mid", "old", "undated", "garbage"}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Fatalf("position %d: got %q, want %q", i, items[i].ID, id)
		}
	}
}

func TestListKeepsStoreOrderForTies(t *testing.T) {
	ts := core.FormatTimestamp(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	store := &fakeStore{docs: []docstore.Document{
		{ID: "a", Fields: docstore.Fields{"fullDate": ts}},
		{ID: "b", Fields: docstore.Fields{"fullDate": ts}},
		{ID: "c", Fields: docstore.Fields{"fullDate": ts}},
	}}

	items := newRepo(store).List(context.Background())
	for i, id := range []string{"a", "b", "c"} {
		if items[i].ID != id {
			t.Fatalf("tie order changed: %+v", items)
		}
	}
}

func TestListNormalizesMissingFields(t *testing.T) {
	store := &fakeStore{docs: []docstore.Document{
		{ID: "num", Fields: docstore.Fields{"amount": json.Number("7.25"), "category": "Health"}},
		{ID: "str", Fields: docstore.Fields{"amount": "4.5"}},
		{ID: "int", Fields: docstore.Fields{"amount": int64(3)}},
		{ID: "bad", Fields: docstore.Fields{"amount": []int{1}, "note": 42}},
	}}

	items := newRepo(store).List(context.Background())
	byID := map[string]core.Expense{}
	for _, e := range items {
		byID[e.ID] = e
	}
	if byID["num"].Amount != 7.25 || byID["num"].Category != core.Health {
		t.Fatalf("unexpected num: %+v", byID["num"])
	}
	if byID["str"].Amount != 4.5 || byID["int"].Amount != 3 {
		t.Fatalf("unexpected amounts: %+v %+v", byID["str"], byID["int"])
	}
	bad := byID["bad"]
	if bad.Amount != 0 || bad.Note != "" || bad.Category != "" || !bad.FullDate.IsZero() {
		t.Fatalf("unexpected defaults: %+v", bad)
	}
}

func TestListSwallowsStoreFailure(t *testing.T) {
	repo := newRepo(&fakeStore{fail: true})
	items := repo.List(context.Background())
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", items)
	}
}

func TestMutationsReportStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{fail: true}
	repo := newRepo(store)

	items, err := repo.Create(ctx, mustExpense(t, "5", core.Food, "", time.Now()))
	if !errors.Is(err, docstore.ErrStoreUnavailable) {
		t.Fatalf("create: expected store unavailable, got %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("create: expected empty list, got %d", len(items))
	}

	items, err = repo.Delete(ctx, "x")
	if !errors.Is(err, docstore.ErrStoreUnavailable) {
		t.Fatalf("delete: expected store unavailable, got %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("delete: expected empty list, got %d", len(items))
	}
	if store.lists != 0 {
		t.Fatalf("failed mutations must not re-fetch, got %d lists", store.lists)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	repo := newRepo(store)
	at := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if _, err := repo.Create(ctx, mustExpense(t, "1", core.Food, "", at)); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Create(ctx, mustExpense(t, "2", core.Food, "", at.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	items, err := repo.Delete(ctx, "id-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(items) != 1 || items[0].ID != "id-2" {
		t.Fatalf("unexpected list after delete: %+v", items)
	}

	again, err := repo.Delete(ctx, "id-1")
	if err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if len(again) != 1 || again[0].ID != "id-2" {
		t.Fatalf("repeat delete changed the list: %+v", again)
	}
}

func TestPublisherReceivesEvents(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	repo := newRepo(&fakeStore{}, WithPublisher(pub))

	if _, err := repo.Create(ctx, mustExpense(t, "3", core.Transport, "bus", time.Now())); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Delete(ctx, "id-1"); err != nil {
		t.Fatal(err)
	}
	if len(pub.created) != 1 || pub.created[0] != "id-1" {
		t.Fatalf("unexpected created events: %v", pub.created)
	}
	if len(pub.deleted) != 1 || pub.deleted[0] != "id-1" {
		t.Fatalf("unexpected deleted events: %v", pub.deleted)
	}
}

func TestPublisherFailureDoesNotFailMutation(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	var buf bytes.Buffer
	repo := newRepo(&fakeStore{}, WithPublisher(pub), WithLogger(applog.New(applog.Config{Output: &buf})))

	items, err := repo.Create(context.Background(), mustExpense(t, "3", core.Food, "", time.Now()))
	if err != nil {
		t.Fatalf("create should succeed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if out := buf.String(); !strings.Contains(out, "operation=publish") || !strings.Contains(out, "broker down") {
		t.Fatalf("publish failure not logged: %s", out)
	}
}

func TestRepositoryOverMemoryStore(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(memory.New())
	at := time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)

	items, err := repo.Create(ctx, mustExpense(t, "10.50", core.Food, "bread", at))
	if err != nil {
		t.Fatal(err)
	}
	items, err = repo.Create(ctx, mustExpense(t, "20", core.Shopping, "", at.Add(time.Hour)))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].Category != core.Shopping {
		t.Fatalf("unexpected list: %+v", items)
	}

	sum := core.Filter(items, core.Criteria{Category: core.Category("Food"), Range: core.AllTime}, at)
	if sum.TotalString() != "10.50" {
		t.Fatalf("food total = %s", sum.TotalString())
	}
}
