package fallback

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/wilhg/eventmarketer/pkg/errmodel"
	"github.com/wilhg/eventmarketer/pkg/store"
	"github.com/wilhg/eventmarketer/pkg/store/sqlstore"
)

// memCache is a store.Cache held in memory.
type memCache struct {
	mu     sync.Mutex
	events []store.EventRecord
	saves  int
}

func (c *memCache) Load(context.Context) ([]store.EventRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]store.EventRecord, len(c.events))
	for i, e := range c.events {
		out[i] = e.Clone()
	}
	return out, nil
}

func (c *memCache) Save(_ context.Context, events []store.EventRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = slices.Clone(events)
	c.saves++
	return nil
}

func (c *memCache) snapshot() []store.EventRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.events)
}

var errDown = errors.New("connection refused")

// fakeRemote is an in-memory remote events API.
type fakeRemote struct {
	mu      sync.Mutex
	down    bool // probe fails
	failOps bool // probe succeeds but every operation fails
	events  []store.EventRecord
	seq     int
	probes  int
	now     time.Time
}

func (r *fakeRemote) Probe(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes++
	if r.down {
		return errDown
	}
	return nil
}

func (r *fakeRemote) fail() error {
	if r.down || r.failOps {
		return errDown
	}
	return nil
}

func (r *fakeRemote) List(context.Context) ([]store.EventRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return nil, err
	}
	return slices.Clone(r.events), nil
}

func (r *fakeRemote) Get(_ context.Context, id string) (store.EventRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return store.EventRecord{}, err
	}
	if i := store.Index(r.events, id); i >= 0 {
		return r.events[i], nil
	}
	return store.EventRecord{}, store.ErrNotFound
}

func (r *fakeRemote) Create(_ context.Context, fields map[string]any) (store.EventRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return store.EventRecord{}, err
	}
	r.seq++
	rec := store.EventRecord{ID: fmt.Sprintf("srv-%d", r.seq), Fields: store.UserFields(fields), CreatedAt: r.now, UpdatedAt: r.now}
	r.events = slices.Insert(r.events, 0, rec)
	return rec, nil
}

func (r *fakeRemote) Update(_ context.Context, id string, updates map[string]any) (store.EventRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return store.EventRecord{}, err
	}
	i := store.Index(r.events, id)
	if i < 0 {
		return store.EventRecord{}, store.ErrNotFound
	}
	r.events[i] = r.events[i].Merge(updates, r.now)
	return r.events[i], nil
}

func (r *fakeRemote) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	i := store.Index(r.events, id)
	if i < 0 {
		return store.ErrNotFound
	}
	r.events = slices.Delete(r.events, i, i+1)
	return nil
}

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newStore(remote Remote, cache store.Cache) *Store {
	n := 0
	return New(remote, cache,
		WithClock(func() time.Time { return t0 }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("local-%d", n) }),
	)
}

func TestCreateThenGet_Remote(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{now: t0}
	cache := &memCache{}
	s := newStore(remote, cache)

	created, backend, err := s.Create(ctx, map[string]any{"title": "Tech Summit"})
	if err != nil || backend != BackendRemote {
		t.Fatalf("create: backend=%s err=%v", backend, err)
	}
	if created.ID != "srv-1" {
		t.Fatalf("server id not used: %+v", created)
	}
	got, backend, err := s.Get(ctx, created.ID)
	if err != nil || backend != BackendRemote || !got.Equal(created) {
		t.Fatalf("get: %+v backend=%s err=%v", got, backend, err)
	}
	if c := cache.snapshot(); len(c) != 1 || !c[0].Equal(created) {
		t.Fatalf("cache not mirrored: %+v", c)
	}
}

func TestCreateThenGet_LocalWhenProbeFails(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{down: true}
	cache := &memCache{}
	s := newStore(remote, cache)

	created, backend, err := s.Create(ctx, map[string]any{"title": "Offline Meetup", "id": "ignored"})
	if err != nil || backend != BackendLocal {
		t.Fatalf("create: backend=%s err=%v", backend, err)
	}
	if created.ID != "local-1" || !created.CreatedAt.Equal(t0) || !created.UpdatedAt.Equal(t0) {
		t.Fatalf("local record: %+v", created)
	}
	if _, ok := created.Fields["id"]; ok {
		t.Fatal("reserved key kept in fields")
	}
	got, backend, err := s.Get(ctx, created.ID)
	if err != nil || backend != BackendLocal || !got.Equal(created) {
		t.Fatalf("get: %+v backend=%s err=%v", got, backend, err)
	}
}

func TestCreate_NewestFirst(t *testing.T) {
	ctx := context.Background()
	cache := &memCache{}
	s := newStore(nil, cache)
	for _, title := range []string{"a", "b", "c"} {
		if _, _, err := s.Create(ctx, map[string]any{"title": title}); err != nil {
			t.Fatal(err)
		}
	}
	events, backend, err := s.List(ctx)
	if err != nil || backend != BackendLocal {
		t.Fatalf("list: backend=%s err=%v", backend, err)
	}
	if len(events) != 3 || events[0].Fields["title"] != "c" || events[2].Fields["title"] != "a" {
		t.Fatalf("order: %+v", events)
	}
}

func TestCreate_RemoteWriteFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{failOps: true}
	cache := &memCache{}
	s := newStore(remote, cache)
	rec, backend, err := s.Create(ctx, map[string]any{"title": "x"})
	if err != nil || backend != BackendLocal || rec.ID != "local-1" {
		t.Fatalf("create: %+v backend=%s err=%v", rec, backend, err)
	}
}

func TestList_RemoteResyncsCache(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{events: []store.EventRecord{{ID: "r2"}, {ID: "r1"}}}
	cache := &memCache{events: []store.EventRecord{{ID: "stale"}}}
	s := newStore(remote, cache)

	events, backend, err := s.List(ctx)
	if err != nil || backend != BackendRemote || len(events) != 2 {
		t.Fatalf("list: %+v backend=%s err=%v", events, backend, err)
	}
	c := cache.snapshot()
	if len(c) != 2 || c[0].ID != "r2" || c[1].ID != "r1" {
		t.Fatalf("cache not resynced: %+v", c)
	}

	// remote goes away: the cache answers with the last known state
	remote.mu.Lock()
	remote.down = true
	remote.mu.Unlock()
	events, backend, err = s.List(ctx)
	if err != nil || backend != BackendLocal || len(events) != 2 {
		t.Fatalf("offline list: %+v backend=%s err=%v", events, backend, err)
	}
}

func TestList_RemoteReadFailureAfterLiveProbe(t *testing.T) {
	remote := &fakeRemote{failOps: true}
	cache := &memCache{events: []store.EventRecord{{ID: "cached"}}}
	s := newStore(remote, cache)
	events, backend, err := s.List(context.Background())
	if err != nil || backend != BackendLocal || len(events) != 1 || events[0].ID != "cached" {
		t.Fatalf("list: %+v backend=%s err=%v", events, backend, err)
	}
}

func TestProbeRunsEveryOperation(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{down: true}
	s := newStore(remote, &memCache{})
	if _, _, err := s.List(ctx); err != nil {
		t.Fatal(err)
	}
	// remote recovers between calls: the next call must use it without any reset
	remote.mu.Lock()
	remote.down = false
	remote.mu.Unlock()
	if _, backend, err := s.Create(ctx, map[string]any{"title": "x"}); err != nil || backend != BackendRemote {
		t.Fatalf("create after recovery: backend=%s err=%v", backend, err)
	}
	if remote.probes != 2 {
		t.Fatalf("probes=%d want 2", remote.probes)
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	later := t0.Add(time.Hour)
	cache := &memCache{events: []store.EventRecord{
		{ID: "b", Fields: map[string]any{"title": "B"}, CreatedAt: t0, UpdatedAt: t0},
		{ID: "a", Fields: map[string]any{"title": "A", "venue": "hall"}, CreatedAt: t0, UpdatedAt: t0},
	}}
	s := New(nil, cache, WithClock(func() time.Time { return later }))

	got, backend, err := s.Update(ctx, "a", map[string]any{"title": "A2"})
	if err != nil || backend != BackendLocal {
		t.Fatalf("update: backend=%s err=%v", backend, err)
	}
	if got.Fields["title"] != "A2" || got.Fields["venue"] != "hall" || !got.UpdatedAt.Equal(later) || !got.CreatedAt.Equal(t0) {
		t.Fatalf("merged: %+v", got)
	}
	c := cache.snapshot()
	if c[1].ID != "a" || !c[1].Equal(got) {
		t.Fatalf("not replaced in place: %+v", c)
	}

	if _, _, err := s.Update(ctx, "missing", map[string]any{"title": "x"}); !errors.Is(err, store.ErrNotFound) || !errmodel.IsCode(err, "not_found") {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestUpdate_RemoteMirrorsInPlace(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{now: t0}
	cache := &memCache{}
	s := newStore(remote, cache)
	a, _, _ := s.Create(ctx, map[string]any{"title": "A"})
	b, _, _ := s.Create(ctx, map[string]any{"title": "B"})

	got, backend, err := s.Update(ctx, a.ID, map[string]any{"title": "A2"})
	if err != nil || backend != BackendRemote || got.Fields["title"] != "A2" {
		t.Fatalf("update: %+v backend=%s err=%v", got, backend, err)
	}
	c := cache.snapshot()
	if len(c) != 2 || c[0].ID != b.ID || c[1].Fields["title"] != "A2" {
		t.Fatalf("cache: %+v", c)
	}
	if _, _, err := s.Update(ctx, "nope", nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	for _, remote := range []*fakeRemote{nil, {now: t0}} {
		cache := &memCache{}
		var s *Store
		if remote == nil {
			s = newStore(nil, cache)
		} else {
			s = newStore(remote, cache)
		}
		rec, _, err := s.Create(ctx, map[string]any{"title": "x"})
		if err != nil {
			t.Fatal(err)
		}
		keep, _, _ := s.Create(ctx, map[string]any{"title": "y"})

		before := cache.snapshot()
		saves := cache.saves
		if _, err := s.Delete(ctx, "unknown"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("want not found, got %v", err)
		}
		if cache.saves != saves || len(cache.snapshot()) != len(before) {
			t.Fatal("failed delete touched the cache")
		}

		if _, err := s.Delete(ctx, rec.ID); err != nil {
			t.Fatal(err)
		}
		c := cache.snapshot()
		if len(c) != 1 || c[0].ID != keep.ID {
			t.Fatalf("cache after delete: %+v", c)
		}
		if _, _, err := s.Get(ctx, rec.ID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("deleted record still readable: %v", err)
		}
	}
}

func TestConcurrentLocalCreatesLoseNothing(t *testing.T) {
	ctx := context.Background()
	cache := &memCache{}
	s := New(nil, cache)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.Create(ctx, map[string]any{"n": i}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if n := len(cache.snapshot()); n != 20 {
		t.Fatalf("cache has %d records, want 20", n)
	}
}

func TestSQLiteCacheBackedStore(t *testing.T) {
	ctx := t.Context()
	cache, err := sqlstore.Open(ctx, "sqlite:file:fallback?mode=memory&cache=shared&_pragma=busy_timeout(5000)", "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	if err := cache.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	s := New(&fakeRemote{down: true}, cache)
	rec, backend, err := s.Create(ctx, map[string]any{"title": "Durable"})
	if err != nil || backend != BackendLocal {
		t.Fatalf("create: backend=%s err=%v", backend, err)
	}
	got, _, err := s.Get(ctx, rec.ID)
	if err != nil || !got.Equal(rec) {
		t.Fatalf("get: %+v err=%v", got, err)
	}
}
