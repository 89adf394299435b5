// Package fallback provides event CRUD that prefers the remote events API and
// falls back to the durable local cache when the remote is unreachable.
//
// Every operation probes the remote first. The probe result is a value scoped
// to that one operation; nothing about liveness is remembered between calls.
package fallback

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wilhg/eventmarketer/pkg/errmodel"
	"github.com/wilhg/eventmarketer/pkg/store"
)

// Backend names the path that served an operation.
type Backend string

const (
	BackendRemote Backend = "remote"
	BackendLocal  Backend = "local"
)

// Remote is the remote events API plus its liveness probe. *remote.Client implements it.
type Remote interface {
	store.Events
	Probe(ctx context.Context) error
}

// Store is the two-stage event store.
type Store struct {
	remote Remote
	cache  store.Cache
	log    *slog.Logger
	now    func() time.Time
	newID  func() string

	// mu guards every read-modify-write of the cache.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source used for locally minted records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the local id source (UUIDv7 by default).
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New builds a Store. A nil remote means every operation is served locally.
func New(remote Remote, cache store.Cache, opts ...Option) *Store {
	s := &Store{
		remote: remote,
		cache:  cache,
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  newTimeOrderedID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "eventstore")
	return s
}

func newTimeOrderedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// probe decides which backend serves the current operation.
func (s *Store) probe(ctx context.Context) Backend {
	if s.remote == nil {
		return BackendLocal
	}
	if err := s.remote.Probe(ctx); err != nil {
		s.log.DebugContext(ctx, "remote probe failed; using local cache", "error", err)
		return BackendLocal
	}
	return BackendRemote
}

// List returns all events, newest first.
func (s *Store) List(ctx context.Context) ([]store.EventRecord, Backend, error) {
	if s.probe(ctx) == BackendRemote {
		events, err := s.remote.List(ctx)
		if err == nil {
			s.mu.Lock()
			if serr := s.cache.Save(ctx, events); serr != nil {
				s.log.WarnContext(ctx, "cache resync failed", "error", serr)
			}
			s.mu.Unlock()
			return events, BackendRemote, nil
		}
		s.log.WarnContext(ctx, "remote list failed; reading local cache", "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.cache.Load(ctx)
	if err != nil {
		return nil, BackendLocal, cacheError(err)
	}
	return events, BackendLocal, nil
}

// Get returns one event by id.
func (s *Store) Get(ctx context.Context, id string) (store.EventRecord, Backend, error) {
	if s.probe(ctx) == BackendRemote {
		rec, err := s.remote.Get(ctx, id)
		switch {
		case err == nil:
			s.mirror(ctx, func(events []store.EventRecord) []store.EventRecord { return upsert(events, rec, false) })
			return rec, BackendRemote, nil
		case errors.Is(err, store.ErrNotFound):
			return store.EventRecord{}, BackendRemote, notFound(id)
		default:
			s.log.WarnContext(ctx, "remote get failed; reading local cache", "id", id, "error", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.cache.Load(ctx)
	if err != nil {
		return store.EventRecord{}, BackendLocal, cacheError(err)
	}
	i := store.Index(events, id)
	if i < 0 {
		return store.EventRecord{}, BackendLocal, notFound(id)
	}
	return events[i], BackendLocal, nil
}

// Create stores a new event. The remote assigns the id when live; otherwise a
// time-ordered id is minted and both timestamps are set to now.
func (s *Store) Create(ctx context.Context, fields map[string]any) (store.EventRecord, Backend, error) {
	if s.probe(ctx) == BackendRemote {
		rec, err := s.remote.Create(ctx, fields)
		if err == nil {
			s.mirror(ctx, func(events []store.EventRecord) []store.EventRecord { return upsert(events, rec, true) })
			return rec, BackendRemote, nil
		}
		s.log.WarnContext(ctx, "remote create failed; creating locally", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.cache.Load(ctx)
	if err != nil {
		return store.EventRecord{}, BackendLocal, cacheError(err)
	}
	id := s.newID()
	for store.Index(events, id) >= 0 {
		id = s.newID()
	}
	at := s.now()
	rec := store.EventRecord{ID: id, Fields: store.UserFields(fields), CreatedAt: at, UpdatedAt: at}
	if err := s.cache.Save(ctx, slices.Insert(events, 0, rec)); err != nil {
		return store.EventRecord{}, BackendLocal, cacheError(err)
	}
	return rec, BackendLocal, nil
}

// Update merges updates into the event and refreshes UpdatedAt.
func (s *Store) Update(ctx context.Context, id string, updates map[string]any) (store.EventRecord, Backend, error) {
	if s.probe(ctx) == BackendRemote {
		rec, err := s.remote.Update(ctx, id, updates)
		switch {
		case err == nil:
			s.mirror(ctx, func(events []store.EventRecord) []store.EventRecord { return upsert(events, rec, true) })
			return rec, BackendRemote, nil
		case errors.Is(err, store.ErrNotFound):
			return store.EventRecord{}, BackendRemote, notFound(id)
		default:
			s.log.WarnContext(ctx, "remote update failed; updating locally", "id", id, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.cache.Load(ctx)
	if err != nil {
		return store.EventRecord{}, BackendLocal, cacheError(err)
	}
	i := store.Index(events, id)
	if i < 0 {
		return store.EventRecord{}, BackendLocal, notFound(id)
	}
	events[i] = events[i].Merge(updates, s.now())
	if err := s.cache.Save(ctx, events); err != nil {
		return store.EventRecord{}, BackendLocal, cacheError(err)
	}
	return events[i], BackendLocal, nil
}

// Delete removes the event. Unknown ids fail and leave the cache unchanged.
func (s *Store) Delete(ctx context.Context, id string) (Backend, error) {
	if s.probe(ctx) == BackendRemote {
		err := s.remote.Delete(ctx, id)
		switch {
		case err == nil:
			s.mirror(ctx, func(events []store.EventRecord) []store.EventRecord { return remove(events, id) })
			return BackendRemote, nil
		case errors.Is(err, store.ErrNotFound):
			return BackendRemote, notFound(id)
		default:
			s.log.WarnContext(ctx, "remote delete failed; deleting locally", "id", id, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.cache.Load(ctx)
	if err != nil {
		return BackendLocal, cacheError(err)
	}
	if store.Index(events, id) < 0 {
		return BackendLocal, notFound(id)
	}
	if err := s.cache.Save(ctx, remove(events, id)); err != nil {
		return BackendLocal, cacheError(err)
	}
	return BackendLocal, nil
}

// mirror applies a remote outcome to the cache. The remote already succeeded,
// so cache failures are logged rather than returned.
func (s *Store) mirror(ctx context.Context, apply func([]store.EventRecord) []store.EventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.cache.Load(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "cache mirror load failed", "error", err)
		return
	}
	if err := s.cache.Save(ctx, apply(events)); err != nil {
		s.log.WarnContext(ctx, "cache mirror save failed", "error", err)
	}
}

// upsert replaces rec in place, or inserts it (at the front when front is set, else at the back).
func upsert(events []store.EventRecord, rec store.EventRecord, front bool) []store.EventRecord {
	if i := store.Index(events, rec.ID); i >= 0 {
		events[i] = rec
		return events
	}
	if front {
		return slices.Insert(events, 0, rec)
	}
	return append(events, rec)
}

func remove(events []store.EventRecord, id string) []store.EventRecord {
	return slices.DeleteFunc(events, func(e store.EventRecord) bool { return e.ID == id })
}

func notFound(id string) error {
	return errmodel.NotFound("Event not found", map[string]any{"id": id}, store.ErrNotFound)
}

func cacheError(err error) error {
	return errmodel.Store("cache_unavailable", "local event cache failed", nil, err)
}
