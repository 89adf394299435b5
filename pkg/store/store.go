// Package store defines the event record model and the persistence contracts
// shared by the remote client, the local cache and the fallback store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

// ErrNotFound reports that no event has the requested id.
var ErrNotFound = errors.New("event not found")

// Reserved JSON keys of an EventRecord. Everything else is a user field.
const (
	KeyID        = "id"
	KeyCreatedAt = "createdAt"
	KeyUpdatedAt = "updatedAt"
)

// EventRecord is one planned event. User-supplied fields are kept verbatim and
// serialized as siblings of the reserved keys.
type EventRecord struct {
	ID        string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MarshalJSON flattens Fields next to id/createdAt/updatedAt.
func (r EventRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	out[KeyID] = r.ID
	if !r.CreatedAt.IsZero() {
		out[KeyCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !r.UpdatedAt.IsZero() {
		out[KeyUpdatedAt] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts string or numeric ids and RFC 3339 timestamps.
func (r *EventRecord) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var rec EventRecord
	switch v := raw[KeyID].(type) {
	case nil:
	case string:
		rec.ID = v
	case float64:
		rec.ID = fmt.Sprintf("%.0f", v)
	default:
		return fmt.Errorf("event id: unsupported type %T", v)
	}
	var err error
	if rec.CreatedAt, err = parseTime(raw[KeyCreatedAt]); err != nil {
		return fmt.Errorf("createdAt: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(raw[KeyUpdatedAt]); err != nil {
		return fmt.Errorf("updatedAt: %w", err)
	}
	rec.Fields = UserFields(raw)
	*r = rec
	return nil
}

func parseTime(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// UserFields copies m without the reserved keys.
func UserFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case KeyID, KeyCreatedAt, KeyUpdatedAt:
			continue
		}
		out[k] = v
	}
	return out
}

// Clone returns a copy whose Fields map can be modified independently (shallow per value).
func (r EventRecord) Clone() EventRecord {
	r.Fields = maps.Clone(r.Fields)
	return r
}

// Merge applies updates over the record's fields and stamps UpdatedAt.
// Reserved keys in updates are ignored.
func (r EventRecord) Merge(updates map[string]any, at time.Time) EventRecord {
	out := r.Clone()
	if out.Fields == nil {
		out.Fields = make(map[string]any, len(updates))
	}
	for k, v := range UserFields(updates) {
		out.Fields[k] = v
	}
	out.UpdatedAt = at
	return out
}

// Equal reports whether two records carry the same id, fields and timestamps.
func (r EventRecord) Equal(o EventRecord) bool {
	a, errA := json.Marshal(r)
	b, errB := json.Marshal(o)
	return errA == nil && errB == nil && string(a) == string(b)
}

// Events is CRUD over event records.
type Events interface {
	List(ctx context.Context) ([]EventRecord, error)
	Get(ctx context.Context, id string) (EventRecord, error)
	Create(ctx context.Context, fields map[string]any) (EventRecord, error)
	Update(ctx context.Context, id string, updates map[string]any) (EventRecord, error)
	Delete(ctx context.Context, id string) error
}

// Cache is the durable local copy: the whole ordered list (newest first) under one key.
type Cache interface {
	Load(ctx context.Context) ([]EventRecord, error)
	Save(ctx context.Context, events []EventRecord) error
}

// Index returns the position of id in events, or -1.
func Index(events []EventRecord, id string) int {
	for i, e := range events {
		if e.ID == id {
			return i
		}
	}
	return -1
}
