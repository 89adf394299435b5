package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/wilhg/eventmarketer/pkg/errmodel"
	"github.com/wilhg/eventmarketer/pkg/store"
	"github.com/wilhg/eventmarketer/pkg/store/fallback"
)

// EventService is event CRUD that reports the backend which served each call.
// *fallback.Store implements it.
type EventService interface {
	List(ctx context.Context) ([]store.EventRecord, fallback.Backend, error)
	Get(ctx context.Context, id string) (store.EventRecord, fallback.Backend, error)
	Create(ctx context.Context, fields map[string]any) (store.EventRecord, fallback.Backend, error)
	Update(ctx context.Context, id string, updates map[string]any) (store.EventRecord, fallback.Backend, error)
	Delete(ctx context.Context, id string) (fallback.Backend, error)
}

// ServedByHeader names the backend (remote or local) that answered.
const ServedByHeader = "X-Served-By"

var eventBodySchema = mustCompileSchema("mem://event-body.json", `{"type": "object"}`)

// Events serves /events CRUD in the same {"data": ...} shape as the remote API.
type Events struct {
	svc EventService
	log *slog.Logger
}

func NewEvents(svc EventService, log *slog.Logger) *Events {
	if log == nil {
		log = slog.Default()
	}
	return &Events{svc: svc, log: log.With("component", "events")}
}

// Register mounts the collection at prefix (e.g. /api/events) and items at prefix/{id}.
func (e *Events) Register(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("GET "+prefix, e.list)
	mux.HandleFunc("POST "+prefix, e.create)
	mux.HandleFunc("GET "+prefix+"/{id}", e.get)
	mux.HandleFunc("PUT "+prefix+"/{id}", e.update)
	mux.HandleFunc("DELETE "+prefix+"/{id}", e.delete)
}

func (e *Events) list(w http.ResponseWriter, r *http.Request) {
	events, backend, err := e.svc.List(r.Context())
	e.respond(w, r, http.StatusOK, backend, events, err)
}

func (e *Events) get(w http.ResponseWriter, r *http.Request) {
	rec, backend, err := e.svc.Get(r.Context(), r.PathValue("id"))
	e.respond(w, r, http.StatusOK, backend, rec, err)
}

func (e *Events) create(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := decodeBody(r, eventBodySchema, &fields); err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	rec, backend, err := e.svc.Create(r.Context(), fields)
	e.respond(w, r, http.StatusCreated, backend, rec, err)
}

func (e *Events) update(w http.ResponseWriter, r *http.Request) {
	var updates map[string]any
	if err := decodeBody(r, eventBodySchema, &updates); err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	rec, backend, err := e.svc.Update(r.Context(), r.PathValue("id"), updates)
	e.respond(w, r, http.StatusOK, backend, rec, err)
}

func (e *Events) delete(w http.ResponseWriter, r *http.Request) {
	backend, err := e.svc.Delete(r.Context(), r.PathValue("id"))
	e.respond(w, r, http.StatusOK, backend, true, err)
}

func (e *Events) respond(w http.ResponseWriter, r *http.Request, status int, backend fallback.Backend, data any, err error) {
	if backend != "" {
		w.Header().Set(ServedByHeader, string(backend))
	}
	if err != nil {
		if !errmodel.IsCode(err, "not_found") {
			e.log.ErrorContext(r.Context(), "event operation failed", "method", r.Method, "path", r.URL.Path, "error", err)
		}
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, status, map[string]any{"data": data})
}
