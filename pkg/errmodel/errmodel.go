package errmodel

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Category values for compact errors.
const (
	CategoryValidation = "validation"
	CategoryUpstream   = "upstream"
	CategoryStore      = "store"
	CategorySystem     = "system"
)

// Error is the compact error payload returned by APIs and used internally.
// It implements the error interface.
type Error struct {
	Category string         `json:"category"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
	Causes   []Error        `json:"causes,omitempty"`

	// wrapped is the first non-compact cause, kept for errors.Is/As.
	wrapped error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap exposes the original cause so sentinel errors survive conversion.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.wrapped
}

// Detail returns the message followed by the messages of its causes.
// This is the string surfaced as "error" in failure envelopes.
func (e *Error) Detail() string {
	if e == nil {
		return ""
	}
	parts := []string{e.Message}
	for _, c := range e.Causes {
		if c.Message != "" {
			parts = append(parts, c.Message)
		}
	}
	return strings.Join(parts, ": ")
}

// New constructs a new compact error.
func New(category, code, message string, ctx map[string]any, causes ...error) *Error {
	ce := &Error{Category: category, Code: code, Message: truncate(message, 512)}
	if len(ctx) > 0 {
		ce.Context = truncateContext(ctx)
	}
	for _, c := range causes {
		if c == nil {
			continue
		}
		if ce.wrapped == nil {
			ce.wrapped = c
		}
		ce.Causes = append(ce.Causes, *From(c))
	}
	return ce
}

// From converts any error into a compact Error. If err is already *Error, it's returned as-is.
func From(err error) *Error {
	var ce *Error
	if err == nil {
		return nil
	}
	if errors.As(err, &ce) {
		return ce
	}
	// Default to system/internal for unknown error types.
	return &Error{Category: CategorySystem, Code: "internal", Message: truncate(err.Error(), 512), wrapped: err}
}

// Convenience constructors.
func Validation(code, message string, ctx map[string]any) *Error {
	return New(CategoryValidation, code, message, ctx)
}

// NotFound reports a missing record. cause is usually a package sentinel such as store.ErrNotFound.
func NotFound(message string, ctx map[string]any, cause error) *Error {
	if cause != nil {
		return New(CategoryValidation, "not_found", message, ctx, cause)
	}
	return New(CategoryValidation, "not_found", message, ctx)
}

// Upstream reports a failed or unusable call to the generation service.
func Upstream(code, message string, ctx map[string]any, cause error) *Error {
	if cause != nil {
		return New(CategoryUpstream, code, message, ctx, cause)
	}
	return New(CategoryUpstream, code, message, ctx)
}

func Store(code, message string, ctx map[string]any, cause error) *Error {
	if cause != nil {
		return New(CategoryStore, code, message, ctx, cause)
	}
	return New(CategoryStore, code, message, ctx)
}

func System(code, message string, ctx map[string]any, cause error) *Error {
	if cause != nil {
		return New(CategorySystem, code, message, ctx, cause)
	}
	return New(CategorySystem, code, message, ctx)
}

// HTTPStatus maps category/code to HTTP status.
// Upstream failures surface as 500: the generation proxy reports them as server errors.
func HTTPStatus(e *Error) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Category {
	case CategoryValidation:
		switch e.Code {
		case "not_found":
			return http.StatusNotFound
		case "method_not_allowed":
			return http.StatusMethodNotAllowed
		default:
			return http.StatusBadRequest
		}
	case CategoryUpstream, CategoryStore, CategorySystem:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Envelope is the failure body shared by every endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// WriteEnvelope writes {success:false, message, error} with the given status.
// err may be nil, in which case only the message is sent.
func WriteEnvelope(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	env := Envelope{Success: false, Message: message, TraceID: traceID(r)}
	if ce := From(err); ce != nil {
		env.Error = ce.Detail()
		env.Code = ce.Code
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// WriteHTTP writes a failure envelope whose status and message derive from err.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	ce := From(err)
	if ce == nil {
		ce = &Error{Category: CategorySystem, Code: "internal", Message: "unknown error"}
	}
	WriteEnvelope(w, r, HTTPStatus(ce), ce.Message, ce)
}

func traceID(r *http.Request) string {
	if r == nil {
		return ""
	}
	sc := trace.SpanFromContext(r.Context()).SpanContext()
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// truncate trims a string to max characters.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// truncateContext trims long string values in the context map.
func truncateContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		switch t := v.(type) {
		case string:
			out[k] = truncate(t, 256)
		default:
			// Try to stringify primitive slices to keep payload compact.
			b, err := json.Marshal(t)
			if err == nil && len(b) > 0 {
				s := string(b)
				if len(s) > 256 {
					s = truncate(s, 256)
				}
				out[k] = s
			} else {
				out[k] = t
			}
		}
	}
	return out
}

// IsCategory checks if err belongs to a specific category.
func IsCategory(err error, category string) bool {
	ce := From(err)
	return ce != nil && strings.EqualFold(ce.Category, category)
}

// IsCode checks if err carries a specific code.
func IsCode(err error, code string) bool {
	ce := From(err)
	return ce != nil && ce.Code == code
}
