package errmodel

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewAndFrom(t *testing.T) {
	e := Validation("missing", "field missing", map[string]any{"field": "description"})
	if e.Category != CategoryValidation || e.Code != "missing" {
		t.Fatalf("unexpected: %#v", e)
	}
	if got := From(e); got != e {
		t.Fatalf("From should return same error instance")
	}
}

func TestNotFound_UnwrapsSentinel(t *testing.T) {
	sentinel := errors.New("record not found")
	e := NotFound("event not found", map[string]any{"id": "x"}, sentinel)
	if !errors.Is(e, sentinel) {
		t.Fatal("errors.Is should see the wrapped sentinel")
	}
	if HTTPStatus(e) != 404 {
		t.Fatalf("status=%d want 404", HTTPStatus(e))
	}
}

func TestUpstream_Detail(t *testing.T) {
	e := Upstream("upstream_error", "generation failed", nil, errors.New("quota exceeded"))
	if got := e.Detail(); got != "generation failed: quota exceeded" {
		t.Fatalf("detail=%q", got)
	}
	if HTTPStatus(e) != 500 {
		t.Fatalf("status=%d want 500", HTTPStatus(e))
	}
	if !IsCategory(e, CategoryUpstream) {
		t.Fatal("expected upstream category")
	}
}

func TestWriteEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", nil)
	WriteEnvelope(rr, req, 400, "Event description is required", nil)
	if rr.Code != 400 {
		t.Fatalf("status=%d want 400", rr.Code)
	}
	var env map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env["success"] != false || env["message"] != "Event description is required" {
		t.Fatalf("envelope=%v", env)
	}
	if _, ok := env["error"]; ok {
		t.Fatalf("error field should be omitted when nil: %v", env)
	}
}

func TestWriteHTTP_StatusAndEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	WriteHTTP(rr, req, Validation("bad_json", "oops", nil))
	if rr.Code != 400 {
		t.Fatalf("status=%d want 400", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "\"success\":false") {
		t.Fatalf("body missing success flag: %s", body)
	}
	if !strings.Contains(body, "\"code\":\"bad_json\"") {
		t.Fatalf("body missing code: %s", body)
	}
}
