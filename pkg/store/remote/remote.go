// Package remote is a client for the remote events API
// (GET/POST /events, GET/PUT/DELETE /events/:id, bodies wrapped in {"data": ...}).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/eventmarketer/pkg/store"
)

// DefaultProbeTimeout bounds the liveness probe.
const DefaultProbeTimeout = time.Second

// ErrUnavailable marks transport failures and unexpected statuses; callers fall back on it.
var ErrUnavailable = errors.New("remote event store unavailable")

// Client implements store.Events over HTTP.
type Client struct {
	base         string
	http         *http.Client
	probeTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.probeTimeout = d
		}
	}
}

// New returns a client for the API rooted at baseURL (e.g. http://localhost:3000/api).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:         strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Probe performs a short-timeout read of the collection. nil means the remote is live.
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/events", nil, nil)
}

func (c *Client) List(ctx context.Context) ([]store.EventRecord, error) {
	var out []store.EventRecord
	if err := c.do(ctx, http.MethodGet, "/events", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []store.EventRecord{}
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id string) (store.EventRecord, error) {
	var out *store.EventRecord
	if err := c.do(ctx, http.MethodGet, eventPath(id), nil, &out); err != nil {
		return store.EventRecord{}, err
	}
	if out == nil {
		return store.EventRecord{}, store.ErrNotFound
	}
	return *out, nil
}

func (c *Client) Create(ctx context.Context, fields map[string]any) (store.EventRecord, error) {
	var out store.EventRecord
	if err := c.do(ctx, http.MethodPost, "/events", store.UserFields(fields), &out); err != nil {
		return store.EventRecord{}, err
	}
	if out.ID == "" {
		return store.EventRecord{}, fmt.Errorf("%w: created event has no id", ErrUnavailable)
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, id string, updates map[string]any) (store.EventRecord, error) {
	var out store.EventRecord
	if err := c.do(ctx, http.MethodPut, eventPath(id), store.UserFields(updates), &out); err != nil {
		return store.EventRecord{}, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, eventPath(id), nil, nil)
}

func eventPath(id string) string { return "/events/" + url.PathEscape(id) }

// do sends body as JSON and decodes the "data" member of the response into out.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound && path != "/events" {
		return store.ErrNotFound
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrUnavailable, method, path, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrUnavailable, method, path, err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrUnavailable, method, path, err)
	}
	return nil
}
