package generation

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wilhg/eventmarketer/pkg/errmodel"
	"github.com/wilhg/eventmarketer/pkg/prompt"
)

// Generator is the single-prompt contract the dispatcher depends on. *Client implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Result is one generated material. It is only produced on upstream success.
type Result struct {
	Kind        prompt.Kind `json:"kind"`
	Text        string      `json:"text"`
	Language    string      `json:"language"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

// TimestampLayout is RFC 3339 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t the way every material response reports generation time.
func FormatTimestamp(t time.Time) string { return t.UTC().Format(TimestampLayout) }

// AllResult holds the four materials generated from one description.
type AllResult struct {
	EventPlan   Result    `json:"eventPlan"`
	Poster      Result    `json:"posterContent"`
	Email       Result    `json:"emailDraft"`
	Caption     Result    `json:"instagramCaption"`
	Description string    `json:"description"`
	Language    string    `json:"language"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// ErrDescriptionRequired is returned, as an errmodel validation error, for blank descriptions.
var ErrDescriptionRequired = errmodel.Validation("description_required", "Event description is required", nil)

// Dispatcher builds prompts for material requests and shapes the generated text.
type Dispatcher struct {
	gen Generator
	now func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher constructs a Dispatcher over gen.
func NewDispatcher(gen Generator, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{gen: gen, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// EventPlan generates an event plan.
func (d *Dispatcher) EventPlan(ctx context.Context, description, language string) (Result, error) {
	return d.Generate(ctx, prompt.Request{Kind: prompt.KindEventPlan, Description: description, Language: language})
}

// Poster generates poster content.
func (d *Dispatcher) Poster(ctx context.Context, description, language string) (Result, error) {
	return d.Generate(ctx, prompt.Request{Kind: prompt.KindPoster, Description: description, Language: language})
}

// Email generates an email invitation addressed to recipients.
func (d *Dispatcher) Email(ctx context.Context, description, language, recipients string) (Result, error) {
	return d.Generate(ctx, prompt.Request{Kind: prompt.KindEmail, Description: description, Language: language, Recipients: recipients})
}

// Caption generates Instagram captions in the given style.
func (d *Dispatcher) Caption(ctx context.Context, description, language, style string) (Result, error) {
	return d.Generate(ctx, prompt.Request{Kind: prompt.KindCaption, Description: description, Language: language, Style: style})
}

// Generate builds one full prompt for req and issues one generation call.
func (d *Dispatcher) Generate(ctx context.Context, req prompt.Request) (Result, error) {
	if err := validate(req.Kind, req.Description); err != nil {
		return Result{}, err
	}
	req = req.WithDefaults()
	ctx, span := startSpan(ctx, "generation.Dispatcher.Generate", req.Kind, req.Language)
	defer span.End()

	text, err := d.gen.Generate(ctx, prompt.Build(req))
	if err != nil {
		recordError(span, err)
		return Result{}, err
	}
	return Result{Kind: req.Kind, Text: text, Language: req.Language, GeneratedAt: d.now()}, nil
}

// All generates the four materials concurrently from brief prompts.
// The first failure cancels the remaining calls and fails the whole aggregate.
func (d *Dispatcher) All(ctx context.Context, description, language string) (AllResult, error) {
	if err := validate(prompt.KindEventPlan, description); err != nil {
		return AllResult{}, err
	}
	if strings.TrimSpace(language) == "" {
		language = prompt.DefaultLanguage
	}
	ctx, span := startSpan(ctx, "generation.Dispatcher.All", "", language)
	defer span.End()

	texts := make([]string, len(prompt.Kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range prompt.Kinds {
		p := prompt.BuildBrief(kind, description, language)
		g.Go(func() error {
			text, err := d.gen.Generate(gctx, p)
			if err != nil {
				return err
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		recordError(span, err)
		return AllResult{}, err
	}

	at := d.now()
	res := func(i int) Result {
		return Result{Kind: prompt.Kinds[i], Text: texts[i], Language: language, GeneratedAt: at}
	}
	return AllResult{
		EventPlan:   res(0),
		Poster:      res(1),
		Email:       res(2),
		Caption:     res(3),
		Description: description,
		Language:    language,
		GeneratedAt: at,
	}, nil
}

func validate(kind prompt.Kind, description string) error {
	if strings.TrimSpace(description) == "" {
		return ErrDescriptionRequired
	}
	if !kind.Valid() {
		return errmodel.Validation("unknown_kind", "unknown material kind", map[string]any{"kind": string(kind)})
	}
	return nil
}

func startSpan(ctx context.Context, name string, kind prompt.Kind, language string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("material.language", language)}
	if kind != "" {
		attrs = append(attrs, attribute.String("material.kind", string(kind)))
	}
	return otel.Tracer("generation/dispatcher").Start(ctx, name, trace.WithAttributes(attrs...))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
