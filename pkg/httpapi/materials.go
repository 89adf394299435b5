package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/wilhg/eventmarketer/pkg/errmodel"
	"github.com/wilhg/eventmarketer/pkg/generation"
	"github.com/wilhg/eventmarketer/pkg/prompt"
)

// MaterialService generates marketing materials. *generation.Dispatcher implements it.
type MaterialService interface {
	Generate(ctx context.Context, req prompt.Request) (generation.Result, error)
	All(ctx context.Context, description, language string) (generation.AllResult, error)
}

// null fields decode to "" so a null description gets the required-description message.
const materialRequestSchema = `{
  "type": "object",
  "properties": {
    "description": {"type": ["string", "null"]},
    "language":    {"type": ["string", "null"]},
    "style":       {"type": ["string", "null"]},
    "recipients":  {"type": ["string", "null"]}
  }
}`

var materialSchema = mustCompileSchema("mem://material-request.json", materialRequestSchema)

type materialRequest struct {
	Description string `json:"description"`
	Language    string `json:"language"`
	Style       string `json:"style"`
	Recipients  string `json:"recipients"`
}

type materialRoute struct {
	path    string
	kind    prompt.Kind
	field   string // response data key holding the generated text
	failure string
}

var materialRoutes = []materialRoute{
	{"/generate-event-plan", prompt.KindEventPlan, "eventPlan", "Failed to generate event plan"},
	{"/generate-poster", prompt.KindPoster, "posterContent", "Failed to generate poster content"},
	{"/generate-email", prompt.KindEmail, "emailDraft", "Failed to generate email draft"},
	{"/generate-caption", prompt.KindCaption, "instagramCaption", "Failed to generate Instagram caption"},
}

const allFailure = "Failed to generate marketing materials"

// Materials serves the generation endpoints.
type Materials struct {
	svc MaterialService
	log *slog.Logger
}

// NewMaterials builds the handler set. A nil logger selects slog.Default().
func NewMaterials(svc MaterialService, log *slog.Logger) *Materials {
	if log == nil {
		log = slog.Default()
	}
	return &Materials{svc: svc, log: log.With("component", "materials")}
}

// Register mounts every generation endpoint under prefix (e.g. /api/gemini).
func (m *Materials) Register(mux *http.ServeMux, prefix string) {
	for _, rt := range materialRoutes {
		mux.HandleFunc("POST "+prefix+rt.path, m.single(rt))
	}
	mux.HandleFunc("POST "+prefix+"/generate-all", m.all)
}

func (m *Materials) single(rt materialRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body materialRequest
		if !m.decode(w, r, &body) {
			return
		}
		res, err := m.svc.Generate(r.Context(), prompt.Request{
			Kind:        rt.kind,
			Description: body.Description,
			Language:    body.Language,
			Style:       body.Style,
			Recipients:  body.Recipients,
		})
		if err != nil {
			m.fail(w, r, rt.failure, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				rt.field:    res.Text,
				"language":  res.Language,
				"timestamp": generation.FormatTimestamp(res.GeneratedAt),
			},
		})
	}
}

func (m *Materials) all(w http.ResponseWriter, r *http.Request) {
	var body materialRequest
	if !m.decode(w, r, &body) {
		return
	}
	res, err := m.svc.All(r.Context(), body.Description, body.Language)
	if err != nil {
		m.fail(w, r, allFailure, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"eventPlan":        res.EventPlan.Text,
			"posterContent":    res.Poster.Text,
			"emailDraft":       res.Email.Text,
			"instagramCaption": res.Caption.Text,
			"language":         res.Language,
			"timestamp":        generation.FormatTimestamp(res.GeneratedAt),
		},
	})
}

// decode validates the body and rejects blank descriptions; it writes the 400 itself.
func (m *Materials) decode(w http.ResponseWriter, r *http.Request, body *materialRequest) bool {
	if err := decodeBody(r, materialSchema, body); err != nil {
		errmodel.WriteEnvelope(w, r, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if strings.TrimSpace(body.Description) == "" {
		errmodel.WriteEnvelope(w, r, http.StatusBadRequest, "Event description is required", nil)
		return false
	}
	return true
}

func (m *Materials) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	ce := errmodel.From(err)
	if ce.Category == errmodel.CategoryValidation {
		errmodel.WriteEnvelope(w, r, errmodel.HTTPStatus(ce), ce.Message, nil)
		return
	}
	m.log.ErrorContext(r.Context(), message, "error", err)
	errmodel.WriteEnvelope(w, r, http.StatusInternalServerError, message, ce)
}
