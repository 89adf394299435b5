// Package prompt renders the instruction blocks sent to the generation service.
// Rendering is pure: the same request always yields the same prompt.
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

// Kind is one of the four material kinds.
type Kind string

const (
	KindEventPlan Kind = "event_plan"
	KindPoster    Kind = "poster"
	KindEmail     Kind = "email"
	KindCaption   Kind = "caption"
)

// Kinds lists every material kind in the order the aggregate reports them.
var Kinds = []Kind{KindEventPlan, KindPoster, KindEmail, KindCaption}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindEventPlan, KindPoster, KindEmail, KindCaption:
		return true
	}
	return false
}

const (
	DefaultLanguage   = "english"
	DefaultStyle      = "engaging"
	DefaultRecipients = "guests"
)

// Request carries everything a prompt is rendered from.
// Style is read only for captions and Recipients only for emails.
type Request struct {
	Kind        Kind
	Description string
	Language    string
	Style       string
	Recipients  string
}

// WithDefaults fills empty optional fields with their defaults.
func (r Request) WithDefaults() Request {
	if strings.TrimSpace(r.Language) == "" {
		r.Language = DefaultLanguage
	}
	if r.Kind == KindCaption && strings.TrimSpace(r.Style) == "" {
		r.Style = DefaultStyle
	}
	if r.Kind == KindEmail && strings.TrimSpace(r.Recipients) == "" {
		r.Recipients = DefaultRecipients
	}
	return r
}

// IsHindi reports whether language selects Hindi output. Any other value means English.
func IsHindi(language string) bool {
	return strings.EqualFold(strings.TrimSpace(language), "hindi")
}

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("prompt").Option("missingkey=error").ParseFS(templateFS, "templates/*.tmpl"))

var templateNames = map[Kind]string{
	KindEventPlan: "event_plan.tmpl",
	KindPoster:    "poster.tmpl",
	KindEmail:     "email.tmpl",
	KindCaption:   "caption.tmpl",
}

type templateData struct {
	Description string
	Language    string
	Hindi       bool
	Style       string
	Recipients  string
}

// Build renders the full per-kind prompt for req. Defaults are applied first.
// Unknown kinds render the event plan template; callers validate kinds before building.
func Build(req Request) string {
	req = req.WithDefaults()
	name, ok := templateNames[req.Kind]
	if !ok {
		name = templateNames[KindEventPlan]
	}
	data := templateData{
		Description: req.Description,
		Language:    req.Language,
		Hindi:       IsHindi(req.Language),
		Style:       req.Style,
		Recipients:  req.Recipients,
	}
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		// templates are embedded and parsed at init; execution over templateData cannot fail
		panic(fmt.Sprintf("prompt: render %s: %v", name, err))
	}
	return strings.TrimRight(b.String(), "\n")
}

var briefSubjects = map[Kind]string{
	KindEventPlan: "Create a comprehensive event plan for",
	KindPoster:    "Create compelling poster content for",
	KindEmail:     "Create a professional email invitation for",
	KindCaption:   "Create engaging Instagram captions with hashtags for",
}

// BuildBrief renders the single-line prompt used when all materials are generated at once.
func BuildBrief(kind Kind, description, language string) string {
	subject, ok := briefSubjects[kind]
	if !ok {
		subject = briefSubjects[KindEventPlan]
	}
	directive := "Respond in English."
	if IsHindi(language) {
		directive = "Respond in Hindi."
	}
	return fmt.Sprintf("%s: %s. %s", subject, description, directive)
}
