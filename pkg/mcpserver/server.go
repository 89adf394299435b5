// Package mcpserver exposes material generation as MCP tools over Streamable HTTP.
package mcpserver

import (
	"context"
	"net/http"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/eventmarketer/pkg/generation"
	"github.com/wilhg/eventmarketer/pkg/prompt"
)

// Materials is the generation surface the tools call. *generation.Dispatcher implements it.
type Materials interface {
	Generate(ctx context.Context, req prompt.Request) (generation.Result, error)
	All(ctx context.Context, description, language string) (generation.AllResult, error)
}

// Description fields are pointers so a null description reaches the blank check.
type basicInput struct {
	Description *string `json:"description" jsonschema:"free-text description of the event"`
	Language    string  `json:"language,omitempty" jsonschema:"output language: english (default) or hindi"`
}

type emailInput struct {
	Description *string `json:"description" jsonschema:"free-text description of the event"`
	Language    string  `json:"language,omitempty" jsonschema:"output language: english (default) or hindi"`
	Recipients  string  `json:"recipients,omitempty" jsonschema:"who the invitation addresses (default guests)"`
}

type captionInput struct {
	Description *string `json:"description" jsonschema:"free-text description of the event"`
	Language    string  `json:"language,omitempty" jsonschema:"output language: english (default) or hindi"`
	Style       string  `json:"style,omitempty" jsonschema:"caption tone (default engaging)"`
}

// MaterialOutput is the structured result of a single-kind tool.
type MaterialOutput struct {
	Kind      string `json:"kind"`
	Text      string `json:"text"`
	Language  string `json:"language"`
	Timestamp string `json:"timestamp"`
}

// AllOutput is the structured result of generate_all.
type AllOutput struct {
	EventPlan        string `json:"eventPlan"`
	PosterContent    string `json:"posterContent"`
	EmailDraft       string `json:"emailDraft"`
	InstagramCaption string `json:"instagramCaption"`
	Language         string `json:"language"`
	Timestamp        string `json:"timestamp"`
}

// Server wraps an MCP server with the generation tools registered.
type Server struct {
	srv *mcp.Server
	svc Materials
}

// New registers generate_event_plan, generate_poster, generate_email,
// generate_caption and generate_all over svc.
func New(svc Materials, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{
		srv: mcp.NewServer(&mcp.Implementation{Name: "eventmarketer", Version: version}, nil),
		svc: svc,
	}

	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "generate_event_plan",
		Description: "Generate a structured event plan from an event description",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in basicInput) (*mcp.CallToolResult, MaterialOutput, error) {
		return s.single(ctx, prompt.Request{Kind: prompt.KindEventPlan, Description: deref(in.Description), Language: in.Language})
	})
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "generate_poster",
		Description: "Generate poster copy: headline, tagline, key details, call to action and visual suggestions",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in basicInput) (*mcp.CallToolResult, MaterialOutput, error) {
		return s.single(ctx, prompt.Request{Kind: prompt.KindPoster, Description: deref(in.Description), Language: in.Language})
	})
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "generate_email",
		Description: "Generate an email invitation with subject, body, RSVP instructions and signature",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in emailInput) (*mcp.CallToolResult, MaterialOutput, error) {
		return s.single(ctx, prompt.Request{Kind: prompt.KindEmail, Description: deref(in.Description), Language: in.Language, Recipients: in.Recipients})
	})
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "generate_caption",
		Description: "Generate Instagram captions with hashtags and story ideas",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in captionInput) (*mcp.CallToolResult, MaterialOutput, error) {
		return s.single(ctx, prompt.Request{Kind: prompt.KindCaption, Description: deref(in.Description), Language: in.Language, Style: in.Style})
	})
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "generate_all",
		Description: "Generate the event plan, poster, email and caption concurrently; fails if any one fails",
	}, s.all)
	return s
}

func (s *Server) single(ctx context.Context, req prompt.Request) (*mcp.CallToolResult, MaterialOutput, error) {
	res, err := s.svc.Generate(ctx, req)
	if err != nil {
		return nil, MaterialOutput{}, err
	}
	out := MaterialOutput{
		Kind:      string(res.Kind),
		Text:      res.Text,
		Language:  res.Language,
		Timestamp: generation.FormatTimestamp(res.GeneratedAt),
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: res.Text}}}, out, nil
}

func (s *Server) all(ctx context.Context, _ *mcp.CallToolRequest, in basicInput) (*mcp.CallToolResult, AllOutput, error) {
	res, err := s.svc.All(ctx, deref(in.Description), in.Language)
	if err != nil {
		return nil, AllOutput{}, err
	}
	out := AllOutput{
		EventPlan:        res.EventPlan.Text,
		PosterContent:    res.Poster.Text,
		EmailDraft:       res.Email.Text,
		InstagramCaption: res.Caption.Text,
		Language:         res.Language,
		Timestamp:        generation.FormatTimestamp(res.GeneratedAt),
	}
	content := make([]mcp.Content, 0, 4)
	for _, text := range []string{out.EventPlan, out.PosterContent, out.EmailDraft, out.InstagramCaption} {
		content = append(content, &mcp.TextContent{Text: text})
	}
	return &mcp.CallToolResult{Content: content}, out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// MCP returns the underlying server, e.g. to connect an in-process transport.
func (s *Server) MCP() *mcp.Server { return s.srv }

// Handler serves the tools over Streamable HTTP. Mount it at /mcp.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.srv }, nil)
}
