// Package httpapi serves the marketing-material endpoints and the events CRUD
// surface over net/http.
package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/wilhg/eventmarketer/pkg/errmodel"
)

const maxBodyBytes = 1 << 20

// mustCompileSchema compiles an in-memory JSON schema. Schemas are package
// constants, so a compile failure is a programming error.
func mustCompileSchema(location, src string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		panic("httpapi: schema " + location + ": " + err.Error())
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(location, doc); err != nil {
		panic("httpapi: schema " + location + ": " + err.Error())
	}
	return c.MustCompile(location)
}

// decodeBody reads a JSON request body, validates it against sch and decodes it into dst.
// An empty body is treated as {}.
func decodeBody(r *http.Request, sch *jsonschema.Schema, dst any) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return invalidBody(err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		b = []byte("{}")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return invalidBody(err)
	}
	if err := sch.Validate(doc); err != nil {
		return invalidBody(err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return invalidBody(err)
	}
	return nil
}

func invalidBody(cause error) error {
	return errmodel.New(errmodel.CategoryValidation, "invalid_body", "Invalid request body", nil, cause)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
