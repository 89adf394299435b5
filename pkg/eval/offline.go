// Package eval scores rendered prompts against fixture expectations without
// calling the generation service.
package eval

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/wilhg/eventmarketer/pkg/prompt"
)

// Fixture is one prompt evaluation case.
type Fixture struct {
	Name    string         `json:"name"`
	Request FixtureRequest `json:"request"`
	// Brief renders the one-line prompt used by the all-materials fan-out.
	Brief  bool        `json:"brief,omitempty"`
	Expect Expectation `json:"expect"`
}

type FixtureRequest struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Language    string `json:"language,omitempty"`
	Style       string `json:"style,omitempty"`
	Recipients  string `json:"recipients,omitempty"`
}

type Expectation struct {
	Contains    []string `json:"contains,omitempty"`
	NotContains []string `json:"not_contains,omitempty"`
}

// EvaluatePromptFixtures loads every .json fixture in dir, renders its prompt and
// checks the expectations. score is passed/total, or 1 when there are no fixtures.
func EvaluatePromptFixtures(fsys fs.FS, dir string) (score float64, total int, passed int, details []string, err error) {
	fixtures, err := loadFixtures(fsys, dir)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	total = len(fixtures)
	if total == 0 {
		return 1, 0, 0, nil, nil
	}
	for _, fx := range fixtures {
		out, rerr := render(fx)
		if rerr != nil {
			details = append(details, fx.Name+": render error: "+rerr.Error())
			continue
		}
		ok := true
		for _, s := range fx.Expect.Contains {
			if !strings.Contains(out, s) {
				ok = false
				details = append(details, fx.Name+": missing contains: "+s)
			}
		}
		for _, s := range fx.Expect.NotContains {
			if strings.Contains(out, s) {
				ok = false
				details = append(details, fx.Name+": unexpected contains: "+s)
			}
		}
		if ok {
			passed++
		}
	}
	score = float64(passed) / float64(total)
	return score, total, passed, details, nil
}

func loadFixtures(fsys fs.FS, dir string) ([]Fixture, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	var out []Fixture
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var fx Fixture
		if err := json.Unmarshal(b, &fx); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		if fx.Name == "" {
			fx.Name = strings.TrimSuffix(e.Name(), ".json")
		}
		out = append(out, fx)
	}
	return out, nil
}

func render(fx Fixture) (string, error) {
	kind := prompt.Kind(fx.Request.Kind)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown kind %q", fx.Request.Kind)
	}
	if strings.TrimSpace(fx.Request.Description) == "" {
		return "", fmt.Errorf("description is empty")
	}
	if fx.Brief {
		return prompt.BuildBrief(kind, fx.Request.Description, fx.Request.Language), nil
	}
	return prompt.Build(prompt.Request{
		Kind:        kind,
		Description: fx.Request.Description,
		Language:    fx.Request.Language,
		Style:       fx.Request.Style,
		Recipients:  fx.Request.Recipients,
	}), nil
}
