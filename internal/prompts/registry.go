// Package prompts resolves prompt templates from a nested, read-only
// document addressed by dotted paths such as "prompts.topic.checklist".
package prompts

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultDocument []byte

// Getter is the interface that wraps GetParameter.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Registry is safe for concurrent use; the document is never mutated after
// it is parsed.
type Registry struct {
	root map[string]any
}

// Parse builds a Registry from a YAML document. JSON documents parse as
// well since YAML is a superset of JSON.
func Parse(doc []byte) (*Registry, error) {
	var root map[string]any
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("prompts: parse document: %w", err)
	}
	if root == nil {
		return nil, errors.New("prompts: document is empty")
	}
	return &Registry{root: root}, nil
}

// Default returns the registry built from the embedded document.
func Default() *Registry {
	r, err := Parse(defaultDocument)
	if err != nil {
		panic(err)
	}
	return r
}

// LoadFile parses the document at path.
func LoadFile(path string) (*Registry, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompts: read %s: %w", path, err)
	}
	return Parse(doc)
}

// LoadParameter parses a document stored in a parameter store.
func LoadParameter(ctx context.Context, getter Getter, name string) (*Registry, error) {
	if getter == nil {
		return nil, errors.New("prompts: getter must not be nil")
	}
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("prompts: load parameter: %w", err)
	}
	return Parse([]byte(raw))
}

// Resolve walks path through the document and returns the value found, or
// def when any segment is missing. Lists of scalars are joined with
// newlines. When vars is non-empty and the value is text, named
// placeholders ({{.name}}) are substituted; a failed substitution returns
// the text unchanged.
func (r *Registry) Resolve(path string, def any, vars map[string]any) any {
	v, ok := r.lookup(path)
	if !ok {
		return def
	}
	if list, isList := v.([]any); isList {
		if joined, ok := joinLines(list); ok {
			v = joined
		}
	}
	s, isText := v.(string)
	if !isText || len(vars) == 0 {
		return v
	}
	return substitute(s, vars)
}

// Text is Resolve for callers that need a string. Non-text values fall back
// to def.
func (r *Registry) Text(path, def string, vars map[string]any) string {
	v := r.Resolve(path, nil, vars)
	s, ok := v.(string)
	if !ok {
		if len(vars) > 0 {
			return substitute(def, vars)
		}
		return def
	}
	return s
}

func (r *Registry) lookup(path string) (any, bool) {
	if r == nil || r.root == nil {
		return nil, false
	}
	var cur any = r.root
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := m[key]
		if !ok || next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func joinLines(list []any) (string, bool) {
	lines := make([]string, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			lines = append(lines, v)
		case nil:
			lines = append(lines, "")
		case map[string]any, []any:
			return "", false
		default:
			lines = append(lines, fmt.Sprint(v))
		}
	}
	return strings.Join(lines, "\n"), true
}

func substitute(text string, vars map[string]any) string {
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return text
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return text
	}
	return buf.String()
}
