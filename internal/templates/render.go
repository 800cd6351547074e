// Package templates handles HTML template rendering for Datastar SSE responses.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"sync"
)

// Fragments holds the built-in HTML fragments.
//
//go:embed fragments/*.html
var Fragments embed.FS

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict creates a map from key-value pairs, useful for passing multiple values to nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	templates *template.Template
	mu        sync.RWMutex
}

// New parses every fragments/*.html file of fsys.
func New(fsys fs.FS) (*Renderer, error) {
	tmpl, err := parse(fsys)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

func parse(fsys fs.FS) (*template.Template, error) {
	return template.New("").Funcs(funcMap).ParseFS(fsys, "fragments/*.html")
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.templates.ExecuteTemplate(buf, name, data)
}

// Reload re-parses the fragments from fsys. On error the current
// fragments stay in place.
func (r *Renderer) Reload(fsys fs.FS) error {
	tmpl, err := parse(fsys)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}
