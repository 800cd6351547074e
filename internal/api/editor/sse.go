// Package editor contains Datastar SSE handlers for the map page.
package editor

import (
	"bytes"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-map/internal/templates"
)

// EmptyInput is a shared empty input struct for handlers with no parameters.
type EmptyInput struct{}

// SelectOptionData holds data for rendering a select option template.
type SelectOptionData struct {
	Value    string
	Label    string
	Selected bool
}

// SSE wraps a Datastar SSE generator with convenience methods for common
// patterns: error/success signals and inner element patching.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE creates a Datastar SSE helper from a Huma streaming context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch sends HTML to replace inner content at a CSS selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeInner(),
		datastar.WithViewTransitions(),
	)
}

// Append adds HTML as the last child of the element at a CSS selector.
func (s SSE) Append(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeAppend(),
	)
}

// Error sends an error signal to the UI.
func (s SSE) Error(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"error": msg})
}

// Success sends a success signal to the UI.
func (s SSE) Success(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"success": msg})
}

// Signals sends arbitrary signals to the UI.
func (s SSE) Signals(signals map[string]any) {
	s.MarshalAndPatchSignals(signals)
}

// Handler is an embeddable base for handlers that answer with Datastar SSE.
type Handler struct {
	Renderer *templates.Renderer
}

// Stream returns a Huma StreamResponse that calls fn with a ready SSE helper.
func (h *Handler) Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			fn(NewSSE(humaCtx))
		},
	}
}

// RenderSelect renders <option> elements from a placeholder and option list.
func (h *Handler) RenderSelect(placeholder string, options []SelectOptionData) string {
	var buf bytes.Buffer
	h.Renderer.RenderToBuffer(&buf, "select-option", SelectOptionData{Label: placeholder})
	for _, opt := range options {
		h.Renderer.RenderToBuffer(&buf, "select-option", opt)
	}
	return buf.String()
}
