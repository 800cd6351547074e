package editor

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-map/internal/service"
	"github.com/joeblew999/plat-map/internal/session"
)

// SessionHandler drives the layer session from the map page.
type SessionHandler struct {
	Handler
	session   *session.Session
	endpoints *service.EndpointService
}

func NewSessionHandler(s *session.Session, endpoints *service.EndpointService, h Handler) *SessionHandler {
	return &SessionHandler{Handler: h, session: s, endpoints: endpoints}
}

func (h *SessionHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/fields", h.Fields, huma.OperationTags("editor"))
	huma.Get(api, "/api/v1/editor/endpoints", h.Endpoints, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/endpoints", h.AddEndpoint, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/load", h.Load, huma.OperationTags("editor"))
	huma.Post(api, "/api/v1/editor/filter", h.Filter, huma.OperationTags("editor"))
}

func (h *SessionHandler) Fields(ctx context.Context, input *EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse SSE) {
		sse.Patch(h.fieldOptions(), "#field-select")
	}), nil
}

func (h *SessionHandler) Endpoints(ctx context.Context, input *EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse SSE) {
		sse.Patch(h.endpointOptions(-1), "#endpoint-select")
	}), nil
}

// AddEndpoint saves the endpoint in the endpointname/endpointurl signals
// and selects it.
func (h *SessionHandler) AddEndpoint(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	name, url := signals.String("endpointname"), signals.String("endpointurl")

	return h.Stream(func(sse SSE) {
		idx, err := h.endpoints.Add(name, url)
		if idx >= 0 {
			sse.Patch(h.endpointOptions(idx), "#endpoint-select")
		}
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Signals(map[string]any{
			"endpointname": "",
			"endpointurl":  url,
			"success":      fmt.Sprintf("Endpoint '%s' saved", name),
		})
	}), nil
}

// Load starts loading the layer in the url signal, or the saved endpoint
// at the endpoint signal index when url is empty.
func (h *SessionHandler) Load(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	url := signals.String("url")
	if url == "" && signals.Has("endpoint") {
		if ep, ok := h.endpoints.Get(signals.Int("endpoint")); ok {
			url = ep.URL
		}
	}

	return h.Stream(func(sse SSE) {
		if _, err := h.session.Load(ctx, url); err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Signals(controlSignals(h.session.Snapshot()))
	}), nil
}

// Filter applies the filter builder rows in the logic/conditions signals.
func (h *SessionHandler) Filter(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	rows, logic, err := ParseFilterSignals(input.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}

	return h.Stream(func(sse SSE) {
		predicate, err := h.session.ApplyFilter(ctx, rows, logic)
		if err != nil {
			sse.Error(err.Error())
			return
		}
		sse.Signals(map[string]any{"predicate": predicate})
	}), nil
}

func (h *SessionHandler) fieldOptions() string {
	html, err := h.Renderer.Render("field-options", h.session.Snapshot().Fields)
	if err != nil {
		return ""
	}
	return html
}

func (h *SessionHandler) endpointOptions(selected int) string {
	eps := h.endpoints.List()
	opts := make([]SelectOptionData, 0, len(eps))
	for i, ep := range eps {
		opts = append(opts, SelectOptionData{
			Value:    fmt.Sprint(i),
			Label:    ep.Name,
			Selected: i == selected,
		})
	}
	return h.RenderSelect("Select a saved endpoint...", opts)
}

// controlSignals exposes which controls are usable in the current state.
func controlSignals(snap session.Snapshot) map[string]any {
	return map[string]any{
		"layerstate":    snap.State.String(),
		"layername":     snap.Name,
		"predicate":     snap.Predicate,
		"filterenabled": snap.FilterEnabled,
		"styleenabled":  snap.StyleEnabled,
		"copyenabled":   snap.CopyEnabled,
		"removeenabled": snap.RemoveEnabled,
	}
}
