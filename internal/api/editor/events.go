package editor

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-map/internal/service"
)

// EventHandler streams bus events to the map page via SSE.
type EventHandler struct {
	*SessionHandler
	bus *service.EventBus
}

// NewEventHandler creates a new event handler.
func NewEventHandler(bus *service.EventBus, sessions *SessionHandler) *EventHandler {
	return &EventHandler{SessionHandler: sessions, bus: bus}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/editor/events", h.Events,
		huma.OperationTags("editor"),
	)
}

func (h *EventHandler) Events(ctx context.Context, input *EmptyInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)
			ch := h.bus.Subscribe()
			defer h.bus.Unsubscribe(ch)

			sse.Signals(controlSignals(h.session.Snapshot()))
			for {
				select {
				case <-humaCtx.Context().Done():
					return
				case ev := <-ch:
					h.forward(sse, ev)
				}
			}
		},
	}, nil
}

func (h *EventHandler) forward(sse SSE, ev service.Event) {
	switch ev.Resource {
	case "message":
		if html, err := h.Renderer.Render("message", ev); err == nil {
			sse.Append(html, "#messages")
		}
		sse.Signals(map[string]any{"message": ev.Text, "messagelevel": string(ev.Level)})
	case "endpoints":
		sse.Patch(h.endpointOptions(-1), "#endpoint-select")
	case "map":
		if ev.Action == "overlay-added" || ev.Action == "overlay-removed" {
			sse.Patch(h.fieldOptions(), "#field-select")
		}
		sse.Signals(controlSignals(h.session.Snapshot()))
	}
	sse.DispatchCustomEvent("resource-changed", map[string]any{
		"resource": ev.Resource,
		"action":   ev.Action,
		"id":       ev.ID,
	})
}
