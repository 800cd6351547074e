package editor

import (
	"context"
	"io/fs"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-map/internal/templates"
)

// TemplateHandler re-parses the HTML fragments from disk while developing
// the map page.
type TemplateHandler struct {
	renderer *templates.Renderer
	fsys     fs.FS
}

func NewTemplateHandler(r *templates.Renderer, fsys fs.FS) *TemplateHandler {
	return &TemplateHandler{renderer: r, fsys: fsys}
}

func (h *TemplateHandler) RegisterRoutes(api huma.API) {
	huma.Post(api, "/api/v1/editor/templates/reload", h.Reload, huma.OperationTags("editor"))
}

type ReloadOutput struct {
	Body struct {
		Reloaded bool `json:"reloaded"`
	}
}

// Reload swaps in the fragments currently on disk. A parse error keeps the
// previous fragments.
func (h *TemplateHandler) Reload(ctx context.Context, input *EmptyInput) (*ReloadOutput, error) {
	if err := h.renderer.Reload(h.fsys); err != nil {
		return nil, huma.Error422UnprocessableEntity("Could not parse fragments: " + err.Error())
	}
	out := &ReloadOutput{}
	out.Body.Reloaded = true
	return out, nil
}
