// Package api defines the Huma API routes and handlers.
package api

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-map/internal/filter"
	"github.com/joeblew999/plat-map/internal/scene"
	"github.com/joeblew999/plat-map/internal/service"
	"github.com/joeblew999/plat-map/internal/session"
)

// Services holds the dependencies of the API handlers.
type Services struct {
	Session   *session.Session
	Endpoints *service.EndpointService
	GeoJSON   *service.GeoJSONService
	Map       *scene.Map
}

// Types

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

type EndpointsOutput struct {
	Body []service.Endpoint
}

type CreatedEndpointBody struct {
	Index    int              `json:"index" doc:"Position in the sorted list"`
	Endpoint service.Endpoint `json:"endpoint"`
}

type SessionOutput struct {
	Body session.Snapshot
}

type LoadBody struct {
	URL string `json:"url" required:"true" doc:"Feature/Map Server layer URL"`
}

type LoadStartedBody struct {
	Handle  session.Handle `json:"handle" doc:"Handle of this load attempt"`
	Message string         `json:"message"`
}

type ConditionBody struct {
	Field    string `json:"field" doc:"Field name"`
	Operator string `json:"operator" enum:"=,!=,>,<,>=,<=,LIKE,NOT LIKE,IN,NOT IN" doc:"Comparison operator"`
	Value    string `json:"value" doc:"Value; comma separated for IN lists"`
}

type FilterBody struct {
	Logic      string          `json:"logic,omitempty" enum:"AND,OR" default:"AND" doc:"How conditions are combined"`
	Conditions []ConditionBody `json:"conditions" doc:"Condition rows; incomplete rows are skipped"`
}

type PredicateBody struct {
	Predicate string `json:"predicate" doc:"Installed predicate, empty when cleared"`
}

type StyleBody struct {
	Color string `json:"color" required:"true" doc:"Stroke and fill color" example:"#3388ff"`
}

type SelectBody struct {
	Selected bool   `json:"selected" doc:"Whether the feature is selected afterwards"`
	ID       string `json:"id" doc:"Feature ID"`
}

type FeatureInput struct {
	RawBody []byte `contentType:"application/geo+json"`
}

type FeatureOutput struct {
	Body *geojson.Feature
}

type CollectionOutput struct {
	Body *geojson.FeatureCollection
}

type DrawnIDInput struct {
	ID string `path:"id" doc:"Drawn feature ID"`
}

type CreatedDrawnBody struct {
	ID string `json:"id" doc:"Assigned feature ID"`
}

type ExportOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

type ImportInput struct {
	Name    string `query:"name" default:"upload.geojson" doc:"Original file name"`
	RawBody []byte `contentType:"application/geo+json"`
}

type ImportedBody struct {
	Features int           `json:"features" doc:"Number of imported features"`
	Bounds   *scene.Bounds `json:"bounds,omitempty" doc:"Bounds the view was fitted to"`
}

type MapOutput struct {
	Body scene.State
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc      *Services
	validate *validator.Validate
	now      func() time.Time
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc, validate: validator.New(), now: time.Now}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterEndpoints registers saved endpoint routes.
func (h *APIHandler) RegisterEndpoints(api huma.API) {
	huma.Get(api, "/api/v1/endpoints", h.GetEndpoints, huma.OperationTags("endpoints"))
	huma.Post(api, "/api/v1/endpoints", h.CreateEndpoint, huma.OperationTags("endpoints"))
}

// RegisterSession registers layer session routes.
func (h *APIHandler) RegisterSession(api huma.API) {
	huma.Get(api, "/api/v1/session", h.GetSession, huma.OperationTags("session"))
	huma.Delete(api, "/api/v1/session", h.RemoveLayer, huma.OperationTags("session"))
	huma.Post(api, "/api/v1/session/load", h.LoadLayer, huma.OperationTags("session"),
		func(o *huma.Operation) { o.DefaultStatus = 202 })
	huma.Get(api, "/api/v1/session/features", h.GetFeatures, huma.OperationTags("session"))
	huma.Post(api, "/api/v1/session/filter", h.ApplyFilter, huma.OperationTags("session"))
	huma.Delete(api, "/api/v1/session/filter", h.ClearFilter, huma.OperationTags("session"))
	huma.Post(api, "/api/v1/session/style", h.ApplyStyle, huma.OperationTags("session"))
	huma.Post(api, "/api/v1/session/select", h.SelectFeature, huma.OperationTags("session"))
	huma.Post(api, "/api/v1/session/copy", h.CopySelected, huma.OperationTags("session"))
}

// RegisterDrawn registers drawn and copied feature routes.
func (h *APIHandler) RegisterDrawn(api huma.API) {
	huma.Get(api, "/api/v1/drawn", h.GetDrawn, huma.OperationTags("drawn"))
	huma.Post(api, "/api/v1/drawn", h.CreateDrawn, huma.OperationTags("drawn"),
		func(o *huma.Operation) { o.DefaultStatus = 201 })
	huma.Delete(api, "/api/v1/drawn/{id}", h.DeleteDrawn, huma.OperationTags("drawn"))
	huma.Get(api, "/api/v1/drawn/export", h.ExportDrawn, huma.OperationTags("drawn"))
	huma.Post(api, "/api/v1/drawn/import", h.ImportDrawn, huma.OperationTags("drawn"))
}

// RegisterMap registers the map model route.
func (h *APIHandler) RegisterMap(api huma.API) {
	huma.Get(api, "/api/v1/map", h.GetMap, huma.OperationTags("map"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetEndpoints(ctx context.Context, input *struct{}) (*EndpointsOutput, error) {
	return &EndpointsOutput{Body: h.svc.Endpoints.List()}, nil
}

func (h *APIHandler) CreateEndpoint(ctx context.Context, input *struct{ Body service.Endpoint }) (*struct{ Body CreatedEndpointBody }, error) {
	idx, err := h.svc.Endpoints.Add(input.Body.Name, input.Body.URL)
	if err != nil {
		return nil, toHumaError(err)
	}
	ep, _ := h.svc.Endpoints.Get(idx)
	return &struct{ Body CreatedEndpointBody }{Body: CreatedEndpointBody{Index: idx, Endpoint: ep}}, nil
}

func (h *APIHandler) GetSession(ctx context.Context, input *struct{}) (*SessionOutput, error) {
	return &SessionOutput{Body: h.svc.Session.Snapshot()}, nil
}

func (h *APIHandler) LoadLayer(ctx context.Context, input *struct{ Body LoadBody }) (*struct{ Body LoadStartedBody }, error) {
	handle, err := h.svc.Session.Load(ctx, input.Body.URL)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body LoadStartedBody }{Body: LoadStartedBody{Handle: handle, Message: "Loading layer..."}}, nil
}

func (h *APIHandler) RemoveLayer(ctx context.Context, input *struct{}) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Session.Remove(); err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer removed"}}, nil
}

func (h *APIHandler) GetFeatures(ctx context.Context, input *struct{}) (*CollectionOutput, error) {
	fc, err := h.svc.Session.Features(ctx)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &CollectionOutput{Body: fc}, nil
}

func (h *APIHandler) ApplyFilter(ctx context.Context, input *struct{ Body FilterBody }) (*struct{ Body PredicateBody }, error) {
	logic, err := filter.ParseLogic(input.Body.Logic)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	rows := make([]filter.Condition, 0, len(input.Body.Conditions))
	for _, c := range input.Body.Conditions {
		op, err := filter.ParseOperator(c.Operator)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		rows = append(rows, filter.Condition{Field: c.Field, Operator: op, Value: c.Value})
	}

	predicate, err := h.svc.Session.ApplyFilter(ctx, rows, logic)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body PredicateBody }{Body: PredicateBody{Predicate: predicate}}, nil
}

func (h *APIHandler) ClearFilter(ctx context.Context, input *struct{}) (*struct{ Body PredicateBody }, error) {
	if err := h.svc.Session.ClearFilter(ctx); err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body PredicateBody }{}, nil
}

func (h *APIHandler) ApplyStyle(ctx context.Context, input *struct{ Body StyleBody }) (*SessionOutput, error) {
	if err := h.validate.Var(input.Body.Color, "required,hexcolor"); err != nil {
		return nil, huma.Error400BadRequest(fmt.Sprintf("invalid color %q", input.Body.Color))
	}
	if err := h.svc.Session.ApplyColor(input.Body.Color); err != nil {
		return nil, toHumaError(err)
	}
	return &SessionOutput{Body: h.svc.Session.Snapshot()}, nil
}

func (h *APIHandler) SelectFeature(ctx context.Context, input *FeatureInput) (*struct{ Body SelectBody }, error) {
	f, err := geojson.UnmarshalFeature(input.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid feature: " + err.Error())
	}
	selected, err := h.svc.Session.Select(f)
	if err != nil {
		return nil, toHumaError(err)
	}
	id, _ := session.FeatureID(f)
	return &struct{ Body SelectBody }{Body: SelectBody{Selected: selected, ID: id}}, nil
}

func (h *APIHandler) CopySelected(ctx context.Context, input *struct{}) (*FeatureOutput, error) {
	f, err := h.svc.Session.CopySelected()
	if err != nil {
		return nil, toHumaError(err)
	}
	return &FeatureOutput{Body: f}, nil
}

func (h *APIHandler) GetDrawn(ctx context.Context, input *struct{}) (*CollectionOutput, error) {
	return &CollectionOutput{Body: h.svc.Map.Drawn()}, nil
}

func (h *APIHandler) CreateDrawn(ctx context.Context, input *FeatureInput) (*struct{ Body CreatedDrawnBody }, error) {
	f, err := geojson.UnmarshalFeature(input.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid feature: " + err.Error())
	}
	if f.Geometry == nil {
		return nil, huma.Error400BadRequest("feature has no geometry")
	}
	return &struct{ Body CreatedDrawnBody }{Body: CreatedDrawnBody{ID: h.svc.Map.Draw(f)}}, nil
}

func (h *APIHandler) DeleteDrawn(ctx context.Context, input *DrawnIDInput) (*struct{ Body MessageBody }, error) {
	if !h.svc.Map.DeleteDrawn(input.ID) {
		return nil, huma.Error404NotFound("drawn feature not found")
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Feature deleted"}}, nil
}

func (h *APIHandler) ExportDrawn(ctx context.Context, input *struct{}) (*ExportOutput, error) {
	data, name, err := h.svc.GeoJSON.Export(h.svc.Map.Drawn(), h.now())
	if err != nil {
		return nil, toHumaError(err)
	}
	return &ExportOutput{
		ContentType:        "application/geo+json",
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", name),
		Body:               data,
	}, nil
}

func (h *APIHandler) ImportDrawn(ctx context.Context, input *ImportInput) (*struct{ Body ImportedBody }, error) {
	fc, err := h.svc.GeoJSON.Import(input.Name, bytes.NewReader(input.RawBody))
	if err != nil {
		return nil, toHumaError(err)
	}

	out := ImportedBody{Features: len(fc.Features)}
	if b, ok := h.svc.Map.AddLoaded(fc); ok {
		out.Bounds = &scene.Bounds{Min: b.Min, Max: b.Max}
	}
	return &struct{ Body ImportedBody }{Body: out}, nil
}

func (h *APIHandler) GetMap(ctx context.Context, input *struct{}) (*MapOutput, error) {
	return &MapOutput{Body: h.svc.Map.Snapshot()}, nil
}
