package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-map/internal/arcgis"
	"github.com/joeblew999/plat-map/internal/scene"
	"github.com/joeblew999/plat-map/internal/service"
	"github.com/joeblew999/plat-map/internal/session"
)

const parksPath = "/arcgis/rest/services/Parks/FeatureServer/0"

// arcgisStub answers the handful of ArcGIS REST calls the session makes.
func arcgisStub() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(parksPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"Parks","fields":[
			{"name":"OBJECTID","type":"esriFieldTypeOID"},
			{"name":"NAME","alias":"Park Name","type":"esriFieldTypeString"},
			{"name":"ACRES","type":"esriFieldTypeDouble"}]}`))
	})
	mux.HandleFunc(parksPath+"/query", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if strings.Contains(q.Get("where"), "BOGUS") {
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Invalid query","details":[]}}`))
			return
		}
		if q.Get("returnCountOnly") == "true" {
			_, _ = w.Write([]byte(`{"count":1}`))
			return
		}
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","id":7,"geometry":{"type":"Point","coordinates":[5,6]},"properties":{"NAME":"Hyde"}}]}`))
	})
	return httptest.NewServer(mux)
}

type testEnv struct {
	api     humatest.TestAPI
	svc     *Services
	store   *memStore
	handler *APIHandler
}

type memStore struct{ data map[string]string }

func (m *memStore) Get(key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(key, value string) error {
	m.data[key] = value
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	bus := service.NewEventBus()
	m := scene.New(bus)
	store := &memStore{data: map[string]string{}}
	endpoints := service.NewEndpointService(store, bus, nil)
	require.NoError(t, endpoints.Load())

	svc := &Services{
		Session: session.New(session.Config{
			Service:  arcgis.NewClient(nil, nil),
			Renderer: m,
			Notifier: bus,
		}),
		Endpoints: endpoints,
		GeoJSON:   service.NewGeoJSONService(nil),
		Map:       m,
	}

	_, api := humatest.New(t)
	h := NewAPIHandler(svc)
	h.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	huma.AutoRegister(api, h)
	NewInfoHandler("data", true).RegisterRoutes(api)

	return &testEnv{api: api, svc: svc, store: store, handler: h}
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v), resp.Body.String())
	return v
}

func (e *testEnv) loadParks(t *testing.T, base string) {
	t.Helper()
	resp := e.api.Post("/api/v1/session/load", map[string]any{"url": base + parksPath})
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())
	e.svc.Session.Wait()
	require.Equal(t, session.Ready, e.svc.Session.Snapshot().State)
}

func TestHealthAndInfo(t *testing.T) {
	env := newTestEnv(t)

	resp := env.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", decode[HealthBody](t, resp).Status)

	resp = env.api.Get("/api/v1/info")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "plat-map", decode[InfoBody](t, resp).Name)
}

func TestEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.api.Get("/api/v1/endpoints")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]service.Endpoint](t, resp), len(service.DefaultEndpoints))

	resp = env.api.Post("/api/v1/endpoints", map[string]any{"name": "Aardvarks", "url": "https://example.com/FeatureServer/0"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	created := decode[CreatedEndpointBody](t, resp)
	assert.Equal(t, 0, created.Index)
	assert.Equal(t, "Aardvarks", created.Endpoint.Name)

	resp = env.api.Post("/api/v1/endpoints", map[string]any{"name": "Again", "url": "https://example.com/FeatureServer/0"})
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = env.api.Post("/api/v1/endpoints", map[string]any{"name": "   ", "url": "https://example.com/other"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSessionLifecycle(t *testing.T) {
	arc := arcgisStub()
	defer arc.Close()
	env := newTestEnv(t)

	resp := env.api.Get("/api/v1/session")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, session.Idle, decode[session.Snapshot](t, resp).State)

	resp = env.api.Post("/api/v1/session/load", map[string]any{"url": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.api.Post("/api/v1/session/load", map[string]any{"url": "ftp://nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	env.loadParks(t, arc.URL)

	snap := decode[session.Snapshot](t, env.api.Get("/api/v1/session"))
	assert.Equal(t, "Parks", snap.Name)
	require.Len(t, snap.Fields, 2)
	assert.Equal(t, "NAME", snap.Fields[0].Name)
	assert.True(t, snap.FilterEnabled)

	resp = env.api.Get("/api/v1/session/features")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Hyde")

	m := decode[scene.State](t, env.api.Get("/api/v1/map"))
	require.Len(t, m.Layers, 1)
	require.Len(t, m.Overlays, 2)
	assert.Equal(t, "Parks", m.Overlays[1].Name)

	resp = env.api.Delete("/api/v1/session")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, session.Removed, env.svc.Session.Snapshot().State)

	resp = env.api.Delete("/api/v1/session")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestFilterRoutes(t *testing.T) {
	arc := arcgisStub()
	defer arc.Close()
	env := newTestEnv(t)

	resp := env.api.Post("/api/v1/session/filter", map[string]any{"conditions": []any{}})
	assert.Equal(t, http.StatusConflict, resp.Code)

	env.loadParks(t, arc.URL)

	resp = env.api.Post("/api/v1/session/filter", map[string]any{
		"logic": "OR",
		"conditions": []map[string]any{
			{"field": "NAME", "operator": "LIKE", "value": "Hy"},
			{"field": "ACRES", "operator": ">", "value": "10"},
			{"field": "NAME", "operator": "=", "value": ""},
		},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "(NAME LIKE '%Hy%' OR ACRES > 10)", decode[PredicateBody](t, resp).Predicate)

	resp = env.api.Post("/api/v1/session/filter", map[string]any{
		"conditions": []map[string]any{{"field": "NAME", "operator": "!=", "value": "Hyde"}},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "NAME != 'Hyde'", decode[PredicateBody](t, resp).Predicate)

	resp = env.api.Post("/api/v1/session/filter", map[string]any{
		"logic": "OR",
		"conditions": []map[string]any{
			{"field": "NAME", "operator": "LIKE", "value": "Hy"},
			{"field": "ACRES", "operator": ">", "value": "10"},
		},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.api.Post("/api/v1/session/filter", map[string]any{
		"conditions": []map[string]any{{"field": "NAME", "operator": "<>", "value": "Hyde"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = env.api.Post("/api/v1/session/filter", map[string]any{
		"conditions": []map[string]any{{"field": "NAME", "operator": "=", "value": "BOGUS"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "(NAME LIKE '%Hy%' OR ACRES > 10)", env.svc.Session.Snapshot().Predicate)

	resp = env.api.Delete("/api/v1/session/filter")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, env.svc.Session.Snapshot().Predicate)
}

func TestStyleSelectCopy(t *testing.T) {
	arc := arcgisStub()
	defer arc.Close()
	env := newTestEnv(t)
	env.loadParks(t, arc.URL)

	resp := env.api.Post("/api/v1/session/style", map[string]any{"color": "red"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.api.Post("/api/v1/session/style", map[string]any{"color": "#3388ff"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "#3388ff", decode[session.Snapshot](t, resp).Style.StrokeColor)

	resp = env.api.Post("/api/v1/session/copy")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	feature := `{"type":"Feature","id":7,"geometry":{"type":"Point","coordinates":[5,6]},"properties":{"NAME":"Hyde"}}`
	resp = env.api.Post("/api/v1/session/select", "Content-Type: application/geo+json", strings.NewReader(feature))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	sel := decode[SelectBody](t, resp)
	assert.True(t, sel.Selected)
	assert.Equal(t, "7", sel.ID)

	resp = env.api.Post("/api/v1/session/copy")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Empty(t, env.svc.Session.Snapshot().Selected)

	drawn := env.api.Get("/api/v1/drawn")
	require.Equal(t, http.StatusOK, drawn.Code)
	assert.Contains(t, drawn.Body.String(), "Hyde")
}

func TestDrawnRoutes(t *testing.T) {
	env := newTestEnv(t)

	resp := env.api.Get("/api/v1/drawn/export")
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = env.api.Post("/api/v1/drawn", "Content-Type: application/geo+json",
		strings.NewReader(`{"type":"Feature","geometry":{"type":"Point","coordinates":[1,1]},"properties":{}}`))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	id := decode[CreatedDrawnBody](t, resp).ID
	require.NotEmpty(t, id)

	resp = env.api.Get("/api/v1/drawn/export")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, `attachment; filename="map_features_2024-05-01.geojson"`, resp.Header().Get("Content-Disposition"))
	assert.Contains(t, resp.Body.String(), "FeatureCollection")

	resp = env.api.Delete("/api/v1/drawn/" + id)
	require.Equal(t, http.StatusOK, resp.Code)
	resp = env.api.Delete("/api/v1/drawn/" + id)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.api.Post("/api/v1/drawn/import?name=lines.geojson", "Content-Type: application/geo+json",
		strings.NewReader(`{"type":"LineString","coordinates":[[0,0],[2,3]]}`))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	imported := decode[ImportedBody](t, resp)
	assert.Equal(t, 1, imported.Features)
	require.NotNil(t, imported.Bounds)
	assert.Equal(t, [2]float64{2, 3}, imported.Bounds.Max)

	resp = env.api.Post("/api/v1/drawn/import?name=bad.geojson", "Content-Type: application/geo+json",
		strings.NewReader(`{"type":`))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Contains(t, resp.Body.String(), "bad.geojson")
}
