package editor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/paulmach/orb/geojson"
	"github.com/starfederation/datastar-go/datastar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-map/internal/filter"
	"github.com/joeblew999/plat-map/internal/scene"
	"github.com/joeblew999/plat-map/internal/service"
	"github.com/joeblew999/plat-map/internal/session"
	"github.com/joeblew999/plat-map/internal/templates"
)

type stubLayer struct{ wheres []string }

func (l *stubLayer) Load(ctx context.Context) error { return nil }

func (l *stubLayer) Metadata(ctx context.Context) (session.Metadata, error) {
	return session.Metadata{Name: "Parks", Fields: []filter.FieldDescriptor{
		{Name: "OBJECTID", Type: filter.TypeObjectID},
		{Name: "NAME", Alias: "Park Name", Type: filter.TypeString},
	}}, nil
}

func (l *stubLayer) SetWhere(ctx context.Context, where string) error {
	l.wheres = append(l.wheres, where)
	return nil
}

func (l *stubLayer) Features(ctx context.Context) (*geojson.FeatureCollection, error) {
	return geojson.NewFeatureCollection(), nil
}

type stubService struct{ layer *stubLayer }

func (s stubService) Open(url string) (session.Layer, error) { return s.layer, nil }

type memStore map[string]string

func (m memStore) Get(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m memStore) Set(key, value string) error {
	m[key] = value
	return nil
}

type editorEnv struct {
	mux      *http.ServeMux
	bus      *service.EventBus
	session  *session.Session
	sessions *SessionHandler
	layer    *stubLayer
}

func newEditorEnv(t *testing.T) *editorEnv {
	t.Helper()

	r, err := templates.New(templates.Fragments)
	require.NoError(t, err)

	bus := service.NewEventBus()
	layer := &stubLayer{}
	s := session.New(session.Config{
		Service:  stubService{layer: layer},
		Renderer: scene.New(bus),
		Notifier: bus,
	})
	endpoints := service.NewEndpointService(memStore{}, bus, nil)
	require.NoError(t, endpoints.Load())

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("editor test", "1.0.0"))
	sessions := NewSessionHandler(s, endpoints, Handler{Renderer: r})
	sessions.RegisterRoutes(api)
	NewEventHandler(bus, sessions).RegisterRoutes(api)

	return &editorEnv{mux: mux, bus: bus, session: s, sessions: sessions, layer: layer}
}

func (e *editorEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *editorEnv) ready(t *testing.T) {
	t.Helper()
	_, err := e.session.Load(context.Background(), "https://example.com/arcgis/rest/services/Parks/FeatureServer/0")
	require.NoError(t, err)
	e.session.Wait()
	require.Equal(t, session.Ready, e.session.Snapshot().State)
}

func TestParseFilterSignals(t *testing.T) {
	rows, logic, err := ParseFilterSignals([]byte(`{
		"logic": "OR",
		"conditions": [
			{"field": "NAME", "operator": "LIKE", "value": "Hy"},
			{"field": "ACRES", "operator": ">=", "value": 10},
			{"field": "NAME", "value": "x"}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, filter.Or, logic)
	assert.Equal(t, []filter.Condition{
		{Field: "NAME", Operator: filter.OpLike, Value: "Hy"},
		{Field: "ACRES", Operator: filter.OpGe, Value: "10"},
	}, rows)

	rows, logic, err = ParseFilterSignals([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, filter.And, logic)
	assert.Empty(t, rows)

	_, _, err = ParseFilterSignals([]byte(`{"conditions":[
		{"field": "NAME", "operator": "=", "value": "Hyde"},
		{"field": "NAME", "operator": "~", "value": "x"}]}`))
	assert.ErrorContains(t, err, `unknown operator "~"`)

	_, _, err = ParseFilterSignals([]byte(`{"logic":"XOR"}`))
	assert.Error(t, err)

	_, _, err = ParseFilterSignals([]byte(`{`))
	assert.Error(t, err)
}

func TestEndpointOptions(t *testing.T) {
	env := newEditorEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/editor/endpoints", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "#endpoint-select")
	assert.Contains(t, body, `<option value="">Select a saved endpoint...</option>`)
	assert.Contains(t, body, service.DefaultEndpoints[0].Name)

	rec = env.do(http.MethodPost, "/api/v1/editor/endpoints", `{"endpointname":"Aardvarks","endpointurl":"https://a.example/FeatureServer/0"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Contains(t, body, `<option value="0" selected>Aardvarks</option>`)
	assert.Contains(t, body, "Endpoint 'Aardvarks' saved")

	rec = env.do(http.MethodPost, "/api/v1/editor/endpoints", `{"endpointname":"Again","endpointurl":"https://a.example/FeatureServer/0"}`)
	assert.Contains(t, rec.Body.String(), service.ErrDuplicateEndpoint.Error())
}

func TestLoadAndFilter(t *testing.T) {
	env := newEditorEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/editor/filter", `{"conditions":[]}`)
	assert.Contains(t, rec.Body.String(), session.ErrNotReady.Error())

	rec = env.do(http.MethodPost, "/api/v1/editor/load", `{"url":"","endpoint":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	env.session.Wait()
	snap := env.session.Snapshot()
	require.Equal(t, session.Ready, snap.State)
	assert.Equal(t, service.DefaultEndpoints[1].URL, snap.URL)

	rec = env.do(http.MethodGet, "/api/v1/editor/fields", "")
	body := rec.Body.String()
	assert.Contains(t, body, "#field-select")
	assert.Contains(t, body, `<option value="NAME">Park Name</option>`)
	assert.NotContains(t, body, "OBJECTID")

	rec = env.do(http.MethodPost, "/api/v1/editor/filter", `{"logic":"AND","conditions":[{"field":"NAME","operator":"=","value":"x"}]}`)
	assert.Contains(t, rec.Body.String(), `"predicate":"NAME = 'x'"`)
	assert.Equal(t, []string{"NAME = 'x'"}, env.layer.wheres)

	rec = env.do(http.MethodPost, "/api/v1/editor/filter", `{"conditions":[{"field":"NAME","operator":"~","value":"y"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"NAME = 'x'"}, env.layer.wheres, "rejected rows never reach the layer")

	rec = env.do(http.MethodPost, "/api/v1/editor/filter", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventForwarding(t *testing.T) {
	env := newEditorEnv(t)
	env.ready(t)

	rec := httptest.NewRecorder()
	sse := SSE{datastar.NewSSE(rec, httptest.NewRequest(http.MethodGet, "/api/v1/editor/events", nil))}
	events := NewEventHandler(env.bus, env.sessions)

	events.forward(sse, service.Event{Resource: "message", Action: "warn", Level: session.LevelWarn, Text: "Careful"})
	events.forward(sse, service.Event{Resource: "map", Action: "overlay-added", ID: "h1"})

	body := rec.Body.String()
	assert.Contains(t, body, `<div class="message message-warn" role="status">Careful</div>`)
	assert.Contains(t, body, "#messages")
	assert.Contains(t, body, `"messagelevel":"warn"`)
	assert.Contains(t, body, `"layerstate":"ready"`)
	assert.Contains(t, body, `"filterenabled":true`)
	assert.Contains(t, body, `<option value="NAME">Park Name</option>`)
	assert.Contains(t, body, "resource-changed")
}
