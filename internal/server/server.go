// Package server wires the map client services into an HTTP handler.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-map/internal/api"
	"github.com/joeblew999/plat-map/internal/api/editor"
	"github.com/joeblew999/plat-map/internal/arcgis"
	"github.com/joeblew999/plat-map/internal/db"
	"github.com/joeblew999/plat-map/internal/scene"
	"github.com/joeblew999/plat-map/internal/service"
	"github.com/joeblew999/plat-map/internal/session"
	"github.com/joeblew999/plat-map/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string // empty keeps the endpoint store in memory
	// TemplatesDir serves the HTML fragments from disk and enables
	// reloading them. Empty uses the built-in fragments.
	TemplatesDir string
	Logger       *zap.Logger
}

// Server is the map client HTTP server.
type Server struct {
	config   Config
	log      *zap.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	store    *db.Store
	bus      *service.EventBus
	services *api.Services
	renderer *templates.Renderer
	frags    fs.FS
}

// New creates a new map client server.
func New(cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-map API", "1.0.0")
	humaConfig.Info.Description = "Map client API: load ArcGIS feature layers, filter and style them, copy and draw features."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)
	humaAPI.UseMiddleware(requestLogger(log))

	store, err := db.Open(context.Background(), db.Config{DataDir: cfg.DataDir, DBName: "mapclient"})
	if err != nil {
		return nil, err
	}

	var frags fs.FS = templates.Fragments
	if cfg.TemplatesDir != "" {
		frags = os.DirFS(cfg.TemplatesDir)
	}
	renderer, err := templates.New(frags)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("parse fragments: %w", err)
	}

	bus := service.NewEventBus()
	m := scene.New(bus)
	endpoints := service.NewEndpointService(store, bus, log.Named("endpoints"))
	if err := endpoints.Load(); err != nil {
		log.Warn("using default endpoints", zap.Error(err))
		bus.Notify(session.LevelError, "Could not load saved endpoints.")
	}

	s := &Server{
		config:  cfg,
		log:     log,
		mux:     mux,
		humaAPI: humaAPI,
		store:   store,
		bus:     bus,
		services: &api.Services{
			Session: session.New(session.Config{
				Service:  arcgis.NewClient(nil, log.Named("arcgis")),
				Renderer: m,
				Notifier: bus,
				Logger:   log.Named("session"),
			}),
			Endpoints: endpoints,
			GeoJSON:   service.NewGeoJSONService(log.Named("geojson")),
			Map:       m,
		},
		renderer: renderer,
		frags:    frags,
	}

	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated API description.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// LoadFirstEndpoint starts loading the first saved endpoint, if any.
func (s *Server) LoadFirstEndpoint(ctx context.Context) error {
	ep, ok := s.services.Endpoints.Get(0)
	if !ok {
		return nil
	}
	s.log.Info("loading first saved endpoint", zap.String("name", ep.Name), zap.String("url", ep.URL))
	_, err := s.services.Session.Load(ctx, ep.URL)
	return err
}

// Close waits for pending layer loads and closes the store.
func (s *Server) Close() error {
	s.services.Session.Wait()
	return s.store.Close()
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(s.config.DataDir, s.config.DataDir != "").RegisterRoutes(s.humaAPI)
	api.NewStoreHandler(s.store).RegisterRoutes(s.humaAPI)

	// Register Datastar SSE routes for the map page
	sessions := editor.NewSessionHandler(s.services.Session, s.services.Endpoints, editor.Handler{Renderer: s.renderer})
	sessions.RegisterRoutes(s.humaAPI)
	editor.NewEventHandler(s.bus, sessions).RegisterRoutes(s.humaAPI)
	if s.config.TemplatesDir != "" {
		editor.NewTemplateHandler(s.renderer, s.frags).RegisterRoutes(s.humaAPI)
	}

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-map",
		"status":  "running",
		"state":   s.services.Session.Snapshot().State.String(),
	})
}

// requestLogger logs every API operation with its status and duration.
func requestLogger(log *zap.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		next(ctx)
		log.Debug("request",
			zap.String("method", ctx.Method()),
			zap.String("path", ctx.URL().Path),
			zap.Int("status", ctx.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
