package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-map/internal/filter"
)

// Config holds the session collaborators.
type Config struct {
	Service  FeatureService
	Renderer Renderer
	Notifier Notifier
	Logger   *zap.Logger
}

// Session is the single active layer context. Loading a layer tears down
// the previous one.
type Session struct {
	svc    FeatureService
	r      Renderer
	notify Notifier
	log    *zap.Logger

	mu    sync.Mutex
	loads sync.WaitGroup
	// filterMu serializes predicate changes so the layer and the session
	// agree on the installed predicate. Taken before mu.
	filterMu sync.Mutex

	state   State
	handle  Handle
	url     string
	name    string
	layer   Layer
	overlay bool
	fields  map[string]filter.FieldDescriptor
	order   []string
	style   Style

	predicate  string
	selected   *geojson.Feature
	selectedID string
}

// New creates an idle session.
func New(cfg Config) *Session {
	s := &Session{
		svc:    cfg.Service,
		r:      cfg.Renderer,
		notify: cfg.Notifier,
		log:    cfg.Logger,
		style:  DefaultStyle,
	}
	if s.notify == nil {
		s.notify = NotifierFunc(func(Level, string) {})
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Load starts loading url and finishes asynchronously with MarkReady or
// MarkFailed. The returned handle identifies this attempt.
func (s *Session) Load(ctx context.Context, url string) (Handle, error) {
	s.mu.Lock()
	h, err := s.beginLoad(url)
	layer := s.layer
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	s.loads.Add(1)
	go func() {
		defer s.loads.Done()
		s.complete(context.WithoutCancel(ctx), h, layer)
	}()
	return h, nil
}

func (s *Session) complete(ctx context.Context, h Handle, layer Layer) {
	if err := layer.Load(ctx); err != nil {
		if err := s.MarkFailed(h, err); err != nil {
			s.log.Debug("dropping stale load failure", zap.String("handle", string(h)))
		}
		return
	}

	meta, metaErr := layer.Metadata(ctx)
	if metaErr != nil {
		s.log.Warn("could not fetch layer metadata", zap.String("handle", string(h)), zap.Error(metaErr))
		meta = Metadata{}
	}

	if err := s.MarkReady(h, meta); err != nil {
		s.log.Debug("dropping stale load completion", zap.String("handle", string(h)))
		return
	}
	if metaErr != nil {
		s.notify.Notify(LevelWarn, "Could not fetch layer metadata for filtering.")
	}
}

// Wait blocks until every asynchronous load has settled.
func (s *Session) Wait() {
	s.loads.Wait()
}

// BeginLoad moves the session to Loading for url.
func (s *Session) BeginLoad(url string) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLoad(url)
}

func (s *Session) beginLoad(url string) (Handle, error) {
	if s.state == Loading {
		s.notify.Notify(LevelInfo, "Layer is already loading...")
		return "", ErrAlreadyLoading
	}
	url = strings.TrimSpace(url)
	if url == "" {
		s.notify.Notify(LevelWarn, "Please enter or select a URL.")
		return "", ErrEmptyURL
	}

	if s.state == Ready {
		s.remove(false)
	}

	layer, err := s.svc.Open(url)
	if err != nil {
		lerr := &LoadError{URL: url, Err: err}
		s.notify.Notify(LevelError, "Error loading layer: "+UpstreamMessage(err))
		return "", lerr
	}
	if !looksLikeService(url) {
		s.notify.Notify(LevelWarn, "URL does not look like a valid Feature/Map Server URL.")
	}

	h := Handle(uuid.NewString())
	s.state = Loading
	s.handle = h
	s.url = url
	s.layer = layer
	s.clearLayerState()
	s.r.AddLayer(h, url, s.style)

	s.log.Info("loading layer", zap.String("handle", string(h)), zap.String("url", url))
	s.notify.Notify(LevelInfo, "Loading layer...")
	return h, nil
}

// MarkReady completes the load identified by h. A failed metadata fetch
// is passed as empty metadata: the layer still becomes ready, without
// filterable fields and with a name derived from its URL.
func (s *Session) MarkReady(h Handle, meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Loading || h != s.handle {
		return ErrStaleHandle
	}

	s.name = meta.Name
	if s.name == "" {
		s.name = FallbackName(s.url)
	}
	s.fields = make(map[string]filter.FieldDescriptor, len(meta.Fields))
	s.order = s.order[:0]
	for _, f := range meta.Fields {
		if !f.Filterable() {
			continue
		}
		if _, dup := s.fields[f.Name]; !dup {
			s.order = append(s.order, f.Name)
		}
		s.fields[f.Name] = f
	}

	s.style = DefaultStyle
	s.r.SetLayerStyle(h, s.style)
	s.r.AddOverlay(h, s.name)
	s.overlay = true
	s.state = Ready

	s.log.Info("layer ready",
		zap.String("handle", string(h)),
		zap.String("name", s.name),
		zap.Int("fields", len(s.order)))
	s.notify.Notify(LevelInfo, fmt.Sprintf("Layer '%s' loaded.", s.name))
	if len(s.order) == 0 && len(meta.Fields) > 0 {
		s.notify.Notify(LevelWarn, "No filterable fields found in layer.")
	}
	return nil
}

// MarkFailed aborts the load identified by h and rolls back every map and
// control artifact added for it.
func (s *Session) MarkFailed(h Handle, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Loading || h != s.handle {
		return ErrStaleHandle
	}

	s.r.RemoveLayer(h)
	if s.overlay {
		s.r.RemoveOverlay(h)
	}
	s.handle = ""
	s.layer = nil
	s.clearLayerState()
	s.state = Failed

	msg := UpstreamMessage(cause)
	s.log.Warn("layer load failed", zap.String("url", s.url), zap.Error(cause))
	s.notify.Notify(LevelError, "Error loading layer: "+msg)
	return nil
}

// Remove tears down the active or loading layer.
func (s *Session) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Ready && s.state != Loading {
		s.notify.Notify(LevelWarn, "No layer is currently active to remove.")
		return ErrNoActiveLayer
	}
	s.remove(true)
	return nil
}

// remove keeps the active style; the next MarkReady resets it.
func (s *Session) remove(announce bool) {
	name := s.name
	if name == "" {
		name = "Layer"
	}

	s.r.RemoveLayer(s.handle)
	if s.overlay {
		s.r.RemoveOverlay(s.handle)
	}
	s.log.Info("layer removed", zap.String("handle", string(s.handle)), zap.String("name", name))

	s.handle = ""
	s.layer = nil
	s.clearLayerState()
	s.state = Removed

	if announce {
		s.notify.Notify(LevelInfo, fmt.Sprintf("Layer '%s' removed.", name))
	}
}

func (s *Session) clearLayerState() {
	s.name = ""
	s.overlay = false
	s.fields = nil
	s.order = nil
	s.predicate = ""
	s.selected = nil
	s.selectedID = ""
}

// ready returns the live handle and layer, or ErrNotReady.
func (s *Session) ready() (Handle, Layer, error) {
	if s.state != Ready {
		return "", nil, ErrNotReady
	}
	return s.handle, s.layer, nil
}

// ApplyFilter compiles rows and installs the predicate on the layer. No
// surviving clause clears the filter. The active predicate changes only
// when the layer accepted the new one.
func (s *Session) ApplyFilter(ctx context.Context, rows []filter.Condition, logic filter.Logic) (string, error) {
	s.filterMu.Lock()
	defer s.filterMu.Unlock()

	s.mu.Lock()
	h, layer, err := s.ready()
	if err != nil {
		s.mu.Unlock()
		s.notify.Notify(LevelWarn, "No layer loaded to filter.")
		return "", err
	}
	if len(s.fields) == 0 {
		s.mu.Unlock()
		s.notify.Notify(LevelWarn, "No filterable fields found in layer.")
		return "", ErrNoFields
	}
	types := make(map[string]filter.FieldType, len(s.fields))
	for name, f := range s.fields {
		types[name] = f.Type
	}
	s.mu.Unlock()

	predicate, _ := filter.Compile(rows, logic, types)
	if err := s.setWhere(ctx, h, layer, predicate); err != nil {
		return "", err
	}

	if predicate != "" {
		s.notify.Notify(LevelInfo, "Filter applied: "+predicate)
	} else {
		s.notify.Notify(LevelInfo, "Filter cleared (no conditions specified).")
	}
	return predicate, nil
}

// ClearFilter removes the active predicate.
func (s *Session) ClearFilter(ctx context.Context) error {
	s.filterMu.Lock()
	defer s.filterMu.Unlock()

	s.mu.Lock()
	h, layer, err := s.ready()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := s.setWhere(ctx, h, layer, ""); err != nil {
		return err
	}
	s.notify.Notify(LevelInfo, "Filter cleared.")
	return nil
}

// setWhere must be called with filterMu held.
func (s *Session) setWhere(ctx context.Context, h Handle, layer Layer, predicate string) error {
	if err := layer.SetWhere(ctx, predicate); err != nil {
		s.notify.Notify(LevelError, "Could not apply filter: "+UpstreamMessage(err))
		return fmt.Errorf("set predicate: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready || s.handle != h {
		return ErrStaleHandle
	}
	s.predicate = predicate
	s.log.Debug("predicate set", zap.String("handle", string(h)), zap.String("where", predicate))
	return nil
}

// ApplyColor replaces the stroke and fill color of the active style.
func (s *Session) ApplyColor(color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, _, err := s.ready()
	if err != nil {
		s.notify.Notify(LevelWarn, "No layer loaded to change color.")
		return err
	}

	s.style = s.style.WithColor(color)
	s.r.SetLayerStyle(h, s.style)
	if s.selected != nil {
		s.r.SetFeatureStyle(h, s.selectedID, s.style)
	}
	s.notify.Notify(LevelInfo, "Layer color changed to "+color)
	return nil
}

// Select toggles the selection of f. Selecting the selected feature again
// deselects it; selecting another feature restores the previous one's style
// first. It reports whether f is selected afterwards.
func (s *Session) Select(f *geojson.Feature) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, _, err := s.ready()
	if err != nil {
		return false, err
	}
	id, ok := FeatureID(f)
	if !ok {
		return false, ErrNoFeatureID
	}

	if s.selected != nil {
		s.r.SetFeatureStyle(h, s.selectedID, s.style)
		if s.selectedID == id {
			s.selected = nil
			s.selectedID = ""
			s.notify.Notify(LevelInfo, "Feature deselected.")
			return false, nil
		}
	}

	s.selected = f
	s.selectedID = id
	s.r.SetFeatureStyle(h, id, SelectedStyle)
	s.notify.Notify(LevelInfo, "Feature selected. Click 'Copy Selected' to copy it.")
	return true, nil
}

// CopySelected clones the selected feature into the drawn collection and
// deselects it.
func (s *Session) CopySelected() (*geojson.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Ready || s.selected == nil {
		s.notify.Notify(LevelWarn, "Please select a feature on the map first.")
		return nil, ErrNoSelection
	}

	copied := cloneFeature(s.selected)
	s.r.AddCopied(copied, CopiedStyle)
	s.r.SetFeatureStyle(s.handle, s.selectedID, s.style)

	s.notify.Notify(LevelInfo, "Copied feature: "+displayName(s.selected, s.selectedID))
	s.selected = nil
	s.selectedID = ""
	return copied, nil
}

// Features returns the active layer's features under the active predicate.
func (s *Session) Features(ctx context.Context) (*geojson.FeatureCollection, error) {
	s.mu.Lock()
	_, layer, err := s.ready()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return layer.Features(ctx)
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := make([]filter.FieldDescriptor, 0, len(s.order))
	for _, name := range s.order {
		fields = append(fields, s.fields[name])
	}

	return Snapshot{
		State:         s.state,
		Handle:        s.handle,
		URL:           s.url,
		Name:          s.name,
		Fields:        fields,
		Style:         s.style,
		Predicate:     s.predicate,
		Selected:      s.selectedID,
		FilterEnabled: s.state == Ready && len(fields) > 0,
		StyleEnabled:  s.state == Ready,
		CopyEnabled:   s.state == Ready && s.selected != nil,
		RemoveEnabled: s.state == Ready || s.state == Loading,
	}
}

// FeatureID returns the identifier of f: its GeoJSON id, or an object id
// attribute.
func FeatureID(f *geojson.Feature) (string, bool) {
	if f == nil {
		return "", false
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID), true
	}
	for _, key := range []string{"OBJECTID", "objectid", "FID"} {
		if v, ok := f.Properties[key]; ok && v != nil {
			return fmt.Sprint(v), true
		}
	}
	return "", false
}

func cloneFeature(f *geojson.Feature) *geojson.Feature {
	var g orb.Geometry
	if f.Geometry != nil {
		g = orb.Clone(f.Geometry)
	}
	c := geojson.NewFeature(g)
	c.ID = f.ID
	c.Properties = f.Properties.Clone()
	return c
}

// displayName prefers an attribute that looks like a name or title.
func displayName(f *geojson.Feature, id string) string {
	keys := make([]string, 0, len(f.Properties))
	for k := range f.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "name") || strings.Contains(lk, "nom") || strings.Contains(lk, "title") {
			return fmt.Sprint(f.Properties[k])
		}
	}
	if id == "" {
		id = "(no ID)"
	}
	return "Feature " + id
}

// IsStale reports whether err came from a superseded load.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleHandle)
}
