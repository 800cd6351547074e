// Package scene models what the map page renders: remote layers with their
// styles, the overlay control entries, and the drawn features collection.
// The page mirrors it through the API and the event stream.
package scene

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-map/internal/service"
	"github.com/joeblew999/plat-map/internal/session"
)

// DrawnOverlay is the name of the always-present overlay holding drawn,
// copied and loaded features.
const DrawnOverlay = "Drawn & Copied Features"

// LayerView is a remote layer on the map.
type LayerView struct {
	Handle        session.Handle           `json:"handle"`
	URL           string                   `json:"url"`
	Style         session.Style            `json:"style"`
	FeatureStyles map[string]session.Style `json:"featureStyles,omitempty"`
}

// Overlay is an entry in the layer control.
type Overlay struct {
	Handle session.Handle `json:"handle,omitempty"`
	Name   string         `json:"name"`
}

// Bounds is a south-west / north-east box in lon/lat.
type Bounds struct {
	Min [2]float64 `json:"min"`
	Max [2]float64 `json:"max"`
}

// State is a copy of the map model.
type State struct {
	Layers   []LayerView `json:"layers"`
	Overlays []Overlay   `json:"overlays"`
	Drawn    int         `json:"drawn" doc:"Number of drawn features"`
	View     *Bounds     `json:"view,omitempty" doc:"Last fitted bounds"`
}

// Map is the in-process map model. It implements session.Renderer.
type Map struct {
	bus *service.EventBus

	mu       sync.RWMutex
	layers   map[session.Handle]*LayerView
	order    []session.Handle
	overlays []Overlay
	drawn    *geojson.FeatureCollection
	styles   map[string]session.Style
	view     *orb.Bound
}

var _ session.Renderer = (*Map)(nil)

// New creates an empty map. bus may be nil.
func New(bus *service.EventBus) *Map {
	return &Map{
		bus:      bus,
		layers:   make(map[session.Handle]*LayerView),
		overlays: []Overlay{{Name: DrawnOverlay}},
		drawn:    geojson.NewFeatureCollection(),
		styles:   make(map[string]session.Style),
	}
}

func (m *Map) publish(action, id string) {
	if m.bus != nil {
		m.bus.Publish(service.Event{Resource: "map", Action: action, ID: id})
	}
}

func (m *Map) AddLayer(h session.Handle, url string, style session.Style) {
	m.mu.Lock()
	if _, ok := m.layers[h]; !ok {
		m.order = append(m.order, h)
	}
	m.layers[h] = &LayerView{Handle: h, URL: url, Style: style, FeatureStyles: map[string]session.Style{}}
	m.mu.Unlock()
	m.publish("layer-added", string(h))
}

func (m *Map) RemoveLayer(h session.Handle) {
	m.mu.Lock()
	_, ok := m.layers[h]
	delete(m.layers, h)
	for i, o := range m.order {
		if o == h {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	if ok {
		m.publish("layer-removed", string(h))
	}
}

func (m *Map) AddOverlay(h session.Handle, name string) {
	m.mu.Lock()
	for _, o := range m.overlays {
		if o.Handle == h {
			m.mu.Unlock()
			return
		}
	}
	m.overlays = append(m.overlays, Overlay{Handle: h, Name: name})
	m.mu.Unlock()
	m.publish("overlay-added", string(h))
}

func (m *Map) RemoveOverlay(h session.Handle) {
	m.mu.Lock()
	removed := false
	for i, o := range m.overlays {
		if o.Handle == h && h != "" {
			m.overlays = append(m.overlays[:i], m.overlays[i+1:]...)
			removed = true
			break
		}
	}
	m.mu.Unlock()
	if removed {
		m.publish("overlay-removed", string(h))
	}
}

func (m *Map) SetLayerStyle(h session.Handle, style session.Style) {
	m.mu.Lock()
	lv, ok := m.layers[h]
	if ok {
		lv.Style = style
		// a layer restyle applies to every feature without an override
		lv.FeatureStyles = map[string]session.Style{}
	}
	m.mu.Unlock()
	if ok {
		m.publish("layer-styled", string(h))
	}
}

func (m *Map) SetFeatureStyle(h session.Handle, featureID string, style session.Style) {
	m.mu.Lock()
	lv, ok := m.layers[h]
	if ok {
		if style == lv.Style {
			delete(lv.FeatureStyles, featureID)
		} else {
			lv.FeatureStyles[featureID] = style
		}
	}
	m.mu.Unlock()
	if ok {
		m.publish("feature-styled", featureID)
	}
}

// FeatureStyle returns the effective style of a feature on layer h.
func (m *Map) FeatureStyle(h session.Handle, featureID string) (session.Style, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lv, ok := m.layers[h]
	if !ok {
		return session.Style{}, false
	}
	if s, ok := lv.FeatureStyles[featureID]; ok {
		return s, true
	}
	return lv.Style, true
}

// AddCopied appends a copied feature to the drawn collection.
func (m *Map) AddCopied(f *geojson.Feature, style session.Style) {
	m.add(f, style, "copied")
}

// Draw appends a feature created with the drawing tools and returns its id.
func (m *Map) Draw(f *geojson.Feature) string {
	return m.add(f, session.CopiedStyle, "drawn")
}

func (m *Map) add(f *geojson.Feature, style session.Style, kind string) string {
	m.mu.Lock()
	id := m.ensureID(f)
	m.drawn.Append(f)
	m.styles[id] = style
	m.mu.Unlock()
	m.publish(kind+"-added", id)
	return id
}

// ensureID gives f a unique id within the drawn collection.
func (m *Map) ensureID(f *geojson.Feature) string {
	if f.ID != nil {
		id := fmt.Sprint(f.ID)
		if _, taken := m.styles[id]; !taken {
			return id
		}
	}
	id := uuid.NewString()
	f.ID = id
	return id
}

// DeleteDrawn removes a drawn feature by id.
func (m *Map) DeleteDrawn(id string) bool {
	m.mu.Lock()
	found := false
	for i, f := range m.drawn.Features {
		if fmt.Sprint(f.ID) == id {
			m.drawn.Features = append(m.drawn.Features[:i], m.drawn.Features[i+1:]...)
			delete(m.styles, id)
			found = true
			break
		}
	}
	m.mu.Unlock()
	if found {
		m.publish("drawn-deleted", id)
	}
	return found
}

// AddLoaded appends every feature of fc, fits the view to them and returns
// the fitted bounds. ok is false when fc has no geometry.
func (m *Map) AddLoaded(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	for _, f := range fc.Features {
		m.add(f, session.CopiedStyle, "loaded")
	}
	b, ok := collectionBound(fc)
	if ok {
		m.FitBounds(b)
	}
	return b, ok
}

// FitBounds moves the view to b.
func (m *Map) FitBounds(b orb.Bound) {
	m.mu.Lock()
	m.view = &b
	m.mu.Unlock()
	m.publish("view-fitted", "")
}

// Drawn returns a copy of the drawn collection.
func (m *Map) Drawn() *geojson.FeatureCollection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fc := geojson.NewFeatureCollection()
	fc.Features = append(fc.Features, m.drawn.Features...)
	return fc
}

// DrawnStyle returns the style of a drawn feature.
func (m *Map) DrawnStyle(id string) (session.Style, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.styles[id]
	return s, ok
}

// Snapshot returns a copy of the map model.
func (m *Map) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := State{
		Layers:   make([]LayerView, 0, len(m.order)),
		Overlays: append([]Overlay(nil), m.overlays...),
		Drawn:    len(m.drawn.Features),
	}
	for _, h := range m.order {
		lv := *m.layers[h]
		lv.FeatureStyles = make(map[string]session.Style, len(m.layers[h].FeatureStyles))
		for k, v := range m.layers[h].FeatureStyles {
			lv.FeatureStyles[k] = v
		}
		st.Layers = append(st.Layers, lv)
	}
	if m.view != nil {
		st.View = &Bounds{Min: m.view.Min, Max: m.view.Max}
	}
	return st
}

func collectionBound(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var (
		b     orb.Bound
		found bool
	)
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		fb := f.Geometry.Bound()
		if !found {
			b, found = fb, true
			continue
		}
		b = b.Union(fb)
	}
	return b, found
}
