// Package session owns the lifecycle of the single active remote feature
// layer: loading, field metadata, filter and style state, and selection.
package session

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-map/internal/filter"
)

// State is the lifecycle state of the layer session.
type State int

const (
	Idle State = iota
	Loading
	Ready
	Failed
	Removed
)

var stateNames = [...]string{"idle", "loading", "ready", "failed", "removed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Handle identifies one load attempt. Completions carrying a handle other
// than the live one are stale.
type Handle string

// Style is the visual style of a layer or feature.
type Style struct {
	StrokeColor   string  `json:"strokeColor" doc:"Stroke color (CSS)" example:"#E67E22"`
	StrokeWeight  float64 `json:"strokeWeight" doc:"Stroke width in pixels"`
	StrokeOpacity float64 `json:"strokeOpacity" minimum:"0" maximum:"1" doc:"Stroke opacity (0-1)"`
	FillColor     string  `json:"fillColor" doc:"Fill color (CSS)" example:"#E67E22"`
	FillOpacity   float64 `json:"fillOpacity" minimum:"0" maximum:"1" doc:"Fill opacity (0-1)"`
}

// WithColor replaces stroke and fill color, keeping weight and opacities.
func (s Style) WithColor(color string) Style {
	s.StrokeColor = color
	s.FillColor = color
	return s
}

// Style presets.
var (
	DefaultStyle  = Style{StrokeColor: "#E67E22", StrokeWeight: 1.5, StrokeOpacity: 0.8, FillColor: "#E67E22", FillOpacity: 0.1}
	SelectedStyle = Style{StrokeColor: "#f0e442", StrokeWeight: 3, StrokeOpacity: 1, FillColor: "#f0e442", FillOpacity: 0.3}
	CopiedStyle   = Style{StrokeColor: "#ff7800", StrokeWeight: 3, StrokeOpacity: 0.8, FillColor: "#ff7800", FillOpacity: 0.3}
)

// Metadata is what a feature service reports about a layer.
type Metadata struct {
	Name   string
	Fields []filter.FieldDescriptor
}

// Layer is one opened remote feature layer.
type Layer interface {
	// Load performs the initial feature request.
	Load(ctx context.Context) error
	Metadata(ctx context.Context) (Metadata, error)
	// SetWhere installs a predicate; an empty string clears it.
	SetWhere(ctx context.Context, where string) error
	Features(ctx context.Context) (*geojson.FeatureCollection, error)
}

// FeatureService opens remote layers by URL.
type FeatureService interface {
	Open(url string) (Layer, error)
}

// Renderer is the map the session draws into.
type Renderer interface {
	AddLayer(h Handle, url string, style Style)
	RemoveLayer(h Handle)
	AddOverlay(h Handle, name string)
	RemoveOverlay(h Handle)
	SetLayerStyle(h Handle, style Style)
	SetFeatureStyle(h Handle, featureID string, style Style)
	AddCopied(f *geojson.Feature, style Style)
}

// Level is the severity of a user-visible message.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notifier shows transient messages to the user.
type Notifier interface {
	Notify(level Level, text string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, text string)

func (f NotifierFunc) Notify(level Level, text string) { f(level, text) }

// Snapshot is a read-only view of the session.
type Snapshot struct {
	State         State                    `json:"state" doc:"Lifecycle state" enum:"idle,loading,ready,failed,removed"`
	Handle        Handle                   `json:"handle,omitempty" doc:"Current load handle"`
	URL           string                   `json:"url,omitempty" doc:"Layer URL"`
	Name          string                   `json:"name,omitempty" doc:"Layer display name"`
	Fields        []filter.FieldDescriptor `json:"fields" doc:"Filterable fields"`
	Style         Style                    `json:"style" doc:"Active layer style"`
	Predicate     string                   `json:"predicate,omitempty" doc:"Active filter predicate"`
	Selected      string                   `json:"selected,omitempty" doc:"Selected feature ID"`
	FilterEnabled bool                     `json:"filterEnabled" doc:"Whether filter controls are enabled"`
	StyleEnabled  bool                     `json:"styleEnabled" doc:"Whether style controls are enabled"`
	CopyEnabled   bool                     `json:"copyEnabled" doc:"Whether a selected feature can be copied"`
	RemoveEnabled bool                     `json:"removeEnabled" doc:"Whether the layer can be removed"`
}
