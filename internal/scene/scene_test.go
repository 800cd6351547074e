package scene

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-map/internal/service"
	"github.com/joeblew999/plat-map/internal/session"
)

func TestMap_LayersAndOverlays(t *testing.T) {
	bus := service.NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	m := New(bus)
	m.AddLayer("h1", "https://example.com/FeatureServer/0", session.DefaultStyle)
	m.AddOverlay("h1", "Parks")
	m.AddOverlay("h1", "Parks")

	st := m.Snapshot()
	require.Len(t, st.Layers, 1)
	assert.Equal(t, session.Handle("h1"), st.Layers[0].Handle)
	require.Len(t, st.Overlays, 2)
	assert.Equal(t, DrawnOverlay, st.Overlays[0].Name)
	assert.Equal(t, "Parks", st.Overlays[1].Name)

	ev := <-ch
	assert.Equal(t, "map", ev.Resource)
	assert.Equal(t, "layer-added", ev.Action)

	m.RemoveOverlay("h1")
	m.RemoveLayer("h1")
	m.RemoveOverlay("")

	st = m.Snapshot()
	assert.Empty(t, st.Layers)
	require.Len(t, st.Overlays, 1)
	assert.Equal(t, DrawnOverlay, st.Overlays[0].Name)
}

func TestMap_Styles(t *testing.T) {
	m := New(nil)
	m.AddLayer("h1", "u", session.DefaultStyle)

	m.SetFeatureStyle("h1", "7", session.SelectedStyle)
	s, ok := m.FeatureStyle("h1", "7")
	require.True(t, ok)
	assert.Equal(t, session.SelectedStyle, s)

	m.SetFeatureStyle("h1", "7", session.DefaultStyle)
	assert.Empty(t, m.Snapshot().Layers[0].FeatureStyles)

	red := session.DefaultStyle.WithColor("#ff0000")
	m.SetFeatureStyle("h1", "8", session.SelectedStyle)
	m.SetLayerStyle("h1", red)
	s, _ = m.FeatureStyle("h1", "8")
	assert.Equal(t, red, s)

	_, ok = m.FeatureStyle("missing", "1")
	assert.False(t, ok)
}

func TestMap_Drawn(t *testing.T) {
	m := New(nil)

	drawn := geojson.NewFeature(orb.Point{1, 1})
	id := m.Draw(drawn)
	assert.NotEmpty(t, id)

	copied := geojson.NewFeature(orb.Point{2, 2})
	copied.ID = 5
	m.AddCopied(copied, session.CopiedStyle)

	dup := geojson.NewFeature(orb.Point{3, 3})
	dup.ID = 5
	dupID := m.Draw(dup)
	assert.NotEqual(t, "5", dupID)

	assert.Len(t, m.Drawn().Features, 3)
	s, ok := m.DrawnStyle("5")
	require.True(t, ok)
	assert.Equal(t, session.CopiedStyle, s)

	assert.True(t, m.DeleteDrawn("5"))
	assert.False(t, m.DeleteDrawn("5"))
	assert.Len(t, m.Drawn().Features, 2)
}

func TestMap_AddLoadedFitsBounds(t *testing.T) {
	m := New(nil)

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{-10, 5}))
	fc.Append(geojson.NewFeature(orb.LineString{{0, 0}, {20, 30}}))
	fc.Append(&geojson.Feature{Type: "Feature"})

	b, ok := m.AddLoaded(fc)
	require.True(t, ok)
	assert.Equal(t, orb.Point{-10, 0}, b.Min)
	assert.Equal(t, orb.Point{20, 30}, b.Max)

	st := m.Snapshot()
	assert.Equal(t, 3, st.Drawn)
	require.NotNil(t, st.View)
	assert.Equal(t, [2]float64{20, 30}, st.View.Max)

	_, ok = New(nil).AddLoaded(geojson.NewFeatureCollection())
	assert.False(t, ok)
}
