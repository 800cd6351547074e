// Package service contains business logic for the map client: saved
// endpoints, GeoJSON files and the event bus.
package service

// Endpoint is a saved feature service URL.
// Huma reads the tags for OpenAPI + request validation; validator reads
// the validate tags when endpoints are added programmatically.
type Endpoint struct {
	Name string `json:"name" required:"true" minLength:"1" maxLength:"200" doc:"Display name" example:"Parks" validate:"required,max=200"`
	URL  string `json:"url" required:"true" minLength:"1" doc:"Feature/Map Server layer URL" example:"https://sampleserver6.arcgisonline.com/arcgis/rest/services/USA/MapServer/2" validate:"required"`
}

// DefaultEndpoints are used when nothing usable is stored.
var DefaultEndpoints = []Endpoint{
	{Name: "USA States (Sample)", URL: "https://sampleserver6.arcgisonline.com/arcgis/rest/services/USA/MapServer/2"},
	{Name: "World Cities (Sample)", URL: "https://sampleserver6.arcgisonline.com/arcgis/rest/services/SampleWorldCities/MapServer/0"},
	{Name: "Hurricanes (Sample)", URL: "https://sampleserver6.arcgisonline.com/arcgis/rest/services/Hurricanes/MapServer/0"},
}

// KVStore is a persistent string key-value store.
type KVStore interface {
	Get(key string) (value string, found bool, err error)
	Set(key, value string) error
}
