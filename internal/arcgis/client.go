// Package arcgis is a minimal client for ArcGIS Feature/Map Server layers.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-map/internal/filter"
	"github.com/joeblew999/plat-map/internal/session"
)

// DefaultTimeout bounds every request to a feature service.
const DefaultTimeout = 30 * time.Second

// ServiceError is an error reported by the service or the transport.
type ServiceError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("arcgis: service error %d", e.Code)
	}
	return fmt.Sprintf("arcgis: %s (code %d)", e.Message, e.Code)
}

// Messages returns the service messages, most specific first.
func (e *ServiceError) Messages() []string {
	return append([]string{e.Message}, e.Details...)
}

// Client opens layers on ArcGIS REST services.
type Client struct {
	http *http.Client
	log  *zap.Logger
}

// NewClient creates a client. A nil http client gets DefaultTimeout.
func NewClient(hc *http.Client, log *zap.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{http: hc, log: log}
}

// Open validates url and returns a layer handle. No request is made.
func (c *Client) Open(rawURL string) (session.Layer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("arcgis: invalid layer url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("arcgis: unsupported scheme %q", u.Scheme)
	}
	u.RawQuery = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return &Layer{client: c, base: u}, nil
}

// Layer is one Feature/Map Server layer endpoint.
type Layer struct {
	client *Client
	base   *url.URL

	mu    sync.RWMutex
	where string
}

// URL returns the layer endpoint.
func (l *Layer) URL() string { return l.base.String() }

func (l *Layer) endpoint(suffix string, params url.Values) string {
	u := *l.base
	u.Path += suffix
	u.RawQuery = params.Encode()
	return u.String()
}

// get performs a GET and returns the body. Non-2xx statuses and error
// envelopes inside 200 responses become *ServiceError.
func (l *Layer) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arcgis: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("arcgis: read response: %w", err)
	}
	l.client.log.Debug("arcgis request",
		zap.String("url", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServiceError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	if e := gjson.GetBytes(body, "error"); e.Exists() {
		se := &ServiceError{}
		if err := json.Unmarshal([]byte(e.Raw), se); err != nil {
			se.Message = e.String()
		}
		return nil, se
	}
	return body, nil
}

// Load checks that the layer answers feature queries.
func (l *Layer) Load(ctx context.Context) error {
	_, err := l.get(ctx, l.endpoint("/query", url.Values{
		"where":           {"1=1"},
		"returnCountOnly": {"true"},
		"f":               {"json"},
	}))
	return err
}

type layerInfo struct {
	Name   string `json:"name"`
	Fields []struct {
		Name  string `json:"name"`
		Alias string `json:"alias"`
		Type  string `json:"type"`
	} `json:"fields"`
}

// Metadata fetches the layer name and field list.
func (l *Layer) Metadata(ctx context.Context) (session.Metadata, error) {
	body, err := l.get(ctx, l.endpoint("", url.Values{"f": {"json"}}))
	if err != nil {
		return session.Metadata{}, err
	}

	var info layerInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return session.Metadata{}, fmt.Errorf("arcgis: decode metadata: %w", err)
	}

	meta := session.Metadata{Name: info.Name}
	for _, f := range info.Fields {
		meta.Fields = append(meta.Fields, filter.FieldDescriptor{
			Name:  f.Name,
			Alias: f.Alias,
			Type:  filter.ParseFieldType(f.Type),
		})
	}
	return meta, nil
}

// SetWhere validates where against the service and makes it the active
// predicate. An empty where clears the predicate.
func (l *Layer) SetWhere(ctx context.Context, where string) error {
	if where != "" {
		if _, err := l.get(ctx, l.endpoint("/query", url.Values{
			"where":           {where},
			"returnCountOnly": {"true"},
			"f":               {"json"},
		})); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.where = where
	l.mu.Unlock()
	return nil
}

// Where returns the active predicate.
func (l *Layer) Where() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.where
}

// Features queries every feature matching the active predicate.
func (l *Layer) Features(ctx context.Context) (*geojson.FeatureCollection, error) {
	where := l.Where()
	if where == "" {
		where = "1=1"
	}
	body, err := l.get(ctx, l.endpoint("/query", url.Values{
		"where":     {where},
		"outFields": {"*"},
		"outSR":     {"4326"},
		"f":         {"geojson"},
	}))
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("arcgis: decode features: %w", err)
	}
	return fc, nil
}
