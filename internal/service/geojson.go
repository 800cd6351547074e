package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// ErrNothingToSave is returned when exporting an empty collection.
var ErrNothingToSave = errors.New("no drawn features to save")

// maxImportSize caps GeoJSON uploads.
const maxImportSize = 50 << 20

// FileParseError reports a GeoJSON file that could not be read.
type FileParseError struct {
	Name string
	Err  error
}

func (e *FileParseError) Error() string {
	return fmt.Sprintf("error loading file %s: %v", e.Name, e.Err)
}

func (e *FileParseError) Unwrap() error { return e.Err }

// GeoJSONService reads and writes drawn feature files.
type GeoJSONService struct {
	log *zap.Logger
}

// NewGeoJSONService creates a GeoJSON file service.
func NewGeoJSONService(log *zap.Logger) *GeoJSONService {
	if log == nil {
		log = zap.NewNop()
	}
	return &GeoJSONService{log: log}
}

// ExportFilename returns the download name for a save made at now.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("map_features_%s.geojson", now.UTC().Format("2006-01-02"))
}

// Export renders fc as pretty-printed GeoJSON and names the file after now.
func (s *GeoJSONService) Export(fc *geojson.FeatureCollection, now time.Time) ([]byte, string, error) {
	if fc == nil || len(fc.Features) == 0 {
		return nil, "", ErrNothingToSave
	}
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("encode features: %w", err)
	}
	name := ExportFilename(now)
	s.log.Info("features exported", zap.String("file", name), zap.Int("features", len(fc.Features)))
	return data, name, nil
}

// Import reads a FeatureCollection, a single Feature or a bare geometry.
func (s *GeoJSONService) Import(name string, r io.Reader) (*geojson.FeatureCollection, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImportSize))
	if err != nil {
		return nil, &FileParseError{Name: name, Err: err}
	}
	fc, err := parseGeoJSON(data)
	if err != nil {
		s.log.Warn("geojson import failed", zap.String("file", name), zap.Error(err))
		return nil, &FileParseError{Name: name, Err: err}
	}
	s.log.Info("features imported", zap.String("file", name), zap.Int("features", len(fc.Features)))
	return fc, nil
}

func parseGeoJSON(data []byte) (*geojson.FeatureCollection, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}

	switch typ := gjson.GetBytes(data, "type").String(); typ {
	case "FeatureCollection":
		return geojson.UnmarshalFeatureCollection(data)
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(f)
		return fc, nil
	case "":
		return nil, errors.New("missing GeoJSON type")
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("unsupported GeoJSON type %q: %w", typ, err)
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(g.Geometry()))
		return fc, nil
	}
}
