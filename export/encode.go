package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"mangrove-composite/gdalio"
	"mangrove-composite/raster"
)

// Encoder writes export files into dir, named after prefix, and returns their paths.
type Encoder interface {
	EncodeRaster(img *raster.Image, dir, prefix string) ([]string, error)
	EncodeVector(fc *geojson.FeatureCollection, format Format, dir, prefix string) ([]string, error)
}

// FileEncoder writes GeoTIFF, shapefiles and KML through GDAL, GeoJSON and CSV natively.
type FileEncoder struct{}

func (FileEncoder) EncodeRaster(img *raster.Image, dir, prefix string) ([]string, error) {
	path := filepath.Join(dir, prefix+GeoTIFF.Ext())
	if err := gdalio.WriteGeoTIFF(img, path); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func (FileEncoder) EncodeVector(fc *geojson.FeatureCollection, format Format, dir, prefix string) ([]string, error) {
	path := filepath.Join(dir, prefix+format.Ext())
	switch format {
	case GeoJSON:
		b, err := json.Marshal(fc)
		if err != nil {
			return nil, err
		}
		return []string{path}, os.WriteFile(path, b, 0644)
	case CSV:
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		if err := WriteCSV(f, fc); err != nil {
			f.Close()
			return nil, err
		}
		return []string{path}, f.Close()
	case SHP, KML:
		return gdalio.WriteVector(fc, string(format), dir, prefix)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// CSV columns framing the feature properties.
const (
	IndexColumn    = "system:index"
	GeometryColumn = ".geo"
)

func formatValue(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case string:
		return n
	}
	return fmt.Sprint(v)
}

// WriteCSV writes one row per feature: the index, sorted properties and the geometry as GeoJSON.
func WriteCSV(w io.Writer, fc *geojson.FeatureCollection) error {
	keys := map[string]bool{}
	for _, f := range fc.Features {
		for k := range f.Properties {
			keys[k] = true
		}
	}
	cols := make([]string, 0, len(keys))
	for k := range keys {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	cw := csv.NewWriter(w)
	header := append(append([]string{IndexColumn}, cols...), GeometryColumn)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, f := range fc.Features {
		id := strconv.Itoa(i)
		if f.ID != nil {
			id = formatValue(f.ID)
		}
		geo, err := json.Marshal(geojson.NewGeometry(f.Geometry))
		if err != nil {
			return fmt.Errorf("feature %d: %v", i, err)
		}
		row := []string{id}
		for _, k := range cols {
			row = append(row, formatValue(f.Properties[k]))
		}
		row = append(row, string(geo))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
