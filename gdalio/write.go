package gdalio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"mangrove-composite/raster"
)

// WriteGeoTIFF writes img as a tiled, deflate compressed Float32 GeoTIFF with NaN nodata.
func WriteGeoTIFF(img *raster.Image, path string) error {
	Register()
	g := img.Grid
	ds, err := godal.Create(godal.GTiff, path, len(img.Bands), godal.Float32, g.Width, g.Height,
		godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE", "BIGTIFF=IF_SAFER"))
	if err != nil {
		return err
	}
	sr, err := godal.NewSpatialRefFromEPSG(3857)
	if err != nil {
		ds.Close()
		return err
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		ds.Close()
		return err
	}
	if err := ds.SetGeoTransform(g.GeoTransform()); err != nil {
		ds.Close()
		return err
	}

	buf := make([]float32, g.Len())
	for i, band := range ds.Bands() {
		src := img.Bands[i]
		for j, v := range src.Data {
			buf[j] = float32(v)
		}
		if err := band.SetNoData(math.NaN()); err != nil {
			ds.Close()
			return err
		}
		if err := band.SetDescription(src.Name); err != nil {
			ds.Close()
			return err
		}
		if err := band.Write(0, 0, buf, g.Width, g.Height); err != nil {
			ds.Close()
			return fmt.Errorf("write band %s: %v", src.Name, err)
		}
	}
	return ds.Close()
}

// VectorDrivers maps export formats onto OGR drivers.
var VectorDrivers = map[string]godal.DriverName{
	"SHP": godal.DriverName("ESRI Shapefile"),
	"KML": godal.DriverName("KML"),
}

var extensions = map[string]string{
	"SHP": ".shp",
	"KML": ".kml",
}

func layerType(fc *geojson.FeatureCollection) (godal.GeometryType, error) {
	var points, polys int
	for _, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Point:
			points++
		case orb.Polygon, orb.MultiPolygon:
			polys++
		default:
			return godal.GTUnknown, fmt.Errorf("unsupported geometry %T", f.Geometry)
		}
	}
	switch {
	case points > 0 && polys > 0:
		return godal.GTUnknown, fmt.Errorf("mixed point and polygon features")
	case polys > 0:
		return godal.GTMultiPolygon, nil
	}
	return godal.GTPoint, nil
}

type column struct {
	name  string
	ftype godal.FieldType
}

// fields infers one column per property key. Whole numbers become integers.
func fields(fc *geojson.FeatureCollection) []column {
	types := map[string]godal.FieldType{}
	for _, f := range fc.Features {
		for k, v := range f.Properties {
			t := godal.FTString
			switch n := v.(type) {
			case int, int64:
				t = godal.FTInt
			case float64:
				t = godal.FTReal
				if n == math.Trunc(n) && math.Abs(n) < math.MaxInt32 {
					t = godal.FTInt
				}
			}
			if prev, ok := types[k]; ok && prev != t {
				if prev == godal.FTString || t == godal.FTString {
					t = godal.FTString
				} else {
					t = godal.FTReal
				}
			}
			types[k] = t
		}
	}
	var out []column
	for k, t := range types {
		out = append(out, column{name: k, ftype: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func fieldValue(v interface{}, t godal.FieldType) interface{} {
	switch t {
	case godal.FTInt:
		switch n := v.(type) {
		case float64:
			return int(n)
		case int64:
			return int(n)
		}
		return v
	case godal.FTReal:
		switch n := v.(type) {
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
		return v
	}
	return fmt.Sprint(v)
}

func geometryWKT(g orb.Geometry) string {
	if p, ok := g.(orb.Polygon); ok {
		g = orb.MultiPolygon{p}
	}
	return wkt.MarshalString(g)
}

// WriteVector writes fc in an OGR format (SHP or KML) into dir and returns the created files.
func WriteVector(fc *geojson.FeatureCollection, format, dir, prefix string) ([]string, error) {
	Register()
	driver, ok := VectorDrivers[strings.ToUpper(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported vector format %q", format)
	}
	gtype, err := layerType(fc)
	if err != nil {
		return nil, err
	}
	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, err
	}
	defer sr.Close()

	path := filepath.Join(dir, prefix+extensions[strings.ToUpper(format)])
	ds, err := godal.CreateVector(driver, path)
	if err != nil {
		return nil, err
	}

	cols := fields(fc)
	var opts []godal.CreateLayerOption
	for _, s := range cols {
		opts = append(opts, godal.NewFieldDefinition(s.name, s.ftype))
	}
	layer, err := ds.CreateLayer(prefix, sr, gtype, opts...)
	if err != nil {
		ds.Close()
		return nil, err
	}

	for i, f := range fc.Features {
		geom, err := godal.NewGeometryFromWKT(geometryWKT(f.Geometry), sr)
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("feature %d: %v", i, err)
		}
		feat, err := layer.NewFeature(geom)
		geom.Close()
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("feature %d: %v", i, err)
		}
		attrs := feat.Fields()
		for _, s := range cols {
			v, ok := f.Properties[s.name]
			if !ok || v == nil {
				continue
			}
			if err := feat.SetFieldValue(attrs[s.name], fieldValue(v, s.ftype)); err != nil {
				feat.Close()
				ds.Close()
				return nil, fmt.Errorf("feature %d field %s: %v", i, s.name, err)
			}
		}
		err = layer.UpdateFeature(feat)
		feat.Close()
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("feature %d: %v", i, err)
		}
	}
	if err := ds.Close(); err != nil {
		return nil, err
	}
	return Outputs(dir, prefix)
}

// Outputs lists the files in dir belonging to prefix, such as shapefile sidecars.
func Outputs(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.TrimSuffix(name, filepath.Ext(name)) != prefix {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}
