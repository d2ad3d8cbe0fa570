// Package samples loads the area of interest and the visually interpreted training points.
package samples

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"

	"mangrove-composite/util"
)

const (
	ClassProperty = "class"

	NonMangrove = 0
	Mangrove    = 1
)

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, util.Invalidf("read %s: %v", path, err)
	}
	return data, nil
}

// parseAny accepts a GeoJSON geometry, feature or feature collection.
func parseAny(data []byte) (*geojson.FeatureCollection, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
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
		return nil, fmt.Errorf("missing geojson type")
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(g.Geometry()))
	return fc, nil
}

// ParseAOI combines every polygon of a GeoJSON document into one area of interest.
func ParseAOI(data []byte) (orb.Geometry, error) {
	fc, err := parseAny(data)
	if err != nil {
		return nil, util.Invalidf("aoi: %v", err)
	}
	var mp orb.MultiPolygon
	for _, f := range fc.Features {
		mp = append(mp, util.Polygons(f.Geometry)...)
	}
	var aoi orb.Geometry = mp
	if len(mp) == 1 {
		aoi = mp[0]
	}
	if err := util.ValidateAOI(aoi); err != nil {
		return nil, err
	}
	log.Debugf("AOI with %d polygons, %.1f ha", len(mp), util.GeodesicArea(aoi)/1e4)
	return aoi, nil
}

func LoadAOI(path string) (orb.Geometry, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseAOI(data)
}

// Parse reads a point collection of one class. Features without a class property get
// the given class; a conflicting class is an error.
func Parse(data []byte, class int) (*geojson.FeatureCollection, error) {
	fc, err := parseAny(data)
	if err != nil {
		return nil, util.Invalidf("samples: %v", err)
	}
	for i, f := range fc.Features {
		if _, ok := f.Geometry.(orb.Point); !ok {
			return nil, util.Invalidf("sample %d is a %s, want Point", i, typeName(f.Geometry))
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		v, ok := f.Properties[ClassProperty]
		if !ok {
			f.Properties[ClassProperty] = class
			continue
		}
		c, err := classValue(v)
		if err != nil {
			return nil, util.Invalidf("sample %d: %v", i, err)
		}
		if c != class {
			return nil, util.Invalidf("sample %d has class %d, collection is class %d", i, c, class)
		}
		f.Properties[ClassProperty] = c
	}
	return fc, nil
}

func Load(path string, class int) (*geojson.FeatureCollection, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := Parse(data, class)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Infof("Loaded %d class %d samples from %s", len(fc.Features), class, path)
	return fc, nil
}

func typeName(g orb.Geometry) string {
	if g == nil {
		return "null geometry"
	}
	return g.GeoJSONType()
}

func classValue(v interface{}) (int, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	default:
		return 0, fmt.Errorf("class %v is not a number", v)
	}
	if f != math.Trunc(f) || (f != NonMangrove && f != Mangrove) {
		return 0, fmt.Errorf("class %v must be %d or %d", v, NonMangrove, Mangrove)
	}
	return int(f), nil
}

// Merge concatenates collections in order into a new collection. Inputs are not modified.
func Merge(fcs ...*geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, fc := range fcs {
		if fc == nil {
			continue
		}
		for _, f := range fc.Features {
			nf := geojson.NewFeature(orb.Clone(f.Geometry))
			nf.ID = f.ID
			nf.Properties = f.Properties.Clone()
			out.Append(nf)
		}
	}
	return out
}

// Collection wraps a geometry, such as the AOI, into a one feature collection.
func Collection(g orb.Geometry, props geojson.Properties) *geojson.FeatureCollection {
	f := geojson.NewFeature(orb.Clone(g))
	if props != nil {
		f.Properties = props.Clone()
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(f)
	return fc
}

// Counts returns the number of samples per class.
func Counts(fc *geojson.FeatureCollection) map[int]int {
	out := map[int]int{}
	for _, f := range fc.Features {
		c, err := classValue(f.Properties[ClassProperty])
		if err != nil {
			continue
		}
		out[c]++
	}
	return out
}
