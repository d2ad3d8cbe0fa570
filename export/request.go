// Package export writes composites and feature collections to a destination as asynchronous jobs.
package export

import (
	"regexp"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"mangrove-composite/raster"
	"mangrove-composite/util"
)

// DefaultMaxPixels is the pixel budget of a raster export unless the request sets one.
const DefaultMaxPixels = 1e8

type Format string

const (
	GeoTIFF Format = "GeoTIFF"
	SHP     Format = "SHP"
	GeoJSON Format = "GeoJSON"
	KML     Format = "KML"
	CSV     Format = "CSV"
)

var vectorFormats = []Format{SHP, GeoJSON, KML, CSV}

// Ext is the file extension of the primary output file.
func (f Format) Ext() string {
	switch f {
	case GeoTIFF:
		return ".tif"
	case SHP:
		return ".shp"
	case GeoJSON:
		return ".geojson"
	case KML:
		return ".kml"
	}
	return ".csv"
}

// ParseFormat resolves a vector format name case-insensitively. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return CSV, nil
	}
	for _, f := range vectorFormats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", util.Invalidf("unknown vector format %q", s)
}

type RasterRequest struct {
	Image          *raster.Image
	Description    string
	Folder         string
	FileNamePrefix string
	Region         orb.Geometry
	// Scale is the output pixel size in meters.
	Scale     float64
	MaxPixels float64
}

type VectorRequest struct {
	Collection     *geojson.FeatureCollection
	Description    string
	Folder         string
	FileNamePrefix string
	Format         string
}

var descriptionRE = regexp.MustCompile(`^[A-Za-z0-9 .,:;_-]+$`)

const maxDescription = 100

func validateNames(description, prefix string) error {
	if description == "" {
		return util.Invalidf("empty description")
	}
	if len(description) > maxDescription {
		return util.Invalidf("description longer than %d characters", maxDescription)
	}
	if !descriptionRE.MatchString(description) {
		return util.Invalidf("description %q has invalid characters", description)
	}
	if prefix == "" {
		return util.Invalidf("empty file name prefix")
	}
	if strings.Contains(prefix, "..") || strings.HasPrefix(prefix, "/") {
		return util.Invalidf("bad file name prefix %q", prefix)
	}
	return nil
}

// grid validates the request and returns the output grid.
func (r *RasterRequest) grid() (raster.Grid, error) {
	if r.Image == nil {
		return raster.Grid{}, util.Invalidf("nil image")
	}
	if err := validateNames(r.Description, r.FileNamePrefix); err != nil {
		return raster.Grid{}, err
	}
	if !(r.Scale > 0) {
		return raster.Grid{}, util.Invalidf("scale must be positive, got %v", r.Scale)
	}
	if r.Region == nil || len(util.Polygons(r.Region)) == 0 {
		return raster.Grid{}, util.Invalidf("empty region")
	}
	g, err := raster.GridFor(r.Region, r.Scale)
	if err != nil {
		return raster.Grid{}, util.Invalidf("region: %v", err)
	}
	limit := r.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if float64(g.Len()) > limit {
		return raster.Grid{}, util.Invalidf("export of %d pixels exceeds max pixels %.0f", g.Len(), limit)
	}
	return g, nil
}

func (r *VectorRequest) format() (Format, error) {
	if r.Collection == nil {
		return "", util.Invalidf("nil collection")
	}
	if err := validateNames(r.Description, r.FileNamePrefix); err != nil {
		return "", err
	}
	return ParseFormat(r.Format)
}
