// Package gdalio reads scene assets and writes export files through GDAL.
package gdalio

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	log "github.com/sirupsen/logrus"

	"mangrove-composite/raster"
)

var once sync.Once

// Register loads the GDAL drivers. It is safe to call repeatedly.
func Register() {
	once.Do(func() {
		godal.RegisterAll()
		log.Debugf("GDAL drivers registered")
	})
}

// VSIPath maps remote hrefs onto GDAL virtual file systems.
func VSIPath(href string) string {
	switch {
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return "/vsicurl/" + href
	case strings.HasPrefix(href, "s3://"):
		return "/vsis3/" + strings.TrimPrefix(href, "s3://")
	case strings.HasPrefix(href, "gs://"):
		return "/vsigs/" + strings.TrimPrefix(href, "gs://")
	}
	return href
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WarpSwitches returns the gdalwarp arguments mapping a source onto g.
func WarpSwitches(g raster.Grid) []string {
	return []string{
		"-t_srs", raster.SRS,
		"-te", ftoa(g.Bound.Min[0]), ftoa(g.Bound.Min[1]), ftoa(g.Bound.Max[0]), ftoa(g.Bound.Max[1]),
		"-ts", strconv.Itoa(g.Width), strconv.Itoa(g.Height),
		"-r", "near",
		"-ot", "Float64",
		"-dstnodata", "nan",
		"-of", "MEM",
	}
}

// Reader reads the first band of raster assets, typically cloud optimized GeoTIFFs.
type Reader struct{}

func NewReader() *Reader {
	Register()
	return &Reader{}
}

func (r *Reader) ReadBand(ctx context.Context, href string, g raster.Grid) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := godal.Open(VSIPath(href))
	if err != nil {
		return nil, fmt.Errorf("open %s: %v", href, err)
	}
	defer src.Close()

	srcNoData, hasNoData := math.NaN(), false
	if bands := src.Bands(); len(bands) > 0 {
		srcNoData, hasNoData = bands[0].NoData()
	}

	ds, err := src.Warp("", WarpSwitches(g))
	if err != nil {
		return nil, fmt.Errorf("warp %s: %v", href, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("%s has no bands", href)
	}
	buf := make([]float64, g.Len())
	if err := bands[0].Read(0, 0, buf, g.Width, g.Height); err != nil {
		return nil, fmt.Errorf("read %s: %v", href, err)
	}
	if hasNoData && !math.IsNaN(srcNoData) {
		for i, v := range buf {
			if v == srcNoData {
				buf[i] = math.NaN()
			}
		}
	}
	return buf, nil
}
