package composite

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"mangrove-composite/raster"
	"mangrove-composite/sentinel"
	"mangrove-composite/util"
)

// Archive is the imagery catalog the builder reads from.
type Archive interface {
	Find(ctx context.Context, q *sentinel.Query) ([]*sentinel.Scene, error)
	Load(ctx context.Context, s *sentinel.Scene, g raster.Grid, bands []string) (*raster.Image, error)
}

// Composite is the median image of one year over the area of interest.
type Composite struct {
	Year   int           `json:"year"`
	Start  string        `json:"start"`
	End    string        `json:"end"`
	Scenes []string      `json:"scenes"`
	Image  *raster.Image `json:"-"`
}

func (c *Composite) Bands() []string {
	return c.Image.BandNames()
}

// Empty reports whether no scene contributed to the composite.
func (c *Composite) Empty() bool {
	return len(c.Scenes) == 0
}

type Builder struct {
	Archive Archive
	AOI     orb.Geometry
	Params  Params
}

func New(a Archive, aoi orb.Geometry, p Params) (*Builder, error) {
	if err := util.ValidateAOI(aoi); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Builder{Archive: a, AOI: aoi, Params: p}, nil
}

// YearRange returns the first and last calendar day of year.
func YearRange(year int) (string, string) {
	return fmt.Sprintf("%04d-01-01", year), fmt.Sprintf("%04d-12-31", year)
}

// Query returns the archive query for year.
func (b *Builder) Query(year int) (*sentinel.Query, error) {
	if year < 1 || year > 9999 {
		return nil, util.Invalidf("year %d out of range", year)
	}
	start, end := YearRange(year)
	s, e, err := sentinel.DateRange(start, end)
	if err != nil {
		return nil, util.Invalidf("%v", err)
	}
	return &sentinel.Query{
		Collection:    b.Params.Collection,
		AOI:           b.AOI,
		Start:         s,
		End:           e,
		MaxCloudCover: b.Params.MaxCloudCover,
	}, nil
}

// Grid returns the pixel grid of every composite.
func (b *Builder) Grid() (raster.Grid, error) {
	g, err := raster.GridFor(b.AOI, b.Params.Scale)
	if err != nil {
		return raster.Grid{}, util.Invalidf("%v", err)
	}
	if int64(g.Len()) > b.Params.MaxPixels {
		return raster.Grid{}, util.Invalidf("composite grid has %d pixels, max is %d", g.Len(), b.Params.MaxPixels)
	}
	return g, nil
}

// Build produces the composite of one calendar year. An empty filtered collection is not an
// error: the composite is returned fully masked.
func (b *Builder) Build(ctx context.Context, year int) (*Composite, error) {
	q, err := b.Query(year)
	if err != nil {
		return nil, err
	}
	grid, err := b.Grid()
	if err != nil {
		return nil, err
	}
	start, end := YearRange(year)
	out := &Composite{Year: year, Start: start, End: end}

	t := time.Now()
	scenes, err := b.Archive.Find(ctx, q)
	if err != nil {
		return nil, util.External("archive search", err)
	}
	b.logCollection(year, scenes)

	if len(scenes) == 0 {
		log.WithFields(log.Fields{
			"year":        year,
			"start":       start,
			"end":         end,
			"cloud_cover": b.Params.MaxCloudCover,
		}).Warn("EmptyResultWarning: no scenes matched, composite is fully masked")
		out.Image = raster.New(grid, b.Params.Bands...)
		return out, nil
	}

	images, err := sentinel.LoadAll(ctx, b.Archive, scenes, grid, b.Params.SourceBands(), b.Params.Concurrency)
	if err != nil {
		return nil, util.External("scene load", err)
	}

	prepared := make([]*raster.Image, len(images))
	for i, img := range images {
		masked, err := b.Params.MaskClouds(img)
		if err != nil {
			return nil, fmt.Errorf("scene %q: %v", scenes[i].ID, err)
		}
		if prepared[i], err = AddIndices(masked); err != nil {
			return nil, fmt.Errorf("scene %q: %v", scenes[i].ID, err)
		}
		out.Scenes = append(out.Scenes, scenes[i].ID)
	}

	median, err := raster.Median(prepared)
	if err != nil {
		return nil, err
	}
	if out.Image, err = median.Clip(b.AOI).Select(b.Params.Bands...); err != nil {
		return nil, err
	}

	log.Infof("Composite %d built from %d scenes in %v, %.1f%% valid pixels",
		year, len(scenes), time.Since(t), 100*out.Image.ValidShare())
	for _, s := range Summarize(out.Image) {
		log.Debugf("Composite %d band %s: mean %.4f stddev %.4f over %d pixels", year, s.Name, s.Mean, s.StdDev, s.Valid)
	}
	return out, nil
}

func (b *Builder) logCollection(year int, scenes []*sentinel.Scene) {
	var clouds []float64
	var footprints []orb.Geometry
	for _, s := range scenes {
		if s.Properties != nil && s.Properties.CloudCover != nil {
			clouds = append(clouds, *s.Properties.CloudCover)
		}
		if s.Geometry != nil {
			footprints = append(footprints, s.Geometry.Geometry())
		}
	}
	var meanCloud float64
	if len(clouds) > 0 {
		meanCloud = stat.Mean(clouds, nil)
	}
	log.WithFields(log.Fields{
		"year":        year,
		"scenes":      len(scenes),
		"mean_cloud":  fmt.Sprintf("%.2f", meanCloud),
		"aoi_covered": fmt.Sprintf("%.2f", util.Coverage(b.AOI.Bound(), footprints)),
	}).Info("Filtered Sentinel-2 collection")
}
