package composite

import (
	"mangrove-composite/sentinel"
	"mangrove-composite/util"
)

// Index band names.
const (
	NDVI = "ndvi"
	NDMI = "ndmi"
	CMRI = "cmri"
)

// OutputBands is the band set and order of every composite.
var OutputBands = []string{"B2", "B3", "B4", "B8", "B11", "B12", NDVI, NDMI, CMRI}

// Params holds the constants of the composite recipe.
type Params struct {
	Collection    string
	MaxCloudCover float64
	QABand        string
	CloudBit      uint
	CirrusBit     uint
	ScaleDivisor  float64
	Bands         []string
	Scale         float64
	MaxPixels     int64
	Concurrency   int
}

func DefaultParams() Params {
	return Params{
		Collection:    sentinel.DefaultCollection,
		MaxCloudCover: 30,
		QABand:        sentinel.QABand,
		CloudBit:      10,
		CirrusBit:     11,
		ScaleDivisor:  10000,
		Bands:         append([]string(nil), OutputBands...),
		Scale:         10,
		MaxPixels:     1e8,
		Concurrency:   4,
	}
}

func isIndex(b string) bool {
	return b == NDVI || b == NDMI || b == CMRI
}

// SourceBands lists the archive bands needed to produce the output bands, QA band last.
func (p Params) SourceBands() []string {
	seen := map[string]bool{}
	var out []string
	add := func(b string) {
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	for _, b := range p.Bands {
		if !isIndex(b) {
			add(b)
		}
	}
	for _, b := range []string{"B3", "B4", "B8", "B12"} {
		add(b)
	}
	add(p.QABand)
	return out
}

func (p Params) Validate() error {
	if p.Collection == "" {
		return util.Invalidf("collection is empty")
	}
	if !(p.MaxCloudCover > 0 && p.MaxCloudCover <= 100) {
		return util.Invalidf("cloud cover threshold must be in (0, 100], got %v", p.MaxCloudCover)
	}
	if p.QABand == "" {
		return util.Invalidf("qa band is empty")
	}
	if p.CloudBit > 31 || p.CirrusBit > 31 {
		return util.Invalidf("qa bits must be below 32, got %d and %d", p.CloudBit, p.CirrusBit)
	}
	if !(p.ScaleDivisor > 0) {
		return util.Invalidf("scale divisor must be positive, got %v", p.ScaleDivisor)
	}
	if !(p.Scale > 0) {
		return util.Invalidf("scale must be positive, got %v", p.Scale)
	}
	if p.MaxPixels <= 0 {
		return util.Invalidf("max pixels must be positive, got %d", p.MaxPixels)
	}
	if len(p.Bands) == 0 {
		return util.Invalidf("no output bands")
	}
	seen := map[string]bool{}
	for _, b := range p.Bands {
		if b == "" || seen[b] {
			return util.Invalidf("bad or duplicate output band %q", b)
		}
		if b == p.QABand {
			return util.Invalidf("qa band %q cannot be an output band", b)
		}
		seen[b] = true
	}
	return nil
}
