package composite

import (
	"gonum.org/v1/gonum/stat"

	"mangrove-composite/raster"
)

type BandSummary struct {
	Name   string  `json:"name"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Valid  int     `json:"valid"`
}

// Summarize computes statistics over the unmasked pixels of each band.
func Summarize(img *raster.Image) []BandSummary {
	var out []BandSummary
	for _, b := range img.Bands {
		v := b.Valid()
		s := BandSummary{Name: b.Name, Valid: len(v)}
		if len(v) > 0 {
			s.Mean = stat.Mean(v, nil)
		}
		if len(v) > 1 {
			s.StdDev = stat.StdDev(v, nil)
		}
		out = append(out, s)
	}
	return out
}
