package sentinel

import (
	"math"

	"mangrove-composite/raster"
)

const (
	// HarmonizeBaseline is the first processing baseline carrying the reflectance offset.
	HarmonizeBaseline = "04.00"
	HarmonizeOffset   = 1000
)

// Harmonize removes the +1000 DN offset that baseline 04.00 added to reflectance bands,
// so scenes from before and after January 2022 share one range. QA bands are untouched.
func Harmonize(s *Scene, img *raster.Image) *raster.Image {
	if s.Properties == nil || s.Properties.ProcessingBaseline < HarmonizeBaseline {
		return img
	}
	out := img.Clone()
	for _, b := range out.Bands {
		if b.Name == QABand {
			continue
		}
		for i, v := range b.Data {
			if math.IsNaN(v) {
				continue
			}
			b.Data[i] = math.Max(0, v-HarmonizeOffset)
		}
	}
	return out
}

// SCL classes flagged as cloud (medium, high probability) and as cirrus.
var (
	sclCloud  = map[int]bool{8: true, 9: true}
	sclCirrus = map[int]bool{10: true}
)

// QAFromSCL converts a scene classification band into a QA60 style bitmask
// with bit 10 for cloud and bit 11 for cirrus.
func QAFromSCL(scl *raster.Band) *raster.Band {
	out := &raster.Band{Name: QABand, Data: make([]float64, len(scl.Data))}
	for i, v := range scl.Data {
		if math.IsNaN(v) {
			out.Data[i] = math.NaN()
			continue
		}
		var qa int
		if sclCloud[int(v)] {
			qa |= 1 << 10
		}
		if sclCirrus[int(v)] {
			qa |= 1 << 11
		}
		out.Data[i] = float64(qa)
	}
	return out
}
