package raster

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// NormalizedDifference computes (a-b)/(a+b) per pixel. The result is masked where
// either input is masked, and 0 where a+b is 0.
func NormalizedDifference(a, b *Band, name string) (*Band, error) {
	if len(a.Data) != len(b.Data) {
		return nil, fmt.Errorf("band size mismatch %q=%d %q=%d", a.Name, len(a.Data), b.Name, len(b.Data))
	}
	out := &Band{Name: name, Data: make([]float64, len(a.Data))}
	for i := range a.Data {
		x, y := a.Data[i], b.Data[i]
		switch {
		case math.IsNaN(x) || math.IsNaN(y):
			out.Data[i] = math.NaN()
		case x+y == 0:
			out.Data[i] = 0
		default:
			out.Data[i] = (x - y) / (x + y)
		}
	}
	return out, nil
}

// Subtract computes a-b per pixel.
func Subtract(a, b *Band, name string) (*Band, error) {
	if len(a.Data) != len(b.Data) {
		return nil, fmt.Errorf("band size mismatch %q=%d %q=%d", a.Name, len(a.Data), b.Name, len(b.Data))
	}
	out := &Band{Name: name, Data: make([]float64, len(a.Data))}
	for i := range a.Data {
		out.Data[i] = a.Data[i] - b.Data[i]
	}
	return out, nil
}

// BitsClear reports, per pixel, whether all the given bits of an integer bitmask band are zero.
// Masked pixels are reported as not clear.
func BitsClear(qa *Band, bits ...uint) []bool {
	var mask uint32
	for _, b := range bits {
		mask |= 1 << b
	}
	out := make([]bool, len(qa.Data))
	for i, v := range qa.Data {
		if math.IsNaN(v) || v < 0 {
			continue
		}
		out[i] = uint32(v)&mask == 0
	}
	return out
}

// Median reduces a stack of images to the per-pixel, per-band median of unmasked values.
// All images must share the grid and band names of the first one.
func Median(images []*Image) (*Image, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("median of empty collection")
	}
	first := images[0]
	for _, img := range images[1:] {
		if !img.Grid.Equal(first.Grid) {
			return nil, fmt.Errorf("grid mismatch in median")
		}
	}

	out := New(first.Grid, first.BandNames()...)
	buf := make([]float64, 0, len(images))
	for bi, name := range first.BandNames() {
		stack := make([]*Band, len(images))
		for k, img := range images {
			b, err := img.Band(name)
			if err != nil {
				return nil, err
			}
			stack[k] = b
		}
		dst := out.Bands[bi].Data
		for i := range dst {
			buf = buf[:0]
			for _, b := range stack {
				if v := b.Data[i]; !math.IsNaN(v) {
					buf = append(buf, v)
				}
			}
			if len(buf) == 0 {
				continue
			}
			m, err := stats.Median(buf)
			if err != nil {
				return nil, err
			}
			dst[i] = m
		}
	}
	return out, nil
}
