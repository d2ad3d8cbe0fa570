package composite

import (
	"fmt"

	"mangrove-composite/raster"
)

// MaskClouds keeps pixels whose cloud and cirrus QA bits are both zero, then rescales
// every band by the scale divisor.
func (p Params) MaskClouds(img *raster.Image) (*raster.Image, error) {
	qa, err := img.Band(p.QABand)
	if err != nil {
		return nil, err
	}
	keep := raster.BitsClear(qa, p.CloudBit, p.CirrusBit)
	return img.UpdateMask(keep).Divide(p.ScaleDivisor), nil
}

// AddIndices appends ndvi, ndmi and cmri.
//
//	ndvi = ND(B8, B4)
//	ndmi = ND(B12, B3), the normalized difference mangrove index
//	cmri = ndvi - ND(B3, B8), the combined mangrove recognition index
func AddIndices(img *raster.Image) (*raster.Image, error) {
	get := func(names ...string) ([]*raster.Band, error) {
		var out []*raster.Band
		for _, n := range names {
			b, err := img.Band(n)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		return out, nil
	}
	b, err := get("B3", "B4", "B8", "B12")
	if err != nil {
		return nil, fmt.Errorf("index bands: %v", err)
	}
	b3, b4, b8, b12 := b[0], b[1], b[2], b[3]

	ndvi, err := raster.NormalizedDifference(b8, b4, NDVI)
	if err != nil {
		return nil, err
	}
	ndmi, err := raster.NormalizedDifference(b12, b3, NDMI)
	if err != nil {
		return nil, err
	}
	ndwi, err := raster.NormalizedDifference(b3, b8, "ndwi")
	if err != nil {
		return nil, err
	}
	cmri, err := raster.Subtract(ndvi, ndwi, CMRI)
	if err != nil {
		return nil, err
	}
	return img.AddBands(ndvi, ndmi, cmri)
}
