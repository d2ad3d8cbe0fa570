// Package preview renders false color images of composites.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"mangrove-composite/raster"
	"mangrove-composite/util"
)

const (
	// Reflectance mapped to black and full intensity.
	Min = 0.0
	Max = 0.3

	DefaultSize = 1024
)

// Bands are rendered as red, green and blue.
var Bands = []string{"B8", "B11", "B4"}

var outline = color.RGBA{255, 255, 0, 255}

func scale(v float64) uint8 {
	f := (v - Min) / (Max - Min)
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return uint8(math.Round(f * 255))
}

// Render draws the false color composite at most size pixels wide or tall and
// outlines aoi (lon/lat) on top of it. Masked pixels stay transparent.
func Render(img *raster.Image, aoi orb.Geometry, size int) (*image.RGBA, error) {
	var rgb [3]*raster.Band
	for i, name := range Bands {
		b, err := img.Band(name)
		if err != nil {
			return nil, err
		}
		rgb[i] = b
	}
	g := img.Grid
	if g.Len() == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if size <= 0 {
		size = DefaultSize
	}
	step := 1.0
	if m := math.Max(float64(g.Width), float64(g.Height)); m > float64(size) {
		step = m / float64(size)
	}
	w := int(math.Ceil(float64(g.Width) / step))
	h := int(math.Ceil(float64(g.Height) / step))

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := int(float64(y) * step)
		for x := 0; x < w; x++ {
			i := sy*g.Width + int(float64(x)*step)
			r, gr, b := rgb[0].Data[i], rgb[1].Data[i], rgb[2].Data[i]
			if math.IsNaN(r) || math.IsNaN(gr) || math.IsNaN(b) {
				continue
			}
			out.SetRGBA(x, y, color.RGBA{scale(r), scale(gr), scale(b), 255})
		}
	}
	if aoi != nil {
		drawOutline(out, g, aoi, step)
	}
	return out, nil
}

func drawOutline(out *image.RGBA, g raster.Grid, aoi orb.Geometry, step float64) {
	gc := draw2dimg.NewGraphicContext(out)
	gc.SetStrokeColor(outline)
	gc.SetLineWidth(2)
	toPixel := func(p orb.Point) (float64, float64) {
		m := project.Point(p, project.WGS84.ToMercator)
		return (m[0] - g.Bound.Min[0]) / g.PixelSize / step, (g.Bound.Max[1] - m[1]) / g.PixelSize / step
	}
	for _, poly := range util.Polygons(aoi) {
		for _, ring := range poly {
			if len(ring) == 0 {
				continue
			}
			gc.MoveTo(toPixel(ring[0]))
			for _, p := range ring[1:] {
				gc.LineTo(toPixel(p))
			}
			gc.Close()
		}
	}
	gc.Stroke()
}

// ErrorImage writes the error message in red onto a blank square.
func ErrorImage(err error, size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{255, 0, 0, 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(0), Y: fixed.I(size / 2)},
	}
	d.DrawString(err.Error())
	return img
}

// Save writes img as PNG.
func Save(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
