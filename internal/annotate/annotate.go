// Package annotate draws detection boxes onto debug copies of candidate images.
package annotate

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/andresmejia3/facesift/internal/types"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	MatchLabel   = "DETECTED"
	UnknownLabel = "UNKNWN"
)

var (
	MatchColor   = color.NRGBA{R: 0, G: 255, B: 0, A: 255}
	UnknownColor = color.NRGBA{R: 0, G: 0, B: 255, A: 255}
	labelColor   = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// textInset is the horizontal gap between the box edge and the label text.
const textInset = 6

// Canvas returns a drawable copy of img, leaving the original untouched.
func Canvas(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// Draw outlines the face box and writes its label in a filled bar along
// the bottom edge of the box.
func Draw(dst draw.Image, box types.Box, matched bool) {
	c, label := UnknownColor, UnknownLabel
	if matched {
		c, label = MatchColor, MatchLabel
	}

	r := box.Rect().Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	outline(dst, r, c)

	face := basicfont.Face7x13
	metrics := face.Metrics()
	bar := image.Rect(r.Min.X, r.Max.Y-metrics.Height.Ceil(), r.Max.X, r.Max.Y).Intersect(r)
	draw.Draw(dst, bar, image.NewUniform(c), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(r.Min.X+textInset, r.Max.Y-metrics.Descent.Ceil()),
	}
	d.DrawString(label)
}

func outline(dst draw.Image, r image.Rectangle, c color.Color) {
	for x := r.Min.X; x < r.Max.X; x++ {
		dst.Set(x, r.Min.Y, c)
		dst.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		dst.Set(r.Min.X, y, c)
		dst.Set(r.Max.X-1, y, c)
	}
}
