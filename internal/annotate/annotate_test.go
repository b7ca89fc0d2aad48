package annotate

import (
	"image/color"
	"testing"

	"github.com/andresmejia3/facesift/internal/types"
	"github.com/disintegration/imaging"
)

var white = color.NRGBA{255, 255, 255, 255}

func TestDraw(t *testing.T) {
	box := types.Box{Top: 20, Right: 80, Bottom: 80, Left: 20}

	tests := []struct {
		name    string
		matched bool
		want    color.NRGBA
	}{
		{"Matched face is green", true, MatchColor},
		{"Unknown face is blue", false, UnknownColor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := imaging.New(100, 100, white)
			Draw(img, box, tt.matched)

			checks := []struct {
				x, y int
				want color.NRGBA
			}{
				{50, 20, tt.want}, // top edge
				{20, 40, tt.want}, // left edge
				{79, 40, tt.want}, // right edge
				{21, 75, tt.want}, // label bar, left of the text
				{50, 40, white},   // interior untouched
				{10, 10, white},   // outside untouched
			}
			for _, c := range checks {
				if got := img.NRGBAAt(c.x, c.y); got != c.want {
					t.Errorf("pixel (%d,%d) = %v, want %v", c.x, c.y, got, c.want)
				}
			}
		})
	}
}

func TestDrawClipsToImage(t *testing.T) {
	img := imaging.New(50, 50, white)
	// Partially outside; must not panic and must draw the visible part.
	Draw(img, types.Box{Top: -10, Right: 60, Bottom: 30, Left: 10}, false)
	if got := img.NRGBAAt(10, 5); got != UnknownColor {
		t.Errorf("left edge pixel = %v, want %v", got, UnknownColor)
	}

	// Entirely outside; no-op.
	Draw(img, types.Box{Top: 100, Right: 200, Bottom: 200, Left: 100}, true)
}

func TestCanvasCopies(t *testing.T) {
	src := imaging.New(30, 30, white)
	dst := Canvas(src)
	Draw(dst, types.Box{Top: 0, Right: 30, Bottom: 30, Left: 0}, true)
	if got := src.NRGBAAt(0, 0); got != white {
		t.Errorf("source modified: %v", got)
	}
}
