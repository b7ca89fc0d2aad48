// Package crop turns a matched face into a fixed-size square thumbnail.
package crop

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/facesift/internal/types"
	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register the webp decoder for imaging.Open
)

const (
	// DefaultMargin is the padding added on every side of the face box.
	DefaultMargin = 64
	// DefaultSize is the edge length of the square output thumbnail.
	DefaultSize = 512
)

// Region expands box by margin on each side and clamps it to bounds.
func Region(box types.Box, bounds image.Rectangle, margin int) image.Rectangle {
	r := image.Rect(
		box.Left-margin,
		box.Top-margin,
		box.Right+margin,
		box.Bottom+margin,
	)
	return r.Intersect(bounds)
}

// Thumbnail crops the padded face region out of img, shrinks it to fit
// inside size x size keeping the aspect ratio, then stretches it to exactly
// size x size.
func Thumbnail(img image.Image, box types.Box, margin, size int) (*image.NRGBA, error) {
	region := Region(box, img.Bounds(), margin)
	if region.Empty() {
		return nil, fmt.Errorf("face box %v lies outside image bounds %v", box, img.Bounds())
	}

	out := imaging.Crop(img, region)
	// Fit only ever shrinks; a small crop is left as is for the final resize.
	out = imaging.Fit(out, size, size, imaging.CatmullRom)
	out = imaging.Resize(out, size, size, imaging.CatmullRom)
	return out, nil
}

// Save writes img to path, picking the encoder from the file extension.
// imaging has no webp encoder, so .webp goes through chai2010/webp.
func Save(img image.Image, path string) error {
	var err error
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		err = saveWebP(img, path)
	} else {
		err = imaging.Save(img, path)
	}
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func saveWebP(img image.Image, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return webp.Encode(f, img, &webp.Options{Lossless: true})
}

// Open decodes the image at path.
func Open(path string) (image.Image, error) {
	return imaging.Open(path)
}
