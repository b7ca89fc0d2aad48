package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/facesift/internal/types"
	"github.com/disintegration/imaging"
)

// Dlib runs the dlib ResNet model in-process. The models directory must hold
// shape_predictor_5_face_landmarks.dat, dlib_face_recognition_resnet_model_v1.dat
// and, for the CNN detector, mmod_human_face_detector.dat.
type Dlib struct {
	rec *face.Recognizer
	cnn bool
}

func NewDlib(modelsDir string, cnn bool) (*Dlib, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models from %s: %w", modelsDir, err)
	}
	return &Dlib{rec: rec, cnn: cnn}, nil
}

func (d *Dlib) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// go-face only decodes JPEG, whatever the source format was.
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(100)); err != nil {
		return nil, fmt.Errorf("failed to encode image for dlib: %w", err)
	}

	var (
		found []face.Face
		err   error
	)
	if d.cnn {
		found, err = d.rec.RecognizeCNN(buf.Bytes())
	} else {
		found, err = d.rec.Recognize(buf.Bytes())
	}
	if err != nil {
		return nil, fmt.Errorf("dlib recognition failed: %w", err)
	}

	// Rectangles are relative to the JPEG we encoded, which starts at (0,0).
	offset := img.Bounds().Min
	faces := make([]types.Face, 0, len(found))
	for _, f := range found {
		faces = append(faces, types.Face{
			Box:      types.BoxFromRect(f.Rectangle.Add(offset)),
			Encoding: descriptorToEncoding(f.Descriptor),
		})
	}
	return faces, nil
}

func (d *Dlib) Close() error {
	d.rec.Close()
	return nil
}

func descriptorToEncoding(desc face.Descriptor) types.Encoding {
	enc := make(types.Encoding, len(desc))
	for i, v := range desc {
		enc[i] = float64(v)
	}
	return enc
}
