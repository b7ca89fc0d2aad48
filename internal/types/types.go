package types

import "image"

// EncodingDim is the length of a dlib face encoding.
const EncodingDim = 128

// Encoding is the identity vector the face model produces for one face.
type Encoding []float64

// Box is a face location in pixels, ordered the way face_recognition reports it.
type Box struct {
	Top    int
	Right  int
	Bottom int
	Left   int
}

// BoxFromRect converts an image.Rectangle into a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X}
}

// Rect returns the box as an image.Rectangle (Min inclusive, Max exclusive).
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// Face is a single detection: where it is and what it looks like.
type Face struct {
	Box      Box
	Encoding Encoding
}

// Decision is the outcome of comparing one face against the reference encodings.
type Decision struct {
	Index    int     // closest reference encoding, -1 if there were none
	Distance float64 // distance to that reference
	Matched  bool
}
