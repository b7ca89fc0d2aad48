// Package matcher is the batch face matcher: it loads the reference face,
// walks the source directory and writes a cropped thumbnail for every image
// that contains the reference person.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facesift/internal/annotate"
	"github.com/andresmejia3/facesift/internal/config"
	"github.com/andresmejia3/facesift/internal/crop"
	"github.com/andresmejia3/facesift/internal/engine"
	"github.com/andresmejia3/facesift/internal/match"
	"github.com/andresmejia3/facesift/internal/report"
	"github.com/andresmejia3/facesift/internal/types"
)

// ErrNoFaceInReference aborts a run: there is nothing to compare against.
var ErrNoFaceInReference = errors.New("no face found in reference image")

// DecodeError means a file could not be read as an image.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type Matcher struct {
	cfg  config.Config
	eng  engine.Engine
	rep  report.Reporter
	refs []types.Encoding
}

// New wires a matcher. The engine stays owned by the caller.
func New(cfg config.Config, eng engine.Engine, rep report.Reporter) *Matcher {
	if rep == nil {
		rep = report.Nop{}
	}
	return &Matcher{cfg: cfg, eng: eng, rep: rep}
}

// References returns the loaded reference encodings.
func (m *Matcher) References() []types.Encoding {
	return m.refs
}

// LoadReference decodes the reference image and keeps every face encoding in it.
func (m *Matcher) LoadReference(ctx context.Context) error {
	img, err := crop.Open(m.cfg.FacePath)
	if err != nil {
		return &DecodeError{Path: m.cfg.FacePath, Err: err}
	}

	faces, err := m.eng.Detect(ctx, img)
	if err != nil {
		return fmt.Errorf("failed to encode reference face: %w", err)
	}
	if len(faces) == 0 {
		return fmt.Errorf("%w: %s", ErrNoFaceInReference, m.cfg.FacePath)
	}

	refs := make([]types.Encoding, len(faces))
	for i, f := range faces {
		refs[i] = f.Encoding
	}
	m.refs = refs
	m.rep.Reference(m.cfg.FacePath, len(faces))
	return nil
}

// Run processes every entry of the source directory once. Per-file problems
// are reported and counted; only reference, setup and engine failures stop
// the run.
func (m *Matcher) Run(ctx context.Context) (report.Summary, error) {
	var s report.Summary

	if m.refs == nil {
		if err := m.LoadReference(ctx); err != nil {
			return s, err
		}
	}

	entries, err := os.ReadDir(m.cfg.SrcDir)
	if err != nil {
		return s, &config.ConfigError{Field: "src", Err: err}
	}

	if m.cfg.Debug {
		if err := os.MkdirAll(m.cfg.DebugDir, 0755); err != nil {
			return s, fmt.Errorf("failed to create debug directory: %w", err)
		}
	}

	m.rep.Start(len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			m.rep.Finish(s)
			return s, err
		}

		path := filepath.Join(m.cfg.SrcDir, entry.Name())
		s.Scanned++
		m.rep.Processing(path)

		res, err := m.processImage(ctx, path)
		if res.debug != "" {
			s.Debug = append(s.Debug, res.debug)
		}
		if err != nil {
			if errors.Is(err, engine.ErrEngineDown) || ctx.Err() != nil {
				m.rep.Finish(s)
				return s, err
			}
			s.Failed++
			m.rep.FileError(path, err)
			continue
		}

		if res.output == "" {
			s.Unmatched++
			m.rep.NoMatch(path, res.faces)
			continue
		}
		s.Matched++
		s.Outputs = append(s.Outputs, res.output)
		m.rep.Matched(path, res.output, res.decision)
	}

	m.rep.Finish(s)
	return s, nil
}

type result struct {
	faces    int
	output   string
	debug    string
	decision types.Decision
}

// processImage matches every face in one image. Only the first matching face
// produces an output artifact; with debug on, every face is still annotated.
func (m *Matcher) processImage(ctx context.Context, path string) (result, error) {
	name := filepath.Base(path)

	img, err := crop.Open(path)
	if err != nil {
		return result{}, &DecodeError{Path: path, Err: err}
	}

	faces, err := m.eng.Detect(ctx, img)
	if err != nil {
		return result{}, fmt.Errorf("face detection failed for %s: %w", name, err)
	}

	res := result{faces: len(faces)}
	var canvas *image.NRGBA
	if m.cfg.Debug {
		canvas = annotate.Canvas(img)
	}

	var outErr error
	for _, f := range faces {
		d := match.Best(m.refs, f.Encoding, m.cfg.Threshold)
		if canvas != nil {
			annotate.Draw(canvas, f.Box, d.Matched)
		}
		if !d.Matched || res.output != "" || outErr != nil {
			continue
		}

		out, err := m.writeThumbnail(img, f.Box, name)
		if err != nil {
			outErr = err
		} else {
			res.output = out
			res.decision = d
		}
		if canvas == nil {
			break
		}
	}

	if canvas != nil {
		dbg := filepath.Join(m.cfg.DebugDir, name)
		if err := crop.Save(canvas, dbg); err != nil {
			return res, errors.Join(outErr, err)
		}
		res.debug = dbg
	}
	return res, outErr
}

func (m *Matcher) writeThumbnail(img image.Image, box types.Box, name string) (string, error) {
	thumb, err := crop.Thumbnail(img, box, m.cfg.Margin, m.cfg.Size)
	if err != nil {
		return "", err
	}
	out := filepath.Join(m.cfg.DstDir, name)
	if err := crop.Save(thumb, out); err != nil {
		return "", err
	}
	return out, nil
}
