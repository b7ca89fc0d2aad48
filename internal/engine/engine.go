// Package engine wraps the pretrained face model behind a small interface.
//
// Two backends exist: dlib in-process through go-face, and the Python
// face_recognition library through a long-lived worker process. Both use the
// same dlib ResNet model, so their encodings are interchangeable.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/facesift/internal/config"
	"github.com/andresmejia3/facesift/internal/types"
	"github.com/andresmejia3/facesift/internal/utils"
	"github.com/andresmejia3/facesift/internal/worker"
	"github.com/disintegration/imaging"
)

// Engine detects faces and computes one encoding per face.
// Faces come back in detection order with box and encoding paired.
type Engine interface {
	Detect(ctx context.Context, img image.Image) ([]types.Face, error)
	Close() error
}

// StartupError means the model or worker could not be brought up.
type StartupError struct {
	Engine string
	Err    error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("failed to start %s engine: %v", e.Engine, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// New builds the engine selected in cfg.
func New(cfg config.Config) (Engine, error) {
	switch cfg.Engine {
	case config.EngineDlib:
		d, err := NewDlib(cfg.ModelsDir, cfg.CNN)
		if err != nil {
			return nil, &StartupError{Engine: cfg.Engine, Err: err}
		}
		return d, nil
	case config.EnginePython:
		w, err := worker.NewPythonWorker(0, worker.Config{
			Script:      cfg.WorkerScript,
			ReadTimeout: cfg.WorkerTimeout,
		})
		if err != nil {
			return nil, &StartupError{Engine: cfg.Engine, Err: err}
		}
		return &Python{w: w}, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

// ErrEngineDown is returned once the engine can no longer process images.
// The run cannot continue past it.
var ErrEngineDown = errors.New("face engine is not running")

// Python sends each image to a face_recognition worker as PNG.
type Python struct {
	w    *worker.PythonWorker
	dead bool
}

func (p *Python) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.dead {
		return nil, ErrEngineDown
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image for worker: %w", err)
	}

	faces, err := p.w.ProcessFrame(buf.Bytes())
	if err != nil {
		var remote *worker.RemoteError
		if errors.As(err, &remote) {
			// Python raised for this image only; the worker is still alive.
			return nil, err
		}
		p.dead = true
		return nil, fmt.Errorf("%w: %v", ErrEngineDown, err)
	}
	return faces, nil
}

// Cmd exposes the worker process so its stderr can be shown on failure.
func (p *Python) Cmd() *utils.SafeCommand {
	return p.w.Cmd
}

func (p *Python) Close() error {
	return p.w.Close()
}
