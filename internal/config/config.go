// Package config holds the run configuration. A Config is built once from
// parsed flags and never mutated afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/facesift/internal/crop"
	"github.com/andresmejia3/facesift/internal/match"
)

// Face engines.
const (
	EngineDlib   = "dlib"
	EnginePython = "python"
)

const (
	DefaultDstDir        = "output"
	DefaultDebugDir      = "debug"
	DefaultModelsDir     = "models"
	DefaultWorkerScript  = "python/worker.py"
	DefaultWorkerTimeout = 30 * time.Second
)

// Environment variables that override the built-in defaults.
const (
	EnvModelsDir    = "FACESIFT_MODELS"
	EnvWorkerScript = "FACESIFT_WORKER"
)

type Config struct {
	SrcDir   string // directory of candidate images
	FacePath string // reference face image
	DstDir   string // receives matched crops; must already exist
	Debug    bool
	DebugDir string // created on demand when Debug is set

	Threshold float64 // match tolerance on Euclidean distance
	Margin    int     // padding around the face box, per side
	Size      int     // edge of the square output thumbnail

	Engine        string
	ModelsDir     string // dlib model files
	CNN           bool   // use the dlib CNN detector
	WorkerScript  string // python engine entry point
	WorkerTimeout time.Duration
}

// Default returns a Config with every optional setting filled in.
func Default() Config {
	return Config{
		DstDir:        DefaultDstDir,
		DebugDir:      DefaultDebugDir,
		Threshold:     match.DefaultTolerance,
		Margin:        crop.DefaultMargin,
		Size:          crop.DefaultSize,
		Engine:        EngineDlib,
		ModelsDir:     EnvOr(EnvModelsDir, DefaultModelsDir),
		WorkerScript:  EnvOr(EnvWorkerScript, DefaultWorkerScript),
		WorkerTimeout: DefaultWorkerTimeout,
	}
}

// EnvOr returns the environment variable key, or def when it is unset or empty.
func EnvOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ConfigError reports an invalid setting. It aborts the run before any image is touched.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func invalid(field string, format string, args ...any) error {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// Validate checks the paths on disk and the numeric ranges.
func (c Config) Validate() error {
	if c.SrcDir == "" {
		return invalid("src", "source directory is required")
	}
	info, err := os.Stat(c.SrcDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return invalid("src", "directory `%s` not found", c.SrcDir)
		}
		return &ConfigError{Field: "src", Err: err}
	}
	if !info.IsDir() {
		return invalid("src", "`%s` is not a directory", c.SrcDir)
	}

	if c.FacePath == "" {
		return invalid("face", "reference face image is required")
	}
	info, err = os.Stat(c.FacePath)
	if err != nil {
		return &ConfigError{Field: "face", Err: err}
	}
	if info.IsDir() {
		return invalid("face", "`%s` is a directory, expected an image", c.FacePath)
	}

	if c.DstDir == "" {
		return invalid("dst", "output directory is required")
	}
	if c.Debug && c.DebugDir == "" {
		return invalid("debug", "debug directory is empty")
	}

	if c.Threshold <= 0 || c.Threshold > 1.0 {
		return invalid("threshold", "must be between 0.0 and 1.0, got %f", c.Threshold)
	}
	if c.Margin < 0 {
		return invalid("margin", "must be >= 0, got %d", c.Margin)
	}
	if c.Size < 1 {
		return invalid("size", "must be >= 1, got %d", c.Size)
	}

	switch c.Engine {
	case EngineDlib:
		if c.ModelsDir == "" {
			return invalid("models", "models directory is required for the dlib engine")
		}
	case EnginePython:
		if c.WorkerScript == "" {
			return invalid("worker-script", "worker script is required for the python engine")
		}
	default:
		return invalid("engine", "unknown engine %q (use %s or %s)", c.Engine, EngineDlib, EnginePython)
	}
	if c.WorkerTimeout < 0 {
		return invalid("worker-timeout", "must not be negative, got %s", c.WorkerTimeout)
	}
	return nil
}
