package cmd

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/facesift/internal/config"
	"github.com/andresmejia3/facesift/internal/engine"
	"github.com/andresmejia3/facesift/internal/matcher"
	"github.com/andresmejia3/facesift/internal/types"
	"github.com/andresmejia3/facesift/internal/utils"
	"github.com/disintegration/imaging"
)

// stubEngine reports faces by image size.
type stubEngine struct {
	faces  map[image.Point][]types.Face
	closed bool
}

func (s *stubEngine) Detect(_ context.Context, img image.Image) ([]types.Face, error) {
	return s.faces[img.Bounds().Size()], nil
}

func (s *stubEngine) Close() error {
	s.closed = true
	return nil
}

type workspace struct {
	src, face, dst string
	eng            *stubEngine
}

// setup builds src/, output/ and a reference image, and routes newEngine to a stub.
func setup(t *testing.T) *workspace {
	t.Helper()
	root := t.TempDir()
	ws := &workspace{
		src:  filepath.Join(root, "src"),
		face: filepath.Join(root, "me.png"),
		dst:  filepath.Join(root, "output"),
		eng: &stubEngine{faces: map[image.Point][]types.Face{
			image.Pt(40, 40): {{Box: types.Box{Top: 5, Right: 35, Bottom: 35, Left: 5}, Encoding: types.Encoding{0, 0}}},
		}},
	}
	for _, d := range []string{ws.src, ws.dst} {
		if err := os.Mkdir(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	save(t, ws.face, 40, 40)

	oldEngine := newEngine
	newEngine = func(config.Config) (engine.Engine, error) { return ws.eng, nil }
	oldWriter := utils.ErrorWriter
	utils.ErrorWriter = new(bytes.Buffer)
	t.Cleanup(func() {
		newEngine = oldEngine
		utils.ErrorWriter = oldWriter
	})
	return ws
}

func save(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := imaging.Save(imaging.New(w, h, color.NRGBA{90, 90, 90, 255}), path); err != nil {
		t.Fatal(err)
	}
}

func run(args ...string) (int, string) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	code := execute(context.Background(), cmd, args)
	return code, out.String()
}

func TestExecuteSuccess(t *testing.T) {
	ws := setup(t)
	save(t, filepath.Join(ws.src, "a.png"), 300, 200)
	ws.eng.faces[image.Pt(300, 200)] = []types.Face{
		{Box: types.Box{Top: 50, Right: 200, Bottom: 150, Left: 100}, Encoding: types.Encoding{0.2, 0}},
	}

	code, out := run("-i", ws.src, "-f", ws.face, "-o", ws.dst)
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d\n%s", code, exitOK, out)
	}
	if _, err := os.Stat(filepath.Join(ws.dst, "a.png")); err != nil {
		t.Errorf("output artifact missing: %v", err)
	}
	if !ws.eng.closed {
		t.Error("engine was not closed")
	}
	if !strings.Contains(out, "Face found") {
		t.Errorf("log output missing match line:\n%s", out)
	}
}

func TestExecuteExitCodes(t *testing.T) {
	ws := setup(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"Missing required flags", []string{"-o", ws.dst}, exitUsage},
		{"Unknown flag", []string{"-i", ws.src, "-f", ws.face, "--bogus"}, exitUsage},
		{"Positional argument", []string{"-i", ws.src, "-f", ws.face, "extra"}, exitUsage},
		{"Source directory missing", []string{"-i", filepath.Join(ws.src, "nope"), "-f", ws.face}, exitUsage},
		{"Bad threshold", []string{"-i", ws.src, "-f", ws.face, "-t", "3"}, exitUsage},
		{"Bad log level", []string{"-i", ws.src, "-f", ws.face, "--log-level", "loud"}, exitUsage},
		{"Empty source directory", []string{"-i", ws.src, "-f", ws.face, "-o", ws.dst, "-q"}, exitOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, out := run(tt.args...); code != tt.want {
				t.Errorf("exit code = %d, want %d\n%s", code, tt.want, out)
			}
		})
	}
}

func TestExecuteNoFaceInReference(t *testing.T) {
	ws := setup(t)
	delete(ws.eng.faces, image.Pt(40, 40))
	save(t, filepath.Join(ws.src, "a.png"), 300, 200)

	code, _ := run("-i", ws.src, "-f", ws.face, "-o", ws.dst)
	if code != exitFailure {
		t.Fatalf("exit code = %d, want %d", code, exitFailure)
	}
	if entries, _ := os.ReadDir(ws.dst); len(entries) != 0 {
		t.Errorf("output dir has %d entries, want 0", len(entries))
	}
	if !strings.Contains(utils.ErrorWriter.(*bytes.Buffer).String(), "No face found in reference image") {
		t.Errorf("error box missing headline:\n%s", utils.ErrorWriter.(*bytes.Buffer).String())
	}
}

func TestExecuteEngineStartupFailure(t *testing.T) {
	ws := setup(t)
	newEngine = func(config.Config) (engine.Engine, error) {
		return nil, &engine.StartupError{Engine: "dlib", Err: errors.New("models missing")}
	}

	code, _ := run("-i", ws.src, "-f", ws.face)
	if code != exitFailure {
		t.Fatalf("exit code = %d, want %d", code, exitFailure)
	}
}

func TestEnvironmentDefaults(t *testing.T) {
	ws := setup(t)
	t.Setenv(config.EnvModelsDir, "/srv/dlib")

	var got config.Config
	newEngine = func(cfg config.Config) (engine.Engine, error) {
		got = cfg
		return ws.eng, nil
	}

	if code, out := run("-i", ws.src, "-f", ws.face, "-o", ws.dst); code != exitOK {
		t.Fatalf("exit code = %d\n%s", code, out)
	}
	if got.ModelsDir != "/srv/dlib" {
		t.Errorf("ModelsDir = %q, want the environment value", got.ModelsDir)
	}

	if code, out := run("-i", ws.src, "-f", ws.face, "-o", ws.dst, "--models", "/flag/wins"); code != exitOK {
		t.Fatalf("exit code = %d\n%s", code, out)
	}
	if got.ModelsDir != "/flag/wins" {
		t.Errorf("ModelsDir = %q, want the flag value", got.ModelsDir)
	}
}

func TestHeadline(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{matcher.ErrNoFaceInReference, "No face found in reference image"},
		{&matcher.DecodeError{Path: "me.jpg", Err: errors.New("bad")}, "Failed to read reference image"},
		{engine.ErrEngineDown, "Face engine crashed"},
		{context.Canceled, "Interrupted"},
		{errors.New("other"), "Run failed"},
	}
	for _, tt := range tests {
		if got := headline(tt.err); got != tt.want {
			t.Errorf("headline(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
