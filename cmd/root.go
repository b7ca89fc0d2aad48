package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/facesift/internal/config"
	"github.com/andresmejia3/facesift/internal/engine"
	"github.com/andresmejia3/facesift/internal/matcher"
	"github.com/andresmejia3/facesift/internal/report"
	"github.com/andresmejia3/facesift/internal/utils"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// newEngine is swapped out in tests so no model files are needed.
var newEngine = engine.New

// runError marks an error that runSift already showed to the user.
type runError struct {
	err error
}

func (e *runError) Error() string { return e.err.Error() }

func (e *runError) Unwrap() error { return e.err }

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := config.Default()
	var (
		logLevel string
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "facesift -i <src> -f <face> [-o <dst>] [-d]",
		Short: "Find one person's face across a directory of photos",
		Long: `Facesift loads a reference face, scans every file in the source directory,
and writes a 512x512 crop of the first matching face in each image to the
output directory. The output directory must already exist.`,
		Version:       Version, // This enables the --version flag
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRun: func(cmd *cobra.Command, args []string) {
			// .env file is optional, don't fail if not found
			_ = godotenv.Load()
			if !cmd.Flags().Changed("models") {
				opts.ModelsDir = config.EnvOr(config.EnvModelsDir, config.DefaultModelsDir)
			}
			if !cmd.Flags().Changed("worker-script") {
				opts.WorkerScript = config.EnvOr(config.EnvWorkerScript, config.DefaultWorkerScript)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(logLevel)
			if err != nil {
				cfgErr := &config.ConfigError{Field: "log-level", Err: err}
				utils.ShowError("Invalid configuration", cfgErr, nil)
				return &runError{err: cfgErr}
			}
			if quiet {
				level = log.WarnLevel
			}
			rep := report.NewConsole(cmd.ErrOrStderr(), level)
			return runSift(cmd.Context(), opts, rep)
		},
	}

	// This tells Cobra not to print the version in the help text, which is cleaner.
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	f := cmd.Flags()
	f.StringVarP(&opts.SrcDir, "src", "i", "", "Directory with images")
	f.StringVarP(&opts.FacePath, "face", "f", "", "Face image")
	f.StringVarP(&opts.DstDir, "dst", "o", opts.DstDir, "Folder for faces (must exist)")
	f.BoolVarP(&opts.Debug, "debug", "d", false, "Debug mode. Write annotated images to the `debug` folder")

	f.Float64VarP(&opts.Threshold, "threshold", "t", opts.Threshold, "Face matching threshold (lower is stricter)")
	f.IntVar(&opts.Margin, "margin", opts.Margin, "Pixels of padding around the matched face")
	f.IntVar(&opts.Size, "size", opts.Size, "Edge length of the square output image")
	f.StringVar(&opts.Engine, "engine", opts.Engine, "Face engine: dlib, python")
	f.StringVar(&opts.ModelsDir, "models", opts.ModelsDir, "Directory with dlib model files (env "+config.EnvModelsDir+")")
	f.BoolVar(&opts.CNN, "cnn", false, "Use the dlib CNN face detector (slower, more accurate)")
	f.StringVar(&opts.WorkerScript, "worker-script", opts.WorkerScript, "Python face_recognition worker (env "+config.EnvWorkerScript+")")
	f.DurationVar(&opts.WorkerTimeout, "worker-timeout", opts.WorkerTimeout, "Timeout for the python worker to process a single image")
	f.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.BoolVarP(&quiet, "quiet", "q", false, "Only print warnings and errors")

	cmd.MarkFlagRequired("src")
	cmd.MarkFlagRequired("face")
	return cmd
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, rootCmd, os.Args[1:])
	stop()
	os.Exit(code)
}

// execute runs cmd and maps the outcome to a process exit code.
func execute(ctx context.Context, cmd *cobra.Command, args []string) int {
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var shown *runError
	if !errors.As(err, &shown) {
		// Flag parsing and argument errors never reach runSift.
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\nRun '%s --help' for usage.\n", err, cmd.CommandPath())
		return exitUsage
	}
	return exitCode(err)
}

func exitCode(err error) int {
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		return exitUsage
	}
	return exitFailure
}

// runSift validates the configuration, starts the face engine and runs the batch.
func runSift(ctx context.Context, cfg config.Config, rep *report.Console) error {
	if err := cfg.Validate(); err != nil {
		utils.ShowError("Invalid configuration", err, nil)
		return &runError{err: err}
	}

	rep.Logger().WithField("engine", cfg.Engine).Info("🚀 Starting face engine...")
	eng, err := newEngine(cfg)
	if err != nil {
		utils.ShowError("Failed to start face engine", err, nil)
		return &runError{err: err}
	}
	defer closeEngine(eng, rep.Logger().Out)

	m := matcher.New(cfg, eng, rep)
	if _, err := m.Run(ctx); err != nil {
		utils.ShowError(headline(err), err, crashLogs(eng))
		return &runError{err: err}
	}
	return nil
}

func closeEngine(eng engine.Engine, w io.Writer) {
	if err := eng.Close(); err != nil {
		fmt.Fprintf(w, "⚠️  Face engine did not shut down cleanly: %v\n", err)
	}
}

func headline(err error) string {
	var decErr *matcher.DecodeError
	switch {
	case errors.Is(err, matcher.ErrNoFaceInReference):
		return "No face found in reference image"
	case errors.As(err, &decErr):
		return "Failed to read reference image"
	case errors.Is(err, engine.ErrEngineDown):
		return "Face engine crashed"
	case errors.Is(err, context.Canceled):
		return "Interrupted"
	default:
		return "Run failed"
	}
}

// crashLogs returns the worker process when the engine has one, so its stderr can be dumped.
func crashLogs(eng engine.Engine) *utils.SafeCommand {
	if p, ok := eng.(interface{ Cmd() *utils.SafeCommand }); ok {
		return p.Cmd()
	}
	return nil
}
