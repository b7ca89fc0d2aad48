// Package report decouples run progress from where it is shown.
package report

import (
	"io"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facesift/internal/types"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
)

// Summary is the outcome of one batch run.
type Summary struct {
	Scanned   int      // directory entries visited
	Matched   int      // images that produced an output artifact
	Unmatched int      // images decoded and searched without a match
	Failed    int      // entries that could not be processed
	Outputs   []string // written output artifacts, in order
	Debug     []string // written debug artifacts, in order
}

// Reporter receives every user-visible event of a run.
type Reporter interface {
	Start(total int)
	Reference(path string, faces int)
	Processing(path string)
	Matched(path, output string, d types.Decision)
	NoMatch(path string, faces int)
	FileError(path string, err error)
	Finish(s Summary)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Start(int)                              {}
func (Nop) Reference(string, int)                  {}
func (Nop) Processing(string)                      {}
func (Nop) Matched(string, string, types.Decision) {}
func (Nop) NoMatch(string, int)                    {}
func (Nop) FileError(string, error)                {}
func (Nop) Finish(Summary)                         {}

// Console logs events through logrus and, on a terminal, draws a progress bar.
type Console struct {
	log *log.Logger
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewConsole writes to out at the given level.
func NewConsole(out io.Writer, level log.Level) *Console {
	logger := log.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	return &Console{log: logger, out: out}
}

// Logger exposes the underlying logger for messages outside the batch loop.
func (c *Console) Logger() *log.Logger {
	return c.log
}

func (c *Console) Start(total int) {
	c.log.WithField("entries", total).Info("Scanning source directory")
	if !isTerminal(c.out) {
		return
	}
	c.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription("🔍 Detecting faces"),
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (c *Console) Reference(path string, faces int) {
	entry := c.log.WithFields(log.Fields{"face": path, "faces": faces})
	if faces > 1 {
		entry.Warn("Reference image holds several faces; all are used as references")
		return
	}
	entry.Info("Loaded reference face")
}

func (c *Console) Processing(path string) {
	c.log.WithField("file", path).Debug("Working with image")
}

func (c *Console) Matched(path, output string, d types.Decision) {
	c.log.WithFields(log.Fields{
		"file":     path,
		"output":   output,
		"distance": d.Distance,
	}).Info("Face found")
	c.tick()
}

func (c *Console) NoMatch(path string, faces int) {
	c.log.WithFields(log.Fields{"file": path, "faces": faces}).Debug("No matching face")
	c.tick()
}

func (c *Console) FileError(path string, err error) {
	c.log.WithField("file", filepath.Base(path)).WithError(err).Warn("Skipping file")
	c.tick()
}

func (c *Console) Finish(s Summary) {
	if c.bar != nil {
		c.bar.Finish()
	}
	c.log.WithFields(log.Fields{
		"scanned":   s.Scanned,
		"matched":   s.Matched,
		"unmatched": s.Unmatched,
		"failed":    s.Failed,
	}).Info("🏁 Scan complete")
}

func (c *Console) tick() {
	if c.bar != nil {
		c.bar.Add(1)
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
