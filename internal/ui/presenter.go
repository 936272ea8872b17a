package ui

import (
	"io"
	"log/slog"
	"time"

	"github.com/bamsammich/beamsum/internal/engine"
	"github.com/bamsammich/beamsum/internal/event"
)

// Presenter displays a batch. The engine drives it as a Sink while the batch
// runs; the CLI feeds it the event stream and, once the batch is over, the
// items for the per-file report.
type Presenter interface {
	engine.Sink
	// Run consumes events until the channel closes, logging each one.
	Run(events <-chan event.Event, logger *slog.Logger) error
	// Report writes one line per item, in input order.
	Report(items []*engine.Item) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer        io.Writer // per-file report
	ErrWriter     io.Writer // progress and problems
	Root          string    // stripped from displayed paths
	Mode          engine.Mode
	ProgressEvery time.Duration // non-TTY progress line interval
	Width         int           // TTY columns; 0 means no truncation
	IsTTY         bool
	Quiet         bool
	Verbose       bool
	NoProgress    bool
}

const defaultProgressEvery = 5 * time.Second

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return &quietPresenter{w: cfg.Writer, root: cfg.Root, mode: cfg.Mode}
	}
	every := cfg.ProgressEvery
	if every <= 0 {
		every = defaultProgressEvery
	}
	return &plainPresenter{
		w:          cfg.Writer,
		errW:       cfg.ErrWriter,
		root:       cfg.Root,
		mode:       cfg.Mode,
		tty:        cfg.IsTTY,
		verbose:    cfg.Verbose,
		noProgress: cfg.NoProgress,
		every:      every,
		width:      cfg.Width,
		now:        time.Now,
	}
}
