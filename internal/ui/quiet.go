package ui

import (
	"io"
	"log/slog"

	"github.com/bamsammich/beamsum/internal/engine"
	"github.com/bamsammich/beamsum/internal/event"
	"github.com/bamsammich/beamsum/internal/stats"
)

// quietPresenter shows no progress and no summary. Create mode still prints
// digests; verify mode prints only failures.
type quietPresenter struct {
	w    io.Writer
	root string
	mode engine.Mode
}

func (p *quietPresenter) Run(events <-chan event.Event, logger *slog.Logger) error {
	for ev := range events {
		if logger != nil {
			LogEvent(logger, ev)
		}
	}
	return nil
}

func (p *quietPresenter) Progress(stats.Snapshot) {}

func (p *quietPresenter) Complete(engine.Summary) {}

func (p *quietPresenter) Report(items []*engine.Item) error {
	for _, it := range items {
		if err := reportItem(p.w, nil, p.root, p.mode, it, false); err != nil {
			return err
		}
	}
	return nil
}

func (p *quietPresenter) Summary() string {
	return ""
}
