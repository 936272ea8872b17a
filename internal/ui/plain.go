package ui

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bamsammich/beamsum/internal/engine"
	"github.com/bamsammich/beamsum/internal/event"
	"github.com/bamsammich/beamsum/internal/stats"
)

const (
	progressBarWidth = 20
	clearLine        = "\r\033[K"
)

// plainPresenter writes the per-file report to stdout and progress to
// stderr: redrawn in place on a TTY, one line every few seconds otherwise.
type plainPresenter struct {
	w          io.Writer
	errW       io.Writer
	now        func() time.Time
	root       string
	mode       engine.Mode
	every      time.Duration
	width      int
	tty        bool
	verbose    bool
	noProgress bool

	mu           sync.Mutex
	current      string // path of the most recently started item
	lineDrawn    bool
	lastProgress time.Time
	summary      string
}

func (p *plainPresenter) Run(events <-chan event.Event, logger *slog.Logger) error {
	for ev := range events {
		if logger != nil {
			LogEvent(logger, ev)
		}
		p.handleEvent(ev)
	}
	return nil
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch ev.Type {
	case event.ItemStarted:
		p.current = ev.Path
	case event.ItemFailed:
		if p.verbose {
			p.clear()
			fmt.Fprintf(p.errW, "%s: %s\n", DisplayPath(p.root, ev.Path), ev.Status)
		}
	}
}

// Progress implements engine.Sink.
func (p *plainPresenter) Progress(snap stats.Snapshot) {
	if p.noProgress {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	line := progressLine(snap)
	if p.tty {
		if p.current != "" {
			line += "  " + DisplayPath(p.root, p.current)
		}
		fmt.Fprint(p.errW, clearLine+truncate(line, p.width-1))
		p.lineDrawn = true
		return
	}
	now := p.now()
	if !p.lastProgress.IsZero() && now.Sub(p.lastProgress) < p.every {
		return
	}
	p.lastProgress = now
	fmt.Fprintln(p.errW, "progress: "+line)
}

// Complete implements engine.Sink.
func (p *plainPresenter) Complete(sum engine.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clear()
	p.summary = CompletionSummary(sum)
}

// clear erases the in-place progress line. Callers hold p.mu.
func (p *plainPresenter) clear() {
	if p.lineDrawn {
		fmt.Fprint(p.errW, clearLine)
		p.lineDrawn = false
	}
}

func (p *plainPresenter) Report(items []*engine.Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clear()
	for _, it := range items {
		if err := reportItem(p.w, p.errW, p.root, p.mode, it, true); err != nil {
			return err
		}
	}
	return nil
}

func (p *plainPresenter) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}

// progressLine renders a snapshot without the trailing path.
func progressLine(snap stats.Snapshot) string {
	var line string
	if snap.Total > 0 {
		pct := float64(snap.Processed) / float64(snap.Total)
		line = fmt.Sprintf("%s %3.0f%%  %s/%s files  %s/%s",
			ProgressBar(pct, progressBarWidth), pct*100,
			FormatCount(snap.Processed), FormatCount(snap.Total),
			FormatBytes(snap.BytesRead), FormatBytes(snap.BytesTotal),
		)
	} else {
		line = fmt.Sprintf("%s files  %s", FormatCount(snap.Processed), FormatBytes(snap.BytesRead))
	}
	if snap.ReadRate != nil {
		line += "  " + FormatRate(*snap.ReadRate)
	}
	if snap.ETA != nil {
		line += "  eta " + FormatETA(*snap.ETA)
	}
	return line
}

// reportItem writes the result line for one item. Create mode keeps stdout
// a valid manifest, so only digests go there and every problem goes to errW.
// Verify mode writes "path: OK" (when showOK) or "path: FAILED (...)" to w.
func reportItem(w, errW io.Writer, root string, mode engine.Mode, it *engine.Item, showOK bool) error {
	path := DisplayPath(root, it.Path)
	var err error
	switch it.State() {
	case engine.Success:
		switch {
		case mode == engine.Create:
			_, err = fmt.Fprintf(w, "%s  %s\n", it.Digest, path)
		case showOK:
			_, err = fmt.Fprintf(w, "%s: OK\n", path)
		}
	case engine.Failure:
		if mode == engine.Verify {
			_, err = fmt.Fprintf(w, "%s: FAILED (%s)\n", path, it.Status)
		} else if errW != nil {
			_, err = fmt.Fprintf(errW, "%s: FAILED (%s)\n", path, it.Status)
		}
	case engine.Cancelled:
		if errW != nil {
			_, err = fmt.Fprintf(errW, "%s: CANCELLED (%s)\n", path, it.Status)
		}
	case engine.Ready:
		if errW != nil && engine.KindOf(it.Err) == engine.KindSizeLimitExceeded {
			_, err = fmt.Fprintf(errW, "%s: SKIPPED (%s)\n", path, it.Status)
		}
	}
	return err
}

// truncate cuts s to at most n runes. n <= 0 leaves s alone.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
