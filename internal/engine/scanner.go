package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/bamsammich/beamsum/internal/filter"
)

// ScannerConfig controls input expansion.
type ScannerConfig struct {
	Filter    *filter.Chain // applied to paths relative to each directory root
	Algorithm Algorithm
	Workers   int
	Recursive bool
	// SkipSidecars leaves out files that look like digest sidecars.
	SkipSidecars bool
}

// Scanner expands command line paths into items, walking directories in
// parallel.
type Scanner struct {
	cfg   ScannerConfig
	items chan *Item
	errs  chan error
	seen  sync.Map // absolute path -> struct{}
}

// dirJob is one directory waiting to be read, with the root its filter
// paths are relative to.
type dirJob struct {
	root string
	path string
}

// NewScanner creates a scanner with the given config.
func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = min(runtime.NumCPU(), 8)
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = DefaultAlgorithm
	}
	return &Scanner{
		cfg:   cfg,
		items: make(chan *Item, cfg.Workers*4),
		errs:  make(chan error, cfg.Workers*4),
	}
}

// Scan starts expanding paths and returns channels for items and errors.
// The caller must consume from both channels until they close.
func (s *Scanner) Scan(ctx context.Context, paths []string) (<-chan *Item, <-chan error) {
	go func() {
		defer close(s.items)
		defer close(s.errs)
		s.scan(ctx, paths)
	}()
	return s.items, s.errs
}

func (s *Scanner) scan(ctx context.Context, paths []string) {
	workQueue := make(chan dirJob, s.cfg.Workers*2)
	var outstanding sync.WaitGroup // directories queued but not yet read

	var workerWg sync.WaitGroup
	for range s.cfg.Workers {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for job := range workQueue {
				s.scanDir(ctx, job, workQueue, &outstanding)
				outstanding.Done()
			}
		}()
	}

	for _, p := range paths {
		if ctx.Err() != nil {
			break
		}
		info, err := os.Stat(p)
		if err != nil {
			// Keep missing files in the batch so they fail as NotFound.
			if os.IsNotExist(err) {
				s.emit(ctx, NewItem(p, 0, s.cfg.Algorithm))
				continue
			}
			s.sendErr(ctx, fmt.Errorf("stat %s: %w", p, err))
			continue
		}
		switch {
		case info.IsDir() && !s.cfg.Recursive:
			s.sendErr(ctx, fmt.Errorf("%s is a directory (use -r)", p))
		case info.IsDir():
			outstanding.Add(1)
			workQueue <- dirJob{root: p, path: p}
		default:
			s.emitFile(ctx, p, info)
		}
	}

	outstanding.Wait()
	close(workQueue)
	workerWg.Wait()
}

func (s *Scanner) scanDir(ctx context.Context, job dirJob, workQueue chan<- dirJob, outstanding *sync.WaitGroup) {
	entries, err := os.ReadDir(job.path)
	if err != nil {
		s.sendErr(ctx, fmt.Errorf("readdir %s: %w", job.path, err))
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		path := filepath.Join(job.path, entry.Name())
		rel, err := filepath.Rel(job.root, path)
		if err != nil {
			s.sendErr(ctx, fmt.Errorf("rel path for %s: %w", path, err))
			continue
		}

		switch {
		case entry.IsDir():
			if s.cfg.Filter != nil && !s.cfg.Filter.Match(rel, true, 0) {
				continue
			}
			sub := dirJob{root: job.root, path: path}
			outstanding.Add(1)
			select {
			case workQueue <- sub:
			default:
				// Queue full: read it here rather than block every worker.
				s.scanDir(ctx, sub, workQueue, outstanding)
				outstanding.Done()
			}

		case entry.Type().IsRegular():
			if s.cfg.SkipSidecars && IsSidecar(entry.Name()) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				s.sendErr(ctx, fmt.Errorf("stat %s: %w", path, err))
				continue
			}
			if s.cfg.Filter != nil && !s.cfg.Filter.Match(rel, false, info.Size()) {
				continue
			}
			s.emitFile(ctx, path, info)
		}
		// Symlinks and special files inside a tree are not hashed.
	}
}

func (s *Scanner) emitFile(ctx context.Context, path string, info fs.FileInfo) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if _, dup := s.seen.LoadOrStore(abs, struct{}{}); dup {
		return
	}
	it := NewItem(path, info.Size(), s.cfg.Algorithm)
	it.ModTime = info.ModTime()
	s.emit(ctx, it)
}

func (s *Scanner) emit(ctx context.Context, it *Item) {
	select {
	case s.items <- it:
	case <-ctx.Done():
	}
}

func (s *Scanner) sendErr(ctx context.Context, err error) {
	select {
	case s.errs <- err:
	case <-ctx.Done():
	}
}

// Expand scans paths and returns the items sorted by path, plus every
// error met along the way.
func Expand(ctx context.Context, cfg ScannerConfig, paths []string) ([]*Item, []error) {
	items, errCh := NewScanner(cfg).Scan(ctx, paths)

	var (
		errs []error
		wg   sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range errCh {
			errs = append(errs, err)
		}
	}()

	var out []*Item
	for it := range items {
		out = append(out, it)
	}
	wg.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, errs
}
