// Package filter decides which files found under a directory argument
// are hashed. Rules use rsync-style globs; the first matching rule wins and
// unmatched paths are kept.
package filter

import "fmt"

type rule struct {
	glob    *glob
	include bool
}

// Chain holds an ordered list of include/exclude rules plus size bounds.
type Chain struct {
	rules   []rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude appends a rule dropping paths that match pattern.
func (c *Chain) AddExclude(pattern string) error {
	return c.add(pattern, false)
}

// AddInclude appends a rule keeping paths that match pattern.
func (c *Chain) AddInclude(pattern string) error {
	return c.add(pattern, true)
}

func (c *Chain) add(pattern string, include bool) error {
	g, err := compileGlob(pattern)
	if err != nil {
		return fmt.Errorf("pattern %q: %w", pattern, err)
	}
	c.rules = append(c.rules, rule{glob: g, include: include})
	return nil
}

// SetMinSize drops files smaller than n bytes. Zero disables the bound.
func (c *Chain) SetMinSize(n int64) { c.minSize = n }

// SetMaxSize drops files larger than n bytes. Zero disables the bound.
func (c *Chain) SetMaxSize(n int64) { c.maxSize = n }

// Empty reports whether the chain keeps everything.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0
}

// Match reports whether relPath should be kept. relPath is relative to the
// directory argument being walked; size is ignored for directories, and a
// directory that does not match is not descended into.
func (c *Chain) Match(relPath string, isDir bool, size int64) bool {
	if !isDir {
		if c.minSize > 0 && size < c.minSize {
			return false
		}
		if c.maxSize > 0 && size > c.maxSize {
			return false
		}
	}
	for _, r := range c.rules {
		if r.glob.matches(relPath, isDir) {
			return r.include
		}
	}
	return true
}

// Rule is one command line include or exclude pattern.
type Rule struct {
	Pattern string
	Include bool
}

// Options are the filter settings collected from flags and config.
type Options struct {
	Rules   []Rule // in command line order
	File    string // rules file, see LoadFile
	MinSize string
	MaxSize string
}

// Build assembles a chain from opts. Rules keep their command line order so
// an earlier "--include" can carve an exception out of a later "--exclude";
// rules from File come last.
func Build(opts Options) (*Chain, error) {
	c := NewChain()
	for _, r := range opts.Rules {
		if err := c.add(r.Pattern, r.Include); err != nil {
			return nil, err
		}
	}
	if opts.File != "" {
		if err := c.LoadFile(opts.File); err != nil {
			return nil, err
		}
	}
	if opts.MinSize != "" {
		n, err := ParseSize(opts.MinSize)
		if err != nil {
			return nil, fmt.Errorf("min size: %w", err)
		}
		c.SetMinSize(n)
	}
	if opts.MaxSize != "" {
		n, err := ParseSize(opts.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("max size: %w", err)
		}
		c.SetMaxSize(n)
	}
	return c, nil
}
