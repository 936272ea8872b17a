package engine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ManifestEntry is one line of a checksum manifest.
type ManifestEntry struct {
	Digest    string
	Path      string
	Algorithm Algorithm
	Line      int
}

// ParseManifest reads a sha256sum-style manifest: "<hex>  <path>" or
// "<hex> *<path>" per line, with blank lines and "#" comments ignored. When
// alg is empty the algorithm of each entry is guessed from its digest
// length.
func ParseManifest(r io.Reader, alg Algorithm) ([]ManifestEntry, error) {
	var entries []ManifestEntry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		digest, name, err := parseDigestLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if name == "" {
			return nil, fmt.Errorf("line %d: missing path", lineNo)
		}

		a := alg
		if a == "" {
			guess, ok := algorithmForLen(len(digest))
			if !ok {
				return nil, fmt.Errorf("line %d: no algorithm has %d hex chars", lineNo, len(digest))
			}
			a = guess
		} else if len(digest) != a.HexLen() {
			return nil, fmt.Errorf("line %d: %d hex chars, %s wants %d", lineNo, len(digest), a, a.HexLen())
		}

		entries = append(entries, ManifestEntry{Digest: digest, Path: name, Algorithm: a, Line: lineNo})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return entries, nil
}

// LoadManifest parses the manifest at path and returns one verify item per
// entry, in manifest order. Relative entry paths are resolved against the
// manifest's directory. Files that cannot be stat'ed are still returned so
// the batch reports them as failures.
func LoadManifest(path string, alg Algorithm) ([]*Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	entries, err := ParseManifest(f, alg)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	items := make([]*Item, 0, len(entries))
	for _, e := range entries {
		p := e.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		it := NewItem(p, 0, e.Algorithm)
		it.Name = e.Path
		it.Expected = e.Digest
		if info, err := os.Stat(p); err == nil {
			it.Size = info.Size()
			it.ModTime = info.ModTime()
		}
		items = append(items, it)
	}
	return items, nil
}

// WriteManifest writes one line per successfully hashed item, with paths
// relative to base where possible and absolute otherwise, so the result
// loads back with LoadManifest from base. It returns the number of lines
// written.
func WriteManifest(w io.Writer, items []*Item, base string) (int, error) {
	bw := bufio.NewWriter(w)
	n := 0
	for _, it := range items {
		if it.State() != Success || it.Digest == "" {
			continue
		}
		name := it.Path
		if base != "" {
			name = relativeTo(base, it.Path)
		}
		if _, err := bw.WriteString(formatDigestLine(it.Digest, filepath.ToSlash(name))); err != nil {
			return n, fmt.Errorf("write manifest: %w", err)
		}
		n++
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("write manifest: %w", err)
	}
	return n, nil
}

func relativeTo(base, path string) string {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return path
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return absPath
	}
	return rel
}
