package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/beamsum/internal/filter"
)

func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range map[string]string{
		"a.txt":             "a",
		"a.txt.sha256":      helloSHA256 + "  a.txt\n",
		"b.log":             "bb",
		"sub/c.txt":         "ccc",
		"sub/deep/d.txt":    "dddd",
		"skip/e.txt":        "eeeee",
		"sub/deep/big.data": "0123456789",
	} {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "link.txt")))
	return root
}

func relPaths(t *testing.T, root string, items []*Item) []string {
	t.Helper()
	out := make([]string, len(items))
	for i, it := range items {
		rel, err := filepath.Rel(root, it.Path)
		require.NoError(t, err)
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

func TestExpandRecursive(t *testing.T) {
	root := makeTree(t)
	items, errs := Expand(context.Background(), ScannerConfig{Recursive: true, Workers: 2}, []string{root})
	require.Empty(t, errs)

	assert.Equal(t, []string{
		"a.txt",
		"a.txt.sha256",
		"b.log",
		"skip/e.txt",
		"sub/c.txt",
		"sub/deep/big.data",
		"sub/deep/d.txt",
	}, relPaths(t, root, items))

	for _, it := range items {
		assert.Equal(t, SHA256, it.Algorithm)
		assert.Equal(t, Ready, it.State())
		assert.False(t, it.ModTime.IsZero())
	}
}

func TestExpandSkipsSidecarsAndFilters(t *testing.T) {
	root := makeTree(t)
	chain := filter.NewChain()
	require.NoError(t, chain.AddExclude("skip/"))
	require.NoError(t, chain.AddExclude("*.log"))
	chain.SetMaxSize(5)

	items, errs := Expand(context.Background(), ScannerConfig{
		Recursive:    true,
		SkipSidecars: true,
		Filter:       chain,
		Algorithm:    MD5,
	}, []string{root})
	require.Empty(t, errs)

	assert.Equal(t, []string{"a.txt", "sub/c.txt", "sub/deep/d.txt"}, relPaths(t, root, items))
	assert.Equal(t, MD5, items[0].Algorithm)
}

func TestExpandDirectoryWithoutRecursive(t *testing.T) {
	root := makeTree(t)
	items, errs := Expand(context.Background(), ScannerConfig{}, []string{root})
	assert.Empty(t, items)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "is a directory")
}

func TestExpandExplicitFiles(t *testing.T) {
	root := makeTree(t)
	a := filepath.Join(root, "a.txt")
	missing := filepath.Join(root, "missing.txt")

	items, errs := Expand(context.Background(), ScannerConfig{}, []string{a, a, missing})
	require.Empty(t, errs)
	require.Len(t, items, 2, "duplicates are dropped, missing files kept")

	byPath := map[string]*Item{}
	for _, it := range items {
		byPath[it.Path] = it
	}
	assert.Equal(t, int64(1), byPath[a].Size)
	assert.Contains(t, byPath, missing)
}

func TestExpandOverlappingRoots(t *testing.T) {
	root := makeTree(t)
	items, errs := Expand(context.Background(), ScannerConfig{Recursive: true}, []string{
		filepath.Join(root, "sub"),
		filepath.Join(root, "sub", "c.txt"),
	})
	require.Empty(t, errs)
	assert.Len(t, items, 3)
}

func TestExpandCancelled(t *testing.T) {
	root := makeTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		Expand(ctx, ScannerConfig{Recursive: true}, []string{root})
	}()
	<-done
}
