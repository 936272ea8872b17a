package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyChainIncludesAll(t *testing.T) {
	c := NewChain()
	assert.True(t, c.Match("any/file.txt", false, 1024))
	assert.True(t, c.Match("any/dir", true, 0))
	assert.True(t, c.Empty())
}

func TestFirstMatchWins(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("keep.log"))
	require.NoError(t, c.AddExclude("*.log"))
	assert.True(t, c.Match("keep.log", false, 1))
	assert.False(t, c.Match("debug.log", false, 1))

	c = NewChain()
	require.NoError(t, c.AddExclude("*.log"))
	require.NoError(t, c.AddInclude("keep.log"))
	assert.False(t, c.Match("keep.log", false, 1))
}

func TestSizeBounds(t *testing.T) {
	c := NewChain()
	c.SetMinSize(100)
	c.SetMaxSize(10000)

	assert.False(t, c.Match("tiny", false, 50))
	assert.True(t, c.Match("medium", false, 500))
	assert.False(t, c.Match("huge", false, 50000))
	assert.True(t, c.Match("somedir", true, 0), "directories ignore size bounds")
	assert.False(t, c.Empty())
}

func TestBuild(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "rules")
	require.NoError(t, os.WriteFile(rules, []byte("- *.tmp\n"), 0o644))

	c, err := Build(Options{
		Rules: []Rule{
			{Pattern: "important.log", Include: true},
			{Pattern: "*.log"},
		},
		File:    rules,
		MinSize: "1",
		MaxSize: "1K",
	})
	require.NoError(t, err)

	assert.True(t, c.Match("important.log", false, 10))
	assert.False(t, c.Match("debug.log", false, 10))
	assert.False(t, c.Match("x.tmp", false, 10))
	assert.False(t, c.Match("empty", false, 0))
	assert.False(t, c.Match("big", false, 2048))
	assert.True(t, c.Match("ok.txt", false, 10))
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(Options{MaxSize: "lots"})
	assert.ErrorContains(t, err, "max size")

	_, err = Build(Options{MinSize: "few"})
	assert.ErrorContains(t, err, "min size")

	_, err = Build(Options{File: "/nonexistent/rules"})
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.rules")
	content := `# comment
+ *.go
- *.log

- build/
noprefix.txt
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c := NewChain()
	require.NoError(t, c.LoadFile(path))
	require.Len(t, c.rules, 4)
	assert.True(t, c.rules[0].include)
	assert.False(t, c.rules[3].include)

	assert.True(t, c.Match("main.go", false, 100))
	assert.False(t, c.Match("app.log", false, 100))
	assert.False(t, c.Match("build", true, 0))
	assert.False(t, c.Match("noprefix.txt", false, 100))
}

func TestLoadFileOnlyComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.rules")
	require.NoError(t, os.WriteFile(path, []byte("# only comments\n\n"), 0o644))

	c := NewChain()
	require.NoError(t, c.LoadFile(path))
	assert.True(t, c.Empty())
}

func TestLoadFileNotExists(t *testing.T) {
	assert.Error(t, NewChain().LoadFile("/nonexistent/path"))
}
