package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobMatches(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		{pattern: "*.iso", path: "disk.iso", want: true},
		{pattern: "*.iso", path: "images/disk.iso", want: true},
		{pattern: "*.iso", path: "disk.iso.part", want: false},
		{pattern: "**/*.go", path: "main.go", want: true},
		{pattern: "**/*.go", path: "internal/engine/engine.go", want: true},
		{pattern: "**/*.go", path: "main.txt", want: false},
		{pattern: "/root.txt", path: "root.txt", want: true},
		{pattern: "/root.txt", path: "sub/root.txt", want: false},
		{pattern: "sub/dir/*.txt", path: "sub/dir/file.txt", want: true},
		{pattern: "sub/dir/*.txt", path: "other/sub/dir/file.txt", want: false},
		{pattern: "cache/", path: "cache", isDir: true, want: true},
		{pattern: "cache/", path: "a/cache", isDir: true, want: true},
		{pattern: "cache/", path: "cache", want: false},
		{pattern: "file?.txt", path: "file1.txt", want: true},
		{pattern: "file?.txt", path: "file12.txt", want: false},
		{pattern: "file?.txt", path: "file/.txt", want: false},
		{pattern: "v[0-9].bin", path: "v3.bin", want: true},
		{pattern: "v[!0-9].bin", path: "v3.bin", want: false},
		{pattern: "v[!0-9].bin", path: "vx.bin", want: true},
		{pattern: "[].txt", path: "[].txt", want: true},
		{pattern: "a[b", path: "a[b", want: true},
		{pattern: "a+b(1).txt", path: "a+b(1).txt", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			g, err := compileGlob(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, g.matches(tt.path, tt.isDir))
		})
	}
}

func TestClassEnd(t *testing.T) {
	assert.Equal(t, 3, classEnd("[ab]"))
	assert.Equal(t, 2, classEnd("[]]"))
	assert.Equal(t, 3, classEnd("[!]]"))
	assert.Equal(t, -1, classEnd("[ab"))
}
