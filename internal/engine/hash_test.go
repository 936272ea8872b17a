package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHashFileKnownDigests(t *testing.T) {
	dir := t.TempDir()
	hello := writeFile(t, dir, "hello.txt", "hello")
	empty := writeFile(t, dir, "empty.txt", "")

	tests := []struct {
		path string
		alg  Algorithm
		want string
	}{
		{path: hello, alg: MD5, want: "5d41402abc4b2a76b9719d911017c592"},
		{path: hello, alg: SHA1, want: "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"},
		{path: hello, alg: SHA256, want: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{path: empty, alg: SHA256, want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{path: empty, alg: BLAKE3, want: "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"},
		{path: empty, alg: XXH64, want: "ef46db3751d8e999"},
	}
	for _, tt := range tests {
		t.Run(tt.alg.String()+"/"+filepath.Base(tt.path), func(t *testing.T) {
			got, err := HashFile(context.Background(), tt.path, tt.alg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, tt.alg.HexLen())
		})
	}
}

func TestComputeBufferSizeDoesNotChangeDigest(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "data.bin", "the quick brown fox jumps over the lazy dog")
	h := NewFileHasher(0)

	want, err := HashFile(context.Background(), path, SHA256)
	require.NoError(t, err)

	for _, size := range []int{1, 3, 7, 4096} {
		var read int64
		got, err := h.Compute(context.Background(), HashRequest{
			Path:       path,
			Algorithm:  SHA256,
			BufferSize: size,
			OnRead:     func(n int64) { read += n },
		})
		require.NoError(t, err)
		assert.Equal(t, want, got, "buffer %d", size)
		assert.Equal(t, int64(43), read, "buffer %d", size)
	}
}

func TestComputeNotFound(t *testing.T) {
	_, err := HashFile(context.Background(), "/nonexistent/file", SHA256)
	require.Error(t, err)

	var ie *ItemError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, KindNotFound, ie.Kind)
	assert.Equal(t, "open", ie.Op)
}

func TestComputeAccessDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	dir := t.TempDir()
	path := writeFile(t, dir, "secret", "x")
	require.NoError(t, os.Chmod(path, 0))

	_, err := HashFile(context.Background(), path, SHA256)
	assert.Equal(t, KindAccessDenied, KindOf(err))
}

func TestComputeDirectory(t *testing.T) {
	_, err := HashFile(context.Background(), t.TempDir(), SHA256)
	assert.Equal(t, KindIO, KindOf(err))
}

func TestComputeUnknownAlgorithm(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a", "x")
	_, err := HashFile(context.Background(), path, Algorithm("crc7"))
	assert.Equal(t, KindIO, KindOf(err))
}

func TestComputeCancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a", "content")

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(ErrItemTimeout)

	_, err := HashFile(ctx, path, SHA256)
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.ErrorIs(t, err, ErrItemTimeout)
}

func TestComputeWithBandwidthLimit(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hello.txt", "hello")

	// A 1 KiB/s limit with a 1 MiB buffer must still make progress.
	got, err := NewFileHasher(1024).Compute(context.Background(), HashRequest{
		Path:       path,
		Algorithm:  SHA256,
		BufferSize: 1 * mib,
	})
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", got)
}

func TestHashFuncAdapter(t *testing.T) {
	var h HashComputer = HashFunc(func(_ context.Context, req HashRequest) (string, error) {
		return "digest-of-" + req.Path, nil
	})
	got, err := h.Compute(context.Background(), HashRequest{Path: "x"})
	require.NoError(t, err)
	assert.Equal(t, "digest-of-x", got)
}
