package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
	}{
		{in: "", want: SHA256},
		{in: "sha256", want: SHA256},
		{in: "SHA-256", want: SHA256},
		{in: " Md5 ", want: MD5},
		{in: "BLAKE3", want: BLAKE3},
		{in: "xxh64", want: XXH64},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseAlgorithm("crc32")
	assert.ErrorContains(t, err, `unknown algorithm "crc32"`)
}

func TestAlgorithmsAreUsable(t *testing.T) {
	for _, a := range Algorithms() {
		h, err := a.New()
		require.NoError(t, err, a)
		assert.Equal(t, a.HexLen(), 2*h.Size(), a)
		assert.Equal(t, "."+a.String(), a.Ext())
	}
}

func TestAlgorithmForLen(t *testing.T) {
	a, ok := algorithmForLen(64)
	assert.True(t, ok)
	assert.Equal(t, SHA256, a)

	a, ok = algorithmForLen(16)
	assert.True(t, ok)
	assert.Equal(t, XXH64, a)

	_, ok = algorithmForLen(10)
	assert.False(t, ok)
}
