package filter

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseSize parses a byte count such as "512", "100K", "1.5G", "10MB" or
// "4 GiB". A single-letter suffix (K, M, G, T) is a power of 1024, as in
// rsync; longer unit names follow humanize, where MB is 1000² and MiB 1024².
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}

	if shift, ok := binaryShift(s[len(s)-1]); ok {
		if f, err := strconv.ParseFloat(s[:len(s)-1], 64); err == nil {
			return toBytes(s, f*float64(uint64(1)<<shift))
		}
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return int64(n), nil
}

func binaryShift(c byte) (uint, bool) {
	switch c {
	case 'k', 'K':
		return 10, true
	case 'm', 'M':
		return 20, true
	case 'g', 'G':
		return 30, true
	case 't', 'T':
		return 40, true
	}
	return 0, false
}

func toBytes(s string, f float64) (int64, error) {
	if f < 0 || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if f >= math.MaxInt64 {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return int64(f), nil
}
