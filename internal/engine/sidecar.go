package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNoSidecar is returned when a file has no sidecar for the algorithm.
var ErrNoSidecar = errors.New("no sidecar")

// SidecarPath returns the sidecar path for path, e.g. "a.iso.sha256".
func SidecarPath(path string, alg Algorithm) string {
	return path + alg.Ext()
}

// IsSidecar reports whether name carries a known digest extension.
func IsSidecar(name string) bool {
	for _, alg := range Algorithms() {
		if strings.HasSuffix(strings.ToLower(name), alg.Ext()) {
			return true
		}
	}
	return false
}

// ReadSidecar returns the expected digest stored next to path. It returns
// ErrNoSidecar when the sidecar does not exist.
func ReadSidecar(path string, alg Algorithm) (string, error) {
	sc := SidecarPath(path, alg)
	f, err := os.Open(sc)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoSidecar
	}
	if err != nil {
		return "", fmt.Errorf("open sidecar: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		digest, _, err := parseDigestLine(line)
		if err != nil {
			return "", fmt.Errorf("sidecar %s: %w", sc, err)
		}
		if len(digest) != alg.HexLen() {
			return "", fmt.Errorf("sidecar %s: %d hex chars, %s wants %d", sc, len(digest), alg, alg.HexLen())
		}
		return digest, nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read sidecar %s: %w", sc, err)
	}
	return "", fmt.Errorf("sidecar %s: empty", sc)
}

// writeSidecar atomically writes "digest  name\n" next to path. The temp
// file is tracked in reg until it has been renamed into place.
func writeSidecar(reg *tmpRegistry, path string, alg Algorithm, digest string) (int64, error) {
	dst := SidecarPath(path, alg)
	dir, base := filepath.Split(dst)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.New().String()[:8]))

	reg.register(tmpPath)
	defer func() {
		reg.deregister(tmpPath)
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create sidecar tmp: %w", err)
	}
	n, err := io.WriteString(f, formatDigestLine(digest, filepath.Base(path)))
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("write sidecar %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close sidecar tmp: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, fmt.Errorf("rename sidecar %s: %w", dst, err)
	}
	return int64(n), nil
}

// formatDigestLine renders a coreutils-style checksum line.
func formatDigestLine(digest, name string) string {
	return digest + "  " + name + "\n"
}

// parseDigestLine accepts a bare hex digest, the coreutils "hex  name" and
// "hex *name" forms, and the BSD "ALG (name) = hex" form. name is empty for
// a bare digest.
func parseDigestLine(line string) (digest, name string, err error) {
	line = strings.TrimSpace(line)
	if open := strings.Index(line, " ("); open > 0 {
		if eq := strings.LastIndex(line, ") = "); eq > open {
			digest, name = line[eq+4:], line[open+2:eq]
			if !isHex(digest) {
				return "", "", fmt.Errorf("malformed digest %q", digest)
			}
			return strings.ToLower(digest), name, nil
		}
	}

	digest, rest, found := strings.Cut(line, " ")
	if !isHex(digest) {
		return "", "", fmt.Errorf("malformed digest %q", digest)
	}
	if found {
		name = strings.TrimPrefix(strings.TrimLeft(rest, " "), "*")
	}
	return strings.ToLower(digest), name, nil
}

func isHex(s string) bool {
	if s == "" || len(s)%2 != 0 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
