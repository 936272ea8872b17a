package filter

import (
	"regexp"
	"strings"
)

// glob is an rsync-style pattern compiled to a regular expression.
//
// A trailing "/" restricts it to directories. A leading "/", or any "/"
// inside the pattern, anchors it to the walk root; otherwise it matches the
// basename or any trailing run of path components.
type glob struct {
	re      *regexp.Regexp
	dirOnly bool
}

func compileGlob(pattern string) (*glob, error) {
	g := &glob{}
	if trimmed, ok := strings.CutSuffix(pattern, "/"); ok {
		g.dirOnly = true
		pattern = trimmed
	}

	anchored := strings.Contains(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	prefix := "(^|/)"
	if anchored {
		prefix = "^"
	}
	re, err := regexp.Compile(prefix + translate(pattern) + "$")
	if err != nil {
		return nil, err
	}
	g.re = re
	return g, nil
}

func (g *glob) matches(relPath string, isDir bool) bool {
	if g.dirOnly && !isDir {
		return false
	}
	return g.re.MatchString(relPath)
}

// translate rewrites glob syntax as regexp syntax:
//
//	**/  any number of leading directories
//	**   anything, including "/"
//	*    anything but "/"
//	?    one character but "/"
//	[..] character class, "!" negates
func translate(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		rest := pattern[i:]
		switch {
		case strings.HasPrefix(rest, "**/"):
			b.WriteString("(.*/)?")
			i += 3
		case strings.HasPrefix(rest, "**"):
			b.WriteString(".*")
			i += 2
		case rest[0] == '*':
			b.WriteString("[^/]*")
			i++
		case rest[0] == '?':
			b.WriteString("[^/]")
			i++
		case rest[0] == '[':
			if end := classEnd(rest); end > 0 {
				class := rest[1:end]
				if neg, ok := strings.CutPrefix(class, "!"); ok {
					class = "^" + neg
				}
				b.WriteString("[" + class + "]")
				i += end + 1
				continue
			}
			b.WriteString(`\[`)
			i++
		default:
			b.WriteString(regexp.QuoteMeta(rest[:1]))
			i++
		}
	}
	return b.String()
}

// classEnd returns the index of the "]" closing the class that opens s, or
// -1 if it is unterminated. A "]" right after "[" or "[!" is literal.
func classEnd(s string) int {
	j := 1
	if j < len(s) && s[j] == '!' {
		j++
	}
	if j < len(s) && s[j] == ']' {
		j++
	}
	if k := strings.IndexByte(s[j:], ']'); k >= 0 {
		return j + k
	}
	return -1
}
