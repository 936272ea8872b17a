package engine

import "strings"

// normalizeDigest trims whitespace and lowercases a hex digest.
func normalizeDigest(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// digestsMatch compares two hex digests ignoring case and surrounding
// whitespace.
func digestsMatch(expected, actual string) bool {
	e := normalizeDigest(expected)
	return e != "" && e == normalizeDigest(actual)
}

// checkDigest returns nil when actual matches the item's expected digest,
// or a DigestMismatch error naming both.
func checkDigest(it *Item, actual string) *ItemError {
	if digestsMatch(it.Expected, actual) {
		return nil
	}
	return &ItemError{
		Kind:     KindDigestMismatch,
		Path:     it.Path,
		Expected: strings.TrimSpace(it.Expected),
		Actual:   actual,
	}
}

// statusFor renders the status text of a failed item.
func statusFor(ie *ItemError) string {
	switch {
	case ie.Kind == KindDigestMismatch:
		return ie.Kind.String() + ": expected " + ie.Expected + ", got " + ie.Actual
	case ie.Err == nil:
		return ie.Kind.String()
	default:
		return ie.Kind.String() + ": " + ie.Err.Error()
	}
}
