// Package textutil holds the code-point aware string helpers shared by the
// extractor, the analysis layers and the exporters.
package textutil

// Truncate returns the first max code points of s and reports whether
// anything was cut. A non-positive max leaves s untouched.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// Ellipsize truncates s to max code points and appends "..." when it was cut.
func Ellipsize(s string, max int) string {
	out, cut := Truncate(s, max)
	if cut {
		return out + "..."
	}
	return out
}
