package kernel

import "regexp"

// Interpreter tracebacks and prompts arrive styled with ANSI color codes.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes terminal control sequences from s.
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// StripANSIAll returns a copy of ss with control sequences removed from
// every element. A nil slice yields an empty, non-nil slice so the result
// serializes as [] rather than null.
func StripANSIAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = StripANSI(s)
	}
	return out
}
