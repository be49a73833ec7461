// Package compact derives the short form of memory content stored next to
// the full text.
package compact

import (
	"strings"
	"unicode"
)

const (
	DefaultMaxChars = 200
	// Marker is appended when content had to be cut mid-sentence.
	Marker = "…"
)

// Options configures compaction.
type Options struct {
	// MaxChars is the upper bound, in runes, of the compact form.
	MaxChars int
}

// DefaultOptions returns default compaction options.
func DefaultOptions() Options {
	return Options{MaxChars: DefaultMaxChars}
}

// Compact returns content unchanged when it fits in opts.MaxChars runes.
// Longer content is cut at the last sentence boundary inside the window,
// or, when the window has no usable boundary, cut short and suffixed with
// Marker. The result never exceeds opts.MaxChars runes.
func Compact(content string, opts Options) string {
	if opts.MaxChars <= 0 {
		opts = DefaultOptions()
	}

	r := []rune(content)
	if len(r) <= opts.MaxChars {
		return content
	}

	if cut := lastBoundary(r, opts.MaxChars); cut > 0 {
		if s := strings.TrimRightFunc(string(r[:cut]), unicode.IsSpace); s != "" {
			return s
		}
	}

	markerLen := len([]rune(Marker))
	keep := opts.MaxChars - markerLen
	if keep < 0 {
		keep = 0
	}
	return strings.TrimRightFunc(string(r[:keep]), unicode.IsSpace) + Marker
}

// lastBoundary returns the end offset of the last sentence inside r[:max],
// or 0 if none lies past the middle of the window. Very early boundaries
// would leave a compact form too short to be useful.
func lastBoundary(r []rune, max int) int {
	for i := max; i > max/2; i-- {
		prev := r[i-1]
		switch {
		case prev == '\n':
			return i - 1
		case isTerminal(prev) && i < len(r) && unicode.IsSpace(r[i]):
			return i
		}
	}
	return 0
}

func isTerminal(c rune) bool {
	return c == '.' || c == '!' || c == '?'
}
