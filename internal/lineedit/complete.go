package lineedit

import "strings"

// Preview returns the first candidate, in supplied order, that extends text.
// A candidate equal to text is never returned.
func Preview(text string, candidates []string) (string, bool) {
	for _, c := range candidates {
		if c != text && strings.HasPrefix(c, text) {
			return c, true
		}
	}
	return "", false
}

// Matches filters candidates by prefix, keeping their order.
func Matches(prefix string, candidates []string) []string {
	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Cycle advances a Tab selection over the candidates matching anchor. A
// previous index of -1 selects the first match; the index wraps to 0 after
// the last one. It returns -1 when nothing matches.
func Cycle(anchor string, candidates []string, prev int) (int, string) {
	m := Matches(anchor, candidates)
	if len(m) == 0 {
		return -1, ""
	}
	next := prev + 1
	if next < 0 || next >= len(m) {
		next = 0
	}
	return next, m[next]
}

// completion is the Tab cycle state for one line. The anchor is frozen when
// the cycle starts and survives until any non-Tab event.
type completion struct {
	anchor string
	index  int
	active bool
}

func (c *completion) reset() { *c = completion{index: -1} }

// firstToken reports whether completion applies to text: only while the
// user is still typing the first word.
func firstToken(text string) bool {
	return !strings.ContainsAny(text, " \t")
}
