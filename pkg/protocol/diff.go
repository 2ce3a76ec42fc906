package protocol

import "unicode/utf8"

// Patch replaces the byte range [From, To) of a document with Insert.
type Patch struct {
	From   int
	To     int
	Insert string
}

// Empty reports whether applying p changes nothing.
func (p Patch) Empty() bool {
	return p.From == p.To && p.Insert == ""
}

// Apply returns doc with the patch applied. doc must be the text p was
// computed against.
func (p Patch) Apply(doc string) string {
	return doc[:p.From] + p.Insert + doc[p.To:]
}

// Diff returns the smallest single contiguous patch turning prev into next:
// the longest common prefix is kept, then the longest common suffix of the
// remaining regions, and only the middle is replaced. Span boundaries never
// fall inside a UTF-8 sequence.
func Diff(prev, next string) Patch {
	limit := len(prev)
	if len(next) < limit {
		limit = len(next)
	}

	start := 0
	for start < limit && prev[start] == next[start] {
		start++
	}
	for start > 0 && (!runeStartAt(prev, start) || !runeStartAt(next, start)) {
		start--
	}

	endPrev, endNext := len(prev), len(next)
	for endPrev > start && endNext > start && prev[endPrev-1] == next[endNext-1] {
		endPrev--
		endNext--
	}
	for endPrev < len(prev) && (!runeStartAt(prev, endPrev) || !runeStartAt(next, endNext)) {
		endPrev++
		endNext++
	}

	return Patch{From: start, To: endPrev, Insert: next[start:endNext]}
}

// runeStartAt reports whether i is a rune boundary of s. len(s) counts as one.
func runeStartAt(s string, i int) bool {
	return i >= len(s) || utf8.RuneStart(s[i])
}
