package replies

import (
	"regexp"
	"strings"
)

// Closest scores every phrase against text by Jaccard similarity over word
// tokens (|Q ∩ P| / |Q ∪ P|) and returns the best entry. Ties keep the entry
// that appears first in the table. ok is false when nothing overlaps.
func (t *Table) Closest(text string) (e Entry, score float64, ok bool) {
	q := tokenize(text)
	if len(q) == 0 {
		return Entry{}, 0, false
	}
	for i, p := range t.tokens {
		over := overlap(q, p)
		if over == 0 {
			continue
		}
		union := float64(len(q) + len(p) - over)
		s := float64(over) / union
		if s > score {
			e, score, ok = t.entries[i], s, true
		}
	}
	return e, score, ok
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func tokenize(s string) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
