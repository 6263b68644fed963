// Package replies computes the synthetic bot's answer to a user message.
//
// A Table maps normalised phrases to canned responses and carries the
// fallback used for unmatched input. Tables are immutable after construction
// and safe for concurrent use.
package replies

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultFallback answers input that no phrase matches.
const DefaultFallback = "I'm not sure I understand. Could you rephrase that?"

// Entry is one canned phrase and its response.
type Entry struct {
	Phrase   string
	Response string
}

// Table is a canned response table.
type Table struct {
	entries  []Entry
	byPhrase map[string]string
	tokens   []map[string]struct{}
	fallback string
}

var builtin = []Entry{
	{"hello", "Hi there! How can I assist you?"},
	{"hi", "Hello! What can I do for you today?"},
	{"hey", "Hey! How can I help?"},
	{"how are you", "I'm just a bot, but I'm doing great. How about you?"},
	{"help", "Sure! Tell me what you need help with and I'll point you in the right direction."},
	{"pricing", "You can find our plans and pricing on the Pricing page."},
	{"thanks", "You're welcome!"},
	{"thank you", "You're welcome!"},
	{"bye", "Goodbye! Have a great day!"},
	{"goodbye", "Goodbye! Have a great day!"},
}

// Default returns the built-in table.
func Default() *Table {
	return NewTable(builtin, DefaultFallback)
}

// NewTable builds a table from entries. Phrases are normalised; later
// duplicates replace earlier ones. An empty fallback selects DefaultFallback.
func NewTable(entries []Entry, fallback string) *Table {
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultFallback
	}
	t := &Table{byPhrase: make(map[string]string, len(entries)), fallback: fallback}
	for _, e := range entries {
		p := Normalize(e.Phrase)
		r := strings.TrimSpace(e.Response)
		if p == "" || r == "" {
			continue
		}
		if _, dup := t.byPhrase[p]; dup {
			for i := range t.entries {
				if t.entries[i].Phrase == p {
					t.entries[i].Response = r
				}
			}
			t.byPhrase[p] = r
			continue
		}
		t.byPhrase[p] = r
		t.entries = append(t.entries, Entry{Phrase: p, Response: r})
		t.tokens = append(t.tokens, tokenize(p))
	}
	return t
}

// Lookup returns the response for an exact normalised phrase.
func (t *Table) Lookup(text string) (string, bool) {
	r, ok := t.byPhrase[Normalize(text)]
	return r, ok
}

// Fallback returns the response for unmatched input.
func (t *Table) Fallback() string { return t.fallback }

// Len reports how many phrases the table holds.
func (t *Table) Len() int { return len(t.entries) }

// Entries returns a copy of the table's entries in insertion order.
func (t *Table) Entries() []Entry { return append([]Entry(nil), t.entries...) }

// Normalize trims and lower-cases text. It is the only normalisation applied
// before lookup, so "HELLO " and "hello" match while "hello!" does not.
func Normalize(text string) string {
	// A Caser is stateful; build one per call.
	return cases.Lower(language.Und).String(strings.TrimSpace(text))
}

// fallbackPhrase marks the row of a markdown table that overrides the
// fallback response.
const fallbackPhrase = "*"

// LoadMarkdown reads a table from the markdown file at path.
func LoadMarkdown(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseMarkdown(bytes.NewReader(b))
}

// ParseMarkdown reads "| phrase | response |" rows. Separator rows, a header
// row whose first cell is "phrase", rows with fewer than two cells and
// non-table lines are skipped. A row whose phrase is "*" sets the fallback.
func ParseMarkdown(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var entries []Entry
	fallback := ""
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") || len(line) < 2 {
			continue
		}
		cols := strings.Split(strings.Trim(line, "|"), "|")

		allSep := true
		cells := make([]string, 0, len(cols))
		for _, c := range cols {
			cell := strings.TrimSpace(c)
			cells = append(cells, cell)
			tmp := strings.ReplaceAll(cell, ":", "")
			tmp = strings.ReplaceAll(tmp, "-", "")
			if strings.TrimSpace(tmp) != "" {
				allSep = false
			}
		}
		if allSep || len(cells) < 2 {
			continue
		}
		phrase, response := cells[0], strings.Join(cells[1:], " | ")
		if strings.EqualFold(phrase, "phrase") {
			continue
		}
		if phrase == fallbackPhrase {
			fallback = strings.TrimSpace(response)
			continue
		}
		entries = append(entries, Entry{Phrase: phrase, Response: response})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewTable(entries, fallback), nil
}
