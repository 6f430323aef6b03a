// Package textnorm turns rendered HTML and search queries into the lowercase,
// stop-word filtered token text used for matching. Documents and queries must
// go through the same Normalizer so that window matching lines up.
package textnorm

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinTokenLen drops tokens shorter than this many characters.
const MinTokenLen = 3

var (
	tagRe     = regexp.MustCompile(`<.*?>`)
	nonWordRe = regexp.MustCompile(`[^\s\w]+`)
)

// always dropped, whatever the configured list says
var extraStopWords = []string{"in", "a", "http", "https"}

// Normalizer holds a stop-word set.
type Normalizer struct {
	stop map[string]struct{}
}

// New builds a Normalizer. An empty list selects DefaultStopWords.
func New(stopWords []string) *Normalizer {
	if len(stopWords) == 0 {
		stopWords = DefaultStopWords
	}
	stop := make(map[string]struct{}, len(stopWords)+len(extraStopWords))
	for _, w := range stopWords {
		stop[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	for _, w := range extraStopWords {
		stop[w] = struct{}{}
	}
	return &Normalizer{stop: stop}
}

// Clean strips markup, folds to lowercase ASCII, removes punctuation and
// drops stop words and short tokens. The result is space separated.
func (n *Normalizer) Clean(text string) string {
	return strings.Join(n.Tokens(text), " ")
}

// Tokens is Clean split into words.
func (n *Normalizer) Tokens(text string) []string {
	text = tagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = strings.ToLower(strings.ReplaceAll(text, "\n", " "))
	text = foldASCII(text)
	text = nonWordRe.ReplaceAllString(text, " ")

	words := strings.Fields(text)
	out := words[:0]
	for _, w := range words {
		if len(w) < MinTokenLen {
			continue
		}
		if _, isStop := n.stop[w]; isStop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// foldASCII decomposes accented characters and drops everything outside ASCII.
func foldASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
