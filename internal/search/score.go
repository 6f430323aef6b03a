package search

import (
	"math"
	"strings"
)

// MaxWindow is the longest token run scored as a window, apart from the
// full query which is always added.
const MaxWindow = 4

// linkWeight scales the square root of the incoming boost.
const linkWeight = 0.33

// Window is a contiguous run of query tokens with its weight.
type Window struct {
	Text   string
	Weight float64
}

// Windows returns every order-preserving contiguous run of 1..maxN tokens
// plus the whole query, without duplicates. Each window is weighted by the
// square root of its token count.
func Windows(tokens []string, maxN int) []Window {
	seen := map[string]struct{}{}
	var out []Window
	add := func(run []string) {
		text := strings.Join(run, " ")
		if _, dup := seen[text]; dup {
			return
		}
		seen[text] = struct{}{}
		out = append(out, Window{Text: text, Weight: math.Sqrt(float64(len(run)))})
	}
	for n := 1; n <= maxN && n <= len(tokens); n++ {
		for i := 0; i+n <= len(tokens); i++ {
			add(tokens[i : i+n])
		}
	}
	if len(tokens) > 0 {
		add(tokens)
	}
	return out
}

// DirectScore scores text (with the title counted twice in front) against
// windows: the cube root of each window's substring count times its weight.
func DirectScore(title, text string, windows []Window) float64 {
	hay := title + " " + title + " " + text
	var score float64
	for _, w := range windows {
		score += math.Cbrt(float64(strings.Count(hay, w.Text))) * w.Weight
	}
	return score
}

// Combine folds the incoming link boost into a direct score. Links only
// amplify a direct hit; with no direct score the result is 0.
func Combine(direct, incomingScore float64, incomingCount int) float64 {
	if direct <= 0 {
		return 0
	}
	boost := incomingScore * math.Pow(float64(incomingCount), 0.25)
	return direct + linkWeight*math.Sqrt(boost)
}
