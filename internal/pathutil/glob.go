package pathutil

import (
	"regexp"
	"strings"
	"sync"
)

var (
	globMu    sync.RWMutex
	globCache = map[string]*regexp.Regexp{}
)

// Match reports whether name matches the shell pattern. Unlike path.Match,
// "*" also matches "/" so "/media/*" covers every depth below /media.
func Match(pattern, name string) bool {
	return compile(pattern).MatchString(name)
}

func compile(pattern string) *regexp.Regexp {
	globMu.RLock()
	re, ok := globCache[pattern]
	globMu.RUnlock()
	if ok {
		return re
	}
	re = regexp.MustCompile(translate(pattern))
	globMu.Lock()
	globCache[pattern] = re
	globMu.Unlock()
	return re
}

func translate(pattern string) string {
	var b strings.Builder
	b.WriteString(`(?s)\A`)
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			j := i + 1
			if j < len(runes) && runes[j] == '!' {
				j++
			}
			if j < len(runes) && runes[j] == ']' {
				j++
			}
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j >= len(runes) {
				b.WriteString(`\[`)
				continue
			}
			class := string(runes[i+1 : j])
			class = strings.ReplaceAll(class, `\`, `\\`)
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			} else if strings.HasPrefix(class, "^") {
				class = `\` + class
			}
			b.WriteString("[" + class + "]")
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString(`\z`)
	return b.String()
}
