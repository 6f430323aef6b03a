package parser

import (
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

// minDateLen rejects short numeric titles such as "42" or "2017" as dates.
const minDateLen = 6

// ParseDate reads a date from free text. Trailing words are dropped one at a
// time so "2017-03-19 Trip to the coast" still yields its leading date.
func ParseDate(s string) (time.Time, bool) {
	fields := strings.Fields(s)
	for n := len(fields); n > 0; n-- {
		candidate := strings.Join(fields[:n], " ")
		if len(candidate) < minDateLen || !strings.ContainsFunc(candidate, unicode.IsDigit) {
			continue
		}
		if t, err := dateparse.ParseLocal(candidate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
