// Package todotag extracts open todo items from document bodies and builds the
// todo board and tag cloud views over a set of indexed documents.
package todotag

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/starford/nbweb/internal/models"
)

// NoPriority names the bucket for items without a "(X) " prefix.
const NoPriority = "none"

var (
	todoRe     = regexp.MustCompile(`[*-] \[ \] (.+)`)
	priorityRe = regexp.MustCompile(`^\(([A-Z])\) `)
)

// ExtractTodos finds "- [ ] text" and "* [ ] text" items in body. offset is
// the number of source lines that precede body, so Line refers to the file.
func ExtractTodos(body string, offset int) []models.TodoItem {
	var out []models.TodoItem
	for i, line := range strings.Split(body, "\n") {
		for _, m := range todoRe.FindAllStringSubmatch(line, -1) {
			out = append(out, models.TodoItem{Line: i + 1 + offset, Text: strings.TrimSpace(m[1])})
		}
	}
	return out
}

// Entry is one todo item attributed to its page.
type Entry struct {
	Page string `json:"page"`
	Href string `json:"href"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Group is a named bucket of entries.
type Group struct {
	Name  string  `json:"name"`
	Items []Entry `json:"items"`
}

// Board is the grouped todo view.
type Board struct {
	Priorities []Group `json:"priorities"`
	Contexts   []Group `json:"contexts"`
	Projects   []Group `json:"projects"`
}

// GroupTodos buckets every todo item of docs by priority, @context and
// +project. Pages are visited in case-insensitive path order and an item may
// land in several contexts or projects.
func GroupTodos(docs []models.Document) Board {
	sorted := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if len(d.Todos) > 0 {
			sorted = append(sorted, d)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].LogicalBasename) < strings.ToLower(sorted[j].LogicalBasename)
	})

	priorities := newBuckets()
	contexts := newBuckets()
	projects := newBuckets()
	for _, d := range sorted {
		for _, t := range d.Todos {
			e := Entry{Page: d.LogicalBasename, Href: d.Href(), Line: t.Line, Text: t.Text}

			p := NoPriority
			if m := priorityRe.FindStringSubmatch(t.Text); m != nil {
				p = m[1]
			}
			priorities.add(p, e)

			for _, word := range strings.Fields(t.Text) {
				switch word[0] {
				case '@':
					contexts.add(strings.ToLower(word[1:]), e)
				case '+':
					projects.add(strings.ToLower(word[1:]), e)
				}
			}
		}
	}

	return Board{
		Priorities: priorities.groups(func(a, b string) bool {
			if a == NoPriority || b == NoPriority {
				return b == NoPriority && a != NoPriority
			}
			return a < b
		}),
		Contexts: contexts.groups(func(a, b string) bool { return a < b }),
		Projects: projects.groups(func(a, b string) bool { return a < b }),
	}
}

type buckets map[string][]Entry

func newBuckets() buckets { return buckets{} }

func (b buckets) add(name string, e Entry) {
	if strings.TrimSpace(name) == "" {
		return
	}
	b[name] = append(b[name], e)
}

func (b buckets) groups(less func(a, b string) bool) []Group {
	names := make([]string, 0, len(b))
	for n := range b {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return less(names[i], names[j]) })
	out := make([]Group, 0, len(names))
	for _, n := range names {
		out = append(out, Group{Name: n, Items: b[n]})
	}
	return out
}

// Empty reports whether the board has no items.
func (b Board) Empty() bool {
	return len(b.Priorities) == 0
}

// Text renders the board as plain markdown-ish text.
func (b Board) Text() string {
	var sb strings.Builder
	sb.WriteString("# ToDo Items\n\n")
	section := func(title string, groups []Group) {
		fmt.Fprintf(&sb, "## %s\n\n", title)
		for _, g := range groups {
			fmt.Fprintf(&sb, "### %s\n\n", g.Name)
			for _, e := range g.Items {
				fmt.Fprintf(&sb, "* %s:%d - %s\n", e.Page, e.Line, e.Text)
			}
			sb.WriteString("\n")
		}
	}
	section("All Items by priority", b.Priorities)
	section("@context", b.Contexts)
	section("+project", b.Projects)
	return sb.String()
}
