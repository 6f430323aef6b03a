package todotag

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/starford/nbweb/internal/models"
)

func TestExtractTodos(t *testing.T) {
	body := "intro\n- [ ] first \n* [ ] (A) second @Home\n- [x] done\n"
	got := ExtractTodos(body, 3)
	want := []models.TodoItem{{Line: 5, Text: "first"}, {Line: 6, Text: "(A) second @Home"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractTodos = %+v, want %+v", got, want)
	}
	if ExtractTodos("no items here", 0) != nil {
		t.Error("expected nil for a body without todos")
	}
}

func names(groups []Group) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g.Name)
	}
	return out
}

func TestGroupTodos(t *testing.T) {
	docs := []models.Document{
		{LogicalBasename: "/b", Todos: []models.TodoItem{{Line: 2, Text: "(B) write +Book @home"}, {Line: 3, Text: "plain"}}},
		{LogicalBasename: "/A", Todos: []models.TodoItem{{Line: 1, Text: "(A) call @Phone @HOME"}}},
		{LogicalBasename: "/empty"},
	}
	b := GroupTodos(docs)

	if got := names(b.Priorities); !reflect.DeepEqual(got, []string{"A", "B", NoPriority}) {
		t.Errorf("priorities = %v", got)
	}
	if got := names(b.Contexts); !reflect.DeepEqual(got, []string{"home", "phone"}) {
		t.Errorf("contexts = %v", got)
	}
	if got := names(b.Projects); !reflect.DeepEqual(got, []string{"book"}) {
		t.Errorf("projects = %v", got)
	}

	home := b.Contexts[0].Items
	if len(home) != 2 || home[0].Page != "/A" || home[1].Page != "/b" {
		t.Errorf("home items = %+v", home)
	}
	if home[0].Href != "/A.html" {
		t.Errorf("href = %q", home[0].Href)
	}
}

func TestBoardText(t *testing.T) {
	b := GroupTodos([]models.Document{
		{LogicalBasename: "/p", Todos: []models.TodoItem{{Line: 4, Text: "(C) fix +site"}}},
	})
	txt := b.Text()
	for _, want := range []string{"# ToDo Items", "### C", "* /p:4 - (C) fix +site", "### site"} {
		if !strings.Contains(txt, want) {
			t.Errorf("text missing %q:\n%s", want, txt)
		}
	}
	if b.Empty() {
		t.Error("board should not be empty")
	}
	if !GroupTodos(nil).Empty() {
		t.Error("board of nothing should be empty")
	}
}

func TestTagCloud_NeutralOnSmallSpread(t *testing.T) {
	c := TagCloud([]models.Document{
		{LogicalBasename: "/z", RefName: "Zed", Tags: []string{"go", "notes"}},
		{LogicalBasename: "/a", RefName: "Ay", Tags: []string{"go"}},
	})
	if len(c.Tags) != 2 || c.Tags[0].Name != "go" || c.Tags[0].Count != 2 {
		t.Fatalf("cloud = %+v", c)
	}
	for _, tag := range c.Tags {
		if tag.FontSize != NeutralFontSize {
			t.Errorf("%s font = %d", tag.Name, tag.FontSize)
		}
	}
	if c.Tags[0].Pages[0].Path != "/a" {
		t.Errorf("pages not sorted: %+v", c.Tags[0].Pages)
	}
}

func TestTagCloud_Scales(t *testing.T) {
	docs := []models.Document{{LogicalBasename: "/d0", Tags: []string{"a", "b", "c", "d"}}}
	for i := 1; i < 10; i++ {
		docs = append(docs, models.Document{LogicalBasename: fmt.Sprintf("/d%d", i), Tags: []string{"d"}})
	}
	c := TagCloud(docs)
	sizes := map[string]int{}
	for _, tag := range c.Tags {
		sizes[tag.Name] = tag.FontSize
	}
	if sizes["a"] != MinFontSize || sizes["d"] != MaxFontSize {
		t.Errorf("sizes = %v", sizes)
	}
}

func TestTagCloud_Empty(t *testing.T) {
	if c := TagCloud(nil); len(c.Tags) != 0 {
		t.Errorf("cloud = %+v", c)
	}
}
