// Package settings defines the notebook options consumed read-only by the indexing core.
package settings

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Reference name styles.
const (
	RefPath  = "path"
	RefTitle = "title"
	RefBoth  = "both"
)

// Listing sort orders.
const (
	SortTitle = "title"
	SortPath  = "path"
	SortRef   = "ref"
)

// DefaultExclusions are always appended to the configured exclusions.
var DefaultExclusions = []string{".git/", ".svn/", ".*", "_*"}

// Notebook is the explicit configuration value threaded into every core constructor.
type Notebook struct {
	Source              string        `yaml:"source"`
	Title               string        `yaml:"title"`
	Extensions          []string      `yaml:"extensions"`
	Exclusions          []string      `yaml:"exclusions"`
	BlogDirs            []string      `yaml:"blog_dirs"`
	ProtectedDirs       []string      `yaml:"protected_dirs"`
	RefType             string        `yaml:"ref_type"`
	SortType            string        `yaml:"sort_type"`
	StopWords           []string      `yaml:"stop_words"`
	AutomaticLineBreaks bool          `yaml:"automatic_line_breaks"`
	RefreshInterval     time.Duration `yaml:"refresh_interval"`
	Watch               bool          `yaml:"watch"`
}

// Default returns the notebook defaults.
func Default() Notebook {
	return Notebook{
		Source:              "./notebook",
		Title:               "Notebook",
		Extensions:          []string{".md", ".gallery"},
		Exclusions:          []string{"/media/*"},
		BlogDirs:            []string{"/posts/*"},
		RefType:             RefTitle,
		SortType:            SortPath,
		AutomaticLineBreaks: true,
		RefreshInterval:     5 * time.Minute,
		Watch:               true,
	}
}

// Validate validates the notebook configuration.
func (n *Notebook) Validate() error {
	return validation.ValidateStruct(n,
		validation.Field(&n.Source, validation.Required),
		validation.Field(&n.Extensions, validation.Required, validation.Each(validation.By(dotted))),
		validation.Field(&n.RefType, validation.Required, validation.In(RefPath, RefTitle, RefBoth)),
		validation.Field(&n.SortType, validation.Required, validation.In(SortTitle, SortPath, SortRef)),
		validation.Field(&n.RefreshInterval, validation.Min(time.Duration(0))),
	)
}

// Normalize lowercases extensions and appends the default exclusions once.
func (n *Notebook) Normalize() {
	for i, ext := range n.Extensions {
		n.Extensions[i] = strings.ToLower(ext)
	}
	have := make(map[string]struct{}, len(n.Exclusions))
	for _, ex := range n.Exclusions {
		have[ex] = struct{}{}
	}
	for _, ex := range DefaultExclusions {
		if _, ok := have[ex]; !ok {
			n.Exclusions = append(n.Exclusions, ex)
		}
	}
}

func dotted(value any) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, ".") || len(s) < 2 {
		return errors.New("must start with a dot")
	}
	return nil
}
