// Package parser extracts front matter, title, dates, and tag markers from raw notebook files.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/starford/nbweb/internal/apperr"
	"github.com/starford/nbweb/internal/models"
)

var (
	ttTagRe   = regexp.MustCompile(`tt_(\w+)`)
	hashTagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	bom       = []byte("\xef\xbb\xbf")
)

// Result holds the output of parsing a notebook file.
type Result struct {
	Frontmatter map[string]any
	Meta        models.Metadata
	Body        string
	// LineOffset is the number of source lines consumed before Body starts.
	LineOffset int
}

// Parse splits data into metadata and body. stem is the file name without
// extension; an empty "index" file is titled "index" instead of "untitled".
func Parse(data []byte, stem string) (*Result, error) {
	if !IsText(data) {
		return nil, apperr.ErrBinaryContent
	}
	data = bytes.TrimPrefix(data, bom)
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	fm, body, offset := splitFrontmatter(text)
	if fm == nil {
		fm, body, offset = splitHeaderBlock(text)
	}

	meta := metadataFrom(fm)
	if meta.Title == "" {
		first, _, _ := strings.Cut(strings.TrimSpace(body), "\n")
		meta.Title = strings.TrimSpace(strings.TrimLeft(first, "#"))
	}
	if meta.Date == "" {
		if _, ok := ParseDate(meta.Title); ok {
			meta.Date = meta.Title
		}
	}
	if meta.Title == "" {
		if stem == "index" && strings.TrimSpace(text) == "" {
			meta.Title = "index"
		} else {
			meta.Title = "untitled"
		}
	}

	return &Result{
		Frontmatter: fm,
		Meta:        meta,
		Body:        body,
		LineOffset:  offset,
	}, nil
}

// IsText reports whether data looks like editable text: valid UTF-8 with no NUL bytes.
func IsText(data []byte) bool {
	return bytes.IndexByte(data, 0) < 0 && utf8.Valid(data)
}

// splitFrontmatter separates a YAML block between leading --- delimiters
// from the body. Invalid YAML leaves the whole text as body.
func splitFrontmatter(text string) (map[string]any, string, int) {
	lines := strings.Split(text, "\n")
	i := skipBlank(lines, 0)
	if i == len(lines) || strings.TrimRight(lines[i], " \t") != "---" {
		return nil, text, 0
	}
	for j := i + 1; j < len(lines); j++ {
		closing := strings.TrimRight(lines[j], " \t")
		if closing != "---" && closing != "..." {
			continue
		}
		var raw map[string]any
		if err := yaml.Unmarshal([]byte(strings.Join(lines[i+1:j], "\n")), &raw); err != nil {
			return nil, text, 0
		}
		fm := make(map[string]any, len(raw))
		for k, v := range raw {
			fm[strings.ToLower(strings.TrimSpace(k))] = v
		}
		k := skipBlank(lines, j+1)
		return fm, strings.Join(lines[k:], "\n"), k
	}
	return nil, text, 0
}

// splitHeaderBlock reads "Key: value" lines up to the first blank line when
// the text opens with a title line.
func splitHeaderBlock(text string) (map[string]any, string, int) {
	lines := strings.Split(text, "\n")
	i := skipBlank(lines, 0)
	if i == len(lines) || !strings.HasPrefix(strings.ToLower(strings.TrimSpace(lines[i])), "title") {
		return nil, text, 0
	}
	fm := make(map[string]any)
	j := i
	for ; j < len(lines); j++ {
		line := strings.TrimSpace(lines[j])
		if line == "" {
			j++
			break
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			// Metadata ends at the first line that is not "Key: value".
			break
		}
		fm[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(val)
	}
	return fm, strings.Join(lines[j:], "\n"), j
}

func skipBlank(lines []string, from int) int {
	for from < len(lines) && strings.TrimSpace(lines[from]) == "" {
		from++
	}
	return from
}

func metadataFrom(fm map[string]any) models.Metadata {
	var meta models.Metadata
	for k, v := range fm {
		switch k {
		case "title":
			meta.Title = stringify(v)
		case "date":
			meta.Date = stringify(v)
		case "id":
			meta.ID = stringify(v)
		case "draft":
			meta.Draft = truthy(v)
		case "tags", "tag":
			meta.Tags = append(meta.Tags, tagList(v)...)
		default:
			if meta.Other == nil {
				meta.Other = make(map[string]any)
			}
			meta.Other[k] = plain(v)
		}
	}
	meta.Tags = normalizeTags(meta.Tags)
	return meta
}

// plain converts nested YAML values into JSON-encodable ones. yaml.v3
// decodes mappings with non-string keys as map[any]any.
func plain(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = plain(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plain(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plain(val)
		}
		return out
	default:
		return v
	}
}

func tagList(v any) []string {
	switch t := v.(type) {
	case string:
		return strings.Split(t, ",")
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, stringify(item))
		}
		return out
	case nil:
		return nil
	default:
		return []string{stringify(t)}
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04:05")
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1":
			return true
		}
	}
	return false
}

// StandardTag normalizes a tag: trimmed, lowercase, spaces and dashes as underscores.
func StandardTag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.NewReplacer(" ", "_", "-", "_").Replace(tag)
	return strings.ToLower(tag)
}

// ExtractTags collects tt_word and #word markers from a body.
func ExtractTags(body string) []string {
	var out []string
	for _, m := range ttTagRe.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	for _, m := range hashTagRe.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	return normalizeTags(out)
}

// MergeTags returns the sorted union of already-normalized tag sets.
func MergeTags(sets ...[]string) []string {
	var all []string
	for _, s := range sets {
		all = append(all, s...)
	}
	return normalizeTags(all)
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = StandardTag(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
