// Package render turns notebook markdown into HTML and post-processes the
// links in that HTML.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	wikilinkRe  = regexp.MustCompile(`\\?\[\[(.+?)\]\]`)
	linkImgRe   = regexp.MustCompile(`!\{(.*?)\}([(\[].+?[)\]])`)
	htmlBlockRe = regexp.MustCompile(`(?ms)^ {0,3}<htmlblock> *\n(.*?)^</htmlblock> *$`)
)

// Options configure markdown conversion.
type Options struct {
	AutomaticLineBreaks bool
}

// Renderer converts markdown to HTML. It keeps no state between calls.
type Renderer struct {
	opts Options
}

// New creates a Renderer.
func New(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

// Markdown renders src. Wikilinks, image links, gallery blocks and raw
// <htmlblock> sections are handled before conversion.
func (r *Renderer) Markdown(src string) (string, error) {
	src = strings.ReplaceAll(src, "\t", "    ")
	src = wikilinkRe.ReplaceAllStringFunc(src, expandWikilink)
	src = linkImgRe.ReplaceAllString(src, "[![$1]$2]$2")

	held := map[string]string{}
	hold := func(fragment string) string {
		token := "nbweb" + strings.ReplaceAll(uuid.NewString(), "-", "")
		held[token] = fragment
		return "\n\n" + token + "\n\n"
	}
	src = galleryRe.ReplaceAllStringFunc(src, func(block string) string {
		m := galleryRe.FindStringSubmatch(block)
		return hold(Gallery(m[1]))
	})
	src = htmlBlockRe.ReplaceAllStringFunc(src, func(block string) string {
		m := htmlBlockRe.FindStringSubmatch(block)
		return hold(m[1])
	})

	var buf bytes.Buffer
	if err := r.newMarkdown().Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render: convert: %w", err)
	}
	out := buf.String()
	for token, fragment := range held {
		out = strings.Replace(out, "<p>"+token+"</p>", fragment, 1)
		out = strings.Replace(out, token, fragment, 1)
	}
	return out, nil
}

// newMarkdown builds a fresh converter so no parser state survives a call.
func (r *Renderer) newMarkdown() goldmark.Markdown {
	htmlOpts := []renderer.Option{html.WithUnsafe()}
	if r.opts.AutomaticLineBreaks {
		htmlOpts = append(htmlOpts, html.WithHardWraps())
	}
	return goldmark.New(
		goldmark.WithExtensions(
			extension.Table,
			extension.Strikethrough,
			extension.DefinitionList,
			extension.Footnote,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithAttribute(),
		),
		goldmark.WithRendererOptions(htmlOpts...),
	)
}

// expandWikilink rewrites [[target]] to a code-styled link and
// [[target|alias]] to a plain link. A backslash-escaped wikilink is kept.
func expandWikilink(match string) string {
	if strings.HasPrefix(match, `\`) {
		return match
	}
	inner := wikilinkRe.FindStringSubmatch(match)[1]
	target, alias, hasAlias := strings.Cut(inner, "|")
	target = strings.TrimSpace(target)
	dest := target
	if strings.ContainsAny(dest, " \t") {
		dest = "<" + dest + ">"
	}
	if hasAlias {
		return "[" + strings.TrimSpace(alias) + "](" + dest + ")"
	}
	return "[`" + target + "`](" + dest + ")"
}
