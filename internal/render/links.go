package render

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
)

// IDPrefix marks links that address a document by its metadata id.
const IDPrefix = "/_id/"

var (
	refAttrRe = regexp.MustCompile(`(?i)(href|src|action)="([^"#]+?)"`)
	schemeRe  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
)

// IsInternalLink reports whether a link points inside the notebook.
func IsInternalLink(link string) bool {
	l := strings.ToLower(link)
	for _, prefix := range []string{"/", "file://", "~/", "{", "./", "../"} {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return !schemeRe.MatchString(l)
}

// IsRelativeLink reports whether a link is relative to the current document.
func IsRelativeLink(link string) bool {
	l := strings.ToLower(link)
	if strings.HasPrefix(l, "./") || strings.HasPrefix(l, "../") {
		return true
	}
	if strings.HasPrefix(l, "/") || schemeRe.MatchString(l) {
		return false
	}
	return true
}

// AbsolutizeLinks rewrites relative href, src and action values in html to
// root-relative paths resolved against the directory of logicalPath.
func AbsolutizeLinks(logicalPath, html string) string {
	dir := path.Dir(logicalPath)
	if strings.HasSuffix(logicalPath, "/") {
		dir = logicalPath
	}
	return refAttrRe.ReplaceAllStringFunc(html, func(attr string) string {
		m := refAttrRe.FindStringSubmatch(attr)
		if !IsRelativeLink(m[2]) {
			return attr
		}
		return m[1] + `="` + path.Join("/", dir, m[2]) + `"`
	})
}

// RewriteInternalLinks points internal links at documents with a recognized
// extension (or .md, .html or none) to their published ".html" form and
// returns the set of rewritten targets. Media links are left alone and
// /_id/ links are kept as id tokens.
func RewriteInternalLinks(html string, extensions []string) (string, []string) {
	allowed := map[string]struct{}{".html": {}, ".md": {}, "": {}}
	for _, e := range extensions {
		allowed[strings.ToLower(e)] = struct{}{}
	}

	found := map[string]struct{}{}
	out := refAttrRe.ReplaceAllStringFunc(html, func(attr string) string {
		m := refAttrRe.FindStringSubmatch(attr)
		link := m[2]
		if !IsInternalLink(link) || strings.ContainsAny(link, "?") || strings.HasSuffix(link, "/") {
			return attr
		}
		if strings.HasPrefix(link, IDPrefix) {
			found[unescape(strings.TrimSuffix(link, ".html"))] = struct{}{}
			return attr
		}
		ext := path.Ext(link)
		if _, ok := allowed[strings.ToLower(ext)]; !ok {
			return attr
		}
		published := strings.TrimSuffix(link, ext) + ".html"
		found[unescape(published)] = struct{}{}
		return m[1] + `="` + published + `"`
	})

	links := make([]string, 0, len(found))
	for l := range found {
		links = append(links, l)
	}
	sort.Strings(links)
	return out, links
}

func unescape(link string) string {
	if u, err := url.PathUnescape(link); err == nil && !strings.Contains(u, ",") {
		return u
	}
	return link
}
