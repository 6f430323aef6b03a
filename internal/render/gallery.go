package render

import (
	"html"
	"regexp"
	"strings"
)

var (
	galleryRe    = regexp.MustCompile(`(?ms)^ {0,3}<gallery> *\n(.*?)^</gallery> *$`)
	linkedImgRe  = regexp.MustCompile(`^\[!\[(.*?)\]\((.*?)\)\]\((.*?)\)`)
	plainImgRe   = regexp.MustCompile(`^!\[(.*?)\]\((.*?)\)`)
	bracedImgRe  = regexp.MustCompile(`^!\{(.*?)\}\((.*?)\)`)
	imageLineTag = []string{"[![", "![", "!{"}
)

type galleryImage struct {
	img, thumb, alt, caption string
}

// WrapGallery turns a whole document body into a single gallery block.
func WrapGallery(body string) string {
	return "<gallery>\n" + strings.TrimRight(body, "\n") + "\n</gallery>\n"
}

// Gallery renders the lines of a <gallery> block as figures. Each image line
// may be followed by one caption line.
func Gallery(block string) string {
	var lines []string
	for _, l := range strings.Split(block, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	var images []galleryImage
	for i, line := range lines {
		var im galleryImage
		if m := linkedImgRe.FindStringSubmatch(line); m != nil {
			im = galleryImage{alt: m[1], thumb: m[2], img: m[3]}
		} else if m := plainImgRe.FindStringSubmatch(line); m != nil {
			im = galleryImage{alt: m[1], thumb: m[2], img: m[2]}
		} else if m := bracedImgRe.FindStringSubmatch(line); m != nil {
			im = galleryImage{alt: m[1], thumb: m[2], img: m[2]}
		} else {
			continue
		}
		if i+1 < len(lines) && !isImageLine(lines[i+1]) {
			im.caption = lines[i+1]
		}
		images = append(images, im)
	}

	var b strings.Builder
	b.WriteString(`<div class="gallery">` + "\n")
	for _, im := range images {
		b.WriteString(`<figure><a href="` + html.EscapeString(im.img) + `"><img src="` +
			html.EscapeString(im.thumb) + `" alt="` + html.EscapeString(im.alt) + `"></a>`)
		if im.caption != "" {
			b.WriteString("<figcaption>" + html.EscapeString(im.caption) + "</figcaption>")
		}
		b.WriteString("</figure>\n")
	}
	b.WriteString("</div>\n")
	return b.String()
}

func isImageLine(line string) bool {
	for _, prefix := range imageLineTag {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
