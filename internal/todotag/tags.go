package todotag

import (
	"math"
	"sort"
	"strings"

	"github.com/starford/nbweb/internal/models"
)

// Font sizes for the tag cloud.
const (
	MinFontSize     = 10
	MaxFontSize     = 25
	NeutralFontSize = 12
)

// Page is a tagged document.
type Page struct {
	Path    string `json:"path"`
	Href    string `json:"href"`
	RefName string `json:"reference_name"`
}

// Tag is one entry of the cloud.
type Tag struct {
	Name     string `json:"name"`
	Count    int    `json:"count"`
	FontSize int    `json:"font_size"`
	Pages    []Page `json:"pages"`
}

// Cloud lists tags alphabetically.
type Cloud struct {
	Tags []Tag `json:"tags"`
}

// TagCloud inverts document tags. Counts between the 50th and 95th percentile
// map linearly onto MinFontSize..MaxFontSize; when that spread is 4 or less
// every tag gets NeutralFontSize.
func TagCloud(docs []models.Document) Cloud {
	byTag := map[string][]Page{}
	for _, d := range docs {
		seen := map[string]struct{}{}
		for _, t := range d.Tags {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			byTag[t] = append(byTag[t], Page{Path: d.LogicalBasename, Href: d.Href(), RefName: d.RefName})
		}
	}
	if len(byTag) == 0 {
		return Cloud{}
	}

	counts := make([]int, 0, len(byTag))
	for _, pages := range byTag {
		counts = append(counts, len(pages))
	}
	sort.Ints(counts)
	low := percentile(counts, 0.5)
	high := percentile(counts, 0.95)

	names := make([]string, 0, len(byTag))
	for n := range byTag {
		names = append(names, n)
	}
	sort.Strings(names)

	cloud := Cloud{Tags: make([]Tag, 0, len(names))}
	for _, n := range names {
		pages := byTag[n]
		sort.SliceStable(pages, func(i, j int) bool {
			return strings.ToLower(pages[i].Path) < strings.ToLower(pages[j].Path)
		})
		cloud.Tags = append(cloud.Tags, Tag{
			Name:     n,
			Count:    len(pages),
			FontSize: fontSize(len(pages), low, high),
			Pages:    pages,
		})
	}
	return cloud
}

func fontSize(count, low, high int) int {
	if high-low <= 4 {
		return NeutralFontSize
	}
	f := float64(count-low) / float64(high-low)
	f = math.Max(0, math.Min(1, f))
	return int(math.Round(MinFontSize + f*(MaxFontSize-MinFontSize)))
}

// percentile returns sorted[ceil((n-1)*p)].
func percentile(sorted []int, p float64) int {
	return sorted[int(math.Ceil(float64(len(sorted)-1)*p))]
}
