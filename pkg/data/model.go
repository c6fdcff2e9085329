package data

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

type Manga struct {
	ID          string
	Name        string
	Description string
	CoverURL    string
	Source      string
	Status      string // "ongoing", "completed", "hiatus", "cancelled"
}

type Chapter struct {
	ID       string
	MangaID  string
	Title    string
	Language string
	Volume   string
	Number   string
	Pages    int // page count reported by the catalog, 0 when unknown
}

// Page identifies one image of a chapter. ID is the stable file name on the
// catalog side; URL may change between page resolutions.
type Page struct {
	ChapterID string
	Index     int
	ID        string
	URL       string
}

// Ordinal returns the numeric chapter number. Oneshots and unparsable
// numbers sort first.
func (c Chapter) Ordinal() float64 {
	n, err := strconv.ParseFloat(strings.TrimSpace(c.Number), 64)
	if err != nil || math.IsNaN(n) {
		return -1
	}
	return n
}

// Label is the human readable chapter name used in prompts and frames.
func (c Chapter) Label() string {
	label := "Oneshot"
	if c.Number != "" {
		label = "Chapter " + c.Number
	}
	if c.Title != "" {
		label += ": " + c.Title
	}
	return label
}

// ChapterLess orders chapters by number, breaking ties on the identifier
// since numbers repeat across scanlation groups.
func ChapterLess(a, b Chapter) bool {
	na, nb := a.Ordinal(), b.Ordinal()
	if na != nb {
		return na < nb
	}
	return a.ID < b.ID
}

// SortChapters sorts chapters in reading order in place.
func SortChapters(chapters []Chapter) {
	sort.SliceStable(chapters, func(i, j int) bool {
		return ChapterLess(chapters[i], chapters[j])
	})
}
