package integrations

import "github.com/hnpf/MTCLI/pkg/data"

// Packager bundles cached chapter images into a single file and returns its
// path.
type Packager interface {
	CreateEPub(manga *data.Manga, chapters []ChapterImages, coverPath string) (string, error)
}

var _ Packager = (*EPubBuilder)(nil)
