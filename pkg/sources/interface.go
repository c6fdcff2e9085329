package sources

import (
	"context"

	"github.com/hnpf/MTCLI/pkg/data"
)

// Catalog lists titles, chapters and page identifiers.
type Catalog interface {
	Search(ctx context.Context, query string) ([]data.Manga, error)
	GetManga(ctx context.Context, id string) (*data.Manga, error)
	// ListChapters returns chapters in ascending reading order.
	ListChapters(ctx context.Context, mangaID string) ([]data.Chapter, error)
	ResolvePages(ctx context.Context, chapterID string) ([]data.Page, error)
}

// ImageSource downloads the bytes of a resolved page.
type ImageSource interface {
	FetchImage(ctx context.Context, page data.Page) ([]byte, error)
}

// ReadMarker mirrors read state on the catalog side.
type ReadMarker interface {
	MarkRead(ctx context.Context, mangaID, chapterID string) error
	ReadChapters(ctx context.Context, mangaID string) ([]string, error)
}

type Source interface {
	Catalog
	ImageSource
	ReadMarker
}
