package services

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/hnpf/MTCLI/pkg/data"
	"github.com/hnpf/MTCLI/pkg/integrations"
	"github.com/hnpf/MTCLI/pkg/log"
	"github.com/hnpf/MTCLI/pkg/sources"
)

// ExportProgress represents the progress of an export operation
type ExportProgress struct {
	MangaID       string
	ChapterID     string
	ChapterNumber string
	CurrentPage   int
	TotalPages    int
	Status        string // "fetching", "complete", "error"
	Error         error
}

// Exporter fills the page cache for whole chapters and packs them into an
// EPUB.
type Exporter struct {
	catalog      sources.Catalog
	cache        *PageCache
	builder      integrations.Packager
	logger       *log.Logger
	concurrency  int
	progressChan chan ExportProgress
	closeOnce    sync.Once
}

func NewExporter(catalog sources.Catalog, cache *PageCache, builder integrations.Packager, logger *log.Logger) *Exporter {
	return &Exporter{
		catalog:      catalog,
		cache:        cache,
		builder:      builder,
		logger:       logger,
		concurrency:  3,
		progressChan: make(chan ExportProgress, 100),
	}
}

// GetProgressChannel returns the channel for receiving export progress updates
func (e *Exporter) GetProgressChannel() <-chan ExportProgress {
	return e.progressChan
}

// Export caches every page of chapters and writes the EPUB. Chapters that
// fail are left out and reported through the progress channel; the export
// only fails when no chapter could be cached.
func (e *Exporter) Export(ctx context.Context, manga *data.Manga, chapters []data.Chapter) (string, error) {
	if manga == nil {
		return "", fmt.Errorf("manga cannot be nil")
	}
	if len(chapters) == 0 {
		return "", fmt.Errorf("no chapters to export")
	}

	results := make([]integrations.ChapterImages, len(chapters))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, e.concurrency)
	for i, chapter := range chapters {
		wg.Add(1)
		go func(i int, chapter data.Chapter) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			files, err := e.cacheChapter(ctx, manga, chapter)
			if err != nil {
				e.logger.Warn("export of %s skipped: %v", chapter.ID, err)
				e.sendProgress(ExportProgress{
					MangaID:       manga.ID,
					ChapterID:     chapter.ID,
					ChapterNumber: chapter.Number,
					Status:        "error",
					Error:         err,
				})
				return
			}
			results[i] = integrations.ChapterImages{Chapter: chapter, Images: files}
		}(i, chapter)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.builder.CreateEPub(manga, results, e.cover(ctx, manga))
}

func (e *Exporter) cacheChapter(ctx context.Context, manga *data.Manga, chapter data.Chapter) ([]string, error) {
	pages, err := e.catalog.ResolvePages(ctx, chapter.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	for i, page := range pages {
		e.sendProgress(ExportProgress{
			MangaID:       manga.ID,
			ChapterID:     chapter.ID,
			ChapterNumber: chapter.Number,
			CurrentPage:   i + 1,
			TotalPages:    len(pages),
			Status:        "fetching",
		})
		if _, err := e.cache.Fetch(ctx, page); err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", i+1, err)
		}
	}

	e.sendProgress(ExportProgress{
		MangaID:       manga.ID,
		ChapterID:     chapter.ID,
		ChapterNumber: chapter.Number,
		CurrentPage:   len(pages),
		TotalPages:    len(pages),
		Status:        "complete",
	})
	return e.cache.ChapterFiles(pages), nil
}

// cover caches the title's cover art and returns its file, or "" when it is
// unavailable.
func (e *Exporter) cover(ctx context.Context, manga *data.Manga) string {
	if manga.CoverURL == "" {
		return ""
	}
	page := data.Page{ChapterID: "cover-" + manga.ID, ID: path.Base(manga.CoverURL), URL: manga.CoverURL}
	if _, err := e.cache.Fetch(ctx, page); err != nil {
		e.logger.Debug("cover of %s unavailable: %v", manga.ID, err)
		return ""
	}
	return e.cache.CacheKey(page.ChapterID, page.ID)
}

// sendProgress sends a progress update (non-blocking)
func (e *Exporter) sendProgress(progress ExportProgress) {
	select {
	case e.progressChan <- progress:
	default:
		// Channel full, skip this update
	}
}

// Close closes the progress channel. It must not be called while an
// export is running.
func (e *Exporter) Close() {
	e.closeOnce.Do(func() { close(e.progressChan) })
}
