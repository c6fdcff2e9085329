package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hnpf/MTCLI/pkg/data"
	"github.com/hnpf/MTCLI/pkg/integrations"
	"github.com/hnpf/MTCLI/pkg/log"
	"github.com/hnpf/MTCLI/pkg/sources"
)

// RemoteMarkError records a failed remote read mark. It is logged and
// never returned to readers: local progress stays authoritative.
type RemoteMarkError struct {
	ChapterID string
	Err       error
}

func (e *RemoteMarkError) Error() string {
	return fmt.Sprintf("remote mark of chapter %s failed: %v", e.ChapterID, e.Err)
}

func (e *RemoteMarkError) Unwrap() error { return e.Err }

// Library caches catalog listings for offline use.
type Library interface {
	SaveManga(manga *data.Manga) error
	GetManga(id string) (*data.Manga, error)
	SaveChapters(mangaID string, chapters []data.Chapter) error
	GetChapters(mangaID string) ([]data.Chapter, error)
	SavePages(mangaID, chapterID string, pages []data.Page) error
	GetPages(chapterID string) ([]data.Page, error)
	DeleteManga(mangaID string) error
}

// ProgressTracker is the slice of data.ProgressStore the controller uses.
type ProgressTracker interface {
	IsTracked(titleID string) bool
	Get(titleID string) (data.TrackedTitle, bool)
	List() []data.TrackedTitle
	Track(titleID, name string) (bool, error)
	Untrack(titleID string) error
	MarkRead(titleID, chapterID string) (bool, error)
	MergeRemote(titleID string, chapterIDs []string) (int, error)
}

type ControllerOption func(*TrackingController)

func WithLibrary(library Library) ControllerOption {
	return func(c *TrackingController) { c.library = library }
}

func WithReadMarker(marker sources.ReadMarker) ControllerOption {
	return func(c *TrackingController) { c.marker = marker }
}

func WithLogger(logger *log.Logger) ControllerOption {
	return func(c *TrackingController) { c.logger = logger }
}

// WithWidth sets how the render width is obtained. It is asked before each
// page so terminal resizes are honoured.
func WithWidth(width func() int) ControllerOption {
	return func(c *TrackingController) { c.width = width }
}

func WithProfile(profile integrations.Profile) ControllerOption {
	return func(c *TrackingController) { c.profile = profile }
}

// WithPrefetch toggles fetching page i+1 while page i is displayed.
func WithPrefetch(enabled bool) ControllerOption {
	return func(c *TrackingController) { c.prefetch = enabled }
}

// WithRemoteTimeout bounds the best-effort remote calls.
func WithRemoteTimeout(d time.Duration) ControllerOption {
	return func(c *TrackingController) {
		if d > 0 {
			c.remoteTimeout = d
		}
	}
}

// TrackingController ties the catalog, the page cache, the renderer and the
// progress store together for one title at a time.
type TrackingController struct {
	catalog  sources.Catalog
	cache    *PageCache
	renderer *integrations.Renderer
	store    ProgressTracker

	library       Library
	marker        sources.ReadMarker
	logger        *log.Logger
	width         func() int
	profile       integrations.Profile
	prefetch      bool
	remoteTimeout time.Duration
}

func NewTrackingController(catalog sources.Catalog, cache *PageCache, renderer *integrations.Renderer, store ProgressTracker, opts ...ControllerOption) *TrackingController {
	c := &TrackingController{
		catalog:       catalog,
		cache:         cache,
		renderer:      renderer,
		store:         store,
		width:         func() int { return integrations.DefaultWidth },
		profile:       integrations.ProfileMedium,
		prefetch:      true,
		remoteTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TrackingController) Search(ctx context.Context, query string) ([]data.Manga, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	return c.catalog.Search(ctx, query)
}

// GetManga looks a title up in the catalog, falling back to the library
// cache when the catalog is unreachable.
func (c *TrackingController) GetManga(ctx context.Context, id string) (*data.Manga, error) {
	if id == "" {
		return nil, fmt.Errorf("manga id cannot be empty")
	}
	manga, err := c.catalog.GetManga(ctx, id)
	if err == nil {
		return manga, nil
	}
	if c.library != nil {
		if cached, libErr := c.library.GetManga(id); libErr == nil && cached != nil {
			c.logger.Warn("catalog lookup of %s failed, using library copy: %v", id, err)
			return cached, nil
		}
	}
	if tracked, ok := c.store.Get(id); ok {
		c.logger.Warn("catalog lookup of %s failed, using tracked name: %v", id, err)
		return &data.Manga{ID: id, Name: tracked.Name}, nil
	}
	return nil, err
}

func (c *TrackingController) IsTracked(mangaID string) bool {
	return c.store.IsTracked(mangaID)
}

func (c *TrackingController) Tracked() []data.TrackedTitle {
	return c.store.List()
}

func (c *TrackingController) Progress(mangaID string) (data.TrackedTitle, bool) {
	return c.store.Get(mangaID)
}

// Track starts tracking a title and keeps a library copy of it.
func (c *TrackingController) Track(manga *data.Manga) (bool, error) {
	if manga == nil || manga.ID == "" {
		return false, fmt.Errorf("manga cannot be nil")
	}
	created, err := c.store.Track(manga.ID, manga.Name)
	if err != nil {
		return created, err
	}
	if c.library != nil {
		if err := c.library.SaveManga(manga); err != nil {
			c.logger.Warn("could not cache %s in library: %v", manga.ID, err)
		}
	}
	return created, nil
}

// Untrack forgets a title and its whole read set.
func (c *TrackingController) Untrack(mangaID string) error {
	if err := c.store.Untrack(mangaID); err != nil {
		return err
	}
	if c.library != nil {
		if err := c.library.DeleteManga(mangaID); err != nil {
			c.logger.Warn("could not drop %s from library: %v", mangaID, err)
		}
	}
	return nil
}

// Chapters lists a title's chapters in reading order. Fresh listings are
// saved to the library; when the catalog fails a saved listing is used.
func (c *TrackingController) Chapters(ctx context.Context, mangaID string) ([]data.Chapter, error) {
	chapters, err := c.catalog.ListChapters(ctx, mangaID)
	if err != nil {
		if c.library != nil {
			cached, libErr := c.library.GetChapters(mangaID)
			if libErr == nil && len(cached) > 0 {
				c.logger.Warn("listing chapters of %s failed, using library copy: %v", mangaID, err)
				return cached, nil
			}
		}
		return nil, err
	}

	data.SortChapters(chapters)
	if c.library != nil && len(chapters) > 0 {
		if err := c.library.SaveChapters(mangaID, chapters); err != nil {
			c.logger.Warn("could not cache chapters of %s: %v", mangaID, err)
		}
	}
	return chapters, nil
}

// ResumeIndex returns the first chapter not yet read, or len(chapters) when
// everything has been read. Untracked titles start from the beginning.
// chapters must be in reading order.
func (c *TrackingController) ResumeIndex(mangaID string, chapters []data.Chapter) int {
	title, ok := c.store.Get(mangaID)
	if !ok {
		return 0
	}
	for i, ch := range chapters {
		if !title.HasRead(ch.ID) {
			return i
		}
	}
	return len(chapters)
}

// SyncRemote merges the catalog's read markers of a tracked title into the
// local store. Without credentials it does nothing.
func (c *TrackingController) SyncRemote(ctx context.Context, mangaID string) (int, error) {
	if c.marker == nil || !c.store.IsTracked(mangaID) {
		return 0, nil
	}
	rctx, cancel := context.WithTimeout(ctx, c.remoteTimeout)
	defer cancel()

	remote, err := c.marker.ReadChapters(rctx, mangaID)
	if errors.Is(err, sources.ErrNotAuthenticated) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return c.store.MergeRemote(mangaID, remote)
}

// Read resumes a title at its first unread chapter and reads chapters in
// sequence until the user quits or none are left.
func (c *TrackingController) Read(ctx context.Context, manga *data.Manga, input CommandSource, display Display) error {
	if manga == nil {
		return fmt.Errorf("manga cannot be nil")
	}
	if n, err := c.SyncRemote(ctx, manga.ID); err != nil {
		c.logger.Warn("could not merge remote read markers of %s: %v", manga.ID, err)
	} else if n > 0 {
		c.logger.Info("merged %d remote read markers into %s", n, manga.ID)
	}

	chapters, err := c.Chapters(ctx, manga.ID)
	if err != nil {
		return fmt.Errorf("failed to list chapters: %w", err)
	}
	if len(chapters) == 0 {
		display.ShowMessage("No chapters available.")
		return nil
	}

	start := c.ResumeIndex(manga.ID, chapters)
	if start >= len(chapters) {
		display.ShowMessage(fmt.Sprintf("All %d chapters of %s are read.", len(chapters), manga.Name))
		return nil
	}
	return c.ReadFrom(ctx, manga, chapters, start, input, display)
}

// ReadFrom reads chapters[start:] one session at a time. When a page cannot
// be shown the error is displayed and the next command decides: back opens
// the previous page, next retries, quit stops.
func (c *TrackingController) ReadFrom(ctx context.Context, manga *data.Manga, chapters []data.Chapter, start int, input CommandSource, display Display) error {
	page := 0
	for i := start; i < len(chapters); {
		chapter := chapters[i]

		session, err := c.openSession(ctx, manga, chapter, page)
		if err == nil {
			err = session.Run(ctx, input, display)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err == nil {
			if session.State() == Finished {
				i++
				page = 0
				if i < len(chapters) {
					display.ShowMessage(fmt.Sprintf("Finished %s. Next up: %s", chapter.Label(), chapters[i].Label()))
				}
				continue
			}
			// User quit.
			return nil
		}

		c.logger.Error("reading %s of %s: %v", chapter.ID, manga.ID, err)
		display.ShowError(err)

		failedAt := page
		if session != nil {
			failedAt = session.Index()
		}
		cmd, inErr := input.Next(ctx)
		if inErr != nil || cmd == CommandQuit {
			return nil
		}
		switch {
		case cmd == CommandBack:
			page = max(0, failedAt-1)
		case errors.Is(err, ErrNoPages):
			i++
			page = 0
		default:
			page = failedAt
		}
	}
	display.ShowMessage(fmt.Sprintf("You are all caught up on %s.", manga.Name))
	return nil
}

func (c *TrackingController) openSession(ctx context.Context, manga *data.Manga, chapter data.Chapter, startPage int) (*Session, error) {
	pages, err := c.resolvePages(ctx, manga.ID, chapter.ID)
	if err != nil {
		return nil, err
	}

	opts := []SessionOption{
		WithTitle(manga.Name),
		WithStartPage(startPage),
		WithOnComplete(func(ch data.Chapter) { c.completeChapter(ctx, manga, ch) }),
	}
	if c.prefetch && c.cache != nil {
		opts = append(opts, WithPrefetcher(c.cache))
	}
	return NewSession(chapter, pages, c.LoadPage, opts...), nil
}

// resolvePages asks the catalog for a chapter's pages and saves them to the
// library. When the catalog fails a saved page list is used, so pages
// already in the cache can be read offline.
func (c *TrackingController) resolvePages(ctx context.Context, mangaID, chapterID string) ([]data.Page, error) {
	pages, err := c.catalog.ResolvePages(ctx, chapterID)
	if err != nil {
		if c.library != nil && ctx.Err() == nil {
			cached, libErr := c.library.GetPages(chapterID)
			if libErr == nil && len(cached) > 0 {
				c.logger.Warn("resolving pages of %s failed, using library copy: %v", chapterID, err)
				return cached, nil
			}
		}
		return nil, err
	}

	if c.library != nil && len(pages) > 0 {
		if err := c.library.SavePages(mangaID, chapterID, pages); err != nil {
			c.logger.Warn("could not cache pages of %s: %v", chapterID, err)
		}
	}
	return pages, nil
}

// LoadPage fetches a page through the cache and renders it at the current
// width.
func (c *TrackingController) LoadPage(ctx context.Context, page data.Page) (integrations.Frame, error) {
	content, err := c.cache.Fetch(ctx, page)
	if err != nil {
		return integrations.Frame{}, err
	}
	return c.renderer.Render(content, c.width(), c.profile)
}

// completeChapter records a finished chapter. Untracked titles persist
// nothing; chapters already read cause no side effects. The remote mark is
// attempted after the local one and its failure is only logged.
func (c *TrackingController) completeChapter(ctx context.Context, manga *data.Manga, chapter data.Chapter) {
	if !c.store.IsTracked(manga.ID) {
		return
	}

	added, err := c.store.MarkRead(manga.ID, chapter.ID)
	if err != nil {
		// The store keeps the mark in memory and retries on the next save.
		c.logger.Error("saving progress of %s: %v", manga.ID, err)
	}
	if !added {
		return
	}
	c.logger.Info("marked %s of %s read", chapter.ID, manga.ID)

	if c.marker == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, c.remoteTimeout)
	defer cancel()
	if err := c.marker.MarkRead(rctx, manga.ID, chapter.ID); err != nil {
		if errors.Is(err, sources.ErrNotAuthenticated) {
			c.logger.Debug("skipping remote mark of %s: %v", chapter.ID, err)
			return
		}
		c.logger.Warn("%v", &RemoteMarkError{ChapterID: chapter.ID, Err: err})
	}
}

// FilterByRange keeps chapters whose number lies in an inclusive "from-to"
// range. An empty or malformed range keeps everything.
func FilterByRange(chapters []data.Chapter, rangeStr string) []data.Chapter {
	parts := strings.Split(rangeStr, "-")
	if len(parts) != 2 {
		return chapters
	}
	from, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	to, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return chapters
	}

	var filtered []data.Chapter
	for _, ch := range chapters {
		n := ch.Ordinal()
		if n >= from && n <= to {
			filtered = append(filtered, ch)
		}
	}
	return filtered
}
