package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hnpf/MTCLI/pkg/data"
	"github.com/hnpf/MTCLI/pkg/log"
	"github.com/hnpf/MTCLI/pkg/sources"
)

const (
	defaultRetryBackoff    = 500 * time.Millisecond
	defaultPrefetchTimeout = 30 * time.Second
	defaultRateInterval    = 100 * time.Millisecond
)

// CacheOption configures a PageCache.
type CacheOption func(*PageCache)

// WithRetryBackoff sets the wait before the single retry of a transient
// failure.
func WithRetryBackoff(d time.Duration) CacheOption {
	return func(c *PageCache) { c.backoff = d }
}

// WithPrefetchTimeout bounds background fetches, which outlive the caller's
// context.
func WithPrefetchTimeout(d time.Duration) CacheOption {
	return func(c *PageCache) {
		if d > 0 {
			c.prefetchTimeout = d
		}
	}
}

// WithRateLimit spaces requests to the image source. Zero disables it.
func WithRateLimit(interval time.Duration) CacheOption {
	return func(c *PageCache) { c.rateInterval = interval }
}

func WithCacheLogger(logger *log.Logger) CacheOption {
	return func(c *PageCache) { c.logger = logger }
}

// PageCache serves page images from disk and falls back to the image source
// on a miss. Fetched bytes are committed to disk before they are returned,
// so a hit never touches the network. Nothing is ever evicted.
type PageCache struct {
	source          sources.ImageSource
	dir             string
	backoff         time.Duration
	prefetchTimeout time.Duration
	rateInterval    time.Duration
	rateLimiter     *time.Ticker
	logger          *log.Logger

	group     singleflight.Group
	prefetch  sync.WaitGroup
	closeOnce sync.Once
}

func NewPageCache(source sources.ImageSource, dir string, opts ...CacheOption) *PageCache {
	c := &PageCache{
		source:          source,
		dir:             dir,
		backoff:         defaultRetryBackoff,
		prefetchTimeout: defaultPrefetchTimeout,
		rateInterval:    defaultRateInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rateInterval > 0 {
		c.rateLimiter = time.NewTicker(c.rateInterval)
	}
	return c
}

func (c *PageCache) Dir() string { return c.dir }

// CacheKey maps a page to its file path. It only depends on the chapter and
// page identifiers, so the same page lands on the same file across runs even
// when the image server URL changes.
func (c *PageCache) CacheKey(chapterID, pageID string) string {
	sum := sha256.Sum256([]byte(chapterID + "\x00" + pageID))
	return filepath.Join(c.dir, sanitizeKey(chapterID), hex.EncodeToString(sum[:12])+pageExt(pageID))
}

// Cached reports whether the page is already on disk.
func (c *PageCache) Cached(page data.Page) bool {
	info, err := os.Stat(c.CacheKey(page.ChapterID, page.ID))
	return err == nil && info.Mode().IsRegular()
}

// Fetch returns the page bytes, from disk when cached. Transient source
// failures are retried once after the backoff; permanent ones are returned
// as they are.
func (c *PageCache) Fetch(ctx context.Context, page data.Page) ([]byte, error) {
	path := c.CacheKey(page.ChapterID, page.ID)
	if content, err := os.ReadFile(path); err == nil {
		return content, nil
	}

	ch := c.group.DoChan(path, func() (any, error) {
		return c.download(ctx, page, path)
	})
	select {
	case <-ctx.Done():
		return nil, &sources.FetchError{Kind: sources.Transient, PageID: page.ID, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Prefetch warms the cache for page in the background. If ctx is done
// before the download starts, nothing is fetched. A download that already
// started runs to completion under its own timeout and is never awaited.
func (c *PageCache) Prefetch(ctx context.Context, page data.Page) {
	if c.Cached(page) {
		return
	}
	c.prefetch.Add(1)
	go func() {
		defer c.prefetch.Done()
		if ctx.Err() != nil {
			return
		}
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.prefetchTimeout)
		defer cancel()
		if _, err := c.Fetch(bg, page); err != nil {
			c.logger.Debug("prefetch of page %s failed: %v", page.ID, err)
		}
	}()
}

func (c *PageCache) download(ctx context.Context, page data.Page, path string) ([]byte, error) {
	content, err := c.fetchRemote(ctx, page)
	if err != nil && sources.IsTransient(err) && ctx.Err() == nil {
		c.logger.Warn("transient failure for page %s, retrying in %s: %v", page.ID, c.backoff, err)
		select {
		case <-ctx.Done():
			return nil, &sources.FetchError{Kind: sources.Transient, PageID: page.ID, Err: ctx.Err()}
		case <-time.After(c.backoff):
		}
		content, err = c.fetchRemote(ctx, page)
		if err != nil && sources.IsTransient(err) {
			// One retry only; for this attempt the failure is final.
			err = &sources.FetchError{Kind: sources.Permanent, PageID: page.ID, Err: err}
		}
	}
	if err != nil {
		return nil, err
	}

	if err := writeCacheFile(path, content); err != nil {
		return nil, fmt.Errorf("cache page %s: %w", page.ID, err)
	}
	return content, nil
}

func (c *PageCache) fetchRemote(ctx context.Context, page data.Page) ([]byte, error) {
	if c.rateLimiter != nil {
		select {
		case <-ctx.Done():
			return nil, &sources.FetchError{Kind: sources.Transient, PageID: page.ID, Err: ctx.Err()}
		case <-c.rateLimiter.C:
		}
	}
	content, err := c.source.FetchImage(ctx, page)
	if err != nil {
		return nil, sources.Classify(page.ID, err)
	}
	if len(content) == 0 {
		return nil, &sources.FetchError{Kind: sources.Permanent, PageID: page.ID, Err: errors.New("empty image")}
	}
	return content, nil
}

// ChapterFiles lists the cached files of pages in page order, skipping
// pages that were never fetched.
func (c *PageCache) ChapterFiles(pages []data.Page) []string {
	var files []string
	for _, page := range pages {
		if c.Cached(page) {
			files = append(files, c.CacheKey(page.ChapterID, page.ID))
		}
	}
	return files
}

// Size returns the number of cached files and their total size in bytes.
func (c *PageCache) Size() (int, int64, error) {
	var files int
	var total int64
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && !strings.HasSuffix(d.Name(), ".tmp") {
			info, err := d.Info()
			if err != nil {
				return err
			}
			files++
			total += info.Size()
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, nil
	}
	return files, total, err
}

// Clear removes every cached page.
func (c *PageCache) Clear() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Wait blocks until background prefetches have finished. The reader never
// waits on a prefetch; an unfinished one is dropped at exit.
func (c *PageCache) Wait() {
	c.prefetch.Wait()
}

// Close stops the rate limiter.
func (c *PageCache) Close() {
	c.closeOnce.Do(func() {
		if c.rateLimiter != nil {
			c.rateLimiter.Stop()
		}
	})
}

// writeCacheFile commits content under path through a temporary file so a
// crash never leaves a truncated page that would later count as a hit.
func writeCacheFile(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".page-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func sanitizeKey(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func pageExt(pageID string) string {
	switch ext := strings.ToLower(filepath.Ext(pageID)); ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return ext
	}
	return ".jpg"
}
