package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/hnpf/MTCLI/pkg/data"
	"github.com/hnpf/MTCLI/pkg/utils"
)

const (
	DefaultMangaDexURL = "https://api.mangadex.org"
	DefaultUploadsURL  = "https://uploads.mangadex.org"

	searchLimit = 20
	feedLimit   = 100
)

type mangaDTO struct {
	ID         string `json:"id"`
	Attributes struct {
		Title       map[string]string   `json:"title"`
		AltTitles   []map[string]string `json:"altTitles"`
		Description map[string]string   `json:"description"`
		Status      string              `json:"status"`
	} `json:"attributes"`
	Relationships []struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			FileName string `json:"fileName"`
		} `json:"attributes"`
	} `json:"relationships"`
}

func (m *mangaDTO) toManga(uploadsURL, lang string) data.Manga {
	manga := data.Manga{
		ID:          m.ID,
		Name:        localized(m.Attributes.Title, lang),
		Description: localized(m.Attributes.Description, lang),
		Source:      "mangadex",
		Status:      m.Attributes.Status,
	}
	if manga.Name == "" {
		for _, alt := range m.Attributes.AltTitles {
			if name := localized(alt, lang); name != "" {
				manga.Name = name
				break
			}
		}
	}
	for _, rel := range m.Relationships {
		if rel.Type == "cover_art" && rel.Attributes.FileName != "" {
			manga.CoverURL = fmt.Sprintf("%s/covers/%s/%s.256.jpg", uploadsURL, m.ID, rel.Attributes.FileName)
		}
	}
	return manga
}

type chapterDTO struct {
	ID         string `json:"id"`
	Attributes struct {
		Title       string `json:"title"`
		Language    string `json:"translatedLanguage"`
		Volume      string `json:"volume"`
		Number      string `json:"chapter"`
		Pages       int    `json:"pages"`
		ExternalURL string `json:"externalUrl"`
	} `json:"attributes"`
}

func (c *chapterDTO) toChapter(mangaID string) data.Chapter {
	return data.Chapter{
		ID:       c.ID,
		MangaID:  mangaID,
		Title:    c.Attributes.Title,
		Language: c.Attributes.Language,
		Volume:   c.Attributes.Volume,
		Number:   c.Attributes.Number,
		Pages:    c.Attributes.Pages,
	}
}

// localized picks lang, then English, then the first value in key order so
// the choice is stable between runs.
func localized(values map[string]string, lang string) string {
	if v := values[lang]; v != "" {
		return v
	}
	if v := values["en"]; v != "" {
		return v
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if values[k] != "" {
			return values[k]
		}
	}
	return ""
}

type Option func(*MangaDex)

func WithLanguage(lang string) Option {
	return func(m *MangaDex) {
		if lang != "" {
			m.language = lang
		}
	}
}

func WithUploadsURL(u string) Option {
	return func(m *MangaDex) {
		if u != "" {
			m.uploadsURL = u
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(m *MangaDex) { m.timeout = timeout }
}

func WithToken(token string) Option {
	return func(m *MangaDex) { m.token = token }
}

func WithHTTPClient(client *http.Client) Option {
	return func(m *MangaDex) { m.client = client }
}

// MangaDex implements Source on top of the public MangaDex API.
type MangaDex struct {
	api        *utils.API
	uploadsURL string
	language   string
	timeout    time.Duration
	token      string
	client     *http.Client
}

var _ Source = (*MangaDex)(nil)

func NewMangaDex(baseURL string, opts ...Option) *MangaDex {
	if baseURL == "" {
		baseURL = DefaultMangaDexURL
	}
	m := &MangaDex{
		uploadsURL: DefaultUploadsURL,
		language:   "en",
		timeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.api = utils.NewAPI(baseURL, m.timeout)
	if m.client != nil {
		m.api.WithClient(m.client)
	}
	m.api.SetToken(m.token)
	return m
}

func (m *MangaDex) Search(ctx context.Context, query string) ([]data.Manga, error) {
	params := url.Values{}
	params.Set("title", query)
	params.Set("limit", strconv.Itoa(searchLimit))
	params.Add("includes[]", "cover_art")
	params.Set("order[relevance]", "desc")

	var resp struct {
		Data []mangaDTO `json:"data"`
	}
	if err := m.api.Get(ctx, "/manga", params, &resp); err != nil {
		return nil, Classify("", fmt.Errorf("search %q: %w", query, err))
	}

	out := make([]data.Manga, 0, len(resp.Data))
	for i := range resp.Data {
		out = append(out, resp.Data[i].toManga(m.uploadsURL, m.language))
	}
	return out, nil
}

func (m *MangaDex) GetManga(ctx context.Context, id string) (*data.Manga, error) {
	params := url.Values{}
	params.Add("includes[]", "cover_art")

	var resp struct {
		Data mangaDTO `json:"data"`
	}
	if err := m.api.Get(ctx, "/manga/"+url.PathEscape(id), params, &resp); err != nil {
		return nil, Classify("", fmt.Errorf("get manga %s: %w", id, err))
	}
	manga := resp.Data.toManga(m.uploadsURL, m.language)
	return &manga, nil
}

// ListChapters pages through the chapter feed in the configured language.
// Titles without any chapter in that language are listed in every language.
func (m *MangaDex) ListChapters(ctx context.Context, mangaID string) ([]data.Chapter, error) {
	chapters, err := m.feed(ctx, mangaID, m.language)
	if err != nil {
		return nil, err
	}
	if len(chapters) == 0 {
		if chapters, err = m.feed(ctx, mangaID, ""); err != nil {
			return nil, err
		}
	}
	data.SortChapters(chapters)
	return chapters, nil
}

func (m *MangaDex) feed(ctx context.Context, mangaID, lang string) ([]data.Chapter, error) {
	var chapters []data.Chapter
	for offset := 0; ; offset += feedLimit {
		params := url.Values{}
		if lang != "" {
			params.Add("translatedLanguage[]", lang)
		}
		params.Set("order[chapter]", "asc")
		params.Set("limit", strconv.Itoa(feedLimit))
		params.Set("offset", strconv.Itoa(offset))
		for _, rating := range []string{"safe", "suggestive", "erotica"} {
			params.Add("contentRating[]", rating)
		}

		var resp struct {
			Data  []chapterDTO `json:"data"`
			Total int          `json:"total"`
		}
		if err := m.api.Get(ctx, "/manga/"+url.PathEscape(mangaID)+"/feed", params, &resp); err != nil {
			return nil, Classify("", fmt.Errorf("list chapters of %s: %w", mangaID, err))
		}
		for i := range resp.Data {
			// Externally hosted chapters have no pages on the catalog.
			if resp.Data[i].Attributes.ExternalURL != "" {
				continue
			}
			chapters = append(chapters, resp.Data[i].toChapter(mangaID))
		}
		if len(resp.Data) < feedLimit || offset+feedLimit >= resp.Total {
			return chapters, nil
		}
	}
}

// ResolvePages asks the at-home service where the chapter images live. The
// page identifier is the image file name, which stays stable while the
// server URL rotates.
func (m *MangaDex) ResolvePages(ctx context.Context, chapterID string) ([]data.Page, error) {
	var server struct {
		BaseURL string `json:"baseUrl"`
		Chapter struct {
			Hash string   `json:"hash"`
			Data []string `json:"data"`
		} `json:"chapter"`
	}
	if err := m.api.Get(ctx, "/at-home/server/"+url.PathEscape(chapterID), nil, &server); err != nil {
		return nil, Classify("", fmt.Errorf("resolve pages of %s: %w", chapterID, err))
	}

	pages := make([]data.Page, len(server.Chapter.Data))
	for i, file := range server.Chapter.Data {
		pages[i] = data.Page{
			ChapterID: chapterID,
			Index:     i,
			ID:        file,
			URL:       fmt.Sprintf("%s/data/%s/%s", server.BaseURL, server.Chapter.Hash, file),
		}
	}
	return pages, nil
}

func (m *MangaDex) FetchImage(ctx context.Context, page data.Page) ([]byte, error) {
	if page.URL == "" {
		return nil, &FetchError{Kind: Permanent, PageID: page.ID, Err: errors.New("page has no url")}
	}
	content, err := m.api.Bytes(ctx, page.URL)
	if err != nil {
		return nil, Classify(page.ID, err)
	}
	return content, nil
}

func (m *MangaDex) MarkRead(ctx context.Context, mangaID, chapterID string) error {
	if !m.api.HasToken() {
		return ErrNotAuthenticated
	}
	body := map[string][]string{"chapterIdsRead": {chapterID}}
	if err := m.api.PostAuth(ctx, "/manga/"+url.PathEscape(mangaID)+"/read", body, nil); err != nil {
		return authError(fmt.Errorf("mark chapter %s read: %w", chapterID, err))
	}
	return nil
}

func (m *MangaDex) ReadChapters(ctx context.Context, mangaID string) ([]string, error) {
	if !m.api.HasToken() {
		return nil, ErrNotAuthenticated
	}
	var resp struct {
		Data []string `json:"data"`
	}
	if err := m.api.GetAuth(ctx, "/manga/"+url.PathEscape(mangaID)+"/read", nil, &resp); err != nil {
		return nil, authError(fmt.Errorf("read markers of %s: %w", mangaID, err))
	}
	return resp.Data, nil
}

func authError(err error) error {
	var statusErr *utils.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	return Classify("", err)
}
