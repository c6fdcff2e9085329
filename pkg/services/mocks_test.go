package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hnpf/MTCLI/pkg/data"
)

// Mock implementations for testing

type mockSource struct {
	searchFunc       func(ctx context.Context, query string) ([]data.Manga, error)
	getMangaFunc     func(ctx context.Context, id string) (*data.Manga, error)
	listChaptersFunc func(ctx context.Context, mangaID string) ([]data.Chapter, error)
	resolvePagesFunc func(ctx context.Context, chapterID string) ([]data.Page, error)
	fetchImageFunc   func(ctx context.Context, page data.Page) ([]byte, error)
	markReadFunc     func(ctx context.Context, mangaID, chapterID string) error
	readChaptersFunc func(ctx context.Context, mangaID string) ([]string, error)

	fetches atomic.Int32
}

func (m *mockSource) Search(ctx context.Context, query string) ([]data.Manga, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, query)
	}
	return nil, nil
}

func (m *mockSource) GetManga(ctx context.Context, id string) (*data.Manga, error) {
	if m.getMangaFunc != nil {
		return m.getMangaFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockSource) ListChapters(ctx context.Context, mangaID string) ([]data.Chapter, error) {
	if m.listChaptersFunc != nil {
		return m.listChaptersFunc(ctx, mangaID)
	}
	return nil, nil
}

func (m *mockSource) ResolvePages(ctx context.Context, chapterID string) ([]data.Page, error) {
	if m.resolvePagesFunc != nil {
		return m.resolvePagesFunc(ctx, chapterID)
	}
	return nil, nil
}

func (m *mockSource) FetchImage(ctx context.Context, page data.Page) ([]byte, error) {
	m.fetches.Add(1)
	if m.fetchImageFunc != nil {
		return m.fetchImageFunc(ctx, page)
	}
	return createTestPNG(), nil
}

func (m *mockSource) MarkRead(ctx context.Context, mangaID, chapterID string) error {
	if m.markReadFunc != nil {
		return m.markReadFunc(ctx, mangaID, chapterID)
	}
	return nil
}

func (m *mockSource) ReadChapters(ctx context.Context, mangaID string) ([]string, error) {
	if m.readChaptersFunc != nil {
		return m.readChaptersFunc(ctx, mangaID)
	}
	return nil, nil
}

type mockLibrary struct {
	saveMangaFunc    func(manga *data.Manga) error
	getMangaFunc     func(id string) (*data.Manga, error)
	saveChaptersFunc func(mangaID string, chapters []data.Chapter) error
	getChaptersFunc  func(mangaID string) ([]data.Chapter, error)
	savePagesFunc    func(mangaID, chapterID string, pages []data.Page) error
	getPagesFunc     func(chapterID string) ([]data.Page, error)
	deleteMangaFunc  func(mangaID string) error
}

func (m *mockLibrary) SaveManga(manga *data.Manga) error {
	if m.saveMangaFunc != nil {
		return m.saveMangaFunc(manga)
	}
	return nil
}

func (m *mockLibrary) GetManga(id string) (*data.Manga, error) {
	if m.getMangaFunc != nil {
		return m.getMangaFunc(id)
	}
	return nil, nil
}

func (m *mockLibrary) SaveChapters(mangaID string, chapters []data.Chapter) error {
	if m.saveChaptersFunc != nil {
		return m.saveChaptersFunc(mangaID, chapters)
	}
	return nil
}

func (m *mockLibrary) GetChapters(mangaID string) ([]data.Chapter, error) {
	if m.getChaptersFunc != nil {
		return m.getChaptersFunc(mangaID)
	}
	return nil, nil
}

func (m *mockLibrary) SavePages(mangaID, chapterID string, pages []data.Page) error {
	if m.savePagesFunc != nil {
		return m.savePagesFunc(mangaID, chapterID, pages)
	}
	return nil
}

func (m *mockLibrary) GetPages(chapterID string) ([]data.Page, error) {
	if m.getPagesFunc != nil {
		return m.getPagesFunc(chapterID)
	}
	return nil, nil
}

func (m *mockLibrary) DeleteManga(mangaID string) error {
	if m.deleteMangaFunc != nil {
		return m.deleteMangaFunc(mangaID)
	}
	return nil
}

// scriptedInput replays a fixed list of commands and then reports EOF.
type scriptedInput struct {
	commands []Command
}

func script(commands ...Command) *scriptedInput {
	return &scriptedInput{commands: commands}
}

func (s *scriptedInput) Next(ctx context.Context) (Command, error) {
	if len(s.commands) == 0 {
		return CommandQuit, io.EOF
	}
	cmd := s.commands[0]
	s.commands = s.commands[1:]
	return cmd, nil
}

type commandFunc func(ctx context.Context) (Command, error)

func (f commandFunc) Next(ctx context.Context) (Command, error) { return f(ctx) }

type recordingDisplay struct {
	mu       sync.Mutex
	pages    []PageView
	messages []string
	errors   []error
}

func (d *recordingDisplay) ShowPage(view PageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages = append(d.pages, view)
}

func (d *recordingDisplay) ShowMessage(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg)
}

func (d *recordingDisplay) ShowError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors = append(d.errors, err)
}

// shown returns "chapterID#index" for every displayed page.
func (d *recordingDisplay) shown() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.pages))
	for i, p := range d.pages {
		out[i] = p.Chapter.ID + "#" + string(rune('0'+p.Index))
	}
	return out
}

func createTestPNG() []byte {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 80)})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func pagesFor(chapterID string, n int) []data.Page {
	pages := make([]data.Page, n)
	for i := range pages {
		pages[i] = data.Page{
			ChapterID: chapterID,
			Index:     i,
			ID:        chapterID + "-p" + string(rune('0'+i)) + ".png",
			URL:       "https://example.test/" + chapterID + "/" + string(rune('0'+i)) + ".png",
		}
	}
	return pages
}
