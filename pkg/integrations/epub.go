package integrations

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-shiori/go-epub"
	"github.com/hnpf/MTCLI/pkg/data"
)

// ChapterImages is a chapter together with the cached page files that make
// it up, in reading order.
type ChapterImages struct {
	Chapter data.Chapter
	Images  []string
}

// EPubBuilder packs cached page images into an EPUB for offline reading on
// other devices.
type EPubBuilder struct {
	outputDir string
	lang      string
}

func NewEPubBuilder(outputDir, lang string) *EPubBuilder {
	if lang == "" {
		lang = "en"
	}
	return &EPubBuilder{outputDir: outputDir, lang: lang}
}

func (p *EPubBuilder) OutputDir() string { return p.outputDir }

// CreateEPub compiles the given chapters of a manga into a single EPUB file.
// Chapters without images are skipped; coverPath may be empty.
func (p *EPubBuilder) CreateEPub(manga *data.Manga, chapters []ChapterImages, coverPath string) (string, error) {
	if manga == nil {
		return "", fmt.Errorf("manga cannot be nil")
	}
	if len(chapters) == 0 {
		return "", fmt.Errorf("no chapters to compile")
	}

	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	e, err := epub.NewEpub(manga.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create EPub: %w", err)
	}
	e.SetAuthor("MangaDex")
	if manga.Description != "" {
		e.SetDescription(manga.Description)
	}
	e.SetLang(p.lang)

	if coverPath != "" {
		if internal, err := e.AddImage(coverPath, "cover"+filepath.Ext(coverPath)); err == nil {
			cover := fmt.Sprintf(`<div class="cover"><img src="%s" alt="Cover" style="width:100%%;height:auto;"/></div>`, internal)
			if _, err := e.AddSection(cover, "Cover", "cover.xhtml", ""); err != nil {
				return "", fmt.Errorf("failed to add cover: %w", err)
			}
		}
	}

	added := 0
	for _, chapter := range chapters {
		if len(chapter.Images) == 0 {
			continue
		}
		if err := p.addChapterToEPub(e, chapter); err != nil {
			return "", fmt.Errorf("failed to add %s: %w", chapter.Chapter.Label(), err)
		}
		added++
	}
	if added == 0 {
		return "", fmt.Errorf("no cached pages to compile")
	}

	outputPath := filepath.Join(p.outputDir, sanitizeFilename(manga.Name)+".epub")
	if err := e.Write(outputPath); err != nil {
		return "", fmt.Errorf("failed to write EPub: %w", err)
	}
	return outputPath, nil
}

func (p *EPubBuilder) addChapterToEPub(e *epub.Epub, chapter ChapterImages) error {
	title := chapter.Chapter.Label()
	if chapter.Chapter.Volume != "" && chapter.Chapter.Volume != "0" {
		title = fmt.Sprintf("Vol. %s, %s", chapter.Chapter.Volume, title)
	}

	var html strings.Builder
	html.WriteString(fmt.Sprintf("<h1>%s</h1>\n", title))

	for i, imgPath := range chapter.Images {
		if !isImageFile(imgPath) {
			continue
		}
		name := fmt.Sprintf("%s-%04d%s", sanitizeFilename(chapter.Chapter.ID), i+1, filepath.Ext(imgPath))
		internalPath, err := e.AddImage(imgPath, name)
		if err != nil {
			return fmt.Errorf("failed to add image %s: %w", filepath.Base(imgPath), err)
		}
		html.WriteString(fmt.Sprintf(
			`<div class="page"><img src="%s" alt="Page %d" style="width:100%%;height:auto;"/></div>%s`,
			internalPath, i+1, "\n",
		))
	}

	if _, err := e.AddSection(html.String(), title, "", ""); err != nil {
		return fmt.Errorf("failed to add section: %w", err)
	}
	return nil
}

func isImageFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return true
	}
	return false
}

// sanitizeFilename removes characters that are invalid in filenames
func sanitizeFilename(name string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := name
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	result = strings.Trim(result, ".")
	if result == "" {
		result = "untitled"
	}
	return result
}
