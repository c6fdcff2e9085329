package data

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
)

const schema = `
CREATE TABLE IF NOT EXISTS mangas (
	id          VARCHAR PRIMARY KEY,
	name        VARCHAR NOT NULL,
	description VARCHAR,
	cover_url   VARCHAR,
	source      VARCHAR,
	status      VARCHAR,
	updated_at  TIMESTAMP
);
CREATE TABLE IF NOT EXISTS chapters (
	id        VARCHAR NOT NULL,
	manga_id  VARCHAR NOT NULL,
	title     VARCHAR,
	language  VARCHAR,
	volume    VARCHAR,
	number    VARCHAR,
	pages     INTEGER
);
CREATE TABLE IF NOT EXISTS pages (
	chapter_id VARCHAR NOT NULL,
	manga_id   VARCHAR NOT NULL,
	idx        INTEGER NOT NULL,
	page_id    VARCHAR NOT NULL,
	url        VARCHAR
);
`

// InitDuckDB opens the library database at path, creating parent
// directories and the schema when needed.
func InitDuckDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create library directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open library database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create library schema: %w", err)
	}
	return db, nil
}

// Repository caches catalog listings so titles can be resumed while the
// catalog is unreachable. It never holds reading progress.
type Repository struct {
	db *sql.DB
}

func NewDuckDBRepository(path string) (*Repository, error) {
	db, err := InitDuckDB(path)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) SaveManga(manga *Manga) error {
	if manga == nil || manga.ID == "" {
		return errors.New("manga id is required")
	}
	_, err := r.db.Exec(`
INSERT OR REPLACE INTO mangas (id, name, description, cover_url, source, status, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		manga.ID, manga.Name, manga.Description, manga.CoverURL, manga.Source, manga.Status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save manga %s: %w", manga.ID, err)
	}
	return nil
}

// GetManga returns nil without error when the manga is not cached.
func (r *Repository) GetManga(id string) (*Manga, error) {
	var m Manga
	var description, cover, source, status sql.NullString
	err := r.db.QueryRow(`
SELECT id, name, description, cover_url, source, status
FROM mangas WHERE id = ?`, id).Scan(&m.ID, &m.Name, &description, &cover, &source, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query manga %s: %w", id, err)
	}
	m.Description = description.String
	m.CoverURL = cover.String
	m.Source = source.String
	m.Status = status.String
	return &m, nil
}

func (r *Repository) ListMangas() ([]*Manga, error) {
	rows, err := r.db.Query(`
SELECT id, name, description, cover_url, source, status
FROM mangas ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query mangas: %w", err)
	}
	defer rows.Close()

	var mangas []*Manga
	for rows.Next() {
		var m Manga
		var description, cover, source, status sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &description, &cover, &source, &status); err != nil {
			return nil, fmt.Errorf("scan manga: %w", err)
		}
		m.Description = description.String
		m.CoverURL = cover.String
		m.Source = source.String
		m.Status = status.String
		mangas = append(mangas, &m)
	}
	return mangas, rows.Err()
}

// SaveChapters replaces the cached chapter listing of a manga.
func (r *Repository) SaveChapters(mangaID string, chapters []Chapter) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM chapters WHERE manga_id = ?`, mangaID); err != nil {
		return fmt.Errorf("clear chapters of %s: %w", mangaID, err)
	}

	stmt, err := tx.Prepare(`
INSERT INTO chapters (id, manga_id, title, language, volume, number, pages)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chapter insert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chapters {
		if _, err := stmt.Exec(ch.ID, mangaID, ch.Title, ch.Language, ch.Volume, ch.Number, ch.Pages); err != nil {
			return fmt.Errorf("save chapter %s: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetChapters returns the cached listing in reading order.
func (r *Repository) GetChapters(mangaID string) ([]Chapter, error) {
	rows, err := r.db.Query(`
SELECT id, manga_id, title, language, volume, number, pages
FROM chapters WHERE manga_id = ?`, mangaID)
	if err != nil {
		return nil, fmt.Errorf("query chapters: %w", err)
	}
	defer rows.Close()

	var chapters []Chapter
	for rows.Next() {
		var ch Chapter
		var title, lang, volume, number sql.NullString
		var pages sql.NullInt64
		if err := rows.Scan(&ch.ID, &ch.MangaID, &title, &lang, &volume, &number, &pages); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		ch.Title = title.String
		ch.Language = lang.String
		ch.Volume = volume.String
		ch.Number = number.String
		ch.Pages = int(pages.Int64)
		chapters = append(chapters, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	SortChapters(chapters)
	return chapters, nil
}

// SavePages replaces the cached page list of a chapter. Page ids are what
// the page cache is keyed on, so a saved list lets cached pages be read
// without the catalog.
func (r *Repository) SavePages(mangaID, chapterID string, pages []Page) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM pages WHERE chapter_id = ?`, chapterID); err != nil {
		return fmt.Errorf("clear pages of %s: %w", chapterID, err)
	}

	stmt, err := tx.Prepare(`
INSERT INTO pages (chapter_id, manga_id, idx, page_id, url)
VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare page insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range pages {
		if _, err := stmt.Exec(chapterID, mangaID, p.Index, p.ID, p.URL); err != nil {
			return fmt.Errorf("save page %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetPages returns the cached page list of a chapter ordered by index, or
// nil when none is saved.
func (r *Repository) GetPages(chapterID string) ([]Page, error) {
	rows, err := r.db.Query(`
SELECT idx, page_id, url FROM pages WHERE chapter_id = ? ORDER BY idx`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		p := Page{ChapterID: chapterID}
		var url sql.NullString
		if err := rows.Scan(&p.Index, &p.ID, &url); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		p.URL = url.String
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (r *Repository) DeleteManga(mangaID string) error {
	if _, err := r.db.Exec(`DELETE FROM pages WHERE manga_id = ?`, mangaID); err != nil {
		return fmt.Errorf("delete pages of %s: %w", mangaID, err)
	}
	if _, err := r.db.Exec(`DELETE FROM chapters WHERE manga_id = ?`, mangaID); err != nil {
		return fmt.Errorf("delete chapters of %s: %w", mangaID, err)
	}
	if _, err := r.db.Exec(`DELETE FROM mangas WHERE id = ?`, mangaID); err != nil {
		return fmt.Errorf("delete manga %s: %w", mangaID, err)
	}
	return nil
}

// GetMangaWithChapterCount returns the cached manga and the number of
// chapters in its cached listing.
func (r *Repository) GetMangaWithChapterCount(mangaID string) (*Manga, int, error) {
	manga, err := r.GetManga(mangaID)
	if err != nil || manga == nil {
		return manga, 0, err
	}
	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM chapters WHERE manga_id = ?`, mangaID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count chapters: %w", err)
	}
	return manga, total, nil
}
