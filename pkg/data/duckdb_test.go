package data

import (
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *Repository {
	t.Helper()

	repo, err := NewDuckDBRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSaveAndGetManga(t *testing.T) {
	repo := setupTestDB(t)

	manga := &Manga{
		ID:          "test-manga-1",
		Name:        "Test Manga",
		Description: "A test manga description",
		CoverURL:    "https://example.com/cover.jpg",
		Source:      "mangadex",
		Status:      "completed",
	}

	if err := repo.SaveManga(manga); err != nil {
		t.Fatalf("Failed to save manga: %v", err)
	}

	retrieved, err := repo.GetManga("test-manga-1")
	if err != nil {
		t.Fatalf("Failed to get manga: %v", err)
	}
	if retrieved == nil {
		t.Fatal("Expected manga to be found")
	}
	if retrieved.Name != manga.Name {
		t.Errorf("Expected Name %s, got %s", manga.Name, retrieved.Name)
	}
	if retrieved.Status != manga.Status {
		t.Errorf("Expected Status %s, got %s", manga.Status, retrieved.Status)
	}
	if retrieved.CoverURL != manga.CoverURL {
		t.Errorf("Expected CoverURL %s, got %s", manga.CoverURL, retrieved.CoverURL)
	}
}

func TestSaveMangaRequiresID(t *testing.T) {
	repo := setupTestDB(t)

	if err := repo.SaveManga(&Manga{Name: "No ID"}); err == nil {
		t.Error("Expected error when saving manga without ID")
	}
}

func TestListMangas(t *testing.T) {
	repo := setupTestDB(t)

	mangas, err := repo.ListMangas()
	if err != nil {
		t.Fatalf("Failed to list mangas: %v", err)
	}
	if len(mangas) != 0 {
		t.Errorf("Expected 0 mangas, got %d", len(mangas))
	}

	for i := 1; i <= 3; i++ {
		manga := &Manga{
			ID:     string(rune('a' + i - 1)),
			Name:   string(rune('A'+i-1)) + " Manga",
			Source: "mangadex",
		}
		if err := repo.SaveManga(manga); err != nil {
			t.Fatalf("Failed to save manga %d: %v", i, err)
		}
	}

	mangas, err = repo.ListMangas()
	if err != nil {
		t.Fatalf("Failed to list mangas: %v", err)
	}
	if len(mangas) != 3 {
		t.Fatalf("Expected 3 mangas, got %d", len(mangas))
	}
	if mangas[0].Name != "A Manga" {
		t.Errorf("Expected list ordered by name, first is %s", mangas[0].Name)
	}
}

func TestSaveAndGetChapters(t *testing.T) {
	repo := setupTestDB(t)

	repo.SaveManga(&Manga{ID: "manga-1", Name: "Test Manga", Source: "mangadex"})

	chapters := []Chapter{
		{ID: "ch-10", Title: "Chapter 10", Language: "en", Volume: "2", Number: "10", Pages: 20},
		{ID: "ch-2", Title: "Chapter 2", Language: "en", Volume: "1", Number: "2", Pages: 18},
		{ID: "ch-1", Title: "Chapter 1", Language: "en", Volume: "1", Number: "1", Pages: 22},
	}

	if err := repo.SaveChapters("manga-1", chapters); err != nil {
		t.Fatalf("Failed to save chapters: %v", err)
	}

	retrieved, err := repo.GetChapters("manga-1")
	if err != nil {
		t.Fatalf("Failed to get chapters: %v", err)
	}
	if len(retrieved) != 3 {
		t.Fatalf("Expected 3 chapters, got %d", len(retrieved))
	}

	// numeric order, not lexical
	for i, want := range []string{"1", "2", "10"} {
		if retrieved[i].Number != want {
			t.Errorf("position %d: expected chapter %s, got %s", i, want, retrieved[i].Number)
		}
	}
	if retrieved[0].MangaID != "manga-1" {
		t.Errorf("Expected MangaID 'manga-1', got '%s'", retrieved[0].MangaID)
	}
	if retrieved[0].Pages != 22 {
		t.Errorf("Expected 22 pages, got %d", retrieved[0].Pages)
	}
}

func TestSaveChaptersReplacesListing(t *testing.T) {
	repo := setupTestDB(t)

	repo.SaveChapters("manga-1", []Chapter{{ID: "ch-1", Number: "1"}, {ID: "ch-2", Number: "2"}})
	if err := repo.SaveChapters("manga-1", []Chapter{{ID: "ch-3", Number: "3"}}); err != nil {
		t.Fatalf("Failed to replace chapters: %v", err)
	}

	chapters, _ := repo.GetChapters("manga-1")
	if len(chapters) != 1 || chapters[0].ID != "ch-3" {
		t.Errorf("Expected only ch-3 after replace, got %+v", chapters)
	}
}

func TestDeleteManga(t *testing.T) {
	repo := setupTestDB(t)

	repo.SaveManga(&Manga{ID: "manga-1", Name: "Test", Source: "test"})
	repo.SaveChapters("manga-1", []Chapter{{ID: "ch-1", Number: "1"}})
	repo.SavePages("manga-1", "ch-1", []Page{{ChapterID: "ch-1", Index: 0, ID: "a.png"}})

	if err := repo.DeleteManga("manga-1"); err != nil {
		t.Fatalf("Failed to delete manga: %v", err)
	}

	retrieved, _ := repo.GetManga("manga-1")
	if retrieved != nil {
		t.Error("Expected manga to be deleted")
	}

	chapters, _ := repo.GetChapters("manga-1")
	if len(chapters) != 0 {
		t.Errorf("Expected 0 chapters, got %d", len(chapters))
	}

	pages, _ := repo.GetPages("ch-1")
	if len(pages) != 0 {
		t.Errorf("Expected 0 pages, got %d", len(pages))
	}
}

func TestSaveAndGetPages(t *testing.T) {
	repo := setupTestDB(t)

	pages := []Page{
		{ChapterID: "ch-1", Index: 1, ID: "b.png", URL: "https://example.test/b.png"},
		{ChapterID: "ch-1", Index: 0, ID: "a.png", URL: "https://example.test/a.png"},
	}
	if err := repo.SavePages("manga-1", "ch-1", pages); err != nil {
		t.Fatalf("Failed to save pages: %v", err)
	}
	if err := repo.SavePages("manga-1", "ch-1", pages); err != nil {
		t.Fatalf("Failed to save pages twice: %v", err)
	}

	got, err := repo.GetPages("ch-1")
	if err != nil {
		t.Fatalf("Failed to get pages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 pages, got %d", len(got))
	}
	if got[0].ID != "a.png" || got[0].Index != 0 || got[1].ID != "b.png" {
		t.Errorf("Expected pages in index order, got %+v", got)
	}
	if got[0].ChapterID != "ch-1" || got[0].URL != "https://example.test/a.png" {
		t.Errorf("Unexpected page fields: %+v", got[0])
	}

	missing, err := repo.GetPages("ch-unknown")
	if err != nil || missing != nil {
		t.Errorf("Expected no pages for unknown chapter, got %v, %v", missing, err)
	}
}

func TestGetMangaWithChapterCount(t *testing.T) {
	repo := setupTestDB(t)

	repo.SaveManga(&Manga{ID: "manga-1", Name: "Test", Source: "test"})
	repo.SaveChapters("manga-1", []Chapter{
		{ID: "ch-1", Number: "1"},
		{ID: "ch-2", Number: "2"},
		{ID: "ch-3", Number: "3"},
	})

	manga, total, err := repo.GetMangaWithChapterCount("manga-1")
	if err != nil {
		t.Fatalf("Failed to get manga with chapter count: %v", err)
	}
	if manga == nil {
		t.Fatal("Expected manga to be found")
	}
	if total != 3 {
		t.Errorf("Expected 3 total chapters, got %d", total)
	}
}

func TestGetNonExistentManga(t *testing.T) {
	repo := setupTestDB(t)

	manga, err := repo.GetManga("non-existent")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if manga != nil {
		t.Error("Expected manga to be nil for non-existent ID")
	}
}

func TestSaveMangaUpsert(t *testing.T) {
	repo := setupTestDB(t)

	manga := &Manga{ID: "manga-1", Name: "Original Name", Source: "test", Status: "ongoing"}
	repo.SaveManga(manga)

	manga.Name = "Updated Name"
	manga.Status = "completed"
	if err := repo.SaveManga(manga); err != nil {
		t.Fatalf("Failed to update manga: %v", err)
	}

	retrieved, _ := repo.GetManga("manga-1")
	if retrieved.Name != "Updated Name" {
		t.Errorf("Expected Name 'Updated Name', got '%s'", retrieved.Name)
	}
	if retrieved.Status != "completed" {
		t.Errorf("Expected Status 'completed', got '%s'", retrieved.Status)
	}
}
