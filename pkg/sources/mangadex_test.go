package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMangaDex(t *testing.T, mux *http.ServeMux, opts ...Option) (*MangaDex, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	opts = append([]Option{WithTimeout(time.Second), WithUploadsURL("https://uploads.test")}, opts...)
	return NewMangaDex(server.URL, opts...), server
}

func TestMangaDex_Search(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/manga", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Example Manga", r.URL.Query().Get("title"))
		assert.Equal(t, "cover_art", r.URL.Query().Get("includes[]"))
		fmt.Fprint(w, `{"data":[
			{"id":"m1","attributes":{"title":{"en":"Example Manga"},"description":{"en":"A test."},"status":"ongoing"},
			 "relationships":[{"id":"c1","type":"cover_art","attributes":{"fileName":"cover.jpg"}}]},
			{"id":"m2","attributes":{"title":{"ja":"Rei"},"altTitles":[{"en":"Example Two"}]}}
		]}`)
	})
	md, _ := newTestMangaDex(t, mux)

	mangas, err := md.Search(context.Background(), "Example Manga")
	require.NoError(t, err)
	require.Len(t, mangas, 2)
	assert.Equal(t, "m1", mangas[0].ID)
	assert.Equal(t, "Example Manga", mangas[0].Name)
	assert.Equal(t, "A test.", mangas[0].Description)
	assert.Equal(t, "https://uploads.test/covers/m1/cover.jpg.256.jpg", mangas[0].CoverURL)
	assert.Equal(t, "Rei", mangas[1].Name)
}

func TestMangaDex_SearchEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/manga", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	})
	md, _ := newTestMangaDex(t, mux)

	mangas, err := md.Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, mangas)
}

func TestMangaDex_GetMangaNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/manga/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"result":"error"}`, http.StatusNotFound)
	})
	md, _ := newTestMangaDex(t, mux)

	_, err := md.GetManga(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsPermanent(err))
}

func TestMangaDex_ListChaptersPagesAndSorts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/manga/m1/feed", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "en", q.Get("translatedLanguage[]"))
		assert.Equal(t, "asc", q.Get("order[chapter]"))

		offset, _ := strconv.Atoi(q.Get("offset"))
		var chapters []map[string]any
		if offset == 0 {
			for i := 0; i < feedLimit; i++ {
				chapters = append(chapters, map[string]any{
					"id":         fmt.Sprintf("c%03d", i),
					"attributes": map[string]any{"chapter": strconv.Itoa(feedLimit - i), "translatedLanguage": "en"},
				})
			}
		} else {
			chapters = append(chapters,
				map[string]any{"id": "extra", "attributes": map[string]any{"chapter": "0.5"}},
				map[string]any{"id": "ext", "attributes": map[string]any{"chapter": "7", "externalUrl": "https://elsewhere"}},
			)
		}
		json.NewEncoder(w).Encode(map[string]any{"data": chapters, "total": feedLimit + 2})
	})
	md, _ := newTestMangaDex(t, mux)

	chapters, err := md.ListChapters(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, chapters, feedLimit+1)
	assert.Equal(t, "extra", chapters[0].ID)
	assert.Equal(t, "1", chapters[1].Number)
	assert.Equal(t, strconv.Itoa(feedLimit), chapters[len(chapters)-1].Number)
	assert.Equal(t, "m1", chapters[1].MangaID)
}

func TestMangaDex_ListChaptersFallsBackToAnyLanguage(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/manga/m1/feed", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("translatedLanguage[]") != "" {
			fmt.Fprint(w, `{"data":[],"total":0}`)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":"c1","attributes":{"chapter":"1","translatedLanguage":"es"}}],"total":1}`)
	})
	md, _ := newTestMangaDex(t, mux)

	chapters, err := md.ListChapters(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, chapters, 1)
	assert.Equal(t, "es", chapters[0].Language)
}

func TestMangaDex_ResolvePagesAndFetch(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/at-home/server/c1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"baseUrl":%q,"chapter":{"hash":"h","data":["1.png","2.png"]}}`, server.URL)
	})
	mux.HandleFunc("/data/h/1.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-bytes"))
	})
	mux.HandleFunc("/data/h/2.png", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	md, srv := newTestMangaDex(t, mux)
	server = srv

	pages, err := md.ResolvePages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "1.png", pages[0].ID)
	assert.Equal(t, 1, pages[1].Index)
	assert.Equal(t, "c1", pages[1].ChapterID)
	assert.Equal(t, server.URL+"/data/h/2.png", pages[1].URL)

	content, err := md.FetchImage(context.Background(), pages[0])
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(content))

	_, err = md.FetchImage(context.Background(), pages[1])
	assert.True(t, IsTransient(err))
}

func TestMangaDex_MarkRead(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/manga/m1/read", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `{"result":"ok","data":["c1","c2"]}`)
			return
		}
		var body map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"c3"}, body["chapterIdsRead"])
		fmt.Fprint(w, `{"result":"ok"}`)
	})

	anonymous, _ := newTestMangaDex(t, mux)
	assert.ErrorIs(t, anonymous.MarkRead(context.Background(), "m1", "c3"), ErrNotAuthenticated)
	_, err := anonymous.ReadChapters(context.Background(), "m1")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	expired, _ := newTestMangaDex(t, mux, WithToken("stale"))
	assert.ErrorIs(t, expired.MarkRead(context.Background(), "m1", "c3"), ErrNotAuthenticated)

	md, _ := newTestMangaDex(t, mux, WithToken("good"))
	assert.NoError(t, md.MarkRead(context.Background(), "m1", "c3"))
	read, err := md.ReadChapters(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, read)
}

func TestClassify(t *testing.T) {
	err := Classify("p1", context.DeadlineExceeded)
	assert.True(t, IsTransient(err))

	again := Classify("p2", err)
	assert.Same(t, err, again)

	assert.Nil(t, Classify("p1", nil))
}
