package mtcli

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hnpf/MTCLI/pkg/app"
	"github.com/hnpf/MTCLI/pkg/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPrompter(input string) (*prompter, *bytes.Buffer) {
	var out bytes.Buffer
	return newPrompter(app.NewInput(strings.NewReader(input)), &out), &out
}

func TestPrompterChoose(t *testing.T) {
	p, out := testPrompter("x\n9\n2\n")

	i, err := p.choose("Select a title", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	assert.Contains(t, out.String(), `"x" is not a number between 1 and 3.`)
	assert.Contains(t, out.String(), `"9" is not a number between 1 and 3.`)
}

func TestPrompterChooseCancel(t *testing.T) {
	for _, input := range []string{"\n", ""} {
		p, _ := testPrompter(input)
		i, err := p.choose("Select a title", 3)
		require.NoError(t, err)
		assert.Equal(t, -1, i, "input %q", input)
	}
}

func TestPrompterConfirm(t *testing.T) {
	tests := []struct {
		input string
		def   bool
		want  bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
		{"\n", true, true},
		{"\n", false, false},
		{"", true, true},
		{"maybe\nno\n", true, false},
		{"y", false, true},
	}

	for _, tt := range tests {
		p, _ := testPrompter(tt.input)
		got, err := p.confirm("Track it?", tt.def)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q default %v", tt.input, tt.def)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.n))
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmno", 10))
}

// execute runs the CLI against a private data directory and an unreachable
// catalog.
func execute(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	return executeWithInput(t, home, "http://127.0.0.1:1", "", args...)
}

func executeWithInput(t *testing.T, home, apiURL, input string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("MTCLI_API_URL", apiURL)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(append([]string{"--home", home}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func seedProgress(t *testing.T, home string) {
	t.Helper()
	store, err := data.OpenProgressStore(filepath.Join(home, "progress.json"))
	require.NoError(t, err)
	_, err = store.Track("m1", "Example Manga")
	require.NoError(t, err)
	_, err = store.MarkRead("m1", "ch1")
	require.NoError(t, err)
}

func TestListEmpty(t *testing.T) {
	out, err := execute(t, t.TempDir(), "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No tracked titles")
}

func TestListAndUntrack(t *testing.T) {
	home := t.TempDir()
	seedProgress(t, home)

	out, err := execute(t, home, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Tracked titles (1)")
	assert.Contains(t, out, "Example Manga")
	assert.Contains(t, out, "m1")

	out, err = execute(t, home, "untrack", "m1")
	require.NoError(t, err)
	assert.Contains(t, out, "Stopped tracking Example Manga (1 chapters read).")

	_, err = execute(t, home, "untrack", "m1")
	assert.ErrorContains(t, err, "m1 is not tracked")

	store, err := data.OpenProgressStore(filepath.Join(home, "progress.json"))
	require.NoError(t, err)
	assert.False(t, store.IsTracked("m1"))
}

func TestCacheSizeAndClear(t *testing.T) {
	home := t.TempDir()
	pageDir := filepath.Join(home, "cache", "ch1")
	require.NoError(t, os.MkdirAll(pageDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pageDir, "abc.jpg"), make([]byte, 2048), 0o644))

	out, err := execute(t, home, "cache", "size")
	require.NoError(t, err)
	assert.Contains(t, out, "1 pages, 2.0 KiB")

	out, err = execute(t, home, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Page cache cleared.")

	out, err = execute(t, home, "cache", "size")
	require.NoError(t, err)
	assert.Contains(t, out, "0 pages, 0 B")
}

func TestInvalidProfileFlag(t *testing.T) {
	_, err := execute(t, t.TempDir(), "--profile", "ultra", "list")
	assert.Error(t, err)
	flagProfile = ""
}

// catalogServer serves one title with a single chapter of two pages.
func catalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 4, 4))))

	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/manga", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"m1","attributes":{"title":{"en":"Example Manga"},"description":{"en":"A test title"},"status":"ongoing"}}]}`)
	})
	mux.HandleFunc("/manga/m1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"id":"m1","attributes":{"title":{"en":"Example Manga"},"status":"ongoing"}}}`)
	})
	mux.HandleFunc("/manga/m1/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"ch1","attributes":{"chapter":"1","translatedLanguage":"en","pages":2}}],"total":1}`)
	})
	mux.HandleFunc("/at-home/server/ch1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"baseUrl":%q,"chapter":{"hash":"h1","data":["1.png","2.png"]}}`, server.URL)
	})
	mux.HandleFunc("/data/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(img.Bytes())
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestSearchAnswersAndReaderKeysShareInput(t *testing.T) {
	server := catalogServer(t)
	home := t.TempDir()
	t.Setenv("MTCLI_PREFETCH", "false")
	t.Setenv("MTCLI_RETRY_BACKOFF_MS", "1")

	// pick 1, track, read now, then two reader commands finish the chapter.
	out, err := executeWithInput(t, home, server.URL, "1\ny\ny\nn\nn\n", "search", "Example")
	require.NoError(t, err)
	assert.Contains(t, out, "Tracking Example Manga.")
	assert.Contains(t, out, "Page 1/2")
	assert.Contains(t, out, "Page 2/2")

	store, err := data.OpenProgressStore(filepath.Join(home, "progress.json"))
	require.NoError(t, err)
	title, ok := store.Get("m1")
	require.True(t, ok)
	assert.Equal(t, []string{"ch1"}, title.ReadChapters)
}

func TestReadAnswerAndReaderKeysShareInput(t *testing.T) {
	server := catalogServer(t)
	home := t.TempDir()
	t.Setenv("MTCLI_PREFETCH", "false")

	// decline tracking, then one page forward and quit.
	out, err := executeWithInput(t, home, server.URL, "n\nn\nq\n", "read", "m1")
	require.NoError(t, err)
	assert.Contains(t, out, "Track Example Manga?")
	assert.Contains(t, out, "Page 2/2")

	store, err := data.OpenProgressStore(filepath.Join(home, "progress.json"))
	require.NoError(t, err)
	assert.False(t, store.IsTracked("m1"))
}
