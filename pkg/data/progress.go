package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const progressFileVersion = 1

var ErrNotTracked = errors.New("title is not tracked")

// PersistError reports a failed read or write of the progress file. The
// in-memory state is kept when a save fails.
type PersistError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist progress: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// TrackedTitle is the persisted progress of one title. ReadChapters is kept
// sorted and unique so the file diffs cleanly.
type TrackedTitle struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ReadChapters []string  `json:"read_chapters"`
	LastRead     string    `json:"last_read,omitempty"`
	TrackedAt    time.Time `json:"tracked_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (t TrackedTitle) HasRead(chapterID string) bool {
	i := sort.SearchStrings(t.ReadChapters, chapterID)
	return i < len(t.ReadChapters) && t.ReadChapters[i] == chapterID
}

func (t *TrackedTitle) addRead(chapterID string) bool {
	i := sort.SearchStrings(t.ReadChapters, chapterID)
	if i < len(t.ReadChapters) && t.ReadChapters[i] == chapterID {
		return false
	}
	t.ReadChapters = append(t.ReadChapters, "")
	copy(t.ReadChapters[i+1:], t.ReadChapters[i:])
	t.ReadChapters[i] = chapterID
	return true
}

func (t TrackedTitle) clone() TrackedTitle {
	t.ReadChapters = append([]string(nil), t.ReadChapters...)
	return t
}

// Progress maps title identifiers to their tracked record.
type Progress map[string]TrackedTitle

func (p Progress) clone() Progress {
	out := make(Progress, len(p))
	for id, t := range p {
		out[id] = t.clone()
	}
	return out
}

type progressFile struct {
	Version int      `json:"version"`
	Tracked Progress `json:"tracked"`
}

// renameFile is swapped in tests to simulate a crash between writing the
// temporary file and replacing the destination.
var renameFile = os.Rename

// ProgressStore keeps reading progress in a single JSON file. Every
// mutation is a load-modify-save critical section guarded by mu. Other
// processes writing the same file are not coordinated with.
type ProgressStore struct {
	path string

	mu     sync.Mutex
	titles Progress
	dirty  bool
	// removed holds titles untracked since the last successful save.
	removed map[string]struct{}
}

// OpenProgressStore loads the progress file at path. A missing file yields
// an empty store.
func OpenProgressStore(path string) (*ProgressStore, error) {
	s := &ProgressStore{path: path, titles: Progress{}, removed: map[string]struct{}{}}
	if _, err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ProgressStore) Path() string { return s.path }

// Load reads the progress file and returns a copy of its mapping. Unsaved
// changes from a failed save are kept and win over the file contents,
// including titles untracked since then.
func (s *ProgressStore) Load() (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := readProgressFile(s.path)
	if err != nil {
		return nil, err
	}
	if s.dirty {
		for id := range s.removed {
			delete(loaded, id)
		}
		for id, t := range s.titles {
			loaded[id] = t.clone()
		}
	}
	s.titles = loaded
	return s.titles.clone(), nil
}

// Save replaces the set of tracked titles with progress and writes it
// atomically. Titles left out are untracked. Read sets of titles kept are
// unioned with what the store already holds, so they never shrink.
func (s *ProgressStore) Save(progress Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := normalizeProgress(progress)
	for id, old := range s.titles {
		t, ok := next[id]
		if !ok {
			s.removed[id] = struct{}{}
			continue
		}
		for _, ch := range old.ReadChapters {
			t.addRead(ch)
		}
		if t.LastRead == "" {
			t.LastRead = old.LastRead
		}
		next[id] = t
	}
	for id := range next {
		delete(s.removed, id)
	}
	s.titles = next
	s.dirty = true
	return s.persist()
}

// Flush retries a previously failed save. It is a no-op when nothing is
// pending.
func (s *ProgressStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.persist()
}

// Pending reports whether in-memory progress has not reached the disk yet.
func (s *ProgressStore) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *ProgressStore) IsTracked(titleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.titles[titleID]
	return ok
}

func (s *ProgressStore) Get(titleID string) (TrackedTitle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.titles[titleID]
	if !ok {
		return TrackedTitle{}, false
	}
	return t.clone(), true
}

// List returns tracked titles ordered by name.
func (s *ProgressStore) List() []TrackedTitle {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TrackedTitle, 0, len(s.titles))
	for _, t := range s.titles {
		out = append(out, t.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		ni, nj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Track starts tracking a title. It returns false when the title was
// already tracked, in which case nothing is written.
func (s *ProgressStore) Track(titleID, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.titles[titleID]; ok {
		return false, s.flushLocked()
	}
	now := time.Now().UTC()
	delete(s.removed, titleID)
	s.titles[titleID] = TrackedTitle{
		ID:           titleID,
		Name:         name,
		ReadChapters: []string{},
		TrackedAt:    now,
		UpdatedAt:    now,
	}
	s.dirty = true
	return true, s.persist()
}

// Untrack drops a title and its whole read set. It is the only way read
// markers are ever removed.
func (s *ProgressStore) Untrack(titleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.titles[titleID]; !ok {
		return ErrNotTracked
	}
	delete(s.titles, titleID)
	s.removed[titleID] = struct{}{}
	s.dirty = true
	return s.persist()
}

// MarkRead adds chapterID to the read set of a tracked title and records it
// as the last read chapter. Marking an already read chapter changes nothing
// and returns false.
func (s *ProgressStore) MarkRead(titleID, chapterID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.titles[titleID]
	if !ok {
		return false, ErrNotTracked
	}
	if !t.addRead(chapterID) {
		return false, s.flushLocked()
	}
	t.LastRead = chapterID
	t.UpdatedAt = time.Now().UTC()
	s.titles[titleID] = t
	s.dirty = true
	return true, s.persist()
}

// MergeRemote unions remote read markers into a tracked title. The local
// last read chapter is left alone. It returns how many chapters were new.
func (s *ProgressStore) MergeRemote(titleID string, chapterIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.titles[titleID]
	if !ok {
		return 0, ErrNotTracked
	}
	added := 0
	for _, id := range chapterIDs {
		if id != "" && t.addRead(id) {
			added++
		}
	}
	if added == 0 {
		return 0, s.flushLocked()
	}
	t.UpdatedAt = time.Now().UTC()
	s.titles[titleID] = t
	s.dirty = true
	return added, s.persist()
}

func (s *ProgressStore) flushLocked() error {
	if !s.dirty {
		return nil
	}
	return s.persist()
}

func (s *ProgressStore) persist() error {
	content, err := json.MarshalIndent(progressFile{Version: progressFileVersion, Tracked: s.titles}, "", "  ")
	if err != nil {
		return &PersistError{Op: "encode", Path: s.path, Err: err}
	}
	content = append(content, '\n')

	if err := writeFileAtomic(s.path, content); err != nil {
		return err
	}
	s.dirty = false
	clear(s.removed)
	return nil
}

func readProgressFile(path string) (Progress, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Progress{}, nil
	}
	if err != nil {
		return nil, &PersistError{Op: "read", Path: path, Err: err}
	}

	var file progressFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, &PersistError{Op: "decode", Path: path, Err: err}
	}
	if file.Version > progressFileVersion {
		return nil, &PersistError{Op: "decode", Path: path, Err: fmt.Errorf("unsupported version %d", file.Version)}
	}

	return normalizeProgress(file.Tracked), nil
}

// normalizeProgress copies p with every read set sorted and deduplicated.
func normalizeProgress(p Progress) Progress {
	out := make(Progress, len(p))
	for id, t := range p {
		t.ID = id
		read := t.ReadChapters
		t.ReadChapters = make([]string, 0, len(read))
		for _, ch := range read {
			t.addRead(ch)
		}
		out[id] = t
	}
	return out
}

// writeFileAtomic writes to a temporary file in the destination directory
// and renames it over path, so readers see either the old or the new file.
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &PersistError{Op: "create", Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		cleanup()
		return &PersistError{Op: "write", Path: tmpPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return &PersistError{Op: "sync", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &PersistError{Op: "close", Path: tmpPath, Err: err}
	}
	if err := renameFile(tmpPath, path); err != nil {
		cleanup()
		return &PersistError{Op: "rename", Path: path, Err: err}
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
