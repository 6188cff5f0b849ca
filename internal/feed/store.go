package feed

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"taxiiwatch/internal/stix"
)

// jsonFile is whole-file JSON persistence with atomic replace. A missing
// file reads as an empty list; an undecodable file degrades to an empty
// list with a log line rather than blocking the application.
type jsonFile struct {
	path   string
	logger *log.Logger
	mu     sync.Mutex
}

func (f *jsonFile) load(out interface{}) error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", f.path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		f.logger.Printf("discarding undecodable store file %s: %v", f.path, err)
		return nil
	}
	return nil
}

// save writes via temp-file-then-rename so a concurrent reader never
// observes a torn file.
func (f *jsonFile) save(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", f.path, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("commit %s: %w", f.path, err)
	}
	return nil
}

// Store persists the ordered feed list as a single JSON file.
type Store struct {
	file jsonFile
}

// NewStore creates a feed store backed by the given file path.
func NewStore(path string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Store{file: jsonFile{path: path, logger: logger}}
}

// Path returns the backing file path (used by the feeds-file watcher).
func (s *Store) Path() string {
	return s.file.path
}

// List returns all configured feeds in insertion order.
func (s *Store) List() ([]Feed, error) {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	var feeds []Feed
	if err := s.file.load(&feeds); err != nil {
		return nil, err
	}
	return feeds, nil
}

// Add appends a feed and persists the list.
func (s *Store) Add(f Feed) error {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	var feeds []Feed
	if err := s.file.load(&feeds); err != nil {
		return err
	}
	feeds = append(feeds, f)
	return s.file.save(feeds)
}

// DeleteAt removes the feed at the given position, preserving the order of
// the remaining entries. Out-of-range indexes are a no-op, matching the
// forgiving behavior of the HTTP facade.
func (s *Store) DeleteAt(index int) error {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	var feeds []Feed
	if err := s.file.load(&feeds); err != nil {
		return err
	}
	if index < 0 || index >= len(feeds) {
		return nil
	}
	feeds = append(feeds[:index], feeds[index+1:]...)
	return s.file.save(feeds)
}

// DeleteByID removes the feed with the given id, if present.
func (s *Store) DeleteByID(id string) (bool, error) {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	var feeds []Feed
	if err := s.file.load(&feeds); err != nil {
		return false, err
	}
	for i, f := range feeds {
		if f.ID == id {
			feeds = append(feeds[:i], feeds[i+1:]...)
			return true, s.file.save(feeds)
		}
	}
	return false, nil
}

// IndicatorStore persists the last-fetched indicator list as a single JSON
// file, fully replaced on every refresh.
type IndicatorStore struct {
	file jsonFile
}

// NewIndicatorStore creates an indicator store backed by the given file path.
func NewIndicatorStore(path string, logger *log.Logger) *IndicatorStore {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &IndicatorStore{file: jsonFile{path: path, logger: logger}}
}

// List returns the indicators from the most recent refresh.
func (s *IndicatorStore) List() ([]stix.Indicator, error) {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	var indicators []stix.Indicator
	if err := s.file.load(&indicators); err != nil {
		return nil, err
	}
	return indicators, nil
}

// Replace overwrites the whole store with the given indicators. There is no
// merge: the store always reflects exactly one refresh round.
func (s *IndicatorStore) Replace(indicators []stix.Indicator) error {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	if indicators == nil {
		indicators = []stix.Indicator{}
	}
	return s.file.save(indicators)
}
