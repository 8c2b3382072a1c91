package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// FileStore keeps the whole key space in a single JSON document on disk.
// Writes go to a temporary file first and are renamed into place, so
// readers of the file never observe a partial write.
type FileStore struct {
	path string
	mu   sync.RWMutex
	data map[string]json.RawMessage
	log  *zap.SugaredLogger
}

// OpenFileStore loads (or initializes) a file-backed store at path.
func OpenFileStore(path string, log *zap.SugaredLogger) (*FileStore, error) {
	s := &FileStore{
		path: path,
		data: make(map[string]json.RawMessage),
		log:  log,
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Debugw("no store file found, starting empty", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("failed to parse store file %s: %w", path, err)
	}

	log.Debugw("loaded store file", "path", path, "keys", len(s.data))
	return s, nil
}

// Get unmarshals the value stored under key into v.
func (s *FileStore) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.data[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode value for %q: %w", key, err)
	}
	return true, nil
}

// Set stores v under key and flushes the document to disk.
func (s *FileStore) Set(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value for %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = raw
	return s.flushLocked()
}

// Delete removes key and flushes.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flushLocked()
}

// Clear removes every key and flushes.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]json.RawMessage)
	return s.flushLocked()
}

// flushLocked writes the document atomically. Callers hold the write lock.
func (s *FileStore) flushLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}

	// Write to temporary file first, then rename (atomic on most filesystems).
	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, raw, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
