package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore keeps documents in memory and snapshots them to a JSON file after
// every write. An empty path keeps everything in memory.
type FileStore struct {
	mu     sync.RWMutex
	docs   map[Collection]map[string][]byte
	file   string
	notify *notifier
}

// NewFileStore creates a new file backed store
func NewFileStore(filePath string) (*FileStore, error) {
	s := &FileStore{
		docs:   make(map[Collection]map[string][]byte),
		file:   filePath,
		notify: newNotifier(),
	}

	// Load existing data if file exists
	if filePath != "" {
		if _, err := os.Stat(filePath); err == nil {
			if err := s.Load(); err != nil {
				return nil, fmt.Errorf("failed to load storage: %w", err)
			}
		}
	}

	return s, nil
}

// Get returns a single document
func (s *FileStore) Get(ctx context.Context, c Collection, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.docs[c][key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(data), nil
}

// GetAll returns every document in the collection ordered by key
func (s *FileStore) GetAll(ctx context.Context, c Collection) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectLocked(c, func([]byte) bool { return true }), nil
}

// QueryByField returns documents whose field equals value
func (s *FileStore) QueryByField(ctx context.Context, c Collection, field, value string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectLocked(c, func(data []byte) bool {
		return fieldEquals(data, field, value)
	}), nil
}

// Set stores a document, replacing any previous value
func (s *FileStore) Set(ctx context.Context, c Collection, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	err := s.writeLocked(c, key, cloneBytes(data), false)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify.publish(ChangeEvent{Collection: c, Key: key, Op: OpSet})
	return nil
}

// Update merges fields into an existing document
func (s *FileStore) Update(ctx context.Context, c Collection, key string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	current, ok := s.docs[c][key]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	merged, err := mergeFields(current, fields)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	err = s.writeLocked(c, key, merged, false)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify.publish(ChangeEvent{Collection: c, Key: key, Op: OpUpdate})
	return nil
}

// Remove deletes a document
func (s *FileStore) Remove(ctx context.Context, c Collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.docs[c][key]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	err := s.writeLocked(c, key, nil, true)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify.publish(ChangeEvent{Collection: c, Key: key, Op: OpRemove})
	return nil
}

// Subscribe registers a change listener for the collection
func (s *FileStore) Subscribe(c Collection, fn func(ChangeEvent)) func() {
	return s.notify.subscribe(c, fn)
}

// Close is a no-op; every write is already flushed
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) collectLocked(c Collection, keep func([]byte) bool) []Document {
	keys := make([]string, 0, len(s.docs[c]))
	for key := range s.docs[c] {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	docs := make([]Document, 0, len(keys))
	for _, key := range keys {
		data := s.docs[c][key]
		if keep(data) {
			docs = append(docs, Document{Key: key, Data: cloneBytes(data)})
		}
	}
	return docs
}

// writeLocked applies one document change and persists the snapshot. The
// change is rolled back when the snapshot cannot be written.
func (s *FileStore) writeLocked(c Collection, key string, data []byte, remove bool) error {
	if s.docs[c] == nil {
		s.docs[c] = make(map[string][]byte)
	}
	prev, had := s.docs[c][key]
	if remove {
		delete(s.docs[c], key)
	} else {
		s.docs[c][key] = data
	}

	if err := s.saveLocked(); err != nil {
		if had {
			s.docs[c][key] = prev
		} else {
			delete(s.docs[c], key)
		}
		return err
	}
	return nil
}

// saveLocked writes the snapshot to file
func (s *FileStore) saveLocked() error {
	if s.file == "" {
		return nil
	}

	snapshot := make(map[Collection]map[string]json.RawMessage, len(s.docs))
	for c, docs := range s.docs {
		snapshot[c] = make(map[string]json.RawMessage, len(docs))
		for key, data := range docs {
			snapshot[c][key] = json.RawMessage(data)
		}
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(s.file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	return os.WriteFile(s.file, data, 0644)
}

// Load loads the snapshot from file
func (s *FileStore) Load() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = make(map[Collection]map[string][]byte)
	if len(data) == 0 {
		return nil
	}

	var snapshot map[Collection]map[string]json.RawMessage
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	for c, docs := range snapshot {
		s.docs[c] = make(map[string][]byte, len(docs))
		for key, raw := range docs {
			s.docs[c][key] = []byte(raw)
		}
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
