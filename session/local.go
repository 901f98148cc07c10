/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/danielroe/pangrum/puzzlekey"
	"github.com/spf13/afero"
)

const (
	joinCodeKey  = puzzlekey.StoragePrefix + "sync-code"
	hasSyncedKey = puzzlekey.StoragePrefix + "has-synced"
)

// LocalStore is a device's durable storage. Unreadable entries read as absent.
type LocalStore interface {
	Words(puzzleKey string) []string
	SetWords(puzzleKey string, words []string) error
	EligiblePuzzles() map[string][]string

	JoinCode() string
	SetJoinCode(code string) error

	HasSynced() bool
	SetHasSynced(synced bool) error
}

// FileStore keeps string entries under namespaced keys in a single JSON
// file, mirroring browser local storage.
type FileStore struct {
	mu      sync.Mutex
	fs      afero.Fs
	path    string
	entries map[string]string
}

// OpenFileStore loads path from fs. A missing or corrupt file starts empty.
func OpenFileStore(fs afero.Fs, path string) *FileStore {
	s := &FileStore{
		fs:      fs,
		path:    path,
		entries: make(map[string]string),
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return s
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err == nil && entries != nil {
		s.entries = entries
	}

	return s
}

// Item returns the raw entry for key.
func (s *FileStore) Item(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[key]

	return v, ok
}

// SetItem writes a raw entry and flushes the file.
func (s *FileStore) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = value

	return s.flushLocked()
}

// RemoveItem deletes a raw entry and flushes the file.
func (s *FileStore) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)

	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}

	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}

	return nil
}

func decodeWords(raw string) ([]string, bool) {
	var words []string
	if err := json.Unmarshal([]byte(raw), &words); err != nil || words == nil {
		return nil, false
	}

	return words, true
}

func (s *FileStore) Words(puzzleKey string) []string {
	raw, ok := s.Item(puzzlekey.StorageKey(puzzleKey))
	if !ok {
		return []string{}
	}

	words, ok := decodeWords(raw)
	if !ok {
		return []string{}
	}

	return words
}

func (s *FileStore) SetWords(puzzleKey string, words []string) error {
	if words == nil {
		words = []string{}
	}

	data, err := json.Marshal(words)
	if err != nil {
		return err
	}

	return s.SetItem(puzzlekey.StorageKey(puzzleKey), string(data))
}

func (s *FileStore) EligiblePuzzles() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	puzzles := make(map[string][]string)

	for key, raw := range s.entries {
		if !puzzlekey.IsSyncEligible(key) {
			continue
		}

		words, ok := decodeWords(raw)
		if !ok || len(words) == 0 {
			continue
		}

		pk, _ := puzzlekey.FromStorageKey(key)
		puzzles[pk] = words
	}

	return puzzles
}

func (s *FileStore) JoinCode() string {
	code, _ := s.Item(joinCodeKey)

	return code
}

func (s *FileStore) SetJoinCode(code string) error {
	if code == "" {
		return s.RemoveItem(joinCodeKey)
	}

	return s.SetItem(joinCodeKey, code)
}

func (s *FileStore) HasSynced() bool {
	v, _ := s.Item(hasSyncedKey)

	return v == "true"
}

func (s *FileStore) SetHasSynced(synced bool) error {
	if !synced {
		return s.RemoveItem(hasSyncedKey)
	}

	return s.SetItem(hasSyncedKey, "true")
}

// OpenOSFileStore opens a store on the local filesystem.
func OpenOSFileStore(path string) *FileStore {
	return OpenFileStore(afero.NewOsFs(), path)
}

var _ LocalStore = (*FileStore)(nil)
