/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/danielroe/pangrum/protocol"
)

type memoryRoom struct {
	puzzles    map[string][]string
	lastActive *LastActive
	synced     bool
}

// MemoryStore keeps room state in process memory. State is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*memoryRoom
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*memoryRoom)}
}

func (s *MemoryStore) roomLocked(room string) *memoryRoom {
	r, ok := s.rooms[room]
	if !ok {
		r = &memoryRoom{puzzles: make(map[string][]string)}
		s.rooms[room] = r
	}

	return r
}

func (s *MemoryStore) Words(_ context.Context, room, puzzleKey string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[room]
	if !ok {
		return []string{}, nil
	}

	words := slices.Clone(r.puzzles[puzzleKey])
	if words == nil {
		words = []string{}
	}

	return words, nil
}

func (s *MemoryStore) SetWords(_ context.Context, room, puzzleKey string, words []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomLocked(room).puzzles[puzzleKey] = slices.Clone(words)

	return nil
}

func (s *MemoryStore) PuzzleKeys(_ context.Context, room string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := []string{}

	r, ok := s.rooms[room]
	if !ok {
		return keys, nil
	}

	for k := range r.puzzles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys, nil
}

func (s *MemoryStore) LastActivePuzzle(_ context.Context, room string) (*LastActive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[room]
	if !ok || r.lastActive == nil {
		return nil, nil
	}

	la := *r.lastActive

	return &la, nil
}

func (s *MemoryStore) SetLastActivePuzzle(_ context.Context, room string, ref protocol.PuzzleRef, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomLocked(room).lastActive = &LastActive{PuzzleRef: ref, Timestamp: at}

	return nil
}

func (s *MemoryStore) HasEverSynced(_ context.Context, room string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[room]

	return ok && r.synced, nil
}

func (s *MemoryStore) MarkSynced(_ context.Context, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomLocked(room).synced = true

	return nil
}
