/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"sync"
	"time"

	"github.com/danielroe/pangrum/joincode"
)

// Manager holds the live room actors keyed by normalized join code, so each
// code is its own isolated room.
type Manager struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	store       Store
	idleTimeout time.Duration
	logf        Logf
	ctx         context.Context
}

// NewManager starts a manager whose rooms live until ctx is cancelled. Rooms
// with no connections are evicted after idleTimeout; zero disables eviction.
func NewManager(ctx context.Context, store Store, idleTimeout time.Duration, logf Logf) *Manager {
	m := &Manager{
		rooms:       make(map[string]*Room),
		store:       store,
		idleTimeout: idleTimeout,
		logf:        orNop(logf),
		ctx:         ctx,
	}

	if idleTimeout > 0 {
		go m.reaperLoop()
	}

	return m
}

// Acquire returns the running room for code, starting it if needed. Every
// Acquire must be paired with a Release.
func (m *Manager) Acquire(code string) *Room {
	id := joincode.Normalize(code)

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		r = newRoom(id, m.store, m.logf)
		m.rooms[id] = r
		roomsActive.Inc()

		go r.run(m.ctx)

		m.logf("ROOMS: Started room %s", id)
	}

	r.mu.Lock()
	r.refs++
	r.mu.Unlock()

	return r
}

// Release drops a reference taken by Acquire.
func (m *Manager) Release(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.mu.Lock()
	if r.refs > 0 {
		r.refs--
	}
	r.mu.Unlock()
}

// Len returns the number of rooms held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.rooms)
}

// Evict stops every unreferenced room that has been idle since before cutoff.
func (m *Manager) Evict(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0

	for id, r := range m.rooms {
		r.mu.RLock()
		idle := r.refs == 0 && r.lastActive.Before(cutoff)
		r.mu.RUnlock()

		if !idle {
			continue
		}

		delete(m.rooms, id)
		roomsActive.Dec()
		r.stop()
		evicted++

		m.logf("ROOMS: Evicted idle room %s", id)
	}

	return evicted
}

// minReapInterval bounds how often the reaper scans for idle rooms.
const minReapInterval = time.Second

func (m *Manager) reaperLoop() {
	ticker := time.NewTicker(max(m.idleTimeout/2, minReapInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Evict(time.Now().Add(-m.idleTimeout))
		case <-m.ctx.Done():
			return
		}
	}
}
