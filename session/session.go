/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package session implements the device side of cross-device progress sync:
// one connection to the room named by the device's join code, an initial
// full-state exchange, and incremental merges from then on. The local store
// stays the device's source of truth; nothing here ever removes a word.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/danielroe/pangrum/joincode"
	"github.com/danielroe/pangrum/protocol"
	"github.com/danielroe/pangrum/wordset"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var (
	ErrDisabled = errors.New("sync is disabled")
	ErrOffline  = errors.New("device is offline")
	ErrNoPuzzle = errors.New("no puzzle is being viewed")
)

type Options struct {
	// URL is the base websocket URL of the sync routes, e.g. ws://host/sync.
	// The room connection is made to URL/<code>/ws.
	URL    string
	Store  LocalStore
	Dialer *websocket.Dialer

	// Notify receives merge notifications.
	Notify func(Notification)
	// Navigate is asked to open another puzzle after this device's first sync.
	Navigate func(date, lang string)
	// OnState is called after every state change.
	OnState func(State)
	Logf    func(format string, args ...any)
}

type Session struct {
	opts Options

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	gen     int
	pending []func()

	current      *protocol.PuzzleRef
	currentWords map[string]struct{}

	// pageSynced is set once a full sync completes in this process.
	pageSynced bool

	writeMu sync.Mutex
}

func New(opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}

	s := &Session{
		opts:         opts,
		currentWords: make(map[string]struct{}),
	}
	s.state.Online = true
	s.state.Enabled = opts.Store.JoinCode() != ""

	return s
}

// State returns a snapshot of the connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// JoinCode returns the code gating sync, or "" when sync is off.
func (s *Session) JoinCode() string {
	return s.opts.Store.JoinCode()
}

// Enable stores code (or a freshly generated one) and connects if online.
func (s *Session) Enable(ctx context.Context, code string) (string, error) {
	code = joincode.Normalize(code)
	if code == "" {
		var err error
		if code, err = joincode.Generate(); err != nil {
			return "", err
		}
	}

	if !joincode.Valid(code) {
		return "", fmt.Errorf("invalid join code %q", code)
	}

	previous := s.opts.Store.JoinCode()
	if err := s.opts.Store.SetJoinCode(code); err != nil {
		return "", err
	}

	s.mu.Lock()
	if previous != "" && previous != code {
		s.teardownLocked(StatusClosed)
	}
	s.state.Enabled = true
	s.changedLocked()
	s.mu.Unlock()
	s.flush()

	return code, s.reconcile(ctx)
}

// Disable forgets the join code and drops the connection. Puzzle progress is
// left untouched.
func (s *Session) Disable() error {
	err := errors.Join(
		s.opts.Store.SetJoinCode(""),
		s.opts.Store.SetHasSynced(false),
	)

	s.mu.Lock()
	s.state.Enabled = false
	s.teardownLocked(StatusDisabled)
	s.mu.Unlock()
	s.flush()

	return err
}

// SetOnline reports a network transition. Going offline tears the
// connection down; coming back online reconnects.
func (s *Session) SetOnline(ctx context.Context, online bool) error {
	s.mu.Lock()
	s.state.Online = online
	s.changedLocked()
	s.mu.Unlock()
	s.flush()

	return s.reconcile(ctx)
}

func (s *Session) reconcile(ctx context.Context) error {
	s.mu.Lock()
	enabled, online := s.state.Enabled, s.state.Online
	if !enabled || !online {
		next := StatusClosed
		if !enabled {
			next = StatusDisabled
		}
		s.teardownLocked(next)
		s.mu.Unlock()
		s.flush()

		return nil
	}
	s.mu.Unlock()

	return s.Connect(ctx)
}

// Connect opens the room connection. It is a no-op while a connection is
// open or being opened.
func (s *Session) Connect(ctx context.Context) error {
	code := s.opts.Store.JoinCode()

	s.mu.Lock()
	switch {
	case code == "" || !s.state.Enabled:
		s.mu.Unlock()
		return ErrDisabled
	case !s.state.Online:
		s.mu.Unlock()
		return ErrOffline
	case s.conn != nil || s.state.Status == StatusConnecting:
		s.mu.Unlock()
		return nil
	}

	s.gen++
	gen := s.gen
	s.state.Status = StatusConnecting
	s.state.Error = ""
	s.state.ConnectedDevices = 0
	s.changedLocked()
	s.mu.Unlock()
	s.flush()

	target, err := roomURL(s.opts.URL, code)
	if err != nil {
		return s.fail(gen, err)
	}

	conn, _, err := s.opts.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		return s.fail(gen, err)
	}

	s.mu.Lock()
	if gen != s.gen {
		// Disabled or taken offline while dialing.
		s.mu.Unlock()
		_ = conn.Close()

		return nil
	}

	s.conn = conn
	s.state.Status = StatusConnected
	s.changedLocked()
	frame := s.syncAllLocked()
	s.mu.Unlock()
	s.flush()

	s.opts.Logf("SYNC: Connected to %s", target)

	go s.readLoop(conn, gen)

	if err := s.write(conn, frame); err != nil {
		s.opts.Logf("SYNC: Failed to send full sync: %v", err)
	}

	return nil
}

func roomURL(base, code string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse sync url: %w", err)
	}

	return u.JoinPath(code, "ws").String(), nil
}

func (s *Session) fail(gen int, err error) error {
	s.mu.Lock()
	if gen == s.gen {
		s.state.Status = StatusError
		s.state.Error = "Connection error"
		s.state.ConnectedDevices = 0
		s.changedLocked()
	}
	s.mu.Unlock()
	s.flush()

	return fmt.Errorf("connect: %w", err)
}

// Close drops the connection without changing whether sync is enabled.
func (s *Session) Close() {
	s.mu.Lock()
	s.teardownLocked(StatusClosed)
	s.mu.Unlock()
	s.flush()
}

func (s *Session) teardownLocked(next Status) {
	s.gen++

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}

	s.state.Status = next
	s.state.Error = ""
	s.state.ConnectedDevices = 0
	s.state.HasEverSynced = false
	s.changedLocked()
}

func (s *Session) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.closed(gen, err)
			return
		}

		s.handleFrame(gen, data)
	}
}

func (s *Session) closed(gen int, err error) {
	s.mu.Lock()
	defer s.flush()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}

	s.gen++
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}

	s.state.ConnectedDevices = 0
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		s.state.Status = StatusClosed
	} else {
		s.state.Status = StatusError
		s.state.Error = "Connection error"
	}
	s.changedLocked()

	s.opts.Logf("SYNC: Connection ended: %v", err)
}

func (s *Session) write(conn *websocket.Conn, msg any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

	return conn.WriteJSON(msg)
}

// SyncNow resends the full local state if connected.
func (s *Session) SyncNow() error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return nil
	}
	frame := s.syncAllLocked()
	s.mu.Unlock()

	return s.write(conn, frame)
}

func (s *Session) syncAllLocked() protocol.SyncAll {
	msg := protocol.NewSyncAll(s.opts.Store.EligiblePuzzles())
	if s.current != nil {
		ref := *s.current
		msg.CurrentPuzzle = &ref
	}

	return msg
}

// SetCurrentPuzzle switches the viewed puzzle and loads its words.
func (s *Session) SetCurrentPuzzle(ref protocol.PuzzleRef) {
	words := s.opts.Store.Words(ref.PuzzleKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = &ref
	s.currentWords = make(map[string]struct{}, len(words))
	for _, w := range words {
		s.currentWords[w] = struct{}{}
	}
}

// CurrentPuzzle returns the viewed puzzle, if any.
func (s *Session) CurrentPuzzle() (protocol.PuzzleRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return protocol.PuzzleRef{}, false
	}

	return *s.current, true
}

// Words returns the found words of the viewed puzzle.
func (s *Session) Words() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return wordset.Sorted(s.currentWords)
}

// SubmitWord records a word found in the viewed puzzle and, when connected,
// announces it to the room. Offline finds reach the room on the next full sync.
func (s *Session) SubmitWord(word string) error {
	word = strings.ToUpper(strings.TrimSpace(word))
	if word == "" {
		return nil
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoPuzzle
	}

	ref := *s.current
	if _, err := s.mergeLocked(ref.PuzzleKey, []string{word}); err != nil {
		s.mu.Unlock()
		return err
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	if err := s.write(conn, protocol.NewWord(ref.PuzzleKey, word, ref.Date)); err != nil {
		s.opts.Logf("SYNC: Failed to send word: %v", err)
	}

	return nil
}

func (s *Session) handleFrame(gen int, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		return
	}

	s.mu.Lock()
	if gen != s.gen {
		// A frame from a connection that has since been torn down.
		s.mu.Unlock()
		return
	}

	switch m := msg.(type) {
	case protocol.SyncAll:
		s.handleSyncAllLocked(m)
	case protocol.SyncPuzzle:
		s.handleSyncPuzzleLocked(m)
	case protocol.Word:
		s.handleWordLocked(m)
	case protocol.SyncStatus:
		s.state.ConnectedDevices = m.Count
		s.state.HasEverSynced = m.HasEverSynced
		s.changedLocked()
	}
	s.mu.Unlock()
	s.flush()
}

func (s *Session) handleSyncAllLocked(m protocol.SyncAll) {
	syncedBefore := s.opts.Store.HasSynced()
	silent := !s.pageSynced && syncedBefore

	total := 0
	for _, key := range sortedKeys(m.Puzzles) {
		added, err := s.mergeLocked(key, m.Puzzles[key])
		if err != nil {
			s.opts.Logf("SYNC: Failed to store %s: %v", key, err)
		}
		total += added
	}

	if !syncedBefore && m.LastActivePuzzle != nil && s.opts.Navigate != nil {
		last := *m.LastActivePuzzle
		if s.current == nil || s.current.PuzzleKey != last.PuzzleKey {
			s.pending = append(s.pending, func() { s.opts.Navigate(last.Date, last.Lang) })
		}
	}

	s.pageSynced = true
	if !syncedBefore {
		if err := s.opts.Store.SetHasSynced(true); err != nil {
			s.opts.Logf("SYNC: Failed to persist sync flag: %v", err)
		}
	}

	if total > 0 && !silent {
		s.notifyLocked(Notification{
			Message: fmt.Sprintf("Synced %d word%s from other devices", total, plural(total)),
			Added:   total,
		})
	}
}

func (s *Session) handleSyncPuzzleLocked(m protocol.SyncPuzzle) {
	added, err := s.mergeLocked(m.PuzzleKey, m.Words)
	if err != nil {
		s.opts.Logf("SYNC: Failed to store %s: %v", m.PuzzleKey, err)
	}

	if added > 0 {
		s.notifyLocked(Notification{
			Message:   fmt.Sprintf("Synced %d word%s", added, plural(added)),
			Added:     added,
			PuzzleKey: m.PuzzleKey,
		})
	}
}

func (s *Session) handleWordLocked(m protocol.Word) {
	added, err := s.mergeLocked(m.PuzzleKey, []string{m.Word})
	if err != nil {
		s.opts.Logf("SYNC: Failed to store %s: %v", m.PuzzleKey, err)
	}

	if added > 0 && s.current != nil && s.current.PuzzleKey == m.PuzzleKey {
		s.notifyLocked(Notification{
			Message:   "+1 word synced",
			Added:     added,
			PuzzleKey: m.PuzzleKey,
		})
	}
}

// mergeLocked folds words into the stored set for key and, once stored, into
// the in-memory view if key is being viewed.
func (s *Session) mergeLocked(key string, words []string) (int, error) {
	result := wordset.Merge(s.opts.Store.Words(key), words)

	if result.Added > 0 {
		if err := s.opts.Store.SetWords(key, result.Merged); err != nil {
			return 0, err
		}
	}

	if s.current != nil && s.current.PuzzleKey == key {
		for _, w := range result.Merged {
			s.currentWords[w] = struct{}{}
		}
	}

	return result.Added, nil
}

func (s *Session) notifyLocked(n Notification) {
	if s.opts.Notify == nil {
		return
	}

	s.pending = append(s.pending, func() { s.opts.Notify(n) })
}

func (s *Session) changedLocked() {
	if s.opts.OnState == nil {
		return
	}

	st := s.state
	s.pending = append(s.pending, func() { s.opts.OnState(st) })
}

// flush runs callbacks queued while the lock was held.
func (s *Session) flush() {
	s.mu.Lock()
	fns := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func sortedKeys(m map[string][]string) []string {
	set := make(map[string]struct{}, len(m))
	for k := range m {
		set[k] = struct{}{}
	}

	return wordset.Sorted(set)
}
