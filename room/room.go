/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package room implements the server side of cross-device progress sync.
//
// Each join code maps to one Room actor. The actor owns its room's durable
// state in the Store and handles one event at a time to completion:
// connects, disconnects, and frames from devices. Nothing the room needs
// between events lives only in memory, so an idle actor may be dropped and
// recreated from the Store at any time.
package room

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/danielroe/pangrum/protocol"
	"github.com/danielroe/pangrum/puzzlekey"
	"github.com/danielroe/pangrum/wordset"
	"github.com/gorilla/websocket"
)

// Logf receives diagnostic output.
type Logf func(format string, args ...any)

func orNop(logf Logf) Logf {
	if logf == nil {
		return func(string, ...any) {}
	}

	return logf
}

// Client is one device connection to a room.
type Client struct {
	conn *websocket.Conn
	send chan any
	addr string
}

// NewClient returns a connection with an outgoing buffer of size buffer.
// conn may be nil when the caller drains send itself.
func NewClient(conn *websocket.Conn, addr string, buffer int) *Client {
	return &Client{
		conn: conn,
		send: make(chan any, buffer),
		addr: addr,
	}
}

// Send exposes the outgoing frames queued for this client.
func (c *Client) Send() <-chan any {
	return c.send
}

type inbound struct {
	client *Client
	data   []byte
}

type Room struct {
	id    string
	store Store
	logf  Logf
	now   func() time.Time

	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	messages chan inbound
	done     chan struct{}
	stopOnce sync.Once

	mu         sync.RWMutex
	lastActive time.Time
	refs       int
}

func newRoom(id string, store Store, logf Logf) *Room {
	return &Room{
		id:         id,
		store:      store,
		logf:       orNop(logf),
		now:        time.Now,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		messages:   make(chan inbound),
		done:       make(chan struct{}),
		lastActive: time.Now(),
	}
}

// ID returns the normalized join code of the room.
func (r *Room) ID() string {
	return r.id
}

func (r *Room) run(ctx context.Context) {
	for {
		select {
		case <-r.done:
			return
		default:
		}

		select {
		case c := <-r.register:
			r.touch()
			r.handleConnect(ctx, c)

		case c := <-r.unreg:
			r.touch()
			r.handleClose(ctx, c)

		case in := <-r.messages:
			r.touch()
			r.handleMessage(ctx, in)

		case <-r.done:
			return

		case <-ctx.Done():
			r.stop()
			return
		}
	}
}

func (r *Room) stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

func (r *Room) touch() {
	r.mu.Lock()
	r.lastActive = time.Now()
	r.mu.Unlock()
}

// Join hands a client to the room actor. It returns false if the room has
// already stopped.
func (r *Room) Join(c *Client) bool {
	select {
	case <-r.done:
		return false
	default:
	}

	select {
	case r.register <- c:
		return true
	case <-r.done:
		return false
	}
}

// Leave removes a client from the room.
func (r *Room) Leave(c *Client) {
	select {
	case r.unreg <- c:
	case <-r.done:
	}
}

// Deliver queues a raw frame from c for processing.
func (r *Room) Deliver(c *Client, data []byte) {
	select {
	case r.messages <- inbound{client: c, data: data}:
	case <-r.done:
	}
}

func (r *Room) handleConnect(ctx context.Context, c *Client) {
	r.clients[c] = true
	connectionsActive.Inc()

	count := len(r.clients)

	if count > 1 {
		keys, err := r.store.PuzzleKeys(ctx, r.id)
		if err != nil {
			r.logf("SYNC: Failed to list puzzles for %s: %v", r.id, err)
		} else if len(keys) > 0 {
			if err := r.store.MarkSynced(ctx, r.id); err != nil {
				r.logf("SYNC: Failed to mark %s synced: %v", r.id, err)
			}
		}
	}

	status := r.status(ctx)

	r.logf("SYNC: Device %s joined %s (%d connected)", c.addr, r.id, count)

	r.broadcast(status, c)
	r.sendTo(c, status)
}

func (r *Room) handleClose(ctx context.Context, c *Client) {
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		close(c.send)
		connectionsActive.Dec()
	}

	r.logf("SYNC: Device %s left %s (%d connected)", c.addr, r.id, len(r.clients))

	if len(r.clients) > 0 {
		r.broadcast(r.status(ctx), nil)
	}
}

func (r *Room) status(ctx context.Context) protocol.SyncStatus {
	synced, err := r.store.HasEverSynced(ctx, r.id)
	if err != nil {
		r.logf("SYNC: Failed to read sync flag for %s: %v", r.id, err)
	}

	return protocol.NewSyncStatus(len(r.clients), synced)
}

func (r *Room) handleMessage(ctx context.Context, in inbound) {
	if _, ok := r.clients[in.client]; !ok {
		return
	}

	msg, err := protocol.Decode(in.data)
	if err != nil {
		messagesDropped.Inc()
		r.logf("SYNC: Ignoring frame from %s in %s: %v", in.client.addr, r.id, err)

		return
	}

	messagesReceived.WithLabelValues(msg.MessageType()).Inc()

	switch m := msg.(type) {
	case protocol.SyncAll:
		err = r.handleSyncAll(ctx, in.client, m)
	case protocol.Word:
		err = r.handleWord(ctx, in.client, m)
	default:
		messagesDropped.Inc()
	}

	if err != nil {
		r.logf("SYNC: Failed to handle %s from %s in %s: %v", msg.MessageType(), in.client.addr, r.id, err)
	}
}

func (r *Room) handleSyncAll(ctx context.Context, sender *Client, m protocol.SyncAll) error {
	// Read before the sender's own pointer is stored, so a joining device
	// learns where the others were.
	previous, err := r.store.LastActivePuzzle(ctx, r.id)
	if err != nil {
		return err
	}

	stored, err := r.store.PuzzleKeys(ctx, r.id)
	if err != nil {
		return err
	}

	keys := make(map[string]struct{}, len(stored)+len(m.Puzzles))
	for _, k := range stored {
		keys[k] = struct{}{}
	}
	for k := range m.Puzzles {
		if !puzzlekey.Valid(k) {
			messagesDropped.Inc()
			continue
		}
		keys[k] = struct{}{}
	}

	reply := make(map[string][]string, len(keys))
	updated := make(map[string][]string)

	for _, key := range wordset.Sorted(keys) {
		current, err := r.store.Words(ctx, r.id, key)
		if err != nil {
			return err
		}

		result := wordset.Merge(current, m.Puzzles[key])
		if result.Added > 0 {
			if err := r.store.SetWords(ctx, r.id, key, result.Merged); err != nil {
				return err
			}
			wordsMerged.Add(float64(result.Added))
			updated[key] = result.Merged
		}

		if len(result.Merged) > 0 {
			reply[key] = result.Merged
		}
	}

	if m.CurrentPuzzle != nil && !puzzlekey.Valid(m.CurrentPuzzle.PuzzleKey) {
		messagesDropped.Inc()
		m.CurrentPuzzle = nil
	}

	if m.CurrentPuzzle != nil {
		if err := r.store.SetLastActivePuzzle(ctx, r.id, r.completeRef(*m.CurrentPuzzle), r.now()); err != nil {
			return err
		}
	}

	resp := protocol.NewSyncAll(reply)
	if previous != nil {
		ref := previous.PuzzleRef
		resp.LastActivePuzzle = &ref
	}
	r.sendTo(sender, resp)

	updatedKeys := make([]string, 0, len(updated))
	for k := range updated {
		updatedKeys = append(updatedKeys, k)
	}
	sort.Strings(updatedKeys)

	for _, k := range updatedKeys {
		r.broadcast(protocol.NewSyncPuzzle(k, updated[k]), sender)
	}

	r.logf("SYNC: Full sync from %s in %s (%d puzzles, %d updated)", sender.addr, r.id, len(reply), len(updated))

	return nil
}

func (r *Room) handleWord(ctx context.Context, sender *Client, m protocol.Word) error {
	if !puzzlekey.Valid(m.PuzzleKey) {
		messagesDropped.Inc()
		return nil
	}

	words, err := r.store.Words(ctx, r.id, m.PuzzleKey)
	if err != nil {
		return err
	}

	if wordset.Contains(words, m.Word) {
		return nil
	}

	if err := r.store.SetWords(ctx, r.id, m.PuzzleKey, append(words, m.Word)); err != nil {
		return err
	}
	wordsMerged.Inc()

	if m.Date != "" {
		ref := protocol.PuzzleRef{
			PuzzleKey: m.PuzzleKey,
			Date:      m.Date,
			Lang:      puzzlekey.Lang(m.PuzzleKey),
		}
		if err := r.store.SetLastActivePuzzle(ctx, r.id, ref, r.now()); err != nil {
			return err
		}
	}

	r.broadcast(protocol.NewWord(m.PuzzleKey, m.Word, ""), sender)

	return nil
}

// completeRef fills in a missing language from the puzzle key.
func (r *Room) completeRef(ref protocol.PuzzleRef) protocol.PuzzleRef {
	if ref.Lang == "" {
		ref.Lang = puzzlekey.Lang(ref.PuzzleKey)
	}

	return ref
}

// sendTo queues msg for c, dropping the client if its buffer is full.
func (r *Room) sendTo(c *Client, msg any) {
	if _, ok := r.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		r.dropClient(c)
	}
}

// broadcast queues msg for every client except skip.
func (r *Room) broadcast(msg any, skip *Client) {
	for c := range r.clients {
		if c == skip {
			continue
		}

		r.sendTo(c, msg)
	}
}

func (r *Room) dropClient(c *Client) {
	delete(r.clients, c)
	close(c.send)
	connectionsActive.Dec()

	r.logf("SYNC: Dropped slow device %s from %s", c.addr, r.id)
}
