/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielroe/pangrum/protocol"
	"github.com/danielroe/pangrum/room"
	"github.com/spf13/afero"
)

const testKey = "en-2024-01-14"

var testRef = protocol.PuzzleRef{PuzzleKey: testKey, Date: "2024-01-14", Lang: "en"}

type recorder struct {
	mu            sync.Mutex
	notifications []Notification
	navigations   []string
}

func (r *recorder) notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notifications = append(r.notifications, n)
}

func (r *recorder) navigate(date, lang string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.navigations = append(r.navigations, lang+"/"+date)
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.notifications))
	for _, n := range r.notifications {
		out = append(out, n.Message)
	}

	return out
}

func (r *recorder) navigated() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.navigations)
}

func newTestSession(t *testing.T, store *FileStore, url string) (*Session, *recorder) {
	t.Helper()

	rec := &recorder{}
	s := New(Options{
		URL:      url,
		Store:    store,
		Notify:   rec.notify,
		Navigate: rec.navigate,
	})
	t.Cleanup(s.Close)

	return s, rec
}

func newTestStore() *FileStore {
	return OpenFileStore(afero.NewMemMapFs(), "local.json")
}

func frame(t *testing.T, msg any) []byte {
	t.Helper()

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to encode frame: %v", err)
	}

	return data
}

func deliver(t *testing.T, s *Session, msg any) {
	t.Helper()

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	s.handleFrame(gen, frame(t, msg))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSilentReconnectSuppressesFirstNotification(t *testing.T) {
	store := newTestStore()
	if err := store.SetHasSynced(true); err != nil {
		t.Fatalf("SetHasSynced returned error: %v", err)
	}

	s, rec := newTestSession(t, store, "")

	deliver(t, s, protocol.NewSyncAll(map[string][]string{testKey: {"RAIN", "TRAIN"}}))

	if got := rec.messages(); len(got) != 0 {
		t.Fatalf("expected no notification on silent reconnect, got %v", got)
	}
	if got := store.Words(testKey); !slices.Equal(got, []string{"RAIN", "TRAIN"}) {
		t.Fatalf("expected words to be merged, got %v", got)
	}

	deliver(t, s, protocol.NewSyncAll(map[string][]string{testKey: {"RAIN", "SATIN", "TRAIN"}}))

	if got := rec.messages(); !slices.Equal(got, []string{"Synced 1 word from other devices"}) {
		t.Fatalf("expected a notification for later data, got %v", got)
	}
}

func TestFirstSyncNotifiesAndNavigates(t *testing.T) {
	store := newTestStore()
	s, rec := newTestSession(t, store, "")

	msg := protocol.NewSyncAll(map[string][]string{testKey: {"RAIN", "TRAIN"}})
	msg.LastActivePuzzle = &testRef
	deliver(t, s, msg)

	if got := rec.messages(); !slices.Equal(got, []string{"Synced 2 words from other devices"}) {
		t.Errorf("unexpected notifications %v", got)
	}
	if got := rec.navigated(); !slices.Equal(got, []string{"en/2024-01-14"}) {
		t.Errorf("unexpected navigations %v", got)
	}
	if !store.HasSynced() {
		t.Error("expected has-synced flag to be persisted")
	}

	other := protocol.PuzzleRef{PuzzleKey: "de-2024-01-15", Date: "2024-01-15", Lang: "de"}
	msg = protocol.NewSyncAll(nil)
	msg.LastActivePuzzle = &other
	deliver(t, s, msg)

	if got := rec.navigated(); len(got) != 1 {
		t.Errorf("expected navigation only on the first sync, got %v", got)
	}
}

func TestFirstSyncDoesNotNavigateToViewedPuzzle(t *testing.T) {
	s, rec := newTestSession(t, newTestStore(), "")
	s.SetCurrentPuzzle(testRef)

	msg := protocol.NewSyncAll(map[string][]string{testKey: {"RAIN"}})
	msg.LastActivePuzzle = &testRef
	deliver(t, s, msg)

	if got := rec.navigated(); len(got) != 0 {
		t.Errorf("expected no navigation, got %v", got)
	}
	if got := s.Words(); !slices.Equal(got, []string{"RAIN"}) {
		t.Errorf("expected viewed words to update, got %v", got)
	}
}

func TestZeroWordMergeIsSilent(t *testing.T) {
	store := newTestStore()
	if err := store.SetWords(testKey, []string{"RAIN"}); err != nil {
		t.Fatalf("SetWords returned error: %v", err)
	}

	s, rec := newTestSession(t, store, "")

	deliver(t, s, protocol.NewSyncAll(map[string][]string{testKey: {"RAIN"}}))
	deliver(t, s, protocol.NewSyncPuzzle(testKey, []string{"RAIN"}))

	if got := rec.messages(); len(got) != 0 {
		t.Errorf("expected no notifications, got %v", got)
	}
}

func TestSyncPuzzleNotifies(t *testing.T) {
	store := newTestStore()
	s, rec := newTestSession(t, store, "")

	deliver(t, s, protocol.NewSyncPuzzle("de-2024-01-15", []string{"HAUS"}))

	if got := rec.messages(); !slices.Equal(got, []string{"Synced 1 word"}) {
		t.Errorf("unexpected notifications %v", got)
	}
	if got := store.Words("de-2024-01-15"); !slices.Equal(got, []string{"HAUS"}) {
		t.Errorf("unexpected stored words %v", got)
	}
}

func TestWordNotifiesOnlyForViewedPuzzle(t *testing.T) {
	store := newTestStore()
	s, rec := newTestSession(t, store, "")
	s.SetCurrentPuzzle(testRef)

	deliver(t, s, protocol.NewWord("en-2024-01-13", "OTHER", ""))
	if got := rec.messages(); len(got) != 0 {
		t.Fatalf("expected no notification for another puzzle, got %v", got)
	}
	if got := store.Words("en-2024-01-13"); !slices.Equal(got, []string{"OTHER"}) {
		t.Fatalf("expected word to be stored, got %v", got)
	}

	deliver(t, s, protocol.NewWord(testKey, "RAIN", ""))
	deliver(t, s, protocol.NewWord(testKey, "RAIN", ""))

	if got := rec.messages(); !slices.Equal(got, []string{"+1 word synced"}) {
		t.Errorf("unexpected notifications %v", got)
	}
	if got := s.Words(); !slices.Equal(got, []string{"RAIN"}) {
		t.Errorf("unexpected viewed words %v", got)
	}
}

func TestStatusUpdatesState(t *testing.T) {
	s, _ := newTestSession(t, newTestStore(), "")

	s.mu.Lock()
	s.state.Enabled = true
	s.state.Status = StatusConnected
	s.mu.Unlock()

	deliver(t, s, protocol.NewSyncStatus(2, true))

	st := s.State()
	if st.ConnectedDevices != 2 || !st.HasEverSynced {
		t.Fatalf("unexpected state %+v", st)
	}
	if got := st.Text(); got != "1 other device connected" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestMalformedAndStaleFramesAreIgnored(t *testing.T) {
	store := newTestStore()
	s, rec := newTestSession(t, store, "")

	s.handleFrame(0, []byte("{{{"))
	s.handleFrame(0, []byte(`{"type":"mystery"}`))

	s.Close()
	s.handleFrame(0, frame(t, protocol.NewSyncPuzzle(testKey, []string{"RAIN"})))

	if got := rec.messages(); len(got) != 0 {
		t.Errorf("expected no notifications, got %v", got)
	}
	if got := store.Words(testKey); len(got) != 0 {
		t.Errorf("expected stale frame to be dropped, got %v", got)
	}
}

func TestSubmitWord(t *testing.T) {
	store := newTestStore()
	s, _ := newTestSession(t, store, "")

	if err := s.SubmitWord("rain"); !errors.Is(err, ErrNoPuzzle) {
		t.Fatalf("expected ErrNoPuzzle, got %v", err)
	}

	s.SetCurrentPuzzle(testRef)
	for _, w := range []string{" rain", "RAIN", ""} {
		if err := s.SubmitWord(w); err != nil {
			t.Fatalf("SubmitWord(%q) returned error: %v", w, err)
		}
	}

	if got := store.Words(testKey); !slices.Equal(got, []string{"RAIN"}) {
		t.Errorf("unexpected stored words %v", got)
	}
}

func TestEnableWhileOffline(t *testing.T) {
	store := newTestStore()
	s, _ := newTestSession(t, store, "ws://127.0.0.1:1/sync")

	ctx := context.Background()
	if err := s.SetOnline(ctx, false); err != nil {
		t.Fatalf("SetOnline returned error: %v", err)
	}

	code, err := s.Enable(ctx, "  ABC234 ")
	if err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}
	if code != "abc234" || store.JoinCode() != "abc234" {
		t.Fatalf("expected normalized code, got %q / %q", code, store.JoinCode())
	}

	st := s.State()
	if !st.Enabled || st.Status != StatusClosed {
		t.Fatalf("unexpected state %+v", st)
	}
	if got := st.Text(); got != "Offline - sync paused" {
		t.Errorf("unexpected text %q", got)
	}

	if err := s.Connect(ctx); !errors.Is(err, ErrOffline) {
		t.Errorf("expected ErrOffline, got %v", err)
	}
}

func TestEnableGeneratesCode(t *testing.T) {
	store := newTestStore()
	s, _ := newTestSession(t, store, "ws://127.0.0.1:1/sync")

	ctx := context.Background()
	_ = s.SetOnline(ctx, false)

	code, err := s.Enable(ctx, "")
	if err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}
	if len(code) != 6 || store.JoinCode() != code {
		t.Fatalf("unexpected generated code %q", code)
	}
}

func TestEnableRejectsInvalidCode(t *testing.T) {
	store := newTestStore()
	s, _ := newTestSession(t, store, "")

	if _, err := s.Enable(context.Background(), "abc!234"); err == nil {
		t.Fatal("expected an error")
	}
	if store.JoinCode() != "" || s.State().Enabled {
		t.Error("expected sync to stay disabled")
	}
}

func TestConnectionErrorState(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	s, _ := newTestSession(t, newTestStore(), url)

	if _, err := s.Enable(context.Background(), "abc234"); err == nil {
		t.Fatal("expected a connection error")
	}

	st := s.State()
	if st.Status != StatusError || st.Error != "Connection error" {
		t.Fatalf("unexpected state %+v", st)
	}
	if got := st.Text(); got != "Connection error" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestDisableKeepsProgress(t *testing.T) {
	store := newTestStore()
	s, _ := newTestSession(t, store, "")

	_ = store.SetWords(testKey, []string{"RAIN"})
	_ = store.SetJoinCode("abc234")
	_ = store.SetHasSynced(true)

	if err := s.Disable(); err != nil {
		t.Fatalf("Disable returned error: %v", err)
	}

	if store.JoinCode() != "" || store.HasSynced() {
		t.Error("expected join code and has-synced flag to be cleared")
	}
	if got := store.Words(testKey); !slices.Equal(got, []string{"RAIN"}) {
		t.Errorf("expected progress to survive, got %v", got)
	}
	if st := s.State(); st.Enabled || st.Status != StatusDisabled {
		t.Errorf("unexpected state %+v", st)
	}
}

func newRoomServer(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := room.NewManager(ctx, room.NewMemoryStore(), 0, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/sync/"), "/ws")
		m.Serve(w, r, code, r.RemoteAddr)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/sync"
}

func TestTwoDevicesConverge(t *testing.T) {
	url := newRoomServer(t)
	ctx := context.Background()

	storeA := newTestStore()
	_ = storeA.SetWords(testKey, []string{"RAIN", "TRAIN"})
	a, _ := newTestSession(t, storeA, url)
	a.SetCurrentPuzzle(testRef)

	if _, err := a.Enable(ctx, "abc234"); err != nil {
		t.Fatalf("device A failed to enable: %v", err)
	}
	waitFor(t, "device A to complete its first sync", storeA.HasSynced)

	storeB := newTestStore()
	b, recB := newTestSession(t, storeB, url)

	if _, err := b.Enable(ctx, "ABC234"); err != nil {
		t.Fatalf("device B failed to enable: %v", err)
	}

	waitFor(t, "device B to receive A's words", func() bool {
		return slices.Equal(storeB.Words(testKey), []string{"RAIN", "TRAIN"})
	})
	waitFor(t, "device B to navigate", func() bool { return len(recB.navigated()) == 1 })

	if got := recB.navigated(); got[0] != "en/2024-01-14" {
		t.Errorf("unexpected navigation %v", got)
	}
	if got := recB.messages(); !slices.Equal(got, []string{"Synced 2 words from other devices"}) {
		t.Errorf("unexpected notifications %v", got)
	}

	waitFor(t, "device A to see two devices", func() bool {
		st := a.State()
		return st.ConnectedDevices == 2 && st.Synced()
	})

	b.SetCurrentPuzzle(testRef)
	if err := a.SubmitWord("satin"); err != nil {
		t.Fatalf("SubmitWord returned error: %v", err)
	}

	waitFor(t, "device B to receive the new word", func() bool {
		return slices.Contains(b.Words(), "SATIN")
	})
	waitFor(t, "device B to be notified", func() bool { return len(recB.messages()) == 2 })

	if got := recB.messages()[1]; got != "+1 word synced" {
		t.Errorf("unexpected notification %q", got)
	}

	if err := b.Disable(); err != nil {
		t.Fatalf("Disable returned error: %v", err)
	}

	waitFor(t, "device A to see one device", func() bool {
		return a.State().ConnectedDevices == 1
	})

	if got := storeB.Words(testKey); !slices.Equal(got, []string{"RAIN", "SATIN", "TRAIN"}) {
		t.Errorf("expected B's progress to survive disable, got %v", got)
	}
}

type failingStore struct {
	*FileStore
}

func (f failingStore) SetWords(string, []string) error {
	return errors.New("disk full")
}

func TestFailedWritesDoNotReachTheView(t *testing.T) {
	rec := &recorder{}
	s := New(Options{
		Store:  failingStore{newTestStore()},
		Notify: rec.notify,
	})
	t.Cleanup(s.Close)

	s.SetCurrentPuzzle(testRef)

	deliver(t, s, protocol.NewSyncPuzzle(testKey, []string{"RAIN"}))
	deliver(t, s, protocol.NewWord(testKey, "TRAIN", ""))
	deliver(t, s, protocol.NewSyncAll(map[string][]string{testKey: {"SATIN"}}))

	if err := s.SubmitWord("stain"); err == nil {
		t.Fatal("expected SubmitWord to report the failed write")
	}

	if got := s.Words(); len(got) != 0 {
		t.Errorf("expected unsaved words to stay out of the view, got %v", got)
	}
	if got := rec.messages(); len(got) != 0 {
		t.Errorf("expected no notifications for unsaved words, got %v", got)
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	url := newRoomServer(t)
	ctx := context.Background()

	storeA := newTestStore()
	_ = storeA.SetJoinCode("abc234")
	a, _ := newTestSession(t, storeA, url)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Connect(ctx); err != nil {
				t.Errorf("Connect returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	waitFor(t, "device A to connect", func() bool { return a.State().Status == StatusConnected })

	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect on a live session returned error: %v", err)
	}

	b, _ := newTestSession(t, newTestStore(), url)
	if _, err := b.Enable(ctx, "abc234"); err != nil {
		t.Fatalf("device B failed to enable: %v", err)
	}

	waitFor(t, "device B to see the room", func() bool { return b.State().ConnectedDevices >= 2 })
	time.Sleep(100 * time.Millisecond)

	if n := b.State().ConnectedDevices; n != 2 {
		t.Fatalf("expected exactly two connections in the room, got %d", n)
	}
}

func TestOfflineTearsDownAndOnlineResyncs(t *testing.T) {
	url := newRoomServer(t)
	ctx := context.Background()

	storeA := newTestStore()
	_ = storeA.SetWords(testKey, []string{"RAIN"})
	a, _ := newTestSession(t, storeA, url)
	a.SetCurrentPuzzle(testRef)

	if _, err := a.Enable(ctx, "abc234"); err != nil {
		t.Fatalf("device A failed to enable: %v", err)
	}
	waitFor(t, "device A to complete its first sync", storeA.HasSynced)

	storeB := newTestStore()
	b, _ := newTestSession(t, storeB, url)
	if _, err := b.Enable(ctx, "abc234"); err != nil {
		t.Fatalf("device B failed to enable: %v", err)
	}
	waitFor(t, "device B to see two devices", func() bool { return b.State().ConnectedDevices == 2 })

	if err := a.SetOnline(ctx, false); err != nil {
		t.Fatalf("SetOnline(false) returned error: %v", err)
	}
	if st := a.State(); st.Status != StatusClosed || st.ConnectedDevices != 0 || !st.Enabled {
		t.Fatalf("unexpected offline state %+v", st)
	}
	waitFor(t, "device B to see A leave", func() bool { return b.State().ConnectedDevices == 1 })

	if err := a.SubmitWord("satin"); err != nil {
		t.Fatalf("SubmitWord returned error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if slices.Contains(storeB.Words(testKey), "SATIN") {
		t.Fatal("offline word reached the room")
	}

	if err := a.SetOnline(ctx, true); err != nil {
		t.Fatalf("SetOnline(true) returned error: %v", err)
	}

	waitFor(t, "device A to reconnect", func() bool { return a.State().Status == StatusConnected })
	waitFor(t, "the offline word to reach device B", func() bool {
		return slices.Equal(storeB.Words(testKey), []string{"RAIN", "SATIN"})
	})
	waitFor(t, "device B to see two devices again", func() bool { return b.State().ConnectedDevices == 2 })
}
