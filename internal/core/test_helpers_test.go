package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shelfx/shelfx-chat/internal/config"
	"github.com/shelfx/shelfx-chat/internal/store"
	"github.com/shelfx/shelfx-chat/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent asserts that no event of kind is queued right now.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		default:
			return
		}
	}
}

func testChatConfig() config.ChatConfig {
	cfg := config.Default().Chat
	cfg.PushTimeout = 100 * time.Millisecond
	cfg.JoinTimeout = 200 * time.Millisecond
	cfg.PersistBackoff = time.Millisecond
	return cfg
}

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.UpsertRequest(context.Background(), "B1", "buyer", "seller", store.RequestStatusPending))
	return st
}

func newTestHub(t *testing.T, st store.Store, opts ...Option) *Hub {
	t.Helper()
	hub := NewHub(st, testChatConfig(), nil, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func mustJoin(t *testing.T, hub *Hub, c *Conn, counterparty string) string {
	t.Helper()
	id, err := hub.Join(context.Background(), c.Handle, "B1", counterparty)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

// flakyStore injects failures and latency in front of a real store.
type flakyStore struct {
	store.Store
	insertFailures     atomic.Int32
	authorizeDelay     time.Duration
	markDeliveredDelay time.Duration
	markReadDelay      time.Duration
	// markReadStarted, if set, receives a value when MarkConversationRead begins.
	markReadStarted chan struct{}
}

func (f *flakyStore) MarkDelivered(ctx context.Context, messageID int64, at time.Time) error {
	time.Sleep(f.markDeliveredDelay)
	return f.Store.MarkDelivered(ctx, messageID, at)
}

func (f *flakyStore) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	if f.markReadStarted != nil {
		select {
		case f.markReadStarted <- struct{}{}:
		default:
		}
	}
	time.Sleep(f.markReadDelay)
	return f.Store.MarkConversationRead(ctx, conversationID, readerID, at)
}

func (f *flakyStore) InsertMessage(ctx context.Context, msg *store.Message) error {
	if f.insertFailures.Add(-1) >= 0 {
		return errors.New("disk I/O error")
	}
	return f.Store.InsertMessage(ctx, msg)
}

func (f *flakyStore) AuthorizeConversation(ctx context.Context, bookID, requesterID, counterpartyID string) (*store.Conversation, error) {
	if f.authorizeDelay > 0 {
		time.Sleep(f.authorizeDelay)
	}
	return f.Store.AuthorizeConversation(ctx, bookID, requesterID, counterpartyID)
}

// recordingMirror captures mirror calls.
type recordingMirror struct {
	presence chan bool
	unread   chan int
}

func newRecordingMirror() *recordingMirror {
	return &recordingMirror{presence: make(chan bool, 16), unread: make(chan int, 16)}
}

func (m *recordingMirror) SetPresence(_ context.Context, _ string, online bool) error {
	m.presence <- online
	return nil
}

func (m *recordingMirror) SetUnread(_ context.Context, _, _ string, count int) error {
	m.unread <- count
	return nil
}

func (m *recordingMirror) ReplaceUnread(context.Context, string, map[string]int) error {
	return nil
}
