package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shelfx/shelfx-chat/internal/store"
)

func TestUnreadIncrementAndMarkRead(t *testing.T) {
	u := NewUnreadCounter()

	require.Equal(t, 1, u.Increment("seller", "c1", 1))
	require.Equal(t, 2, u.Increment("seller", "c1", 2))
	require.Equal(t, 2, u.Increment("seller", "c1", 2), "a message is counted once")
	require.Equal(t, 1, u.Increment("seller", "c2", 3))
	require.Equal(t, map[string]int{"c1": 2, "c2": 1}, u.Snapshot("seller"))
	require.Empty(t, u.Snapshot("buyer"))

	require.True(t, u.MarkRead("seller", "c1"))
	once := u.Snapshot("seller")
	require.False(t, u.MarkRead("seller", "c1"))
	require.Equal(t, once, u.Snapshot("seller"))
	require.Equal(t, map[string]int{"c1": 0, "c2": 1}, once)
	require.Zero(t, u.Count("seller", "c1"))
}

func TestUnreadReconcileUsesPersistedTruth(t *testing.T) {
	u := NewUnreadCounter()
	u.Increment("seller", "stale", 1)

	since := u.Generation("seller")
	persisted := []*store.Message{
		{ID: 5, ConversationID: "c1"},
		{ID: 6, ConversationID: "c1"},
		{ID: 7, ConversationID: "c2"},
	}
	// Committed after the store was queried.
	u.Increment("seller", "c1", 9)

	counts := u.Reconcile("seller", since, persisted, 8)
	require.Equal(t, map[string]int{"stale": 0, "c1": 3, "c2": 1}, counts)
}

func TestUnreadReconcileSkipsConversationsReadMeanwhile(t *testing.T) {
	u := NewUnreadCounter()
	since := u.Generation("seller")

	u.MarkRead("seller", "c1")

	counts := u.Reconcile("seller", since, []*store.Message{
		{ID: 1, ConversationID: "c1"},
		{ID: 2, ConversationID: "c2"},
	}, 2)
	require.Equal(t, 0, counts["c1"])
	require.Equal(t, 1, counts["c2"])
}

func TestUnreadReconcileDropsCountsTheStoreAlreadyRead(t *testing.T) {
	u := NewUnreadCounter()
	u.Increment("seller", "c1", 3)
	u.Increment("seller", "c1", 4)

	since := u.Generation("seller")
	// Nothing is unread in the store, which already holds message 3.
	counts := u.Reconcile("seller", since, nil, 3)
	require.Equal(t, map[string]int{"c1": 1}, counts, "only message 4 postdates the query")

	counts = u.Reconcile("seller", since, nil, 4)
	require.Equal(t, map[string]int{"c1": 0}, counts)
}
