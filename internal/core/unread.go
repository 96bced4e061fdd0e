package core

import (
	"sync"

	"github.com/samber/lo"

	"github.com/shelfx/shelfx-chat/internal/store"
)

// UnreadCounter tracks, per user, the unread messages of each conversation.
// Counts are derived from message IDs so a message is never counted twice.
type UnreadCounter struct {
	users sync.Map // user id -> *userUnread
}

type userUnread struct {
	mu    sync.Mutex
	gen   uint64
	convs map[string]*unreadEntry
}

type unreadEntry struct {
	ids map[int64]struct{}
	// readGen is the user generation of the latest read signal for this conversation.
	readGen uint64
}

// NewUnreadCounter returns an empty counter.
func NewUnreadCounter() *UnreadCounter {
	return &UnreadCounter{}
}

func (u *UnreadCounter) user(userID string) *userUnread {
	v, _ := u.users.LoadOrStore(userID, &userUnread{convs: make(map[string]*unreadEntry)})
	return v.(*userUnread)
}

func (uu *userUnread) entry(conversationID string) *unreadEntry {
	e, ok := uu.convs[conversationID]
	if !ok {
		e = &unreadEntry{ids: make(map[int64]struct{})}
		uu.convs[conversationID] = e
	}
	return e
}

// Increment counts messageID as unread for userID and returns the new count.
func (u *UnreadCounter) Increment(userID, conversationID string, messageID int64) int {
	uu := u.user(userID)
	uu.mu.Lock()
	defer uu.mu.Unlock()

	e := uu.entry(conversationID)
	e.ids[messageID] = struct{}{}
	return len(e.ids)
}

// MarkRead resets the conversation's count to zero. Returns false if it already was zero.
func (u *UnreadCounter) MarkRead(userID, conversationID string) bool {
	uu := u.user(userID)
	uu.mu.Lock()
	defer uu.mu.Unlock()

	e := uu.entry(conversationID)
	uu.gen++
	e.readGen = uu.gen
	if len(e.ids) == 0 {
		return false
	}
	clear(e.ids)
	return true
}

// settle fences a read signal whose store update just completed, so a reconciliation
// that queried the store before that update does not resurrect the old count.
func (u *UnreadCounter) settle(userID, conversationID string) {
	uu := u.user(userID)
	uu.mu.Lock()
	defer uu.mu.Unlock()

	uu.gen++
	uu.entry(conversationID).readGen = uu.gen
}

// Count returns the unread count of one conversation.
func (u *UnreadCounter) Count(userID, conversationID string) int {
	v, ok := u.users.Load(userID)
	if !ok {
		return 0
	}
	uu := v.(*userUnread)
	uu.mu.Lock()
	defer uu.mu.Unlock()

	if e, ok := uu.convs[conversationID]; ok {
		return len(e.ids)
	}
	return 0
}

// Snapshot returns conversation id -> unread count for every conversation the
// counter knows about, including conversations already read down to zero.
func (u *UnreadCounter) Snapshot(userID string) map[string]int {
	v, ok := u.users.Load(userID)
	if !ok {
		return map[string]int{}
	}
	uu := v.(*userUnread)
	uu.mu.Lock()
	defer uu.mu.Unlock()

	return lo.MapValues(uu.convs, func(e *unreadEntry, _ string) int {
		return len(e.ids)
	})
}

// Generation returns the user's read generation, captured before querying the store
// for a reconciliation.
func (u *UnreadCounter) Generation(userID string) uint64 {
	uu := u.user(userID)
	uu.mu.Lock()
	defer uu.mu.Unlock()
	return uu.gen
}

// Reconcile replaces the in-memory view with the persisted unread messages.
// Conversations read after since are left alone. In-memory IDs above highWater are
// kept: they were committed after the store was queried.
func (u *UnreadCounter) Reconcile(userID string, since uint64, unread []*store.Message, highWater int64) map[string]int {
	byConv := lo.GroupBy(unread, func(m *store.Message) string { return m.ConversationID })

	uu := u.user(userID)
	uu.mu.Lock()
	defer uu.mu.Unlock()

	for convID := range byConv {
		uu.entry(convID)
	}

	for convID, e := range uu.convs {
		if e.readGen > since {
			continue
		}
		next := make(map[int64]struct{}, len(byConv[convID]))
		for _, m := range byConv[convID] {
			next[m.ID] = struct{}{}
		}
		for id := range e.ids {
			if id > highWater {
				next[id] = struct{}{}
			}
		}
		e.ids = next
	}

	return lo.MapValues(uu.convs, func(e *unreadEntry, _ string) int {
		return len(e.ids)
	})
}
