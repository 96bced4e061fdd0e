package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryPresenceTransitions(t *testing.T) {
	r := NewRegistry(4)

	a1, online := r.Register("alice")
	require.True(t, online)
	a2, online := r.Register("alice")
	require.False(t, online)
	require.NotEqual(t, a1.Handle, a2.Handle)
	require.True(t, r.IsOnline("alice"))
	require.Len(t, r.ConnectionsFor("alice"), 2)

	c, offline := r.Unregister(a1.Handle)
	require.Same(t, a1, c)
	require.False(t, offline)
	require.True(t, a1.Closed())
	require.True(t, r.IsOnline("alice"))

	_, offline = r.Unregister(a2.Handle)
	require.True(t, offline)
	require.False(t, r.IsOnline("alice"))
	require.Empty(t, r.ConnectionsFor("alice"))

	// Duplicate disconnects are no-ops.
	c, offline = r.Unregister(a2.Handle)
	require.Nil(t, c)
	require.False(t, offline)
	c, _ = r.Unregister("never-registered")
	require.Nil(t, c)

	_, online = r.Register("alice")
	require.True(t, online)
}

func TestRegistryConcurrentUsers(t *testing.T) {
	r := NewRegistry(1)

	var wg sync.WaitGroup
	for u := range 16 {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for range 200 {
				c, _ := r.Register(user)
				r.Unregister(c.Handle)
			}
		}(fmt.Sprintf("user-%d", u))
	}
	wg.Wait()

	require.Empty(t, r.All())
	for u := range 16 {
		require.False(t, r.IsOnline(fmt.Sprintf("user-%d", u)))
	}
}

func TestRegistryOnlineUsers(t *testing.T) {
	r := NewRegistry(4)
	a, _ := r.Register("alice")
	r.Register("alice")
	r.Register("bob")

	require.ElementsMatch(t, []string{"alice", "bob"}, r.OnlineUsers())

	r.Unregister(a.Handle)
	require.ElementsMatch(t, []string{"alice", "bob"}, r.OnlineUsers())
}
