package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shelfx/shelfx-chat/internal/proto"
)

func TestAPIRequiresToken(t *testing.T) {
	env := startTestServer(t, testConfig())

	for _, path := range []string{"/api/conversations", "/api/unread"} {
		resp := env.get(t, path, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestAPIConversationsAndHistory(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	buyer := env.dial(ctx, t, "buyer")
	send(ctx, t, buyer, proto.InboundTypeJoin, "j1", proto.JoinData{BookID: "B1", CounterpartyID: "seller"})
	convID := decodeData[proto.Joined](t, readUntil(ctx, t, buyer, reply("j1"))).ConversationID
	for _, id := range []string{"s1", "s2"} {
		send(ctx, t, buyer, proto.InboundTypeSend, id, proto.SendData{ConversationID: convID, Body: "msg " + id})
		readUntil(ctx, t, buyer, reply(id))
	}

	resp := env.get(t, "/api/conversations", "seller")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var convs []ConversationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&convs))
	require.Len(t, convs, 1)
	require.Equal(t, convID, convs[0].ID)
	require.Equal(t, "B1", convs[0].BookID)
	require.Equal(t, "buyer", convs[0].CounterpartyID)
	require.True(t, convs[0].CounterpartyOnline)
	require.Equal(t, 2, convs[0].Unread)

	resp = env.get(t, "/api/unread", "seller")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap proto.UnreadSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Equal(t, map[string]int{convID: 2}, snap.Counts)

	resp = env.get(t, "/api/conversations/"+convID+"/messages?limit=1", "seller")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page []proto.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page, 1)
	require.Equal(t, "msg s2", page[0].Body)

	resp = env.get(t, "/api/conversations/"+convID+"/messages", "mallory")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.get(t, "/api/conversations/"+convID+"/messages?limit=abc", "seller")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
