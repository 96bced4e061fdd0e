package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ConnOpened()
	m.MessageSent()
	m.SendFailed("persistence")
	require.Nil(t, m.Registry())
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()
	m.MessageSent()
	m.SendFailed("not_joined")

	require.InDelta(t, 1, testutil.ToFloat64(m.connections), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.sendFailures.WithLabelValues("not_joined")), 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "shelfx_chat_messages_sent_total 1"))
}
