package core

import (
	"context"
	"testing"

	"github.com/shelfx/shelfx-chat/internal/store"
	"github.com/shelfx/shelfx-chat/internal/store/sqlite"
)

func benchmarkSendFanout(b *testing.B, tabs int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := sqlite.New(":memory:")
	if err != nil {
		b.Fatal(err)
	}
	defer st.Close()
	if err := st.UpsertRequest(ctx, "B1", "buyer", "seller", store.RequestStatusApproved); err != nil {
		b.Fatal(err)
	}

	hub := NewHub(st, testChatConfig(), nil)
	go hub.Run(ctx)

	sender := hub.Register("buyer")
	convID, err := hub.Join(ctx, sender.Handle, "B1", "seller")
	if err != nil {
		b.Fatal(err)
	}

	// Every tab but the first is drained in the background.
	var target *Conn
	for i := range tabs {
		c := hub.Register("seller")
		if _, err := hub.Join(ctx, c.Handle, "B1", "buyer"); err != nil {
			b.Fatal(err)
		}
		if i == 0 {
			target = c
			continue
		}
		go func(cl *Conn) {
			for {
				select {
				case <-cl.Outbound():
				case <-cl.Done():
					return
				}
			}
		}(c)
	}
	for len(target.Outbound()) > 0 {
		<-target.Outbound()
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := hub.Send(ctx, sender.Handle, convID, "payload"); err != nil {
			b.Fatal(err)
		}
		<-target.Outbound()
	}
}

func BenchmarkSendFanout_1(b *testing.B)  { benchmarkSendFanout(b, 1) }
func BenchmarkSendFanout_10(b *testing.B) { benchmarkSendFanout(b, 10) }
func BenchmarkSendFanout_50(b *testing.B) { benchmarkSendFanout(b, 50) }
