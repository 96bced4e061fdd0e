package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/shelfx/shelfx-chat/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("SHELFX_TOKEN"), "bearer token (see `shelfx-chat token`)")
	book := flag.String("book", "", "book id")
	counterparty := flag.String("to", "", "counterparty user id")
	body := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" || *book == "" || *counterparty == "" {
		return fmt.Errorf("-token, -book and -to are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+*token)
	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ, id string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, ID: id, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeJoin, "join", proto.JoinData{BookID: *book, CounterpartyID: *counterparty}); err != nil {
		return err
	}

	for {
		var outbound struct {
			Type  string          `json:"type"`
			ID    string          `json:"id"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", outbound.Type)
		if outbound.Event != "" {
			fmt.Printf(" event=%s", outbound.Event)
		}
		fmt.Printf(" data=%s\n", outbound.Data)

		switch {
		case outbound.Error != nil:
			return fmt.Errorf("%s failed: %s (%s)", outbound.ID, outbound.Error.Msg, outbound.Error.Code)
		case outbound.Type == proto.OutboundTypeJoined:
			var joined proto.Joined
			if err := json.Unmarshal(outbound.Data, &joined); err != nil {
				return fmt.Errorf("unmarshal joined: %w", err)
			}
			if err := send(proto.InboundTypeSend, "send", proto.SendData{ConversationID: joined.ConversationID, Body: *body}); err != nil {
				return err
			}
		case outbound.Type == proto.OutboundTypeAck && outbound.ID == "send":
			var ack proto.Ack
			if err := json.Unmarshal(outbound.Data, &ack); err != nil {
				return fmt.Errorf("unmarshal ack: %w", err)
			}
			fmt.Printf("Message %d stored at %s\n", ack.MessageID, time.UnixMilli(ack.SentAt).Format(time.RFC3339))
			return nil
		}
	}
}
