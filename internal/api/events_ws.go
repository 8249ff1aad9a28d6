package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"loyaltylink/internal/model"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventsWSHandler handles /v1/events/ws. The protocol is a trimmed-down
// graphql-transport-ws shape: connection_init/connection_ack, subscribe with
// an {"order": "<ref>"} payload (or "*" for all orders), next frames carrying
// stage events, complete to tear down.
func (s *Server) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		orderRef string
		ch       chan model.StageEvent
	}
	subs := map[string]sub{}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	write := func(v any) error { return conn.WriteJSON(v) }

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for range ticker.C {
					if err := write(wsMessage{Type: "ping"}); err != nil {
						return
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl struct {
				Order string `json:"order"`
			}
			_ = json.Unmarshal(msg.Payload, &pl)
			if pl.Order == "" {
				pl.Order = Firehose
			}
			ch := s.Broker.Subscribe(pl.Order)
			subs[msg.ID] = sub{orderRef: pl.Order, ch: ch}
			go func(id string, c chan model.StageEvent) {
				for evt := range c {
					payload, _ := json.Marshal(evt)
					_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "complete":
			if s0, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(s0.orderRef, s0.ch)
				delete(subs, msg.ID)
			}
		default:
			// ignore
		}
	}
	for id, s0 := range subs {
		s.Broker.Unsubscribe(s0.orderRef, s0.ch)
		delete(subs, id)
	}
}
