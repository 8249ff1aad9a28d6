// Package main runs a demo client: it subscribes to the stage event stream
// over WebSocket, then posts a signed order webhook and prints the events the
// pipeline publishes while processing it.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"loyaltylink/internal/webhook"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	secret := os.Getenv("SHOPIFY_WEBHOOK_SECRET")
	base := fmt.Sprintf("http://localhost:%s", port)
	orderID := time.Now().UnixNano() % 1_000_000_000

	// Connect WS and subscribe to the order's events before sending
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{"order": fmt.Sprint(orderID)})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Post a signed order webhook
	time.Sleep(200 * time.Millisecond)
	productID := os.Getenv("DEMO_PRODUCT_ID")
	if productID == "" {
		productID = "111"
	}
	body := []byte(fmt.Sprintf(`{"id":%d,"line_items":[{"product_id":%s,"quantity":1}]}`, orderID, productID))
	req, _ := http.NewRequest(http.MethodPost, base+"/webhook/orders-create", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Shopify-Hmac-Sha256", webhook.Sign(secret, body))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("webhook -> %s", resp.Status)
	_ = resp.Body.Close()

	select {
	case <-time.After(3 * time.Second):
	case <-done:
	}
}
