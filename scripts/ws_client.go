// Package main runs a demo WebSocket client for dispatch events.
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
	base := fmt.Sprintf("http://localhost:%s", port)

	// Create a reservation to watch
	body := []byte(`{"tenantId":"t_demo","reservations":[{"id":"res_ws_demo","origin":"A","destination":"B","pickup":{"earliest":0,"latest":600},"dropoff":{"earliest":100,"latest":1200},"directTimeSec":100}]}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/reservations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	log.Printf("create reservation: %s", resp.Status)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	// connection_init
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	// subscribe to this reservation's events
	pl, _ := json.Marshal(map[string]any{"key": "res_ws_demo"})
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

	// Trigger a cycle so assignment events flow
	time.Sleep(500 * time.Millisecond)
	runReq, _ := http.NewRequest(http.MethodPost, base+"/v1/dispatch/run", bytes.NewReader([]byte(`{"nowSec":0}`)))
	runReq.Header.Set("Content-Type", "application/json")
	runReq.Header.Set("X-Tenant-Id", "t_demo")
	runReq.Header.Set("X-Role", "admin")
	_, _ = http.DefaultClient.Do(runReq)

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
