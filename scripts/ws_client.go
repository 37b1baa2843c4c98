// Package main runs a demo WebSocket client for plan events: it seeds a small
// fleet, subscribes to the tenant stream and submits a plan.
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

const tenant = "t_demo"

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

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/plans/events/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", tenant)
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: json.RawMessage(`{"events":["plan.completed","plan.failed"]}`)}); err != nil {
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
			if m.Type == "next" {
				return
			}
		}
	}()

	post(base, http.MethodPut, "/v1/depot", map[string]any{"name": "hub", "location": map[string]float64{"lat": 52.52, "lng": 13.405}})
	post(base, http.MethodPost, "/v1/customers", map[string]any{"customers": []map[string]any{
		{"id": "c1", "name": "Mitte", "location": map[string]float64{"lat": 52.53, "lng": 13.40}, "demand": 3},
		{"id": "c2", "name": "Kreuzberg", "location": map[string]float64{"lat": 52.50, "lng": 13.42}, "demand": 4},
		{"id": "c3", "name": "Wedding", "location": map[string]float64{"lat": 52.55, "lng": 13.36}, "demand": 2},
	}})
	post(base, http.MethodPost, "/v1/vehicles", map[string]any{"vehicles": []map[string]any{
		{"id": "v1", "name": "Van 1", "capacity": 6},
		{"id": "v2", "name": "Van 2", "capacity": 6},
	}})
	post(base, http.MethodPost, "/v1/plans", map[string]any{"planDate": time.Now().Format(time.DateOnly)})

	select {
	case <-time.After(5 * time.Second):
		log.Print("no event received")
	case <-done:
	}
}

func post(base, method, path string, body any) {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(method, base+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", tenant)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("%s %s -> %d", method, path, resp.StatusCode)
}
