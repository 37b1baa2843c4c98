package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"routeplan/internal/model"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 20 * time.Second
	wsWriteTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsMessage is the envelope of the event stream protocol:
// connection_init/connection_ack, subscribe/next/complete, ping/pong and error.
type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribe struct {
	// Events filters by event type; empty means all plan events.
	Events []string `json:"events"`
}

// PlanEventsWSHandler streams the tenant's plan events over a WebSocket.
func (s *Server) PlanEventsWSHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.authorize(w, r, anyRole, "")
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Debug().Err(err).Msg("websocket upgrade")
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(m wsMessage) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(m)
	}

	subs := map[string]chan model.Event{}
	var wg sync.WaitGroup
	done := make(chan struct{})
	defer func() {
		close(done)
		for id, ch := range subs {
			s.Broker.Unsubscribe(p.Tenant, ch)
			delete(subs, id)
		}
		wg.Wait()
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadTimeout)) })

	acked := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		switch msg.Type {
		case "connection_init":
			if acked {
				continue
			}
			acked = true
			_ = write(wsMessage{Type: "connection_ack"})
			wg.Add(1)
			go func() {
				defer wg.Done()
				ticker := time.NewTicker(wsPingInterval)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if !acked {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: errorPayload("connection_init required")})
				continue
			}
			if _, dup := subs[msg.ID]; dup || msg.ID == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: errorPayload("subscription id must be unique")})
				continue
			}
			var sp wsSubscribe
			if len(msg.Payload) > 0 {
				if err := json.Unmarshal(msg.Payload, &sp); err != nil {
					_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: errorPayload(err.Error())})
					continue
				}
			}
			ch := s.Broker.Subscribe(p.Tenant)
			subs[msg.ID] = ch
			wg.Add(1)
			go func(id string, ch chan model.Event, filter []string) {
				defer wg.Done()
				for evt := range ch {
					if !wantEvent(filter, evt.Type) {
						continue
					}
					payload, _ := json.Marshal(evt)
					if err := write(wsMessage{Type: "next", ID: id, Payload: payload}); err != nil {
						return
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch, sp.Events)
		case "complete":
			if ch, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(p.Tenant, ch)
				delete(subs, msg.ID)
			}
		}
	}
}

func wantEvent(filter []string, typ string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == typ {
			return true
		}
	}
	return false
}

func errorPayload(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"message": msg})
	return b
}
