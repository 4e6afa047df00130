package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"shiproute/internal/model"
)

// Minimal GraphQL over WebSocket (graphql-transport-ws like) to stream optimizationEvents

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type initPayload struct {
	Authorization string `json:"authorization"`
}

// upgrader enforces ALLOW_ORIGINS. With no list configured, gorilla's
// same-origin check applies.
func (s *Server) upgrader() *websocket.Upgrader {
	if len(s.AllowOrigins) == 0 {
		return &websocket.Upgrader{}
	}
	return &websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
		return originAllowed(s.AllowOrigins, r.Header.Get("Origin"))
	}}
}

// GraphQLWSHandler handles /graphql/ws
func (s *Server) GraphQLWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// gorilla connections allow one concurrent writer
	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	fail := func(id, message string) {
		payload, _ := json.Marshal([]map[string]string{{"message": message}})
		_ = write(wsMessage{Type: "error", ID: id, Payload: payload})
	}

	type sub struct {
		runID string
		ch    chan SSEEvent
	}
	var smu sync.Mutex
	subs := map[string]sub{}
	// cancelSub releases subscription id. A non-nil only limits it to that
	// channel, so a finished forwarder never tears down a reused id.
	cancelSub := func(id string, only chan SSEEvent) {
		smu.Lock()
		s0, ok := subs[id]
		if ok && only != nil && s0.ch != only {
			ok = false
		}
		if ok {
			delete(subs, id)
		}
		smu.Unlock()
		if ok {
			s.Broker.Unsubscribe(s0.runID, s0.ch)
		}
	}
	done := make(chan struct{})
	defer func() {
		close(done)
		smu.Lock()
		ids := make([]string, 0, len(subs))
		for id := range subs {
			ids = append(ids, id)
		}
		smu.Unlock()
		for _, id := range ids {
			cancelSub(id, nil)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	var (
		pr     Principal
		authed bool
	)
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			if authed {
				_ = write(wsMessage{Type: "connection_ack"})
				continue
			}
			var ip initPayload
			_ = json.Unmarshal(msg.Payload, &ip)
			if ip.Authorization != "" {
				r.Header.Set("Authorization", ip.Authorization)
			}
			pr, authed = s.getPrincipal(r)
			if !authed {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(4401, "Unauthorized"), time.Now().Add(time.Second))
				return
			}
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
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
			if !authed {
				fail(msg.ID, "connection_init required")
				continue
			}
			var pl subscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			if !strings.Contains(strings.ToLower(pl.Query), "optimizationevents") {
				fail(msg.ID, "unsupported subscription")
				continue
			}
			rid, _ := pl.Variables["runId"].(string)
			if rid == "" {
				fail(msg.ID, "runId required")
				continue
			}
			smu.Lock()
			_, dup := subs[msg.ID]
			smu.Unlock()
			if dup {
				fail(msg.ID, "Subscriber for "+msg.ID+" already exists")
				continue
			}
			send := func(id string, evt model.OptimizationEvent) {
				payload, _ := json.Marshal(map[string]any{"data": map[string]any{"optimizationEvents": evt}})
				_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
			}
			ch := s.Broker.Subscribe(rid)
			if last, ok := s.Progress.Latest(pr.Tenant, rid); ok {
				send(msg.ID, last)
				if terminal(last) {
					s.Broker.Unsubscribe(rid, ch)
					_ = write(wsMessage{Type: "complete", ID: msg.ID})
					continue
				}
			}
			smu.Lock()
			subs[msg.ID] = sub{runID: rid, ch: ch}
			smu.Unlock()
			go func(id, tenant string, c chan SSEEvent) {
				for evt := range c {
					if evt.Data.TenantID != tenant {
						continue
					}
					send(id, evt.Data)
					if terminal(evt.Data) {
						cancelSub(id, c)
						break
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, pr.Tenant, ch)
		case "complete":
			cancelSub(msg.ID, nil)
		default:
			// ignore
		}
	}
}
