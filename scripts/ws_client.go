// Package main runs a demo WebSocket client for optimization events.
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

	"github.com/google/uuid"
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
	runID := uuid.New().String()

	// Connect WS first so no event is missed
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/graphql/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	initPayload, _ := json.Marshal(map[string]string{"authorization": os.Getenv("AUTH_TOKEN")})
	if err := c.WriteJSON(wsMessage{Type: "connection_init", Payload: initPayload}); err != nil {
		log.Fatal(err)
	}
	var ack wsMessage
	if err := c.ReadJSON(&ack); err != nil || ack.Type != "connection_ack" {
		log.Fatalf("no connection_ack: %v %+v", err, ack)
	}
	payload := map[string]any{
		"query":     "subscription($runId: ID!) { optimizationEvents(runId: $runId) }",
		"variables": map[string]any{"runId": runID},
	}
	pl, _ := json.Marshal(payload)
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
			if m.Type == "complete" {
				return
			}
		}
	}()

	// Optimize a small tour under the chosen run id
	body, _ := json.Marshal(map[string]any{
		"runId": runID,
		"depot": map[string]float64{"longitude": -73.98, "latitude": 40.74},
		"shipments": []map[string]any{
			{"id": "s1", "to_address": map[string]float64{"longitude": -73.99, "latitude": 40.73}},
			{"id": "s2", "to_address": map[string]float64{"longitude": -73.95, "latitude": 40.78}},
			{"id": "s3", "to_address": map[string]float64{"longitude": -74.01, "latitude": 40.70}},
			{"id": "s4", "to_address": map[string]float64{"longitude": -73.90, "latitude": 40.85}},
		},
		"iterations": 50,
	})
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/routes/optimize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if tok := os.Getenv("AUTH_TOKEN"); tok != "" {
		req.Header.Set("Authorization", tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var out struct {
		Route         []int  `json:"route"`
		EstimatedTime string `json:"estimatedTime"`
		EstimatedCost string `json:"estimatedCost"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatal(err)
	}
	log.Printf("HTTP %d route=%v time=%s cost=%s", resp.StatusCode, out.Route, out.EstimatedTime, out.EstimatedCost)

	select {
	case <-time.After(5 * time.Second):
	case <-done:
	}
}
