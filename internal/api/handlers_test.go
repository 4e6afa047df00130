package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"shiproute/internal/auth"
	"shiproute/internal/config"
	"shiproute/internal/model"
	"shiproute/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.FromLookup(func(string) string { return "" })
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.RateRPS = 0
	s, err := NewServer(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

const scenarioBody = `{"depot":{"longitude":0,"latitude":0},"shipments":[
	{"id":"a","to_address":{"longitude":1,"latitude":0}},
	{"id":"b","to_address":{"longitude":2,"latitude":0}},
	{"id":"c","to_address":{"longitude":0,"latitude":1}}],
	"iterations":20,"ants":5,"seed":7%s}`

func scenario(extra string) []byte { return []byte(strings.ReplaceAll(scenarioBody, "%s", extra)) }

func do(t *testing.T, h http.HandlerFunc, method, path string, body []byte, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func problemTitle(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var p Problem
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("problem body: %v (%s)", err, rr.Body.String())
	}
	return p.Title
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestOptimizeHandler(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s.SubscriptionsHandler, http.MethodPost, "/v1/subscriptions",
		[]byte(`{"url":"http://hooks.example/x","events":["route.optimized"]}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("subscribe: %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", scenario(""))
	if rr.Code != 200 {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
	}
	var resp model.OptimizeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.RunID == "" || resp.Partial {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.Route) != 5 || resp.Route[0] != 0 || resp.Route[4] != 0 {
		t.Fatalf("route not a closed tour: %v", resp.Route)
	}
	if resp.StopOrder[0] != "depot" || resp.StopOrder[4] != "depot" {
		t.Fatalf("stop order %v", resp.StopOrder)
	}
	if resp.Optimization.Algorithm != "Ant Colony Optimization" || resp.Optimization.Iterations != 20 || resp.Optimization.Seed != 7 {
		t.Fatalf("optimization metadata %+v", resp.Optimization)
	}
	if !strings.HasSuffix(resp.EstimatedTime, " hours") {
		t.Fatalf("estimated time %q", resp.EstimatedTime)
	}

	items, _, err := s.Store.ListWebhookDeliveries(context.Background(), defaultTenant, store.StatusPending, "", 10)
	if err != nil || len(items) != 1 || items[0].EventType != model.WebhookRouteOptimized {
		t.Fatalf("expected one queued route.optimized delivery, got %+v err=%v", items, err)
	}
}

func TestOptimizeValidation(t *testing.T) {
	s := newTestServer(t)
	cases := map[string]string{
		"missing latitude": `{"depot":{"longitude":0,"latitude":0},"shipments":[{"to_address":{"longitude":1}}]}`,
		"missing depot":    `{"shipments":[]}`,
		"lat out of range": `{"depot":{"longitude":0,"latitude":91},"shipments":[]}`,
		"bad evaporation":  `{"depot":{"longitude":0,"latitude":0},"evaporationRate":1}`,
		"bad run id":       `{"runId":"nope","depot":{"longitude":0,"latitude":0}}`,
	}
	for name, body := range cases {
		rr := do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", []byte(body))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: got %d %s", name, rr.Code, rr.Body.String())
		}
	}
	rr := do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", []byte(`{`))
	if rr.Code != http.StatusBadRequest || problemTitle(t, rr) != "Invalid JSON" {
		t.Fatalf("invalid json: %d", rr.Code)
	}
	rr = do(t, s.OptimizeHandler, http.MethodGet, "/v1/routes/optimize", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET optimize: %d", rr.Code)
	}
}

func TestOptimizeEmptyShipments(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", []byte(`{"depot":{"longitude":5,"latitude":5},"shipments":[]}`))
	if rr.Code != 200 {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
	}
	var resp model.OptimizeResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Route) != 2 || resp.Distance != 0 || resp.EstimatedCost != "3.00" {
		t.Fatalf("degenerate response %+v", resp)
	}
}

func TestOptimizeTooManyStops(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s.AdminOptimizerConfigHandler, http.MethodPut, "/v1/admin/optimizer/config", []byte(`{"config":{"maxStops":2}}`))
	if rr.Code != 200 {
		t.Fatalf("put config: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", scenario(""))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d %s", rr.Code, rr.Body.String())
	}
	var p Problem
	_ = json.Unmarshal(rr.Body.Bytes(), &p)
	if p.Type != "/problems/too-many-stops" || rr.Header().Get("Content-Type") != "application/problem+json" {
		t.Fatalf("problem %+v content-type %q", p, rr.Header().Get("Content-Type"))
	}
	// other tenants keep the default
	rr = do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", scenario(""), "X-Tenant-Id", "t_other")
	if rr.Code != 200 {
		t.Fatalf("other tenant: %d", rr.Code)
	}
}

func TestOptimizeAuthorization(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", scenario(""), "X-Role", "viewer")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer: want 403, got %d", rr.Code)
	}
	rr = do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", scenario(""), "X-Role", "dispatcher")
	if rr.Code != 200 {
		t.Fatalf("dispatcher: want 200, got %d", rr.Code)
	}

	v, err := auth.NewVerifier(auth.ModeHMAC, []byte("secret"), "tenant", "role")
	if err != nil {
		t.Fatal(err)
	}
	s.Auth = v
	rr = do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", scenario(""), "X-Tenant-Id", "t1")
	if rr.Code != http.StatusUnauthorized || rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("hmac without token: want 401, got %d", rr.Code)
	}
	rr = do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", scenario(""), "Authorization", "Bearer not-a-jwt")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: want 401, got %d", rr.Code)
	}
}

func TestOptimizeRateLimited(t *testing.T) {
	s := newTestServer(t)
	s.Limiter = NewRateLimiter(0.001, 1)
	if rr := do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", scenario("")); rr.Code != 200 {
		t.Fatalf("first: %d", rr.Code)
	}
	rr := do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", scenario(""))
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second: want 429, got %d", rr.Code)
	}
	// buckets are per tenant
	if rr := do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", scenario(""), "X-Tenant-Id", "t2"); rr.Code != 200 {
		t.Fatalf("other tenant: %d", rr.Code)
	}
}

func TestOptimizerConfigMerge(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s.AdminOptimizerConfigHandler, http.MethodPut, "/v1/admin/optimizer/config", []byte(`{"config":{"alpha":2,"iterations":7}}`))
	if rr.Code != 200 {
		t.Fatalf("put: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, s.OptimizerConfigHandler, http.MethodGet, "/v1/optimizer/config", nil)
	var got struct {
		Defaults struct {
			Alpha      float64 `json:"alpha"`
			Beta       float64 `json:"beta"`
			Iterations int     `json:"iterations"`
			Ants       int     `json:"ants"`
		} `json:"defaults"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Defaults.Alpha != 2 || got.Defaults.Iterations != 7 || got.Defaults.Beta != 2 || got.Defaults.Ants != 10 {
		t.Fatalf("merged config %+v", got.Defaults)
	}

	// request fields override tenant config
	rr = do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", []byte(`{"depot":{"longitude":0,"latitude":0},"shipments":[{"to_address":{"longitude":1,"latitude":1}}],"iterations":3}`))
	var resp model.OptimizeResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Optimization.Iterations != 3 {
		t.Fatalf("request override ignored: %+v", resp.Optimization)
	}

	for _, bad := range []string{`{"config":{"evaporationRate":1.5}}`, `{"config":{"ants":0}}`, `{}`} {
		rr = do(t, s.AdminOptimizerConfigHandler, http.MethodPut, "/v1/admin/optimizer/config", []byte(bad))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: want 400, got %d", bad, rr.Code)
		}
	}
	rr = do(t, s.AdminOptimizerConfigHandler, http.MethodGet, "/v1/admin/optimizer/config", nil, "X-Role", "dispatcher")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-admin: want 403, got %d", rr.Code)
	}
}

func TestSubscriptionsCRUD(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s.SubscriptionsHandler, http.MethodPost, "/v1/subscriptions", []byte(`{"url":"http://x","events":["route.unknown"]}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown event: want 400, got %d", rr.Code)
	}
	rr = do(t, s.SubscriptionsHandler, http.MethodPost, "/v1/subscriptions", []byte(`{"url":"http://x","events":["route.optimization_failed"]}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d", rr.Code)
	}
	var sub model.Subscription
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)
	if sub.TenantID != defaultTenant {
		t.Fatalf("subscription tenant %q", sub.TenantID)
	}

	rr = do(t, s.SubscriptionsHandler, http.MethodGet, "/v1/subscriptions?limit=10", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), sub.ID) {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, s.SubscriptionByIDHandler, http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	rr = do(t, s.SubscriptionByIDHandler, http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: want 404, got %d", rr.Code)
	}
}

func TestWebhookAdminHandlers(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	id, _ := s.Store.EnqueueWebhook(ctx, defaultTenant, "s1", model.WebhookRouteOptimized, "http://x", "", []byte(`{}`))
	rr := do(t, s.WebhookDeliveriesHandler, http.MethodGet, "/v1/admin/webhook-deliveries?status=pending", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), id) {
		t.Fatalf("list deliveries: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, s.WebhookDeliveryRetryHandler, http.MethodPost, "/v1/admin/webhook-deliveries/"+id+"/retry", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("retry: %d", rr.Code)
	}
	rr = do(t, s.WebhookDeliveryRetryHandler, http.MethodPost, "/v1/admin/webhook-deliveries/missing/retry", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("retry missing: want 404, got %d", rr.Code)
	}

	if err := s.Store.FailWebhookDelivery(ctx, id, "http 500", 500, 3); err != nil {
		t.Fatal(err)
	}
	rr = do(t, s.WebhookDLQHandler, http.MethodGet, "/v1/admin/webhook-dlq", nil)
	var page struct {
		Items []store.DeadLetter `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &page)
	if rr.Code != 200 || len(page.Items) != 1 {
		t.Fatalf("dlq list: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, s.WebhookDLQHandler, http.MethodPost, "/v1/admin/webhook-dlq/"+page.Items[0].ID+"/requeue", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("requeue: %d", rr.Code)
	}
	rr = do(t, s.WebhookDLQHandler, http.MethodPost, "/v1/admin/webhook-dlq/"+page.Items[0].ID+"/requeue", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second requeue: want 404, got %d", rr.Code)
	}
}

func TestEventsStreamReplaysFinishedRun(t *testing.T) {
	s := newTestServer(t)
	const rid = "6f1c2b8e-4c1e-4a7d-9a3e-2b5d8c7f0a11"
	if rr := do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", scenario(`,"runId":"`+rid+`"`)); rr.Code != 200 {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
	}
	rr := do(t, s.OptimizationEventsHandler, http.MethodGet, "/v1/optimizations/"+rid+"/events/stream", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "event: optimization.completed") {
		t.Fatalf("stream: %d %q", rr.Code, rr.Body.String())
	}
	// another tenant cannot see the run; the stream stays open until the client leaves
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/v1/optimizations/"+rid+"/events/stream", nil).WithContext(ctx)
	req.Header.Set("X-Tenant-Id", "t_other")
	rr = httptest.NewRecorder()
	s.OptimizationEventsHandler(rr, req)
	if strings.Contains(rr.Body.String(), "optimization.completed") {
		t.Fatalf("leaked run across tenants")
	}
}

func TestEventsStreamLive(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()
	const rid = "0b0d7a52-57c4-4c34-8d64-3f63d0a4d8a0"
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(ts.URL + "/v1/optimizations/" + rid + "/events/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	br := bufio.NewReader(resp.Body)
	if line, _ := br.ReadString('\n'); !strings.HasPrefix(line, ": subscribed") {
		t.Fatalf("first line %q", line)
	}

	post, err := client.Post(ts.URL+"/v1/routes/optimize", "application/json", bytes.NewReader(scenario(`,"runId":"`+rid+`"`)))
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != 200 {
		t.Fatalf("optimize: %d", post.StatusCode)
	}

	var seen []string
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended early after %v: %v", seen, err)
		}
		if ev, ok := strings.CutPrefix(strings.TrimSpace(line), "event: "); ok {
			seen = append(seen, ev)
			if ev == model.EventCompleted {
				break
			}
		}
	}
	// 20 iterations with PROGRESS_EVERY=10 gives two progress events
	want := []string{model.EventStarted, model.EventProgress, model.EventProgress, model.EventCompleted}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Fatalf("events %v, want %v", seen, want)
	}
}

func TestGraphQLHTTP(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s.GraphQLHTTPHandler, http.MethodPost, "/graphql", []byte(`{"query":"query { optimizerConfig }"}`))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"optimizerConfig"`) {
		t.Fatalf("optimizerConfig: %d %s", rr.Code, rr.Body.String())
	}
	body := []byte(`{"query":"mutation($input: OptimizeInput!) { optimizeRoutes(input: $input) }","variables":{"input":` + string(scenario("")) + `}}`)
	rr = do(t, s.GraphQLHTTPHandler, http.MethodPost, "/graphql", body)
	var out struct {
		Data struct {
			OptimizeRoutes model.OptimizeResponse `json:"optimizeRoutes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil || rr.Code != 200 {
		t.Fatalf("optimizeRoutes: %d %s", rr.Code, rr.Body.String())
	}
	if len(out.Data.OptimizeRoutes.Route) != 5 {
		t.Fatalf("route %v", out.Data.OptimizeRoutes.Route)
	}
	rr = do(t, s.GraphQLHTTPHandler, http.MethodPost, "/graphql", []byte(`{"query":"query { routes }"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unsupported: want 400, got %d", rr.Code)
	}
}

func TestGraphQLWSOptimizationEvents(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()
	const rid = "9d5f3a70-1e22-4b8c-a0e4-5c0f2d6e7b19"
	if rr := do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", scenario(`,"runId":"`+rid+`"`)); rr.Code != 200 {
		t.Fatalf("optimize: %d", rr.Code)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/graphql/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatal(err)
	}
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "connection_ack" {
		t.Fatalf("ack: %+v %v", msg, err)
	}
	payload, _ := json.Marshal(subscribePayload{
		Query:     "subscription($runId: ID!) { optimizationEvents(runId: $runId) }",
		Variables: map[string]any{"runId": rid},
	})
	if err := conn.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: payload}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "next" || !strings.Contains(string(msg.Payload), model.EventCompleted) {
		t.Fatalf("next: %+v %v", msg, err)
	}
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "complete" || msg.ID != "1" {
		t.Fatalf("complete: %+v %v", msg, err)
	}
}

func TestRoutesServesDocsAndMetrics(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	for _, path := range []string{"/openapi.yaml", "/openapi.json", "/docs", "/metrics", "/debug/info"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != 200 {
			t.Fatalf("%s: got %d", path, rr.Code)
		}
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	var doc map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil || doc["openapi"] != "3.0.3" {
		t.Fatalf("openapi json: %v %v", err, doc["openapi"])
	}
}

func TestTenantConfigCannotLiftServiceStopCap(t *testing.T) {
	s := newTestServer(t)
	s.Defaults.MaxStops = 2
	for _, body := range []string{`{"config":{"maxStops":0}}`, `{"config":{"maxStops":3}}`} {
		rr := do(t, s.AdminOptimizerConfigHandler, http.MethodPut, "/v1/admin/optimizer/config", []byte(body))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: want 400, got %d %s", body, rr.Code, rr.Body.String())
		}
	}
	if rr := do(t, s.AdminOptimizerConfigHandler, http.MethodPut, "/v1/admin/optimizer/config", []byte(`{"config":{"maxStops":1}}`)); rr.Code != 200 {
		t.Fatalf("tighter cap: %d %s", rr.Code, rr.Body.String())
	}

	// a config stored before the service cap was lowered still cannot exceed it
	unlimited := 0
	if err := s.Store.SaveOptimizerConfig(context.Background(), "t_old", model.OptimizerConfig{MaxStops: &unlimited}); err != nil {
		t.Fatal(err)
	}
	rr := do(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize", scenario(""), "X-Tenant-Id", "t_old")
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestCapStops(t *testing.T) {
	cases := []struct{ limit, want, got int }{
		{0, 0, 0},
		{0, 7, 7},
		{10, 0, 10},
		{10, 20, 10},
		{10, 4, 4},
	}
	for _, c := range cases {
		if got := capStops(c.limit, c.want); got != c.got {
			t.Fatalf("capStops(%d, %d) = %d, want %d", c.limit, c.want, got, c.got)
		}
	}
}

func TestStalledSubscriberStillSeesCompletion(t *testing.T) {
	s := newTestServer(t)
	s.ProgressEvery = 1
	const rid = "3a7e52c1-8f04-4d6b-b1c9-7e2d0f5a9c33"
	var req model.OptimizeRequest
	body := `{"runId":"` + rid + `","depot":{"longitude":0,"latitude":0},"shipments":[
		{"to_address":{"longitude":1,"latitude":0}},{"to_address":{"longitude":0,"latitude":1}}],
		"iterations":40,"ants":3,"seed":1}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatal(err)
	}
	ch := s.Broker.Subscribe(rid)
	defer s.Broker.Unsubscribe(rid, ch)
	if _, err := s.runOptimization(context.Background(), defaultTenant, req); err != nil {
		t.Fatal(err)
	}

	var last SSEEvent
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Type != model.EventCompleted {
		t.Fatalf("last buffered event %q, want %q", last.Type, model.EventCompleted)
	}
}

func dialGraphQLWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/graphql/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatal(err)
	}
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "connection_ack" {
		t.Fatalf("ack: %+v %v", msg, err)
	}
	return conn
}

func TestGraphQLWSRejectsDuplicateSubscriptionID(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()
	const rid = "c41d9e07-2b6a-4f3e-8d15-a09b7c6e2f48"
	conn := dialGraphQLWS(t, ts)
	defer conn.Close()

	payload, _ := json.Marshal(subscribePayload{
		Query:     "subscription($runId: ID!) { optimizationEvents(runId: $runId) }",
		Variables: map[string]any{"runId": rid},
	})
	for i := 0; i < 2; i++ {
		if err := conn.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: payload}); err != nil {
			t.Fatal(err)
		}
	}
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "error" || msg.ID != "1" || !strings.Contains(string(msg.Payload), "already exists") {
		t.Fatalf("duplicate: %+v %v", msg, err)
	}

	if err := conn.WriteJSON(wsMessage{Type: "complete", ID: "1"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "complete" || msg.ID != "1" {
		t.Fatalf("complete: %+v %v", msg, err)
	}
	b := s.Broker.(*Broker)
	b.mu.Lock()
	left := len(b.subs[rid])
	b.mu.Unlock()
	if left != 0 {
		t.Fatalf("%d broker subscriptions left after complete", left)
	}
}

func TestGraphQLWSRejectsCrossOrigin(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/graphql/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross origin: err=%v resp=%v", err, resp)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {ts.URL}})
	if err != nil {
		t.Fatalf("same origin: %v", err)
	}
	_ = conn.Close()

	listed := newTestServer(t)
	listed.AllowOrigins = []string{"http://evil.example"}
	lts := httptest.NewServer(listed.Routes())
	defer lts.Close()
	conn, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(lts.URL, "http")+"/graphql/ws", http.Header{"Origin": {"http://evil.example"}})
	if err != nil {
		t.Fatalf("listed origin: %v", err)
	}
	_ = conn.Close()
}
