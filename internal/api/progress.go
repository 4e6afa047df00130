package api

import (
	"sync"
	"time"

	"shiproute/internal/model"
)

// ProgressCache holds the latest event per optimization run so a client
// that subscribes after a run started (or finished) still sees its state.
type ProgressCache struct {
	mu  sync.Mutex
	ttl time.Duration
	// key: tenant|runId
	m   map[string]cachedEvent
	now func() time.Time
}

type cachedEvent struct {
	evt model.OptimizationEvent
	at  time.Time
}

// NewProgressCache constructs a ProgressCache whose entries expire after ttl.
func NewProgressCache(ttl time.Duration) *ProgressCache {
	return &ProgressCache{ttl: ttl, m: map[string]cachedEvent{}, now: time.Now}
}

func (c *ProgressCache) key(tenant, runID string) string { return tenant + "|" + runID }

// Upsert records evt as the latest for its run and sweeps expired runs.
func (c *ProgressCache) Upsert(evt model.OptimizationEvent) {
	if evt.RunID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, v := range c.m {
		if now.Sub(v.at) > c.ttl {
			delete(c.m, k)
		}
	}
	c.m[c.key(evt.TenantID, evt.RunID)] = cachedEvent{evt: evt, at: now}
}

// Latest returns the most recent event for a tenant's run.
func (c *ProgressCache) Latest(tenant, runID string) (model.OptimizationEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[c.key(tenant, runID)]
	if !ok || c.now().Sub(v.at) > c.ttl {
		return model.OptimizationEvent{}, false
	}
	return v.evt, true
}

// terminal reports whether no further events follow evt.
func terminal(evt model.OptimizationEvent) bool {
	return evt.Type == model.EventCompleted || evt.Type == model.EventFailed
}
