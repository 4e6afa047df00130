package store

import "time"

// Delivery states.
const (
	StatusPending   = "pending"
	StatusRetry     = "retry"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// WebhookDelivery is a queued POST as the worker sees it.
type WebhookDelivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

// DeliveryInfo is the admin view of a delivery; secrets and payloads are omitted.
type DeliveryInfo struct {
	ID            string     `json:"id"`
	EventType     string     `json:"eventType"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	URL           string     `json:"url"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	ResponseCode  int        `json:"responseCode,omitempty"`
}

// DeadLetter is a delivery that exhausted its attempts.
type DeadLetter struct {
	ID           string    `json:"id"`
	DeliveryID   string    `json:"deliveryId"`
	EventType    string    `json:"eventType"`
	URL          string    `json:"url"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"lastError,omitempty"`
	ResponseCode int       `json:"responseCode,omitempty"`
	LatencyMs    int       `json:"latencyMs,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
