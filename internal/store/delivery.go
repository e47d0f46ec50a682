package store

import "time"

// WebhookDelivery is one queued webhook attempt. The worker fetches due
// rows, posts them and reports the outcome back through the store.
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
	CreatedAt      time.Time
}
