// Package integrations defines the interface for external booking
// feeds that push reservations into the dispatch pool.
package integrations

import "darpnav/internal/model"

// ReservationSource is the minimal interface for a booking feed.
type ReservationSource interface {
	Name() string
	Authenticate(cfg map[string]any) (AuthState, error)
	FetchReservations(since string, cursor string) (Batch, error)
	Ack(ids []string) error
}

type AuthState struct {
	Method string
	Token  string
}

// Batch is one page of fetched reservations; Cursor resumes the feed.
type Batch struct {
	Reservations []model.ReservationIn
	Cursor       string
}
