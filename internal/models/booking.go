package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the payment lifecycle state of a booking.
// pending is the only non-terminal state; confirmed and failed are final.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusFailed    BookingStatus = "failed"
)

// Booking is a therapy session booking row in Postgres.
// InvoiceID correlates provider callbacks with the booking; it starts as the
// locally generated id and may be overwritten by the provider's own id once
// the payment push is accepted.
type Booking struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	Phone     string        `json:"phone"`
	InvoiceID string        `json:"invoice_id"`
	Status    BookingStatus `json:"status"`
}
