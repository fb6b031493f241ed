package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentEventKind marks the direction of a recorded provider exchange.
type PaymentEventKind string

const (
	PaymentEventCallback     PaymentEventKind = "callback"
	PaymentEventPushResponse PaymentEventKind = "push_response"
)

// PaymentEvent is stored in MongoDB and archives one raw payment provider
// exchange (inbound webhook or outbound push response). Append-only; old
// events are purged by the retention sweeper.
type PaymentEvent struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	InvoiceID  string             `bson:"invoice_id" json:"invoice_id"`
	Kind       PaymentEventKind   `bson:"kind" json:"kind"`
	Payload    string             `bson:"payload" json:"payload"` // raw JSON as received
	ReceivedAt time.Time          `bson:"received_at" json:"received_at"`
}
