package services

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tuliahq/tulia-backend/internal/database"
	"github.com/tuliahq/tulia-backend/internal/models"
)

const paymentEventsCollection = "payment_events"

// EnsurePaymentEventIndexes configures indexes for the payment_events
// collection. Called on startup from main after Mongo has connected.
func EnsurePaymentEventIndexes(ctx context.Context) error {
	col := database.DB.Collection(paymentEventsCollection)

	// Compound index on (invoice_id, received_at) for per-invoice audit reads.
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "invoice_id", Value: 1},
				{Key: "received_at", Value: -1},
			},
			Options: options.Index().SetName("idx_invoice_received"),
		},
	}

	for _, m := range indexes {
		if _, err := col.Indexes().CreateOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// RecordPaymentEventAsync archives a raw provider exchange to MongoDB.
// Fire-and-forget: the audit trail must never slow down or fail the payment
// flow, and a missing Mongo connection just means no archive.
func RecordPaymentEventAsync(invoiceID string, kind models.PaymentEventKind, payload []byte) {
	if database.DB == nil {
		return
	}

	event := models.PaymentEvent{
		ID:         primitive.NewObjectID(),
		InvoiceID:  invoiceID,
		Kind:       kind,
		Payload:    string(payload),
		ReceivedAt: time.Now().UTC(),
	}

	go func(e models.PaymentEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		col := database.DB.Collection(paymentEventsCollection)
		if _, err := col.InsertOne(ctx, e); err != nil {
			log.Printf("[PaymentEvents] failed to archive %s event for invoice %s: %v", e.Kind, e.InvoiceID, err)
		}
	}(event)
}

// ListPaymentEvents returns the archived provider exchanges for one invoice,
// newest first. Used by the support/audit endpoint.
func ListPaymentEvents(ctx context.Context, invoiceID string, limit int64) ([]models.PaymentEvent, error) {
	if database.DB == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	col := database.DB.Collection(paymentEventsCollection)

	opts := options.Find().
		SetSort(bson.D{{Key: "received_at", Value: -1}}).
		SetLimit(limit)

	cur, err := col.Find(ctx, bson.M{"invoice_id": invoiceID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var events []models.PaymentEvent
	for cur.Next(ctx) {
		var e models.PaymentEvent
		if err := cur.Decode(&e); err != nil {
			continue
		}
		events = append(events, e)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// CleanupOldPaymentEvents removes archived events older than the given age.
// Bookings themselves are never deleted; only the raw payload archive rotates.
func CleanupOldPaymentEvents(daysOld int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoffTime := time.Now().Add(-time.Duration(daysOld) * 24 * time.Hour)

	result, err := database.DB.Collection(paymentEventsCollection).DeleteMany(ctx, bson.M{
		"received_at": bson.M{
			"$lt": cutoffTime,
		},
	})
	if err != nil {
		return err
	}

	if result.DeletedCount > 0 {
		log.Printf("Cleaned up %d payment events older than %d days", result.DeletedCount, daysOld)
	}

	return nil
}

// StartPaymentEventCleanup starts a background goroutine that periodically
// rotates the payment event archive.
// Default: runs daily, deletes events older than 90 days.
func StartPaymentEventCleanup(intervalHours int, retentionDays int) {
	if intervalHours <= 0 {
		intervalHours = 24
	}
	if retentionDays <= 0 {
		retentionDays = 90
	}

	go func() {
		ticker := time.NewTicker(time.Duration(intervalHours) * time.Hour)
		defer ticker.Stop()

		// Run cleanup immediately on startup
		_ = CleanupOldPaymentEvents(retentionDays)

		for range ticker.C {
			_ = CleanupOldPaymentEvents(retentionDays)
		}
	}()
}
