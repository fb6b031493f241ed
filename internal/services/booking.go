package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tuliahq/tulia-backend/internal/database"
	"github.com/tuliahq/tulia-backend/internal/models"
)

const (
	// Session price in KES. Collection amount is fixed per booking.
	bookingAmount    = 1
	bookingNarrative = "Therapy Booking"
	fallbackEmail    = "customer@example.com"
)

// BookingService orchestrates the booking/payment lifecycle. payments is nil
// when no provider secret key is configured; bookings are still recorded but
// no STK push goes out.
type BookingService struct {
	payments *PaymentClient
}

func NewBookingService(payments *PaymentClient) *BookingService {
	return &BookingService{payments: payments}
}

// PaymentsEnabled reports whether a provider client is configured.
func (s *BookingService) PaymentsEnabled() bool {
	return s.payments != nil
}

// generateInvoiceID builds the locally unique invoice identifier for a new
// booking: user id fragment, current Unix timestamp, and a random fragment.
// The random part matters: invoice_id carries a UNIQUE constraint, so two
// bookings by the same user in the same second must not share an id.
func generateInvoiceID(userID uuid.UUID) string {
	nonce := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return fmt.Sprintf("INV_%s_%d_%s", strings.ReplaceAll(userID.String(), "-", "")[:8], time.Now().Unix(), nonce)
}

// CreateBooking persists a pending booking and then fires the payment push.
// The pending row is written BEFORE the provider is contacted so the booking
// survives a push failure or timeout; the user is told to enter their PIN
// either way and the callback settles the final state.
//
// Returns the locally generated invoice identifier. The stored row may end up
// under the provider's own invoice id when the push response carries one.
func (s *BookingService) CreateBooking(ctx context.Context, user *models.User, phone string) (string, error) {
	bookingID := uuid.New()
	invoiceID := generateInvoiceID(user.ID)

	_, err := database.PostgresDB.Exec(`
		INSERT INTO bookings (id, user_id, phone, invoice_id, status, created_at)
		VALUES ($1, $2, $3, $4, 'pending', NOW())
	`, bookingID, user.ID, phone, invoiceID)
	if err != nil {
		return "", fmt.Errorf("failed to create booking: %w", err)
	}

	if s.payments == nil {
		log.Println("⚠️  Payments disabled; booking created without STK push")
		return invoiceID, nil
	}

	email := user.Email
	if email == "" {
		email = fallbackEmail
	}

	resp, err := s.payments.Push(ctx, phone, email, bookingAmount, bookingNarrative)
	if err != nil {
		// The pending row already exists; the provider may still deliver a
		// callback for this attempt. Never fail the request here.
		log.Println("STK push failed but booking created:", err)
		return invoiceID, nil
	}

	RecordPaymentEventAsync(invoiceID, models.PaymentEventPushResponse, resp)

	// The provider correlates its callback by its own invoice id, so when the
	// push response carries a different one it wins over ours.
	if providerInvoice := ResolveInvoiceID(resp); providerInvoice != "" && providerInvoice != invoiceID {
		if _, err := database.PostgresDB.Exec(`
			UPDATE bookings SET invoice_id = $1 WHERE id = $2
		`, providerInvoice, bookingID); err != nil {
			log.Printf("[Booking] failed to store provider invoice %s: %v", providerInvoice, err)
		}
	}

	return invoiceID, nil
}

// ErrNoInvoice is returned when a callback payload has no resolvable invoice
// identifier. It is the only reconcile failure the provider gets told about.
var ErrNoInvoice = fmt.Errorf("no invoice provided")

// ReconcileCallback applies a provider callback to its booking. Unknown
// invoices and already-settled bookings are no-ops: callbacks arrive
// at-least-once and must be safe to replay. A case-insensitive "SUCCESS"
// confirms the booking and subscribes its owner; anything else fails it.
func (s *BookingService) ReconcileCallback(payload []byte) error {
	invoiceID, status := ParseCallback(payload)
	if invoiceID == "" {
		return ErrNoInvoice
	}

	RecordPaymentEventAsync(invoiceID, models.PaymentEventCallback, payload)

	var bookingID, userID uuid.UUID
	err := database.PostgresDB.QueryRow(`
		SELECT id, user_id FROM bookings WHERE invoice_id = $1
	`, invoiceID).Scan(&bookingID, &userID)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Println("No booking found for invoice:", invoiceID)
			return nil
		}
		return fmt.Errorf("failed to look up booking: %w", err)
	}

	newStatus := models.BookingStatusFailed
	if strings.EqualFold(status, "SUCCESS") {
		newStatus = models.BookingStatusConfirmed
	}

	// Guarded single-row update: confirmed and failed are terminal, so a
	// duplicate or late callback matches zero rows and changes nothing.
	res, err := database.PostgresDB.Exec(`
		UPDATE bookings SET status = $1 WHERE id = $2 AND status = 'pending'
	`, newStatus, bookingID)
	if err != nil {
		return fmt.Errorf("failed to update booking %s: %w", bookingID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		log.Printf("Booking %s already settled; callback ignored", bookingID)
		return nil
	}

	if newStatus == models.BookingStatusConfirmed {
		if err := SetUserSubscribed(userID); err != nil {
			return fmt.Errorf("booking confirmed but failed to subscribe user %s: %w", userID, err)
		}
	}

	log.Printf("Booking %s updated to %s", bookingID, newStatus)
	PublishBookingUpdate(userID, bookingID, invoiceID, newStatus)
	return nil
}

// ConfirmLatestPending settles the user's most recent pending booking through
// the direct success redirect and subscribes the user. Returns whether a
// booking was actually confirmed; the subscription flag is set either way,
// matching the redirect's meaning (payment went through on the provider UI).
func (s *BookingService) ConfirmLatestPending(userID uuid.UUID) (bool, error) {
	var bookingID uuid.UUID
	var invoiceID sql.NullString
	// The outer status guard re-applies the pending check on the row itself:
	// the subquery's snapshot can pick a booking that a racing callback
	// settles before this UPDATE locks it, and confirmed/failed are terminal.
	err := database.PostgresDB.QueryRow(`
		UPDATE bookings SET status = 'confirmed'
		WHERE id = (
			SELECT id FROM bookings
			WHERE user_id = $1 AND status = 'pending'
			ORDER BY created_at DESC
			LIMIT 1
		) AND status = 'pending'
		RETURNING id, invoice_id
	`, userID).Scan(&bookingID, &invoiceID)

	confirmed := true
	if err != nil {
		if err != sql.ErrNoRows {
			return false, fmt.Errorf("failed to confirm booking: %w", err)
		}
		confirmed = false
	}

	if err := SetUserSubscribed(userID); err != nil {
		return confirmed, fmt.Errorf("failed to subscribe user %s: %w", userID, err)
	}

	if confirmed {
		log.Printf("Booking %s confirmed via direct success", bookingID)
		PublishBookingUpdate(userID, bookingID, invoiceID.String, models.BookingStatusConfirmed)
	}
	return confirmed, nil
}

// BookingStatus proxies a synchronous status check to the provider. Unlike
// push failures this one surfaces: the frontend polls it and needs to know.
func (s *BookingService) BookingStatus(ctx context.Context, invoiceID string) ([]byte, error) {
	if s.payments == nil {
		return nil, fmt.Errorf("payment service not configured")
	}
	return s.payments.Status(ctx, invoiceID)
}

// ListBookings returns the user's bookings, newest first, plus whether any of
// them is still pending.
func (s *BookingService) ListBookings(userID uuid.UUID) ([]models.Booking, bool, error) {
	rows, err := database.PostgresDB.Query(`
		SELECT id, user_id, phone, invoice_id, status, created_at
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := []models.Booking{}
	hasPending := false
	for rows.Next() {
		var b models.Booking
		var invoiceID sql.NullString
		if err := rows.Scan(&b.ID, &b.UserID, &b.Phone, &invoiceID, &b.Status, &b.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("failed to scan booking: %w", err)
		}
		b.InvoiceID = invoiceID.String
		if b.Status == models.BookingStatusPending {
			hasPending = true
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	return bookings, hasPending, nil
}

// DebugPush fires a test STK push and returns the provider's raw response.
// Only reachable in test mode through the debug endpoint.
func (s *BookingService) DebugPush(ctx context.Context, phone string) ([]byte, error) {
	if s.payments == nil {
		return nil, fmt.Errorf("payment service not configured")
	}
	return s.payments.Push(ctx, phone, "test@example.com", bookingAmount, "Test Debug")
}
