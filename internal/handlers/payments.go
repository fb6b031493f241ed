package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tuliahq/tulia-backend/internal/database"
	"github.com/tuliahq/tulia-backend/internal/services"
)

// signatureHeader carries the provider's webhook signature: a hex
// HMAC-SHA256 of the raw request body, optionally prefixed with "sha256=".
const signatureHeader = "X-Intasend-Signature"

// verifyCallbackSignature checks the webhook signature against the raw body.
func verifyCallbackSignature(body []byte, header, secret string) bool {
	header = strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	received, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(received, mac.Sum(nil))
}

// PaymentCallback receives payment status updates from the provider.
// The provider retries on non-2xx, so everything except a missing invoice id
// or a bad signature is acknowledged with 200; reconciliation failures are
// logged and settled by a later retry.
func PaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "invalid request body"})
		return
	}

	if paymentWebhookSecret != "" {
		if !verifyCallbackSignature(body, r.Header.Get(signatureHeader), paymentWebhookSecret) {
			log.Println("⚠️  Payment callback rejected: invalid signature")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]interface{}{"error": "invalid signature"})
			return
		}
	}

	if err := bookingService.ReconcileCallback(body); err != nil {
		if errors.Is(err, services.ErrNoInvoice) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{"error": "no invoice provided"})
			return
		}
		log.Printf("[PaymentCallback] Reconcile failed: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
}

// PaymentStatus proxies the provider's status response for an invoice.
func PaymentStatus(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "invoiceID")
	if invoiceID == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "missing invoice id"})
		return
	}

	if !bookingService.PaymentsEnabled() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "Payment service not configured"})
		return
	}

	payload, err := bookingService.BookingStatus(r.Context(), invoiceID)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

// PaymentSuccess is the direct return path after a completed checkout: it
// confirms the caller's most recent pending booking and marks them subscribed.
// The provider callback remains the source of truth; this only covers clients
// that come back before the callback lands.
func PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireAuth(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Authentication required"})
		return
	}

	confirmed, err := bookingService.ConfirmLatestPending(userID)
	if err != nil {
		log.Printf("[PaymentSuccess] Failed to confirm booking: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Failed to record payment"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":           true,
		"message":           "Payment recorded",
		"booking_confirmed": confirmed,
	})
}

// PaymentsConfig exposes the client-side payment configuration.
func PaymentsConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"publishable_key": paymentPublishableKey,
		"test_mode":       paymentTestMode,
	})
}

// DebugPush sends a sandbox STK push and returns the raw provider response.
// Only available in test mode.
func DebugPush(w http.ResponseWriter, r *http.Request) {
	if !paymentTestMode {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	if !bookingService.PaymentsEnabled() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "Payment service not configured"})
		return
	}

	var req struct {
		Phone string `json:"phone"`
	}
	// Body is optional; a missing or invalid one falls back to the test number.
	_ = json.NewDecoder(r.Body).Decode(&req)
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		phone = "+254712345678"
	}

	payload, err := bookingService.DebugPush(r.Context(), phone)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

// PaymentEvents returns the archived provider payloads for one of the
// caller's own invoices, newest first.
func PaymentEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireAuth(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Authentication required"})
		return
	}

	invoiceID := chi.URLParam(r, "invoiceID")
	if invoiceID == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Missing invoice id"})
		return
	}

	var ownerID uuid.UUID
	err := database.PostgresDB.QueryRow(
		"SELECT user_id FROM bookings WHERE invoice_id = $1",
		invoiceID,
	).Scan(&ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Booking not found"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Database error"})
		return
	}
	if ownerID != userID {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Access denied"})
		return
	}

	limit := int64(50)
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.ParseInt(limitStr, 10, 64); err == nil {
			limit = parsed
		}
	}

	events, err := services.ListPaymentEvents(r.Context(), invoiceID, limit)
	if err != nil {
		log.Printf("[PaymentEvents] Failed to fetch events: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Failed to fetch events"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"events":  events,
	})
}
