package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/tuliahq/tulia-backend/internal/config"
	"github.com/tuliahq/tulia-backend/internal/services"
)

var (
	bookingService        *services.BookingService
	paymentPublishableKey string
	paymentWebhookSecret  string
	paymentTestMode       bool
)

// InitPaymentServices wires the payment client and booking orchestrator from
// config. An empty secret key leaves payments disabled; bookings can still be
// created but no STK push is sent.
func InitPaymentServices(cfg *config.Config) {
	client := services.NewPaymentClient(cfg.IntaSendSecretKey, cfg.IntaSendTestMode)
	bookingService = services.NewBookingService(client)
	paymentPublishableKey = cfg.IntaSendPublishableKey
	paymentWebhookSecret = cfg.IntaSendWebhookSecret
	paymentTestMode = cfg.IntaSendTestMode
	if client == nil {
		log.Println("⚠️  INTASEND_SECRET_KEY not set; payment features disabled")
	}
}

type CreateBookingRequest struct {
	Phone string `json:"phone"`
}

type ListBookingsResponse struct {
	Success    bool                     `json:"success"`
	Message    string                   `json:"message,omitempty"`
	Bookings   []map[string]interface{} `json:"bookings"`
	HasPending bool                     `json:"has_pending"`
}

// CreateBooking starts a therapy booking: persists a pending booking and
// triggers an M-Pesa STK push to the caller's phone.
func CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireAuth(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Authentication required"})
		return
	}

	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Invalid request body"})
		return
	}

	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Missing phone number"})
		return
	}

	user, err := services.GetUserByID(userID)
	if err != nil || user == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Authentication required"})
		return
	}

	invoiceID, err := bookingService.CreateBooking(r.Context(), user, phone)
	if err != nil {
		log.Printf("[CreateBooking] Failed to create booking: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Failed to create booking"})
		return
	}

	// Push outcome does not change the response: the client is told to check
	// their phone either way, and the callback settles the booking.
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Enter PIN on your Phone",
		"invoice": invoiceID,
	})
}

// ListBookings returns the caller's bookings, newest first, plus a flag for
// whether any booking is still awaiting payment.
func ListBookings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireAuth(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(ListBookingsResponse{
			Success:  false,
			Message:  "Authentication required",
			Bookings: []map[string]interface{}{},
		})
		return
	}

	bookings, hasPending, err := bookingService.ListBookings(userID)
	if err != nil {
		log.Printf("[ListBookings] Failed to fetch bookings: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ListBookingsResponse{
			Success:  false,
			Message:  "Failed to fetch bookings",
			Bookings: []map[string]interface{}{},
		})
		return
	}

	result := make([]map[string]interface{}, 0, len(bookings))
	for _, b := range bookings {
		result = append(result, map[string]interface{}{
			"id":         b.ID.String(),
			"phone":      b.Phone,
			"invoice_id": b.InvoiceID,
			"status":     b.Status,
			"created_at": b.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListBookingsResponse{
		Success:    true,
		Bookings:   result,
		HasPending: hasPending,
	})
}
