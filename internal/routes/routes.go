package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/tuliahq/tulia-backend/internal/handlers"
)

func SetupRoutes(r *chi.Mux) {
	// Auth routes
	r.Post("/api/auth/signup", handlers.UserSignup)
	r.Post("/api/auth/signin", handlers.UserSignin)
	r.Post("/api/auth/signout", handlers.UserSignout)
	r.Get("/api/auth/me", handlers.GetMe)

	// Profile (username/password change + Cloudinary picture upload)
	r.Put("/api/profile", handlers.UpdateProfile)

	// Journaling routes
	r.Post("/api/journals", handlers.CreateJournal)
	r.Get("/api/journals", handlers.GetJournals)
	r.Post("/api/journals/quick-mood", handlers.QuickMood)

	// Mood aggregation (read-time, never persisted)
	r.Get("/api/mood/summary", handlers.MoodSummary)
	r.Get("/api/mood/trend", handlers.MoodTrend)

	// Booking routes
	r.Post("/api/bookings", handlers.CreateBooking)
	r.Get("/api/bookings", handlers.ListBookings)

	// Payment routes. The callback is the provider-facing webhook; everything
	// else is for the frontend.
	r.Post("/api/payments/callback", handlers.PaymentCallback)
	r.Get("/api/payments/status/{invoiceID}", handlers.PaymentStatus)
	r.Post("/api/payments/success", handlers.PaymentSuccess)
	r.Get("/api/payments/config", handlers.PaymentsConfig)
	r.Get("/api/payments/events/{invoiceID}", handlers.PaymentEvents)
	r.Post("/api/payments/debug-push", handlers.DebugPush)

	// WebSocket endpoint for live booking status updates
	r.Get("/ws/bookings", handlers.BookingWebSocket)
}
