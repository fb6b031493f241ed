package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tuliahq/tulia-backend/pkg/clientip"
)

// Booking creation rate limit: per-IP, 1 request per 20s with burst 3.
// Every booking attempt fires an STK push to the user's phone, so repeated
// submits both spam the payer and burn provider quota.

const (
	bookingCreateEvery     = 20 * time.Second
	bookingCreateBurst     = 3
	bookingCleanupInterval = 5 * time.Minute
	bookingLimiterTTL      = 30 * time.Minute
)

var (
	bookingEntries    = make(map[string]*limiterEntry)
	bookingEntriesMu  sync.Mutex
	bookingCleanupRun bool
)

var bookingPushPaths = map[string]bool{
	"/api/bookings":            true,
	"/api/payments/debug-push": true,
}

func getBookingLimiter(ip string) *rate.Limiter {
	bookingEntriesMu.Lock()
	defer bookingEntriesMu.Unlock()
	startBookingCleanupOnce()
	e, ok := bookingEntries[ip]
	if !ok {
		e = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(bookingCreateEvery), bookingCreateBurst),
			lastUse: time.Now(),
		}
		bookingEntries[ip] = e
	}
	e.lastUse = time.Now()
	return e.limiter
}

func startBookingCleanupOnce() {
	if bookingCleanupRun {
		return
	}
	bookingCleanupRun = true
	go func() {
		ticker := time.NewTicker(bookingCleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			bookingEntriesMu.Lock()
			now := time.Now()
			for ip, e := range bookingEntries {
				if now.Sub(e.lastUse) > bookingLimiterTTL {
					delete(bookingEntries, ip)
				}
			}
			bookingEntriesMu.Unlock()
		}
	}()
}

// BookingRateLimit applies a strict limit to the endpoints that trigger an
// STK push. Other routes pass through untouched. Returns 429 when exceeded.
func BookingRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !bookingPushPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientip.RealClientIP(r)
		if !getBookingLimiter(ip).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(bookingCreateBurst))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"message":"Too many booking attempts. Please wait before trying again."}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
