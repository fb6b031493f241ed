package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tuliahq/tulia-backend/internal/database"
	"github.com/tuliahq/tulia-backend/internal/models"
)

const bookingChannelPrefix = "bookings:user:"

// BookingEvent is the payload broadcast over Redis and WebSocket when a
// booking changes state. The Redis channel name carries the owning user.
type BookingEvent struct {
	Type      string    `json:"type"`
	BookingID string    `json:"booking_id"`
	InvoiceID string    `json:"invoice_id,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

const EventTypeBookingUpdate = "booking_update"

// bookingHub tracks per-user subscriber channels on this instance. Events
// arrive via Redis pub/sub so every instance sees every update regardless of
// which one handled the callback.
type bookingHub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan BookingEvent]struct{}
}

var (
	bookingStream        = &bookingHub{subs: make(map[uuid.UUID]map[chan BookingEvent]struct{})}
	bookingStreamStarted sync.Once
)

// SubscribeBookingUpdates registers a listener for one user's booking events.
// The returned cancel func must be called when the consumer goes away.
func SubscribeBookingUpdates(userID uuid.UUID) (<-chan BookingEvent, func()) {
	ch := make(chan BookingEvent, 8)

	bookingStream.mu.Lock()
	if bookingStream.subs[userID] == nil {
		bookingStream.subs[userID] = make(map[chan BookingEvent]struct{})
	}
	bookingStream.subs[userID][ch] = struct{}{}
	bookingStream.mu.Unlock()

	cancel := func() {
		bookingStream.mu.Lock()
		if set, ok := bookingStream.subs[userID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(bookingStream.subs, userID)
			}
		}
		bookingStream.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// fanOutBookingEvent delivers an event to this instance's subscribers for the
// user. Slow consumers are skipped rather than blocked on.
func fanOutBookingEvent(userID uuid.UUID, event BookingEvent) {
	bookingStream.mu.RLock()
	defer bookingStream.mu.RUnlock()

	for ch := range bookingStream.subs[userID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// PublishBookingUpdate announces a booking state change on the user's Redis
// channel. Fire-and-forget: a Redis outage must never fail the payment flow,
// the frontend falls back to its status poll.
func PublishBookingUpdate(userID, bookingID uuid.UUID, invoiceID string, status models.BookingStatus) {
	if database.RedisClient == nil {
		return
	}

	event := BookingEvent{
		Type:      EventTypeBookingUpdate,
		BookingID: bookingID.String(),
		InvoiceID: invoiceID,
		Status:    string(status),
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[BookingStream] failed to marshal event: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := database.RedisClient.Publish(ctx, bookingChannelPrefix+userID.String(), data).Err(); err != nil {
		log.Printf("[BookingStream] failed to publish update for booking %s: %v", bookingID, err)
	}
}

// StartBookingStream ensures a single shared Redis listener per instance.
func StartBookingStream(ctx context.Context) {
	bookingStreamStarted.Do(func() {
		go runBookingSubscriber(ctx)
	})
}

func runBookingSubscriber(ctx context.Context) {
	client := database.RedisClient
	if client == nil {
		log.Println("Redis client not initialized; booking stream not started")
		return
	}

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			pubsub := client.PSubscribe(ctx, bookingChannelPrefix+"*")
			defer pubsub.Close()

			log.Println("✅ Booking Redis subscriber started (pattern: " + bookingChannelPrefix + "*)")

			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					log.Printf("Redis subscriber error: %v", err)
					time.Sleep(backoff)
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
					return
				}

				backoff = time.Second

				userID, err := uuid.Parse(strings.TrimPrefix(msg.Channel, bookingChannelPrefix))
				if err != nil {
					log.Printf("unrecognized booking channel %q", msg.Channel)
					continue
				}

				var event BookingEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("failed to unmarshal booking event: %v", err)
					continue
				}

				fanOutBookingEvent(userID, event)
			}
		}()
	}
}
