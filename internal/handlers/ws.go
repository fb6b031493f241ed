package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tuliahq/tulia-backend/internal/services"
)

var bookingUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS for WebSocket is handled at the HTTP layer already.
		return true
	},
}

const (
	bookingWriteDeadline = 5 * time.Second
	bookingPingInterval  = 30 * time.Second
	bookingPongDeadline  = 90 * time.Second
)

// BookingWebSocket streams booking status updates to the authenticated user,
// so the dashboard can reflect payment confirmation without polling.
// Authentication is done via the session token (Authorization: Bearer <token>),
// with a query-parameter fallback for browser WebSocket clients.
func BookingWebSocket(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing session token", http.StatusUnauthorized)
			return
		}
	}

	userID, ok, err := services.ValidateSession(token)
	if err != nil || !ok {
		http.Error(w, "invalid session token", http.StatusUnauthorized)
		return
	}

	conn, err := bookingUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := services.SubscribeBookingUpdates(userID)
	defer unsubscribe()

	done := make(chan struct{})

	// Writer goroutine: booking events plus keepalive pings. Every write to
	// the connection happens here.
	go func() {
		ticker := time.NewTicker(bookingPingInterval)
		defer ticker.Stop()
		for {
			select {
			case evt, open := <-events:
				if !open {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(bookingWriteDeadline))
				if err := conn.WriteJSON(evt); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(bookingWriteDeadline))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Reader loop: clients send nothing meaningful; reads only detect
	// disconnects and keep the deadline fresh via pongs.
	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(bookingPongDeadline))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(bookingPongDeadline))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			close(done)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(bookingPongDeadline))
	}
}
