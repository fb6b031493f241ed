package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuliahq/tulia-backend/internal/database"
	"github.com/tuliahq/tulia-backend/internal/services"
)

// setupMockDB swaps the global Postgres handle for a sqlmock and restores it
// when the test finishes.
func setupMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	prev := database.PostgresDB
	database.PostgresDB = db
	t.Cleanup(func() {
		database.PostgresDB = prev
		db.Close()
	})

	return mock
}

// setupPayments wires the handler package globals for a test and restores
// them afterwards.
func setupPayments(t *testing.T, webhookSecret string, testMode bool) {
	t.Helper()

	prevSvc := bookingService
	prevSecret := paymentWebhookSecret
	prevMode := paymentTestMode
	prevKey := paymentPublishableKey

	bookingService = services.NewBookingService(nil)
	paymentWebhookSecret = webhookSecret
	paymentTestMode = testMode
	paymentPublishableKey = "pk_test_123"

	t.Cleanup(func() {
		bookingService = prevSvc
		paymentWebhookSecret = prevSecret
		paymentTestMode = prevMode
		paymentPublishableKey = prevKey
	})
}

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyCallbackSignature(t *testing.T) {
	body := []byte(`{"invoice":"ABC123","status":"SUCCESS"}`)
	sig := signBody(body, "whsec")

	assert.True(t, verifyCallbackSignature(body, sig, "whsec"))
	assert.True(t, verifyCallbackSignature(body, "sha256="+sig, "whsec"))
	assert.True(t, verifyCallbackSignature(body, "  "+sig+" ", "whsec"))

	assert.False(t, verifyCallbackSignature(body, sig, "other-secret"))
	assert.False(t, verifyCallbackSignature(body, "not-hex", "whsec"))
	assert.False(t, verifyCallbackSignature(body, "", "whsec"))
}

func TestPaymentCallbackMissingInvoice(t *testing.T) {
	setupPayments(t, "", true)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", bytes.NewReader([]byte(`{"status":"SUCCESS"}`)))
	rec := httptest.NewRecorder()

	PaymentCallback(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentCallbackUnknownInvoiceAcknowledged(t *testing.T) {
	setupPayments(t, "", true)
	mock := setupMockDB(t)

	// Unknown invoice: looked up, found nothing, still acknowledged so the
	// provider does not retry forever.
	mock.ExpectQuery("SELECT id, user_id FROM bookings").
		WithArgs("UNKNOWN").
		WillReturnError(sql.ErrNoRows)

	body := []byte(`{"invoice":"UNKNOWN","status":"SUCCESS"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	PaymentCallback(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentCallbackSuccessConfirmsBooking(t *testing.T) {
	setupPayments(t, "", true)
	mock := setupMockDB(t)
	bookingID := uuid.New()
	userID := uuid.New()

	mock.ExpectQuery("SELECT id, user_id FROM bookings").
		WithArgs("ABC123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(bookingID.String(), userID.String()))
	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs("confirmed", bookingID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET is_subscribed").
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := []byte(`{"invoice":"ABC123","status":"SUCCESS"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	PaymentCallback(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentCallbackInternalFailureStillAcknowledged(t *testing.T) {
	setupPayments(t, "", true)
	mock := setupMockDB(t)

	// A broken database must not turn into a provider retry storm.
	mock.ExpectQuery("SELECT id, user_id FROM bookings").
		WithArgs("ABC123").
		WillReturnError(sql.ErrConnDone)

	body := []byte(`{"invoice":"ABC123","status":"SUCCESS"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	PaymentCallback(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPaymentCallbackRejectsBadSignature(t *testing.T) {
	setupPayments(t, "whsec", true)

	body := []byte(`{"invoice":"ABC123","status":"SUCCESS"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", bytes.NewReader(body))
	req.Header.Set(signatureHeader, signBody(body, "wrong-secret"))
	rec := httptest.NewRecorder()
	PaymentCallback(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Missing header entirely.
	req = httptest.NewRequest(http.MethodPost, "/api/payments/callback", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	PaymentCallback(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPaymentCallbackAcceptsValidSignature(t *testing.T) {
	setupPayments(t, "whsec", true)
	mock := setupMockDB(t)

	mock.ExpectQuery("SELECT id, user_id FROM bookings").
		WithArgs("ABC123").
		WillReturnError(sql.ErrNoRows)

	body := []byte(`{"invoice":"ABC123","status":"SUCCESS"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback", bytes.NewReader(body))
	req.Header.Set(signatureHeader, "sha256="+signBody(body, "whsec"))
	rec := httptest.NewRecorder()

	PaymentCallback(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentStatusWithoutPaymentsConfigured(t *testing.T) {
	setupPayments(t, "", true)

	r := chi.NewRouter()
	r.Get("/api/payments/status/{invoiceID}", PaymentStatus)

	req := httptest.NewRequest(http.MethodGet, "/api/payments/status/ABC123", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPaymentsConfig(t *testing.T) {
	setupPayments(t, "", true)

	req := httptest.NewRequest(http.MethodGet, "/api/payments/config", nil)
	rec := httptest.NewRecorder()

	PaymentsConfig(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pk_test_123", resp["publishable_key"])
	assert.Equal(t, true, resp["test_mode"])
}

func TestDebugPushHiddenOutsideTestMode(t *testing.T) {
	setupPayments(t, "", false)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/debug-push", nil)
	rec := httptest.NewRecorder()

	DebugPush(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateBookingRequiresAuth(t *testing.T) {
	setupPayments(t, "", true)

	req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader([]byte(`{"phone":"+254712345678"}`)))
	rec := httptest.NewRecorder()

	CreateBooking(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
