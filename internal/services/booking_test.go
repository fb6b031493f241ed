package services

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuliahq/tulia-backend/internal/database"
	"github.com/tuliahq/tulia-backend/internal/models"
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

func testUser() *models.User {
	return &models.User{
		ID:       uuid.New(),
		Username: "amina",
		Email:    "amina@example.com",
		IsActive: true,
	}
}

func TestGenerateInvoiceID(t *testing.T) {
	user := testUser()
	invoiceID := generateInvoiceID(user.ID)

	assert.True(t, strings.HasPrefix(invoiceID, "INV_"), "got %q", invoiceID)
	parts := strings.Split(invoiceID, "_")
	require.Len(t, parts, 4)
	assert.Len(t, parts[1], 8)
	assert.Len(t, parts[3], 6)
}

func TestGenerateInvoiceIDUniqueWithinSameSecond(t *testing.T) {
	// invoice_id is UNIQUE in Postgres, so a double-submit landing in the
	// same second must still produce distinct local ids.
	user := testUser()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := generateInvoiceID(user.ID)
		assert.False(t, seen[id], "duplicate invoice id %q", id)
		seen[id] = true
	}
}

func TestCreateBookingPaymentsDisabled(t *testing.T) {
	mock := setupMockDB(t)
	user := testUser()

	// The pending row is still written even though no push goes out.
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(sqlmock.AnyArg(), user.ID, "+254712345678", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewBookingService(nil)
	invoiceID, err := svc.CreateBooking(context.Background(), user, "+254712345678")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(invoiceID, "INV_"))
	assert.False(t, svc.PaymentsEnabled())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBookingSurvivesPushFailure(t *testing.T) {
	mock := setupMockDB(t)
	user := testUser()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	// Only the insert happens: the provider error is logged, the row stays
	// pending and no invoice update runs.
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(sqlmock.AnyArg(), user.ID, "+254712345678", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewBookingService(testPaymentClient(srv.URL))
	invoiceID, err := svc.CreateBooking(context.Background(), user, "+254712345678")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(invoiceID, "INV_"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBookingAdoptsProviderInvoiceID(t *testing.T) {
	mock := setupMockDB(t)
	user := testUser()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"invoice":"ABC123"}`))
	}))
	defer srv.Close()

	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(sqlmock.AnyArg(), user.ID, "+254712345678", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The provider's invoice id replaces the locally generated one.
	mock.ExpectExec("UPDATE bookings SET invoice_id").
		WithArgs("ABC123", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewBookingService(testPaymentClient(srv.URL))
	invoiceID, err := svc.CreateBooking(context.Background(), user, "+254712345678")

	require.NoError(t, err)
	// The caller still gets the local id; the stored row carries the provider's.
	assert.True(t, strings.HasPrefix(invoiceID, "INV_"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileCallbackMissingInvoice(t *testing.T) {
	svc := NewBookingService(nil)
	err := svc.ReconcileCallback([]byte(`{"status":"SUCCESS"}`))
	assert.ErrorIs(t, err, ErrNoInvoice)
}

func TestReconcileCallbackUnknownInvoiceIsNoOp(t *testing.T) {
	mock := setupMockDB(t)

	mock.ExpectQuery("SELECT id, user_id FROM bookings").
		WithArgs("UNKNOWN").
		WillReturnError(sql.ErrNoRows)

	svc := NewBookingService(nil)
	err := svc.ReconcileCallback([]byte(`{"invoice":"UNKNOWN","status":"SUCCESS"}`))

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileCallbackSuccessConfirmsAndSubscribes(t *testing.T) {
	mock := setupMockDB(t)
	bookingID := uuid.New()
	userID := uuid.New()

	mock.ExpectQuery("SELECT id, user_id FROM bookings").
		WithArgs("ABC123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(bookingID.String(), userID.String()))
	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs(models.BookingStatusConfirmed, bookingID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET is_subscribed").
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewBookingService(nil)
	// Status matching is case-insensitive.
	err := svc.ReconcileCallback([]byte(`{"invoice":"ABC123","status":"success"}`))

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileCallbackNonSuccessFails(t *testing.T) {
	mock := setupMockDB(t)
	bookingID := uuid.New()
	userID := uuid.New()

	mock.ExpectQuery("SELECT id, user_id FROM bookings").
		WithArgs("ABC123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(bookingID.String(), userID.String()))
	// Failed booking: no subscription update follows.
	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs(models.BookingStatusFailed, bookingID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewBookingService(nil)
	err := svc.ReconcileCallback([]byte(`{"invoice":"ABC123","state":"CANCELLED"}`))

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileCallbackDuplicateIsIdempotent(t *testing.T) {
	mock := setupMockDB(t)
	bookingID := uuid.New()
	userID := uuid.New()

	// The booking is already confirmed, so the guarded update matches zero
	// rows and neither the status nor the subscription flag change again.
	mock.ExpectQuery("SELECT id, user_id FROM bookings").
		WithArgs("ABC123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(bookingID.String(), userID.String()))
	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs(models.BookingStatusConfirmed, bookingID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	svc := NewBookingService(nil)
	err := svc.ReconcileCallback([]byte(`{"invoice":"ABC123","status":"SUCCESS"}`))

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileCallbackLateSuccessDoesNotResurrectFailedBooking(t *testing.T) {
	mock := setupMockDB(t)
	bookingID := uuid.New()
	userID := uuid.New()

	mock.ExpectQuery("SELECT id, user_id FROM bookings").
		WithArgs("ABC123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow(bookingID.String(), userID.String()))
	// Row is in "failed"; the pending guard rejects the transition.
	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs(models.BookingStatusConfirmed, bookingID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	svc := NewBookingService(nil)
	err := svc.ReconcileCallback([]byte(`{"invoice":"ABC123","status":"SUCCESS"}`))

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// confirmLatestPendingQuery requires the pending guard on the updated row
// itself, not just inside the subquery: without it a callback racing the
// direct-success redirect could flip an already-failed booking to confirmed.
const confirmLatestPendingQuery = `UPDATE bookings SET status = 'confirmed' WHERE id = .* AND status = 'pending' RETURNING`

func TestConfirmLatestPending(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	bookingID := uuid.New()

	mock.ExpectQuery(confirmLatestPendingQuery).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "invoice_id"}).AddRow(bookingID.String(), "ABC123"))
	mock.ExpectExec("UPDATE users SET is_subscribed").
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewBookingService(nil)
	confirmed, err := svc.ConfirmLatestPending(userID)

	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmLatestPendingWithNoPendingBookingStillSubscribes(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()

	mock.ExpectQuery(confirmLatestPendingQuery).
		WithArgs(userID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("UPDATE users SET is_subscribed").
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewBookingService(nil)
	confirmed, err := svc.ConfirmLatestPending(userID)

	require.NoError(t, err)
	assert.False(t, confirmed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmLatestPendingDoesNotOverrideSettledBooking(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()

	// A callback settled the picked booking between the subquery and the
	// update; the guard makes the UPDATE match nothing, so the terminal
	// status stands and the caller just isn't reported as confirmed.
	mock.ExpectQuery(confirmLatestPendingQuery).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "invoice_id"}))
	mock.ExpectExec("UPDATE users SET is_subscribed").
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewBookingService(nil)
	confirmed, err := svc.ConfirmLatestPending(userID)

	require.NoError(t, err)
	assert.False(t, confirmed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBookings(t *testing.T) {
	mock := setupMockDB(t)
	userID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT id, user_id, phone, invoice_id, status, created_at").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "phone", "invoice_id", "status", "created_at"}).
			AddRow(uuid.New().String(), userID.String(), "+254700000001", "ABC123", "pending", now).
			AddRow(uuid.New().String(), userID.String(), "+254700000001", "DEF456", "confirmed", now.Add(-time.Hour)))

	svc := NewBookingService(nil)
	bookings, hasPending, err := svc.ListBookings(userID)

	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.True(t, hasPending)
	assert.Equal(t, models.BookingStatusPending, bookings[0].Status)
	assert.Equal(t, "DEF456", bookings[1].InvoiceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingStatusWithoutPaymentsConfigured(t *testing.T) {
	svc := NewBookingService(nil)
	_, err := svc.BookingStatus(context.Background(), "ABC123")
	assert.Error(t, err)
}
