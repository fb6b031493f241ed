package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaymentClientDisabledWithoutSecretKey(t *testing.T) {
	assert.Nil(t, NewPaymentClient("", true))
	assert.Nil(t, NewPaymentClient("   ", false))
}

func TestNewPaymentClientBaseURL(t *testing.T) {
	sandbox := NewPaymentClient("sk_test", true)
	require.NotNil(t, sandbox)
	assert.Equal(t, intasendSandboxBase, sandbox.baseURL)

	live := NewPaymentClient("sk_live", false)
	require.NotNil(t, live)
	assert.Equal(t, intasendLiveBase, live.baseURL)
}

func TestResolveInvoiceIDAllKnownShapes(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{"top-level invoice", `{"invoice":"ABC123"}`, "ABC123"},
		{"top-level id", `{"id":"XYZ789"}`, "XYZ789"},
		{"top-level invoice_id", `{"invoice_id":"INV42"}`, "INV42"},
		{"nested data.invoice", `{"data":{"invoice":"NESTED1"}}`, "NESTED1"},
		{"nested data.id", `{"data":{"id":"NESTED2"}}`, "NESTED2"},
		{"numeric id", `{"id":1234}`, "1234"},
		{"nothing", `{"message":"accepted"}`, ""},
		{"not json", `definitely not json`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveInvoiceID([]byte(tc.payload)))
		})
	}
}

func TestResolveInvoiceIDPrefersEarlierKeys(t *testing.T) {
	payload := `{"id":"SECOND","invoice":"FIRST","data":{"invoice":"LAST"}}`
	assert.Equal(t, "FIRST", ResolveInvoiceID([]byte(payload)))
}

func TestResolveInvoiceIDSkipsNonScalarCandidates(t *testing.T) {
	// "invoice" here is an object, so resolution moves on to "id".
	payload := `{"invoice":{"state":"PENDING"},"id":"REAL"}`
	assert.Equal(t, "REAL", ResolveInvoiceID([]byte(payload)))
}

func TestParseCallback(t *testing.T) {
	invoice, status := ParseCallback([]byte(`{"invoice":"ABC123","status":"SUCCESS"}`))
	assert.Equal(t, "ABC123", invoice)
	assert.Equal(t, "SUCCESS", status)

	// "state" is the fallback status key.
	invoice, status = ParseCallback([]byte(`{"invoice_id":"X1","state":"FAILED"}`))
	assert.Equal(t, "X1", invoice)
	assert.Equal(t, "FAILED", status)

	invoice, status = ParseCallback([]byte(`{"other":"stuff"}`))
	assert.Empty(t, invoice)
	assert.Empty(t, status)
}

func testPaymentClient(baseURL string) *PaymentClient {
	return &PaymentClient{
		baseURL:   baseURL,
		secretKey: "sk_test",
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

func TestPushSendsProviderRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payment/mpesa-stk-push/", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "+254712345678", req["phone_number"])
		assert.Equal(t, "user@example.com", req["email"])
		assert.Equal(t, float64(1), req["amount"])
		assert.Equal(t, "Therapy Booking", req["narrative"])

		w.Write([]byte(`{"invoice":"ABC123"}`))
	}))
	defer srv.Close()

	resp, err := testPaymentClient(srv.URL).Push(context.Background(), "+254712345678", "user@example.com", 1, "Therapy Booking")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", ResolveInvoiceID(resp))
}

func TestStatusQueriesProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payment/status/", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "ABC123", req["invoice_id"])

		w.Write([]byte(`{"invoice":{"state":"COMPLETE"}}`))
	}))
	defer srv.Close()

	resp, err := testPaymentClient(srv.URL).Status(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.JSONEq(t, `{"invoice":{"state":"COMPLETE"}}`, string(resp))
}

func TestPushSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"invalid key"}`))
	}))
	defer srv.Close()

	resp, err := testPaymentClient(srv.URL).Push(context.Background(), "+254712345678", "a@b.c", 1, "x")
	require.Error(t, err)
	// The error body still comes back for logging.
	assert.Contains(t, string(resp), "invalid key")
}
