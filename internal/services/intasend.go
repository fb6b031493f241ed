package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	intasendSandboxBase = "https://sandbox.intasend.com"
	intasendLiveBase    = "https://payment.intasend.com"
	intasendTimeout     = 15 * time.Second
)

// pushInvoiceKeys are the locations the provider is known to put its invoice
// identifier in a push response, in lookup order. The first scalar value wins.
var pushInvoiceKeys = []string{"invoice", "id", "invoice_id", "data.invoice", "data.id"}

// callbackInvoiceKeys are the invoice locations seen in callback payloads.
var callbackInvoiceKeys = []string{"invoice", "id", "invoice_id"}

// PaymentClient talks to the IntaSend collection API. A nil *PaymentClient
// means payments are disabled (no secret key configured); callers must check.
type PaymentClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewPaymentClient builds a client against the sandbox or live API. Returns
// nil when secretKey is empty so callers can treat payments as disabled.
func NewPaymentClient(secretKey string, testMode bool) *PaymentClient {
	if strings.TrimSpace(secretKey) == "" {
		return nil
	}

	baseURL := intasendLiveBase
	if testMode {
		baseURL = intasendSandboxBase
	}

	return &PaymentClient{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: intasendTimeout},
	}
}

// Push initiates an M-Pesa STK push: the provider prompts the payer's phone
// for a PIN. Returns the provider's raw JSON response.
func (c *PaymentClient) Push(ctx context.Context, phone, email string, amount int, narrative string) ([]byte, error) {
	body := map[string]interface{}{
		"phone_number": phone,
		"email":        email,
		"amount":       amount,
		"narrative":    narrative,
	}
	return c.post(ctx, "/api/v1/payment/mpesa-stk-push/", body)
}

// Status queries the provider for the current state of an invoice. The raw
// response is proxied to the frontend verbatim.
func (c *PaymentClient) Status(ctx context.Context, invoiceID string) ([]byte, error) {
	body := map[string]interface{}{
		"invoice_id": invoiceID,
	}
	return c.post(ctx, "/api/v1/payment/status/", body)
}

func (c *PaymentClient) post(ctx context.Context, path string, body map[string]interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return respBody, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	return respBody, nil
}

// ResolveInvoiceID extracts the provider's invoice identifier from a push
// response. The provider has shipped several response shapes over time, so
// each known key is checked in order and the first scalar value is taken.
// Objects and arrays under a candidate key are skipped. Empty string when
// nothing matches.
func ResolveInvoiceID(payload []byte) string {
	return firstScalarKey(payload, pushInvoiceKeys)
}

// ParseCallback pulls the invoice identifier and status string out of a
// callback payload. Status falls back from "status" to "state"; either may
// be absent, in which case it is returned empty.
func ParseCallback(payload []byte) (invoiceID, status string) {
	invoiceID = firstScalarKey(payload, callbackInvoiceKeys)

	for _, key := range []string{"status", "state"} {
		if v := gjson.GetBytes(payload, key); v.Exists() && v.Type == gjson.String {
			status = v.String()
			break
		}
	}
	return invoiceID, status
}

func firstScalarKey(payload []byte, keys []string) string {
	for _, key := range keys {
		v := gjson.GetBytes(payload, key)
		if !v.Exists() {
			continue
		}
		switch v.Type {
		case gjson.String, gjson.Number:
			if s := v.String(); s != "" {
				return s
			}
		}
	}
	return ""
}
