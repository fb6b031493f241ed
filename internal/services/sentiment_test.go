package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuliahq/tulia-backend/internal/models"
)

func TestAnalyzeFlatResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req map[string]string
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "today was a good day", req["inputs"])

		w.Write([]byte(`[{"label":"joy","score":0.9},{"label":"sadness","score":0.1}]`))
	}))
	defer srv.Close()

	client := NewSentimentClient(srv.URL, "hf_test")
	pairs := client.Analyze(context.Background(), "today was a good day")

	require.Len(t, pairs, 2)
	assert.Equal(t, models.SentimentPair{Label: "joy", Score: 0.9}, pairs[0])
	assert.Equal(t, models.SentimentPair{Label: "sadness", Score: 0.1}, pairs[1])
}

func TestAnalyzeNestedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The inference API sometimes wraps the result in an extra array.
		w.Write([]byte(`[[{"label":"joy","score":0.9},{"label":"sadness","score":0.1}]]`))
	}))
	defer srv.Close()

	client := NewSentimentClient(srv.URL, "")
	pairs := client.Analyze(context.Background(), "text")

	require.Len(t, pairs, 2)
	assert.Equal(t, "joy", pairs[0].Label)
	assert.InDelta(t, 0.8, MoodScore(pairs), 1e-9)
}

func TestAnalyzeNoTokenSkipsAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewSentimentClient(srv.URL, "")
	assert.Empty(t, client.Analyze(context.Background(), "text"))
}

func TestAnalyzeDegradesOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewSentimentClient(srv.URL, "token")
	assert.Empty(t, client.Analyze(context.Background(), "text"))
}

func TestAnalyzeDegradesOnMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"model loading"}`))
	}))
	defer srv.Close()

	client := NewSentimentClient(srv.URL, "token")
	assert.Empty(t, client.Analyze(context.Background(), "text"))
}

func TestAnalyzeDegradesOnNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewSentimentClient(srv.URL, "token")
	assert.Empty(t, client.Analyze(context.Background(), "text"))
}

func TestSanitizePairsDropsInvalidEntries(t *testing.T) {
	pairs := sanitizePairs([]models.SentimentPair{
		{Label: "joy", Score: 0.9},
		{Label: "", Score: 0.5},
		{Label: "fear", Score: -0.1},
		{Label: "anger", Score: 1.5},
		{Label: "sadness", Score: 0.1},
	})

	require.Len(t, pairs, 2)
	assert.Equal(t, "joy", pairs[0].Label)
	assert.Equal(t, "sadness", pairs[1].Label)
}
