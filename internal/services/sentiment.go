package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/tuliahq/tulia-backend/internal/models"
)

const sentimentTimeout = 15 * time.Second

// SentimentClient calls the external emotion inference API. The journaling
// flow must never fail because the API is down, so Analyze degrades to an
// empty result on any error instead of propagating it.
type SentimentClient struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewSentimentClient(endpoint, token string) *SentimentClient {
	return &SentimentClient{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: sentimentTimeout},
	}
}

// Analyze sends raw journal text to the inference API and returns normalized
// label/score pairs. Returns an empty slice on any failure (network error,
// non-2xx status, malformed body) - callers treat that as "no sentiment data".
func (s *SentimentClient) Analyze(ctx context.Context, text string) []models.SentimentPair {
	payload, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		log.Printf("[Sentiment] failed to marshal request: %v", err)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		log.Printf("[Sentiment] failed to build request: %v", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("[Sentiment] request failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("⚠️  Sentiment API returned status %d", resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Sentiment] failed to read response: %v", err)
		return nil
	}

	return normalizeSentiment(body)
}

// normalizeSentiment accepts the two response shapes the inference API is
// known to produce: a flat [{label, score}, ...] array or the same array
// nested one level deep ([[...]]). Anything else yields no pairs.
func normalizeSentiment(body []byte) []models.SentimentPair {
	var flat []models.SentimentPair
	if err := json.Unmarshal(body, &flat); err == nil {
		return sanitizePairs(flat)
	}

	var nested [][]models.SentimentPair
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 {
		return sanitizePairs(nested[0])
	}

	log.Printf("[Sentiment] unexpected response shape: %s", truncateForLog(body, 200))
	return nil
}

// sanitizePairs drops entries with empty labels or scores outside [0, 1].
func sanitizePairs(pairs []models.SentimentPair) []models.SentimentPair {
	out := make([]models.SentimentPair, 0, len(pairs))
	for _, p := range pairs {
		if p.Label == "" {
			continue
		}
		if math.IsNaN(p.Score) || math.IsInf(p.Score, 0) || p.Score < 0 || p.Score > 1 {
			continue
		}
		out = append(out, p)
	}
	return out
}

func truncateForLog(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
