package models

import (
	"time"

	"github.com/google/uuid"
)

// SentimentPair is a single label/score result from the sentiment API.
// Scores are confidences in [0, 1]; labels come from the model's emotion set.
type SentimentPair struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// JournalEntry is a private journaling entry for a user.
// Entries are immutable once written; Sentiment holds whatever the analysis
// returned at write time (empty when the API was unavailable).
type JournalEntry struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	Content   string          `json:"content"`
	Sentiment []SentimentPair `json:"sentiment"`

	// MoodScore is derived from Sentiment at read time, never stored.
	MoodScore float64 `json:"mood_score"`
}
