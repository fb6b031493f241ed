package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tuliahq/tulia-backend/internal/config"
	"github.com/tuliahq/tulia-backend/internal/database"
	"github.com/tuliahq/tulia-backend/internal/models"
	"github.com/tuliahq/tulia-backend/internal/services"
)

var sentimentClient *services.SentimentClient

// InitSentimentService wires the sentiment analysis client from config.
func InitSentimentService(cfg *config.Config) {
	sentimentClient = services.NewSentimentClient(cfg.SentimentAPIURL, cfg.HFAPIToken)
}

type CreateJournalRequest struct {
	Content string `json:"content"`
}

type CreateJournalResponse struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Entry   map[string]interface{} `json:"entry,omitempty"`
}

type GetJournalsResponse struct {
	Success bool                     `json:"success"`
	Message string                   `json:"message,omitempty"`
	Entries []map[string]interface{} `json:"entries"`
	Total   int                      `json:"total"`
}

type QuickMoodRequest struct {
	Mood string `json:"mood"`
}

// parseSentimentColumn decodes the stored sentiment JSON for an entry.
// NULL or corrupt values degrade to an empty pair list.
func parseSentimentColumn(raw sql.NullString) []models.SentimentPair {
	if !raw.Valid || raw.String == "" {
		return []models.SentimentPair{}
	}
	var pairs []models.SentimentPair
	if err := json.Unmarshal([]byte(raw.String), &pairs); err != nil {
		return []models.SentimentPair{}
	}
	return pairs
}

// scanJournalEntries collects entry rows into response maps. Rows that fail
// to scan are skipped, but an iteration error fails the whole read so a
// truncated list is never reported as success.
func scanJournalEntries(rows *sql.Rows) ([]map[string]interface{}, error) {
	result := []map[string]interface{}{}
	for rows.Next() {
		var id uuid.UUID
		var content string
		var sentimentRaw sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&id, &content, &sentimentRaw, &createdAt); err != nil {
			continue
		}
		pairs := parseSentimentColumn(sentimentRaw)
		result = append(result, entryMap(id, content, pairs, createdAt))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// entryMap shapes a journal entry for JSON responses, attaching the
// read-time mood score.
func entryMap(id uuid.UUID, content string, pairs []models.SentimentPair, createdAt time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":         id.String(),
		"content":    content,
		"sentiment":  pairs,
		"mood_score": services.MoodScore(pairs),
		"created_at": createdAt,
	}
}

// CreateJournal creates a new journal entry for a logged-in user (requires authentication).
// The entry's text is run through sentiment analysis; analysis failures degrade
// to an entry with no sentiment rather than an error.
func CreateJournal(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireAuth(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(CreateJournalResponse{
			Success: false,
			Message: "Authentication required",
		})
		return
	}

	var req CreateJournalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(CreateJournalResponse{
			Success: false,
			Message: "Invalid request body",
		})
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(CreateJournalResponse{
			Success: false,
			Message: "Content is required",
		})
		return
	}

	var pairs []models.SentimentPair
	if sentimentClient != nil {
		pairs = sentimentClient.Analyze(r.Context(), content)
	}

	var sentimentJSON sql.NullString
	if len(pairs) > 0 {
		if data, err := json.Marshal(pairs); err == nil {
			sentimentJSON = sql.NullString{String: string(data), Valid: true}
		}
	}

	entryID := uuid.New()
	now := time.Now()

	_, err := database.PostgresDB.Exec(`
		INSERT INTO journal_entries (id, user_id, content, sentiment, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entryID, userID, content, sentimentJSON, now)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(CreateJournalResponse{
			Success: false,
			Message: "Failed to create journal entry",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateJournalResponse{
		Success: true,
		Message: "Journal created successfully",
		Entry:   entryMap(entryID, content, pairs, now),
	})
}

// GetJournals returns journal entries for the authenticated user only (requires authentication).
func GetJournals(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireAuth(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(GetJournalsResponse{
			Success: false,
			Message: "Authentication required",
			Entries: []map[string]interface{}{},
			Total:   0,
		})
		return
	}

	limitStr := r.URL.Query().Get("limit")
	skipStr := r.URL.Query().Get("skip")

	limit := 20
	if limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	skip := 0
	if skipStr != "" {
		if parsedSkip, err := strconv.Atoi(skipStr); err == nil && parsedSkip >= 0 {
			skip = parsedSkip
		}
	}

	var total int
	err := database.PostgresDB.QueryRow(
		"SELECT COUNT(*) FROM journal_entries WHERE user_id = $1",
		userID,
	).Scan(&total)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(GetJournalsResponse{
			Success: false,
			Entries: []map[string]interface{}{},
			Total:   0,
		})
		return
	}

	rows, err := database.PostgresDB.Query(`
		SELECT id, content, sentiment, created_at
		FROM journal_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, skip)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(GetJournalsResponse{
			Success: false,
			Entries: []map[string]interface{}{},
			Total:   0,
		})
		return
	}
	defer rows.Close()

	result, err := scanJournalEntries(rows)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(GetJournalsResponse{
			Success: false,
			Entries: []map[string]interface{}{},
			Total:   0,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetJournalsResponse{
		Success: true,
		Entries: result,
		Total:   total,
	})
}

// QuickMood records a one-tap mood as a journal entry with a single
// full-confidence sentiment pair. No sentiment API call is made.
func QuickMood(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireAuth(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(CreateJournalResponse{
			Success: false,
			Message: "Not logged in",
		})
		return
	}

	var req QuickMoodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(CreateJournalResponse{
			Success: false,
			Message: "Invalid request body",
		})
		return
	}

	label := strings.TrimSpace(req.Mood)
	if label == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(CreateJournalResponse{
			Success: false,
			Message: "No mood selected",
		})
		return
	}

	pairs := []models.SentimentPair{{Label: label, Score: 1.0}}
	sentimentData, err := json.Marshal(pairs)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(CreateJournalResponse{
			Success: false,
			Message: "Failed to record mood",
		})
		return
	}

	entryID := uuid.New()
	now := time.Now()
	content := "Quick mood: " + label

	_, err = database.PostgresDB.Exec(`
		INSERT INTO journal_entries (id, user_id, content, sentiment, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entryID, userID, content, string(sentimentData), now)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(CreateJournalResponse{
			Success: false,
			Message: "Failed to record mood",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateJournalResponse{
		Success: true,
		Message: "Mood recorded!",
		Entry:   entryMap(entryID, content, pairs, now),
	})
}
