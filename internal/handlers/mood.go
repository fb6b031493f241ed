package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/tuliahq/tulia-backend/internal/database"
	"github.com/tuliahq/tulia-backend/internal/models"
	"github.com/tuliahq/tulia-backend/internal/services"
)

// MoodSummary returns the caller's most common emotion across all journal
// entries. Entries without sentiment are skipped.
func MoodSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireAuth(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Authentication required"})
		return
	}
	w.Header().Set("Content-Type", "application/json")

	rows, err := database.PostgresDB.Query(`
		SELECT sentiment
		FROM journal_entries
		WHERE user_id = $1 AND sentiment IS NOT NULL
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		log.Printf("[MoodSummary] Failed to fetch entries: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Failed to fetch entries"})
		return
	}
	defer rows.Close()

	pairLists := make([][]models.SentimentPair, 0)
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			continue
		}
		pairs := parseSentimentColumn(raw)
		if len(pairs) > 0 {
			pairLists = append(pairLists, pairs)
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":             true,
		"most_common_emotion": services.MostCommonLabel(pairLists),
		"entries_analyzed":    len(pairLists),
	})
}

// MoodTrend returns a per-day average of the caller's entry mood scores over
// the last N days (default 30). Scores are derived from stored sentiment at
// read time, so aggregation happens here rather than in SQL.
func MoodTrend(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireAuth(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Authentication required"})
		return
	}
	w.Header().Set("Content-Type", "application/json")

	days := 30
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		if parsed, err := strconv.Atoi(daysStr); err == nil && parsed > 0 && parsed <= 365 {
			days = parsed
		}
	}

	since := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := database.PostgresDB.Query(`
		SELECT sentiment, created_at
		FROM journal_entries
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at
	`, userID, since)
	if err != nil {
		log.Printf("[MoodTrend] Failed to fetch entries: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "Failed to fetch entries"})
		return
	}
	defer rows.Close()

	type dayAccum struct {
		total   float64
		entries int
	}
	byDay := make(map[string]*dayAccum)
	for rows.Next() {
		var raw sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&raw, &createdAt); err != nil {
			continue
		}
		day := createdAt.UTC().Format("2006-01-02")
		acc, exists := byDay[day]
		if !exists {
			acc = &dayAccum{}
			byDay[day] = acc
		}
		acc.total += services.MoodScore(parseSentimentColumn(raw))
		acc.entries++
	}

	dates := make([]string, 0, len(byDay))
	for d := range byDay {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	type dayMood struct {
		Date    string  `json:"date"`
		AvgMood float64 `json:"avg_mood"`
		Entries int     `json:"entries"`
	}
	trend := make([]dayMood, 0, len(dates))
	for _, d := range dates {
		acc := byDay[d]
		trend = append(trend, dayMood{
			Date:    d,
			AvgMood: acc.total / float64(acc.entries),
			Entries: acc.entries,
		})
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"days":    days,
		"trend":   trend,
	})
}
