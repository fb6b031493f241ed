package services

import (
	"github.com/tuliahq/tulia-backend/internal/models"
)

// NoMoodLabel is returned when no entry carries any sentiment data.
const NoMoodLabel = "N/A"

// moodWeights maps emotion labels to their contribution to the mood score.
// Positive emotions pull the score up, negative ones pull it down. Labels not
// in the table (including misspellings from the API) contribute 0.
var moodWeights = map[string]float64{
	"joy":          1.0,
	"amusement":    0.8,
	"excitement":   0.7,
	"love":         0.9,
	"relief":       0.6,
	"satisfaction": 0.6,
	"adoration":    0.9,
	"calmness":     0.5,
	"realization":  0.2,

	"surprise (positive)": 0.5,

	"confusion":      -0.2,
	"annoyance":      -0.5,
	"anger":          -0.8,
	"disgust":        -0.9,
	"sadness":        -1.0,
	"grief":          -1.0,
	"disappointment": -0.7,
	"fear":           -0.8,
	"anxiety":        -0.7,
	"awkwardness":    -0.5,
	"boredom":        -0.3,
	"craving":        -0.2,

	"surprise (negative)": -0.5,

	"neutral": 0.0,
}

// MoodScore collapses sentiment pairs into a single score: the weight of each
// label, weighted by the model's confidence in it. Zero when there is nothing
// to aggregate or the confidences sum to zero.
func MoodScore(pairs []models.SentimentPair) float64 {
	if len(pairs) == 0 {
		return 0.0
	}

	var weighted, total float64
	for _, p := range pairs {
		weighted += moodWeights[p.Label] * p.Score
		total += p.Score
	}

	if total == 0 {
		return 0.0
	}
	return weighted / total
}

// MostCommonLabel returns the label that appears most often across all pair
// lists. Ties go to the label encountered first. Returns NoMoodLabel when
// there are no labels at all.
func MostCommonLabel(pairLists [][]models.SentimentPair) string {
	counts := make(map[string]int)
	var order []string

	for _, pairs := range pairLists {
		for _, p := range pairs {
			if p.Label == "" {
				continue
			}
			if _, seen := counts[p.Label]; !seen {
				order = append(order, p.Label)
			}
			counts[p.Label]++
		}
	}

	if len(order) == 0 {
		return NoMoodLabel
	}

	best := order[0]
	for _, label := range order[1:] {
		if counts[label] > counts[best] {
			best = label
		}
	}
	return best
}
