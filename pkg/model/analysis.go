package model

import (
	"time"

	"github.com/google/uuid"
)

type AnalysisID string

// NewAnalysisID generates a new unique AnalysisID
func NewAnalysisID() AnalysisID {
	return AnalysisID(uuid.New().String())
}

// AnalysisResult is the outcome of one question-and-answer round trip
// against the Gemini API over a user's aggregated history. Not mutated
// after creation.
type AnalysisResult struct {
	ID            AnalysisID `json:"id"`
	Username      string     `json:"username"`
	Question      string     `json:"question"`
	Answer        string     `json:"answer"`
	SourceItemIDs []string   `json:"source_item_ids"`
	CreatedAt     time.Time  `json:"created_at"`
}
