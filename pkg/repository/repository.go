package repository

import (
	"context"

	"github.com/redhist/redhist/pkg/model"
)

// Repository defines the interface for local persistence of fetches and
// analysis results
type Repository interface {
	// PutFetch saves a fetch record
	PutFetch(ctx context.Context, fetch *model.Fetch) error

	// PutItems saves the items retrieved by a fetch
	PutItems(ctx context.Context, fetchID model.FetchID, items []*model.HistoryItem) error

	// GetFetch retrieves a fetch record by ID
	GetFetch(ctx context.Context, id model.FetchID) (*model.Fetch, error)

	// ListFetches retrieves fetch records, newest first
	ListFetches(ctx context.Context, offset, limit int) ([]*model.Fetch, error)

	// GetItems retrieves the items of a fetch in their original order
	GetItems(ctx context.Context, fetchID model.FetchID) ([]*model.HistoryItem, error)

	// PutAnalysis saves an analysis result
	PutAnalysis(ctx context.Context, analysis *model.AnalysisResult) error

	// GetAnalysis retrieves an analysis result by ID
	GetAnalysis(ctx context.Context, id model.AnalysisID) (*model.AnalysisResult, error)

	// ListAnalyses retrieves analysis results, newest first
	ListAnalyses(ctx context.Context, offset, limit int) ([]*model.AnalysisResult, error)

	// Close releases the underlying store
	Close() error
}
