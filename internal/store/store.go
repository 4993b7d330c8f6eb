// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"gpwsim/internal/market"
	"gpwsim/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	market.Provider

	// Quotes
	SaveSeries(ctx context.Context, series *market.Series) error
	SeriesRange(ctx context.Context, name string) (first, last time.Time, count int, err error)

	// Runs
	SaveRun(ctx context.Context, run *Run) (string, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Sync
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	// Lifecycle
	Close() error
}

// RunSummary is the listing row for a saved simulation run.
type RunSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	StartValue  float64   `json:"start_value"`
	FinalValue  float64   `json:"final_value"`
	Steps       int       `json:"steps"`
	Instruments []string  `json:"instruments"`
}

// Run is a saved simulation run with its full history.
type Run struct {
	RunSummary
	History      []models.HistoryPoint  `json:"history"`
	Transactions []models.Transaction   `json:"transactions"`
	Closures     []models.ClosureEvent  `json:"closures"`
}

// RunFilter represents filters for listing runs.
type RunFilter struct {
	Instrument string
	Since      time.Time
	Limit      int
}
