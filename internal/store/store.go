package store

import (
	"context"

	"github.com/user/movieverse/internal/model"
)

// ListOptions narrows and orders a visible-movie listing
type ListOptions struct {
	// Query is a case-insensitive title substring; empty matches everything
	Query string
	Sort  model.SortKey
	// Limit caps the result size; zero or negative means no cap
	Limit int
}

// NewMovie holds the administrator-supplied fields of a new catalog entry
type NewMovie struct {
	Title         string
	Description   string
	VideoLocation string
	Hidden        bool
}

// Store defines the interface for catalog persistence operations
type Store interface {
	// Movie operations
	ListVisible(ctx context.Context, opts ListOptions) ([]*model.Movie, error)
	ListAll(ctx context.Context) ([]*model.Movie, error)
	GetMovie(ctx context.Context, id uint) (*model.Movie, error)
	CreateMovie(ctx context.Context, in NewMovie) (*model.Movie, error)
	SetHidden(ctx context.Context, id uint, hidden bool) error
	DeleteMovie(ctx context.Context, id uint) error
	IncrementViews(ctx context.Context, id uint) error
	IncrementLikes(ctx context.Context, id uint) error
	CountByLocation(ctx context.Context, location string) (int64, error)

	// Admin operations
	Authenticate(ctx context.Context, username, password string) (bool, error)
	CreateAdmin(ctx context.Context, username, password string) error

	Reporter

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// Reporter computes platform-wide aggregates for the dashboard
type Reporter interface {
	PlatformStats(ctx context.Context) (model.PlatformStats, error)
	TopByMetric(ctx context.Context, metric model.Metric, limit int) ([]model.RankedMovie, error)
}
