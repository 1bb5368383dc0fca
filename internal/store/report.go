package store

import (
	"context"

	"github.com/user/movieverse/internal/model"
)

var metricOrders = map[model.Metric]string{
	model.MetricViews: "views DESC, id ASC",
	model.MetricLikes: "likes DESC, id ASC",
}

// PlatformStats counts every movie (hidden included) and sums its counters.
// SUM yields DECIMAL on MySQL and NULL on an empty table; both end up as int64.
func (s *SQLStore) PlatformStats(ctx context.Context) (model.PlatformStats, error) {
	var stats model.PlatformStats
	result := s.db.WithContext(ctx).
		Model(&model.Movie{}).
		Select("COUNT(*) AS total_movies, " +
			"COALESCE(SUM(views), 0) AS total_views, " +
			"COALESCE(SUM(likes), 0) AS total_likes").
		Scan(&stats)
	if result.Error != nil {
		return model.PlatformStats{}, storeErr("compute platform stats", result.Error)
	}
	return stats, nil
}

// TopByMetric ranks movies by views or likes, ties in insertion order
func (s *SQLStore) TopByMetric(ctx context.Context, metric model.Metric, limit int) ([]model.RankedMovie, error) {
	order, ok := metricOrders[metric]
	if !ok {
		return nil, &ValidationError{Field: "metric", Reason: "must be views or likes"}
	}

	ranked := []model.RankedMovie{}
	if limit <= 0 {
		return ranked, nil
	}

	result := s.db.WithContext(ctx).
		Model(&model.Movie{}).
		Select("id, title, views, likes").
		Order(order).
		Limit(limit).
		Scan(&ranked)
	if result.Error != nil {
		return nil, storeErr("rank movies", result.Error)
	}
	return ranked, nil
}
