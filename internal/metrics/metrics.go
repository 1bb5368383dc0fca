package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/user/movieverse/internal/model"
)

var (
	moviesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "movieverse_movies_total",
		Help: "Total number of movies in the catalog",
	})

	viewsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "movieverse_views_total",
		Help: "Sum of view counters across the catalog",
	})

	likesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "movieverse_likes_total",
		Help: "Sum of like counters across the catalog",
	})

	interactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "movieverse_interactions_total",
		Help: "Plays and likes handled by this process",
	}, []string{"action"})

	adminActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "movieverse_admin_actions_total",
		Help: "Catalog mutations performed by administrators",
	}, []string{"action"})

	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "movieverse_errors_total",
		Help: "Total number of errors",
	}, []string{"type"})

	statsRefreshSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "movieverse_stats_refresh_duration_seconds",
		Help:    "Duration of platform stats refreshes in seconds",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(moviesTotal)
	prometheus.MustRegister(viewsTotal)
	prometheus.MustRegister(likesTotal)
	prometheus.MustRegister(interactionsTotal)
	prometheus.MustRegister(adminActionsTotal)
	prometheus.MustRegister(errorsTotal)
	prometheus.MustRegister(statsRefreshSeconds)
}

// UpdatePlatformStats publishes the catalog-wide gauges
func UpdatePlatformStats(stats model.PlatformStats) {
	moviesTotal.Set(float64(stats.TotalMovies))
	viewsTotal.Set(float64(stats.TotalViews))
	likesTotal.Set(float64(stats.TotalLikes))
}

// RecordInteraction counts a play or like
func RecordInteraction(action string) {
	interactionsTotal.WithLabelValues(action).Inc()
}

// RecordAdminAction counts an administrator mutation
func RecordAdminAction(action string) {
	adminActionsTotal.WithLabelValues(action).Inc()
}

// RecordError records an error metric
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}

// RecordStatsRefresh records the duration of a stats refresh
func RecordStatsRefresh(duration time.Duration) {
	statsRefreshSeconds.Observe(duration.Seconds())
}
