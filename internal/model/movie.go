package model

import (
	"time"
)

// Movie represents one catalog entry
type Movie struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null;index" json:"title"`
	TitleFold   string    `gorm:"column:title_fold;size:255;not null;default:'';index" json:"-"`
	Description string    `gorm:"type:text;not null" json:"description"`
	VideoURL    string    `gorm:"column:video_url;size:1024;not null" json:"video_url"`
	UploadDate  time.Time `gorm:"column:upload_date;not null;index" json:"upload_date"`
	Hidden      bool      `gorm:"default:false;index" json:"hidden"`
	Views       int64     `gorm:"default:0;not null" json:"views"`
	Likes       int64     `gorm:"default:0;not null" json:"likes"`
}

// TableName returns the table name for Movie
func (Movie) TableName() string {
	return "movies"
}

// Admin is a credential pair allowed to manage the catalog
type Admin struct {
	ID       uint   `gorm:"primaryKey"`
	Username string `gorm:"uniqueIndex;size:100;not null"`
	Password string `gorm:"size:255;not null"`
}

// TableName returns the table name for Admin
func (Admin) TableName() string {
	return "admins"
}

// SortKey selects one of the fixed orderings for visible listings
type SortKey string

const (
	SortNewest      SortKey = "newest"
	SortMostWatched SortKey = "most_watched"
	SortMostLiked   SortKey = "most_liked"
)

// ParseSortKey maps user input onto a SortKey.
// Anything unrecognised yields SortNewest.
func ParseSortKey(s string) SortKey {
	switch SortKey(s) {
	case SortMostWatched, "watched", "views":
		return SortMostWatched
	case SortMostLiked, "liked", "likes":
		return SortMostLiked
	default:
		return SortNewest
	}
}

// Metric is a counter a ranking can be computed over
type Metric string

const (
	MetricViews Metric = "views"
	MetricLikes Metric = "likes"
)

// Valid reports whether m is a known metric
func (m Metric) Valid() bool {
	return m == MetricViews || m == MetricLikes
}

// PlatformStats holds catalog-wide aggregate figures
type PlatformStats struct {
	TotalMovies int64 `json:"total_movies"`
	TotalViews  int64 `json:"total_views"`
	TotalLikes  int64 `json:"total_likes"`
}

// RankedMovie is one row of a top-N ranking
type RankedMovie struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
	Views int64  `json:"views"`
	Likes int64  `json:"likes"`
}
