package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/user/movieverse/internal/model"
	"gorm.io/gorm"
)

// Ordering templates for visible listings. Only these strings ever reach
// ORDER BY; user input selects one through model.SortKey.
var sortOrders = map[model.SortKey]string{
	model.SortNewest:      "upload_date DESC, id DESC",
	model.SortMostWatched: "views DESC, id ASC",
	model.SortMostLiked:   "likes DESC, id ASC",
}

// Counter columns that may be incremented
const (
	columnViews = "views"
	columnLikes = "likes"
)

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// foldTitle is the search key stored next to each title. SQL LOWER only folds
// ASCII on SQLite, so folding happens here for every backend.
func foldTitle(title string) string {
	return strings.ToLower(title)
}

// titlePattern builds a LIKE pattern matching q literally anywhere in a folded title
func titlePattern(q string) string {
	return "%" + likeEscaper.Replace(foldTitle(q)) + "%"
}

// ListVisible returns movies with hidden=false in the requested order
func (s *SQLStore) ListVisible(ctx context.Context, opts ListOptions) ([]*model.Movie, error) {
	order, ok := sortOrders[opts.Sort]
	if !ok {
		order = sortOrders[model.SortNewest]
	}

	query := s.db.WithContext(ctx).Where("hidden = ?", false)
	if q := strings.TrimSpace(opts.Query); q != "" {
		query = query.Where("title_fold LIKE ? ESCAPE '!'", titlePattern(q))
	}
	query = query.Order(order)
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	movies := []*model.Movie{}
	if err := query.Find(&movies).Error; err != nil {
		return nil, storeErr("list visible movies", err)
	}
	return movies, nil
}

// ListAll returns every movie, hidden included, newest first
func (s *SQLStore) ListAll(ctx context.Context) ([]*model.Movie, error) {
	movies := []*model.Movie{}
	result := s.db.WithContext(ctx).
		Order(sortOrders[model.SortNewest]).
		Find(&movies)
	if result.Error != nil {
		return nil, storeErr("list movies", result.Error)
	}
	return movies, nil
}

// GetMovie retrieves a movie by id regardless of visibility
func (s *SQLStore) GetMovie(ctx context.Context, id uint) (*model.Movie, error) {
	var movie model.Movie
	result := s.db.WithContext(ctx).First(&movie, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, storeErr("get movie", result.Error)
	}
	return &movie, nil
}

// CreateMovie validates and persists a new movie with zeroed counters
func (s *SQLStore) CreateMovie(ctx context.Context, in NewMovie) (*model.Movie, error) {
	movie := &model.Movie{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		VideoURL:    strings.TrimSpace(in.VideoLocation),
		UploadDate:  time.Now(),
		Hidden:      in.Hidden,
	}

	switch {
	case movie.Title == "":
		return nil, &ValidationError{Field: "title"}
	case movie.Description == "":
		return nil, &ValidationError{Field: "description"}
	case movie.VideoURL == "":
		return nil, &ValidationError{Field: "video_location"}
	}

	movie.TitleFold = foldTitle(movie.Title)

	if err := s.db.WithContext(ctx).Create(movie).Error; err != nil {
		return nil, storeErr("create movie", err)
	}
	return movie, nil
}

// SetHidden changes the visibility of a movie
func (s *SQLStore) SetHidden(ctx context.Context, id uint, hidden bool) error {
	result := s.db.WithContext(ctx).
		Model(&model.Movie{}).
		Where("id = ?", id).
		UpdateColumn("hidden", hidden)
	if result.Error != nil {
		return storeErr("set movie visibility", result.Error)
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// DeleteMovie removes a movie immediately
func (s *SQLStore) DeleteMovie(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&model.Movie{}, id)
	if result.Error != nil {
		return storeErr("delete movie", result.Error)
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// IncrementViews adds one view to a movie atomically
func (s *SQLStore) IncrementViews(ctx context.Context, id uint) error {
	return s.increment(ctx, id, columnViews)
}

// IncrementLikes adds one like to a movie atomically
func (s *SQLStore) IncrementLikes(ctx context.Context, id uint) error {
	return s.increment(ctx, id, columnLikes)
}

// increment runs UPDATE movies SET col = col + 1 WHERE id = ?
func (s *SQLStore) increment(ctx context.Context, id uint, column string) error {
	result := s.db.WithContext(ctx).
		Model(&model.Movie{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if result.Error != nil {
		return storeErr("increment "+column, result.Error)
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// CountByLocation returns how many movies reference a video location
func (s *SQLStore) CountByLocation(ctx context.Context, location string) (int64, error) {
	var n int64
	result := s.db.WithContext(ctx).
		Model(&model.Movie{}).
		Where("video_url = ?", location).
		Count(&n)
	if result.Error != nil {
		return 0, storeErr("count movie locations", result.Error)
	}
	return n, nil
}

// backfillTitleFold fills the search key of rows written without one
func backfillTitleFold(db *gorm.DB) error {
	var rows []model.Movie
	if err := db.Select("id", "title").Where("title_fold = ?", "").Find(&rows).Error; err != nil {
		return err
	}
	for _, m := range rows {
		err := db.Model(&model.Movie{}).
			Where("id = ?", m.ID).
			UpdateColumn("title_fold", foldTitle(m.Title)).Error
		if err != nil {
			return err
		}
	}
	return nil
}
