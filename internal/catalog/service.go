package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/user/movieverse/internal/importer"
	"github.com/user/movieverse/internal/media"
	"github.com/user/movieverse/internal/metrics"
	"github.com/user/movieverse/internal/model"
	"github.com/user/movieverse/internal/store"
)

// ErrUnauthorized is returned when an admin operation lacks a live session
var ErrUnauthorized = errors.New("admin session required")

// SessionManager is the authentication context held on behalf of callers
type SessionManager interface {
	Login(ctx context.Context, username, password string) (string, error)
	Logout(token string)
	Valid(token string) bool
}

// Importer turns a page URL into movie metadata
type Importer interface {
	Fetch(ctx context.Context, pageURL string) (*importer.Draft, error)
}

// Upload is a video file submitted by an administrator
type Upload struct {
	Title       string
	Description string
	Hidden      bool
	Filename    string
	Body        io.Reader
}

// Service is the entry point used by the HTTP API and the bot
type Service struct {
	store    store.Store
	sessions SessionManager
	media    media.Storage
	importer Importer
}

// NewService creates a new catalog service
func NewService(st store.Store, sessions SessionManager, files media.Storage, imp Importer) *Service {
	return &Service{
		store:    st,
		sessions: sessions,
		media:    files,
		importer: imp,
	}
}

// Browse lists visible movies
func (s *Service) Browse(ctx context.Context, opts store.ListOptions) ([]*model.Movie, error) {
	movies, err := s.store.ListVisible(ctx, opts)
	if err != nil {
		s.fail("browse", err)
		return nil, err
	}
	return movies, nil
}

// Get returns a visible movie; hidden ones look missing to users
func (s *Service) Get(ctx context.Context, id uint) (*model.Movie, error) {
	movie, err := s.store.GetMovie(ctx, id)
	if err != nil {
		s.fail("get", err)
		return nil, err
	}
	if movie.Hidden {
		return nil, &store.NotFoundError{ID: id}
	}
	return movie, nil
}

// Play records a view and returns the movie with its new counters
func (s *Service) Play(ctx context.Context, id uint) (*model.Movie, error) {
	return s.interact(ctx, id, "play", s.store.IncrementViews)
}

// Like records a like and returns the movie with its new counters
func (s *Service) Like(ctx context.Context, id uint) (*model.Movie, error) {
	return s.interact(ctx, id, "like", s.store.IncrementLikes)
}

func (s *Service) interact(ctx context.Context, id uint, action string, inc func(context.Context, uint) error) (*model.Movie, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := inc(ctx, id); err != nil {
		s.fail(action, err)
		return nil, err
	}
	metrics.RecordInteraction(action)

	movie, err := s.store.GetMovie(ctx, id)
	if err != nil {
		s.fail(action, err)
		return nil, err
	}
	return movie, nil
}

// Stats returns platform-wide counts
func (s *Service) Stats(ctx context.Context) (model.PlatformStats, error) {
	stats, err := s.store.PlatformStats(ctx)
	if err != nil {
		s.fail("stats", err)
		return model.PlatformStats{}, err
	}
	return stats, nil
}

// Top ranks movies by a metric
func (s *Service) Top(ctx context.Context, metric model.Metric, limit int) ([]model.RankedMovie, error) {
	ranked, err := s.store.TopByMetric(ctx, metric, limit)
	if err != nil {
		s.fail("top", err)
		return nil, err
	}
	return ranked, nil
}

// Login opens an admin session
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	return s.sessions.Login(ctx, username, password)
}

// Logout closes an admin session
func (s *Service) Logout(token string) {
	s.sessions.Logout(token)
}

// Authorized reports whether token belongs to a live admin session
func (s *Service) Authorized(token string) bool {
	return s.sessions.Valid(token)
}

func (s *Service) requireAdmin(token string) error {
	if !s.sessions.Valid(token) {
		return ErrUnauthorized
	}
	return nil
}

// AdminList returns every movie, hidden included
func (s *Service) AdminList(ctx context.Context, token string) ([]*model.Movie, error) {
	if err := s.requireAdmin(token); err != nil {
		return nil, err
	}
	movies, err := s.store.ListAll(ctx)
	if err != nil {
		s.fail("admin_list", err)
		return nil, err
	}
	return movies, nil
}

// AdminGet returns any movie, hidden included
func (s *Service) AdminGet(ctx context.Context, token string, id uint) (*model.Movie, error) {
	if err := s.requireAdmin(token); err != nil {
		return nil, err
	}
	movie, err := s.store.GetMovie(ctx, id)
	if err != nil {
		s.fail("admin_get", err)
		return nil, err
	}
	return movie, nil
}

// AddMovie registers a movie whose video already lives at a URL or path
func (s *Service) AddMovie(ctx context.Context, token string, in store.NewMovie) (*model.Movie, error) {
	if err := s.requireAdmin(token); err != nil {
		return nil, err
	}
	movie, err := s.store.CreateMovie(ctx, in)
	if err != nil {
		s.fail("create", err)
		return nil, err
	}
	s.audit("create", movie.ID, movie.Title)
	return movie, nil
}

// UploadMovie stores the uploaded file and registers it
func (s *Service) UploadMovie(ctx context.Context, token string, up Upload) (*model.Movie, error) {
	if err := s.requireAdmin(token); err != nil {
		return nil, err
	}
	// Check fields first so a rejected form leaves no file behind
	if strings.TrimSpace(up.Title) == "" {
		return nil, &store.ValidationError{Field: "title"}
	}
	if strings.TrimSpace(up.Description) == "" {
		return nil, &store.ValidationError{Field: "description"}
	}
	if up.Body == nil {
		return nil, &store.ValidationError{Field: "video_location"}
	}

	path, err := s.media.Save(up.Filename, up.Body)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedType) {
			return nil, &store.ValidationError{Field: "file", Reason: err.Error()}
		}
		s.fail("upload", err)
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	movie, err := s.store.CreateMovie(ctx, store.NewMovie{
		Title:         up.Title,
		Description:   up.Description,
		VideoLocation: path,
		Hidden:        up.Hidden,
	})
	if err != nil {
		if rmErr := s.media.Delete(path); rmErr != nil {
			log.Error().Err(rmErr).Str("path", path).Msg("Failed to remove orphaned upload")
		}
		s.fail("upload", err)
		return nil, err
	}
	s.audit("upload", movie.ID, movie.Title)
	return movie, nil
}

// ImportMovie registers a movie from the metadata of a web page
func (s *Service) ImportMovie(ctx context.Context, token, pageURL string, hidden bool) (*model.Movie, error) {
	if err := s.requireAdmin(token); err != nil {
		return nil, err
	}
	if strings.TrimSpace(pageURL) == "" {
		return nil, &store.ValidationError{Field: "url"}
	}

	draft, err := s.importer.Fetch(ctx, strings.TrimSpace(pageURL))
	if err != nil {
		if errors.Is(err, importer.ErrInvalidURL) {
			return nil, &store.ValidationError{Field: "url", Reason: err.Error()}
		}
		s.fail("import", err)
		return nil, fmt.Errorf("failed to import %s: %w", pageURL, err)
	}

	movie, err := s.store.CreateMovie(ctx, store.NewMovie{
		Title:         draft.Title,
		Description:   draft.Description,
		VideoLocation: draft.VideoLocation,
		Hidden:        hidden,
	})
	if err != nil {
		s.fail("import", err)
		return nil, err
	}
	s.audit("import", movie.ID, movie.Title)
	return movie, nil
}

// SetHidden changes whether users can see a movie
func (s *Service) SetHidden(ctx context.Context, token string, id uint, hidden bool) error {
	if err := s.requireAdmin(token); err != nil {
		return err
	}
	if err := s.store.SetHidden(ctx, id, hidden); err != nil {
		s.fail("set_hidden", err)
		return err
	}
	action := "unhide"
	if hidden {
		action = "hide"
	}
	s.audit(action, id, "")
	return nil
}

// Delete removes a movie and, when it was uploaded here and is no longer
// referenced by another movie, its file
func (s *Service) Delete(ctx context.Context, token string, id uint) error {
	if err := s.requireAdmin(token); err != nil {
		return err
	}
	movie, err := s.store.GetMovie(ctx, id)
	if err != nil {
		s.fail("delete", err)
		return err
	}
	if err := s.store.DeleteMovie(ctx, id); err != nil {
		s.fail("delete", err)
		return err
	}
	s.releaseFile(ctx, id, movie.VideoURL)
	s.audit("delete", id, movie.Title)
	return nil
}

// releaseFile removes a stored video once no movie references it any more.
// Failures leave the file behind and are only logged.
func (s *Service) releaseFile(ctx context.Context, id uint, location string) {
	refs, err := s.store.CountByLocation(ctx, location)
	if err != nil {
		log.Error().Err(err).Uint("id", id).Str("path", location).Msg("Failed to count file references, keeping file")
		return
	}
	if refs > 0 {
		log.Info().Uint("id", id).Str("path", location).Int64("refs", refs).Msg("Movie file still referenced, keeping it")
		return
	}
	if err := s.media.Delete(location); err != nil {
		log.Error().Err(err).Uint("id", id).Str("path", location).Msg("Failed to remove movie file")
	}
}

func (s *Service) audit(action string, id uint, title string) {
	metrics.RecordAdminAction(action)
	ev := log.Info().Str("action", action).Uint("id", id)
	if title != "" {
		ev = ev.Str("title", title)
	}
	ev.Msg("Catalog updated")
}

// fail records unexpected failures; validation and missing ids are caller mistakes
func (s *Service) fail(op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), store.IsValidation(err):
		return
	case store.IsStoreFailure(err):
		metrics.RecordError("store")
	default:
		metrics.RecordError(op)
	}
	log.Error().Err(err).Str("op", op).Msg("Catalog operation failed")
}
