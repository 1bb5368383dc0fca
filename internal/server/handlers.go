package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/user/movieverse/internal/auth"
	"github.com/user/movieverse/internal/catalog"
	"github.com/user/movieverse/internal/model"
	"github.com/user/movieverse/internal/store"
)

const (
	authHeader   = "X-Auth"
	defaultTopN  = 10
	maxListLimit = 500

	maxFieldBytes = 1 << 20
)

type ctxKey struct{}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	VideoURL    string `json:"video_url"`
	Hidden      bool   `json:"hidden"`
}

type importRequest struct {
	URL    string `json:"url"`
	Hidden bool   `json:"hidden"`
}

type updateRequest struct {
	Hidden *bool `json:"hidden"`
}

// writeError maps catalog errors onto HTTP statuses
func writeError(w http.ResponseWriter, err error) {
	var ve *store.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, catalog.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: auth.ErrInvalidCredentials.Error()})
	case store.IsStoreFailure(err):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "catalog store unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func movieID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		badRequest(w, "limit must be a non-negative integer")
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	movies, err := s.catalog.Browse(r.Context(), store.ListOptions{
		Query: r.URL.Query().Get("q"),
		Sort:  model.ParseSortKey(r.URL.Query().Get("sort")),
		Limit: limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, movies)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.withMovie(w, r, s.catalog.Get)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.withMovie(w, r, s.catalog.Play)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	s.withMovie(w, r, s.catalog.Like)
}

func (s *Server) withMovie(w http.ResponseWriter, r *http.Request, fn func(context.Context, uint) (*model.Movie, error)) {
	id, ok := movieID(r)
	if !ok {
		badRequest(w, "invalid movie id")
		return
	}
	movie, err := fn(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.catalog.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defaultTopN)
	if !ok {
		badRequest(w, "limit must be a non-negative integer")
		return
	}
	metric := model.Metric(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = model.MetricViews
	}
	if !metric.Valid() {
		writeError(w, &store.ValidationError{Field: "metric", Reason: "must be views or likes"})
		return
	}

	ranked, err := s.catalog.Top(r.Context(), metric, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}

	token, err := s.catalog.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.catalog.Logout(r.Header.Get(authHeader))
	w.WriteHeader(http.StatusNoContent)
}

// requireAdmin rejects requests without a live session token
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(authHeader)
		if !s.catalog.Authorized(token) {
			writeError(w, catalog.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, token)))
	})
}

func tokenFrom(r *http.Request) string {
	token, _ := r.Context().Value(ctxKey{}).(string)
	return token
}

func (s *Server) handleAdminList(w http.ResponseWriter, r *http.Request) {
	movies, err := s.catalog.AdminList(r.Context(), tokenFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, movies)
}

func (s *Server) handleAdminGet(w http.ResponseWriter, r *http.Request) {
	token := tokenFrom(r)
	s.withMovie(w, r, func(ctx context.Context, id uint) (*model.Movie, error) {
		return s.catalog.AdminGet(ctx, token, id)
	})
}

func (s *Server) handleAdminCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}

	movie, err := s.catalog.AddMovie(r.Context(), tokenFrom(r), store.NewMovie{
		Title:         req.Title,
		Description:   req.Description,
		VideoLocation: req.VideoURL,
		Hidden:        req.Hidden,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, movie)
}

// handleAdminUpload accepts multipart form fields title, description,
// hidden and file. Without a file the video_url field is registered instead.
func (s *Server) handleAdminUpload(w http.ResponseWriter, r *http.Request) {
	s.extendDeadlines(w, s.opts.UploadTimeout)
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		badRequest(w, "expected multipart/form-data")
		return
	}

	up := catalog.Upload{}
	videoURL := ""
	for {
		part, err := mr.NextPart()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				badRequest(w, "invalid multipart body: "+err.Error())
				return
			}
			break
		}

		if part.FormName() == "file" && part.FileName() != "" {
			// The file must come last so the fields above are known
			up.Filename = part.FileName()
			up.Body = part
			break
		}

		value, err := readField(part)
		if err != nil {
			badRequest(w, "invalid form field: "+err.Error())
			return
		}
		switch part.FormName() {
		case "title":
			up.Title = value
		case "description":
			up.Description = value
		case "hidden":
			hidden, err := parseFormBool(value)
			if err != nil {
				writeError(w, &store.ValidationError{Field: "hidden", Reason: err.Error()})
				return
			}
			up.Hidden = hidden
		case "video_url":
			videoURL = value
		}
	}

	var movie *model.Movie
	if up.Body == nil {
		movie, err = s.catalog.AddMovie(r.Context(), tokenFrom(r), store.NewMovie{
			Title:         up.Title,
			Description:   up.Description,
			VideoLocation: videoURL,
			Hidden:        up.Hidden,
		})
	} else {
		movie, err = s.catalog.UploadMovie(r.Context(), tokenFrom(r), up)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, movie)
}

func (s *Server) handleAdminImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}

	movie, err := s.catalog.ImportMovie(r.Context(), tokenFrom(r), req.URL, req.Hidden)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, movie)
}

func (s *Server) handleAdminUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := movieID(r)
	if !ok {
		badRequest(w, "invalid movie id")
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	if req.Hidden == nil {
		badRequest(w, "hidden is required")
		return
	}

	token := tokenFrom(r)
	if err := s.catalog.SetHidden(r.Context(), token, id, *req.Hidden); err != nil {
		writeError(w, err)
		return
	}
	movie, err := s.catalog.AdminGet(r.Context(), token, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

func (s *Server) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := movieID(r)
	if !ok {
		badRequest(w, "invalid movie id")
		return
	}
	if err := s.catalog.Delete(r.Context(), tokenFrom(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// extendDeadlines lifts the server-wide read and write deadlines for one
// long-running request, so the response of a slow upload still gets out
func (s *Server) extendDeadlines(w http.ResponseWriter, d time.Duration) {
	rc := http.NewResponseController(w)
	deadline := time.Now().Add(d)
	if err := rc.SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Warn().Err(err).Msg("Failed to extend read deadline")
	}
	if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Warn().Err(err).Msg("Failed to extend write deadline")
	}
}

// parseFormBool accepts strconv booleans plus the "on"/"off" an HTML checkbox sends
func parseFormBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "yes":
		return true, nil
	case "off", "no", "":
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("must be a boolean, got %q", value)
	}
	return b, nil
}

func readField(part io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxFieldBytes {
		return "", errors.New("field too large")
	}
	return string(data), nil
}
