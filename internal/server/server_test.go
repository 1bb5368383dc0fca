package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/movieverse/internal/auth"
	"github.com/user/movieverse/internal/catalog"
	"github.com/user/movieverse/internal/importer"
	"github.com/user/movieverse/internal/media"
	"github.com/user/movieverse/internal/model"
	"github.com/user/movieverse/internal/store"
)

type stubImporter struct{}

func (stubImporter) Fetch(ctx context.Context, pageURL string) (*importer.Draft, error) {
	if !strings.HasPrefix(pageURL, "http") {
		return nil, importer.ErrInvalidURL
	}
	return &importer.Draft{
		Title:         "Imported",
		Description:   "From the web",
		VideoLocation: "https://cdn.example.com/imported.mp4",
		PageURL:       pageURL,
	}, nil
}

type downPinger struct{}

func (downPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T) (*Server, *store.SQLStore) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewSQLiteStore(filepath.Join(dir, "api.db"), store.PasswordPlain)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.CreateAdmin(context.Background(), "admin", "secret"); err != nil {
		t.Fatalf("CreateAdmin() error = %v", err)
	}

	files := media.NewFileSystemStore(filepath.Join(dir, "movies"))
	if err := files.EnsureDir(); err != nil {
		t.Fatal(err)
	}
	svc := catalog.NewService(st, auth.NewSessions(st, time.Hour), files, stubImporter{})
	return NewServer(svc, st, Options{MaxUploadBytes: 1 << 20}), st
}

func do(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(authHeader, token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
}

func login(t *testing.T, s *Server) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/login", "", loginRequest{Username: "admin", Password: "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decode(t, rec, &resp)
	return resp["token"]
}

func createMovie(t *testing.T, s *Server, token, title string, hidden bool) model.Movie {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/admin/movies", token, createRequest{
		Title:       title,
		Description: "About " + title,
		VideoURL:    "https://cdn.example.com/" + title + ".mp4",
		Hidden:      hidden,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var m model.Movie
	decode(t, rec, &m)
	return m
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	decode(t, rec, &resp)
	if resp.Status != "healthy" || resp.Database != "healthy" {
		t.Errorf("unexpected health response: %+v", resp)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	s, _ := newTestServer(t)
	s.db = downPinger{}

	rec := do(t, s, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "movieverse_") {
		t.Error("metrics output missing movieverse series")
	}
}

func TestAdminRoutes_RequireSession(t *testing.T) {
	s, _ := newTestServer(t)

	routes := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/admin/movies"},
		{http.MethodPost, "/api/admin/movies"},
		{http.MethodPatch, "/api/admin/movies/1"},
		{http.MethodDelete, "/api/admin/movies/1"},
		{http.MethodPost, "/api/admin/movies/import"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := do(t, s, rt.method, rt.path, "bogus", nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestLogin_WrongCredentials(t *testing.T) {
	s, _ := newTestServer(t)

	bad := []loginRequest{
		{Username: "admin", Password: "wrong"},
		{Username: "nobody", Password: "secret"},
		{Username: "", Password: ""},
	}
	var messages []string
	for _, req := range bad {
		rec := do(t, s, http.MethodPost, "/api/login", "", req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("login %+v status = %d, want 401", req, rec.Code)
		}
		var resp errorResponse
		decode(t, rec, &resp)
		messages = append(messages, resp.Error)
	}
	for _, m := range messages[1:] {
		if m != messages[0] {
			t.Errorf("login failures differ: %q vs %q", m, messages[0])
		}
	}
}

func TestLogout_EndsSession(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s)

	if rec := do(t, s, http.MethodGet, "/api/admin/movies", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("status before logout = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/logout", token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/admin/movies", token, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("status after logout = %d, want 401", rec.Code)
	}
}

func TestBrowse_HidesHiddenMovies(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s)
	visible := createMovie(t, s, token, "Visible", false)
	hidden := createMovie(t, s, token, "Secret", true)

	rec := do(t, s, http.MethodGet, "/api/movies", "", nil)
	var movies []model.Movie
	decode(t, rec, &movies)
	if len(movies) != 1 || movies[0].ID != visible.ID {
		t.Fatalf("browse = %+v, want only %d", movies, visible.ID)
	}

	if rec := do(t, s, http.MethodGet, "/api/movies/"+itoa(hidden.ID), "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("hidden get status = %d, want 404", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/admin/movies", token, nil)
	decode(t, rec, &movies)
	if len(movies) != 2 {
		t.Errorf("admin list len = %d, want 2", len(movies))
	}
}

func TestBrowse_SearchAndSort(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s)
	createMovie(t, s, token, "Alpha", false)
	beta := createMovie(t, s, token, "Beta", false)

	for i := 0; i < 3; i++ {
		do(t, s, http.MethodPost, "/api/movies/"+itoa(beta.ID)+"/play", "", nil)
	}

	rec := do(t, s, http.MethodGet, "/api/movies?sort=most_watched&limit=1", "", nil)
	var movies []model.Movie
	decode(t, rec, &movies)
	if len(movies) != 1 || movies[0].Title != "Beta" {
		t.Errorf("most watched = %+v, want Beta", movies)
	}

	rec = do(t, s, http.MethodGet, "/api/movies?q=alp", "", nil)
	decode(t, rec, &movies)
	if len(movies) != 1 || movies[0].Title != "Alpha" {
		t.Errorf("search = %+v, want Alpha", movies)
	}

	if rec := do(t, s, http.MethodGet, "/api/movies?limit=-1", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", rec.Code)
	}
}

func TestPlayLikeStatsTop(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s)
	m := createMovie(t, s, token, "Alpha", false)
	createMovie(t, s, token, "Beta", false)

	for i := 0; i < 3; i++ {
		do(t, s, http.MethodPost, "/api/movies/"+itoa(m.ID)+"/play", "", nil)
	}
	rec := do(t, s, http.MethodPost, "/api/movies/"+itoa(m.ID)+"/like", "", nil)
	var liked model.Movie
	decode(t, rec, &liked)
	if liked.Views != 3 || liked.Likes != 1 {
		t.Errorf("counters = %d/%d, want 3/1", liked.Views, liked.Likes)
	}

	rec = do(t, s, http.MethodGet, "/api/stats", "", nil)
	var stats model.PlatformStats
	decode(t, rec, &stats)
	want := model.PlatformStats{TotalMovies: 2, TotalViews: 3, TotalLikes: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}

	rec = do(t, s, http.MethodGet, "/api/top?metric=likes&limit=1", "", nil)
	var ranked []model.RankedMovie
	decode(t, rec, &ranked)
	if len(ranked) != 1 || ranked[0].Title != "Alpha" {
		t.Errorf("top = %+v, want Alpha", ranked)
	}

	rec = do(t, s, http.MethodGet, "/api/top?metric=rating", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown metric status = %d, want 400", rec.Code)
	}
	var resp errorResponse
	decode(t, rec, &resp)
	if resp.Field != "metric" {
		t.Errorf("field = %q, want metric", resp.Field)
	}
}

func TestPlay_UnknownMovie(t *testing.T) {
	s, _ := newTestServer(t)

	if rec := do(t, s, http.MethodPost, "/api/movies/999/play", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/movies/abc/like", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAdminCreate_Validation(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s)

	rec := do(t, s, http.MethodPost, "/api/admin/movies", token, createRequest{Title: "  ", Description: "d", VideoURL: "v"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp errorResponse
	decode(t, rec, &resp)
	if resp.Field != "title" {
		t.Errorf("field = %q, want title", resp.Field)
	}
}

func TestAdminUpdateAndDelete(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s)
	m := createMovie(t, s, token, "Alpha", false)
	path := "/api/admin/movies/" + itoa(m.ID)

	hide := true
	rec := do(t, s, http.MethodPatch, path, token, updateRequest{Hidden: &hide})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var updated model.Movie
	decode(t, rec, &updated)
	if !updated.Hidden {
		t.Error("movie should be hidden")
	}

	if rec := do(t, s, http.MethodPatch, path, token, map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Errorf("patch without hidden status = %d, want 400", rec.Code)
	}

	if rec := do(t, s, http.MethodDelete, path, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, path, token, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
	if rec := do(t, s, http.MethodPatch, path, token, updateRequest{Hidden: &hide}); rec.Code != http.StatusNotFound {
		t.Errorf("patch deleted status = %d, want 404", rec.Code)
	}
}

func TestAdminImport(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s)

	rec := do(t, s, http.MethodPost, "/api/admin/movies/import", token, importRequest{URL: "https://example.com/watch/1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var m model.Movie
	decode(t, rec, &m)
	if m.Title != "Imported" {
		t.Errorf("title = %q, want Imported", m.Title)
	}

	rec = do(t, s, http.MethodPost, "/api/admin/movies/import", token, importRequest{URL: "ftp://example.com"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid url status = %d, want 400", rec.Code)
	}
}

func TestAdminUpload(t *testing.T) {
	s, st := newTestServer(t)
	token := login(t, s)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("title", "Uploaded")
	mw.WriteField("description", "A local file")
	mw.WriteField("hidden", "true")
	fw, err := mw.CreateFormFile("file", "clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("fake video bytes"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/admin/movies/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(authHeader, token)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var m model.Movie
	decode(t, rec, &m)
	if !m.Hidden || !strings.HasSuffix(m.VideoURL, "_clip.mp4") {
		t.Errorf("unexpected upload result: %+v", m)
	}

	stored, err := st.GetMovie(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Title != "Uploaded" {
		t.Errorf("stored title = %q", stored.Title)
	}
}

func uploadForm(t *testing.T, s *Server, token string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", "clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("fake video bytes"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/admin/movies/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(authHeader, token)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAdminUpload_HiddenCheckbox(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s)

	rec := uploadForm(t, s, token, map[string]string{"title": "Boxed", "description": "d", "hidden": "on"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var m model.Movie
	decode(t, rec, &m)
	if !m.Hidden {
		t.Error("hidden=on should hide the movie")
	}

	rec = uploadForm(t, s, token, map[string]string{"title": "Odd", "description": "d", "hidden": "maybe"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var e errorResponse
	decode(t, rec, &e)
	if e.Field != "hidden" {
		t.Errorf("field = %q, want hidden", e.Field)
	}
}

func TestAdminUpload_OutlastsServerTimeouts(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s)

	ts := httptest.NewUnstartedServer(s.Handler())
	ts.Config.ReadTimeout = 300 * time.Millisecond
	ts.Config.WriteTimeout = 300 * time.Millisecond
	ts.Start()
	defer ts.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		mw.WriteField("title", "Slow")
		mw.WriteField("description", "Trickled in")
		time.Sleep(700 * time.Millisecond)
		fw, err := mw.CreateFormFile("file", "slow.mp4")
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		fw.Write([]byte("late video bytes"))
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/admin/movies/upload", pr)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(authHeader, token)

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("upload lost its response: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body = %s", resp.StatusCode, b)
	}
}

func TestTop_UnknownMetric(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/top?metric=shares", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var e errorResponse
	decode(t, rec, &e)
	if e.Field != "metric" {
		t.Errorf("field = %q, want metric", e.Field)
	}
}

func TestAdminUpload_RejectsType(t *testing.T) {
	s, _ := newTestServer(t)
	token := login(t, s)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("title", "Script")
	mw.WriteField("description", "Not a video")
	fw, _ := mw.CreateFormFile("file", "run.sh")
	fw.Write([]byte("#!/bin/sh"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/admin/movies/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(authHeader, token)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStoreFailure_MapsTo503(t *testing.T) {
	s, st := newTestServer(t)
	st.Close()

	if rec := do(t, s, http.MethodGet, "/api/movies", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func itoa(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
