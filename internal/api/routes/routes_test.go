package routes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/princeprakhar/movie-watchlist/internal/authz"
	"github.com/princeprakhar/movie-watchlist/internal/config"
	"github.com/princeprakhar/movie-watchlist/internal/models"
	"github.com/princeprakhar/movie-watchlist/internal/services"
	"github.com/princeprakhar/movie-watchlist/internal/testutil"
	"github.com/princeprakhar/movie-watchlist/internal/throttle"
	"github.com/princeprakhar/movie-watchlist/pkg/logger"
)

var pg *testutil.Postgres

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.SetOutput(io.Discard)
	os.Exit(testutil.RunWithPostgres(m, "routes_test", &pg))
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
	auth   *services.AuthService
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:        "test",
		JWTSecret:          "test-secret",
		TokenTTL:           time.Hour,
		ReviewCreateRate:   "1-D",
		ReviewListRate:     "100-M",
		ReviewDetailRate:   "100-M",
		CORSAllowedOrigins: []string{"*"},
	}
}

func newServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	db := pg.Fresh(t)

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	clock := func() time.Time { return fixedNow }
	auth := services.NewAuthService(db, cfg.JWTSecret, cfg.TokenTTL, nil, nil)
	router := gin.New()
	err := SetupRoutes(router, Dependencies{
		DB:            db,
		Config:        cfg,
		Enforcer:      authz.MustNew(),
		Auth:          auth,
		ThrottleStore: throttle.NewStore(db, clock),
		Clock:         clock,
	})
	require.NoError(t, err)

	return &testServer{t: t, db: db, router: router, auth: auth}
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) userToken(username string) string {
	s.t.Helper()
	resp, err := s.auth.Register(context.Background(), services.RegisterRequest{
		Username:  username,
		Email:     username + "@example.com",
		Password:  "password123",
		Password2: "password123",
	})
	require.NoError(s.t, err)
	return resp.Token
}

func (s *testServer) adminToken() string {
	s.t.Helper()
	ctx := context.Background()
	require.NoError(s.t, s.auth.EnsureAdmin(ctx, "root", "root@example.com", "rootpassword"))
	resp, err := s.auth.Login(ctx, services.LoginRequest{Username: "root", Password: "rootpassword"})
	require.NoError(s.t, err)
	return resp.Token
}

func (s *testServer) seedTitle(platformName, title string) uint {
	s.t.Helper()
	var platform models.Platform
	err := s.db.Where(models.Platform{Name: platformName}).
		Attrs(models.Platform{About: "about", Website: "https://example.com"}).
		FirstOrCreate(&platform).Error
	require.NoError(s.t, err)

	row := models.Title{Title: title, Storyline: "story", PlatformID: platform.ID, Active: true}
	require.NoError(s.t, s.db.Create(&row).Error)
	return row.ID
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func platformBody(name string) map[string]string {
	return map[string]string{"name": name, "about": "Streaming service", "website": "https://" + name + ".com"}
}

func TestCatalogWritesRequireAdmin(t *testing.T) {
	s := newServer(t, nil)
	user := s.userToken("alice")
	admin := s.adminToken()

	w := s.do(http.MethodPost, "/watch/platform/", user, platformBody("netflix"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "You do not have permission to perform this action.", decodeMap(t, w)["detail"])

	w = s.do(http.MethodPost, "/watch/platform/", "", platformBody("netflix"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/watch/platform/", admin, platformBody("netflix"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	platformID := int(decodeMap(t, w)["id"].(float64))

	w = s.do(http.MethodGet, "/watch/platform/", user, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 1)

	detail := fmt.Sprintf("/watch/platform/%d/", platformID)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, detail, user, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPut, detail, user, platformBody("hulu")).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, detail, user, nil).Code)

	titleBody := map[string]interface{}{"title": "Dark", "storyline": "Time travel", "platform": "netflix"}
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/watch/list/", user, titleBody).Code)
	w = s.do(http.MethodPost, "/watch/list/", admin, titleBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeMap(t, w)
	assert.Equal(t, "netflix", created["platform"])
	assert.Equal(t, 0.0, created["average_rating"])

	titlePath := fmt.Sprintf("/watch/%d/", int(created["id"].(float64)))
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/watch/list/", user, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, titlePath, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPut, titlePath, user, titleBody).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, titlePath, user, nil).Code)

	assert.Equal(t, http.StatusOK, s.do(http.MethodPut, titlePath, admin, titleBody).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, titlePath, admin, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, detail, admin, nil).Code)
}

func TestStreamAliasesPlatform(t *testing.T) {
	s := newServer(t, nil)
	s.seedTitle("netflix", "Dark")

	w := s.do(http.MethodGet, "/watch/stream/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	platforms := decodeList(t, w)
	require.Len(t, platforms, 1)
	watchlist := platforms[0]["watchlist"].([]interface{})
	require.Len(t, watchlist, 1)
	assert.Equal(t, "Dark", watchlist[0].(map[string]interface{})["title"])

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/watch/stream/1/", "", nil).Code)
}

func TestNotFoundMessages(t *testing.T) {
	s := newServer(t, nil)
	admin := s.adminToken()

	tests := []struct {
		method string
		path   string
		token  string
		body   interface{}
		want   string
	}{
		{http.MethodGet, "/watch/999/", "", nil, "Movie does not exist"},
		{http.MethodGet, "/watch/platform/999/", "", nil, "Platform does not exist"},
		{http.MethodGet, "/watch/review-detail/999/", "", nil, "Review does not exist"},
		{http.MethodDelete, "/watch/999/", admin, nil, "Movie does not exist"},
		{http.MethodPost, "/watch/list/", admin, map[string]string{"title": "x", "storyline": "y", "platform": "nowhere"}, "Platform does not exist"},
		{http.MethodPost, "/watch/999/review-create/", admin, map[string]int{"rating": 3}, "Movie does not exist"},
		{http.MethodPut, "/watch/platform/999/", admin, map[string]string{"name": "Hulu", "about": "series and movies"}, "Platform does not exist"},
		{http.MethodPut, "/watch/999/", admin, map[string]string{"title": "x"}, "Movie does not exist"},
		{http.MethodPost, "/watch/list/", admin, map[string]string{"title": "x", "platform": "nowhere"}, "Platform does not exist"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, tt.want, decodeMap(t, w)["error"])
		})
	}
}

func TestIncompleteBodyOnExistingEntity(t *testing.T) {
	s := newServer(t, nil)
	titleID := s.seedTitle("netflix", "Dark")
	admin := s.adminToken()

	w := s.do(http.MethodPut, "/watch/platform/1/", admin, map[string]string{"name": "Hulu", "about": "series and movies"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []interface{}{"This field is required."}, decodeMap(t, w)["website"])

	w = s.do(http.MethodPut, fmt.Sprintf("/watch/%d/", titleID), admin, map[string]string{"title": "x", "platform": "netflix"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []interface{}{"This field is required."}, decodeMap(t, w)["storyline"])

	w = s.do(http.MethodPut, fmt.Sprintf("/watch/%d/", titleID), admin, map[string]string{"title": "x", "storyline": "y", "platform": "nowhere"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Platform does not exist", decodeMap(t, w)["error"])

	w = s.do(http.MethodPost, "/watch/list/", admin, map[string]string{"title": "x", "platform": "netflix"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeMap(t, w), "storyline")
}

func TestReviewCreateFlow(t *testing.T) {
	s := newServer(t, nil)
	titleID := s.seedTitle("netflix", "Dark")
	path := fmt.Sprintf("/watch/%d/review-create/", titleID)

	w := s.do(http.MethodPost, path, "", map[string]int{"rating": 4})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	alice := s.userToken("alice")
	w = s.do(http.MethodPost, path, alice, map[string]interface{}{"rating": 4, "description": "good"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	review := decodeMap(t, w)
	assert.Equal(t, "alice", review["reviewer"])
	assert.Equal(t, 4.0, review["rating"])

	// Immediate retry is throttled for the full day.
	w = s.do(http.MethodPost, path, alice, map[string]int{"rating": 5})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Request was throttled. Expected available in 86400 seconds.", decodeMap(t, w)["detail"])
	assert.Equal(t, "86400", w.Header().Get("Retry-After"))

	bob := s.userToken("bob")
	w = s.do(http.MethodPost, path, bob, map[string]int{"rating": 1})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodGet, fmt.Sprintf("/watch/%d/", titleID), "", nil)
	title := decodeMap(t, w)
	assert.Equal(t, 2.5, title["average_rating"])
	assert.Equal(t, 2.0, title["number_of_ratings"])

	w = s.do(http.MethodGet, fmt.Sprintf("/watch/%d/review/", titleID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	reviews := decodeList(t, w)
	require.Len(t, reviews, 2)
	assert.Equal(t, "alice", reviews[0]["reviewer"])
	assert.Equal(t, "bob", reviews[1]["reviewer"])
}

func TestReviewCreateConflictAndValidation(t *testing.T) {
	s := newServer(t, func(c *config.Config) { c.ReviewCreateRate = "100-M" })
	titleID := s.seedTitle("netflix", "Dark")
	path := fmt.Sprintf("/watch/%d/review-create/", titleID)
	alice := s.userToken("alice")

	w := s.do(http.MethodPost, path, alice, map[string]int{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeMap(t, w), "rating")

	w = s.do(http.MethodPost, path, alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []interface{}{"This field is required."}, decodeMap(t, w)["rating"])

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, path, alice, map[string]int{"rating": 3}).Code)

	w = s.do(http.MethodPost, path, alice, map[string]int{"rating": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "You have already reviewed this movie", decodeMap(t, w)["error"])
}

func TestReviewDetailOwnership(t *testing.T) {
	s := newServer(t, nil)
	titleID := s.seedTitle("netflix", "Dark")
	owner := s.userToken("owner")
	stranger := s.userToken("stranger")
	admin := s.adminToken()

	w := s.do(http.MethodPost, fmt.Sprintf("/watch/%d/review-create/", titleID), owner, map[string]int{"rating": 2})
	require.Equal(t, http.StatusCreated, w.Code)
	path := fmt.Sprintf("/watch/review-detail/%d/", int(decodeMap(t, w)["id"].(float64)))

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPut, path, "", map[string]int{"rating": 5}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPut, path, stranger, map[string]int{"rating": 5}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, path, stranger, nil).Code)

	w = s.do(http.MethodPut, path, owner, map[string]string{"description": "no rating"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPatch, path, owner, map[string]string{"description": "changed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "changed", decodeMap(t, w)["description"])

	w = s.do(http.MethodPut, path, admin, map[string]int{"rating": 5})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5.0, decodeMap(t, w)["rating"])

	// The aggregate still reflects the original rating.
	title := decodeMap(t, s.do(http.MethodGet, fmt.Sprintf("/watch/%d/", titleID), "", nil))
	assert.Equal(t, 2.0, title["average_rating"])

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, path, owner, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, "", nil).Code)
}

func TestReviewListThrottle(t *testing.T) {
	s := newServer(t, func(c *config.Config) { c.ReviewListRate = "2-M" })
	titleID := s.seedTitle("netflix", "Dark")
	path := fmt.Sprintf("/watch/%d/review/", titleID)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, "", nil).Code)
	w := s.do(http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Request was throttled. Expected available in 60 seconds.", decodeMap(t, w)["detail"])

	// Detail has its own budget.
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/watch/review-detail/1/", "", nil).Code)
}

func TestTitleListPagination(t *testing.T) {
	s := newServer(t, nil)
	for _, name := range []string{"A", "B", "C"} {
		s.seedTitle("netflix", name)
	}

	w := s.do(http.MethodGet, "/watch/list/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 2)

	w = s.do(http.MethodGet, "/watch/list/?page=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 1)

	for _, page := range []string{"3", "0", "abc"} {
		w = s.do(http.MethodGet, "/watch/list/?page="+page, "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Invalid page.", decodeMap(t, w)["detail"])
	}
}

func TestFilterMovie(t *testing.T) {
	s := newServer(t, nil)
	for i := 0; i < 4; i++ {
		s.seedTitle("netflix", "Dark")
	}
	s.seedTitle("hulu", "Dark")

	w := s.do(http.MethodGet, "/watch/filter-movie?title=Dark&platform__name=netflix", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeMap(t, w)
	assert.Equal(t, 4.0, body["count"])
	assert.Len(t, body["results"], 3)
	assert.Nil(t, body["previous"])
	assert.Equal(t, "http://example.com/watch/filter-movie?limit=3&platform__name=netflix&start=3&title=Dark", body["next"])

	w = s.do(http.MethodGet, "/watch/filter-movie?title=Dark&platform__name=netflix&start=3", "", nil)
	body = decodeMap(t, w)
	assert.Len(t, body["results"], 1)
	assert.Nil(t, body["next"])
	assert.Equal(t, "http://example.com/watch/filter-movie?limit=3&platform__name=netflix&title=Dark", body["previous"])
}

func TestSearchMovie(t *testing.T) {
	s := newServer(t, nil)
	s.seedTitle("Netflix", "Dark")
	s.seedTitle("hulu", "Inside NETFLIX")
	s.seedTitle("hulu", "Shogun")

	w := s.do(http.MethodGet, "/watch/search-movie?search=netflix", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := decodeList(t, w)
	require.Len(t, results, 2)
	for _, r := range results {
		matched := r["platform"] == "Netflix" || r["title"] == "Inside NETFLIX"
		assert.True(t, matched, "unexpected result %v", r)
	}
}

func TestAccountsFlow(t *testing.T) {
	s := newServer(t, nil)

	w := s.do(http.MethodPost, "/accounts/register/", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	missing := decodeMap(t, w)
	for _, field := range []string{"username", "email", "password", "password_2"} {
		assert.Equal(t, []interface{}{"This field is required."}, missing[field], field)
	}

	w = s.do(http.MethodPost, "/accounts/register/", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "password123", "password_2": "password999",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `["Password didn't match"]`, w.Body.String())

	register := map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "password123", "password_2": "password123",
	}
	w = s.do(http.MethodPost, "/accounts/register/", "", register)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeMap(t, w)
	assert.Equal(t, "alice successfully registered", body["message"])
	assert.NotEmpty(t, body["token"])

	w = s.do(http.MethodPost, "/accounts/register/", "", register)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `["User with the given email already exists"]`, w.Body.String())

	register["email"] = "other@example.com"
	w = s.do(http.MethodPost, "/accounts/register/", "", register)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []interface{}{"A user with that username already exists."}, decodeMap(t, w)["username"])

	w = s.do(http.MethodPost, "/accounts/login/", "", map[string]string{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/accounts/login/", "", map[string]string{"username": "alice", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	token := decodeMap(t, w)["token"].(string)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/accounts/logout/", "", nil).Code)
	w = s.do(http.MethodPost, "/accounts/logout/", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice logged out successfully", decodeMap(t, w)["message"])

	w = s.do(http.MethodGet, "/watch/list/", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid token.", decodeMap(t, w)["detail"])
}

func TestPosterUploadWithoutStorage(t *testing.T) {
	s := newServer(t, nil)
	titleID := s.seedTitle("netflix", "Dark")
	admin := s.adminToken()
	path := fmt.Sprintf("/watch/%d/poster/", titleID)

	w := s.do(http.MethodPost, path, admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []interface{}{"No file was submitted."}, decodeMap(t, w)["poster"])

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("poster", "dark.png")
	require.NoError(t, err)
	_, err = part.Write(append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+admin)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	s := newServer(t, nil)

	w := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeMap(t, w)["status"])

	s.do(http.MethodGet, "/watch/list/", "", nil)
	w = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "watchlist_http_requests_total")
}
