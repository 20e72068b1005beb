package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisad "breadcast/internal/adapters/redis"
	"breadcast/internal/app"
	"breadcast/internal/domain"
	"breadcast/internal/session"
)

// upstream is an in-memory breadcast API for bakery 7.
type upstream struct {
	mu       sync.Mutex
	writeErr error
	patched  []string
	deleted  []string
}

func (u *upstream) GetBakery(ctx context.Context, id string) (map[string]any, error) {
	if id != "7" {
		return nil, domain.ErrNotFound
	}
	return map[string]any{"bakeryId": 7.0, "name": "Sungsimdang", "address": "Daejeon"}, nil
}
func (u *upstream) GetMenus(ctx context.Context, id string) ([]map[string]any, error) {
	return []map[string]any{{"menuName": "Twigim soboro", "price": 1700.0}}, nil
}
func (u *upstream) ListBakeryReviews(ctx context.Context, id string) ([]map[string]any, error) {
	return []map[string]any{
		{"bakeryReviewId": 42.0, "text": "great", "date": "2024-01-01"},
		{"text": "crusty", "date": "2024-01-02", "rating": 4.0},
		{"text": "anonymous", "date": "2024-01-03"},
	}, nil
}
func (u *upstream) CreateReview(ctx context.Context, id string, r domain.NewReview) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.writeErr
}

func (u *upstream) failWrites(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.writeErr = err
}

func (u *upstream) writes() (patched, deleted []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.patched...), append([]string(nil), u.deleted...)
}
func (u *upstream) UpdateReview(ctx context.Context, id string, p domain.ReviewPatch) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.writeErr != nil {
		return u.writeErr
	}
	u.patched = append(u.patched, id+":"+p.Text)
	return nil
}
func (u *upstream) DeleteReview(ctx context.Context, id string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.writeErr != nil {
		return u.writeErr
	}
	u.deleted = append(u.deleted, id)
	return nil
}
func (u *upstream) ListMyReviews(ctx context.Context) ([]map[string]any, error) {
	if domain.AccessToken(ctx) != "at" {
		return nil, domain.ErrUnauthorized
	}
	return []map[string]any{{"reviewId": "99", "bakeryId": "7", "text": "crusty", "date": "2024-01-02"}}, nil
}
func (u *upstream) ListFavorites(ctx context.Context) ([]map[string]any, error) {
	return []map[string]any{{"bakeryId": "7"}}, nil
}
func (u *upstream) AddFavorite(ctx context.Context, id string) error    { return nil }
func (u *upstream) RemoveFavorite(ctx context.Context, id string) error { return nil }
func (u *upstream) GetMe(ctx context.Context) (map[string]any, error) {
	return map[string]any{"loginId": "hyejin01", "nickname": "baker"}, nil
}
func (u *upstream) UpdateMe(ctx context.Context, nickname string) (map[string]any, error) {
	return map[string]any{"loginId": "hyejin01", "nickname": nickname}, nil
}
func (u *upstream) ListCourses(ctx context.Context) ([]map[string]any, error) {
	return []map[string]any{}, nil
}
func (u *upstream) Login(ctx context.Context, id, pw string) (map[string]any, error) {
	if pw != "pw" {
		return nil, domain.ErrUnauthorized
	}
	return map[string]any{"accessToken": "at", "userName": "hyejin"}, nil
}
func (u *upstream) Logout(ctx context.Context) error { return nil }
func (u *upstream) Signup(ctx context.Context, r domain.SignupRequest) error {
	switch r.LoginID {
	case "taken01":
		return &domain.APIError{Status: http.StatusConflict, Message: "duplicate login id"}
	case "banned01":
		return &domain.APIError{Status: http.StatusBadRequest, Message: "nickname not allowed"}
	case "broken01":
		return &domain.APIError{Status: http.StatusInternalServerError, Message: "db down"}
	}
	return nil
}

type fixture struct {
	srv   *httptest.Server
	c     *http.Client
	up    *upstream
	h     *Handlers
	store *redisad.SessionStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	up := &upstream{}
	store := redisad.NewSessionStore(rc, time.Hour)
	views := app.NewViewRegistry(up, 2, time.Minute)
	t.Cleanup(views.Shutdown)

	h := &Handlers{
		Q:           app.NewQueryService(up, redisad.NewWithClient(rc), time.Minute),
		Reviews:     app.NewReviewService(up, views, nil),
		Views:       views,
		Sessions:    session.NewManager(up, store, session.NewExpiryGuard(store, time.Hour)),
		WaitTimeout: 2 * time.Second,
	}
	s := New(5 * time.Second)
	s.MountHandlers(h)
	srv := httptest.NewServer(s.Mux())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &fixture{srv: srv, c: &http.Client{Jar: jar}, up: up, h: h, store: store}
}

func (f *fixture) do(t *testing.T, method, path, body string, hdr ...string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := f.c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	resp, _ := f.do(t, http.MethodPost, "/v1/auth/login", `{"loginId":"hyejin01","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (f *fixture) openView(t *testing.T) viewResponse {
	t.Helper()
	resp, b := f.do(t, http.MethodPost, "/v1/bakeries/7/views", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var v viewResponse
	require.NoError(t, json.Unmarshal(b, &v))
	resp, b = f.do(t, http.MethodGet, "/v1/views/"+v.ViewID+"/reviews?wait=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v = viewResponse{}
	require.NoError(t, json.Unmarshal(b, &v))
	require.True(t, v.Ready)
	return v
}

func decodeProblem(t *testing.T, b []byte) problem {
	t.Helper()
	var p problem
	require.NoError(t, json.Unmarshal(b, &p))
	return p
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, b := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(b))
}

func TestLogin_BadCredentials(t *testing.T) {
	f := newFixture(t)
	resp, b := f.do(t, http.MethodPost, "/v1/auth/login", `{"loginId":"hyejin01","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid credentials", decodeProblem(t, b).Detail)

	resp, _ = f.do(t, http.MethodPost, "/v1/auth/login", `{"loginId":" "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSignup(t *testing.T) {
	f := newFixture(t)
	body := func(id string) string {
		return fmt.Sprintf(`{"loginId":%q,"password":"Crust!y99","passwordConfirm":"Crust!y99","nickname":"crumb"}`, id)
	}

	resp, b := f.do(t, http.MethodPost, "/v1/auth/signup", body("baker01"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(b))
	assert.JSONEq(t, `{"loginId":"baker01","nickname":"crumb","redirect":"/signin"}`, string(b))
	for _, c := range resp.Cookies() {
		assert.NotEqual(t, SessionCookie, c.Name, "signup does not start a session")
	}

	resp, b = f.do(t, http.MethodPost, "/v1/auth/signup", body("taken01"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "duplicate login id", decodeProblem(t, b).Detail)

	resp, b = f.do(t, http.MethodPost, "/v1/auth/signup", body("banned01"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "nickname not allowed", decodeProblem(t, b).Detail)

	resp, b = f.do(t, http.MethodPost, "/v1/auth/signup", body("broken01"))
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "db down", decodeProblem(t, b).Detail)

	resp, b = f.do(t, http.MethodPost, "/v1/auth/signup",
		`{"loginId":"baker01","password":"Crust!y99","passwordConfirm":"Crust!y98","nickname":"crumb"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeProblem(t, b).Detail, "passwords do not match")
}

func TestView_MemberEditsThroughIndex(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	v := f.openView(t)

	require.Len(t, v.Reviews, 3)
	assert.Equal(t, 1, v.IndexSize)
	assert.True(t, v.Reviews[0].Editable)
	assert.True(t, v.Reviews[1].Editable)
	assert.False(t, v.Reviews[2].Editable)

	resp, b := f.do(t, http.MethodPatch, fmt.Sprintf("/v1/views/%s/reviews/1", v.ViewID), `{"text":"crustier"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))
	assert.JSONEq(t, `{"reviewId":"99"}`, string(b))
	patched, _ := f.up.writes()
	assert.Equal(t, []string{"99:crustier"}, patched)

	resp, b = f.do(t, http.MethodDelete, fmt.Sprintf("/v1/views/%s/reviews/2", v.ViewID), "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "cannot identify review", decodeProblem(t, b).Detail)
	_, deleted := f.up.writes()
	assert.Empty(t, deleted)

	resp, _ = f.do(t, http.MethodPatch, fmt.Sprintf("/v1/views/%s/reviews/0", v.ViewID), `{"text":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPatch, fmt.Sprintf("/v1/views/%s/reviews/x", v.ViewID), `{"text":"a"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/v1/views/"+v.ViewID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/v1/views/"+v.ViewID+"/reviews", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestView_AnonymousCannotWrite(t *testing.T) {
	f := newFixture(t)
	v := f.openView(t)
	assert.Equal(t, 0, v.IndexSize)
	assert.True(t, v.Reviews[0].Editable, "direct ids resolve without an index")
	assert.False(t, v.Reviews[1].Editable)

	resp, b := f.do(t, http.MethodDelete, fmt.Sprintf("/v1/views/%s/reviews/0", v.ViewID), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	p := decodeProblem(t, b)
	assert.Equal(t, "/signin", p.Redirect)
	assert.Equal(t, "login required", p.Detail)
}

func TestView_OtherSessionCannotSeeView(t *testing.T) {
	f := newFixture(t)
	v := f.openView(t)

	other := &http.Client{}
	resp, err := other.Get(f.srv.URL + "/v1/views/" + v.ViewID + "/reviews")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpstreamUnauthorized_ReportedOnce(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	v := f.openView(t)
	f.up.failWrites(domain.ErrUnauthorized)

	resp, b := f.do(t, http.MethodDelete, fmt.Sprintf("/v1/views/%s/reviews/0", v.ViewID), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	p := decodeProblem(t, b)
	assert.Equal(t, "login required", p.Detail)
	assert.Equal(t, "/signin", p.Redirect)

	// a request already past authorization when the session expired
	r := httptest.NewRequest(http.MethodDelete, "/", nil)
	r = r.WithContext(context.WithValue(r.Context(), sidKey{}, sidOf(t, f)))
	w := httptest.NewRecorder()
	f.h.fail(w, r, domain.ErrUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	p = decodeProblem(t, w.Body.Bytes())
	assert.Empty(t, p.Detail, "later callers are not told again")
	assert.Equal(t, "/signin", p.Redirect)

	// the session is gone
	resp, _ = f.do(t, http.MethodGet, "/v1/me", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func sidOf(t *testing.T, f *fixture) string {
	t.Helper()
	u, err := http.NewRequest(http.MethodGet, f.srv.URL, nil)
	require.NoError(t, err)
	for _, c := range f.c.Jar.Cookies(u.URL) {
		if c.Name == SessionCookie {
			return c.Value
		}
	}
	t.Fatalf("no session cookie")
	return ""
}

func TestBakery_ETagAndFavorite(t *testing.T) {
	f := newFixture(t)

	resp, b := f.do(t, http.MethodGet, "/v1/bakeries/7", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	var page domain.BakeryPage
	require.NoError(t, json.Unmarshal(b, &page))
	assert.Equal(t, "Sungsimdang", page.Bakery.Name)
	assert.Nil(t, page.Bakery.IsFavorited)
	require.Len(t, page.Menus, 1)

	resp, _ = f.do(t, http.MethodGet, "/v1/bakeries/7", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)

	f.login(t)
	resp, b = f.do(t, http.MethodGet, "/v1/bakeries/7", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = domain.BakeryPage{}
	require.NoError(t, json.Unmarshal(b, &page))
	require.NotNil(t, page.Bakery.IsFavorited)
	assert.True(t, *page.Bakery.IsFavorited)
	assert.NotEqual(t, etag, resp.Header.Get("ETag"))

	resp, _ = f.do(t, http.MethodPut, "/v1/bakeries/7/favorite", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/v1/bakeries/8", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMe_NicknameFollowsProfile(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/v1/me", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	f.login(t)
	resp, b := f.do(t, http.MethodPatch, "/v1/me", `{"nickname":"croissant"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"loginId":"hyejin01","nickname":"croissant"}`, string(b))

	s, err := f.store.Load(context.Background(), sidOf(t, f))
	require.NoError(t, err)
	assert.Equal(t, "croissant", s.Nickname)

	resp, _ = f.do(t, http.MethodPost, "/v1/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/v1/me/favorites", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestReviewActions(t *testing.T) {
	f := newFixture(t)
	resp, b := f.do(t, http.MethodGet, "/v1/bakeries/7/review-actions", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(b))

	resp, _ = f.do(t, http.MethodGet, "/v1/bakeries/7/review-actions?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFail_APIErrorIsBadGateway(t *testing.T) {
	f := newFixture(t)
	w := httptest.NewRecorder()
	f.h.fail(w, httptest.NewRequest(http.MethodGet, "/", nil), &domain.APIError{Status: 500, Message: "db down"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "db down", decodeProblem(t, w.Body.Bytes()).Detail)
}
