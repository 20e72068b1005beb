// internal/adapters/breadcast/client.go
package breadcast

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"breadcast/internal/adapters/observability"
	"breadcast/internal/domain"
)

const (
	service = "breadcast"

	// public GETs are retried; everything else gets one attempt
	readAttempts   = 4
	singleAttempt  = 1
	maxErrBodySize = 4096
)

type Client struct {
	base string
	hc   *http.Client
	rl   *rate.Limiter
}

func New(base string, rps int, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(base) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if rps <= 0 {
		rps = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: timeout},
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// ---- Public reads ----

func (c *Client) GetBakery(ctx context.Context, id string) (map[string]any, error) {
	raw, err := c.do(ctx, "bakery", http.MethodGet, "/api/bakeries/"+url.PathEscape(id), nil, readAttempts)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw)
}

func (c *Client) GetMenus(ctx context.Context, id string) ([]map[string]any, error) {
	raw, err := c.do(ctx, "menus", http.MethodGet, "/api/bakeries/"+url.PathEscape(id)+"/menus", nil, readAttempts)
	if err != nil {
		return nil, err
	}
	return decodeList(raw)
}

// ListBakeryReviews is not retried: a failed list degrades to an empty panel.
func (c *Client) ListBakeryReviews(ctx context.Context, bakeryID string) ([]map[string]any, error) {
	raw, err := c.do(ctx, "bakery_reviews", http.MethodGet, "/api/bakeries/"+url.PathEscape(bakeryID)+"/bakery-reviews", nil, singleAttempt)
	if err != nil {
		return nil, err
	}
	return decodeList(raw)
}

// ---- Review writes ----

func (c *Client) CreateReview(ctx context.Context, bakeryID string, r domain.NewReview) error {
	_, err := c.do(ctx, "review_create", http.MethodPost, "/api/bakeries/"+url.PathEscape(bakeryID)+"/bakery-reviews", r, singleAttempt)
	return err
}

func (c *Client) UpdateReview(ctx context.Context, reviewID string, p domain.ReviewPatch) error {
	_, err := c.do(ctx, "review_update", http.MethodPatch, "/api/bakery-reviews/"+url.PathEscape(reviewID), p, singleAttempt)
	return err
}

func (c *Client) DeleteReview(ctx context.Context, reviewID string) error {
	_, err := c.do(ctx, "review_delete", http.MethodDelete, "/api/bakery-reviews/"+url.PathEscape(reviewID), nil, singleAttempt)
	return err
}

// ---- Member scoped ----

func (c *Client) ListMyReviews(ctx context.Context) ([]map[string]any, error) {
	raw, err := c.do(ctx, "my_reviews", http.MethodGet, "/api/members/me/bakery-reviews", nil, singleAttempt)
	if err != nil {
		return nil, err
	}
	return decodeList(raw)
}

func (c *Client) ListFavorites(ctx context.Context) ([]map[string]any, error) {
	raw, err := c.do(ctx, "favorites", http.MethodGet, "/api/members/me/favorites/bakeries", nil, singleAttempt)
	if err != nil {
		return nil, err
	}
	return decodeList(raw)
}

func (c *Client) AddFavorite(ctx context.Context, bakeryID string) error {
	_, err := c.do(ctx, "favorite_add", http.MethodPost, "/api/members/me/favorites/bakeries/"+url.PathEscape(bakeryID), nil, singleAttempt)
	return err
}

func (c *Client) RemoveFavorite(ctx context.Context, bakeryID string) error {
	_, err := c.do(ctx, "favorite_remove", http.MethodDelete, "/api/members/me/favorites/bakeries/"+url.PathEscape(bakeryID), nil, singleAttempt)
	return err
}

func (c *Client) GetMe(ctx context.Context) (map[string]any, error) {
	raw, err := c.do(ctx, "me", http.MethodGet, "/api/members/me", nil, singleAttempt)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw)
}

func (c *Client) UpdateMe(ctx context.Context, nickname string) (map[string]any, error) {
	raw, err := c.do(ctx, "me_update", http.MethodPatch, "/api/members/me", map[string]string{"nickname": nickname}, singleAttempt)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw)
}

func (c *Client) ListCourses(ctx context.Context) ([]map[string]any, error) {
	raw, err := c.do(ctx, "courses", http.MethodGet, "/api/members/me/courses", nil, singleAttempt)
	if err != nil {
		return nil, err
	}
	return decodeList(raw)
}

// ---- Auth ----

func (c *Client) Signup(ctx context.Context, r domain.SignupRequest) error {
	body := map[string]string{"loginId": r.LoginID, "password": r.Password, "nickname": r.Nickname}
	_, err := c.do(ctx, "signup", http.MethodPost, "/auth/signup", body, singleAttempt)
	return err
}

func (c *Client) Login(ctx context.Context, loginID, password string) (map[string]any, error) {
	body := map[string]string{"loginId": loginID, "password": password}
	raw, err := c.do(ctx, "login", http.MethodPost, "/auth/login", body, singleAttempt)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw)
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, "logout", http.MethodPost, "/auth/logout", nil, singleAttempt)
	return err
}

// ---- Internals ----

// do sends one request (retrying up to attempts times on 429/5xx and network
// errors) and returns the unwrapped payload.
func (c *Client) do(ctx context.Context, endpoint, method, path string, body any, attempts int) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = b
	}

	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		last := i == attempts-1

		// build a fresh request each attempt
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "breadcast-gw/1.0")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if tok := domain.AccessToken(ctx); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(service, endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if !last && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr
		}
		observability.ObserveExternal(service, endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			b, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, err
			}
			return unwrap(b), nil

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, nil

		case http.StatusNotFound:
			resp.Body.Close()
			return nil, domain.ErrNotFound

		case http.StatusUnauthorized:
			resp.Body.Close()
			return nil, domain.ErrUnauthorized

		case http.StatusForbidden:
			resp.Body.Close()
			return nil, domain.ErrForbidden

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			// Prefer server-provided Retry-After; otherwise exponential backoff.
			wait := retryAfter(resp)
			lastErr = apiError(resp)
			if wait == 0 {
				wait = backoff(i)
			}
			if !last && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr

		default:
			return nil, apiError(resp)
		}
	}
	return nil, lastErr
}

// apiError reads a small error body and closes it.
func apiError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
	resp.Body.Close()
	msg := strings.TrimSpace(string(b))
	var withMsg struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(b, &withMsg) == nil {
		if withMsg.Message != "" {
			msg = withMsg.Message
		} else if withMsg.Error != "" {
			msg = withMsg.Error
		}
	}
	return &domain.APIError{Status: resp.StatusCode, Message: msg}
}

// unwrap returns the "data" member of an envelope, or the whole body.
func unwrap(b []byte) json.RawMessage {
	t := bytes.TrimSpace(b)
	if len(t) == 0 || t[0] != '{' {
		return t
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(t, &env); err != nil {
		return t
	}
	if d := bytes.TrimSpace(env.Data); len(d) > 0 && !bytes.Equal(d, []byte("null")) {
		return d
	}
	return t
}

// decodeJSON keeps numbers as json.Number so large ids survive unrounded.
func decodeJSON(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(dst)
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := decodeJSON(raw, &out); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// decodeList accepts a JSON array of objects. Anything else is an empty list.
func decodeList(raw json.RawMessage) ([]map[string]any, error) {
	if len(raw) == 0 {
		return []map[string]any{}, nil
	}
	var v any
	if err := decodeJSON(raw, &v); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	arr, ok := v.([]any)
	if !ok {
		return []map[string]any{}, nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, it := range arr {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns 200ms, 400ms, 800ms... plus up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
