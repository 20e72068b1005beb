package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"breadcast/internal/app"
	"breadcast/internal/domain"
	"breadcast/internal/session"
)

const signinPath = "/signin"

type Handlers struct {
	Q        *app.QueryService
	Reviews  *app.ReviewService
	Views    *app.ViewRegistry
	Sessions *session.Manager

	// WaitTimeout bounds ?wait=1 on view reads.
	WaitTimeout time.Duration
	// SecureCookie marks the session cookie Secure.
	SecureCookie bool
}

type problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", h.signup)
		r.Post("/auth/login", h.login)
		r.Post("/auth/logout", h.logout)

		r.Route("/bakeries/{id}", func(r chi.Router) {
			r.Get("/", h.getBakery)
			r.Get("/menus", h.listMenus)
			r.Post("/reviews", h.createReview)
			r.Post("/views", h.openView)
			r.Put("/favorite", h.setFavorite(true))
			r.Delete("/favorite", h.setFavorite(false))
			r.Get("/review-actions", h.reviewActions)
		})

		r.Route("/views/{viewID}", func(r chi.Router) {
			r.Get("/reviews", h.viewReviews)
			r.Patch("/reviews/{index}", h.updateReview)
			r.Delete("/reviews/{index}", h.deleteReview)
			r.Delete("/", h.closeView)
		})

		r.Get("/me", h.me)
		r.Patch("/me", h.updateMe)
		r.Get("/me/reviews", h.myReviews)
		r.Get("/me/favorites", h.myFavorites)
		r.Get("/me/courses", h.myCourses)
	})
}

// ---- response helpers ----

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblemBody(w, problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

func writeProblemBody(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

func writeCacheable(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); etag != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("route", routeOf(r)).Msg("failed to write body")
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "request body must be a JSON object")
		return false
	}
	return true
}

// fail maps service errors onto problem responses. An upstream 401 goes
// through the session's expiry guard so only the first caller is told why.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ae *domain.APIError
	switch {
	case errors.Is(err, domain.ErrUnidentifiable):
		writeProblem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", "cannot identify review")
	case errors.Is(err, domain.ErrEmptyContent), errors.Is(err, domain.ErrInvalidInput):
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, domain.ErrViewNotFound), errors.Is(err, domain.ErrReviewNotFound), errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrNotLoggedIn):
		writeProblemBody(w, problem{Type: "about:blank", Title: "Unauthorized", Status: http.StatusUnauthorized,
			Detail: "login required", Redirect: signinPath})
	case errors.Is(err, domain.ErrUnauthorized):
		p := problem{Type: "about:blank", Title: "Unauthorized", Status: http.StatusUnauthorized, Redirect: signinPath}
		if h.Sessions.Expired(r.Context(), sidFrom(r.Context())) {
			p.Detail = "login required"
		}
		writeProblemBody(w, p)
	case errors.Is(err, domain.ErrForbidden):
		writeProblem(w, http.StatusForbidden, "Forbidden", "")
	case errors.As(err, &ae):
		writeProblem(w, http.StatusBadGateway, "Bad Gateway", ae.Message)
	case errors.Is(err, context.DeadlineExceeded):
		writeProblem(w, http.StatusGatewayTimeout, "Gateway Timeout", "")
	default:
		log.Error().Err(err).Str("route", routeOf(r)).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// ensureSID returns the caller's session id, minting one and setting the
// cookie when there is none.
func (h *Handlers) ensureSID(w http.ResponseWriter, r *http.Request) string {
	if sid := sidFrom(r.Context()); sid != "" {
		return sid
	}
	sid := uuid.NewString()
	h.setCookie(w, sid)
	return sid
}

func (h *Handlers) setCookie(w http.ResponseWriter, sid string) {
	c := &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if sid == "" {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}

// authorize resolves the member behind the request; on failure the response
// has already been written.
func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request) (context.Context, bool) {
	ctx, _, err := h.Sessions.Authorize(r.Context(), sidFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return ctx, true
}

func indexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || i < 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid index", "index must be a non-negative integer")
		return 0, false
	}
	return i, true
}

// ---- auth ----

type loginRequest struct {
	LoginID  string `json:"loginId"`
	Password string `json:"password"`
}

type sessionResponse struct {
	LoggedIn bool   `json:"isLoggedIn"`
	UserName string `json:"userName,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

type signupResponse struct {
	LoginID  string `json:"loginId"`
	Nickname string `json:"nickname"`
	Redirect string `json:"redirect"`
}

// signup never touches the session; upstream rejections are the caller's fault.
func (h *Handlers) signup(w http.ResponseWriter, r *http.Request) {
	var in domain.SignupRequest
	if !decode(w, r, &in) {
		return
	}
	in.LoginID = strings.TrimSpace(in.LoginID)
	err := h.Sessions.Signup(r.Context(), in)
	var ae *domain.APIError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, signupResponse{LoginID: in.LoginID, Nickname: strings.TrimSpace(in.Nickname), Redirect: signinPath})
	case errors.As(err, &ae) && ae.Status == http.StatusConflict:
		writeProblem(w, http.StatusConflict, "Conflict", orDefault(ae.Message, "login id already exists"))
	case errors.As(err, &ae) && ae.Status >= 400 && ae.Status < 500:
		writeProblem(w, http.StatusBadRequest, "Bad Request", orDefault(ae.Message, "signup rejected"))
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusBadRequest, "Bad Request", "signup rejected")
	default:
		h.fail(w, r, err)
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.LoginID) == "" || in.Password == "" {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "loginId and password are required")
		return
	}
	sid, s, err := h.Sessions.Login(r.Context(), sidFrom(r.Context()), strings.TrimSpace(in.LoginID), in.Password)
	if errors.Is(err, domain.ErrUnauthorized) {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setCookie(w, sid)
	writeJSON(w, http.StatusOK, sessionResponse{LoggedIn: true, UserName: s.UserName, Nickname: s.Nickname})
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	sid := sidFrom(r.Context())
	if sid != "" {
		if err := h.Sessions.Logout(r.Context(), sid); err != nil {
			log.Warn().Err(err).Msg("upstream logout failed")
		}
	}
	h.setCookie(w, "")
	w.WriteHeader(http.StatusNoContent)
}

// ---- bakeries ----

func (h *Handlers) getBakery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, _, err := h.Sessions.Authorize(r.Context(), sidFrom(r.Context()))
	member := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotLoggedIn) {
		log.Warn().Err(err).Msg("load session failed; serving public page")
	}
	page, err := h.Q.BakeryPage(ctx, id, member)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeCacheable(w, r, page)
}

func (h *Handlers) listMenus(w http.ResponseWriter, r *http.Request) {
	menus, err := h.Q.ListMenus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeCacheable(w, r, menus)
}

func (h *Handlers) setFavorite(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, ok := h.authorize(w, r)
		if !ok {
			return
		}
		if err := h.Q.SetFavorite(ctx, chi.URLParam(r, "id"), on); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handlers) reviewActions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		limit = l
	}
	out, err := h.Reviews.Actions(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- reviews ----

func (h *Handlers) createReview(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var in domain.NewReview
	if !decode(w, r, &in) {
		return
	}
	if err := h.Reviews.Create(ctx, sidFrom(ctx), chi.URLParam(r, "id"), in); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type viewResponse struct {
	ViewID    string               `json:"viewId"`
	BakeryID  string               `json:"bakeryId"`
	Ready     bool                 `json:"ready"`
	IndexSize int                  `json:"indexSize"`
	Reviews   []app.ResolvedReview `json:"reviews"`
}

func render(v *app.View) viewResponse {
	ready := false
	select {
	case <-v.Ready():
		ready = true
	default:
	}
	return viewResponse{
		ViewID:    v.ID,
		BakeryID:  v.BakeryID,
		Ready:     ready,
		IndexSize: v.IndexSize(),
		Reviews:   v.Reviews(),
	}
}

func (h *Handlers) openView(w http.ResponseWriter, r *http.Request) {
	sid := h.ensureSID(w, r)
	sess, err := h.Sessions.Current(r.Context(), sid)
	if err != nil {
		log.Warn().Err(err).Msg("load session failed; opening view anonymously")
		sess = domain.Session{}
	}
	v, err := h.Views.Open(r.Context(), sid, sess, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, render(v))
}

func (h *Handlers) viewReviews(w http.ResponseWriter, r *http.Request) {
	v, err := h.Views.Get(chi.URLParam(r, "viewID"), sidFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if r.URL.Query().Get("wait") == "1" {
		d := h.WaitTimeout
		if d <= 0 {
			d = 5 * time.Second
		}
		t := time.NewTimer(d)
		select {
		case <-v.Ready():
		case <-t.C:
		case <-r.Context().Done():
		}
		t.Stop()
	}
	writeJSON(w, http.StatusOK, render(v))
}

type textRequest struct {
	Text string `json:"text"`
}

type mutationResponse struct {
	ReviewID string `json:"reviewId"`
}

func (h *Handlers) updateReview(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.authorize(w, r)
	if !ok {
		return
	}
	idx, ok := indexParam(w, r)
	if !ok {
		return
	}
	var in textRequest
	if !decode(w, r, &in) {
		return
	}
	id, err := h.Reviews.Update(ctx, sidFrom(ctx), chi.URLParam(r, "viewID"), idx, in.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{ReviewID: id})
}

func (h *Handlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.authorize(w, r)
	if !ok {
		return
	}
	idx, ok := indexParam(w, r)
	if !ok {
		return
	}
	id, err := h.Reviews.Delete(ctx, sidFrom(ctx), chi.URLParam(r, "viewID"), idx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{ReviewID: id})
}

func (h *Handlers) closeView(w http.ResponseWriter, r *http.Request) {
	if err := h.Views.Close(chi.URLParam(r, "viewID"), sidFrom(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- member ----

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.authorize(w, r)
	if !ok {
		return
	}
	m, err := h.Q.Me(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type nicknameRequest struct {
	Nickname string `json:"nickname"`
}

func (h *Handlers) updateMe(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var in nicknameRequest
	if !decode(w, r, &in) {
		return
	}
	m, err := h.Q.UpdateMe(ctx, in.Nickname)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Sessions.SetNickname(ctx, sidFrom(ctx), m.Nickname); err != nil {
		log.Warn().Err(err).Msg("update session nickname failed")
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) myReviews(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.authorize(w, r)
	if !ok {
		return
	}
	out, err := h.Q.MyReviews(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) myFavorites(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.authorize(w, r)
	if !ok {
		return
	}
	out, err := h.Q.Favorites(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) myCourses(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.authorize(w, r)
	if !ok {
		return
	}
	out, err := h.Q.Courses(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
