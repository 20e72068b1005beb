package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"breadcast/internal/domain"
)

// Manager logs members in and out and authorizes member-scoped calls.
type Manager struct {
	api   domain.BakeryAPI
	store domain.SessionStore
	guard *ExpiryGuard
}

func NewManager(api domain.BakeryAPI, store domain.SessionStore, guard *ExpiryGuard) *Manager {
	return &Manager{api: api, store: store, guard: guard}
}

var (
	loginIDPattern  = regexp.MustCompile(`^[a-zA-Z0-9]{5,20}$`)
	passwordPattern = regexp.MustCompile(`^[A-Za-z\d!@#$%^&*()_+]{8,20}$`)
	hasLower        = regexp.MustCompile(`[a-z]`)
	hasUpper        = regexp.MustCompile(`[A-Z]`)
	hasSpecial      = regexp.MustCompile(`[!@#$%^&*()_+]`)
)

// Signup validates a registration and forwards it upstream. It does not log
// the new member in.
func (m *Manager) Signup(ctx context.Context, r domain.SignupRequest) error {
	r.Nickname = strings.TrimSpace(r.Nickname)
	switch {
	case !loginIDPattern.MatchString(r.LoginID):
		return fmt.Errorf("%w: loginId must be 5-20 letters or digits", domain.ErrInvalidInput)
	case utf8.RuneCountInString(r.Nickname) < 2:
		return fmt.Errorf("%w: nickname must be at least 2 characters", domain.ErrInvalidInput)
	case !passwordPattern.MatchString(r.Password) || !hasLower.MatchString(r.Password) ||
		!hasUpper.MatchString(r.Password) || !hasSpecial.MatchString(r.Password):
		return fmt.Errorf("%w: password must be 8-20 characters with lower and upper case letters and a symbol", domain.ErrInvalidInput)
	case r.PasswordConfirm != "" && r.PasswordConfirm != r.Password:
		return fmt.Errorf("%w: passwords do not match", domain.ErrInvalidInput)
	}
	if err := m.api.Signup(ctx, r); err != nil {
		return err
	}
	log.Info().Str("login", r.LoginID).Msg("member signed up")
	return nil
}

// Login authenticates upstream and stores the tokens under sid, minting a new
// session id when sid is empty.
func (m *Manager) Login(ctx context.Context, sid, loginID, password string) (string, domain.Session, error) {
	resp, err := m.api.Login(ctx, loginID, password)
	if err != nil {
		return "", domain.Session{}, err
	}
	s := domain.Session{
		LoggedIn:     true,
		AccessToken:  str(resp, "accessToken"),
		RefreshToken: str(resp, "refreshToken"),
		UserName:     str(resp, "userName"),
		Nickname:     str(resp, "nickname"),
	}
	if s.UserName == "" {
		s.UserName = loginID
	}
	if sid == "" {
		sid = uuid.NewString()
	}
	if err := m.store.Save(ctx, sid, s); err != nil {
		return "", domain.Session{}, fmt.Errorf("save session: %w", err)
	}
	m.guard.Reset(sid)
	return sid, s, nil
}

// Logout clears the local session even when the upstream call fails; the
// upstream error is still returned.
func (m *Manager) Logout(ctx context.Context, sid string) error {
	s, err := m.store.Load(ctx, sid)
	if err != nil {
		return err
	}
	upErr := m.api.Logout(domain.WithAccessToken(ctx, s.AccessToken))
	if err := m.store.Clear(ctx, sid); err != nil {
		log.Warn().Err(err).Msg("clear session failed")
	}
	return upErr
}

func (m *Manager) Current(ctx context.Context, sid string) (domain.Session, error) {
	return m.store.Load(ctx, sid)
}

// Authorize returns ctx carrying the member's access token.
func (m *Manager) Authorize(ctx context.Context, sid string) (context.Context, domain.Session, error) {
	s, err := m.store.Load(ctx, sid)
	if err != nil {
		return ctx, domain.Session{}, err
	}
	if !s.LoggedIn {
		return ctx, s, domain.ErrNotLoggedIn
	}
	return domain.WithAccessToken(ctx, s.AccessToken), s, nil
}

// SetNickname keeps the cached nickname in step with the profile.
func (m *Manager) SetNickname(ctx context.Context, sid, nickname string) error {
	s, err := m.store.Load(ctx, sid)
	if err != nil || !s.LoggedIn {
		return err
	}
	s.Nickname = nickname
	return m.store.Save(ctx, sid, s)
}

// Expired hands an upstream 401 to the guard. It reports whether the caller
// is the one that should tell the user.
func (m *Manager) Expired(ctx context.Context, sid string) bool {
	return m.guard.Expire(ctx, sid)
}

func str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
