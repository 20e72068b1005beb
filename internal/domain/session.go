package domain

import "context"

// Session is the per-browser state the frontend used to keep in local storage.
type Session struct {
	LoggedIn     bool
	UserName     string
	Nickname     string
	AccessToken  string
	RefreshToken string
}

// SignupRequest is a new member's registration. PasswordConfirm is checked
// locally and never sent upstream.
type SignupRequest struct {
	LoginID         string `json:"loginId"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm,omitempty"`
	Nickname        string `json:"nickname"`
}

type tokenKey struct{}

// WithAccessToken attaches a member's upstream access token to ctx.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// AccessToken returns the token attached by WithAccessToken.
func AccessToken(ctx context.Context) string {
	s, _ := ctx.Value(tokenKey{}).(string)
	return s
}
