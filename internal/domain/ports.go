package domain

import "context"

// BakeryAPI is the upstream breadcast REST API. Calls made on behalf of a
// member carry the member's access token in ctx.
type BakeryAPI interface {
	// Public reads
	GetBakery(ctx context.Context, id string) (map[string]any, error)
	GetMenus(ctx context.Context, id string) ([]map[string]any, error)
	ListBakeryReviews(ctx context.Context, bakeryID string) ([]map[string]any, error)

	// Review writes
	CreateReview(ctx context.Context, bakeryID string, r NewReview) error
	UpdateReview(ctx context.Context, reviewID string, p ReviewPatch) error
	DeleteReview(ctx context.Context, reviewID string) error

	// Member scoped
	ListMyReviews(ctx context.Context) ([]map[string]any, error)
	ListFavorites(ctx context.Context) ([]map[string]any, error)
	AddFavorite(ctx context.Context, bakeryID string) error
	RemoveFavorite(ctx context.Context, bakeryID string) error
	GetMe(ctx context.Context) (map[string]any, error)
	UpdateMe(ctx context.Context, nickname string) (map[string]any, error)
	ListCourses(ctx context.Context) ([]map[string]any, error)

	// Auth
	Signup(ctx context.Context, r SignupRequest) error
	Login(ctx context.Context, loginID, password string) (map[string]any, error)
	Logout(ctx context.Context) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type SessionStore interface {
	Load(ctx context.Context, sid string) (Session, error)
	Save(ctx context.Context, sid string, s Session) error
	Clear(ctx context.Context, sid string) error
}

type AuditRepository interface {
	RecordAction(ctx context.Context, a ReviewAction) error
	ListActions(ctx context.Context, bakeryID string, limit int) ([]ReviewAction, error)
	LogMiss(ctx context.Context, bakeryID string, status int, reason string) error
}
