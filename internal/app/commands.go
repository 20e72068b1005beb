package app

import (
	"context"
	"errors"
	"time"

	"breadcast/internal/domain"
)

// WarmService pre-fetches public bakery data into the cache.
type WarmService struct {
	api      domain.BakeryAPI
	audit    domain.AuditRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewWarmService(api domain.BakeryAPI, audit domain.AuditRepository, cache domain.Cache, ttl time.Duration) *WarmService {
	return &WarmService{api: api, audit: audit, cache: cache, cacheTTL: ttl}
}

// WarmBakery refreshes the cached detail and menus of one bakery. Missing or
// inaccessible bakeries are recorded as misses and evicted, not returned as
// errors; anything else is surfaced.
func (s *WarmService) WarmBakery(ctx context.Context, id string) error {
	p, err := s.api.GetBakery(ctx, id)
	if err != nil {
		if status, ok := missStatus(err); ok {
			_ = s.audit.LogMiss(ctx, id, status, "bakery")
			s.invalidate(ctx, id)
			return nil
		}
		return err
	}

	b := mapBakery(p)
	if b.ID == "" {
		b.ID = id
	}
	b.IsFavorited = nil
	if err := s.cache.Set(ctx, bakeryKey(id), b, s.ttlSec()); err != nil {
		return err
	}

	// Menus are best-effort: a missing menu board is a miss, not a failure.
	menus, err := s.api.GetMenus(ctx, id)
	if err != nil {
		if status, ok := missStatus(err); ok {
			_ = s.audit.LogMiss(ctx, id, status, "menus")
			_ = s.cache.Del(ctx, menusKey(id))
			return nil
		}
		return err
	}
	return s.cache.Set(ctx, menusKey(id), mapMenus(menus), s.ttlSec())
}

func (s *WarmService) invalidate(ctx context.Context, id string) {
	_ = s.cache.Del(ctx, bakeryKey(id))
	_ = s.cache.Del(ctx, menusKey(id))
}

func (s *WarmService) ttlSec() int { return int(s.cacheTTL.Seconds()) }

func missStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return 404, true
	case errors.Is(err, domain.ErrUnauthorized):
		return 401, true
	case errors.Is(err, domain.ErrForbidden):
		return 403, true
	}
	return 0, false
}
