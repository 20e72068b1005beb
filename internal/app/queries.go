package app

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"breadcast/internal/domain"
)

type QueryService struct {
	api      domain.BakeryAPI
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(api domain.BakeryAPI, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{api: api, cache: c, cacheTTL: ttl}
}

func bakeryKey(id string) string { return "bakery:" + id }
func menusKey(id string) string  { return "menus:" + id }

// GetBakery serves the public bakery detail. The favorite flag depends on the
// caller, so it is never cached.
func (s *QueryService) GetBakery(ctx context.Context, id string) (domain.Bakery, error) {
	var b domain.Bakery
	if ok, _ := s.cache.Get(ctx, bakeryKey(id), &b); ok {
		return b, nil
	}
	p, err := s.api.GetBakery(ctx, id)
	if err != nil {
		return domain.Bakery{}, err
	}
	b = mapBakery(p)
	if b.ID == "" {
		b.ID = id
	}
	b.IsFavorited = nil
	_ = s.cache.Set(ctx, bakeryKey(id), b, int(s.cacheTTL.Seconds()))
	return b, nil
}

func (s *QueryService) ListMenus(ctx context.Context, id string) ([]domain.Menu, error) {
	var out []domain.Menu
	if ok, _ := s.cache.Get(ctx, menusKey(id), &out); ok {
		return out, nil
	}
	raw, err := s.api.GetMenus(ctx, id)
	if err != nil {
		return nil, err
	}
	out = mapMenus(raw)
	_ = s.cache.Set(ctx, menusKey(id), out, int(s.cacheTTL.Seconds()))
	return out, nil
}

// BakeryPage loads the bakery, its menus and (for members) the favorite flag
// concurrently. Only the bakery itself is required; menus and favorites
// degrade to empty.
func (s *QueryService) BakeryPage(ctx context.Context, id string, member bool) (domain.BakeryPage, error) {
	var (
		page domain.BakeryPage
		favs []domain.Bakery
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.GetBakery(gctx, id)
		page.Bakery = b
		return err
	})
	g.Go(func() error {
		menus, err := s.ListMenus(gctx, id)
		if err != nil {
			log.Warn().Err(err).Str("bakery", id).Msg("list menus failed")
			menus = []domain.Menu{}
		}
		page.Menus = menus
		return nil
	})
	if member {
		g.Go(func() error {
			raw, err := s.api.ListFavorites(gctx)
			if err != nil {
				log.Warn().Err(err).Str("bakery", id).Msg("list favorites failed")
				return nil
			}
			favs = mapBakeries(raw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.BakeryPage{}, err
	}
	if favs != nil {
		fav := false
		for _, f := range favs {
			if f.ID == id {
				fav = true
				break
			}
		}
		page.Bakery.IsFavorited = &fav
	}
	return page, nil
}

// ---- member scoped, never cached ----

func (s *QueryService) MyReviews(ctx context.Context) ([]domain.Review, error) {
	raw, err := s.api.ListMyReviews(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Review, 0, len(raw))
	for _, r := range raw {
		out = append(out, mapReview(r))
	}
	return out, nil
}

func (s *QueryService) Favorites(ctx context.Context) ([]domain.Bakery, error) {
	raw, err := s.api.ListFavorites(ctx)
	if err != nil {
		return nil, err
	}
	return mapBakeries(raw), nil
}

func (s *QueryService) SetFavorite(ctx context.Context, bakeryID string, on bool) error {
	if on {
		return s.api.AddFavorite(ctx, bakeryID)
	}
	return s.api.RemoveFavorite(ctx, bakeryID)
}

func (s *QueryService) Me(ctx context.Context) (domain.Member, error) {
	raw, err := s.api.GetMe(ctx)
	if err != nil {
		return domain.Member{}, err
	}
	return mapMember(raw), nil
}

func (s *QueryService) UpdateMe(ctx context.Context, nickname string) (domain.Member, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return domain.Member{}, domain.ErrEmptyContent
	}
	raw, err := s.api.UpdateMe(ctx, nickname)
	if err != nil {
		return domain.Member{}, err
	}
	m := mapMember(raw)
	if m.Nickname == "" {
		m.Nickname = nickname
	}
	return m, nil
}

func (s *QueryService) Courses(ctx context.Context) ([]domain.Course, error) {
	raw, err := s.api.ListCourses(ctx)
	if err != nil {
		return nil, err
	}
	return mapCourses(raw), nil
}
