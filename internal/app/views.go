package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"breadcast/internal/adapters/observability"
	"breadcast/internal/domain"
	"breadcast/internal/reviewid"
)

// View is an open bakery review panel: the review list as fetched when the
// panel opened, plus the member's identity map once it has been built.
type View struct {
	ID        string
	BakeryID  string
	SessionID string

	cancel context.CancelFunc
	ready  chan struct{}
	idmap  atomic.Pointer[reviewid.IdentityMap]

	mu       sync.Mutex
	reviews  []map[string]any
	lastUsed time.Time
}

// ResolvedReview is a review of a view together with its resolved identifier.
// ReviewID is nil when the review cannot be identified; such reviews cannot be
// edited or deleted.
type ResolvedReview struct {
	Index    int           `json:"index"`
	Review   domain.Review `json:"review"`
	ReviewID *string       `json:"reviewId"`
	Source   string        `json:"source,omitempty"`
	Editable bool          `json:"editable"`
}

// Ready is closed once the identity map build has finished, whatever its outcome.
func (v *View) Ready() <-chan struct{} { return v.ready }

// IndexSize is the number of keys in the published identity map.
func (v *View) IndexSize() int { return v.idmap.Load().Len() }

func (v *View) Reviews() []ResolvedReview {
	m := v.idmap.Load()
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]ResolvedReview, 0, len(v.reviews))
	for i, r := range v.reviews {
		rr := ResolvedReview{Index: i, Review: mapReview(r)}
		if res, ok := m.Resolve(r, v.BakeryID); ok {
			id := res.ID
			rr.ReviewID = &id
			rr.Source = string(res.Source)
			rr.Editable = true
		}
		out = append(out, rr)
	}
	return out
}

// resolve returns a copy of the review at index and its resolution.
func (v *View) resolve(index int) (map[string]any, reviewid.Resolution, bool, error) {
	m := v.idmap.Load()
	v.mu.Lock()
	defer v.mu.Unlock()
	if index < 0 || index >= len(v.reviews) {
		return nil, reviewid.Resolution{}, false, domain.ErrReviewNotFound
	}
	r := v.reviews[index]
	res, ok := m.Resolve(r, v.BakeryID)
	return r, res, ok, nil
}

// applyUpdate rewrites every review resolving to id. The rewritten review
// carries id directly so later resolutions no longer depend on its text.
func (v *View) applyUpdate(id, text string) {
	m := v.idmap.Load()
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, r := range v.reviews {
		if res, ok := m.Resolve(r, v.BakeryID); ok && res.ID == id {
			next := make(map[string]any, len(r)+1)
			for k, val := range r {
				next[k] = val
			}
			next["reviewId"] = id
			next["content"] = text
			next["text"] = text
			v.reviews[i] = next
		}
	}
}

func (v *View) applyDelete(id string) {
	m := v.idmap.Load()
	v.mu.Lock()
	defer v.mu.Unlock()
	kept := v.reviews[:0]
	for _, r := range v.reviews {
		if res, ok := m.Resolve(r, v.BakeryID); ok && res.ID == id {
			continue
		}
		kept = append(kept, r)
	}
	v.reviews = kept
}

// ViewRegistry owns the open views of all sessions.
type ViewRegistry struct {
	api domain.BakeryAPI
	sem *semaphore.Weighted
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	views map[string]*View
	wg    sync.WaitGroup
}

// NewViewRegistry bounds concurrent identity map builds to workers and drops
// views idle for longer than ttl.
func NewViewRegistry(api domain.BakeryAPI, workers int, ttl time.Duration) *ViewRegistry {
	if workers <= 0 {
		workers = 4
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ViewRegistry{
		api:   api,
		sem:   semaphore.NewWeighted(int64(workers)),
		ttl:   ttl,
		now:   time.Now,
		views: map[string]*View{},
	}
}

// Open fetches the bakery's reviews and, for a logged-in session, starts
// building the identity map in the background. A failed review fetch opens
// an empty view.
func (r *ViewRegistry) Open(ctx context.Context, sid string, sess domain.Session, bakeryID string) (*View, error) {
	r.sweep()

	list, err := r.api.ListBakeryReviews(ctx, bakeryID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("bakery", bakeryID).Msg("list bakery reviews failed")
		list = nil
	}

	// the build outlives the request that opened the view
	vctx, cancel := context.WithCancel(context.Background())
	v := &View{
		ID:        uuid.NewString(),
		BakeryID:  bakeryID,
		SessionID: sid,
		cancel:    cancel,
		ready:     make(chan struct{}),
		reviews:   list,
		lastUsed:  r.now(),
	}

	r.mu.Lock()
	r.views[v.ID] = v
	r.mu.Unlock()

	if !sess.LoggedIn {
		observability.ObserveIdentityMap("skipped")
		close(v.ready)
		return v, nil
	}
	r.wg.Add(1)
	go r.buildIndex(vctx, v, sess.AccessToken)
	return v, nil
}

// buildIndex publishes the identity map only while the view is still open.
// Failures leave the map empty; there is no retry.
func (r *ViewRegistry) buildIndex(ctx context.Context, v *View, token string) {
	defer r.wg.Done()
	defer close(v.ready)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		observability.ObserveIdentityMap("abandoned")
		return
	}
	defer r.sem.Release(1)

	items, err := r.api.ListMyReviews(domain.WithAccessToken(ctx, token))
	if ctx.Err() != nil {
		observability.ObserveIdentityMap("abandoned")
		return
	}
	if err != nil {
		observability.ObserveIdentityMap("failed")
		log.Warn().Err(err).Str("view", v.ID).Msg("fetch member reviews failed; identity map left empty")
		return
	}

	m := reviewid.BuildIdentityMap(items)
	v.idmap.Store(m)
	observability.ObserveIdentityMap("ok")
	log.Debug().Str("view", v.ID).Int("keys", m.Len()).Msg("identity map ready")
}

// Get returns the view if it belongs to sid.
func (r *ViewRegistry) Get(id, sid string) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[id]
	if !ok || v.SessionID != sid {
		return nil, domain.ErrViewNotFound
	}
	v.mu.Lock()
	v.lastUsed = r.now()
	v.mu.Unlock()
	return v, nil
}

// Close discards the view and abandons its identity map build.
func (r *ViewRegistry) Close(id, sid string) error {
	r.mu.Lock()
	v, ok := r.views[id]
	if !ok || v.SessionID != sid {
		r.mu.Unlock()
		return domain.ErrViewNotFound
	}
	delete(r.views, id)
	r.mu.Unlock()
	v.cancel()
	return nil
}

// Len is the number of open views.
func (r *ViewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Shutdown closes every view and waits for in-flight builds to return.
func (r *ViewRegistry) Shutdown() {
	r.mu.Lock()
	for id, v := range r.views {
		v.cancel()
		delete(r.views, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *ViewRegistry) sweep() {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, v := range r.views {
		v.mu.Lock()
		idle := now.Sub(v.lastUsed)
		v.mu.Unlock()
		if idle > r.ttl {
			v.cancel()
			delete(r.views, id)
		}
	}
}
