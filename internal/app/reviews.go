package app

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"breadcast/internal/adapters/observability"
	"breadcast/internal/domain"
	"breadcast/internal/reviewid"
)

const defaultRating = 5

// ReviewService performs review writes. Update and delete address the review
// by its position in an open view and refuse, before any upstream call, when
// its identifier cannot be resolved. Nothing is retried and concurrent writes
// to one review are not serialized: the last upstream response wins.
type ReviewService struct {
	api   domain.BakeryAPI
	views *ViewRegistry
	audit domain.AuditRepository
}

// NewReviewService accepts a nil audit repository.
func NewReviewService(api domain.BakeryAPI, views *ViewRegistry, audit domain.AuditRepository) *ReviewService {
	return &ReviewService{api: api, views: views, audit: audit}
}

func (s *ReviewService) Create(ctx context.Context, sid, bakeryID string, in domain.NewReview) error {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		s.record(ctx, sid, bakeryID, nil, domain.ActionCreate, domain.OutcomeInvalid, 0)
		return domain.ErrEmptyContent
	}
	if in.Rating <= 0 {
		in.Rating = defaultRating
	}
	if in.Photo != nil {
		in.Photo = ptrStr(strings.TrimSpace(*in.Photo))
	}

	err := s.api.CreateReview(ctx, bakeryID, in)
	s.record(ctx, sid, bakeryID, nil, domain.ActionCreate, outcomeOf(err), domain.StatusOf(err))
	return err
}

// Update replaces the text of the review at index and returns its identifier.
// Rating and photo are sent back unchanged.
func (s *ReviewService) Update(ctx context.Context, sid, viewID string, index int, text string) (string, error) {
	v, rec, res, err := s.target(ctx, sid, viewID, index, domain.ActionUpdate)
	if err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		s.record(ctx, sid, v.BakeryID, &res.ID, domain.ActionUpdate, domain.OutcomeInvalid, 0)
		return "", domain.ErrEmptyContent
	}

	target := mapReview(rec)
	patch := domain.ReviewPatch{Text: trimmed, Rating: target.Rating, Photo: target.Photo}
	err = s.api.UpdateReview(ctx, res.ID, patch)
	s.record(ctx, sid, v.BakeryID, &res.ID, domain.ActionUpdate, outcomeOf(err), domain.StatusOf(err))
	if err != nil {
		return "", err
	}
	v.applyUpdate(res.ID, trimmed)
	return res.ID, nil
}

// Delete removes the review at index and returns its identifier.
func (s *ReviewService) Delete(ctx context.Context, sid, viewID string, index int) (string, error) {
	v, _, res, err := s.target(ctx, sid, viewID, index, domain.ActionDelete)
	if err != nil {
		return "", err
	}
	err = s.api.DeleteReview(ctx, res.ID)
	s.record(ctx, sid, v.BakeryID, &res.ID, domain.ActionDelete, outcomeOf(err), domain.StatusOf(err))
	if err != nil {
		return "", err
	}
	v.applyDelete(res.ID)
	return res.ID, nil
}

// Actions lists the most recent review writes against a bakery.
func (s *ReviewService) Actions(ctx context.Context, bakeryID string, limit int) ([]domain.ReviewAction, error) {
	if s.audit == nil {
		return []domain.ReviewAction{}, nil
	}
	return s.audit.ListActions(ctx, bakeryID, limit)
}

func (s *ReviewService) target(ctx context.Context, sid, viewID string, index int, action string) (*View, map[string]any, reviewid.Resolution, error) {
	v, err := s.views.Get(viewID, sid)
	if err != nil {
		return nil, nil, reviewid.Resolution{}, err
	}
	rec, res, ok, err := v.resolve(index)
	if err != nil {
		return nil, nil, reviewid.Resolution{}, err
	}
	if !ok {
		observability.ObserveResolution("unresolved")
		s.record(ctx, sid, v.BakeryID, nil, action, domain.OutcomeUnresolved, 0)
		return nil, nil, reviewid.Resolution{}, domain.ErrUnidentifiable
	}
	observability.ObserveResolution(string(res.Source))
	return v, rec, res, nil
}

// record is best-effort: audit failures never fail the user's action.
func (s *ReviewService) record(ctx context.Context, sid, bakeryID string, reviewID *string, action, outcome string, status int) {
	observability.ObserveMutation(action, outcome)
	if s.audit == nil {
		return
	}
	a := domain.ReviewAction{
		SessionID:  sid,
		BakeryID:   bakeryID,
		ReviewID:   reviewID,
		Action:     action,
		Outcome:    outcome,
		HTTPStatus: status,
	}
	if err := s.audit.RecordAction(context.WithoutCancel(ctx), a); err != nil {
		log.Error().Err(err).Str("action", action).Msg("record review action failed")
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return domain.OutcomeOK
	case errors.Is(err, domain.ErrUnauthorized):
		return domain.OutcomeUnauthorized
	}
	return domain.OutcomeFailed
}
