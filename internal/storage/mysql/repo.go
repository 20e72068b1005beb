package mysql

import (
	"context"
	"database/sql"

	"breadcast/internal/domain"
)

const maxActions = 200

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) RecordAction(ctx context.Context, a domain.ReviewAction) error {
	_, err := r.db.ExecContext(ctx, insertActionSQL,
		a.SessionID,
		a.BakeryID,
		valStr(a.ReviewID),
		a.Action,
		a.Outcome,
		a.HTTPStatus,
	)
	return err
}

func (r *Repo) ListActions(ctx context.Context, bakeryID string, limit int) ([]domain.ReviewAction, error) {
	if limit <= 0 || limit > maxActions {
		limit = maxActions
	}
	rows, err := r.db.QueryContext(ctx, listActionsSQL, bakeryID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ReviewAction{}
	for rows.Next() {
		var a domain.ReviewAction
		var reviewID sql.NullString
		if err := rows.Scan(
			&a.ID,
			&a.SessionID,
			&a.BakeryID,
			&reviewID,
			&a.Action,
			&a.Outcome,
			&a.HTTPStatus,
			&a.CreatedAt, // requires parseTime=true in the DSN
		); err != nil {
			return nil, err
		}
		if reviewID.Valid {
			s := reviewID.String
			a.ReviewID = &s
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) LogMiss(ctx context.Context, bakeryID string, status int, reason string) error {
	_, err := r.db.ExecContext(ctx, insertMissSQL, bakeryID, reason, status)
	return err
}

// Ping checks connectivity.
func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }
