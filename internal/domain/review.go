package domain

import "time"

// Review is the typed view of an upstream review record. Raw keeps the record
// as received; identifier resolution works on it rather than on these fields.
type Review struct {
	Text   string         `json:"text"`
	Photo  *string        `json:"photo,omitempty"`
	Date   string         `json:"date,omitempty"`
	Rating *float64       `json:"rating,omitempty"`
	Writer string         `json:"writer,omitempty"`
	Raw    map[string]any `json:"-"`
}

// NewReview is the payload of a review creation.
type NewReview struct {
	Text   string  `json:"text"`
	Photo  *string `json:"photo"`
	Rating float64 `json:"rating"`
}

// ReviewPatch is the payload of a review update.
type ReviewPatch struct {
	Text   string   `json:"text"`
	Rating *float64 `json:"rating"`
	Photo  *string  `json:"photo"`
}

type ReviewAction struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"sessionId"`
	BakeryID   string    `json:"bakeryId"`
	ReviewID   *string   `json:"reviewId,omitempty"`
	Action     string    `json:"action"`  // create|update|delete
	Outcome    string    `json:"outcome"` // ok|failed|unresolved|unauthorized
	HTTPStatus int       `json:"httpStatus"`
	CreatedAt  time.Time `json:"createdAt"`
}

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"

	OutcomeOK           = "ok"
	OutcomeFailed       = "failed"
	OutcomeUnresolved   = "unresolved"
	OutcomeUnauthorized = "unauthorized"
	OutcomeInvalid      = "invalid"
)
