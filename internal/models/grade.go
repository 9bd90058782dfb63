package models

import (
	"github.com/go-playground/validator/v10"
)

// Grade is one row per (person, deliverable), overwritten on update: last
// write wins. A nil score means the deliverable has not been attempted or the
// repo was only just provisioned; gate checks treat nil and below-threshold
// identically.
type Grade struct {
	PersonID  string   `db:"person_id" json:"personId" validate:"required"`
	DelivID   string   `db:"deliv_id" json:"delivId" validate:"required"`
	Score     *float64 `db:"score" json:"score"`
	Comment   string   `db:"comment" json:"comment"`
	Timestamp int64    `db:"timestamp" json:"timestamp"`
	URLName   *string  `db:"url_name" json:"urlName"`
	URL       *string  `db:"url" json:"url"`
}

func (g *Grade) Validate() error {
	validate := validator.New()
	return validate.Struct(g)
}

// GradePayload is a grade without a person attached; the grades controller
// fans it out to everyone on the target repo.
type GradePayload struct {
	Score     *float64 `json:"score"`
	Comment   string   `json:"comment"`
	Timestamp int64    `json:"timestamp"`
	URLName   *string  `json:"urlName"`
	URL       *string  `json:"url"`
}

// AutoTestGrade is the transport shape posted by the AutoTest service.
type AutoTestGrade struct {
	RepoID    string   `json:"repoId" validate:"required"`
	DelivID   string   `json:"delivId" validate:"required"`
	Score     *float64 `json:"score" validate:"required"`
	Comment   string   `json:"comment"`
	Timestamp int64    `json:"timestamp" validate:"required"`
	URLName   *string  `json:"urlName"`
	URL       *string  `json:"url"`
}

func (g *AutoTestGrade) Validate() error {
	validate := validator.New()
	return validate.Struct(g)
}
