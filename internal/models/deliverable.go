package models

import (
	"github.com/go-playground/validator/v10"
)

// Deliverable is a graded assignment definition. Records are written by admin
// tooling (cmd/seed) and are read-only to the provisioning core.
type Deliverable struct {
	ID             string `db:"id" json:"id" validate:"required"`
	URL            string `db:"url" json:"url"`
	RepoPrefix     string `db:"repo_prefix" json:"repoPrefix"`
	TeamPrefix     string `db:"team_prefix" json:"teamPrefix"`
	OpenTimestamp  int64  `db:"open_timestamp" json:"openTimestamp"`
	CloseTimestamp int64  `db:"close_timestamp" json:"closeTimestamp"`
	GradesReleased bool   `db:"grades_released" json:"gradesReleased"`
	TeamMinSize    int    `db:"team_min_size" json:"teamMinSize" validate:"min=1"`
	TeamMaxSize    int    `db:"team_max_size" json:"teamMaxSize" validate:"min=1"`

	// ImportURL is the bootstrap repository cloned into freshly provisioned
	// student repos.
	ImportURL string `db:"import_url" json:"importURL"`
}

func (d *Deliverable) Validate() error {
	validate := validator.New()
	return validate.Struct(d)
}
