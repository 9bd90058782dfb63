package models

import (
	"github.com/go-playground/validator/v10"
)

// PersonKind distinguishes students from course staff. A person created on
// first contact has no kind yet; it is resolved lazily by privilege lookup.
type PersonKind string

const (
	KindNone       PersonKind = ""
	KindStudent    PersonKind = "student"
	KindWithdrawn  PersonKind = "withdrawn"
	KindAdminStaff PersonKind = "adminstaff"
	KindAdmin      PersonKind = "admin"
	KindStaff      PersonKind = "staff"
)

// Person is a learner or staff member. ID is the stable key; in the self-paced
// course it is always the GitHub username. People are never deleted in normal
// operation.
type Person struct {
	ID            string     `db:"id" json:"id" validate:"required"`
	CSID          string     `db:"cs_id" json:"csId"`
	StudentNumber *int64     `db:"student_number" json:"studentNumber"`
	GithubID      string     `db:"github_id" json:"githubId" validate:"required"`
	FName         string     `db:"f_name" json:"fName"`
	LName         string     `db:"l_name" json:"lName"`
	Kind          PersonKind `db:"kind" json:"kind"`
	URL           *string    `db:"url" json:"url"`
	LabID         *string    `db:"lab_id" json:"labId"`

	// Status is the last computed self-paced stage (see sdmm.Status). It is a
	// cache for dashboards only; the status engine always recomputes it from
	// ground truth before trusting it.
	Status string `db:"status" json:"status"`
}

func (p *Person) Validate() error {
	validate := validator.New()
	return validate.Struct(p)
}
