package course

import (
	"github.com/classy-portal/classy/internal/models"
)

// Names is the derived pair of identifiers for a provisioned team and repo.
type Names struct {
	TeamName string
	RepoName string
}

// Policy is the per-course strategy hook. A single implementation is chosen at
// startup from configuration and injected wherever course-specific behaviour
// is needed; there is no runtime dispatch beyond this interface.
type Policy interface {
	// HandleUnknownUser decides what to do when an id shows up that has no
	// Person record. Returning (nil, nil) rejects the user.
	HandleUnknownUser(githubID string) (*models.Person, error)

	// HandleNewAutoTestGrade reports whether an incoming AutoTest grade should
	// replace the existing one (existing may be nil). Called once per person
	// on the graded repo.
	HandleNewAutoTestGrade(deliv *models.Deliverable, newGrade, existing *models.Grade) bool

	// ComputeNames derives team and repo names for a deliverable and an
	// ordered, non-empty list of people. It must not create anything.
	ComputeNames(deliv *models.Deliverable, people []*models.Person) (Names, error)
}
