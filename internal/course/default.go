package course

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/classy-portal/classy/internal/models"
)

// DefaultPolicy is the behaviour for a conventional, deadline-driven course:
// unknown users are rejected (the classlist is the source of truth), grades
// are only accepted inside the deliverable's open window, and team names are
// derived deterministically from the members.
type DefaultPolicy struct{}

func NewDefaultPolicy() *DefaultPolicy {
	return &DefaultPolicy{}
}

func (p *DefaultPolicy) HandleUnknownUser(githubID string) (*models.Person, error) {
	logger.Debug.Printf("default policy: rejecting unknown user %s", githubID)
	return nil, nil
}

// HandleNewAutoTestGrade accepts a grade iff it lands inside the deliverable
// window and does not lower the score. Equal scores are accepted so a rerun
// can refresh the commit URL.
func (p *DefaultPolicy) HandleNewAutoTestGrade(deliv *models.Deliverable, newGrade, existing *models.Grade) bool {
	if newGrade.Score == nil {
		return false
	}
	if newGrade.Timestamp < deliv.OpenTimestamp || newGrade.Timestamp > deliv.CloseTimestamp {
		return false
	}
	if existing == nil || existing.Score == nil {
		return true
	}
	return *newGrade.Score >= *existing.Score
}

// ComputeNames sorts people by csId and concatenates their ids, so the same
// member set always yields the same name.
func (p *DefaultPolicy) ComputeNames(deliv *models.Deliverable, people []*models.Person) (Names, error) {
	if deliv == nil || len(people) < 1 {
		return Names{}, errors.New("computeNames requires a deliverable and at least one person")
	}

	sorted := make([]*models.Person, len(people))
	copy(sorted, people)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CSID < sorted[j].CSID })

	ids := make([]string, len(sorted))
	for i, person := range sorted {
		ids[i] = person.ID
	}
	base := strings.Join(ids, "_")

	return Names{
		TeamName: fmt.Sprintf("%s%s", deliv.TeamPrefix, base),
		RepoName: fmt.Sprintf("%s%s", deliv.RepoPrefix, base),
	}, nil
}
