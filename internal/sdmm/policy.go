package sdmm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/classy-portal/classy/internal/course"
	"github.com/classy-portal/classy/internal/models"
	"github.com/classy-portal/classy/internal/store"
)

// Policy is the self-paced course strategy. The course is open to anyone on
// the internet: unknown users are provisioned on first contact, there are no
// deadlines, and learners keep their highest grade.
type Policy struct {
	store store.EntityStore
	namer *Namer
}

var _ course.Policy = (*Policy)(nil)

func NewPolicy(st store.EntityStore) *Policy {
	return &Policy{store: st, namer: NewNamer(st)}
}

// HandleUnknownUser creates and persists a Person for a GitHub username seen
// for the first time. There is no classlist in the self-paced course, so the
// first login is the registration.
func (p *Policy) HandleUnknownUser(githubID string) (*models.Person, error) {
	logger.Info.Printf("sdmm: creating person for unknown user %s", githubID)

	url := "https://github.com/" + githubID
	lab := "UNKNOWN"
	person := &models.Person{
		ID:       githubID,
		CSID:     githubID, // the self-paced course has no campus ids
		GithubID: githubID,
		URL:      &url,
		LabID:    &lab,
		Status:   D0PRE.String(),
	}

	if err := p.store.WritePerson(person); err != nil {
		return nil, fmt.Errorf("creating person %s: %w", githubID, err)
	}

	after, _ := json.Marshal(person)
	if err := p.store.WriteAudit(&models.AuditEvent{
		ID:        uuid.NewString(),
		Label:     models.AuditPersonCreate,
		Timestamp: time.Now().UnixMilli(),
		PersonID:  githubID,
		After:     string(after),
	}); err != nil {
		logger.Error.Printf("sdmm: failed to audit person creation for %s: %v", githubID, err)
	}

	return person, nil
}

// HandleNewAutoTestGrade keeps the highest grade. No deadline check: the
// course is self-paced. The score must be strictly greater than the existing
// one to be accepted.
func (p *Policy) HandleNewAutoTestGrade(deliv *models.Deliverable, newGrade, existing *models.Grade) bool {
	if newGrade.Score == nil {
		return false
	}
	if existing == nil || existing.Score == nil {
		return true
	}
	return *newGrade.Score > *existing.Score
}

func (p *Policy) ComputeNames(deliv *models.Deliverable, people []*models.Person) (course.Names, error) {
	return p.namer.ComputeNames(deliv, people)
}
