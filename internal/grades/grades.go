package grades

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

// Controller reads and writes Grade records. Grades are keyed by
// (person, deliverable) and overwritten on update: last write wins.
type Controller struct {
	store  store.EntityStore
	policy course.Policy
}

func New(st store.EntityStore, policy course.Policy) *Controller {
	return &Controller{store: st, policy: policy}
}

func (c *Controller) GetGrade(personID, delivID string) (*models.Grade, error) {
	return c.store.GetGrade(personID, delivID)
}

// CreateGrade fans a single grade payload out to every distinct person on the
// repo's teams, inserting or overwriting each (person, deliverable) row.
func (c *Controller) CreateGrade(repoID, delivID string, payload models.GradePayload) error {
	people, err := c.store.ListPeopleForRepo(repoID)
	if err != nil {
		return fmt.Errorf("creating grade for repo %s: %w", repoID, err)
	}
	logger.Debug.Printf("grades: fanning %s/%s out to %d people", repoID, delivID, len(people))

	for _, personID := range people {
		grade := &models.Grade{
			PersonID:  personID,
			DelivID:   delivID,
			Score:     payload.Score,
			Comment:   payload.Comment,
			Timestamp: payload.Timestamp,
			URLName:   payload.URLName,
			URL:       payload.URL,
		}
		if err := c.store.WriteGrade(grade); err != nil {
			return fmt.Errorf("creating grade for repo %s: %w", repoID, err)
		}
	}
	return nil
}

// ProcessAutoTestGrade ingests a grade posted by the AutoTest service. The
// course policy decides, per person on the repo, whether the new grade
// replaces the existing one. Returns false when the payload references an
// unknown repo or deliverable; that is a caller mistake, not a server fault.
func (c *Controller) ProcessAutoTestGrade(g *models.AutoTestGrade) (bool, error) {
	if err := g.Validate(); err != nil {
		logger.Error.Printf("grades: invalid autotest payload: %v", err)
		return false, nil
	}

	repo, err := c.store.GetRepository(g.RepoID)
	if err != nil {
		return false, fmt.Errorf("processing autotest grade: %w", err)
	}
	if repo == nil {
		logger.Error.Printf("grades: autotest grade for unknown repo %s", g.RepoID)
		return false, nil
	}

	deliv, err := c.store.GetDeliverable(g.DelivID)
	if err != nil {
		return false, fmt.Errorf("processing autotest grade: %w", err)
	}
	if deliv == nil {
		logger.Error.Printf("grades: autotest grade for unknown deliverable %s", g.DelivID)
		return false, nil
	}

	people, err := c.store.ListPeopleForRepo(g.RepoID)
	if err != nil {
		return false, fmt.Errorf("processing autotest grade: %w", err)
	}
	if len(people) < 1 {
		logger.Error.Printf("grades: no people to associate grade with on repo %s", g.RepoID)
		return false, nil
	}

	for _, personID := range people {
		newGrade := &models.Grade{
			PersonID:  personID,
			DelivID:   g.DelivID,
			Score:     g.Score,
			Comment:   g.Comment,
			Timestamp: g.Timestamp,
			URLName:   g.URLName,
			URL:       g.URL,
		}

		existing, err := c.store.GetGrade(personID, g.DelivID)
		if err != nil {
			return false, fmt.Errorf("processing autotest grade: %w", err)
		}

		if !c.policy.HandleNewAutoTestGrade(deliv, newGrade, existing) {
			logger.Debug.Printf("grades: rejecting autotest grade for %s/%s", personID, g.DelivID)
			continue
		}

		before, _ := json.Marshal(existing)
		after, _ := json.Marshal(newGrade)
		if err := c.store.WriteAudit(&models.AuditEvent{
			ID:        uuid.NewString(),
			Label:     models.AuditGradeAutoTest,
			Timestamp: time.Now().UnixMilli(),
			PersonID:  personID,
			Before:    string(before),
			After:     string(after),
			Detail:    g.RepoID,
		}); err != nil {
			logger.Error.Printf("grades: failed to audit grade for %s: %v", personID, err)
		}

		if err := c.store.WriteGrade(newGrade); err != nil {
			return false, fmt.Errorf("processing autotest grade: %w", err)
		}
	}
	return true, nil
}
