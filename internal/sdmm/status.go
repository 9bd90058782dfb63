package sdmm

import (
	"fmt"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/classy-portal/classy/internal/models"
	"github.com/classy-portal/classy/internal/store"
)

// GradeToAdvance is the score gate between stages. Exactly 90 passes; 89 does
// not.
const GradeToAdvance = 90.0

// Status is a learner's position in the fixed self-paced progression. The
// order of the constants is the order of the pipeline; the engine only ever
// walks forward through it.
type Status int

const (
	D0PRE Status = iota
	D0
	D1UNLOCKED
	D1TEAMSET
	D1
	D2
	D3PRE
	D3
)

var statusNames = [...]string{"D0PRE", "D0", "D1UNLOCKED", "D1TEAMSET", "D1", "D2", "D3PRE", "D3"}

func (s Status) String() string {
	if s < D0PRE || s > D3 {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus maps a stored status string back onto the enum. Unknown values
// parse as D0PRE, the conservative floor.
func ParseStatus(v string) Status {
	for i, name := range statusNames {
		if name == v {
			return Status(i)
		}
	}
	return D0PRE
}

// Engine recomputes a learner's stage from ground-truth entities. The cached
// Person.Status is never trusted; every call re-derives the stage so that the
// cache cannot diverge from reality.
type Engine struct {
	store store.EntityStore
}

func NewEngine(st store.EntityStore) *Engine {
	return &Engine{store: st}
}

// ComputeStatus walks the gate chain from D0PRE upward, stopping at the first
// gate that does not hold. The D1->D2 and D3 gates flip repository enablement
// flags as they pass (promote on read); both flips are idempotent. The result
// is written back onto the Person record before returning.
func (e *Engine) ComputeStatus(personID string) (Status, error) {
	person, err := e.store.GetPerson(personID)
	if err != nil {
		return D0PRE, fmt.Errorf("computing status for %s: %w", personID, err)
	}
	if person == nil {
		logger.Debug.Printf("status: person unknown: %s", personID)
		return D0PRE, failf(ErrUnknownPerson, "Unknown person: %s", personID)
	}

	status := D0PRE

	// D0PRE -> D0: any owned repo enabled for d0
	if status == D0PRE {
		ok, err := e.anyRepo(personID, func(r *models.Repository) bool { return r.Flags.D0Enabled })
		if err != nil {
			return status, err
		}
		if ok {
			status = D0
		}
	}

	// D0 -> D1UNLOCKED: d0 grade at or above the threshold
	if status == D0 {
		ok, err := e.gradeAtLeast(personID, "d0")
		if err != nil {
			return status, err
		}
		if ok {
			status = D1UNLOCKED
		}
	}

	// D1UNLOCKED -> D1TEAMSET: member of a d1-valid team
	if status == D1UNLOCKED {
		teams, err := e.store.ListTeamsForPerson(personID)
		if err != nil {
			return status, fmt.Errorf("computing status for %s: %w", personID, err)
		}
		for _, t := range teams {
			if t.Flags.D1 {
				status = D1TEAMSET
				break
			}
		}
	}

	// D1TEAMSET -> D1: owns a d1-enabled repo
	if status == D1TEAMSET {
		ok, err := e.anyRepo(personID, func(r *models.Repository) bool { return r.Flags.D1Enabled })
		if err != nil {
			return status, err
		}
		if ok {
			status = D1
		}
	}

	// D1 -> D2: d1 grade at threshold; passing enables d2 on the project repos
	if status == D1 {
		ok, err := e.gradeAtLeast(personID, "d1")
		if err != nil {
			return status, err
		}
		if ok {
			if err := e.advanceRepos(personID,
				func(r *models.Repository) bool { return r.Flags.D1Enabled && !r.Flags.D2Enabled },
				func(r *models.Repository) { r.Flags.D2Enabled = true },
			); err != nil {
				return status, err
			}
			status = D2
		}
	}

	// D2 -> D3PRE: d2 grade at threshold
	if status == D2 {
		ok, err := e.gradeAtLeast(personID, "d2")
		if err != nil {
			return status, err
		}
		if ok {
			status = D3PRE
		}
	}

	// D3PRE -> D3: the final pull request has been completed on a project repo
	if status == D3PRE {
		ok, err := e.anyRepo(personID, func(r *models.Repository) bool { return r.Flags.D2Enabled && r.Flags.D3PRDone })
		if err != nil {
			return status, err
		}
		if ok {
			status = D3
		}
	}

	// terminal stage: enable d3 on the project repos
	if status == D3 {
		if err := e.advanceRepos(personID,
			func(r *models.Repository) bool { return r.Flags.D2Enabled && !r.Flags.D3Enabled },
			func(r *models.Repository) { r.Flags.D3Enabled = true },
		); err != nil {
			return status, err
		}
	}

	if person.Status != status.String() {
		logger.Info.Printf("status: %s moves %s -> %s", personID, person.Status, status)
	}
	person.Status = status.String()
	if err := e.store.WritePerson(person); err != nil {
		return status, fmt.Errorf("computing status for %s: %w", personID, err)
	}

	return status, nil
}

func (e *Engine) anyRepo(personID string, match func(*models.Repository) bool) (bool, error) {
	repos, err := e.store.ListRepositoriesForPerson(personID)
	if err != nil {
		return false, fmt.Errorf("computing status for %s: %w", personID, err)
	}
	for i := range repos {
		if match(&repos[i]) {
			return true, nil
		}
	}
	return false, nil
}

// advanceRepos flips flags on every matching owned repository and persists
// each change. Re-running once the flags are set is a no-op.
func (e *Engine) advanceRepos(personID string, match func(*models.Repository) bool, advance func(*models.Repository)) error {
	repos, err := e.store.ListRepositoriesForPerson(personID)
	if err != nil {
		return fmt.Errorf("computing status for %s: %w", personID, err)
	}
	for i := range repos {
		if !match(&repos[i]) {
			continue
		}
		advance(&repos[i])
		if err := e.store.WriteRepository(&repos[i]); err != nil {
			return fmt.Errorf("computing status for %s: %w", personID, err)
		}
	}
	return nil
}

func (e *Engine) gradeAtLeast(personID, delivID string) (bool, error) {
	grade, err := e.store.GetGrade(personID, delivID)
	if err != nil {
		return false, fmt.Errorf("computing status for %s: %w", personID, err)
	}
	// a missing grade and a nil score mean the same thing: not achieved yet
	return grade != nil && grade.Score != nil && *grade.Score >= GradeToAdvance, nil
}
