package sdmm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/classy-portal/classy/internal/course"
	"github.com/classy-portal/classy/internal/github"
	"github.com/classy-portal/classy/internal/grades"
	"github.com/classy-portal/classy/internal/metrics"
	"github.com/classy-portal/classy/internal/models"
	"github.com/classy-portal/classy/internal/store"
)

// GradeDisplay is the simplified grade record shown on the learner dashboard.
type GradeDisplay struct {
	Score     *float64 `json:"score"`
	Comment   string   `json:"comment"`
	URLName   *string  `json:"urlName"`
	URL       *string  `json:"url"`
	Timestamp int64    `json:"timestamp"`
}

// StatusPayload is the full dashboard view: the current stage plus whatever
// grades exist for each deliverable.
type StatusPayload struct {
	Status string        `json:"status"`
	D0     *GradeDisplay `json:"d0"`
	D1     *GradeDisplay `json:"d1"`
	D2     *GradeDisplay `json:"d2"`
	D3     *GradeDisplay `json:"d3"`
}

// Payload is the success result of a provisioning action. The message is
// surfaced verbatim to the learner.
type Payload struct {
	Message string        `json:"message"`
	Status  StatusPayload `json:"status"`
}

// Orchestrator drives multi-entity provisioning: local Team and Repository
// records first, then the remote GitHub side, with rollback of the local
// records when the remote step fails.
type Orchestrator struct {
	store      store.EntityStore
	gh         github.Gateway
	policy     course.Policy
	engine     *Engine
	grades     *grades.Controller
	webhookURL string

	// check-then-create against the store is not atomic, so concurrent
	// provision calls for overlapping person sets are serialized here.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewOrchestrator(st store.EntityStore, gh github.Gateway, policy course.Policy, engine *Engine, gc *grades.Controller, webhookURL string) *Orchestrator {
	return &Orchestrator{
		store:      st,
		gh:         gh,
		policy:     policy,
		engine:     engine,
		grades:     gc,
		webhookURL: webhookURL,
		locks:      make(map[string]*sync.Mutex),
	}
}

// GetStatus recomputes the person's stage and bundles it with their grades
// for the dashboard.
func (o *Orchestrator) GetStatus(personID string) (*StatusPayload, error) {
	status, err := o.engine.ComputeStatus(personID)
	if err != nil {
		return nil, err
	}
	metrics.StatusComputeTotal.WithLabelValues(status.String()).Inc()

	payload := &StatusPayload{Status: status.String()}
	for delivID, slot := range map[string]**GradeDisplay{
		"d0": &payload.D0,
		"d1": &payload.D1,
		"d2": &payload.D2,
		"d3": &payload.D3,
	} {
		grade, err := o.store.GetGrade(personID, delivID)
		if err != nil {
			return nil, fmt.Errorf("loading %s grade for %s: %w", delivID, personID, err)
		}
		if grade != nil {
			*slot = &GradeDisplay{
				Score:     grade.Score,
				URLName:   grade.URLName,
				URL:       grade.URL,
				Timestamp: grade.Timestamp,
			}
		}
	}
	return payload, nil
}

// Provision performs a complete provisioning action for a deliverable and an
// ordered set of people; personIDs[0] is the requester. Only d0 (exactly one
// person) and d1 (one person upgrading, or two distinct people teaming up)
// are provisionable.
func (o *Orchestrator) Provision(ctx context.Context, delivID string, personIDs []string) (*Payload, error) {
	logger.Info.Printf("provision: %s for %v", delivID, personIDs)
	start := time.Now()

	payload, err := o.provision(ctx, delivID, personIDs)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		logger.Error.Printf("provision: %s for %v failed: %v", delivID, personIDs, err)
	}
	metrics.ProvisionTotal.WithLabelValues(delivID, pathLabel(delivID, personIDs), outcome).Inc()
	metrics.ProvisionDuration.WithLabelValues(delivID).Observe(time.Since(start).Seconds())

	return payload, err
}

func pathLabel(delivID string, personIDs []string) string {
	switch {
	case delivID == "d0":
		return "d0_individual"
	case delivID == "d1" && len(personIDs) == 1:
		return "d1_upgrade"
	case delivID == "d1":
		return "d1_team"
	default:
		return "unknown"
	}
}

func (o *Orchestrator) provision(ctx context.Context, delivID string, personIDs []string) (*Payload, error) {
	if len(personIDs) < 1 {
		return nil, failf(ErrInvalidArgument, "Invalid # of people; contact course staff.")
	}

	unlock := o.lockPeople(personIDs)
	defer unlock()

	for _, personID := range personIDs {
		person, err := o.store.GetPerson(personID)
		if err != nil {
			return nil, fmt.Errorf("provisioning %s: %w", delivID, err)
		}
		if person == nil {
			return nil, failf(ErrUnknownPerson, "Username ( %s ) not registered; contact course staff.", personID)
		}
	}

	switch delivID {
	case "d0":
		if len(personIDs) != 1 {
			return nil, failf(ErrInvalidArgument, "D0 is for individuals only; contact course staff.")
		}
		return o.provisionD0(ctx, personIDs[0])
	case "d1":
		switch len(personIDs) {
		case 1:
			return o.upgradeD0ToD1(personIDs[0])
		case 2:
			if personIDs[0] == personIDs[1] {
				return nil, failf(ErrInvalidArgument,
					"D1 duplicate users; if you wish to work alone, please select 'work individually'.")
			}
			return o.provisionD1Team(ctx, personIDs)
		default:
			return nil, failf(ErrInvalidArgument, "D1 can only be performed by single students or pairs of students.")
		}
	default:
		return nil, failf(ErrNotProvisionable, "Repo not needed; contact course staff.")
	}
}

// lockPeople takes the per-person advisory locks in sorted order so that two
// overlapping provision calls cannot interleave their check-then-create
// sequences (and cannot deadlock on each other).
func (o *Orchestrator) lockPeople(personIDs []string) func() {
	ids := make([]string, len(personIDs))
	copy(ids, personIDs)
	sort.Strings(ids)

	var held []*sync.Mutex
	prev := ""
	for _, id := range ids {
		if id == prev {
			continue
		}
		prev = id

		o.mu.Lock()
		lock, ok := o.locks[id]
		if !ok {
			lock = &sync.Mutex{}
			o.locks[id] = lock
		}
		o.mu.Unlock()

		lock.Lock()
		held = append(held, lock)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// provisionD0 is path A: a brand new individual d0 repo.
func (o *Orchestrator) provisionD0(ctx context.Context, personID string) (*Payload, error) {
	person, err := o.store.GetPerson(personID)
	if err != nil {
		return nil, fmt.Errorf("provisioning d0: %w", err)
	}

	deliv, err := o.store.GetDeliverable("d0")
	if err != nil {
		return nil, fmt.Errorf("provisioning d0: %w", err)
	}
	if deliv == nil {
		return nil, fmt.Errorf("provisioning d0: deliverable d0 not configured")
	}

	names, err := o.policy.ComputeNames(deliv, []*models.Person{person})
	if err != nil {
		return nil, err
	}

	status, err := o.engine.ComputeStatus(personID)
	if err != nil {
		return nil, err
	}
	if status != D0PRE {
		logger.Info.Printf("provision d0: %s has status %s, not D0PRE", personID, status)
		return nil, failf(ErrNotProvisionable, "User is not eligible for D0.")
	}

	// both existence checks happen before either record is created so a
	// failure cannot leave one of the pair behind
	if existing, err := o.store.GetTeam(names.TeamName); err != nil {
		return nil, fmt.Errorf("provisioning d0: %w", err)
	} else if existing != nil {
		return nil, failf(ErrAlreadyProvisioned, "Team %s already exists; contact course staff.", names.TeamName)
	}
	if existing, err := o.store.GetRepository(names.RepoName); err != nil {
		return nil, fmt.Errorf("provisioning d0: %w", err)
	} else if existing != nil {
		return nil, failf(ErrAlreadyProvisioned, "Repository %s already exists; contact course staff.", names.RepoName)
	}

	team := &models.Team{
		ID:        names.TeamName,
		DelivID:   "d0",
		Flags:     models.TeamFlags{D0: true},
		PersonIDs: []string{personID},
	}
	if err := o.store.WriteTeam(team); err != nil {
		return nil, fmt.Errorf("provisioning d0: %w", err)
	}

	repo := &models.Repository{
		ID:      names.RepoName,
		DelivID: "d0",
		Flags:   models.RepoFlags{D0Enabled: true},
		TeamIDs: []string{team.ID},
	}
	if err := o.store.WriteRepository(repo); err != nil {
		return nil, fmt.Errorf("provisioning d0: %w", err)
	}

	if err := o.finalizeRemote(ctx, deliv, repo, team, personID); err != nil {
		return nil, err
	}

	if err := o.grades.CreateGrade(repo.ID, "d0", o.placeholderGrade(repo)); err != nil {
		return nil, fmt.Errorf("provisioning d0: %w", err)
	}

	statusPayload, err := o.GetStatus(personID)
	if err != nil {
		return nil, err
	}
	return &Payload{Message: "Repository successfully created.", Status: *statusPayload}, nil
}

// upgradeD0ToD1 is path B: the same person keeps working alone, on the same
// repo they used for d0. No new entities and no gateway call; only flags flip.
func (o *Orchestrator) upgradeD0ToD1(personID string) (*Payload, error) {
	person, err := o.store.GetPerson(personID)
	if err != nil {
		return nil, fmt.Errorf("upgrading to d1: %w", err)
	}

	grade, err := o.store.GetGrade(personID, "d0")
	if err != nil {
		return nil, fmt.Errorf("upgrading to d1: %w", err)
	}
	if grade == nil || grade.Score == nil || *grade.Score < GradeToAdvance {
		return nil, failf(ErrInsufficientGrade, "Current d0 grade is not sufficient to move on to d1.")
	}

	repos, err := o.store.ListRepositoriesForPerson(personID)
	if err != nil {
		return nil, fmt.Errorf("upgrading to d1: %w", err)
	}
	for i := range repos {
		if repos[i].Flags.D1Enabled {
			return nil, failf(ErrAlreadyAssigned, "D1 repo has already been assigned: %s", repos[i].ID)
		}
	}

	// the explicit grade and duplicate-repo checks above already gate this
	// path, so an unexpected status is only logged
	status, err := o.engine.ComputeStatus(personID)
	if err != nil {
		return nil, err
	}
	if status != D1UNLOCKED {
		logger.Info.Printf("upgrade d0->d1: %s has status %s, expected D1UNLOCKED", personID, status)
	}

	// the d0 repo is being upgraded in place, so the d0 names locate it
	deliv, err := o.store.GetDeliverable("d0")
	if err != nil {
		return nil, fmt.Errorf("upgrading to d1: %w", err)
	}
	if deliv == nil {
		return nil, fmt.Errorf("upgrading to d1: deliverable d0 not configured")
	}
	names, err := o.policy.ComputeNames(deliv, []*models.Person{person})
	if err != nil {
		return nil, err
	}

	team, err := o.store.GetTeam(names.TeamName)
	if err != nil {
		return nil, fmt.Errorf("upgrading to d1: %w", err)
	}
	repo, err := o.store.GetRepository(names.RepoName)
	if err != nil {
		return nil, fmt.Errorf("upgrading to d1: %w", err)
	}
	if team == nil || repo == nil {
		return nil, failf(ErrNotProvisionable, "Invalid team updating d0 repo; contact course staff.")
	}

	repo.Flags.D1Enabled = true
	if err := o.store.WriteRepository(repo); err != nil {
		return nil, fmt.Errorf("upgrading to d1: %w", err)
	}

	team.Flags.D1 = true
	team.Flags.D2 = true
	team.Flags.D3 = true
	if err := o.store.WriteTeam(team); err != nil {
		return nil, fmt.Errorf("upgrading to d1: %w", err)
	}

	// the upgraded repo carries the learner through the rest of the course
	for _, delivID := range []string{"d1", "d2", "d3"} {
		if err := o.grades.CreateGrade(repo.ID, delivID, o.placeholderGrade(repo)); err != nil {
			return nil, fmt.Errorf("upgrading to d1: %w", err)
		}
	}

	statusPayload, err := o.GetStatus(personID)
	if err != nil {
		return nil, err
	}
	return &Payload{Message: "D0 repo successfully updated to D1.", Status: *statusPayload}, nil
}

// provisionD1Team is path C: two distinct people form a team with a fresh
// randomly named repo.
func (o *Orchestrator) provisionD1Team(ctx context.Context, personIDs []string) (*Payload, error) {
	var people []*models.Person
	for _, personID := range personIDs {
		person, err := o.store.GetPerson(personID)
		if err != nil {
			return nil, fmt.Errorf("provisioning d1: %w", err)
		}

		grade, err := o.store.GetGrade(personID, "d0")
		if err != nil {
			return nil, fmt.Errorf("provisioning d1: %w", err)
		}
		if grade == nil || grade.Score == nil || *grade.Score < GradeToAdvance {
			return nil, failf(ErrInsufficientGrade,
				"All teammates must have achieved a score of %d%% or more to join a team.", int(GradeToAdvance))
		}

		people = append(people, person)
	}

	for _, person := range people {
		status, err := o.engine.ComputeStatus(person.ID)
		if err != nil {
			return nil, err
		}
		if status != D1UNLOCKED {
			logger.Info.Printf("provision d1: %s has status %s, expected D1UNLOCKED", person.ID, status)
			return nil, failf(ErrNotProvisionable,
				"All teammates must be eligible to join a team and must not already be performing d1 in another team or on their own.")
		}
	}

	deliv, err := o.store.GetDeliverable("d1")
	if err != nil {
		return nil, fmt.Errorf("provisioning d1: %w", err)
	}
	if deliv == nil {
		return nil, fmt.Errorf("provisioning d1: deliverable d1 not configured")
	}

	names, err := o.policy.ComputeNames(deliv, people)
	if err != nil {
		return nil, err
	}
	if existing, err := o.store.GetRepository(names.RepoName); err != nil {
		return nil, fmt.Errorf("provisioning d1: %w", err)
	} else if existing != nil {
		return nil, failf(ErrAlreadyProvisioned, "Repository %s already exists; contact course staff.", names.RepoName)
	}

	team := &models.Team{
		ID:        names.TeamName,
		DelivID:   "d1",
		Flags:     models.TeamFlags{D1: true, D2: true, D3: true},
		PersonIDs: personIDs,
	}
	if err := o.store.WriteTeam(team); err != nil {
		return nil, fmt.Errorf("provisioning d1: %w", err)
	}

	repo := &models.Repository{
		ID:      names.RepoName,
		DelivID: "d1",
		Flags:   models.RepoFlags{D1Enabled: true, D2Enabled: true, D3Enabled: true},
		TeamIDs: []string{team.ID},
	}
	if err := o.store.WriteRepository(repo); err != nil {
		return nil, fmt.Errorf("provisioning d1: %w", err)
	}

	if err := o.finalizeRemote(ctx, deliv, repo, team, personIDs[0]); err != nil {
		return nil, err
	}

	for _, delivID := range []string{"d1", "d2", "d3"} {
		if err := o.grades.CreateGrade(repo.ID, delivID, o.placeholderGrade(repo)); err != nil {
			return nil, fmt.Errorf("provisioning d1: %w", err)
		}
	}

	statusPayload, err := o.GetStatus(personIDs[0])
	if err != nil {
		return nil, err
	}
	return &Payload{Message: "D1 repository successfully provisioned.", Status: *statusPayload}, nil
}

// finalizeRemote runs the GitHub side of provisioning and, on success, writes
// the returned URLs onto the local pair. The URLs are set together or not at
// all; a gateway failure rolls back both local records so no partially
// provisioned state survives.
func (o *Orchestrator) finalizeRemote(ctx context.Context, deliv *models.Deliverable, repo *models.Repository, team *models.Team, requesterID string) error {
	ok, err := o.gh.ProvisionRepository(ctx, repo.ID, []*models.Team{team}, deliv.ImportURL, o.webhookURL)
	if !ok || err != nil {
		logger.Error.Printf("provision: gateway failed for %s: %v", repo.ID, err)
		o.rollback(repo, team, requesterID)
		return failf(ErrProvisioningFailed, "Error provisioning %s repo; contact course staff.", deliv.ID)
	}

	repoURL := o.gh.RepositoryURL(repo)
	repo.URL = &repoURL
	if err := o.store.WriteRepository(repo); err != nil {
		return fmt.Errorf("recording repo URL for %s: %w", repo.ID, err)
	}

	teamURL := o.gh.TeamURL(team)
	team.URL = &teamURL
	if err := o.store.WriteTeam(team); err != nil {
		return fmt.Errorf("recording team URL for %s: %w", team.ID, err)
	}

	after, _ := json.Marshal(repo)
	if err := o.store.WriteAudit(&models.AuditEvent{
		ID:        uuid.NewString(),
		Label:     models.AuditRepoProvision,
		Timestamp: time.Now().UnixMilli(),
		PersonID:  requesterID,
		After:     string(after),
		Detail:    deliv.ID,
	}); err != nil {
		logger.Error.Printf("provision: failed to audit %s: %v", repo.ID, err)
	}

	return nil
}

// rollback is best effort: a failed delete leaves an inconsistency that is
// logged but not escalated past the provisioning error already in flight.
func (o *Orchestrator) rollback(repo *models.Repository, team *models.Team, requesterID string) {
	if err := o.store.DeleteRepository(repo.ID); err != nil {
		logger.Error.Printf("rollback: failed to delete repository %s: %v", repo.ID, err)
	}
	if err := o.store.DeleteTeam(team.ID); err != nil {
		logger.Error.Printf("rollback: failed to delete team %s: %v", team.ID, err)
	}

	if err := o.store.WriteAudit(&models.AuditEvent{
		ID:        uuid.NewString(),
		Label:     models.AuditRepoRollback,
		Timestamp: time.Now().UnixMilli(),
		PersonID:  requesterID,
		Detail:    repo.ID,
	}); err != nil {
		logger.Error.Printf("rollback: failed to audit for %s: %v", repo.ID, err)
	}
}

func (o *Orchestrator) placeholderGrade(repo *models.Repository) models.GradePayload {
	return models.GradePayload{
		Score:     nil,
		Comment:   "Repo Provisioned",
		URLName:   &repo.ID,
		URL:       repo.URL,
		Timestamp: time.Now().UnixMilli(),
	}
}
