package sdmm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/classy-portal/classy/internal/grades"
	"github.com/classy-portal/classy/internal/models"
	"github.com/classy-portal/classy/internal/store"
	"github.com/classy-portal/classy/internal/store/sqlite"
)

func newTestStore(t *testing.T) store.EntityStore {
	t.Helper()

	s, err := sqlite.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations("../../migrations"))

	t.Cleanup(func() { s.Close() })
	return s
}

func seedDeliverables(t *testing.T, s store.EntityStore) {
	t.Helper()

	require.NoError(t, s.WriteDeliverable(&models.Deliverable{
		ID:          "d0",
		RepoPrefix:  "secap_",
		TeamPrefix:  "t_",
		TeamMinSize: 1,
		TeamMaxSize: 1,
		ImportURL:   "https://github.com/secapstone/bootstrap",
	}))
	require.NoError(t, s.WriteDeliverable(&models.Deliverable{
		ID:          "d1",
		RepoPrefix:  "secapproj_",
		TeamPrefix:  "t_",
		TeamMinSize: 1,
		TeamMaxSize: 2,
		ImportURL:   "https://github.com/secapstone/bootstrap",
	}))
	for _, id := range []string{"d2", "d3"} {
		require.NoError(t, s.WriteDeliverable(&models.Deliverable{
			ID:          id,
			TeamMinSize: 1,
			TeamMaxSize: 2,
		}))
	}
}

func seedPerson(t *testing.T, s store.EntityStore, id string) {
	t.Helper()

	require.NoError(t, s.WritePerson(&models.Person{
		ID:       id,
		CSID:     id,
		GithubID: id,
		Kind:     models.KindStudent,
		Status:   D0PRE.String(),
	}))
}

func writeScore(t *testing.T, s store.EntityStore, personID, delivID string, score float64) {
	t.Helper()

	require.NoError(t, s.WriteGrade(&models.Grade{
		PersonID:  personID,
		DelivID:   delivID,
		Score:     &score,
		Timestamp: 1000,
	}))
}

// fakeGateway stands in for the GitHub controller. It records provisioned
// repo names and can be told to fail.
type fakeGateway struct {
	fail  bool
	calls []string
}

func (f *fakeGateway) ProvisionRepository(ctx context.Context, repoName string, teams []*models.Team, importURL, webhookURL string) (bool, error) {
	f.calls = append(f.calls, repoName)
	if f.fail {
		return false, fmt.Errorf("remote side unavailable")
	}
	return true, nil
}

func (f *fakeGateway) RepositoryURL(repo *models.Repository) string {
	return "https://github.com/testorg/" + repo.ID
}

func (f *fakeGateway) TeamURL(team *models.Team) string {
	return "https://github.com/orgs/testorg/teams/" + team.ID
}

type testEnv struct {
	store        store.EntityStore
	gateway      *fakeGateway
	policy       *Policy
	engine       *Engine
	orchestrator *Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s := newTestStore(t)
	seedDeliverables(t, s)

	gw := &fakeGateway{}
	policy := NewPolicy(s)
	engine := NewEngine(s)
	gc := grades.New(s, policy)
	orch := NewOrchestrator(s, gw, policy, engine, gc, "https://portal.example.org/autotest/webhook")

	return &testEnv{
		store:        s,
		gateway:      gw,
		policy:       policy,
		engine:       engine,
		orchestrator: orch,
	}
}

// provisionedD0 walks a person through a successful d0 provision.
func (env *testEnv) provisionedD0(t *testing.T, personID string) {
	t.Helper()

	seedPerson(t, env.store, personID)
	_, err := env.orchestrator.Provision(context.Background(), "d0", []string{personID})
	require.NoError(t, err)
}
