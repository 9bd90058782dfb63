package sdmm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classy-portal/classy/internal/models"
)

func TestStatusStringRoundtrip(t *testing.T) {
	for _, s := range []Status{D0PRE, D0, D1UNLOCKED, D1TEAMSET, D1, D2, D3PRE, D3} {
		assert.Equal(t, s, ParseStatus(s.String()))
	}

	t.Run("unknown value parses as the floor", func(t *testing.T) {
		assert.Equal(t, D0PRE, ParseStatus("NOT_A_STATUS"))
		assert.Equal(t, D0PRE, ParseStatus(""))
	})
}

func TestComputeStatusUnknownPerson(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.ComputeStatus("ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownPerson)
	assert.Equal(t, "Unknown person: ghost", UserMessage(err))
}

// attachRepo wires person -> team -> repo so the engine can see the repo.
func attachRepo(t *testing.T, env *testEnv, personID, teamID string, team models.TeamFlags, repoID string, repo models.RepoFlags) {
	t.Helper()

	require.NoError(t, env.store.WriteTeam(&models.Team{
		ID:        teamID,
		DelivID:   "d0",
		Flags:     team,
		PersonIDs: []string{personID},
	}))
	require.NoError(t, env.store.WriteRepository(&models.Repository{
		ID:      repoID,
		DelivID: "d0",
		Flags:   repo,
		TeamIDs: []string{teamID},
	}))
}

func TestComputeStatusProgression(t *testing.T) {
	env := newTestEnv(t)
	seedPerson(t, env.store, "alice")

	check := func(want Status) {
		t.Helper()
		got, err := env.engine.ComputeStatus("alice")
		require.NoError(t, err)
		assert.Equal(t, want, got)

		person, err := env.store.GetPerson("alice")
		require.NoError(t, err)
		assert.Equal(t, want.String(), person.Status)
	}

	check(D0PRE)

	attachRepo(t, env, "alice", "t_alice", models.TeamFlags{D0: true}, "secap_alice", models.RepoFlags{D0Enabled: true})
	check(D0)

	writeScore(t, env.store, "alice", "d0", 89.9)
	check(D0)

	writeScore(t, env.store, "alice", "d0", 90)
	check(D1UNLOCKED)

	team, err := env.store.GetTeam("t_alice")
	require.NoError(t, err)
	team.Flags.D1 = true
	team.Flags.D2 = true
	team.Flags.D3 = true
	require.NoError(t, env.store.WriteTeam(team))
	check(D1TEAMSET)

	repo, err := env.store.GetRepository("secap_alice")
	require.NoError(t, err)
	repo.Flags.D1Enabled = true
	require.NoError(t, env.store.WriteRepository(repo))
	check(D1)

	writeScore(t, env.store, "alice", "d1", 95)
	check(D2)

	t.Run("passing the d1 gate enables d2 on the repo", func(t *testing.T) {
		repo, err := env.store.GetRepository("secap_alice")
		require.NoError(t, err)
		assert.True(t, repo.Flags.D2Enabled)
	})

	writeScore(t, env.store, "alice", "d2", 91)
	check(D3PRE)

	repo, err = env.store.GetRepository("secap_alice")
	require.NoError(t, err)
	repo.Flags.D3PRDone = true
	require.NoError(t, env.store.WriteRepository(repo))
	check(D3)

	t.Run("terminal stage enables d3 on the repo", func(t *testing.T) {
		repo, err := env.store.GetRepository("secap_alice")
		require.NoError(t, err)
		assert.True(t, repo.Flags.D3Enabled)
	})

	t.Run("recompute is stable", func(t *testing.T) {
		check(D3)
	})
}

func TestComputeStatusNilScoreDoesNotAdvance(t *testing.T) {
	env := newTestEnv(t)
	seedPerson(t, env.store, "bob")
	attachRepo(t, env, "bob", "t_bob", models.TeamFlags{D0: true}, "secap_bob", models.RepoFlags{D0Enabled: true})

	// a placeholder grade has no score; it must behave like a missing grade
	require.NoError(t, env.store.WriteGrade(&models.Grade{
		PersonID: "bob",
		DelivID:  "d0",
		Comment:  "Repo Provisioned",
	}))

	got, err := env.engine.ComputeStatus("bob")
	require.NoError(t, err)
	assert.Equal(t, D0, got)
}
