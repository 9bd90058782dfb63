package postgres

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/classy-portal/classy/internal/models"
)

// setupTestDB spins up a throwaway Postgres container and applies migrations
func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_DB":       "testdb",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewPostgresStore(dsn)
	require.NoError(t, err, "Failed to create store")

	err = s.ApplyMigrations("../../../migrations")
	require.NoError(t, err, "Failed to apply migrations")

	cleanup := func() {
		s.Close()
		pgContainer.Terminate(ctx)
	}

	return s, cleanup
}

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		log.Println("Skipping Postgres integration tests. Use -short=false to run them.")
		os.Exit(0)
	}
	log.Println("Starting Postgres store tests...")
	code := m.Run()
	log.Println("Finished Postgres store tests")
	os.Exit(code)
}

func TestPlaceholderConversion(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	// Queries use ? placeholders internally; the converter rewrites them for
	// Postgres, so a keyed lookup exercises the whole path.
	person := &models.Person{
		ID:       "alice",
		CSID:     "alice",
		GithubID: "alice",
		Kind:     models.KindStudent,
		Status:   "D0PRE",
	}
	require.NoError(t, s.WritePerson(person))

	got, err := s.GetPerson("alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.GithubID)

	missing, err := s.GetPerson("not.exists")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTeamAndRepoRelations(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	for _, id := range []string{"alice", "bob"} {
		require.NoError(t, s.WritePerson(&models.Person{
			ID: id, CSID: id, GithubID: id, Kind: models.KindStudent, Status: "D1UNLOCKED",
		}))
	}
	require.NoError(t, s.WriteDeliverable(&models.Deliverable{
		ID: "d1", TeamMinSize: 1, TeamMaxSize: 2,
	}))

	require.NoError(t, s.WriteTeam(&models.Team{
		ID:        "t_abc123",
		DelivID:   "d1",
		Flags:     models.TeamFlags{D1: true, D2: true, D3: true},
		PersonIDs: []string{"alice", "bob"},
	}))
	require.NoError(t, s.WriteRepository(&models.Repository{
		ID:      "secap_abc123",
		DelivID: "d1",
		Flags:   models.RepoFlags{D1Enabled: true},
		TeamIDs: []string{"t_abc123"},
	}))

	t.Run("flags survive the jsonb roundtrip", func(t *testing.T) {
		team, err := s.GetTeam("t_abc123")
		require.NoError(t, err)
		require.NotNil(t, team)
		assert.True(t, team.Flags.D1)
		assert.False(t, team.Flags.D0)
		assert.Equal(t, []string{"alice", "bob"}, team.PersonIDs)
	})

	t.Run("people lookup crosses both join tables", func(t *testing.T) {
		people, err := s.ListPeopleForRepo("secap_abc123")
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, people)
	})
}

func TestGradeUpsert(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, s.WritePerson(&models.Person{
		ID: "alice", CSID: "alice", GithubID: "alice", Kind: models.KindStudent, Status: "D0",
	}))
	require.NoError(t, s.WriteDeliverable(&models.Deliverable{
		ID: "d0", TeamMinSize: 1, TeamMaxSize: 1,
	}))

	score := 91.0
	require.NoError(t, s.WriteGrade(&models.Grade{
		PersonID: "alice", DelivID: "d0", Score: &score, Timestamp: 1000,
	}))

	score2 := 95.0
	require.NoError(t, s.WriteGrade(&models.Grade{
		PersonID: "alice", DelivID: "d0", Score: &score2, Timestamp: 2000,
	}))

	got, err := s.GetGrade("alice", "d0")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Score)
	assert.Equal(t, 95.0, *got.Score)
	assert.Equal(t, int64(2000), got.Timestamp)
}
