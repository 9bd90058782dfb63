package sdmm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classy-portal/classy/internal/models"
)

func TestHandleUnknownUserCreatesPerson(t *testing.T) {
	env := newTestEnv(t)

	person, err := env.policy.HandleUnknownUser("newcomer")
	require.NoError(t, err)
	require.NotNil(t, person)

	assert.Equal(t, "newcomer", person.ID)
	assert.Equal(t, "newcomer", person.GithubID)
	assert.Equal(t, "D0PRE", person.Status)
	require.NotNil(t, person.URL)
	assert.Equal(t, "https://github.com/newcomer", *person.URL)

	t.Run("person is persisted", func(t *testing.T) {
		got, err := env.store.GetPerson("newcomer")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "newcomer", got.CSID)
	})

	t.Run("status engine now knows them", func(t *testing.T) {
		status, err := env.engine.ComputeStatus("newcomer")
		require.NoError(t, err)
		assert.Equal(t, D0PRE, status)
	})
}

func TestHandleNewAutoTestGradeKeepsHighest(t *testing.T) {
	env := newTestEnv(t)

	deliv := &models.Deliverable{ID: "d1"}
	score := func(v float64) *models.Grade {
		return &models.Grade{PersonID: "alice", DelivID: "d1", Score: &v}
	}

	tests := []struct {
		name     string
		incoming *models.Grade
		existing *models.Grade
		want     bool
	}{
		{"first grade is accepted", score(50), nil, true},
		{"higher replaces lower", score(80), score(50), true},
		{"equal score is rejected", score(80), score(80), false},
		{"lower score is rejected", score(49), score(50), false},
		{"placeholder existing does not block", score(10), &models.Grade{PersonID: "alice", DelivID: "d1"}, true},
		{"scoreless incoming is rejected", &models.Grade{PersonID: "alice", DelivID: "d1"}, score(50), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, env.policy.HandleNewAutoTestGrade(deliv, tt.incoming, tt.existing))
		})
	}
}
