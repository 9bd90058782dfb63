package course

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classy-portal/classy/internal/models"
)

func TestDefaultPolicyRejectsUnknownUsers(t *testing.T) {
	policy := NewDefaultPolicy()

	person, err := policy.HandleUnknownUser("stranger")
	require.NoError(t, err)
	assert.Nil(t, person)
}

func TestDefaultPolicyGradeWindow(t *testing.T) {
	policy := NewDefaultPolicy()
	deliv := &models.Deliverable{
		ID:             "a1",
		OpenTimestamp:  1000,
		CloseTimestamp: 2000,
	}

	grade := func(score float64, ts int64) *models.Grade {
		return &models.Grade{PersonID: "alice", DelivID: "a1", Score: &score, Timestamp: ts}
	}

	tests := []struct {
		name     string
		incoming *models.Grade
		existing *models.Grade
		want     bool
	}{
		{"inside window, no existing grade", grade(80, 1500), nil, true},
		{"equal resubmission refreshes", grade(80, 1600), grade(80, 1500), true},
		{"lower score is rejected", grade(79, 1600), grade(80, 1500), false},
		{"after the deadline", grade(100, 2500), nil, false},
		{"before the window opens", grade(100, 500), nil, false},
		{"on the open boundary", grade(80, 1000), nil, true},
		{"on the close boundary", grade(80, 2000), nil, true},
		{"scoreless payload", &models.Grade{PersonID: "alice", DelivID: "a1", Timestamp: 1500}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.HandleNewAutoTestGrade(deliv, tt.incoming, tt.existing))
		})
	}
}

func TestDefaultPolicyComputeNames(t *testing.T) {
	policy := NewDefaultPolicy()
	deliv := &models.Deliverable{
		ID:         "proj",
		TeamPrefix: "team_",
		RepoPrefix: "repo_",
	}

	t.Run("members sorted by csId", func(t *testing.T) {
		people := []*models.Person{
			{ID: "zoe", CSID: "z9z9z"},
			{ID: "adam", CSID: "a1a1a"},
		}

		names, err := policy.ComputeNames(deliv, people)
		require.NoError(t, err)
		assert.Equal(t, "team_adam_zoe", names.TeamName)
		assert.Equal(t, "repo_adam_zoe", names.RepoName)
	})

	t.Run("same members in any order give the same name", func(t *testing.T) {
		a := []*models.Person{{ID: "x", CSID: "c1"}, {ID: "y", CSID: "c2"}}
		b := []*models.Person{{ID: "y", CSID: "c2"}, {ID: "x", CSID: "c1"}}

		namesA, err := policy.ComputeNames(deliv, a)
		require.NoError(t, err)
		namesB, err := policy.ComputeNames(deliv, b)
		require.NoError(t, err)
		assert.Equal(t, namesA, namesB)
	})

	t.Run("requires a deliverable and people", func(t *testing.T) {
		_, err := policy.ComputeNames(nil, []*models.Person{{ID: "x"}})
		assert.Error(t, err)

		_, err = policy.ComputeNames(deliv, nil)
		assert.Error(t, err)
	})
}
