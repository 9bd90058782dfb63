package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classy-portal/classy/internal/models"
)

type recordedCall struct {
	Method string
	Path   string
}

func newTestServer(t *testing.T, failOn string) (*httptest.Server, *[]recordedCall) {
	t.Helper()

	var calls []recordedCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, recordedCall{Method: r.Method, Path: r.URL.Path})

		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, "token test-token", r.Header.Get("Authorization"))

		if failOn != "" && r.URL.Path == failOn {
			http.Error(w, `{"message":"boom"}`, http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost && r.URL.Path == "/orgs/testorg/teams" {
			var body struct {
				Name string `json:"name"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"slug":"%s"}`, body.Name)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	return srv, &calls
}

func TestProvisionRepository(t *testing.T) {
	srv, calls := newTestServer(t, "")
	c := NewController(srv.URL, "https://github.com", "testorg", "test-token")

	team := &models.Team{ID: "t_alice", PersonIDs: []string{"alice"}}
	ok, err := c.ProvisionRepository(
		context.Background(),
		"secap_alice",
		[]*models.Team{team},
		"https://github.com/secapstone/bootstrap",
		"https://portal.example.org/autotest/webhook",
	)
	require.NoError(t, err)
	assert.True(t, ok)

	want := []recordedCall{
		{http.MethodPost, "/orgs/testorg/repos"},
		{http.MethodPost, "/orgs/testorg/teams"},
		{http.MethodPut, "/orgs/testorg/teams/t_alice/memberships/alice"},
		{http.MethodPut, "/orgs/testorg/teams/t_alice/repos/testorg/secap_alice"},
		{http.MethodPost, "/repos/testorg/secap_alice/hooks"},
		{http.MethodPut, "/repos/testorg/secap_alice/import"},
	}
	assert.Equal(t, want, *calls)
}

func TestProvisionRepositorySkipsEmptyImport(t *testing.T) {
	srv, calls := newTestServer(t, "")
	c := NewController(srv.URL, "https://github.com", "testorg", "test-token")

	ok, err := c.ProvisionRepository(
		context.Background(),
		"secap_alice",
		[]*models.Team{{ID: "t_alice", PersonIDs: []string{"alice"}}},
		"",
		"https://portal.example.org/autotest/webhook",
	)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, call := range *calls {
		assert.NotContains(t, call.Path, "/import")
	}
}

func TestProvisionRepositoryRemoteFailure(t *testing.T) {
	srv, _ := newTestServer(t, "/repos/testorg/secap_alice/hooks")
	c := NewController(srv.URL, "https://github.com", "testorg", "test-token")

	ok, err := c.ProvisionRepository(
		context.Background(),
		"secap_alice",
		[]*models.Team{{ID: "t_alice", PersonIDs: []string{"alice"}}},
		"https://github.com/secapstone/bootstrap",
		"https://portal.example.org/autotest/webhook",
	)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "attaching webhook")
	assert.Contains(t, err.Error(), "status 422")
}

func TestURLDerivation(t *testing.T) {
	c := NewController("https://api.github.com", "https://github.com", "testorg", "")

	repoURL := c.RepositoryURL(&models.Repository{ID: "secap_alice"})
	assert.Equal(t, "https://github.com/testorg/secap_alice", repoURL)

	teamURL := c.TeamURL(&models.Team{ID: "t_alice"})
	assert.Equal(t, "https://github.com/orgs/testorg/teams/t_alice", teamURL)
}
