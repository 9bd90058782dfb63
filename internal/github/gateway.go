package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/classy-portal/classy/internal/models"
)

// Gateway is the remote-side provisioning capability. The core never talks to
// GitHub directly; everything goes through this interface so tests can swap in
// a double and so gateway failures stay a boolean concern for the caller.
type Gateway interface {
	// ProvisionRepository creates the remote repo and team, populates the repo
	// from importURL, and attaches the AutoTest webhook. Returns false when
	// any remote step fails.
	ProvisionRepository(ctx context.Context, repoName string, teams []*models.Team, importURL, webhookURL string) (bool, error)

	RepositoryURL(repo *models.Repository) string
	TeamURL(team *models.Team) string
}

// Controller talks to the GitHub REST v3 API for a single organization.
type Controller struct {
	apiURL string
	webURL string
	org    string
	token  string
	client *http.Client
}

func NewController(apiURL, webURL, org, token string) *Controller {
	return &Controller{
		apiURL: apiURL,
		webURL: webURL,
		org:    org,
		token:  token,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// ProvisionRepository performs the remote creation sequence. The source
// import is the slow step; it can take tens of seconds on the real API.
func (c *Controller) ProvisionRepository(ctx context.Context, repoName string, teams []*models.Team, importURL, webhookURL string) (bool, error) {
	logger.Info.Printf("github: provisioning %s/%s", c.org, repoName)

	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/orgs/%s/repos", c.org), map[string]interface{}{
		"name":      repoName,
		"private":   true,
		"auto_init": false,
	}, nil); err != nil {
		return false, fmt.Errorf("creating repo %s: %w", repoName, err)
	}

	for _, team := range teams {
		var created struct {
			Slug string `json:"slug"`
		}
		if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/orgs/%s/teams", c.org), map[string]interface{}{
			"name":    team.ID,
			"privacy": "closed",
		}, &created); err != nil {
			return false, fmt.Errorf("creating team %s: %w", team.ID, err)
		}
		if created.Slug == "" {
			created.Slug = team.ID
		}

		for _, personID := range team.PersonIDs {
			if err := c.do(ctx, http.MethodPut,
				fmt.Sprintf("/orgs/%s/teams/%s/memberships/%s", c.org, created.Slug, personID),
				map[string]interface{}{"role": "member"}, nil); err != nil {
				return false, fmt.Errorf("adding %s to team %s: %w", personID, team.ID, err)
			}
		}

		if err := c.do(ctx, http.MethodPut,
			fmt.Sprintf("/orgs/%s/teams/%s/repos/%s/%s", c.org, created.Slug, c.org, repoName),
			map[string]interface{}{"permission": "push"}, nil); err != nil {
			return false, fmt.Errorf("attaching team %s to repo %s: %w", team.ID, repoName, err)
		}
	}

	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/hooks", c.org, repoName), map[string]interface{}{
		"name":   "web",
		"active": true,
		"events": []string{"push"},
		"config": map[string]string{
			"url":          webhookURL,
			"content_type": "json",
		},
	}, nil); err != nil {
		return false, fmt.Errorf("attaching webhook to %s: %w", repoName, err)
	}

	if importURL != "" {
		if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/repos/%s/%s/import", c.org, repoName), map[string]interface{}{
			"vcs":     "git",
			"vcs_url": importURL,
		}, nil); err != nil {
			return false, fmt.Errorf("importing %s into %s: %w", importURL, repoName, err)
		}
	}

	logger.Info.Printf("github: provisioned %s/%s", c.org, repoName)
	return true, nil
}

func (c *Controller) RepositoryURL(repo *models.Repository) string {
	return fmt.Sprintf("%s/%s/%s", c.webURL, c.org, repo.ID)
}

func (c *Controller) TeamURL(team *models.Team) string {
	return fmt.Sprintf("%s/orgs/%s/teams/%s", c.webURL, c.org, team.ID)
}

func (c *Controller) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
