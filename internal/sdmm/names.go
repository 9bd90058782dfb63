package sdmm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/classy-portal/classy/internal/course"
	"github.com/classy-portal/classy/internal/models"
	"github.com/classy-portal/classy/internal/store"
)

const teamSuffixLen = 6

// Namer derives team and repo names for the self-paced course. Individuals
// get their own id as the name; pairs get a short random suffix that is
// checked against the team store until a free one is found. The check is
// mandatory even though a collision is astronomically unlikely.
type Namer struct {
	store store.EntityStore

	// randHex is swappable so tests can force collisions.
	randHex func(n int) (string, error)
}

func NewNamer(st store.EntityStore) *Namer {
	return &Namer{store: st, randHex: randomHex}
}

func randomHex(n int) (string, error) {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf)[:n], nil
}

// ComputeNames is read-only: it never creates or reserves anything.
func (n *Namer) ComputeNames(deliv *models.Deliverable, people []*models.Person) (course.Names, error) {
	if deliv == nil {
		return course.Names{}, failf(ErrInvalidArgument, "Invalid deliverable; contact course staff.")
	}
	if len(people) < 1 {
		return course.Names{}, failf(ErrInvalidArgument, "Invalid # of people; contact course staff.")
	}

	// d0 is individual-only, and a single person always gets their id back
	if deliv.ID == "d0" || len(people) == 1 {
		return course.Names{
			TeamName: deliv.TeamPrefix + people[0].ID,
			RepoName: deliv.RepoPrefix + people[0].ID,
		}, nil
	}

	for {
		suffix, err := n.randHex(teamSuffixLen)
		if err != nil {
			return course.Names{}, err
		}
		teamName := deliv.TeamPrefix + suffix

		existing, err := n.store.GetTeam(teamName)
		if err != nil {
			return course.Names{}, fmt.Errorf("checking team name %s: %w", teamName, err)
		}
		if existing == nil {
			logger.Debug.Printf("names: team name available: %s", teamName)
			return course.Names{
				TeamName: teamName,
				RepoName: deliv.RepoPrefix + teamName,
			}, nil
		}
		logger.Info.Printf("names: team name collision on %s, retrying", teamName)
	}
}
