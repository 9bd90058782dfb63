package store

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/classy-portal/classy/internal/models"
)

// EntityStore persists the portal entities, keyed by their invariant string
// ids. Lookups return (nil, nil) when no record exists; callers treat absence
// as a normal outcome, not an error.
type EntityStore interface {
	Close() error
	ApplyMigrations(dir string) error

	GetPerson(id string) (*models.Person, error)
	WritePerson(p *models.Person) error
	ListPeople() ([]models.Person, error)

	GetDeliverable(id string) (*models.Deliverable, error)
	WriteDeliverable(d *models.Deliverable) error

	GetTeam(id string) (*models.Team, error)
	WriteTeam(t *models.Team) error
	DeleteTeam(id string) error
	ListTeamsForPerson(personID string) ([]models.Team, error)

	GetRepository(id string) (*models.Repository, error)
	WriteRepository(r *models.Repository) error
	DeleteRepository(id string) error
	ListRepositoriesForPerson(personID string) ([]models.Repository, error)
	ListPeopleForRepo(repoID string) ([]string, error)

	GetGrade(personID, delivID string) (*models.Grade, error)
	WriteGrade(g *models.Grade) error
	ListReleasedGrades() ([]models.Grade, error)

	WriteAudit(ev *models.AuditEvent) error
}

// BaseStore provides common functionality for different DB implementations
type BaseStore struct {
	DB        *sqlx.DB
	Converter func(string) string
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// ApplyMigrations applies SQL migrations from a directory, translating dialect if needed
func (s *BaseStore) ApplyMigrations(dir string, translateSQL func(string) string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		content, err := os.ReadFile(fmt.Sprintf("%s/%s", dir, file.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file.Name(), err)
		}

		sql := string(content)
		if translateSQL != nil {
			sql = translateSQL(sql)
		}

		if _, err := s.DB.Exec(sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file.Name(), err)
		}
	}

	return nil
}

func (s *BaseStore) GetPerson(id string) (*models.Person, error) {
	var p models.Person
	query := s.Converter(`
		SELECT id, cs_id, student_number, github_id, f_name, l_name, kind, url, lab_id, status
		FROM people
		WHERE id = ?
	`)

	err := s.DB.Get(&p, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return &p, nil
}

func (s *BaseStore) WritePerson(p *models.Person) error {
	_, err := s.DB.NamedExec(`
		INSERT INTO people (id, cs_id, student_number, github_id, f_name, l_name, kind, url, lab_id, status)
		VALUES (:id, :cs_id, :student_number, :github_id, :f_name, :l_name, :kind, :url, :lab_id, :status)
		ON CONFLICT(id) DO UPDATE SET
		cs_id = :cs_id,
		student_number = :student_number,
		github_id = :github_id,
		f_name = :f_name,
		l_name = :l_name,
		kind = :kind,
		url = :url,
		lab_id = :lab_id,
		status = :status
	`, p)
	if err != nil {
		return fmt.Errorf("failed to write person: %w", err)
	}
	return nil
}

func (s *BaseStore) ListPeople() ([]models.Person, error) {
	var people []models.Person
	err := s.DB.Select(&people, `
		SELECT id, cs_id, student_number, github_id, f_name, l_name, kind, url, lab_id, status
		FROM people
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	return people, nil
}

func (s *BaseStore) GetDeliverable(id string) (*models.Deliverable, error) {
	var d models.Deliverable
	query := s.Converter(`
		SELECT id, url, repo_prefix, team_prefix, open_timestamp, close_timestamp,
		       grades_released, team_min_size, team_max_size, import_url
		FROM deliverables
		WHERE id = ?
	`)

	err := s.DB.Get(&d, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deliverable: %w", err)
	}
	return &d, nil
}

func (s *BaseStore) WriteDeliverable(d *models.Deliverable) error {
	_, err := s.DB.NamedExec(`
		INSERT INTO deliverables (id, url, repo_prefix, team_prefix, open_timestamp,
		                          close_timestamp, grades_released, team_min_size, team_max_size, import_url)
		VALUES (:id, :url, :repo_prefix, :team_prefix, :open_timestamp,
		        :close_timestamp, :grades_released, :team_min_size, :team_max_size, :import_url)
		ON CONFLICT(id) DO UPDATE SET
		url = :url,
		repo_prefix = :repo_prefix,
		team_prefix = :team_prefix,
		open_timestamp = :open_timestamp,
		close_timestamp = :close_timestamp,
		grades_released = :grades_released,
		team_min_size = :team_min_size,
		team_max_size = :team_max_size,
		import_url = :import_url
	`, d)
	if err != nil {
		return fmt.Errorf("failed to write deliverable: %w", err)
	}
	return nil
}

func (s *BaseStore) GetTeam(id string) (*models.Team, error) {
	var t models.Team
	query := s.Converter(`
		SELECT id, deliv_id, url, flags
		FROM teams
		WHERE id = ?
	`)

	err := s.DB.Get(&t, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	if err := s.loadTeamMembers(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BaseStore) loadTeamMembers(t *models.Team) error {
	query := s.Converter(`
		SELECT person_id
		FROM team_members
		WHERE team_id = ?
		ORDER BY position
	`)

	if err := s.DB.Select(&t.PersonIDs, query, t.ID); err != nil {
		return fmt.Errorf("failed to load team members: %w", err)
	}
	return nil
}

func (s *BaseStore) WriteTeam(t *models.Team) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExec(`
		INSERT INTO teams (id, deliv_id, url, flags)
		VALUES (:id, :deliv_id, :url, :flags)
		ON CONFLICT(id) DO UPDATE SET
		url = :url,
		flags = :flags
	`, t); err != nil {
		return fmt.Errorf("failed to write team: %w", err)
	}

	if _, err := tx.Exec(s.Converter(`DELETE FROM team_members WHERE team_id = ?`), t.ID); err != nil {
		return fmt.Errorf("failed to clear team members: %w", err)
	}
	for i, pid := range t.PersonIDs {
		if _, err := tx.Exec(
			s.Converter(`INSERT INTO team_members (team_id, person_id, position) VALUES (?, ?, ?)`),
			t.ID, pid, i,
		); err != nil {
			return fmt.Errorf("failed to write team member: %w", err)
		}
	}

	return tx.Commit()
}

func (s *BaseStore) DeleteTeam(id string) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.Converter(`DELETE FROM team_members WHERE team_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete team members: %w", err)
	}
	if _, err := tx.Exec(s.Converter(`DELETE FROM teams WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}

	return tx.Commit()
}

func (s *BaseStore) ListTeamsForPerson(personID string) ([]models.Team, error) {
	var teams []models.Team
	query := s.Converter(`
		SELECT t.id, t.deliv_id, t.url, t.flags
		FROM teams t
		JOIN team_members m ON m.team_id = t.id
		WHERE m.person_id = ?
		ORDER BY t.id
	`)

	if err := s.DB.Select(&teams, query, personID); err != nil {
		return nil, fmt.Errorf("failed to list teams for person: %w", err)
	}
	for i := range teams {
		if err := s.loadTeamMembers(&teams[i]); err != nil {
			return nil, err
		}
	}
	return teams, nil
}

func (s *BaseStore) GetRepository(id string) (*models.Repository, error) {
	var r models.Repository
	query := s.Converter(`
		SELECT id, deliv_id, url, flags
		FROM repositories
		WHERE id = ?
	`)

	err := s.DB.Get(&r, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}

	if err := s.loadRepoTeams(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BaseStore) loadRepoTeams(r *models.Repository) error {
	query := s.Converter(`
		SELECT team_id
		FROM repo_teams
		WHERE repo_id = ?
		ORDER BY team_id
	`)

	if err := s.DB.Select(&r.TeamIDs, query, r.ID); err != nil {
		return fmt.Errorf("failed to load repo teams: %w", err)
	}
	return nil
}

func (s *BaseStore) WriteRepository(r *models.Repository) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExec(`
		INSERT INTO repositories (id, deliv_id, url, flags)
		VALUES (:id, :deliv_id, :url, :flags)
		ON CONFLICT(id) DO UPDATE SET
		url = :url,
		flags = :flags
	`, r); err != nil {
		return fmt.Errorf("failed to write repository: %w", err)
	}

	if _, err := tx.Exec(s.Converter(`DELETE FROM repo_teams WHERE repo_id = ?`), r.ID); err != nil {
		return fmt.Errorf("failed to clear repo teams: %w", err)
	}
	for _, tid := range r.TeamIDs {
		if _, err := tx.Exec(
			s.Converter(`INSERT INTO repo_teams (repo_id, team_id) VALUES (?, ?)`),
			r.ID, tid,
		); err != nil {
			return fmt.Errorf("failed to write repo team: %w", err)
		}
	}

	return tx.Commit()
}

func (s *BaseStore) DeleteRepository(id string) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.Converter(`DELETE FROM repo_teams WHERE repo_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete repo teams: %w", err)
	}
	if _, err := tx.Exec(s.Converter(`DELETE FROM repositories WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete repository: %w", err)
	}

	return tx.Commit()
}

func (s *BaseStore) ListRepositoriesForPerson(personID string) ([]models.Repository, error) {
	var repos []models.Repository
	query := s.Converter(`
		SELECT DISTINCT r.id, r.deliv_id, r.url, r.flags
		FROM repositories r
		JOIN repo_teams rt ON rt.repo_id = r.id
		JOIN team_members m ON m.team_id = rt.team_id
		WHERE m.person_id = ?
		ORDER BY r.id
	`)

	if err := s.DB.Select(&repos, query, personID); err != nil {
		return nil, fmt.Errorf("failed to list repositories for person: %w", err)
	}
	for i := range repos {
		if err := s.loadRepoTeams(&repos[i]); err != nil {
			return nil, err
		}
	}
	return repos, nil
}

// ListPeopleForRepo returns the distinct person ids across every team on the
// repo, in team order, requester-first within each team.
func (s *BaseStore) ListPeopleForRepo(repoID string) ([]string, error) {
	var ids []string
	query := s.Converter(`
		SELECT m.person_id
		FROM team_members m
		JOIN repo_teams rt ON rt.team_id = m.team_id
		WHERE rt.repo_id = ?
		ORDER BY m.team_id, m.position
	`)

	if err := s.DB.Select(&ids, query, repoID); err != nil {
		return nil, fmt.Errorf("failed to list people for repo: %w", err)
	}

	seen := make(map[string]bool)
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *BaseStore) GetGrade(personID, delivID string) (*models.Grade, error) {
	var g models.Grade
	query := s.Converter(`
		SELECT person_id, deliv_id, score, comment, timestamp, url_name, url
		FROM grades
		WHERE person_id = ?
		AND deliv_id = ?
	`)

	err := s.DB.Get(&g, query, personID, delivID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grade: %w", err)
	}
	return &g, nil
}

func (s *BaseStore) WriteGrade(g *models.Grade) error {
	_, err := s.DB.NamedExec(`
		INSERT INTO grades (person_id, deliv_id, score, comment, timestamp, url_name, url)
		VALUES (:person_id, :deliv_id, :score, :comment, :timestamp, :url_name, :url)
		ON CONFLICT(person_id, deliv_id) DO UPDATE SET
		score = :score,
		comment = :comment,
		timestamp = :timestamp,
		url_name = :url_name,
		url = :url
	`, g)
	if err != nil {
		return fmt.Errorf("failed to write grade: %w", err)
	}
	return nil
}

func (s *BaseStore) ListReleasedGrades() ([]models.Grade, error) {
	var grades []models.Grade
	err := s.DB.Select(&grades, `
		SELECT g.person_id, g.deliv_id, g.score, g.comment, g.timestamp, g.url_name, g.url
		FROM grades g
		JOIN deliverables d ON d.id = g.deliv_id
		WHERE d.grades_released
		ORDER BY g.person_id, g.deliv_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list released grades: %w", err)
	}
	return grades, nil
}

func (s *BaseStore) WriteAudit(ev *models.AuditEvent) error {
	_, err := s.DB.NamedExec(`
		INSERT INTO audit_events (id, label, timestamp, person_id, before_state, after_state, detail)
		VALUES (:id, :label, :timestamp, :person_id, :before_state, :after_state, :detail)
	`, ev)
	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}
