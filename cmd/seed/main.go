package main

import (
	"flag"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/classy-portal/classy/internal/app"
	"github.com/classy-portal/classy/internal/models"
)

type seedFile struct {
	Deliverables []deliverableSeed `toml:"deliverables"`
	People       []personSeed      `toml:"people"`
}

type deliverableSeed struct {
	ID             string `toml:"id"`
	URL            string `toml:"url"`
	RepoPrefix     string `toml:"repo_prefix"`
	TeamPrefix     string `toml:"team_prefix"`
	OpenTimestamp  int64  `toml:"open_timestamp"`
	CloseTimestamp int64  `toml:"close_timestamp"`
	GradesReleased bool   `toml:"grades_released"`
	TeamMinSize    int    `toml:"team_min_size"`
	TeamMaxSize    int    `toml:"team_max_size"`
	ImportURL      string `toml:"import_url"`
}

type personSeed struct {
	ID       string `toml:"id"`
	CSID     string `toml:"cs_id"`
	GithubID string `toml:"github_id"`
	FName    string `toml:"f_name"`
	LName    string `toml:"l_name"`
	Kind     string `toml:"kind"`
	URL      string `toml:"url"`
	LabID    string `toml:"lab_id"`
	Status   string `toml:"status"`
}

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	var seedPath = flag.String("seed", "seed.toml", "Path to seed data file")
	flag.Parse()

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to load config: %v", err)
	}
	defer service.Close()

	if err := service.Store.ApplyMigrations(service.Config.Database.MigrationsDir); err != nil {
		logger.Error.Fatalf("Failed to apply migrations: %v", err)
	}

	data, err := os.ReadFile(*seedPath)
	if err != nil {
		logger.Error.Fatalf("Failed to read seed file: %v", err)
	}

	var seed seedFile
	if err := toml.Unmarshal(data, &seed); err != nil {
		logger.Error.Fatalf("Failed to parse seed file %s: %v", *seedPath, err)
	}

	for _, d := range seed.Deliverables {
		deliv := &models.Deliverable{
			ID:             d.ID,
			URL:            d.URL,
			RepoPrefix:     d.RepoPrefix,
			TeamPrefix:     d.TeamPrefix,
			OpenTimestamp:  d.OpenTimestamp,
			CloseTimestamp: d.CloseTimestamp,
			GradesReleased: d.GradesReleased,
			TeamMinSize:    d.TeamMinSize,
			TeamMaxSize:    d.TeamMaxSize,
			ImportURL:      d.ImportURL,
		}
		if err := deliv.Validate(); err != nil {
			logger.Error.Fatalf("Invalid deliverable %s: %v", d.ID, err)
		}
		if err := service.Store.WriteDeliverable(deliv); err != nil {
			logger.Error.Fatalf("Failed to write deliverable %s: %v", d.ID, err)
		}
		logger.Info.Printf("Seeded deliverable %s", d.ID)
	}

	for _, p := range seed.People {
		kind := models.PersonKind(p.Kind)
		if kind == models.KindNone {
			kind = models.KindStudent
		}
		status := p.Status
		if status == "" {
			status = "D0PRE"
		}
		githubID := p.GithubID
		if githubID == "" {
			githubID = p.ID
		}
		csID := p.CSID
		if csID == "" {
			csID = p.ID
		}
		person := &models.Person{
			ID:       p.ID,
			CSID:     csID,
			GithubID: githubID,
			FName:    p.FName,
			LName:    p.LName,
			Kind:     kind,
			Status:   status,
		}
		if p.URL != "" {
			person.URL = &p.URL
		}
		if p.LabID != "" {
			person.LabID = &p.LabID
		}
		if err := service.Store.WritePerson(person); err != nil {
			logger.Error.Fatalf("Failed to write person %s: %v", p.ID, err)
		}
		logger.Info.Printf("Seeded person %s", p.ID)
	}

	logger.Info.Printf("Seed complete: %d deliverables, %d people", len(seed.Deliverables), len(seed.People))
}
