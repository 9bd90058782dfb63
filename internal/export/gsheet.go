package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/shrimpsizemoose/trekker/logger"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/classy-portal/classy/internal/app"
	"github.com/classy-portal/classy/internal/store"
)

// GSheetExporter periodically mirrors released grades into a spreadsheet the
// teaching staff watches. One row per person, one column per deliverable.
type GSheetExporter struct {
	config        *app.Config
	store         store.EntityStore
	scheduler     *gocron.Scheduler
	sheetsService *sheets.Service
}

func NewGSheetExporter(config *app.Config, st store.EntityStore) (*GSheetExporter, error) {
	ctx := context.Background()

	svc, err := sheets.NewService(ctx, option.WithCredentialsFile(config.Export.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	interval := config.Export.IntervalMinutes
	if interval <= 0 {
		interval = 60
	}

	exporter := &GSheetExporter{
		config:        config,
		store:         st,
		scheduler:     gocron.NewScheduler(time.UTC),
		sheetsService: svc,
	}

	_, err = exporter.scheduler.Every(interval).Minutes().Do(func() {
		if err := exporter.Export(); err != nil {
			logger.Error.Printf("Export failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule export: %w", err)
	}

	return exporter, nil
}

func (e *GSheetExporter) Start() {
	e.scheduler.StartAsync()
}

func (e *GSheetExporter) Stop() {
	e.scheduler.Stop()
}

// Export pushes a full snapshot of released grades. The sheet is rewritten
// wholesale on every run; partial updates are not worth the bookkeeping.
func (e *GSheetExporter) Export() error {
	grades, err := e.store.ListReleasedGrades()
	if err != nil {
		return fmt.Errorf("failed to list released grades: %w", err)
	}

	byPerson := make(map[string]map[string]*float64)
	delivSet := make(map[string]bool)
	for _, g := range grades {
		if byPerson[g.PersonID] == nil {
			byPerson[g.PersonID] = make(map[string]*float64)
		}
		byPerson[g.PersonID][g.DelivID] = g.Score
		delivSet[g.DelivID] = true
	}

	delivs := make([]string, 0, len(delivSet))
	for d := range delivSet {
		delivs = append(delivs, d)
	}
	sort.Strings(delivs)

	people := make([]string, 0, len(byPerson))
	for p := range byPerson {
		people = append(people, p)
	}
	sort.Strings(people)

	header := []interface{}{"person"}
	for _, d := range delivs {
		header = append(header, d)
	}

	values := [][]interface{}{header}
	for _, p := range people {
		row := []interface{}{p}
		for _, d := range delivs {
			score := byPerson[p][d]
			if score == nil {
				row = append(row, "")
			} else {
				row = append(row, *score)
			}
		}
		values = append(values, row)
	}

	timestamp := fmt.Sprintf("UPD: %s", time.Now().UTC().Format("2 January 15:04"))
	values = append(values, []interface{}{timestamp})

	writeRange := fmt.Sprintf("%s!A1", e.config.Export.SheetName)
	_, err = e.sheetsService.Spreadsheets.Values.Update(
		e.config.Export.SpreadsheetID,
		writeRange,
		&sheets.ValueRange{Values: values},
	).ValueInputOption("RAW").Do()
	if err != nil {
		return fmt.Errorf("failed to update sheet: %w", err)
	}

	logger.Info.Printf("Exported %d grade rows to sheet %s", len(people), e.config.Export.SheetName)
	return nil
}
