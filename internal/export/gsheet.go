package export

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/uttal/internal/app"
	"github.com/shrimpsizemoose/uttal/internal/models"
	"github.com/shrimpsizemoose/uttal/internal/store"
)

// GSheetExporter pushes the class overview into a Google Sheet on a cron
// schedule, and rebuilds yesterday's attendance rollup nightly so the
// cached stats self-heal.
type GSheetExporter struct {
	config        *app.Config
	store         store.Store
	scheduler     *gocron.Scheduler
	sheetsService *sheets.Service
}

func NewGSheetExporter(config *app.Config, store store.Store) (*GSheetExporter, error) {
	ctx := context.Background()
	scheduler := gocron.NewScheduler(time.UTC)

	svc, err := sheets.NewService(ctx, option.WithCredentialsFile(config.Export.CredentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	exporter := &GSheetExporter{
		config:        config,
		store:         store,
		scheduler:     scheduler,
		sheetsService: svc,
	}

	if config.Export.Schedule != "" {
		_, err = scheduler.Cron(config.Export.Schedule).Do(func() {
			if err := exporter.Export(); err != nil {
				logger.Error.Printf("Export failed: %v", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule export: %w", err)
		}
	}

	if config.Export.RebuildSchedule != "" {
		_, err = scheduler.Cron(config.Export.RebuildSchedule).Do(func() {
			if err := exporter.RebuildYesterday(); err != nil {
				logger.Error.Printf("Rebuild failed: %v", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule rebuild: %w", err)
		}
	}

	scheduler.StartAsync()
	return exporter, nil
}

func (e *GSheetExporter) Stop() {
	e.scheduler.Stop()
}

// Export writes one row per student: name, class, submissions, average,
// best and active days, ordered by average as ClassStats returns them.
func (e *GSheetExporter) Export() error {
	teacher, err := e.store.GetUserByUsername(e.config.Export.TeacherUsername)
	if err != nil {
		return fmt.Errorf("failed to look up teacher: %w", err)
	}
	if teacher == nil || teacher.Role != models.RoleTeacher {
		return fmt.Errorf("no teacher account named %s", e.config.Export.TeacherUsername)
	}

	rangeDays := e.config.Export.RangeDays
	if rangeDays <= 0 {
		rangeDays = e.config.Stats.DefaultRangeDays
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -rangeDays)

	rows, err := e.store.ClassStats(teacher.ID, from.Unix(), to.Unix())
	if err != nil {
		return fmt.Errorf("failed to fetch class stats: %w", err)
	}

	values := [][]interface{}{
		{"Student", "Class", "Submissions", "Avg score", "Best score", "Active days"},
	}
	for _, row := range rows {
		className := ""
		if row.ClassName != nil {
			className = *row.ClassName
		}
		values = append(values, []interface{}{
			row.RealName,
			className,
			row.TotalExercises,
			fmt.Sprintf("%.1f", row.AvgScore),
			row.MaxScore,
			row.ActiveDays,
		})
	}
	values = append(values, []interface{}{
		fmt.Sprintf("UPD: %s UTC", to.Format("2 January 15:04")),
	})

	writeRange := fmt.Sprintf("%s!A1", e.config.Export.SheetName)
	_, err = e.sheetsService.Spreadsheets.Values.Update(
		e.config.Export.SheetID,
		writeRange,
		&sheets.ValueRange{Values: values},
	).ValueInputOption("RAW").Do()
	if err != nil {
		return fmt.Errorf("failed to update sheet: %w", err)
	}

	logger.Info.Printf("Exported %d class rows to sheet %s", len(rows), e.config.Export.SheetID)
	return nil
}

func (e *GSheetExporter) RebuildYesterday() error {
	day := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	if err := e.store.RebuildDailyStats(day, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to rebuild stats for %s: %w", day, err)
	}
	logger.Info.Printf("Rebuilt attendance rollup for %s", day)
	return nil
}
