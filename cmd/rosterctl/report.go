package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"checkin/internal/platform/config"
	"checkin/internal/platform/postgres"
	reportService "checkin/internal/report/service"
	"checkin/internal/roster/models"
	rosterStore "checkin/internal/roster/store"
)

func runReport(ctx context.Context, cfg config.Server, limit int) error {
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	cutoff, ok := models.ParseSlotDate(cfg.ReportCutoff)
	if !ok {
		return fmt.Errorf("REPORT_CUTOFF %q is not a dd/mm/yyyy date", cfg.ReportCutoff)
	}
	db, err := postgres.Open(ctx, postgres.Config{URL: cfg.Database.URL})
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := reportService.New(rosterStore.NewPostgres(db), reportService.WithCutoff(cutoff))
	if err != nil {
		return err
	}

	groups, err := svc.GroupByDateAndPaper(ctx)
	if err != nil {
		return err
	}
	recent, err := svc.ListRecent(ctx, limit)
	if err != nil {
		return err
	}
	summary, err := svc.Summary(ctx)
	if err != nil {
		return err
	}

	color.Cyan("\n=== Check-in report (cutoff %s) ===", cutoff.Label())
	color.Yellow("\nBy date and paper")
	renderDateGroups(os.Stdout, groups)
	color.Yellow("\nMost recent check-ins")
	renderRecent(os.Stdout, recent)
	color.Green("\nChecked in: %d of %d candidates", summary.CheckedIn, summary.Total)
	return nil
}

// paperColumns returns the catalog papers followed by any other paper seen in
// groups, so every count gets a column.
func paperColumns(groups []reportService.DateGroup) []string {
	cols := make([]string, 0, len(models.DefaultPapers))
	for _, p := range models.DefaultPapers {
		cols = append(cols, p.ID)
	}
	var extra []string
	for _, g := range groups {
		for id := range g.Papers {
			if !slices.Contains(cols, id) && !slices.Contains(extra, id) {
				extra = append(extra, id)
			}
		}
	}
	slices.Sort(extra)
	return append(cols, extra...)
}

func renderDateGroups(w io.Writer, groups []reportService.DateGroup) {
	cols := paperColumns(groups)
	table := tablewriter.NewWriter(w)
	table.SetHeader(append([]string{"Date", "Total"}, cols...))
	for _, g := range groups {
		row := []string{g.Date, strconv.Itoa(g.Total)}
		for _, id := range cols {
			row = append(row, strconv.Itoa(g.Papers[id]))
		}
		table.Append(row)
	}
	table.Render()
}

func renderRecent(w io.Writer, views []models.CandidateView) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Barcode", "Name", "School", "Papers", "Count", "Last check-in"})
	for _, v := range views {
		papers := make([]string, len(v.CheckIns))
		for i, e := range v.CheckIns {
			papers[i] = e.PaperID
		}
		last := ""
		if v.LastCheckIn != nil {
			last = v.LastCheckIn.Local().Format(time.DateTime)
		}
		table.Append([]string{
			v.Barcode,
			v.Name,
			v.School,
			fmt.Sprint(papers),
			strconv.Itoa(v.CheckInCount),
			last,
		})
	}
	table.Render()
}
