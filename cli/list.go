package cli

// This file contains the list command for showing stored run records.

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/SeldomQA/seldom-atx/model"
	"github.com/SeldomQA/seldom-atx/store"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var (
	passMark = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
)

func (a *App) list(ctx *cli.Context) error {
	filterCase := ctx.String("case")
	limit := ctx.Int("limit")

	if _, err := os.Stat(a.cfg.Database); os.IsNotExist(err) {
		fmt.Println("No runs found")
		fmt.Printf("Run records are saved to %s\n", a.cfg.Database)
		return nil
	}

	db, err := store.Open(a.logger, a.cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.List(ctx.Context, 0)
	if err != nil {
		return err
	}

	var matching []*model.RunRecord
	for _, rec := range records {
		if filterCase == "" || strings.Contains(rec.Case.Name, filterCase) {
			matching = append(matching, rec)
		}
	}

	if len(matching) == 0 {
		if filterCase != "" {
			fmt.Printf("No runs found matching case: %s\n", filterCase)
		} else {
			fmt.Println("No runs found")
		}
		return nil
	}

	display := matching
	if limit > 0 && limit < len(display) {
		display = display[:limit]
	}

	fmt.Printf("\n=== Runs (%d total) ===\n\n", len(matching))
	for _, rec := range display {
		printRecord(os.Stdout, rec)
		fmt.Println()
	}
	fmt.Println("View a run: seldom-atx view <id>")
	return nil
}

func printRecord(w io.Writer, rec *model.RunRecord) {
	status := passMark
	if !rec.Passed() {
		status = failMark
	}

	shortID := rec.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	fmt.Fprintf(w, "%s  %s  %s  id=%s\n", status, rec.Time.Format("2006-01-02 15:04:05"), rec.Case.Name, shortID)
	if rec.Case.Desc != "" {
		fmt.Fprintf(w, "   Desc: %s\n", rec.Case.Desc)
	}
	if rec.Case.File != "" || rec.Case.Class != "" {
		fmt.Fprintf(w, "   Case: %s\n", rec.Case.Path())
	}
	fmt.Fprintf(w, "   Device: %s (%s)\n", rec.DeviceName, rec.Platform)
	fmt.Fprintf(w, "   Capabilities: %s  repetitions=%d\n", rec.RunList, rec.DurationTimes)
	if rec.RunList.Has(model.CapabilityDuration) {
		fmt.Fprintf(w, "   Duration: avg=%.2fs %v\n", rec.DurationAvg, rec.DurationList)
	}
	if rec.RunList.Has(model.CapabilityPerformance) {
		fmt.Fprintf(w, "   Memory: max=%.2fMB\n", rec.MemoryMax)
	}
}
