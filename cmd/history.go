package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/tidalhook/shelfctl/internal/shared"
)

// HistoryList prints the most recent journaled runs.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	j, err := r.openJournal()
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	records, err := j.List(int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.String("format") == "json" {
		return r.writeJSON(records, true)
	}

	if len(records) == 0 {
		return r.writePlain("no journaled runs\n")
	}

	for _, rec := range records {
		mode := rec.Desired
		if rec.DryRun {
			mode += " (dry-run)"
		}
		r.writePlain("%s  %s  %s\n", rec.StartedAt.Format("2006-01-02 15:04:05"), rec.ID, mode)
		r.writePlain("    pages %d · toggled %d · skipped %d · failed %d · retried %d\n",
			rec.Pages, rec.Stats.Toggled, rec.Stats.Skipped, rec.Stats.Failed, rec.Stats.Retried)
	}
	return nil
}

// HistoryFailures prints the failed items of one journaled run.
func (r *Runner) HistoryFailures(ctx context.Context, cmd *cli.Command) error {
	runID := cmd.Args().First()
	if runID == "" {
		return fmt.Errorf("%w: run ID", shared.ErrMissingArgument)
	}

	j, err := r.openJournal()
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	records, err := j.Failures(runID)
	if err != nil {
		return err
	}

	if cmd.String("format") == "json" {
		return r.writeJSON(records, true)
	}

	if len(records) == 0 {
		return r.writePlain("no failures recorded for run %s\n", runID)
	}

	for i, rec := range records {
		r.writePlain("%d. %s (%s): %s\n", i+1, rec.Title, rec.Category, rec.Reason)
	}
	return nil
}

// historyCommand queries the run journal.
func historyCommand(r *Runner) *cli.Command {
	formatFlag := &cli.StringFlag{
		Name:  "format",
		Usage: "Output format: text or json",
		Value: "text",
	}

	return &cli.Command{
		Name:  "history",
		Usage: "Inspect past runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show",
						Value: 20,
					},
					formatFlag,
				},
				Action: r.HistoryList,
			},
			{
				Name:      "failures",
				Usage:     "List the failed items of a run",
				ArgsUsage: "<run-id>",
				Flags:     []cli.Flag{formatFlag},
				Action:    r.HistoryFailures,
			},
		},
	}
}
