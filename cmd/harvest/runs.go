package main

import (
	"fmt"
	"time"

	"github.com/fwojciec/harvest"
)

// Run executes the runs command.
func (c *RunsCmd) Run(deps *Dependencies) error {
	filter := harvest.RunFilter{Limit: c.Limit}
	if c.Source != "" {
		filter.Source = &c.Source
	}

	runs, err := deps.Runs.FindRuns(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(deps.Stdout, "No runs found. Use 'harvest run' to start one.")
		return nil
	}

	for _, r := range runs {
		fmt.Fprintf(deps.Stdout, "%s  %s  %-9s  %s  delivered %d/%d",
			r.ID, r.Source, r.Status, r.StartedAt.Local().Format(time.DateTime), r.Stats.Success, r.Stats.Items)
		if r.Error != "" {
			fmt.Fprintf(deps.Stdout, "  error: %s", r.Error)
		}
		fmt.Fprintln(deps.Stdout)
	}

	return nil
}
