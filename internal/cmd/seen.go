package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iticjobs/jobscrape/internal/seen"
)

type SeenCmd struct {
	Diff   SeenDiffCmd   `cmd:"" help:"Write jobs missing from the seen history to JSON."`
	Update SeenUpdateCmd `cmd:"" help:"Merge new jobs into seen history JSON."`
}

type SeenDiffCmd struct {
	New   string `name:"new" required:"" help:"Path to new jobs JSON file (A)."`
	Seen  string `name:"seen" required:"" help:"Path to seen jobs JSON file (B). Missing file is treated as empty."`
	Out   string `name:"out" required:"" help:"Output path for unseen jobs JSON file (C)."`
	Stats bool   `name:"stats" help:"Print comparison stats."`
}

type SeenUpdateCmd struct {
	Seen  string `name:"seen" required:"" help:"Path to seen jobs JSON file (B). Missing file is treated as empty."`
	Input string `name:"input" required:"" help:"Path to input jobs JSON file to merge into seen history."`
	Out   string `name:"out" required:"" help:"Output path for updated seen jobs JSON."`
	Stats bool   `name:"stats" help:"Print merge stats."`
}

func (c *SeenDiffCmd) Run(ctx *Context) error {
	newJobs, err := seen.ReadJobs(c.New)
	if err != nil {
		return fmt.Errorf("read --new: %w", err)
	}
	seenJobs, err := seen.ReadJobsAllowMissing(c.Seen)
	if err != nil {
		return fmt.Errorf("read --seen: %w", err)
	}

	unseenJobs, stats := seen.Diff(newJobs, seenJobs)
	if err := seen.WriteJobs(c.Out, unseenJobs); err != nil {
		return fmt.Errorf("write --out: %w", err)
	}

	if c.Stats {
		return writeStats(ctx, []stat{
			{"total_new", stats.TotalNew},
			{"total_seen", stats.TotalSeen},
			{"invalid_skipped", stats.InvalidSkipped()},
			{"unseen_emitted", stats.Unseen},
		})
	}

	return nil
}

func (c *SeenUpdateCmd) Run(ctx *Context) error {
	seenJobs, err := seen.ReadJobsAllowMissing(c.Seen)
	if err != nil {
		return fmt.Errorf("read --seen: %w", err)
	}
	inputJobs, err := seen.ReadJobs(c.Input)
	if err != nil {
		return fmt.Errorf("read --input: %w", err)
	}

	mergedJobs, stats := seen.Merge(seenJobs, inputJobs)
	if err := seen.WriteJobs(c.Out, mergedJobs); err != nil {
		return fmt.Errorf("write --out: %w", err)
	}

	if c.Stats {
		return writeStats(ctx, []stat{
			{"total_seen", stats.TotalSeen},
			{"total_input", stats.TotalInput},
			{"invalid_skipped", stats.InvalidSkipped()},
			{"added", stats.Added},
			{"total_out", stats.TotalOut},
		})
	}

	return nil
}

type stat struct {
	name  string
	value int
}

// writeStats prints key=value pairs, or one JSON object with --json.
func writeStats(ctx *Context, stats []stat) error {
	if ctx.JSONOutput {
		obj := make(map[string]int, len(stats))
		for _, s := range stats {
			obj[s.name] = s.value
		}
		return json.NewEncoder(ctx.Out).Encode(obj)
	}
	parts := make([]string, 0, len(stats))
	for _, s := range stats {
		parts = append(parts, fmt.Sprintf("%s=%d", s.name, s.value))
	}
	_, err := fmt.Fprintln(ctx.Out, strings.Join(parts, " "))
	return err
}
