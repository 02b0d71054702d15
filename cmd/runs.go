package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/funding-cli/internal/model"
	"github.com/sells-group/funding-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing and viewing recorded pipeline runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openRunStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openRunStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		phases, err := st.ListPhases(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				*model.Run
				Phases []model.RunPhase `json:"phases"`
			}{run, phases})
		}

		formatRunSummary(os.Stdout, run)
		formatPhases(os.Stdout, phases)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openRunStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		var cutoff time.Time
		if since > 0 {
			cutoff = time.Now().Add(-since)
		}
		formatRunStats(os.Stdout, computeRunStats(runs, cutoff))
		return nil
	},
}

func openRunStore(cmd *cobra.Command) (store.Store, error) {
	if err := validateConfig("runs", "runs"); err != nil {
		return nil, err
	}
	st, err := initStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, extracting, fetching, grouping, splitting, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "skip this many runs")

	runsShowCmd.Flags().Bool("json", false, "print the run and its phases as JSON")

	runsStatsCmd.Flags().Duration("since", 7*24*time.Hour, "time window for stats (0 = all runs)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics over a set of runs.
type runStats struct {
	Total         int
	Complete      int
	Failed        int
	Other         int
	Records       int
	FetchFailures int
	AvgDurSecs    float64
}

// computeRunStats aggregates runs created at or after cutoff.
func computeRunStats(runs []model.Run, cutoff time.Time) runStats {
	var s runStats
	var totalDur time.Duration
	var durCount int

	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		s.Total++
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			durCount++
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Other++
		}
		if r.Result != nil {
			s.Records += r.Result.Records
			s.FetchFailures += r.Result.FetchFailures
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

func formatRunStats(out io.Writer, s runStats) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendRow(table.Row{"Total runs", s.Total})
	t.AppendRow(table.Row{"Complete", s.Complete})
	t.AppendRow(table.Row{"Failed", s.Failed})
	t.AppendRow(table.Row{"In progress", s.Other})
	t.AppendRow(table.Row{"Records fetched", s.Records})
	t.AppendRow(table.Row{"Fetch failures", s.FetchFailures})
	if s.AvgDurSecs > 0 {
		t.AppendRow(table.Row{"Avg duration", fmt.Sprintf("%.1fs", s.AvgDurSecs)})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// formatRunsList writes a table of runs to out.
func formatRunsList(out io.Writer, runs []model.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"ID", "Input", "Status", "Records", "Clusters", "Created", "Duration"})

	for _, r := range runs {
		records, clusters := "", ""
		if r.Result != nil {
			records = fmt.Sprintf("%d/%d", r.Result.Records, r.Result.Identifiers)
			clusters = fmt.Sprint(r.Result.Clusters)
		}

		input := r.Params.FacetInput
		if len(input) > 30 {
			input = "..." + input[len(input)-27:]
		}

		t.AppendRow(table.Row{
			truncateID(r.ID),
			input,
			r.Status,
			records,
			clusters,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String(),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// formatRunSummary writes the headline numbers of one run.
func formatRunSummary(out io.Writer, run *model.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendRow(table.Row{"Run", run.ID})
	t.AppendRow(table.Row{"Status", run.Status})
	t.AppendRow(table.Row{"Input", run.Params.FacetInput})
	if res := run.Result; res != nil {
		t.AppendRow(table.Row{"Identifiers", res.Identifiers})
		t.AppendRow(table.Row{"Records", res.Records})
		t.AppendRow(table.Row{"Fetch failures", res.FetchFailures})
		t.AppendRow(table.Row{"Destinations", res.Destinations})
		t.AppendRow(table.Row{"Clusters", res.Clusters})
		if res.Error != "" {
			t.AppendRow(table.Row{"Error", res.Error})
		}
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// formatPhases writes one row per recorded stage.
func formatPhases(out io.Writer, phases []model.RunPhase) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Phase", "Status", "Duration", "Artifact", "Error"})
	for _, p := range phases {
		var dur, artifact, errMsg string
		if p.Result != nil {
			dur = (time.Duration(p.Result.Duration) * time.Millisecond).String()
			artifact = p.Result.Artifact
			errMsg = p.Result.Error
		}
		t.AppendRow(table.Row{p.Name, p.Status, dur, artifact, errMsg})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
