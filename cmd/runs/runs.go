// Package runs implements commands that inspect mirror run history.
package runs

import (
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/mirror/cmd/common"
	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/database"
)

const defaultLimit = 20

// Command returns the runs command and its subcommands.
func Command(deps *common.CommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect mirror run history",
	}
	cmd.AddCommand(listCommand(deps), showCommand(deps))
	return cmd
}

func listCommand(deps *common.CommandDeps) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepository(cmd, *deps, func(repo *database.RunRepository) error {
				runs, err := repo.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				RenderRuns(runs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultLimit, "maximum number of runs")
	return cmd
}

func showCommand(deps *common.CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, *deps, func(repo *database.RunRepository) error {
				run, err := repo.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				RenderRuns([]*database.Run{run})
				return nil
			})
		},
	}
}

func withRepository(cmd *cobra.Command, deps common.CommandDeps, fn func(*database.RunRepository) error) error {
	if err := deps.Validate(); err != nil {
		return err
	}
	if !deps.Config.Database.Enabled() {
		return common.ErrHistoryDisabled
	}

	db, err := database.NewPostgresConnection(cmd.Context(), deps.Config.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			deps.Logger.Warn("Failed to close database", logger.Error(closeErr))
		}
	}()

	return fn(database.NewRunRepository(db))
}

// RenderRuns prints runs as a table, newest first as returned by the store.
func RenderRuns(runs []*database.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "URL", "Status", "Entries", "Broken", "Unscrapable", "Unrecognized", "Started", "Took"})

	for _, run := range runs {
		took := "-"
		if run.FinishedAt != nil {
			took = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			run.ID,
			run.RootURL,
			run.Status,
			strconv.Itoa(run.Entries),
			strconv.Itoa(run.Broken),
			strconv.Itoa(run.Unscrapable),
			strconv.Itoa(run.Unrecognized),
			run.StartedAt.Format(time.DateTime),
			took,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "Total", strconv.Itoa(len(runs))})
	t.Render()
}
