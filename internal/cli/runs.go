package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gpwsim/internal/report"
	"gpwsim/internal/store"
	"gpwsim/internal/trading"
	"gpwsim/pkg/utils"
)

// addRunsCommands adds commands for saved simulation runs.
func addRunsCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Saved simulation runs",
		Long:  "List, inspect and delete runs saved with 'run --save' or the session 'save' command.",
	}

	cmd.AddCommand(newRunsListCmd(app))
	cmd.AddCommand(newRunsShowCmd(app))
	cmd.AddCommand(newRunsDeleteCmd(app))

	rootCmd.AddCommand(cmd)
}

func newRunsListCmd(app *App) *cobra.Command {
	var (
		limit      int
		instrument string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newCmdOutput(cmd, app)
			st, err := app.Store()
			if err != nil {
				return err
			}
			runs, err := st.ListRuns(cmd.Context(), store.RunFilter{
				Instrument: instrument,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				if runs == nil {
					runs = []store.RunSummary{}
				}
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Dim("No saved runs")
				return nil
			}

			table := NewTable(output, "ID", "Saved", "From", "To", "Days", "Start", "Final", "Instruments")
			for _, r := range runs {
				table.AddRow(
					shortID(r.ID),
					r.CreatedAt.Format("2006-01-02 15:04"),
					r.StartDate.Format(utils.DateFormat),
					r.EndDate.Format(utils.DateFormat),
					strconv.Itoa(r.Steps),
					utils.FormatCurrency(r.StartValue),
					utils.FormatCurrency(r.FinalValue),
					strings.Join(r.Instruments, ", "),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().StringVar(&instrument, "instrument", "", "only runs that traded this instrument")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// findRun accepts a full run ID or a unique prefix as shown by 'runs list'.
func findRun(cmd *cobra.Command, st store.DataStore, id string) (*store.Run, error) {
	run, err := st.GetRun(cmd.Context(), id)
	if err == nil || len(id) >= 36 {
		return run, err
	}
	runs, listErr := st.ListRuns(cmd.Context(), store.RunFilter{})
	if listErr != nil {
		return nil, listErr
	}
	var match string
	for _, r := range runs {
		if strings.HasPrefix(r.ID, id) {
			if match != "" {
				return nil, err
			}
			match = r.ID
		}
	}
	if match == "" {
		return nil, err
	}
	return st.GetRun(cmd.Context(), match)
}

func newRunsShowCmd(app *App) *cobra.Command {
	var chart bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newCmdOutput(cmd, app)
			st, err := app.Store()
			if err != nil {
				return err
			}
			run, err := findRun(cmd, st, args[0])
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(run)
			}

			output.Bold("Run %s", run.ID)
			output.Printf("Saved:       %s\n", run.CreatedAt.Format("2006-01-02 15:04"))
			output.Printf("Instruments: %s\n", strings.Join(run.Instruments, ", "))
			output.Println()
			output.Lines(report.MetricsLines(trading.Summarize(run.History)))

			if len(run.Transactions) > 0 {
				output.Println()
				output.Bold("Transactions")
				table := NewTable(output, "Date", "Side", "Instrument", "Shares", "Price")
				for _, tx := range run.Transactions {
					table.AddRow(tx.Date.Format(utils.DateFormat), string(tx.Side), tx.Instrument,
						strconv.Itoa(tx.Shares), strconv.FormatFloat(tx.Price, 'f', 2, 64))
				}
				table.Render()
			}
			if len(run.Closures) > 0 {
				output.Println()
				output.Bold("Automatic closures")
				for _, ev := range run.Closures {
					output.Warning("%s", report.ClosureLine(ev))
				}
			}
			if chart {
				output.Println()
				output.Println(report.EquityChart(run.History, run.EndDate, app.Config.UI.ChartWidth, app.Config.UI.ChartHeight))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&chart, "chart", false, "print an ASCII chart of the portfolio value")
	return cmd
}

func newRunsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newCmdOutput(cmd, app)
			st, err := app.Store()
			if err != nil {
				return err
			}
			run, err := findRun(cmd, st, args[0])
			if err != nil {
				return err
			}
			if err := st.DeleteRun(cmd.Context(), run.ID); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": run.ID})
			}
			output.Success("✓ Deleted run %s", run.ID)
			return nil
		},
	}
}
