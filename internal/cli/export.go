package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"gpwsim/internal/models"
	"gpwsim/pkg/utils"
)

// addExportCommands adds commands that write runs and price series to files.
func addExportCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export data to files",
		Long: `Export a saved run's daily values or trades, or an instrument's closes,
to CSV or JSON. Without --output the data goes to standard output.
Exported series use the configured separator and can be imported again.`,
	}

	cmd.AddCommand(newExportHistoryCmd(app))
	cmd.AddCommand(newExportTradesCmd(app))
	cmd.AddCommand(newExportSeriesCmd(app))

	cmd.PersistentFlags().String("format", "csv", "output format (csv, json)")
	cmd.PersistentFlags().StringP("output", "o", "", "output file path (default: stdout)")

	rootCmd.AddCommand(cmd)
}

type historyRow struct {
	Date  string `csv:"date"`
	Value string `csv:"value"`
}

type tradeRow struct {
	Date       string `csv:"date"`
	Side       string `csv:"side"`
	Instrument string `csv:"instrument"`
	Shares     int    `csv:"shares"`
	Price      string `csv:"price"`
}

type closeRow struct {
	Date  string `csv:"date"`
	Close string `csv:"close"`
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// exportTarget opens the --output file, or the command's stdout.
func exportTarget(cmd *cobra.Command) (io.Writer, func() error, string, error) {
	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, "", nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to create file: %w", err)
	}
	return f, f.Close, path, nil
}

// writeExport writes rows as CSV with sep, or data as indented JSON.
func writeExport(cmd *cobra.Command, rows interface{}, data interface{}, sep rune) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	if format != "csv" && format != "json" {
		return "", fmt.Errorf("unknown format %q (want csv or json)", format)
	}

	w, closeFn, path, err := exportTarget(cmd)
	if err != nil {
		return "", err
	}

	if format == "json" {
		err = newOutput(w, true, false).JSON(data)
	} else {
		cw := csv.NewWriter(w)
		cw.Comma = sep
		err = gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(cw))
	}
	if cerr := closeFn(); err == nil {
		err = cerr
	}
	return path, err
}

func newExportHistoryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "history <run-id>",
		Short: "Export a saved run's daily portfolio values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.Store()
			if err != nil {
				return err
			}
			run, err := findRun(cmd, st, args[0])
			if err != nil {
				return err
			}

			rows := make([]*historyRow, len(run.History))
			for i, p := range run.History {
				rows[i] = &historyRow{Date: p.Date.Format(utils.DateFormat), Value: formatAmount(p.Value)}
			}
			path, err := writeExport(cmd, &rows, run.History, ',')
			if err != nil {
				return err
			}
			if path != "" {
				newCmdOutput(cmd, app).Success("✓ Exported %d days to %s", len(rows), path)
			}
			return nil
		},
	}
}

func newExportTradesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "trades <run-id>",
		Short: "Export a saved run's manual trades",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.Store()
			if err != nil {
				return err
			}
			run, err := findRun(cmd, st, args[0])
			if err != nil {
				return err
			}

			rows := make([]*tradeRow, len(run.Transactions))
			for i, tx := range run.Transactions {
				rows[i] = &tradeRow{
					Date:       tx.Date.Format(utils.DateFormat),
					Side:       string(tx.Side),
					Instrument: tx.Instrument,
					Shares:     tx.Shares,
					Price:      formatAmount(tx.Price),
				}
			}
			path, err := writeExport(cmd, &rows, run.Transactions, ',')
			if err != nil {
				return err
			}
			if path != "" {
				newCmdOutput(cmd, app).Success("✓ Exported %d trades to %s", len(rows), path)
			}
			return nil
		},
	}
}

func newExportSeriesCmd(app *App) *cobra.Command {
	var (
		source  string
		fromStr string
		toStr   string
	)

	cmd := &cobra.Command{
		Use:   "series <instrument>",
		Short: "Export an instrument's daily closes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := app.Provider(source)
			if err != nil {
				return err
			}
			series, err := resolveSeries(cmd.Context(), provider, args[0])
			if err != nil {
				return err
			}

			from, to := series.FirstDate(), series.LastDate()
			if fromStr != "" {
				if from, err = utils.ParseDate(fromStr); err != nil {
					return fmt.Errorf("invalid --from %q: %w", fromStr, err)
				}
			}
			if toStr != "" {
				if to, err = utils.ParseDate(toStr); err != nil {
					return fmt.Errorf("invalid --to %q: %w", toStr, err)
				}
			}

			quotes := series.Between(from, to)
			if quotes == nil {
				quotes = []models.Quote{}
			}
			layout := app.Config.Data.DateFormat
			if layout == "" {
				layout = utils.DateFormat
			}
			rows := make([]*closeRow, len(quotes))
			for i, q := range quotes {
				rows[i] = &closeRow{Date: q.Date.Format(layout), Close: formatAmount(q.Close)}
			}
			path, err := writeExport(cmd, &rows, quotes, app.Config.Separator())
			if err != nil {
				return err
			}
			if path != "" {
				newCmdOutput(cmd, app).Success("✓ Exported %d closes of %s to %s", len(rows), series.Name(), path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "auto", "data source: auto, csv or store")
	cmd.Flags().StringVar(&fromStr, "from", "", "first date (default: first quote)")
	cmd.Flags().StringVar(&toStr, "to", "", "last date (default: last quote)")
	return cmd
}
