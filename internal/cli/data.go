package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"gpwsim/internal/csvdata"
	"gpwsim/internal/logging"
	"gpwsim/internal/market"
	"gpwsim/pkg/utils"
)

const csvImportSync = "csv_import"

// addDataCommands adds price data commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Price data management",
		Long:  "Import daily closes from CSV files and inspect available instruments.",
	}

	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataListCmd(app))
	cmd.AddCommand(newDataQuoteCmd(app))

	rootCmd.AddCommand(cmd)
}

type importResult struct {
	Instrument string    `json:"instrument"`
	Quotes     int       `json:"quotes"`
	FirstDate  time.Time `json:"first_date"`
	LastDate   time.Time `json:"last_date"`
}

func newDataImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import [dir]",
		Short: "Import CSV files into the local store",
		Long: `Import every *.csv file of a directory (default: the configured data
directory) into the SQLite store. The file name is the instrument name,
with underscores read as spaces. Re-importing replaces existing closes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newCmdOutput(cmd, app)
			ctx := cmd.Context()

			loader := app.CSV()
			if len(args) == 1 {
				loader = csvdata.NewLoader(args[0], app.Config.Separator(), app.Config.Data.DateFormat)
			}

			series, err := market.LoadAll(ctx, loader)
			if err != nil {
				return err
			}
			if len(series) == 0 {
				output.Warning("No CSV files found")
				return nil
			}

			st, err := app.Store()
			if err != nil {
				return err
			}

			logger := logging.FromContext(ctx)
			results := make([]importResult, 0, len(series))
			for _, s := range series {
				err := utils.Retry(ctx, storeRetry(), func() error {
					return st.SaveSeries(ctx, s)
				})
				if err != nil {
					return fmt.Errorf("importing %s: %w", s.Name(), err)
				}
				// Report what the store now holds, including closes kept from
				// earlier imports.
				first, last, count, err := st.SeriesRange(ctx, s.Name())
				if err != nil {
					return fmt.Errorf("reading back %s: %w", s.Name(), err)
				}
				results = append(results, importResult{
					Instrument: s.Name(),
					Quotes:     count,
					FirstDate:  first,
					LastDate:   last,
				})
				l := logging.WithInstrument(logger, s.Name())
				l.Debug().Int("quotes", s.Len()).Int("stored", count).Msg("Series imported")
			}
			if err := st.SetLastSync(csvImportSync, time.Now()); err != nil {
				logger.Warn().Err(err).Msg("Failed to record import time")
			}
			logger.Info().Int("instruments", len(results)).Msg("CSV import finished")

			if output.IsJSON() {
				return output.JSON(results)
			}

			table := NewTable(output, "Instrument", "Quotes", "From", "To")
			for _, r := range results {
				table.AddRow(r.Instrument, strconv.Itoa(r.Quotes), r.FirstDate.Format(utils.DateFormat), r.LastDate.Format(utils.DateFormat))
			}
			table.Render()
			output.Success("✓ Imported %d instruments", len(results))
			return nil
		},
	}
}

type instrumentInfo struct {
	Instrument  string    `json:"instrument"`
	Quotes      int       `json:"quotes"`
	FirstDate   time.Time `json:"first_date"`
	LastDate    time.Time `json:"last_date"`
	LatestClose float64   `json:"latest_close"`
}

func newDataListCmd(app *App) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available instruments",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newCmdOutput(cmd, app)
			ctx := cmd.Context()

			provider, err := app.Provider(source)
			if err != nil {
				return err
			}
			series, err := market.LoadAll(ctx, provider)
			if err != nil {
				return err
			}

			infos := make([]instrumentInfo, 0, len(series))
			for _, s := range series {
				infos = append(infos, instrumentInfo{
					Instrument:  s.Name(),
					Quotes:      s.Len(),
					FirstDate:   s.FirstDate(),
					LastDate:    s.LastDate(),
					LatestClose: s.LatestPrice(),
				})
			}

			if output.IsJSON() {
				return output.JSON(infos)
			}
			if len(infos) == 0 {
				output.Warning("No instruments available. Put CSV files in %s or run 'gpwsim data import <dir>'", app.Config.Data.Dir)
				return nil
			}

			table := NewTable(output, "Instrument", "Quotes", "From", "To", "Last close")
			for _, info := range infos {
				table.AddRow(info.Instrument, strconv.Itoa(info.Quotes),
					info.FirstDate.Format(utils.DateFormat), info.LastDate.Format(utils.DateFormat),
					fmt.Sprintf("%.2f", info.LatestClose))
			}
			table.Render()

			if st, err := app.Store(); err == nil {
				if last := st.GetLastSync(csvImportSync); !last.IsZero() {
					output.Dim("Last import: %s", last.Format("2006-01-02 15:04"))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "auto", "data source: auto, csv or store")
	return cmd
}

type quoteInfo struct {
	Instrument string    `json:"instrument"`
	Date       time.Time `json:"date"`
	Price      float64   `json:"price"`
	Session    bool      `json:"session"`
	Weekend    bool      `json:"weekend"`
}

func newDataQuoteCmd(app *App) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "quote <instrument> <date>",
		Short: "Show the as-of closing price of an instrument",
		Long: `Show the closing price in effect on a date. Days without a session
carry the most recent earlier close forward.`,
		Example: `  gpwsim data quote "CD PROJEKT" 2024-01-06`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newCmdOutput(cmd, app)
			ctx := cmd.Context()

			date, err := utils.ParseDate(args[1])
			if err != nil {
				return fmt.Errorf("invalid date %q: %w", args[1], err)
			}
			provider, err := app.Provider(source)
			if err != nil {
				return err
			}
			series, err := provider.Series(ctx, args[0])
			if err != nil {
				return err
			}
			price, err := series.PriceAsOf(date)
			if err != nil {
				return err
			}

			info := quoteInfo{
				Instrument: series.Name(),
				Date:       date,
				Price:      price,
				Session:    series.HasQuoteOn(date),
				Weekend:    utils.IsWeekend(date),
			}
			if output.IsJSON() {
				return output.JSON(info)
			}

			output.Printf("%s  %s  %.2f\n", info.Instrument, date.Format(utils.DateFormat), price)
			switch {
			case info.Session:
				output.Success("Session day")
			case info.Weekend:
				output.Dim("Weekend: GPW closed, last close carried forward")
			default:
				output.Dim("No session: last close carried forward")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "auto", "data source: auto, csv or store")
	return cmd
}
