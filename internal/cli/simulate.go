package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gpwsim/internal/errors"
	"gpwsim/internal/logging"
	"gpwsim/internal/market"
	"gpwsim/internal/models"
	"gpwsim/internal/report"
	"gpwsim/internal/runner"
	"gpwsim/internal/store"
	"gpwsim/internal/stream"
	"gpwsim/internal/trading"
	"gpwsim/pkg/utils"
)

// addSimulationCommands adds the batch and interactive simulation commands.
func addSimulationCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newSessionCmd(app))
}

// splitSpec splits "NAME:VALUE" at the last colon, so names may contain
// spaces or colons.
func splitSpec(spec string) (string, string, error) {
	i := strings.LastIndex(spec, ":")
	if i <= 0 || i == len(spec)-1 {
		return "", "", fmt.Errorf("invalid spec %q (want NAME:VALUE)", spec)
	}
	return strings.TrimSpace(spec[:i]), strings.TrimSpace(spec[i+1:]), nil
}

func parseShareSpec(spec string) (string, int, error) {
	name, value, err := splitSpec(spec)
	if err != nil {
		return "", 0, err
	}
	shares, err := strconv.Atoi(value)
	if err != nil || shares <= 0 {
		return "", 0, fmt.Errorf("invalid share count in %q", spec)
	}
	return name, shares, nil
}

func parsePriceSpec(spec string) (string, float64, error) {
	name, value, err := splitSpec(spec)
	if err != nil {
		return "", 0, err
	}
	price, err := strconv.ParseFloat(strings.Replace(value, ",", ".", 1), 64)
	if err != nil || price <= 0 {
		return "", 0, fmt.Errorf("invalid price in %q", spec)
	}
	return name, price, nil
}

// describeError turns simulator errors into user-facing messages.
func describeError(err error) string {
	switch {
	case errors.Is(err, errors.ErrMarketClosed):
		return "GPW is closed (Saturday or Sunday)"
	case errors.Is(err, errors.ErrNoSession):
		return "No session for this instrument on that day"
	case errors.Is(err, errors.ErrNoOpenPosition):
		return "You do not hold this instrument"
	case errors.Is(err, errors.ErrInsufficientShares):
		return "Not enough shares to sell"
	case errors.Is(err, errors.ErrNoPriorQuote):
		return "No price data before that date"
	case errors.Is(err, errors.ErrAlreadyStarted):
		return "Simulation already started"
	case errors.Is(err, errors.ErrNotStarted):
		return "Simulation not started: buy something first"
	}
	return err.Error()
}

// orderSpec collects stop-loss and take-profit levels per instrument.
type orderSpec struct {
	stopLoss   *float64
	takeProfit *float64
}

type runResult struct {
	RunID        string                 `json:"run_id"`
	Saved        bool                   `json:"saved"`
	Steps        int                    `json:"steps"`
	Snapshot     models.Snapshot        `json:"snapshot"`
	History      []models.HistoryPoint  `json:"history"`
	Transactions []models.Transaction   `json:"transactions"`
	Closures     []models.ClosureEvent  `json:"closures"`
	Metrics      trading.HistoryMetrics `json:"metrics"`
}

func newRunCmd(app *App) *cobra.Command {
	var (
		startStr string
		buys     []string
		stops    []string
		takes    []string
		days     int
		interval time.Duration
		chart    bool
		save     bool
		source   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation non-interactively",
		Long: `Buy the given instruments at the session close of the start date, set
orders, then advance one trading day at a time until the data runs out,
the day limit is reached, or the command is interrupted.`,
		Example: `  gpwsim run --start 2024-01-02 --buy "CD PROJEKT:10" --stop "CD PROJEKT:95" --chart
  gpwsim run --start 2024-01-02 --buy PKO_BP:100 --buy KGHM:5 --days 20 --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := newCmdOutput(cmd, app)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if len(buys) == 0 {
				return fmt.Errorf("at least one --buy NAME:SHARES is required")
			}
			start, err := utils.ParseDate(startStr)
			if err != nil {
				return fmt.Errorf("invalid --start %q: %w", startStr, err)
			}
			orders, err := collectOrders(stops, takes)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = app.Config.Simulation.MaxSteps
			}

			provider, err := app.Provider(source)
			if err != nil {
				return err
			}

			runID := uuid.New().String()
			logger := logging.WithRun(logging.FromContext(ctx), runID)
			sim := trading.NewSimulator(trading.NewPortfolio(), trading.WithLogger(logger))

			names, err := openPositions(ctx, sim, provider, start, buys, logger)
			if err != nil {
				return err
			}
			for name, o := range orders {
				if resolved, ok := names[name]; ok {
					name = resolved
				}
				if err := sim.SetOrders(name, o.stopLoss, o.takeProfit); err != nil {
					return fmt.Errorf("setting orders for %s: %s", name, describeError(err))
				}
			}

			hub := stream.NewHub()
			if err := hub.Start(ctx); err != nil {
				return err
			}
			if !output.IsJSON() {
				hub.RegisterConsumer(stream.NewConsumerFunc(func(snap models.Snapshot) {
					printStep(output, snap)
				}))
			}

			r := runner.New(sim,
				runner.WithHub(hub),
				runner.WithInterval(interval),
				runner.WithLogger(logger),
			)
			steps, runErr := r.Run(ctx, days)
			hub.Stop()
			logHubMetrics(logger, hub)
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}

			history := sim.Portfolio().History()
			result := runResult{
				RunID:        runID,
				Steps:        steps,
				Snapshot:     sim.Snapshot(),
				History:      history,
				Transactions: sim.Transactions(),
				Closures:     r.Closures(),
				Metrics:      trading.Summarize(history),
			}

			if save {
				if len(history) == 0 {
					output.Warning("Nothing to save: no trading day was simulated")
				} else {
					st, err := app.Store()
					if err != nil {
						return err
					}
					run := store.RunFromSimulation(history, result.Transactions, result.Closures)
					run.ID = runID
					if _, err := st.SaveRun(ctx, run); err != nil {
						return err
					}
					result.Saved = true
					logger.Info().Msg("Run saved")
				}
			}

			if output.IsJSON() {
				return output.JSON(result)
			}

			output.Println()
			printStatus(output, result.Snapshot)
			output.Println()
			output.Bold("Summary")
			output.Lines(report.MetricsLines(result.Metrics))
			if chart {
				output.Println()
				output.Println(report.EquityChart(history, result.Snapshot.Date, app.Config.UI.ChartWidth, app.Config.UI.ChartHeight))
			}
			if result.Saved {
				output.Success("✓ Run saved as %s", runID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&startStr, "start", "", "start date (YYYY-MM-DD), must be a session day")
	cmd.Flags().StringArrayVar(&buys, "buy", nil, "buy NAME:SHARES on the start date (repeatable)")
	cmd.Flags().StringArrayVar(&stops, "stop", nil, "stop-loss NAME:PRICE (repeatable)")
	cmd.Flags().StringArrayVar(&takes, "take", nil, "take-profit NAME:PRICE (repeatable)")
	cmd.Flags().IntVar(&days, "days", 0, "maximum trading days to simulate (0 = until the data runs out)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "wall-clock delay between days, e.g. 500ms")
	cmd.Flags().BoolVar(&chart, "chart", false, "print an ASCII chart of the portfolio value")
	cmd.Flags().BoolVar(&save, "save", false, "save the run to the local store")
	cmd.Flags().StringVar(&source, "source", "auto", "data source: auto, csv or store")
	cmd.MarkFlagRequired("start")

	return cmd
}

func collectOrders(stops, takes []string) (map[string]*orderSpec, error) {
	orders := make(map[string]*orderSpec)
	get := func(name string) *orderSpec {
		if orders[name] == nil {
			orders[name] = &orderSpec{}
		}
		return orders[name]
	}
	for _, spec := range stops {
		name, price, err := parsePriceSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("--stop: %w", err)
		}
		get(name).stopLoss = trading.Price(price)
	}
	for _, spec := range takes {
		name, price, err := parsePriceSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("--take: %w", err)
		}
		get(name).takeProfit = trading.Price(price)
	}
	return orders, nil
}

// openPositions starts the simulation with the first buy and adds the rest
// on the same day. It maps each name as given to the instrument's name.
func openPositions(ctx context.Context, sim *trading.Simulator, provider market.Provider, start time.Time, buys []string, logger zerolog.Logger) (map[string]string, error) {
	names := make(map[string]string, len(buys))
	for i, spec := range buys {
		name, shares, err := parseShareSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("--buy: %w", err)
		}
		series, err := resolveSeries(ctx, provider, name)
		if err != nil {
			return nil, err
		}
		names[name] = series.Name()
		if i == 0 {
			err = sim.StartWithBuy(start, series, shares)
		} else {
			err = sim.Buy(series, shares)
		}
		if err != nil {
			return nil, fmt.Errorf("buying %s on %s: %s", series.Name(), start.Format(utils.DateFormat), describeError(err))
		}
		txs := sim.Transactions()
		logging.LogTrade(logger, txs[len(txs)-1])
	}
	return names, nil
}

// resolveSeries accepts the instrument name as listed or its file-name form
// with underscores.
func resolveSeries(ctx context.Context, provider market.Provider, name string) (*market.Series, error) {
	series, err := provider.Series(ctx, name)
	if errors.Is(err, errors.ErrInstrumentNotFound) && strings.Contains(name, "_") {
		series, err = provider.Series(ctx, strings.ReplaceAll(name, "_", " "))
	}
	return series, err
}

func printStep(output *Output, snap models.Snapshot) {
	output.Printf("%s  %s  %s\n",
		snap.Date.Format(utils.DateFormat),
		utils.FormatCurrency(snap.Value),
		output.DimText(fmt.Sprintf("(%d positions)", len(snap.Positions))))
	for _, ev := range snap.Closures {
		output.Warning("  %s", report.ClosureLine(ev))
	}
}

func printStatus(output *Output, snap models.Snapshot) {
	if snap.Date.IsZero() {
		output.Dim("Simulation not started")
		return
	}
	output.Bold("Portfolio on %s (%s)", snap.Date.Format(utils.DateFormat), snap.State)
	if len(snap.Positions) == 0 {
		output.Dim("No open positions")
	} else {
		table := NewTable(output, report.PositionHeaders...)
		for _, v := range snap.Positions {
			row := report.PositionRow(v)
			if v.Priced {
				row[7] = output.FormatPnL(v.PnL)
			}
			table.AddRow(row...)
		}
		table.Render()
	}
	output.Printf("Total: %s\n", output.BoldText(utils.FormatCurrency(snap.Value)))
}

// logHubMetrics records snapshot delivery counters once a hub has stopped.
func logHubMetrics(logger zerolog.Logger, hub *stream.Hub) {
	m := hub.GetMetrics()
	event := logger.Debug()
	if m.Dropped > 0 {
		event = logger.Warn()
	}
	event.
		Uint64("received", m.Received).
		Uint64("delivered", m.Delivered).
		Uint64("dropped", m.Dropped).
		Msg("Snapshot stream closed")
}
