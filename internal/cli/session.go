package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
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

const sessionHelp = `Commands:
  list                          list instruments
  start <date>                  set the day of the first purchase
  date                          show the simulated day
  buy <instrument> <shares>     buy at today's close (the first buy starts the run)
  sell <instrument> <shares>    sell at today's price
  orders <instrument> <sl> <tp> set stop-loss / take-profit, "-" clears
  next [n]                      advance n trading days (default 1)
  auto [n]                      advance automatically, at most n days
  pause | resume | stop | wait  control automatic advance
  status                        show positions and total value
  chart [instrument]            chart portfolio value or an instrument
  history                       list recorded daily values
  metrics                       summarise the history
  save                          save the run to the store
  help                          show this help
  quit                          leave the session`

// session is one interactive simulation driven by text commands.
type session struct {
	app      *App
	output   *Output
	provider market.Provider
	logger   zerolog.Logger
	interval time.Duration

	runID  string
	saved  bool
	start  time.Time
	series map[string]*market.Series

	sim    *trading.Simulator
	runner *runner.Runner
	hub    *stream.Hub

	autoCancel context.CancelFunc
	autoDone   chan struct{}
}

func newSessionCmd(app *App) *cobra.Command {
	var (
		source   string
		interval time.Duration
		startStr string
	)

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start an interactive simulation",
		Long: `Read simulation commands from standard input, one per line. Type 'help'
inside the session for the list of commands. Instrument names may contain
spaces; numbers always come last.`,
		Example: `  gpwsim session --start 2024-01-02
  printf 'buy PKO BP 10\nauto\nwait\nstatus\n' | gpwsim session --start 2024-01-02`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			provider, err := app.Provider(source)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("interval") {
				interval = app.Config.Simulation.TickInterval
			}

			s := newSession(app, newCmdOutput(cmd, app), provider, interval)
			if startStr != "" {
				if s.start, err = utils.ParseDate(startStr); err != nil {
					return fmt.Errorf("invalid --start %q: %w", startStr, err)
				}
			}
			return s.loop(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&source, "source", "auto", "data source: auto, csv or store")
	cmd.Flags().DurationVar(&interval, "interval", 0, "auto-advance delay per day (default: simulation.tick_interval)")
	cmd.Flags().StringVar(&startStr, "start", "", "day of the first purchase (YYYY-MM-DD)")
	return cmd
}

func newSession(app *App, output *Output, provider market.Provider, interval time.Duration) *session {
	runID := uuid.New().String()
	logger := logging.WithRun(app.Logger, runID)

	s := &session{
		app:      app,
		output:   output,
		provider: provider,
		logger:   logger,
		interval: interval,
		runID:    runID,
		series:   make(map[string]*market.Series),
		sim:      trading.NewSimulator(trading.NewPortfolio(), trading.WithLogger(logger)),
		hub:      stream.NewHub(),
	}
	s.runner = runner.New(s.sim,
		runner.WithHub(s.hub),
		runner.WithInterval(interval),
		runner.WithLogger(logger),
	)
	s.hub.RegisterConsumer(stream.NewConsumerFunc(func(snap models.Snapshot) {
		printStep(s.output, snap)
	}))
	return s
}

// isInteractive reports whether r is a terminal.
func isInteractive(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func (s *session) loop(ctx context.Context, in io.Reader) error {
	interactive := isInteractive(in)
	if interactive {
		s.output.Bold("gpwsim %s: type 'help' for commands", Version)
	}

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			s.output.Printf("> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		quit, err := s.execute(ctx, line)
		if err != nil {
			s.output.Error("%s", describeError(err))
		}
		if quit {
			s.stopAuto()
			return nil
		}
		if ctx.Err() != nil {
			s.stopAuto()
			return nil
		}
	}
	s.waitAuto()
	return scanner.Err()
}

// execute runs one command line and reports whether the session should end.
func (s *session) execute(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	command, args := strings.ToLower(fields[0]), fields[1:]

	switch command {
	case "help", "?":
		s.output.Println(sessionHelp)
	case "quit", "exit":
		return true, nil
	case "list":
		return false, s.list(ctx)
	case "start":
		return false, s.setStart(args)
	case "date":
		s.showDate()
	case "buy":
		return false, s.buy(ctx, args)
	case "sell":
		return false, s.sell(args)
	case "orders":
		return false, s.orders(args)
	case "next":
		return false, s.next(args)
	case "auto":
		return false, s.auto(ctx, args)
	case "pause":
		s.runner.Pause()
		s.output.Info("Paused")
	case "resume":
		s.runner.Resume()
		s.output.Info("Resumed")
	case "stop":
		if !s.autoRunning() {
			s.output.Dim("Auto-advance is not running")
		}
		s.stopAuto()
	case "wait":
		s.waitAuto()
	case "status":
		printStatus(s.output, s.runner.Snapshot())
	case "chart":
		return false, s.chart(ctx, args)
	case "history":
		s.history()
	case "metrics":
		s.output.Lines(report.MetricsLines(trading.Summarize(s.currentHistory())))
	case "save":
		return false, s.save(ctx)
	default:
		return false, fmt.Errorf("unknown command %q (type 'help')", command)
	}
	return false, nil
}

// splitTrailing splits args into a name and the last n tokens.
func splitTrailing(args []string, n int) (string, []string, error) {
	if len(args) < n+1 {
		return "", nil, fmt.Errorf("missing arguments")
	}
	cut := len(args) - n
	return strings.Join(args[:cut], " "), args[cut:], nil
}

func parseShares(s string) (int, error) {
	shares, err := strconv.Atoi(s)
	if err != nil || shares <= 0 {
		return 0, errors.NewValidationError("shares", s, "must be a positive integer", errors.ErrInvalidQuantity)
	}
	return shares, nil
}

// parseLevel parses an order price; "-" clears the level.
func parseLevel(s string) (*float64, error) {
	if s == "-" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || v <= 0 {
		return nil, errors.NewValidationError("price", s, "must be a positive number or -", errors.ErrInvalidPrice)
	}
	return trading.Price(v), nil
}

func (s *session) lookup(ctx context.Context, name string) (*market.Series, error) {
	if series, ok := s.series[name]; ok {
		return series, nil
	}
	series, err := resolveSeries(ctx, s.provider, name)
	if err != nil {
		return nil, err
	}
	s.series[name] = series
	s.series[series.Name()] = series
	return series, nil
}

// heldName maps a typed name to the held instrument's name.
func (s *session) heldName(name string) string {
	if series, ok := s.series[name]; ok {
		return series.Name()
	}
	return strings.ReplaceAll(name, "_", " ")
}

func (s *session) list(ctx context.Context) error {
	names, err := s.provider.Instruments(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		s.output.Warning("No instruments available")
		return nil
	}
	s.output.Lines(names)
	return nil
}

func (s *session) setStart(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: start <YYYY-MM-DD>")
	}
	var state trading.State
	s.runner.Do(func(sim *trading.Simulator) error {
		state = sim.State()
		return nil
	})
	if state != trading.StateNotStarted {
		return errors.ErrAlreadyStarted
	}
	date, err := utils.ParseDate(args[0])
	if err != nil {
		return err
	}
	s.start = date
	s.output.Info("Start date: %s", date.Format(utils.DateFormat))
	if utils.IsWeekend(date) {
		s.output.Warning("That is a weekend: the first buy will be rejected")
	}
	return nil
}

func (s *session) showDate() {
	snap := s.runner.Snapshot()
	if snap.Date.IsZero() {
		s.output.Dim("Simulation not started")
		return
	}
	s.output.Printf("%s (%s, %s)\n", snap.Date.Format(utils.DateFormat), snap.Date.Weekday(), snap.State)
}

func (s *session) buy(ctx context.Context, args []string) error {
	name, rest, err := splitTrailing(args, 1)
	if err != nil {
		return fmt.Errorf("usage: buy <instrument> <shares>")
	}
	shares, err := parseShares(rest[0])
	if err != nil {
		return err
	}
	series, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}

	var tx models.Transaction
	err = s.runner.Do(func(sim *trading.Simulator) error {
		if sim.State() == trading.StateNotStarted {
			if s.start.IsZero() {
				return fmt.Errorf("set a start date first: start <YYYY-MM-DD>")
			}
			if err := sim.StartWithBuy(s.start, series, shares); err != nil {
				return err
			}
		} else if err := sim.Buy(series, shares); err != nil {
			return err
		}
		txs := sim.Transactions()
		tx = txs[len(txs)-1]
		return nil
	})
	if err != nil {
		return err
	}
	logging.LogTrade(s.logger, tx)
	s.output.Success("Bought %d %s at %.2f on %s", tx.Shares, tx.Instrument, tx.Price, tx.Date.Format(utils.DateFormat))
	return nil
}

func (s *session) sell(args []string) error {
	name, rest, err := splitTrailing(args, 1)
	if err != nil {
		return fmt.Errorf("usage: sell <instrument> <shares>")
	}
	shares, err := parseShares(rest[0])
	if err != nil {
		return err
	}

	var tx models.Transaction
	err = s.runner.Do(func(sim *trading.Simulator) error {
		held := name
		if !sim.Portfolio().Holds(held) {
			held = s.heldName(name)
		}
		if err := sim.Sell(held, shares); err != nil {
			return err
		}
		txs := sim.Transactions()
		tx = txs[len(txs)-1]
		return nil
	})
	if err != nil {
		return err
	}
	logging.LogTrade(s.logger, tx)
	s.output.Success("Sold %d %s at %.2f on %s", tx.Shares, tx.Instrument, tx.Price, tx.Date.Format(utils.DateFormat))
	return nil
}

func (s *session) orders(args []string) error {
	name, rest, err := splitTrailing(args, 2)
	if err != nil {
		return fmt.Errorf("usage: orders <instrument> <stop-loss|-> <take-profit|->")
	}
	stopLoss, err := parseLevel(rest[0])
	if err != nil {
		return err
	}
	takeProfit, err := parseLevel(rest[1])
	if err != nil {
		return err
	}

	err = s.runner.Do(func(sim *trading.Simulator) error {
		held := name
		if !sim.Portfolio().Holds(held) {
			held = s.heldName(name)
		}
		name = held
		return sim.SetOrders(held, stopLoss, takeProfit)
	})
	if err != nil {
		return err
	}
	s.output.Success("Orders for %s: stop-loss %s, take-profit %s", name,
		utils.FormatOptional(stopLoss), utils.FormatOptional(takeProfit))
	return nil
}

func parseCount(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid day count %q", args[0])
	}
	return n, nil
}

func (s *session) next(args []string) error {
	if s.autoRunning() {
		return fmt.Errorf("auto-advance is running: pause or stop it first")
	}
	n, err := parseCount(args, 1)
	if err != nil {
		return err
	}
	if s.runner.Snapshot().State == trading.StateNotStarted.String() {
		return errors.ErrNotStarted
	}
	for i := 0; i < n; i++ {
		snap, moved := s.runner.Step()
		if !moved {
			s.output.Dim("End of data: no more trading days")
			break
		}
		printStep(s.output, snap)
	}
	return nil
}

func (s *session) autoRunning() bool {
	if s.autoDone == nil {
		return false
	}
	select {
	case <-s.autoDone:
		return false
	default:
		return true
	}
}

func (s *session) auto(ctx context.Context, args []string) error {
	if s.autoRunning() {
		return fmt.Errorf("auto-advance is already running")
	}
	n, err := parseCount(args, s.app.Config.Simulation.MaxSteps)
	if err != nil {
		return err
	}
	if s.runner.Snapshot().State == trading.StateNotStarted.String() {
		return errors.ErrNotStarted
	}

	autoCtx, cancel := context.WithCancel(ctx)
	if err := s.hub.Start(autoCtx); err != nil {
		cancel()
		return err
	}
	done := make(chan struct{})
	s.autoCancel, s.autoDone = cancel, done
	s.output.Info("Auto-advance started (%s per day)", s.interval)

	go func() {
		defer close(done)
		defer cancel()
		steps, err := s.runner.Run(autoCtx, n)
		s.hub.Stop()
		logHubMetrics(s.logger, s.hub)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.output.Error("Auto-advance failed: %s", describeError(err))
			return
		}
		s.output.Info("Auto-advance finished after %d days", steps)
	}()
	return nil
}

// stopAuto cancels a running auto-advance and waits for it to finish.
func (s *session) stopAuto() {
	if s.autoCancel != nil {
		s.autoCancel()
	}
	s.runner.Resume()
	s.waitAuto()
}

func (s *session) waitAuto() {
	if s.autoDone != nil {
		<-s.autoDone
	}
}

func (s *session) currentHistory() []models.HistoryPoint {
	var history []models.HistoryPoint
	s.runner.Do(func(sim *trading.Simulator) error {
		history = sim.Portfolio().History()
		return nil
	})
	return history
}

func (s *session) history() {
	history := s.currentHistory()
	if len(history) == 0 {
		s.output.Dim("No history recorded")
		return
	}
	table := NewTable(s.output, "Date", "Value")
	for _, p := range history {
		table.AddRow(p.Date.Format(utils.DateFormat), utils.FormatCurrency(p.Value))
	}
	table.Render()
}

func (s *session) chart(ctx context.Context, args []string) error {
	width, height := s.app.Config.UI.ChartWidth, s.app.Config.UI.ChartHeight
	snap := s.runner.Snapshot()
	if len(args) == 0 {
		s.output.Println(report.EquityChart(s.currentHistory(), snap.Date, width, height))
		return nil
	}

	series, err := s.lookup(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	to := snap.Date
	if to.IsZero() {
		to = series.LastDate()
	}
	from := series.FirstDate()
	s.runner.Do(func(sim *trading.Simulator) error {
		if pos, ok := sim.Portfolio().Position(series.Name()); ok {
			if first, ok := pos.FirstBuyDate(); ok {
				from = first
			}
		}
		return nil
	})
	s.output.Println(report.InstrumentChart(series, from, to, width, height))
	return nil
}

// save stores the run; saving again replaces the earlier copy.
func (s *session) save(ctx context.Context) error {
	var run *store.Run
	s.runner.Do(func(sim *trading.Simulator) error {
		run = store.RunFromSimulation(sim.Portfolio().History(), sim.Transactions(), nil)
		return nil
	})
	run.Closures = s.runner.Closures()
	if len(run.History) == 0 {
		return fmt.Errorf("nothing to save: advance at least one day first")
	}

	st, err := s.app.Store()
	if err != nil {
		return err
	}
	if s.saved {
		if err := st.DeleteRun(ctx, s.runID); err != nil && !errors.Is(err, errors.ErrDataNotFound) {
			return err
		}
	}
	run.ID = s.runID
	if _, err := st.SaveRun(ctx, run); err != nil {
		return err
	}
	s.saved = true
	s.output.Success("✓ Run saved as %s", s.runID)
	return nil
}
