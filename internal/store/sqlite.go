package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"gpwsim/internal/errors"
	"gpwsim/internal/market"
	"gpwsim/internal/models"
	"gpwsim/pkg/utils"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// IsBusy reports whether err comes from a database locked by another
// connection or process.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily closes imported from CSV files
	CREATE TABLE IF NOT EXISTS quotes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument TEXT NOT NULL,
		date TEXT NOT NULL,
		close REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(instrument, date)
	);

	-- Saved simulation runs
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		start_value REAL NOT NULL,
		final_value REAL NOT NULL,
		steps INTEGER NOT NULL,
		instruments TEXT
	);

	-- Portfolio value per simulated day
	CREATE TABLE IF NOT EXISTS run_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		date TEXT NOT NULL,
		value REAL NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	-- Manual buys and sells
	CREATE TABLE IF NOT EXISTS run_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		instrument TEXT NOT NULL,
		side TEXT NOT NULL,
		shares INTEGER NOT NULL,
		price REAL NOT NULL,
		date TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	-- Positions closed by stop-loss or take-profit
	CREATE TABLE IF NOT EXISTS run_closures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		instrument TEXT NOT NULL,
		date TEXT NOT NULL,
		reason TEXT NOT NULL,
		price REAL NOT NULL,
		shares INTEGER NOT NULL,
		average_cost REAL NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	-- Sync status table
	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_quotes_instrument_date ON quotes(instrument, date);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_run_history_run ON run_history(run_id, seq);
	CREATE INDEX IF NOT EXISTS idx_run_transactions_run ON run_transactions(run_id, seq);
	CREATE INDEX IF NOT EXISTS idx_run_closures_run ON run_closures(run_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatDate(t time.Time) string {
	return utils.DateOnly(t).Format(utils.DateFormat)
}

// ============================================================================
// Quote Methods
// ============================================================================

// SaveSeries stores all quotes of a series, replacing existing closes for
// the same dates.
func (s *SQLiteStore) SaveSeries(ctx context.Context, series *market.Series) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO quotes (instrument, date, close)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, q := range series.Quotes() {
		if _, err := stmt.ExecContext(ctx, series.Name(), formatDate(q.Date), q.Close); err != nil {
			return fmt.Errorf("failed to insert quote: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Series loads an instrument's full history.
func (s *SQLiteStore) Series(ctx context.Context, name string) (*market.Series, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, close FROM quotes
		WHERE instrument = ?
		ORDER BY date ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	var quotes []models.Quote
	for rows.Next() {
		var date string
		var q models.Quote
		if err := rows.Scan(&date, &q.Close); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		if q.Date, err = utils.ParseDate(date); err != nil {
			return nil, errors.NewDataError("quote", name, "stored date "+date, err)
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quotes: %w", err)
	}

	if len(quotes) == 0 {
		return nil, errors.Wrapf(errors.ErrInstrumentNotFound, "instrument %q", name)
	}
	return market.NewSeries(name, quotes)
}

// Instruments lists stored instruments, sorted.
func (s *SQLiteStore) Instruments(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT instrument FROM quotes ORDER BY instrument`)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SeriesRange reports the stored date range and quote count for an instrument.
func (s *SQLiteStore) SeriesRange(ctx context.Context, name string) (time.Time, time.Time, int, error) {
	var first, last sql.NullString
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(date), MAX(date), COUNT(*) FROM quotes WHERE instrument = ?
	`, name).Scan(&first, &last, &count)
	if err != nil {
		return time.Time{}, time.Time{}, 0, fmt.Errorf("failed to get series range: %w", err)
	}
	if count == 0 || !first.Valid || !last.Valid {
		return time.Time{}, time.Time{}, 0, errors.Wrapf(errors.ErrInstrumentNotFound, "instrument %q", name)
	}

	firstDate, err := utils.ParseDate(first.String)
	if err != nil {
		return time.Time{}, time.Time{}, 0, err
	}
	lastDate, err := utils.ParseDate(last.String)
	if err != nil {
		return time.Time{}, time.Time{}, 0, err
	}
	return firstDate, lastDate, count, nil
}

// ============================================================================
// Run Methods
// ============================================================================

// SaveRun persists a run and returns its ID. A new UUID is assigned when
// run.ID is empty.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) (string, error) {
	if len(run.History) == 0 {
		return "", errors.NewValidationError("history", 0, "run has no recorded days", nil)
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	first, last := run.History[0], run.History[len(run.History)-1]
	run.StartDate, run.EndDate = first.Date, last.Date
	run.StartValue, run.FinalValue = first.Value, last.Value
	run.Steps = len(run.History)

	instruments, err := json.Marshal(run.Instruments)
	if err != nil {
		return "", fmt.Errorf("failed to marshal instruments: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, start_date, end_date, start_value, final_value, steps, instruments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt, formatDate(run.StartDate), formatDate(run.EndDate),
		run.StartValue, run.FinalValue, run.Steps, string(instruments))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	histStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_history (run_id, seq, date, value) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer histStmt.Close()
	for i, p := range run.History {
		if _, err := histStmt.ExecContext(ctx, run.ID, i, formatDate(p.Date), p.Value); err != nil {
			return "", fmt.Errorf("failed to insert history point: %w", err)
		}
	}

	txStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_transactions (run_id, seq, instrument, side, shares, price, date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer txStmt.Close()
	for i, t := range run.Transactions {
		if _, err := txStmt.ExecContext(ctx, run.ID, i, t.Instrument, string(t.Side), t.Shares, t.Price, formatDate(t.Date)); err != nil {
			return "", fmt.Errorf("failed to insert transaction: %w", err)
		}
	}

	closeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_closures (run_id, seq, instrument, date, reason, price, shares, average_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer closeStmt.Close()
	for i, c := range run.Closures {
		if _, err := closeStmt.ExecContext(ctx, run.ID, i, c.Instrument, formatDate(c.Date), string(c.Reason), c.Price, c.Shares, c.AverageCost); err != nil {
			return "", fmt.Errorf("failed to insert closure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return run.ID, nil
}

// ListRuns lists saved runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	query := `
		SELECT id, created_at, start_date, end_date, start_value, final_value, steps, instruments
		FROM runs WHERE 1=1
	`
	args := []interface{}{}

	if filter.Instrument != "" {
		// instruments is a JSON array of quoted names
		query += " AND instruments LIKE ?"
		args = append(args, "%\""+strings.ReplaceAll(filter.Instrument, "%", "")+"\"%")
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		r, err := scanRunSummary(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRunSummary(row rowScanner) (*RunSummary, error) {
	var r RunSummary
	var start, end string
	var instruments sql.NullString
	if err := row.Scan(&r.ID, &r.CreatedAt, &start, &end, &r.StartValue, &r.FinalValue, &r.Steps, &instruments); err != nil {
		return nil, err
	}

	var err error
	if r.StartDate, err = utils.ParseDate(start); err != nil {
		return nil, fmt.Errorf("failed to parse run start date: %w", err)
	}
	if r.EndDate, err = utils.ParseDate(end); err != nil {
		return nil, fmt.Errorf("failed to parse run end date: %w", err)
	}
	if instruments.Valid && instruments.String != "" {
		json.Unmarshal([]byte(instruments.String), &r.Instruments)
	}
	return &r, nil
}

// GetRun retrieves a run with its history, transactions and closures.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, start_date, end_date, start_value, final_value, steps, instruments
		FROM runs WHERE id = ?
	`, id)
	summary, err := scanRunSummary(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrDataNotFound, "run %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run := &Run{RunSummary: *summary}
	if run.History, err = s.runHistory(ctx, id); err != nil {
		return nil, err
	}
	if run.Transactions, err = s.runTransactions(ctx, id); err != nil {
		return nil, err
	}
	if run.Closures, err = s.runClosures(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) runHistory(ctx context.Context, id string) ([]models.HistoryPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, value FROM run_history WHERE run_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	var history []models.HistoryPoint
	for rows.Next() {
		var date string
		var p models.HistoryPoint
		if err := rows.Scan(&date, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan history point: %w", err)
		}
		if p.Date, err = utils.ParseDate(date); err != nil {
			return nil, fmt.Errorf("failed to parse history date: %w", err)
		}
		history = append(history, p)
	}
	return history, rows.Err()
}

func (s *SQLiteStore) runTransactions(ctx context.Context, id string) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument, side, shares, price, date FROM run_transactions WHERE run_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var side, date string
		if err := rows.Scan(&t.Instrument, &side, &t.Shares, &t.Price, &date); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Side = models.OrderSide(side)
		if t.Date, err = utils.ParseDate(date); err != nil {
			return nil, fmt.Errorf("failed to parse transaction date: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) runClosures(ctx context.Context, id string) ([]models.ClosureEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument, date, reason, price, shares, average_cost FROM run_closures WHERE run_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run closures: %w", err)
	}
	defer rows.Close()

	var out []models.ClosureEvent
	for rows.Next() {
		var c models.ClosureEvent
		var date, reason string
		if err := rows.Scan(&c.Instrument, &date, &reason, &c.Price, &c.Shares, &c.AverageCost); err != nil {
			return nil, fmt.Errorf("failed to scan closure: %w", err)
		}
		c.Reason = models.CloseReason(reason)
		if c.Date, err = utils.ParseDate(date); err != nil {
			return nil, fmt.Errorf("failed to parse closure date: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its child rows.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrDataNotFound, "run %s", id)
	}
	return nil
}

// RunFromSimulation builds a Run from a finished simulation's records.
func RunFromSimulation(history []models.HistoryPoint, txs []models.Transaction, closures []models.ClosureEvent) *Run {
	seen := make(map[string]bool)
	var names []string
	for _, t := range txs {
		if !seen[t.Instrument] {
			seen[t.Instrument] = true
			names = append(names, t.Instrument)
		}
	}
	sort.Strings(names)

	return &Run{
		RunSummary:   RunSummary{Instruments: names},
		History:      history,
		Transactions: txs,
		Closures:     closures,
	}
}

// ============================================================================
// Sync Methods
// ============================================================================

// GetLastSync returns the last sync time for a data type.
func (s *SQLiteStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[dataType]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastSync time.Time
	err := s.db.QueryRow(`
		SELECT last_sync FROM sync_status WHERE data_type = ?
	`, dataType).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[dataType] = lastSync
	s.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a data type.
func (s *SQLiteStore) SetLastSync(dataType string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, dataType, t, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()

	return nil
}
