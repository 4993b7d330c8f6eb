// Package csvdata reads daily close price series from CSV files, one file
// per instrument, as exported by stooq.pl and similar GPW data sources.
package csvdata

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"gpwsim/internal/errors"
	"gpwsim/internal/market"
	"gpwsim/internal/models"
)

// DefaultDateLayout is the layout of the date column.
const DefaultDateLayout = "2006-01-02"

// headerAliases maps normalized source column names onto the fields we read.
var headerAliases = map[string]string{
	"data":       "date",
	"zamkniecie": "close",
	"zamknięcie": "close",
}

// quoteRow is one CSV record. Unknown columns (open, high, volume...) are ignored.
type quoteRow struct {
	Date  string `csv:"date"`
	Close string `csv:"close"`
}

// Loader serves series from a directory of CSV files. It implements
// market.Provider.
type Loader struct {
	dir        string
	separator  rune
	dateLayout string
}

// NewLoader creates a loader over dir.
func NewLoader(dir string, separator rune, dateLayout string) *Loader {
	if separator == 0 {
		separator = ';'
	}
	if dateLayout == "" {
		dateLayout = DefaultDateLayout
	}
	return &Loader{dir: dir, separator: separator, dateLayout: dateLayout}
}

// InstrumentName derives the instrument name from a file name:
// the extension is dropped and underscores become spaces.
func InstrumentName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(base, "_", " ")
}

// files maps instrument names to CSV paths.
func (l *Loader) files() (map[string]string, error) {
	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		return nil, errors.NewDataError("csv", l.dir, "data directory does not exist", errors.ErrDataNotFound)
	}
	if err != nil {
		return nil, errors.NewDataError("csv", l.dir, "reading data directory", err)
	}
	out := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		out[InstrumentName(e.Name())] = filepath.Join(l.dir, e.Name())
	}
	return out, nil
}

// Instruments lists the instruments available in the directory, sorted.
func (l *Loader) Instruments(ctx context.Context) ([]string, error) {
	files, err := l.files()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Series loads one instrument's file.
func (l *Loader) Series(ctx context.Context, name string) (*market.Series, error) {
	files, err := l.files()
	if err != nil {
		return nil, err
	}
	path, ok := files[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrInstrumentNotFound, "instrument %q in %s", name, l.dir)
	}
	return l.ReadFile(name, path)
}

// ReadFile parses a CSV file into a series.
func (l *Loader) ReadFile(name, path string) (*market.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewDataError("csv", name, "opening file", err)
	}
	defer f.Close()

	return Read(name, f, l.separator, l.dateLayout)
}

// Read parses CSV data into a series. Header names are trimmed and
// lowercased before matching, so " Data;Zamkniecie " is accepted.
func Read(name string, r io.Reader, separator rune, dateLayout string) (*market.Series, error) {
	cr := csv.NewReader(r)
	cr.Comma = separator
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows []quoteRow
	if err := gocsv.UnmarshalCSV(&normalizingReader{r: cr}, &rows); err != nil {
		return nil, errors.NewDataError("csv", name, "parsing", err)
	}

	quotes := make([]models.Quote, 0, len(rows))
	for i, row := range rows {
		q, err := parseRow(row, separator, dateLayout)
		if err != nil {
			return nil, errors.NewDataError("csv", name, "row "+strconv.Itoa(i+2), err)
		}
		quotes = append(quotes, q)
	}

	return market.NewSeries(name, quotes)
}

func parseRow(row quoteRow, separator rune, dateLayout string) (models.Quote, error) {
	dateStr := strings.TrimSpace(row.Date)
	if dateStr == "" {
		return models.Quote{}, errors.NewValidationError("date", row.Date, "missing", nil)
	}
	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		// stooq raw exports use YYYYMMDD
		if alt, altErr := time.Parse("20060102", dateStr); altErr == nil {
			date = alt
		} else {
			return models.Quote{}, errors.NewValidationError("date", row.Date, err.Error(), nil)
		}
	}

	closeStr := strings.TrimSpace(row.Close)
	if closeStr == "" {
		return models.Quote{}, errors.NewValidationError("close", row.Close, "missing", nil)
	}
	if separator != ',' {
		closeStr = strings.Replace(closeStr, ",", ".", 1)
	}
	closePrice, err := strconv.ParseFloat(closeStr, 64)
	if err != nil {
		return models.Quote{}, errors.NewValidationError("close", row.Close, err.Error(), nil)
	}

	return models.Quote{Date: date, Close: closePrice}, nil
}

// normalizingReader rewrites the header row before gocsv maps columns.
type normalizingReader struct {
	r          *csv.Reader
	headerDone bool
}

func (n *normalizingReader) Read() ([]string, error) {
	rec, err := n.r.Read()
	if err != nil {
		return nil, err
	}
	if !n.headerDone {
		n.headerDone = true
		rec = normalizeHeader(rec)
	}
	return rec, nil
}

func (n *normalizingReader) ReadAll() ([][]string, error) {
	var out [][]string
	for {
		rec, err := n.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		h = strings.ToLower(strings.TrimSpace(h))
		if alias, ok := headerAliases[h]; ok {
			h = alias
		}
		out[i] = h
	}
	return out
}
