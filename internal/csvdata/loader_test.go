package csvdata

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gpwsim/internal/errors"
)

const stooqSample = `Data;Otwarcie;Najwyzszy;Najnizszy;Zamkniecie;Wolumen
2024-01-03;101;103;99;95,5;12000
2024-01-01;99;101;98;100;10000
2024-01-02;100;106;100;105;15000
`

func TestReadNormalizesHeaderAndSorts(t *testing.T) {
	s, err := Read("CD PROJEKT", strings.NewReader(stooqSample), ';', DefaultDateLayout)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if s.Name() != "CD PROJEKT" || s.Len() != 3 {
		t.Fatalf("series = %s (%d quotes)", s.Name(), s.Len())
	}
	if !s.FirstDate().Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("FirstDate = %v", s.FirstDate())
	}
	if s.LatestPrice() != 95.5 {
		t.Errorf("LatestPrice = %v, want 95.5 (comma decimal)", s.LatestPrice())
	}
}

func TestReadEnglishHeadersWithPadding(t *testing.T) {
	data := "\ufeff Date , Close \n20240105,10.5\n20240108,11\n"
	s, err := Read("X", strings.NewReader(data), ',', DefaultDateLayout)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if s.Len() != 2 || s.LatestPrice() != 11 {
		t.Errorf("quotes = %+v", s.Quotes())
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no rows", "Data;Zamkniecie\n"},
		{"bad date", "Data;Zamkniecie\n03/01/2024;10\n"},
		{"bad close", "Data;Zamkniecie\n2024-01-03;abc\n"},
		{"missing close column", "Data;Otwarcie\n2024-01-03;10\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Read("X", strings.NewReader(tt.data), ';', DefaultDateLayout); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoaderDirectory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("CD_PROJEKT.csv", stooqSample)
	write("PKO_BP.csv", "Data;Zamkniecie\n2024-01-02;40\n")
	write("notes.txt", "ignored")

	l := NewLoader(dir, 0, "")

	names, err := l.Instruments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "CD PROJEKT" || names[1] != "PKO BP" {
		t.Fatalf("Instruments = %v", names)
	}

	s, err := l.Series(ctx, "PKO BP")
	if err != nil {
		t.Fatal(err)
	}
	if s.LatestPrice() != 40 {
		t.Errorf("PKO BP latest = %v", s.LatestPrice())
	}

	if _, err := l.Series(ctx, "MISSING"); !errors.Is(err, errors.ErrInstrumentNotFound) {
		t.Errorf("expected ErrInstrumentNotFound, got %v", err)
	}
	if _, err := NewLoader(filepath.Join(dir, "nope"), ';', "").Instruments(ctx); !errors.Is(err, errors.ErrDataNotFound) {
		t.Errorf("expected ErrDataNotFound for a missing directory, got %v", err)
	}
}

func TestInstrumentName(t *testing.T) {
	if got := InstrumentName("/data/KGHM_POLSKA_MIEDZ.csv"); got != "KGHM POLSKA MIEDZ" {
		t.Errorf("InstrumentName = %q", got)
	}
}
