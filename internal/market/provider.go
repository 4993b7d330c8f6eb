package market

import (
	"context"
	"sort"

	"gpwsim/internal/errors"
	"gpwsim/internal/performance"
)

const loadWorkers = 4

// Provider supplies instrument series to the simulator and the CLI.
// Implementations include the CSV loader, the SQLite store and MemoryProvider.
type Provider interface {
	Series(ctx context.Context, name string) (*Series, error)
	Instruments(ctx context.Context) ([]string, error)
}

// MemoryProvider serves series held in memory. Tests use it to substitute
// synthetic data for file-backed sources.
type MemoryProvider struct {
	series map[string]*Series
}

// NewMemoryProvider creates a provider over the given series.
func NewMemoryProvider(series ...*Series) *MemoryProvider {
	p := &MemoryProvider{series: make(map[string]*Series, len(series))}
	for _, s := range series {
		p.series[s.Name()] = s
	}
	return p
}

// Add registers or replaces a series.
func (p *MemoryProvider) Add(s *Series) {
	p.series[s.Name()] = s
}

// Series returns the named series.
func (p *MemoryProvider) Series(ctx context.Context, name string) (*Series, error) {
	s, ok := p.series[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrInstrumentNotFound, "instrument %q", name)
	}
	return s, nil
}

// Instruments returns all instrument names, sorted.
func (p *MemoryProvider) Instruments(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(p.series))
	for name := range p.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// LoadAll resolves every instrument of a provider, reading up to
// loadWorkers instruments concurrently. Results follow Instruments order.
func LoadAll(ctx context.Context, p Provider) ([]*Series, error) {
	names, err := p.Instruments(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing instruments")
	}
	return performance.Map(ctx, loadWorkers, names, p.Series)
}

// ChainProvider consults several providers in order. A provider that does
// not know an instrument, or has no data at all, is skipped.
type ChainProvider struct {
	providers []Provider
}

// NewChainProvider creates a provider that tries each of providers in turn.
func NewChainProvider(providers ...Provider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

func skippable(err error) bool {
	return errors.Is(err, errors.ErrInstrumentNotFound) || errors.Is(err, errors.ErrDataNotFound)
}

// Series returns the series from the first provider that has it.
func (c *ChainProvider) Series(ctx context.Context, name string) (*Series, error) {
	for _, p := range c.providers {
		s, err := p.Series(ctx, name)
		if err == nil {
			return s, nil
		}
		if !skippable(err) {
			return nil, err
		}
	}
	return nil, errors.Wrapf(errors.ErrInstrumentNotFound, "instrument %q", name)
}

// Instruments returns the sorted union of all providers' instruments.
func (c *ChainProvider) Instruments(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, p := range c.providers {
		list, err := p.Instruments(ctx)
		if err != nil {
			if skippable(err) {
				continue
			}
			return nil, err
		}
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
