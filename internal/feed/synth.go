package feed

import (
	"context"
	"math/rand"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// SynthConfig controls the synthetic bar generator.
type SynthConfig struct {
	Symbol     string
	Seed       int64
	BasePrice  decimal.Decimal
	Volatility decimal.Decimal // per-bar drift magnitude, e.g. 0.01
	Volume     decimal.Decimal
	IntervalMs int64
	StartTs    int64
	Count      int // 0 means unbounded
}

// Synth produces a deterministic random-walk bar stream. The same seed
// always yields the same sequence, which keeps paper sessions
// reproducible.
type Synth struct {
	cfg     SynthConfig
	rng     *rand.Rand
	price   decimal.Decimal
	ts      int64
	emitted int
}

// NewSynth validates the config and creates the generator.
func NewSynth(cfg SynthConfig) (*Synth, error) {
	if cfg.Symbol == "" {
		return nil, errors.New("synth symbol is empty")
	}
	if cfg.BasePrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("synth base price must be positive")
	}
	if cfg.Volatility.IsNegative() {
		return nil, errors.New("synth volatility must not be negative")
	}
	if cfg.IntervalMs <= 0 {
		cfg.IntervalMs = 60_000
	}
	if cfg.Volume.LessThanOrEqual(decimal.Zero) {
		cfg.Volume = decimal.NewFromInt(1)
	}
	return &Synth{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		price: cfg.BasePrice,
		ts:    cfg.StartTs,
	}, nil
}

// Next produces the next bar in the walk.
func (s *Synth) Next(ctx context.Context) (schema.Bar, error) {
	select {
	case <-ctx.Done():
		return schema.Bar{}, ctx.Err()
	default:
	}
	if s.cfg.Count > 0 && s.emitted >= s.cfg.Count {
		return schema.Bar{}, ErrExhausted
	}

	open := s.price
	drift := decimal.NewFromFloat(s.rng.Float64()*2 - 1).Mul(s.cfg.Volatility)
	closePx := open.Mul(decimal.NewFromInt(1).Add(drift))
	if closePx.LessThanOrEqual(decimal.Zero) {
		closePx = open
	}
	high := decimal.Max(open, closePx)
	low := decimal.Min(open, closePx)

	s.price = closePx
	s.ts += s.cfg.IntervalMs
	s.emitted++

	return schema.Bar{
		Symbol: s.cfg.Symbol,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePx,
		Volume: s.cfg.Volume,
		Ts:     s.ts,
	}, nil
}

// Close is a no-op for the generator.
func (s *Synth) Close() error { return nil }
