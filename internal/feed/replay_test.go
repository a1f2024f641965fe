package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReplayReadsBarsInOrder(t *testing.T) {
	path := writeCSV(t, "ts,open,high,low,close,volume\n"+
		"1,100,101,99,100.5,10\n"+
		"2,100.5,102,100,101,12\n")

	replay, err := NewReplay("BTCUSDT", path)
	require.NoError(t, err)
	defer replay.Close()

	ctx := context.Background()

	first, err := replay.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", first.Symbol)
	assert.Equal(t, int64(1), first.Ts)
	assert.True(t, first.Close.Equal(decimal.NewFromFloat(100.5)))

	second, err := replay.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Ts)

	_, err = replay.Next(ctx)
	assert.Equal(t, ErrExhausted, err)
}

func TestReplayWithoutHeader(t *testing.T) {
	path := writeCSV(t, "1,100,101,99,100,10\n")

	replay, err := NewReplay("BTCUSDT", path)
	require.NoError(t, err)
	defer replay.Close()

	bar, err := replay.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), bar.Ts)
}

func TestReplayRejectsMalformedFirstDataRow(t *testing.T) {
	// A numeric ts marks a data row; a bad price field must error, not be
	// skipped as a header.
	path := writeCSV(t, "1,100,abc,99,100,10\n"+
		"2,100,101,99,100,10\n")

	replay, err := NewReplay("BTCUSDT", path)
	require.NoError(t, err)
	defer replay.Close()

	_, err = replay.Next(context.Background())
	assert.ErrorContains(t, err, "parse field")
}

func TestReplayRejectsOutOfOrderBars(t *testing.T) {
	path := writeCSV(t, "2,100,101,99,100,10\n"+
		"1,100,101,99,100,10\n")

	replay, err := NewReplay("BTCUSDT", path)
	require.NoError(t, err)
	defer replay.Close()

	ctx := context.Background()
	_, err = replay.Next(ctx)
	require.NoError(t, err)
	_, err = replay.Next(ctx)
	assert.ErrorContains(t, err, "out of order")
}

func TestSynthDeterministicPerSeed(t *testing.T) {
	cfg := SynthConfig{
		Symbol:     "BTCUSDT",
		Seed:       42,
		BasePrice:  decimal.NewFromInt(100),
		Volatility: decimal.NewFromFloat(0.01),
		Count:      20,
	}

	run := func() []string {
		gen, err := NewSynth(cfg)
		require.NoError(t, err)
		var closes []string
		for {
			bar, err := gen.Next(context.Background())
			if err == ErrExhausted {
				return closes
			}
			require.NoError(t, err)
			require.True(t, bar.High.GreaterThanOrEqual(bar.Low))
			require.True(t, bar.Close.Sign() > 0)
			closes = append(closes, bar.Close.String())
		}
	}

	first := run()
	second := run()
	require.Len(t, first, 20)
	assert.Equal(t, first, second)
}

func TestSynthValidation(t *testing.T) {
	_, err := NewSynth(SynthConfig{Symbol: "BTCUSDT"})
	assert.Error(t, err)

	_, err = NewSynth(SynthConfig{BasePrice: decimal.NewFromInt(100)})
	assert.Error(t, err)
}
