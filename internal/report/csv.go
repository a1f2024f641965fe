// Package report exports run results as CSV files and optionally persists
// them to PostgreSQL.
package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// WriteTrades writes the completed round-trip trade log to dir/trades.csv.
func WriteTrades(dir string, trades []schema.TradeRecord) (string, error) {
	path := filepath.Join(dir, "trades.csv")
	rows := make([][]string, 0, len(trades)+1)
	rows = append(rows, []string{
		"symbol", "side", "qty", "entry_price", "exit_price", "pnl", "entry_ts", "exit_ts",
	})
	for _, t := range trades {
		rows = append(rows, []string{
			t.Symbol,
			t.Side.String(),
			t.Qty.String(),
			t.EntryPrice.String(),
			t.ExitPrice.String(),
			t.PnL.String(),
			strconv.FormatInt(t.EntryTs, 10),
			strconv.FormatInt(t.ExitTs, 10),
		})
	}
	return path, writeCSV(path, rows)
}

// WriteSnapshots writes the performance snapshot series to
// dir/snapshots.csv.
func WriteSnapshots(dir string, snaps []schema.PerformanceSnapshot) (string, error) {
	path := filepath.Join(dir, "snapshots.csv")
	rows := make([][]string, 0, len(snaps)+1)
	rows = append(rows, []string{
		"ts", "equity", "peak_equity", "drawdown", "realized_pnl", "unrealized_pnl",
		"sharpe", "trades", "wins", "losses",
	})
	for _, s := range snaps {
		sharpe := ""
		if s.SharpeDefined {
			sharpe = strconv.FormatFloat(s.Sharpe, 'f', 6, 64)
		}
		rows = append(rows, []string{
			strconv.FormatInt(s.Ts, 10),
			s.Equity.String(),
			s.PeakEquity.String(),
			s.Drawdown.String(),
			s.RealizedPnL.String(),
			s.UnrealizedPnL.String(),
			sharpe,
			strconv.Itoa(s.TradeCount),
			strconv.Itoa(s.WinCount),
			strconv.Itoa(s.LossCount),
		})
	}
	return path, writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create report dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create report file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return errors.Wrap(err, "write report rows")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "flush report")
	}
	return nil
}
