package feed

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Replay reads bars from a CSV file for backtests. Rows are
// ts,open,high,low,close,volume with an optional header. Bars must be in
// ascending timestamp order; out-of-order rows are an error.
type Replay struct {
	symbol string
	file   *os.File
	reader *csv.Reader
	lastTs int64
	row    int
}

// NewReplay opens the CSV at path for the given symbol.
func NewReplay(symbol, path string) (*Replay, error) {
	if symbol == "" {
		return nil, errors.New("replay symbol is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open replay file")
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = 6
	return &Replay{symbol: symbol, file: f, reader: r}, nil
}

// Next returns the next bar, or ErrExhausted at end of file.
func (rp *Replay) Next(ctx context.Context) (schema.Bar, error) {
	for {
		select {
		case <-ctx.Done():
			return schema.Bar{}, ctx.Err()
		default:
		}

		record, err := rp.reader.Read()
		if err == io.EOF {
			return schema.Bar{}, ErrExhausted
		}
		if err != nil {
			return schema.Bar{}, errors.Wrap(err, "read replay row")
		}
		rp.row++

		bar, err := rp.parse(record)
		if err != nil {
			if rp.row == 1 && isHeader(record) {
				continue
			}
			return schema.Bar{}, err
		}
		if bar.Ts <= rp.lastTs && rp.lastTs != 0 {
			return schema.Bar{}, errors.Errorf("replay bar out of order at row %d: ts %d after %d", rp.row, bar.Ts, rp.lastTs)
		}
		rp.lastTs = bar.Ts
		return bar, nil
	}
}

// isHeader reports whether a first row holds column labels rather than
// data. A malformed first data row keeps a numeric ts and must error.
func isHeader(record []string) bool {
	_, err := strconv.ParseInt(record[0], 10, 64)
	return err != nil
}

func (rp *Replay) parse(record []string) (schema.Bar, error) {
	ts, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return schema.Bar{}, errors.Wrap(err, "parse ts")
	}
	fields := make([]decimal.Decimal, 5)
	for i, raw := range record[1:] {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return schema.Bar{}, errors.Wrapf(err, "parse field %d at row %d", i+1, rp.row)
		}
		fields[i] = d
	}
	return schema.Bar{
		Symbol: rp.symbol,
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
		Ts:     ts,
	}, nil
}

// Close releases the underlying file.
func (rp *Replay) Close() error {
	return rp.file.Close()
}
