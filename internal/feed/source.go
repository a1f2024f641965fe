// Package feed provides market data sources. Each environment wires a
// different Source implementation behind the same interface so the rest
// of the system never branches on where bars come from.
package feed

import (
	"context"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// ErrExhausted signals the source has no more bars. Replay feeds return
// it at end of file; streaming feeds return it when closed.
var ErrExhausted = errors.New("feed exhausted")

// Source delivers bars in timestamp order, one at a time.
type Source interface {
	Next(ctx context.Context) (schema.Bar, error)
	Close() error
}
