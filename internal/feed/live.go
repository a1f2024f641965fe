package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/schema"
)

const _binanceWsUrl = "wss://stream.binance.com:9443/ws"

// Live streams closed kline bars from the exchange websocket and exposes
// them through the Source interface.
type Live struct {
	symbol string
	wss    *ws.WebSocket
	bars   chan schema.Bar
	cancel func()
}

// NewLive connects the websocket and subscribes the kline stream for the
// symbol and interval (e.g. "1m").
func NewLive(ctx context.Context, symbol, interval string) (*Live, error) {
	if symbol == "" {
		return nil, errors.New("live feed symbol is empty")
	}
	l := &Live{
		symbol: symbol,
		wss:    ws.New(ctx, _binanceWsUrl),
		bars:   make(chan schema.Bar, 256),
	}
	if err := l.wss.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "start wss")
	}
	if err := l.subscribe(ctx, interval); err != nil {
		l.wss.Close()
		return nil, err
	}
	l.observe(ctx)
	return l, nil
}

type klineSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type klineSubscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

func (l *Live) subscribe(ctx context.Context, interval string) error {
	appendIntoRegister := true
	if err := l.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, wss *ws.WebSocket) error {
			payload := klineSubscribeRequest{
				Method: "SUBSCRIBE",
				Params: []string{
					fmt.Sprintf("%s@kline_%s", strings.ToLower(l.symbol), interval),
				},
				ID: 1,
			}
			if err := wss.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp klineSubscribeResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != 1 {
				return false, nil
			}
			if resp.Result != nil {
				return false, errors.Errorf("subscribe kline, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}
	return nil
}

type klineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		CloseTime int64  `json:"T"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

func (l *Live) observe(ctx context.Context) {
	ch, cancel := l.wss.Subscribe()
	l.cancel = cancel

	go func() {
		defer cancel()
		defer close(l.bars)
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				event, ok := ws.ReadMessage[klineEvent](m)
				if !ok || event.EventType != "kline" || !event.Kline.Closed {
					continue
				}

				bar, err := klineToBar(l.symbol, event)
				if err != nil {
					continue
				}
				select {
				case l.bars <- bar:
				default:
					// slow consumer, drop the bar
				}
			}
		}
	}()
}

func klineToBar(symbol string, event klineEvent) (schema.Bar, error) {
	fields := [5]string{
		event.Kline.Open,
		event.Kline.High,
		event.Kline.Low,
		event.Kline.Close,
		event.Kline.Volume,
	}
	parsed := [5]decimal.Decimal{}
	for i, raw := range fields {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return schema.Bar{}, errors.Wrap(err, "parse kline field")
		}
		parsed[i] = d
	}
	return schema.Bar{
		Symbol: symbol,
		Open:   parsed[0],
		High:   parsed[1],
		Low:    parsed[2],
		Close:  parsed[3],
		Volume: parsed[4],
		Ts:     event.Kline.CloseTime,
	}, nil
}

// Next blocks until the next closed bar arrives.
func (l *Live) Next(ctx context.Context) (schema.Bar, error) {
	select {
	case <-ctx.Done():
		return schema.Bar{}, ctx.Err()
	case bar, ok := <-l.bars:
		if !ok {
			return schema.Bar{}, ErrExhausted
		}
		return bar, nil
	}
}

// Close tears down the subscription and the websocket.
func (l *Live) Close() error {
	if l.cancel != nil {
		l.cancel()
	}
	l.wss.Close()
	return nil
}
