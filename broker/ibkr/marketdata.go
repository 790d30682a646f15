package ibkr

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tradekit/optrader/market"
)

// Snapshot field ids: 31 last price, 84 bid, 86 ask.
const snapshotFields = "31,84,86"

// Snapshot reads one market data snapshot. Fields the feed has not ticked
// yet come back absent and are reported as NaN, so callers can poll until
// the quote is ready.
func (g *Gateway) Snapshot(ctx context.Context, inst market.Instrument) (market.Quote, error) {
	if _, err := g.ensureConnected(); err != nil {
		return market.Quote{}, err
	}
	inst, err := g.Qualify(ctx, inst)
	if err != nil {
		return market.Quote{}, err
	}

	var rows []map[string]any
	err = g.get(ctx, "/iserver/marketdata/snapshot", map[string]string{
		"conids": fmt.Sprintf("%d", inst.ConID),
		"fields": snapshotFields,
	}, &rows)
	if err != nil {
		return market.Quote{}, err
	}
	if len(rows) == 0 {
		return market.Quote{}, fmt.Errorf("empty snapshot for %s", inst.Key())
	}

	row := rows[0]
	return market.Quote{
		Instrument: inst.Key(),
		Last:       fieldPrice(row, "31"),
		Bid:        fieldPrice(row, "84"),
		Ask:        fieldPrice(row, "86"),
		Time:       time.Now(),
	}, nil
}

// fieldPrice digs a price out of a snapshot row. The feed prefixes values
// with C (prior close) or H (halted); both still carry a usable number.
func fieldPrice(row map[string]any, field string) float64 {
	v, ok := row[field]
	if !ok {
		return math.NaN()
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		s := strings.TrimLeft(t, "CH")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func (g *Gateway) HistoricalBars(ctx context.Context, inst market.Instrument, duration, barSize string) ([]market.Bar, error) {
	if _, err := g.ensureConnected(); err != nil {
		return nil, err
	}
	inst, err := g.Qualify(ctx, inst)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Data []struct {
			O float64 `json:"o"`
			H float64 `json:"h"`
			L float64 `json:"l"`
			C float64 `json:"c"`
			V float64 `json:"v"`
			T int64   `json:"t"` // epoch millis
		} `json:"data"`
	}
	err = g.get(ctx, "/iserver/marketdata/history", map[string]string{
		"conid":  fmt.Sprintf("%d", inst.ConID),
		"period": duration,
		"bar":    barSize,
	}, &raw)
	if err != nil {
		return nil, err
	}

	bars := make([]market.Bar, 0, len(raw.Data))
	for _, d := range raw.Data {
		bars = append(bars, market.Bar{
			Time:   time.UnixMilli(d.T),
			Open:   d.O,
			High:   d.H,
			Low:    d.L,
			Close:  d.C,
			Volume: d.V,
		})
	}
	return bars, nil
}
