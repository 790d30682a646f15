package ibkr

import (
	"context"
	"fmt"
	"math"

	"github.com/tradekit/optrader/broker"
	"github.com/tradekit/optrader/market"
)

// Positions reads the holdings ledger. Returned instruments carry the
// contract id and enough identity to close the row; zero rows the gateway
// still reports after a flatten are dropped.
func (g *Gateway) Positions(ctx context.Context) ([]broker.Position, error) {
	acct, err := g.ensureConnected()
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ConID      int     `json:"conid"`
		Position   float64 `json:"position"`
		AvgCost    float64 `json:"avgCost"`
		Ticker     string  `json:"ticker"`
		AssetClass string  `json:"assetClass"`
		Currency   string  `json:"currency"`
		Expiry     string  `json:"expiry"`
		Strike     float64 `json:"strike"`
		PutOrCall  string  `json:"putOrCall"`
	}
	if err := g.get(ctx, fmt.Sprintf("/portfolio/%s/positions/0", acct), nil, &rows); err != nil {
		return nil, err
	}

	out := make([]broker.Position, 0, len(rows))
	for _, row := range rows {
		qty := int(math.Round(row.Position))
		if qty == 0 {
			continue
		}
		inst := market.Instrument{
			Symbol:   row.Ticker,
			SecType:  mapAssetClass(row.AssetClass),
			Currency: row.Currency,
			Expiry:   row.Expiry,
			Strike:   row.Strike,
			Right:    market.Right(row.PutOrCall),
			ConID:    row.ConID,
		}
		out = append(out, broker.Position{
			Instrument: inst,
			Quantity:   qty,
			AvgCost:    row.AvgCost,
		})
	}
	return out, nil
}

func mapAssetClass(s string) market.SecType {
	switch s {
	case "OPT":
		return market.SecOption
	case "IND":
		return market.SecIndex
	default:
		return market.SecStock
	}
}

// AccountValues flattens the per-currency ledger into tag/value rows.
func (g *Gateway) AccountValues(ctx context.Context) ([]broker.AccountValue, error) {
	acct, err := g.ensureConnected()
	if err != nil {
		return nil, err
	}

	var ledger map[string]struct {
		CashBalance    float64 `json:"cashbalance"`
		NetLiquidation float64 `json:"netliquidationvalue"`
		UnrealizedPnL  float64 `json:"unrealizedpnl"`
		SettledCash    float64 `json:"settledcash"`
		SecondKey      string  `json:"secondkey"`
	}
	if err := g.get(ctx, fmt.Sprintf("/portfolio/%s/ledger", acct), nil, &ledger); err != nil {
		return nil, err
	}

	var out []broker.AccountValue
	for key, row := range ledger {
		currency := row.SecondKey
		if currency == "" {
			currency = key
		}
		out = append(out,
			broker.AccountValue{Tag: "CashBalance", Value: fmt.Sprintf("%.2f", row.CashBalance), Currency: currency},
			broker.AccountValue{Tag: "NetLiquidation", Value: fmt.Sprintf("%.2f", row.NetLiquidation), Currency: currency},
			broker.AccountValue{Tag: "UnrealizedPnL", Value: fmt.Sprintf("%.2f", row.UnrealizedPnL), Currency: currency},
		)
	}
	return out, nil
}
