package ibkr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tradekit/optrader/market"
)

// monthToken converts a YYYYMMDD expiry into the MMMYY token the secdef
// endpoints expect ("20260320" -> "MAR26").
func monthToken(expiry string) (string, error) {
	t, err := time.Parse("20060102", expiry)
	if err != nil {
		return "", fmt.Errorf("expiry %q: %w", expiry, err)
	}
	return strings.ToUpper(t.Format("Jan06")), nil
}

type searchResult struct {
	ConID       int    `json:"conid"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	SecType     string `json:"secType"`
}

// searchConID resolves the underlying contract id for a symbol.
func (g *Gateway) searchConID(ctx context.Context, inst market.Instrument) (int, error) {
	var results []searchResult
	err := g.get(ctx, "/iserver/secdef/search", map[string]string{
		"symbol":  inst.Symbol,
		"secType": string(inst.SecType),
	}, &results)
	if err != nil {
		return 0, err
	}
	for _, r := range results {
		if r.Symbol == inst.Symbol {
			return r.ConID, nil
		}
	}
	if len(results) > 0 {
		return results[0].ConID, nil
	}
	return 0, fmt.Errorf("no contract found for %s", inst.Symbol)
}

// Qualify fills in the gateway's contract id. Options resolve through the
// secdef/info endpoint against their underlying; anything already carrying a
// ConID passes through untouched.
func (g *Gateway) Qualify(ctx context.Context, inst market.Instrument) (market.Instrument, error) {
	if _, err := g.ensureConnected(); err != nil {
		return inst, err
	}
	if err := inst.Validate(); err != nil {
		return inst, err
	}
	if inst.ConID != 0 {
		return inst, nil
	}

	if !inst.IsOption() {
		id, err := g.searchConID(ctx, inst)
		if err != nil {
			return inst, err
		}
		inst.ConID = id
		return inst, nil
	}

	underlying := market.Instrument{Symbol: inst.Symbol, SecType: market.SecIndex, Exchange: inst.Exchange, Currency: inst.Currency}
	underConID, err := g.searchConID(ctx, underlying)
	if err != nil {
		return inst, err
	}
	month, err := monthToken(inst.Expiry)
	if err != nil {
		return inst, err
	}

	var infos []struct {
		ConID        int    `json:"conid"`
		MaturityDate string `json:"maturityDate"`
		Right        string `json:"right"`
	}
	err = g.get(ctx, "/iserver/secdef/info", map[string]string{
		"conid":   fmt.Sprintf("%d", underConID),
		"sectype": "OPT",
		"month":   month,
		"strike":  fmt.Sprintf("%g", inst.Strike),
		"right":   string(inst.Right),
	}, &infos)
	if err != nil {
		return inst, err
	}
	for _, info := range infos {
		if info.MaturityDate == inst.Expiry {
			inst.ConID = info.ConID
			return inst, nil
		}
	}
	return inst, fmt.Errorf("no %s option at %g expiring %s", inst.Symbol, inst.Strike, inst.Expiry)
}

// Strikes returns the strike grid for the underlying's option chain. The
// underlying must carry or resolve to a contract id; the expiry month is
// taken from the underlying's Expiry field when set, otherwise the chain's
// front month is ambiguous and an error is returned.
func (g *Gateway) Strikes(ctx context.Context, underlying market.Instrument) ([]float64, error) {
	if _, err := g.ensureConnected(); err != nil {
		return nil, err
	}
	if underlying.Expiry == "" {
		return nil, fmt.Errorf("underlying needs an expiry to pick the chain month")
	}
	month, err := monthToken(underlying.Expiry)
	if err != nil {
		return nil, err
	}
	conID := underlying.ConID
	if conID == 0 {
		conID, err = g.searchConID(ctx, underlying)
		if err != nil {
			return nil, err
		}
	}

	var chain struct {
		Call []float64 `json:"call"`
		Put  []float64 `json:"put"`
	}
	err = g.get(ctx, "/iserver/secdef/strikes", map[string]string{
		"conid":   fmt.Sprintf("%d", conID),
		"sectype": "OPT",
		"month":   month,
	}, &chain)
	if err != nil {
		return nil, err
	}

	seen := make(map[float64]bool, len(chain.Call)+len(chain.Put))
	var out []float64
	for _, s := range append(chain.Call, chain.Put...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Float64s(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("empty strike grid for %s %s", underlying.Symbol, month)
	}
	return out, nil
}
