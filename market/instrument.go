package market

import (
	"errors"
	"fmt"
)

type SecType string

const (
	SecStock  SecType = "STK"
	SecIndex  SecType = "IND"
	SecOption SecType = "OPT"
)

type Right string

const (
	RightCall Right = "C"
	RightPut  Right = "P"
)

func (r Right) Other() Right {
	if r == RightCall {
		return RightPut
	}
	return RightCall
}

// Instrument describes a tradable contract. It is a value type: construct it
// once per trade decision and never mutate it afterwards. ConID is zero until
// the contract has been qualified by the gateway.
type Instrument struct {
	Symbol   string
	SecType  SecType
	Exchange string
	Currency string

	// Option fields, zero-valued for stocks and indexes.
	Expiry string // YYYYMMDD
	Strike float64
	Right  Right

	ConID int
}

func Stock(symbol, exchange string) Instrument {
	return Instrument{Symbol: symbol, SecType: SecStock, Exchange: exchange, Currency: "USD"}
}

func Index(symbol, exchange string) Instrument {
	return Instrument{Symbol: symbol, SecType: SecIndex, Exchange: exchange, Currency: "USD"}
}

func Option(symbol, expiry string, strike float64, right Right, exchange string) Instrument {
	return Instrument{
		Symbol:   symbol,
		SecType:  SecOption,
		Exchange: exchange,
		Currency: "USD",
		Expiry:   expiry,
		Strike:   strike,
		Right:    right,
	}
}

func (i Instrument) IsOption() bool { return i.SecType == SecOption }

// Key returns a stable identity string, usable as a map key and as the
// instrument column in journal records.
func (i Instrument) Key() string {
	if !i.IsOption() {
		return fmt.Sprintf("%s:%s", i.SecType, i.Symbol)
	}
	return fmt.Sprintf("%s:%s %s %.1f%s", i.SecType, i.Symbol, i.Expiry, i.Strike, i.Right)
}

func (i Instrument) String() string { return i.Key() }

func (i Instrument) Validate() error {
	if i.Symbol == "" {
		return errors.New("instrument symbol is required")
	}
	if i.IsOption() {
		if i.Expiry == "" {
			return fmt.Errorf("option %s: expiry is required", i.Symbol)
		}
		if i.Strike <= 0 {
			return fmt.Errorf("option %s: strike must be positive", i.Symbol)
		}
		if i.Right != RightCall && i.Right != RightPut {
			return fmt.Errorf("option %s: right must be C or P", i.Symbol)
		}
	}
	return nil
}

// NearestStrike picks the strike closest to target from the gateway's strike
// grid. Ties resolve to the lower strike.
func NearestStrike(strikes []float64, target float64) (float64, error) {
	if len(strikes) == 0 {
		return 0, errors.New("empty strike grid")
	}
	best := strikes[0]
	for _, s := range strikes[1:] {
		if abs(s-target) < abs(best-target) {
			best = s
		}
	}
	return best, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
