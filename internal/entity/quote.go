package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type QuoteSide string

const (
	SideBid QuoteSide = "bid"
	SideAsk QuoteSide = "ask"
)

func (s QuoteSide) Valid() bool {
	return s == SideBid || s == SideAsk
}

type TenorKind string

const (
	TenorSpot    TenorKind = "spot"
	TenorForward TenorKind = "forward"
)

// TenorSelector identifies the price bucket a quote belongs to: spot, or a
// forward date code plus a notional band (e.g. "1M" / "0-5M").
type TenorSelector struct {
	Kind         TenorKind `json:"kind"`
	Code         string    `json:"code,omitempty"`
	NotionalBand string    `json:"notional_band,omitempty"`
}

func SpotTenor() TenorSelector {
	return TenorSelector{Kind: TenorSpot}
}

func ForwardTenor(code, notionalBand string) TenorSelector {
	return TenorSelector{
		Kind:         TenorForward,
		Code:         strings.ToUpper(strings.TrimSpace(code)),
		NotionalBand: strings.TrimSpace(notionalBand),
	}
}

// Key returns a stable representation used in store keys and map keys.
func (t TenorSelector) Key() string {
	if t.Kind == TenorSpot {
		return string(TenorSpot)
	}

	return fmt.Sprintf("%s:%s:%s", t.Kind, t.Code, t.NotionalBand)
}

func (t TenorSelector) Valid() bool {
	switch t.Kind {
	case TenorSpot:
		return true
	case TenorForward:
		return t.Code != ""
	default:
		return false
	}
}

// RawQuoteRecord is a single venue quote as produced by upstream feed
// publishers. The engine only ever reads these.
type RawQuoteRecord struct {
	Instrument string          `json:"instrument"`
	Tenor      TenorSelector   `json:"tenor"`
	Side       QuoteSide       `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Venue      string          `json:"venue"`
	ObservedAt time.Time       `json:"observed_at"`
}

// BestQuote is one winning side of an aggregation pass.
type BestQuote struct {
	Price      decimal.Decimal `json:"price"`
	Venue      string          `json:"venue"`
	ObservedAt time.Time       `json:"observed_at"`
}

// AggregatedQuote is recomputed every cycle and never persisted. A side with
// no surviving records is nil and omitted from the payload.
type AggregatedQuote struct {
	Instrument string        `json:"instrument"`
	Tenor      TenorSelector `json:"tenor"`
	BestBid    *BestQuote    `json:"best_bid,omitempty"`
	BestAsk    *BestQuote    `json:"best_ask,omitempty"`
	ComputedAt time.Time     `json:"computed_at"`
}

// PriceUpdateEnvelope is the outbound message delivered to subscribed
// sessions, one per instrument per cycle.
type PriceUpdateEnvelope struct {
	Instrument string          `json:"instrument"`
	Spot       AggregatedQuote `json:"spot"`
	Forward    AggregatedQuote `json:"forward"`
	EmittedAt  time.Time       `json:"emitted_at"`
}

type RawQuoteEvent struct {
	RetryCount int            `json:"retry"`
	Data       RawQuoteRecord `json:"data"`
}

// NormalizeInstrument uppercases and trims a symbol. Empty result means the
// input was not a usable symbol.
func NormalizeInstrument(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
