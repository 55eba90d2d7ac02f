package entity

import (
	"time"

	"github.com/guregu/null/v6"
)

type Instrument struct {
	ID            string      `db:"id" json:"id"`
	Symbol        string      `db:"symbol" json:"symbol"`
	BaseCurrency  string      `db:"base_currency" json:"base_currency"`
	QuoteCurrency string      `db:"quote_currency" json:"quote_currency"`
	DisplayName   null.String `db:"display_name" json:"display_name"`
	IsActive      bool        `db:"is_active" json:"is_active"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

func (i Instrument) TableName() string {
	return "instruments"
}

// InstrumentCatalog is the active symbol set loaded at boot, used to validate
// subscribe requests at the transport edge.
type InstrumentCatalog map[string]Instrument

func (c InstrumentCatalog) Contains(symbol string) bool {
	_, ok := c[NormalizeInstrument(symbol)]
	return ok
}
