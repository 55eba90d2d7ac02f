package aggregator

import (
	"time"

	"github.com/krobus00/fx-stream-service/internal/entity"
	"github.com/sirupsen/logrus"
)

// Aggregator folds raw venue records into a best bid/ask pair. Aggregate is
// deterministic for identical input and has no side effects beyond logging
// discarded records.
type Aggregator struct {
	// stalenessCutoff drops records older than now-cutoff before comparison.
	// Zero disables the cutoff.
	stalenessCutoff time.Duration
}

func New(stalenessCutoff time.Duration) *Aggregator {
	return &Aggregator{stalenessCutoff: stalenessCutoff}
}

// Aggregate computes bestBid = highest bid price and bestAsk = lowest ask
// price over the given records. Ties on price are broken by the most recent
// ObservedAt. Records with a non-positive price, an unknown side, or beyond
// the staleness cutoff are discarded and counted, never aborting the fold.
// A side with no surviving records stays nil.
func (a *Aggregator) Aggregate(instrument string, tenor entity.TenorSelector, records []entity.RawQuoteRecord, now time.Time) entity.AggregatedQuote {
	result := entity.AggregatedQuote{
		Instrument: entity.NormalizeInstrument(instrument),
		Tenor:      tenor,
		ComputedAt: now,
	}

	var discarded int

	for _, record := range records {
		if !record.Price.IsPositive() || !record.Side.Valid() {
			discarded++
			continue
		}

		if a.stalenessCutoff > 0 && record.ObservedAt.Before(now.Add(-a.stalenessCutoff)) {
			discarded++
			continue
		}

		switch record.Side {
		case entity.SideBid:
			if result.BestBid == nil || beatsBid(record, result.BestBid) {
				result.BestBid = &entity.BestQuote{
					Price:      record.Price,
					Venue:      record.Venue,
					ObservedAt: record.ObservedAt,
				}
			}
		case entity.SideAsk:
			if result.BestAsk == nil || beatsAsk(record, result.BestAsk) {
				result.BestAsk = &entity.BestQuote{
					Price:      record.Price,
					Venue:      record.Venue,
					ObservedAt: record.ObservedAt,
				}
			}
		}
	}

	if discarded > 0 {
		logrus.WithFields(logrus.Fields{
			"instrument": result.Instrument,
			"tenor":      tenor.Key(),
			"discarded":  discarded,
		}).Warn("discarded invalid or stale raw quote records")
	}

	return result
}

func beatsBid(record entity.RawQuoteRecord, current *entity.BestQuote) bool {
	if record.Price.GreaterThan(current.Price) {
		return true
	}

	return record.Price.Equal(current.Price) && record.ObservedAt.After(current.ObservedAt)
}

func beatsAsk(record entity.RawQuoteRecord, current *entity.BestQuote) bool {
	if record.Price.LessThan(current.Price) {
		return true
	}

	return record.Price.Equal(current.Price) && record.ObservedAt.After(current.ObservedAt)
}
