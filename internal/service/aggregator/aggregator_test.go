package aggregator

import (
	"testing"
	"time"

	"github.com/krobus00/fx-stream-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(side entity.QuoteSide, price string, venue string, observedAt time.Time) entity.RawQuoteRecord {
	return entity.RawQuoteRecord{
		Instrument: "EURUSD",
		Tenor:      entity.SpotTenor(),
		Side:       side,
		Price:      decimal.RequireFromString(price),
		Venue:      venue,
		ObservedAt: observedAt,
	}
}

func TestAggregatePicksHighestBidAndLowestAsk(t *testing.T) {
	now := time.Now().UTC()
	records := []entity.RawQuoteRecord{
		record(entity.SideBid, "1.1000", "V1", now.Add(-2*time.Second)),
		record(entity.SideBid, "1.1005", "V2", now.Add(-1*time.Second)),
		record(entity.SideAsk, "1.1010", "V1", now.Add(-2*time.Second)),
		record(entity.SideAsk, "1.1008", "V2", now.Add(-1*time.Second)),
	}

	result := New(0).Aggregate("EURUSD", entity.SpotTenor(), records, now)

	require.NotNil(t, result.BestBid)
	require.NotNil(t, result.BestAsk)
	assert.True(t, result.BestBid.Price.Equal(decimal.RequireFromString("1.1005")))
	assert.Equal(t, "V2", result.BestBid.Venue)
	assert.True(t, result.BestAsk.Price.Equal(decimal.RequireFromString("1.1008")))
	assert.Equal(t, "V2", result.BestAsk.Venue)
	assert.Equal(t, "EURUSD", result.Instrument)
	assert.Equal(t, now, result.ComputedAt)
}

func TestAggregateMissingAskSideStaysAbsent(t *testing.T) {
	now := time.Now().UTC()
	records := []entity.RawQuoteRecord{
		record(entity.SideBid, "1.1000", "V1", now),
	}

	result := New(0).Aggregate("EURUSD", entity.SpotTenor(), records, now)

	require.NotNil(t, result.BestBid)
	assert.Nil(t, result.BestAsk)
	assert.True(t, result.BestBid.Price.Equal(decimal.RequireFromString("1.1000")))
}

func TestAggregateEmptyInput(t *testing.T) {
	now := time.Now().UTC()

	result := New(0).Aggregate("EURUSD", entity.SpotTenor(), nil, now)

	assert.Nil(t, result.BestBid)
	assert.Nil(t, result.BestAsk)
}

func TestAggregateTieBreaksOnMostRecentObservation(t *testing.T) {
	now := time.Now().UTC()
	records := []entity.RawQuoteRecord{
		record(entity.SideBid, "1.1005", "V1", now.Add(-5*time.Second)),
		record(entity.SideBid, "1.1005", "V2", now.Add(-1*time.Second)),
	}

	result := New(0).Aggregate("EURUSD", entity.SpotTenor(), records, now)

	require.NotNil(t, result.BestBid)
	assert.Equal(t, "V2", result.BestBid.Venue)

	// input order must not matter
	reversed := []entity.RawQuoteRecord{records[1], records[0]}
	result = New(0).Aggregate("EURUSD", entity.SpotTenor(), reversed, now)
	require.NotNil(t, result.BestBid)
	assert.Equal(t, "V2", result.BestBid.Venue)
}

func TestAggregateDiscardsNonPositivePrices(t *testing.T) {
	now := time.Now().UTC()
	records := []entity.RawQuoteRecord{
		record(entity.SideBid, "0", "V1", now),
		record(entity.SideBid, "-1.1", "V2", now),
		record(entity.SideBid, "1.0999", "V3", now),
	}

	result := New(0).Aggregate("EURUSD", entity.SpotTenor(), records, now)

	require.NotNil(t, result.BestBid)
	assert.Equal(t, "V3", result.BestBid.Venue)
}

func TestAggregateDiscardsUnknownSides(t *testing.T) {
	now := time.Now().UTC()
	records := []entity.RawQuoteRecord{
		record("mid", "1.2000", "V1", now),
		record(entity.SideAsk, "1.1008", "V2", now),
	}

	result := New(0).Aggregate("EURUSD", entity.SpotTenor(), records, now)

	assert.Nil(t, result.BestBid)
	require.NotNil(t, result.BestAsk)
	assert.Equal(t, "V2", result.BestAsk.Venue)
}

func TestAggregateStalenessCutoff(t *testing.T) {
	now := time.Now().UTC()
	records := []entity.RawQuoteRecord{
		record(entity.SideBid, "1.2000", "V1", now.Add(-10*time.Minute)),
		record(entity.SideBid, "1.1000", "V2", now.Add(-1*time.Second)),
	}

	result := New(5 * time.Minute).Aggregate("EURUSD", entity.SpotTenor(), records, now)

	require.NotNil(t, result.BestBid)
	assert.Equal(t, "V2", result.BestBid.Venue)

	// cutoff disabled: the stale but higher bid wins
	result = New(0).Aggregate("EURUSD", entity.SpotTenor(), records, now)
	require.NotNil(t, result.BestBid)
	assert.Equal(t, "V1", result.BestBid.Venue)
}
