package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/fx-stream-service/internal/constant"
	"github.com/krobus00/fx-stream-service/internal/entity"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const rawQuoteScanBatchSize = 256

// RawQuoteRepository is the polling adapter over the Redis raw quote store.
// Reads are a prefix scan over the instrument+tenor keyspace; a push/change
// feed adapter can replace this behind the same entity.QuoteStore contract.
type RawQuoteRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRawQuoteRepository(client *redis.Client, ttl time.Duration) *RawQuoteRepository {
	return &RawQuoteRepository{client: client, ttl: ttl}
}

func rawQuoteKey(record entity.RawQuoteRecord) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s",
		constant.RawQuoteKeyPrefix,
		entity.NormalizeInstrument(record.Instrument),
		record.Tenor.Key(),
		strings.ToUpper(strings.TrimSpace(record.Venue)),
		record.Side,
	)
}

func rawQuoteScanPattern(instrument string, tenor entity.TenorSelector) string {
	return fmt.Sprintf("%s:%s:%s:*", constant.RawQuoteKeyPrefix, entity.NormalizeInstrument(instrument), tenor.Key())
}

// FetchRawQuotes returns every current venue quote for one instrument+tenor.
// No quotes is a normal empty result; only store connectivity failures are
// reported, as entity.TransientStoreError.
func (r *RawQuoteRepository) FetchRawQuotes(ctx context.Context, instrument string, tenor entity.TenorSelector) ([]entity.RawQuoteRecord, error) {
	pattern := rawQuoteScanPattern(instrument, tenor)

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, rawQuoteScanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, &entity.TransientStoreError{Op: "scan raw quotes", Cause: err}
	}

	if len(keys) == 0 {
		return []entity.RawQuoteRecord{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, &entity.TransientStoreError{Op: "mget raw quotes", Cause: err}
	}

	records := make([]entity.RawQuoteRecord, 0, len(values))
	for idx, value := range values {
		if value == nil {
			// expired between scan and mget
			continue
		}

		raw, ok := value.(string)
		if !ok {
			logrus.WithField("key", keys[idx]).Warn("unexpected raw quote value type, skipping")
			continue
		}

		var record entity.RawQuoteRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			logrus.WithField("key", keys[idx]).Warnf("malformed raw quote record, skipping: %v", err)
			continue
		}

		records = append(records, record)
	}

	return records, nil
}

// UpsertRawQuote stores one venue quote under its deterministic key so a
// newer observation from the same venue+side replaces the older one.
func (r *RawQuoteRepository) UpsertRawQuote(ctx context.Context, record entity.RawQuoteRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal raw quote record: %w", err)
	}

	err = r.client.Set(ctx, rawQuoteKey(record), payload, r.ttl).Err()
	if err != nil {
		return &entity.TransientStoreError{Op: "set raw quote", Cause: err}
	}

	return nil
}
