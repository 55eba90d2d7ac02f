package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/krobus00/fx-stream-service/internal/entity"
	"github.com/krobus00/fx-stream-service/internal/service/aggregator"
	"github.com/krobus00/fx-stream-service/internal/service/registry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu         sync.Mutex
	records    map[string][]entity.RawQuoteRecord
	failures   map[string]error
	fetchCount int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:  make(map[string][]entity.RawQuoteRecord),
		failures: make(map[string]error),
	}
}

func (s *fakeStore) FetchRawQuotes(ctx context.Context, instrument string, tenor entity.TenorSelector) ([]entity.RawQuoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchCount++
	if err := s.failures[instrument]; err != nil {
		return nil, err
	}

	return s.records[instrument+"|"+tenor.Key()], nil
}

func (s *fakeStore) setRecords(instrument string, tenor entity.TenorSelector, records []entity.RawQuoteRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[instrument+"|"+tenor.Key()] = records
}

func (s *fakeStore) setFailure(instrument string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, instrument)
		return
	}
	s.failures[instrument] = err
}

func (s *fakeStore) fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCount
}

type fakeTransport struct {
	mu   sync.Mutex
	sent map[entity.SessionID][]entity.PriceUpdateEnvelope
	fail map[entity.SessionID]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent: make(map[entity.SessionID][]entity.PriceUpdateEnvelope),
		fail: make(map[entity.SessionID]error),
	}
}

func (t *fakeTransport) SendToSession(session entity.SessionID, envelope entity.PriceUpdateEnvelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.fail[session]; err != nil {
		return err
	}

	t.sent[session] = append(t.sent[session], envelope)
	return nil
}

func (t *fakeTransport) envelopesFor(session entity.SessionID) []entity.PriceUpdateEnvelope {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]entity.PriceUpdateEnvelope, len(t.sent[session]))
	copy(out, t.sent[session])
	return out
}

func (t *fakeTransport) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = make(map[entity.SessionID][]entity.PriceUpdateEnvelope)
}

func bidRecord(instrument, price, venue string, observedAt time.Time) entity.RawQuoteRecord {
	return entity.RawQuoteRecord{
		Instrument: instrument,
		Tenor:      entity.SpotTenor(),
		Side:       entity.SideBid,
		Price:      decimal.RequireFromString(price),
		Venue:      venue,
		ObservedAt: observedAt,
	}
}

func newTestService(store *fakeStore, transport *fakeTransport, interval time.Duration) *Service {
	return NewService(
		registry.New(),
		store,
		aggregator.New(0),
		transport,
		Config{
			Interval:       interval,
			FetchTimeout:   time.Second,
			WorkerPoolSize: 4,
			ForwardTenor:   entity.ForwardTenor("1M", "0-5M"),
		},
	)
}

func TestSubscribeDeliversSnapshotOnlyToNewSession(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport()
	svc := newTestService(store, transport, time.Hour)

	now := time.Now().UTC()
	store.setRecords("EURUSD", entity.SpotTenor(), []entity.RawQuoteRecord{bidRecord("EURUSD", "1.1005", "V2", now)})

	svc.Subscribe("existing", []string{"EURUSD"})
	transport.reset()

	svc.Subscribe("fresh", []string{"EURUSD", "GBPUSD"})

	fresh := transport.envelopesFor("fresh")
	require.Len(t, fresh, 2)

	instruments := []string{fresh[0].Instrument, fresh[1].Instrument}
	assert.ElementsMatch(t, []string{"EURUSD", "GBPUSD"}, instruments)

	// existing subscribers of EURUSD must not get an out-of-cadence update
	assert.Empty(t, transport.envelopesFor("existing"))
}

func TestSnapshotCarriesAggregatedPrices(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport()
	svc := newTestService(store, transport, time.Hour)

	now := time.Now().UTC()
	store.setRecords("EURUSD", entity.SpotTenor(), []entity.RawQuoteRecord{
		bidRecord("EURUSD", "1.1000", "V1", now.Add(-time.Second)),
		bidRecord("EURUSD", "1.1005", "V2", now),
	})

	svc.Subscribe("s1", []string{"eurusd"})

	envelopes := transport.envelopesFor("s1")
	require.Len(t, envelopes, 1)
	require.NotNil(t, envelopes[0].Spot.BestBid)
	assert.Equal(t, "V2", envelopes[0].Spot.BestBid.Venue)
	assert.True(t, envelopes[0].Spot.BestBid.Price.Equal(decimal.RequireFromString("1.1005")))
	assert.Nil(t, envelopes[0].Spot.BestAsk)
	assert.Nil(t, envelopes[0].Forward.BestBid)
}

func TestCycleSkipsFailingInstrumentAndRetriesNext(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport()
	svc := newTestService(store, transport, time.Hour)

	svc.registry.Subscribe("s1", []string{"EURUSD", "GBPUSD"})
	store.setFailure("GBPUSD", &entity.TransientStoreError{Op: "scan raw quotes", Cause: errors.New("connection refused")})

	svc.runCycle()

	envelopes := transport.envelopesFor("s1")
	require.Len(t, envelopes, 1)
	assert.Equal(t, "EURUSD", envelopes[0].Instrument)

	// store recovers, next cycle picks GBPUSD back up
	store.setFailure("GBPUSD", nil)
	transport.reset()

	svc.runCycle()

	envelopes = transport.envelopesFor("s1")
	require.Len(t, envelopes, 2)
}

func TestCycleWithEmptyRegistryDoesNoStoreWork(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeTransport(), time.Hour)

	svc.runCycle()

	assert.Zero(t, store.fetches())
}

func TestBroadcastIsolatesFailingSession(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport()
	svc := newTestService(store, transport, time.Hour)

	sessions := make([]entity.SessionID, 0, 50)
	for i := 0; i < 50; i++ {
		session := entity.SessionID(fmt.Sprintf("s%d", i))
		sessions = append(sessions, session)
		svc.registry.Subscribe(session, []string{"EURUSD"})
	}

	broken := sessions[17]
	transport.fail[broken] = &entity.DeliveryFailure{Session: broken, Reason: "gone"}

	svc.runCycle()

	for _, session := range sessions {
		if session == broken {
			assert.Empty(t, transport.envelopesFor(session))
			continue
		}
		assert.Len(t, transport.envelopesFor(session), 1, "session %s", session)
	}

	// failed delivery cleans the session out of the registry
	assert.NotContains(t, svc.registry.SessionsFor("EURUSD"), broken)
	assert.Len(t, svc.registry.SessionsFor("EURUSD"), 49)
}

func TestSnapshotFailureStillRegistersSubscription(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport()
	svc := newTestService(store, transport, time.Hour)

	store.setFailure("EURUSD", &entity.TransientStoreError{Op: "scan raw quotes", Cause: errors.New("timeout")})

	svc.Subscribe("s1", []string{"EURUSD"})

	assert.Empty(t, transport.envelopesFor("s1"))
	assert.Contains(t, svc.registry.SessionsFor("EURUSD"), entity.SessionID("s1"))
}

func TestStartIsIdempotentAndStopIsSynchronous(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport()
	svc := newTestService(store, transport, 5*time.Millisecond)

	svc.registry.Subscribe("s1", []string{"EURUSD"})

	svc.Start()
	svc.Start() // must not spawn a second loop

	assert.Eventually(t, func() bool {
		return store.fetches() > 0
	}, time.Second, time.Millisecond)

	svc.Stop()
	fetchesAtStop := store.fetches()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, fetchesAtStop, store.fetches(), "no background work may survive Stop")

	// stopping again is a no-op
	svc.Stop()

	// the service can be started again after a stop
	svc.Start()
	assert.Eventually(t, func() bool {
		return store.fetches() > fetchesAtStop
	}, time.Second, time.Millisecond)
	svc.Stop()
}

func TestUnsubscribeStopsDeliveries(t *testing.T) {
	store := newFakeStore()
	transport := newFakeTransport()
	svc := newTestService(store, transport, time.Hour)

	svc.Subscribe("s1", []string{"EURUSD"})
	transport.reset()

	svc.Unsubscribe("s1")
	svc.runCycle()

	assert.Empty(t, transport.envelopesFor("s1"))
	assert.Empty(t, svc.registry.ListInstruments())
}
