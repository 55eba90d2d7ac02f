package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/krobus00/fx-stream-service/internal/entity"
	"github.com/krobus00/fx-stream-service/internal/service/aggregator"
	"github.com/krobus00/fx-stream-service/internal/service/registry"
	"github.com/sirupsen/logrus"
)

const (
	defaultInterval       = 1 * time.Second
	defaultFetchTimeout   = 2 * time.Second
	defaultWorkerPoolSize = 8
)

type Config struct {
	Interval       time.Duration
	FetchTimeout   time.Duration
	WorkerPoolSize int
	ForwardTenor   entity.TenorSelector
}

// Service is the quote streaming engine: it owns the periodic
// fetch -> aggregate -> broadcast loop, the subscribe-time snapshot, and the
// per-session fan-out.
type Service struct {
	registry   *registry.Registry
	store      entity.QuoteStore
	aggregator *aggregator.Aggregator
	transport  entity.Transport
	cfg        Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

func NewService(reg *registry.Registry, store entity.QuoteStore, agg *aggregator.Aggregator, transport entity.Transport, cfg Config) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = defaultWorkerPoolSize
	}
	if !cfg.ForwardTenor.Valid() || cfg.ForwardTenor.Kind != entity.TenorForward {
		cfg.ForwardTenor = entity.ForwardTenor("1M", "")
	}

	return &Service{
		registry:   reg,
		store:      store,
		aggregator: agg,
		transport:  transport,
		cfg:        cfg,
	}
}

// Start launches the streaming loop. Calling it while already running is a
// no-op; a second concurrent loop is never spawned.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		logrus.Warn("stream service already running, ignoring start")
		return
	}

	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	go s.loop(s.stopCh, s.done)

	logrus.WithFields(logrus.Fields{
		"interval":         s.cfg.Interval.String(),
		"fetch_timeout":    s.cfg.FetchTimeout.String(),
		"worker_pool_size": s.cfg.WorkerPoolSize,
		"forward_tenor":    s.cfg.ForwardTenor.Key(),
	}).Info("stream service started")
}

// Stop cancels the pending wait and returns once the loop has exited. The
// in-flight cycle drains: fetches and broadcasts already started finish, no
// new cycle begins, and no background work survives the return.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	close(s.stopCh)
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
	logrus.Info("stream service stopped")
}

func (s *Service) loop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		s.runCycle()

		select {
		case <-stopCh:
			return
		case <-time.After(s.cfg.Interval):
		}
	}
}

// runCycle snapshots the subscribed instrument set, fetches and aggregates
// each instrument through a bounded worker pool, joins all workers, then
// broadcasts the successful envelopes. One instrument failing is logged and
// skipped; it never aborts the cycle for the others.
func (s *Service) runCycle() {
	instruments := s.registry.ListInstruments()
	if len(instruments) == 0 {
		return
	}

	var (
		wg        sync.WaitGroup
		resultMu  sync.Mutex
		envelopes = make([]entity.PriceUpdateEnvelope, 0, len(instruments))
	)

	workers := make(chan struct{}, s.cfg.WorkerPoolSize)

	for _, instrument := range instruments {
		wg.Add(1)
		workers <- struct{}{}
		go func(instrument string) {
			defer wg.Done()
			defer func() { <-workers }()

			envelope, err := s.buildEnvelope(instrument)
			if err != nil {
				logrus.WithField("instrument", instrument).Warnf("skipping instrument for this cycle: %v", err)
				return
			}

			resultMu.Lock()
			envelopes = append(envelopes, envelope)
			resultMu.Unlock()
		}(instrument)
	}

	wg.Wait()

	for _, envelope := range envelopes {
		s.broadcast(envelope)
	}
}

// buildEnvelope fetches and aggregates the spot and default forward tenors
// for one instrument. Each fetch runs under its own bounded timeout.
func (s *Service) buildEnvelope(instrument string) (entity.PriceUpdateEnvelope, error) {
	spot, err := s.fetchAndAggregate(instrument, entity.SpotTenor())
	if err != nil {
		return entity.PriceUpdateEnvelope{}, fmt.Errorf("spot: %w", err)
	}

	forward, err := s.fetchAndAggregate(instrument, s.cfg.ForwardTenor)
	if err != nil {
		return entity.PriceUpdateEnvelope{}, fmt.Errorf("forward: %w", err)
	}

	return entity.PriceUpdateEnvelope{
		Instrument: entity.NormalizeInstrument(instrument),
		Spot:       spot,
		Forward:    forward,
		EmittedAt:  time.Now().UTC(),
	}, nil
}

func (s *Service) fetchAndAggregate(instrument string, tenor entity.TenorSelector) (entity.AggregatedQuote, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
	defer cancel()

	records, err := s.store.FetchRawQuotes(ctx, instrument, tenor)
	if err != nil {
		return entity.AggregatedQuote{}, err
	}

	return s.aggregator.Aggregate(instrument, tenor, records, time.Now().UTC()), nil
}
