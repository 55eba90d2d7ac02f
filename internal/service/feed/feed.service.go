package feed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/fx-stream-service/internal/config"
	"github.com/krobus00/fx-stream-service/internal/constant"
	"github.com/krobus00/fx-stream-service/internal/entity"
	"github.com/krobus00/fx-stream-service/internal/repository"
	"github.com/krobus00/fx-stream-service/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const rawQuoteEventMaxAge = 1 * time.Minute

// Service consumes raw venue quote events published by upstream feed
// publishers and writes them into the Redis raw quote store the streaming
// engine polls.
type Service struct {
	js           nats.JetStreamContext
	rawQuoteRepo *repository.RawQuoteRepository
	catalog      entity.InstrumentCatalog
}

func NewService(js nats.JetStreamContext, rawQuoteRepo *repository.RawQuoteRepository, catalog entity.InstrumentCatalog) *Service {
	return &Service{
		js:           js,
		rawQuoteRepo: rawQuoteRepo,
		catalog:      catalog,
	}
}

func (s *Service) JetstreamEventInit(ctx context.Context) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.RawQuoteStreamName,
		Subjects:  []string{constant.RawQuoteStreamSubjectAll},
		Storage:   nats.FileStorage, // use MemoryStorage for ultra-low latency
		Retention: nats.LimitsPolicy,
		MaxAge:    5 * time.Minute,
		Replicas:  1,
	}

	stream, err := s.js.StreamInfo(constant.RawQuoteStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.RawQuoteStreamName)
		_, err = s.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.RawQuoteStreamName)
	_, err = s.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	logrus.Infof("stream %s is ready", constant.RawQuoteStreamName)

	return nil
}

func (s *Service) JetstreamEventSubscribe(ctx context.Context) error {
	err := s.JetstreamEventInit(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	_, err = s.js.QueueSubscribe(
		constant.RawQuoteStreamSubjectAll,
		constant.RawQuoteInsertQueueGroup,
		func(msg *nats.Msg) {
			err := util.ProcessWithTimeout(config.Env.NatsJetstream.TimeoutHandler["insert_raw_quote"], msg, s.handleRawQuoteEvent)
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
				return
			}

			err = msg.Ack()
			if err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
				return
			}
		},
		nats.ManualAck(),
		nats.DeliverNew(), // only process new messages, ignore old messages when subscribe for the first time
	)

	return err
}

func (s *Service) handleRawQuoteEvent(ctx context.Context, msg *nats.Msg) (err error) {
	logger := logrus.WithFields(logrus.Fields{
		"req": string(msg.Data),
	})

	var req *entity.RawQuoteEvent
	err = json.Unmarshal(msg.Data, &req)
	if err != nil {
		logger.Error(err)
		return err
	}

	record, ok := s.normalizeRecord(req.Data)
	if !ok {
		logger.Warn("skipping malformed raw quote event")
		return nil
	}

	if record.ObservedAt.UTC().Add(rawQuoteEventMaxAge).Before(time.Now().UTC()) {
		logger.Info("skipping raw quote event that is too old")
		return nil
	}

	defer func() {
		if err != nil {
			req.RetryCount++
			if req.RetryCount >= config.Env.NatsJetstream.MaxRetries {
				return
			}

			err := util.PublishEvent(s.js, constant.GetRawQuoteStreamSubject(record.Venue), req)
			if err != nil {
				logger.Error(err)
				return
			}
		}
	}()

	err = s.rawQuoteRepo.UpsertRawQuote(ctx, record)
	if err != nil {
		logger.Error(err)
		return err
	}

	return nil
}

// normalizeRecord validates and normalizes one upstream record. Events that
// fail here are permanently malformed and are dropped, not retried.
func (s *Service) normalizeRecord(record entity.RawQuoteRecord) (entity.RawQuoteRecord, bool) {
	record.Instrument = entity.NormalizeInstrument(record.Instrument)
	record.Venue = strings.ToUpper(strings.TrimSpace(record.Venue))

	if record.Instrument == "" || record.Venue == "" {
		return record, false
	}

	if len(s.catalog) > 0 && !s.catalog.Contains(record.Instrument) {
		return record, false
	}

	if !record.Side.Valid() || !record.Tenor.Valid() {
		return record, false
	}

	if !record.Price.IsPositive() || record.ObservedAt.IsZero() {
		return record, false
	}

	return record, true
}
