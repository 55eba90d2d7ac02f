package stream

import (
	"github.com/krobus00/fx-stream-service/internal/entity"
	"github.com/sirupsen/logrus"
)

// Subscribe registers the session for the given instruments and immediately
// delivers a snapshot of exactly those instruments to that session, without
// waiting for the next scheduled cycle. Existing subscribers of the same
// instruments receive nothing from this event.
func (s *Service) Subscribe(session entity.SessionID, instruments []string) {
	normalized := normalizeInstruments(instruments)
	if len(normalized) == 0 {
		return
	}

	s.registry.Subscribe(session, normalized)

	for _, instrument := range normalized {
		envelope, err := s.buildEnvelope(instrument)
		if err != nil {
			// the scheduled loop retries on its next cycle
			logrus.WithFields(logrus.Fields{
				"session":    session,
				"instrument": instrument,
			}).Warnf("snapshot skipped: %v", err)
			continue
		}

		s.deliver(session, envelope)
	}
}

// Unsubscribe drops every subscription the session holds. Unknown sessions
// are a no-op.
func (s *Service) Unsubscribe(session entity.SessionID) {
	s.registry.Unsubscribe(session)
}

// OnDisconnect is the transport's disconnect notification.
func (s *Service) OnDisconnect(session entity.SessionID) {
	s.Unsubscribe(session)
}

func normalizeInstruments(instruments []string) []string {
	seen := make(map[string]struct{}, len(instruments))
	normalized := make([]string, 0, len(instruments))
	for _, raw := range instruments {
		instrument := entity.NormalizeInstrument(raw)
		if instrument == "" {
			continue
		}
		if _, ok := seen[instrument]; ok {
			continue
		}
		seen[instrument] = struct{}{}
		normalized = append(normalized, instrument)
	}

	return normalized
}
