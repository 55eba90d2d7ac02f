package stream

import (
	"sync"

	"github.com/krobus00/fx-stream-service/internal/entity"
	"github.com/sirupsen/logrus"
)

// broadcast resolves the interested sessions and delivers the envelope to
// each independently. A failed or vanished session is cleaned out of the
// registry without delaying or aborting delivery to the rest.
func (s *Service) broadcast(envelope entity.PriceUpdateEnvelope) {
	sessions := s.registry.SessionsFor(envelope.Instrument)
	if len(sessions) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, session := range sessions {
		wg.Add(1)
		go func(session entity.SessionID) {
			defer wg.Done()
			s.deliver(session, envelope)
		}(session)
	}

	wg.Wait()
}

func (s *Service) deliver(session entity.SessionID, envelope entity.PriceUpdateEnvelope) {
	err := s.transport.SendToSession(session, envelope)
	if err == nil {
		return
	}

	logrus.WithFields(logrus.Fields{
		"session":    session,
		"instrument": envelope.Instrument,
	}).Warnf("delivery failed, unsubscribing session: %v", err)

	s.registry.Unsubscribe(session)
}
