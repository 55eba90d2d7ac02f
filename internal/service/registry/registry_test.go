package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/krobus00/fx-stream-service/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	r := New()
	r.invariantChecks = true
	return r
}

func TestSubscribeMirrorsBothMaps(t *testing.T) {
	r := newTestRegistry()
	session := entity.SessionID("s1")

	r.Subscribe(session, []string{"EURUSD", "gbpusd"})

	assert.ElementsMatch(t, []string{"EURUSD", "GBPUSD"}, r.InstrumentsFor(session))
	assert.Equal(t, []entity.SessionID{session}, r.SessionsFor("EURUSD"))
	assert.Equal(t, []entity.SessionID{session}, r.SessionsFor("GBPUSD"))
	assert.ElementsMatch(t, []string{"EURUSD", "GBPUSD"}, r.ListInstruments())
}

func TestSubscribeIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	session := entity.SessionID("s1")

	r.Subscribe(session, []string{"EURUSD"})
	r.Subscribe(session, []string{"EURUSD"})

	assert.Equal(t, []string{"EURUSD"}, r.InstrumentsFor(session))
	assert.Equal(t, []entity.SessionID{session}, r.SessionsFor("EURUSD"))
}

func TestUnsubscribeUnknownSessionIsNoop(t *testing.T) {
	r := newTestRegistry()
	r.Subscribe("s1", []string{"EURUSD"})

	require.NotPanics(t, func() {
		r.Unsubscribe("never-subscribed")
	})

	assert.Equal(t, []entity.SessionID{"s1"}, r.SessionsFor("EURUSD"))
}

func TestSubscribeUnsubscribeRoundTripLeavesNoResidue(t *testing.T) {
	r := newTestRegistry()
	r.Subscribe("s1", []string{"EURUSD", "GBPUSD"})
	r.Unsubscribe("s1")

	assert.Empty(t, r.ListInstruments())
	assert.Empty(t, r.InstrumentsFor("s1"))
	assert.Empty(t, r.SessionsFor("EURUSD"))
	assert.Empty(t, r.SessionsFor("GBPUSD"))
}

func TestUnsubscribeKeepsOtherSessions(t *testing.T) {
	r := newTestRegistry()
	r.Subscribe("s1", []string{"EURUSD"})
	r.Subscribe("s2", []string{"EURUSD", "USDJPY"})

	r.Unsubscribe("s1")

	assert.Equal(t, []entity.SessionID{"s2"}, r.SessionsFor("EURUSD"))
	assert.ElementsMatch(t, []string{"EURUSD", "USDJPY"}, r.InstrumentsFor("s2"))
}

func TestSubscribeSkipsEmptySymbols(t *testing.T) {
	r := newTestRegistry()
	r.Subscribe("s1", []string{"", "  ", "EURUSD"})

	assert.Equal(t, []string{"EURUSD"}, r.ListInstruments())
}

func TestConcurrentMutationKeepsMirror(t *testing.T) {
	r := newTestRegistry()
	instruments := []string{"EURUSD", "GBPUSD", "USDJPY", "AUDUSD"}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := entity.SessionID(fmt.Sprintf("s%d", i))
			for j := 0; j < 100; j++ {
				r.Subscribe(session, instruments[:1+(i+j)%len(instruments)])
				r.ListInstruments()
				r.SessionsFor(instruments[j%len(instruments)])
				if j%3 == 0 {
					r.Unsubscribe(session)
				}
			}
		}(i)
	}
	wg.Wait()

	// final sweep: every remaining entry must mirror
	for _, instrument := range r.ListInstruments() {
		for _, session := range r.SessionsFor(instrument) {
			assert.Contains(t, r.InstrumentsFor(session), instrument)
		}
	}
}
