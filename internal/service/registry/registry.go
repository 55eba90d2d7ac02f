package registry

import (
	"fmt"
	"sync"

	"github.com/krobus00/fx-stream-service/internal/entity"
)

// Registry is the bidirectional session<->instrument subscription index. Both
// maps are mutated inside one critical section so the mirror invariant
// (session listed under an instrument iff the instrument is listed under the
// session) is never observed violated. Reads copy out and release the lock
// promptly; the lock is never held across I/O.
type Registry struct {
	mu                   sync.Mutex
	sessionsByInstrument map[string]map[entity.SessionID]struct{}
	instrumentsBySession map[entity.SessionID]map[string]struct{}

	// invariantChecks turns on the mirror assertion after every mutation.
	// It is a defect guard for tests, not an error path.
	invariantChecks bool
}

func New() *Registry {
	return &Registry{
		sessionsByInstrument: make(map[string]map[entity.SessionID]struct{}),
		instrumentsBySession: make(map[entity.SessionID]map[string]struct{}),
	}
}

// Subscribe adds the session to each instrument's set and vice versa.
// Idempotent: re-subscribing an existing pair leaves the state unchanged.
func (r *Registry) Subscribe(session entity.SessionID, instruments []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, raw := range instruments {
		instrument := entity.NormalizeInstrument(raw)
		if instrument == "" {
			continue
		}

		if r.sessionsByInstrument[instrument] == nil {
			r.sessionsByInstrument[instrument] = make(map[entity.SessionID]struct{})
		}
		r.sessionsByInstrument[instrument][session] = struct{}{}

		if r.instrumentsBySession[session] == nil {
			r.instrumentsBySession[session] = make(map[string]struct{})
		}
		r.instrumentsBySession[session][instrument] = struct{}{}
	}

	r.assertMirrorLocked()
}

// Unsubscribe removes the session from every instrument set it belonged to
// and clears its own entry. Unknown sessions are a no-op.
func (r *Registry) Unsubscribe(session entity.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instruments, ok := r.instrumentsBySession[session]
	if !ok {
		return
	}

	for instrument := range instruments {
		sessions := r.sessionsByInstrument[instrument]
		delete(sessions, session)
		if len(sessions) == 0 {
			delete(r.sessionsByInstrument, instrument)
		}
	}

	delete(r.instrumentsBySession, session)

	r.assertMirrorLocked()
}

// ListInstruments returns a point-in-time copy of the currently subscribed
// instrument set.
func (r *Registry) ListInstruments() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	instruments := make([]string, 0, len(r.sessionsByInstrument))
	for instrument := range r.sessionsByInstrument {
		instruments = append(instruments, instrument)
	}

	return instruments
}

// SessionsFor returns a point-in-time copy of the sessions subscribed to one
// instrument.
func (r *Registry) SessionsFor(instrument string) []entity.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.sessionsByInstrument[entity.NormalizeInstrument(instrument)]
	sessions := make([]entity.SessionID, 0, len(members))
	for session := range members {
		sessions = append(sessions, session)
	}

	return sessions
}

// InstrumentsFor returns a point-in-time copy of the instruments one session
// is subscribed to.
func (r *Registry) InstrumentsFor(session entity.SessionID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.instrumentsBySession[session]
	instruments := make([]string, 0, len(members))
	for instrument := range members {
		instruments = append(instruments, instrument)
	}

	return instruments
}

func (r *Registry) assertMirrorLocked() {
	if !r.invariantChecks {
		return
	}

	for instrument, sessions := range r.sessionsByInstrument {
		for session := range sessions {
			if _, ok := r.instrumentsBySession[session][instrument]; !ok {
				panic(fmt.Sprintf("registry mirror violated: %s -> %s has no reverse entry", instrument, session))
			}
		}
	}

	for session, instruments := range r.instrumentsBySession {
		for instrument := range instruments {
			if _, ok := r.sessionsByInstrument[instrument][session]; !ok {
				panic(fmt.Sprintf("registry mirror violated: %s -> %s has no forward entry", session, instrument))
			}
		}
	}
}
