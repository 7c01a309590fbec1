package auth

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/desertthunder/tempo/internal/shared"
	"github.com/desertthunder/tempo/internal/store"
)

// outcome is the terminal result of an authorization attempt.
type outcome struct {
	rec *store.TokenRecord
	err error
}

// PendingSession tracks a single in-flight authorization attempt: the PKCE
// verifier and state minted for it, and the one-shot channel that bridges the
// browser redirect back to the caller blocked in [Coordinator.Authenticate].
//
// At most one exists at a time, owned exclusively by the coordinator. The
// redirect handler and the timeout race to settle it; the second writer is a
// no-op.
type PendingSession struct {
	ID        string
	Verifier  string
	State     string
	CreatedAt time.Time

	done       chan outcome
	settleOnce sync.Once
	claimed    atomic.Bool
}

// newPendingSession mints fresh PKCE and state material for one attempt.
// Verifiers are never reused across sessions.
func newPendingSession() (*PendingSession, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, err
	}

	state, err := GenerateState()
	if err != nil {
		return nil, err
	}

	return &PendingSession{
		ID:        shared.GenerateID(),
		Verifier:  verifier,
		State:     state,
		CreatedAt: time.Now(),
		done:      make(chan outcome, 1),
	}, nil
}

// claim marks the session as being handled by a callback. Only the first
// caller wins; duplicate callback deliveries are dropped so the token exchange
// runs at most once.
func (s *PendingSession) claim() bool {
	return s.claimed.CompareAndSwap(false, true)
}

// settle records the terminal outcome. Safe under the redirect/timeout race;
// only the first settle is observed.
func (s *PendingSession) settle(rec *store.TokenRecord, err error) {
	s.settleOnce.Do(func() {
		s.done <- outcome{rec: rec, err: err}
	})
}
