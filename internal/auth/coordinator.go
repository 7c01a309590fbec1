package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tempo/internal/server"
	"github.com/desertthunder/tempo/internal/shared"
	"github.com/desertthunder/tempo/internal/store"
)

// Phase is the coordinator's position in the authorization flow.
type Phase int32

const (
	Idle             Phase = iota // no pending session
	AwaitingRedirect              // listener running, waiting on the browser
	Resolving                     // code received, exchanging for tokens
)

func (p Phase) String() string {
	switch p {
	case AwaitingRedirect:
		return "awaiting redirect"
	case Resolving:
		return "resolving"
	default:
		return "idle"
	}
}

// exchangeTimeout bounds the code-for-token round trip once a callback lands.
const exchangeTimeout = 30 * time.Second

// Coordinator owns the single in-flight authorization attempt.
//
// It creates the pending session, runs the loopback listener, opens the
// authorize URL, and bridges the asynchronous redirect back to the caller
// blocked in [Coordinator.Authenticate]. Every exit path, success or not,
// stops the listener and returns the coordinator to [Idle].
type Coordinator struct {
	exchanger    *Exchanger
	tokens       *store.Tokens
	host         string
	port         int
	timeout      time.Duration
	handoffDelay time.Duration
	openURL      func(string) error
	onAuthURL    func(string)
	logger       *log.Logger

	mu       sync.Mutex
	pending  *PendingSession
	listener *server.Listener
	phase    atomic.Int32
}

// CoordinatorOpts configures a [Coordinator].
type CoordinatorOpts struct {
	Exchanger *Exchanger
	Tokens    *store.Tokens
	Host      string
	Port      int
	// Timeout bounds the wait for the authorization redirect. Defaults to 5 minutes.
	Timeout time.Duration
	// HandoffDelay is how long the success page is left to paint before the
	// hand-off fires.
	HandoffDelay time.Duration
	// OpenURL launches the authorize URL in a browser. Defaults to
	// [shared.OpenBrowser]. A launch failure is a warning, not a fatal error;
	// the URL can still be opened manually.
	OpenURL func(string) error
	// OnAuthURL, when set, receives the authorize URL before the browser
	// launch so callers can surface it for manual use.
	OnAuthURL func(string)
	Logger    *log.Logger
}

// NewCoordinator creates a coordinator in the [Idle] phase.
func NewCoordinator(opts CoordinatorOpts) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.OpenURL == nil {
		opts.OpenURL = shared.OpenBrowser
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Coordinator{
		exchanger:    opts.Exchanger,
		tokens:       opts.Tokens,
		host:         opts.Host,
		port:         opts.Port,
		timeout:      opts.Timeout,
		handoffDelay: opts.HandoffDelay,
		openURL:      opts.OpenURL,
		onAuthURL:    opts.OnAuthURL,
		logger:       opts.Logger,
	}
}

// Phase returns the coordinator's current position in the flow.
func (c *Coordinator) Phase() Phase {
	return Phase(c.phase.Load())
}

// Authenticate runs one complete authorization attempt: mint a pending
// session, start the listener, open the authorize URL, then block until the
// redirect lands, the timeout fires, or ctx is cancelled.
//
// A second call while one attempt is pending is rejected with
// [shared.ErrAuthInProgress].
func (c *Coordinator) Authenticate(ctx context.Context) (*store.TokenRecord, error) {
	session, listener, err := c.begin()
	if err != nil {
		return nil, err
	}

	logger := shared.WithLogger(c.logger, "session", session.ID)
	defer c.teardown(session)

	authURL := c.exchanger.AuthorizeURL(session.State, session.Verifier)
	if c.onAuthURL != nil {
		c.onAuthURL(authURL)
	}

	if err := c.openURL(authURL); err != nil {
		// Non-fatal: the user can still open the URL by hand.
		logger.Warnf("failed to open browser automatically %v", err)
	}

	logger.Infof("waiting for authorization redirect on %v", listener.Addr())

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case result := <-session.done:
		return result.rec, result.err
	case <-timer.C:
		return nil, fmt.Errorf("%w: no authorization redirect within %v", shared.ErrTimeout, c.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// begin claims the single pending-session slot and starts the listener.
func (c *Coordinator) begin() (*PendingSession, *server.Listener, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		return nil, nil, fmt.Errorf("%w: one authorization attempt at a time", shared.ErrAuthInProgress)
	}

	session, err := newPendingSession()
	if err != nil {
		return nil, nil, err
	}

	handler := server.NewCallbackHandler(c.HandleCallback, c.handoffDelay, c.logger)
	router := server.NewBasicRouter()
	router.Handler(handler)

	listener := server.NewListener(c.host, c.port, router, c.logger)
	if err := listener.Start(); err != nil {
		return nil, nil, err
	}

	c.pending = session
	c.listener = listener
	c.phase.Store(int32(AwaitingRedirect))

	return session, listener, nil
}

// teardown stops the listener and clears the pending slot. Runs on every exit
// from Authenticate, so no path leaves the port bound.
func (c *Coordinator) teardown(session *PendingSession) {
	c.mu.Lock()
	listener := c.listener
	if c.pending == session {
		c.pending = nil
		c.listener = nil
	}
	c.mu.Unlock()

	if listener != nil {
		if err := listener.Stop(context.Background()); err != nil {
			c.logger.Warnf("error stopping callback listener %v", err)
		}
	}

	c.phase.Store(int32(Idle))
}

// HandleCallback consumes a redirect result delivered by the listener's
// hand-off seam.
//
// The payload is untrusted no matter how it arrived, so the state token is
// validated here before anything else; a mismatch rejects the attempt without
// any network call. Duplicate deliveries are dropped: the exchange runs at
// most once per session.
func (c *Coordinator) HandleCallback(res server.Result) {
	c.mu.Lock()
	session := c.pending
	c.mu.Unlock()

	if session == nil {
		c.logger.Debug("callback received with no pending session, ignoring")
		return
	}

	if !session.claim() {
		c.logger.Debug("duplicate callback received, ignoring")
		return
	}

	logger := shared.WithLogger(c.logger, "session", session.ID)

	if !VerifyState(res.State, session.State) {
		logger.Error("state token mismatch on callback, possible CSRF")
		session.settle(nil, fmt.Errorf("%w: rejecting callback", shared.ErrStateMismatch))
		return
	}

	if res.ErrCode != "" {
		logger.Warnf("provider denied authorization %v", res.ErrCode)
		session.settle(nil, fmt.Errorf("%w: %s", shared.ErrProviderDenied, res.ErrCode))
		return
	}

	c.phase.Store(int32(Resolving))

	ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
	defer cancel()

	rec, err := c.exchanger.ExchangeCode(ctx, res.Code, session.Verifier)
	if err != nil {
		logger.Errorf("code exchange failed %v", err)
		session.settle(nil, err)
		return
	}

	if err := c.tokens.Save(ctx, rec); err != nil {
		logger.Errorf("failed to persist tokens %v", err)
		session.settle(nil, err)
		return
	}

	logger.Info("authorization complete", "expires_at", rec.ExpiresAt.Format(time.RFC3339))

	session.settle(rec, nil)
}
