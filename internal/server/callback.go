package server

import (
	"fmt"
	"html"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tempo/internal/shared"
)

// Result is the transient value parsed from the redirect query: an
// authorization code or a provider error code, plus the round-tripped state.
//
// Consumed exactly once by the coordinator; never persisted.
type Result struct {
	Code    string
	ErrCode string
	State   string
}

// CallbackHandler serves the single /callback route of the loopback listener.
//
// A successful redirect renders a self-contained success page immediately and
// fires the hand-off after a short delay, so the page can paint before the
// initiating process resumes. Provider errors render an error page (the error
// code is HTML-escaped) and hand off without delay. The hand-off target treats
// the result as untrusted input and re-validates state itself.
type CallbackHandler struct {
	sink   func(Result)
	delay  time.Duration
	logger *log.Logger

	mu          sync.Mutex
	callbackHit bool
}

// NewCallbackHandler creates a handler that forwards parsed callbacks to sink.
func NewCallbackHandler(sink func(Result), delay time.Duration, logger *log.Logger) *CallbackHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &CallbackHandler{
		sink:   sink,
		delay:  delay,
		logger: logger,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"/callback"}
}

// ServeHTTP handles the provider redirect.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only handle the callback once per listener lifetime
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	code := query.Get("code")
	errCode := query.Get("error")
	state := query.Get("state")

	if code == "" && errCode == "" {
		h.mu.Unlock()
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	h.callbackHit = true
	h.mu.Unlock()

	result := Result{Code: code, ErrCode: errCode, State: state}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	if errCode != "" {
		h.logger.Debugf("provider redirected with error %v", errCode)
		fmt.Fprintf(w, errorPage, html.EscapeString(errCode))
		h.handoff(result, 0)
		return
	}

	h.logger.Debug("provider redirected with authorization code")
	fmt.Fprint(w, successPage)
	h.handoff(result, h.delay)
}

// handoff delivers the result to the sink out-of-band from the HTTP response.
func (h *CallbackHandler) handoff(result Result, delay time.Duration) {
	if h.sink == nil {
		return
	}

	if delay <= 0 {
		go h.sink(result)
		return
	}

	time.AfterFunc(delay, func() { h.sink(result) })
}

// Self-contained result pages, no external assets.
const successPage = `<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Authorization Successful</h1>
        <p>You can close this window and return to tempo.</p>
    </div>
</body>
</html>
`

const errorPage = `<!DOCTYPE html>
<html>
<head>
    <title>Authorization Failed</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #E22134; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
        code { background: #f0f0f0; padding: 0.2rem 0.4rem; border-radius: 4px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✗ Authorization Failed</h1>
        <p>Spotify reported: <code>%s</code></p>
        <p>You can close this window and try again from tempo.</p>
    </div>
</body>
</html>
`
