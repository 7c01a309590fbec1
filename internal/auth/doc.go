// Package auth implements the OAuth 2.0 Authorization Code + PKCE flow against
// Spotify, without a client secret.
//
// The [Coordinator] owns the single in-flight attempt: it mints a
// [PendingSession] (PKCE verifier, anti-CSRF state, one-shot result channel),
// runs the loopback listener from the server package, opens the authorize URL,
// and blocks the caller until the redirect lands, the five-minute timeout
// fires, or the caller's context is cancelled. The redirect handler and the
// timeout race to settle the session; settlement is at-most-once and the
// losing writer is a no-op. Every exit path stops the listener.
//
// The [Exchanger] performs the direct token-endpoint calls: authorization code
// for token pair (with the PKCE verifier), and refresh-token renewal (without
// it). Expiries are absolute, computed when the provider response is received.
package auth
