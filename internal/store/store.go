package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tempo/internal/shared"
)

// Secret names used in the [SecureStore].
const (
	KeyAccessToken  = "spotify.access_token"
	KeyRefreshToken = "spotify.refresh_token"
	KeyExpiresAt    = "spotify.expires_at"
)

// ExpiryBuffer is how close to expiry an access token may get before it is
// treated as stale and refreshed.
const ExpiryBuffer = 5 * time.Minute

// ErrNotFound indicates the requested secret is absent from the store.
var ErrNotFound = fmt.Errorf("secret not found")

// SecureStore is the opaque key/value contract for credential persistence.
//
// Implementations must treat values as secrets: never log them and never
// include them in errors.
type SecureStore interface {
	Get(ctx context.Context, key string) (string, error) // Get returns the value for key, or [ErrNotFound]
	Set(ctx context.Context, key, value string) error    // Set writes the value for key, replacing any prior value
	Delete(ctx context.Context, key string) error        // Delete removes key; deleting an absent key is a no-op
}

// TokenRecord is a complete set of provider tokens with an absolute expiry.
//
// A record is either fully absent or has both AccessToken and ExpiresAt set;
// RefreshToken may be empty when the provider withheld one.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Complete reports whether the record satisfies the presence invariant.
func (r *TokenRecord) Complete() bool {
	return r != nil && r.AccessToken != "" && !r.ExpiresAt.IsZero()
}

// ExpiresWithin reports whether the record expires before now+d.
func (r *TokenRecord) ExpiresWithin(now time.Time, d time.Duration) bool {
	return r.ExpiresAt.Before(now.Add(d))
}

// Refresher renews a token record from a refresh token.
//
// Implemented by the token exchanger; injected here so the store package stays
// independent of the auth flow.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenRecord, error)
}

// Tokens adapts a [SecureStore] into the token lifecycle: persistence, expiry
// tracking, and refresh-on-demand.
type Tokens struct {
	mu        sync.Mutex
	store     SecureStore
	refresher Refresher
	buffer    time.Duration
	now       func() time.Time
	logger    *log.Logger
}

// TokensOpts contains optional settings for [NewTokens].
type TokensOpts struct {
	Refresher Refresher
	Buffer    time.Duration
	Now       func() time.Time
	Logger    *log.Logger
}

// NewTokens creates a token lifecycle adapter over the given store.
func NewTokens(s SecureStore, opts TokensOpts) *Tokens {
	if opts.Buffer <= 0 {
		opts.Buffer = ExpiryBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Tokens{
		store:     s,
		refresher: opts.Refresher,
		buffer:    opts.Buffer,
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

// SetRefresher installs the refresher after construction.
//
// The coordinator and the exchanger are built after the store, so the wiring
// happens in two steps.
func (t *Tokens) SetRefresher(r Refresher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refresher = r
}

// Save persists a complete token record. Partial records are rejected to
// preserve the all-or-nothing invariant.
func (t *Tokens) Save(ctx context.Context, rec *TokenRecord) error {
	if !rec.Complete() {
		return fmt.Errorf("%w: token record missing access token or expiry", shared.ErrInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.save(ctx, rec)
}

func (t *Tokens) save(ctx context.Context, rec *TokenRecord) error {
	if err := t.store.Set(ctx, KeyAccessToken, rec.AccessToken); err != nil {
		return fmt.Errorf("failed to persist access token: %w", err)
	}

	if err := t.store.Set(ctx, KeyExpiresAt, rec.ExpiresAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to persist token expiry: %w", err)
	}

	if rec.RefreshToken != "" {
		if err := t.store.Set(ctx, KeyRefreshToken, rec.RefreshToken); err != nil {
			return fmt.Errorf("failed to persist refresh token: %w", err)
		}
	}

	return nil
}

// Load reads the persisted token record.
//
// Returns [shared.ErrNotAuthenticated] when no complete record exists; a
// partial record (violated invariant) is treated the same as an absent one.
func (t *Tokens) Load(ctx context.Context) (*TokenRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ctx)
}

func (t *Tokens) load(ctx context.Context) (*TokenRecord, error) {
	access, err := t.getOptional(ctx, KeyAccessToken)
	if err != nil {
		return nil, err
	}

	expiresRaw, err := t.getOptional(ctx, KeyExpiresAt)
	if err != nil {
		return nil, err
	}

	if access == "" || expiresRaw == "" {
		return nil, shared.ErrNotAuthenticated
	}

	expiresAt, err := time.Parse(time.RFC3339, expiresRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: stored expiry is malformed", shared.ErrNotAuthenticated)
	}

	refresh, err := t.getOptional(ctx, KeyRefreshToken)
	if err != nil {
		return nil, err
	}

	return &TokenRecord{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

func (t *Tokens) getOptional(ctx context.Context, key string) (string, error) {
	value, err := t.store.Get(ctx, key)
	if err != nil {
		if err == ErrNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to read secure store: %w", err)
	}
	return value, nil
}

// Clear removes all persisted tokens.
func (t *Tokens) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyExpiresAt} {
		if err := t.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to clear secure store: %w", err)
		}
	}

	return nil
}

// IsValid reports whether a usable access token is available.
//
// A token expiring more than the buffer from now is valid outright. A token
// inside the buffer triggers a refresh attempt, and the refresh outcome is
// returned instead. Absent tokens, or refresh failure, report false.
func (t *Tokens) IsValid(ctx context.Context) bool {
	_, err := t.AccessToken(ctx)
	return err == nil
}

// AccessToken returns an access token that is safe to use, refreshing first
// when the stored one is within the expiry buffer.
func (t *Tokens) AccessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.load(ctx)
	if err != nil {
		return "", err
	}

	if !rec.ExpiresWithin(t.now(), t.buffer) {
		return rec.AccessToken, nil
	}

	renewed, err := t.refresh(ctx, rec)
	if err != nil {
		return "", err
	}

	return renewed.AccessToken, nil
}

// refresh renews rec and persists the result. Caller holds t.mu.
func (t *Tokens) refresh(ctx context.Context, rec *TokenRecord) (*TokenRecord, error) {
	if rec.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, shared.ErrNoRefreshToken)
	}
	if t.refresher == nil {
		return nil, fmt.Errorf("%w: no refresher configured", shared.ErrRefreshFailed)
	}

	t.logger.Debug("access token near expiry, refreshing")

	renewed, err := t.refresher.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	// Spotify may omit the refresh token on renewal; keep the previous one.
	if renewed.RefreshToken == "" {
		renewed.RefreshToken = rec.RefreshToken
	}

	if err := t.save(ctx, renewed); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	t.logger.Info("access token refreshed", "expires_at", renewed.ExpiresAt.Format(time.RFC3339))

	return renewed, nil
}
