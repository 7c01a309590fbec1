package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/desertthunder/tempo/internal/shared"
)

// fakeRefresher returns a canned record or error and counts calls.
type fakeRefresher struct {
	rec   *TokenRecord
	err   error
	calls int
	seen  string
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*TokenRecord, error) {
	f.calls++
	f.seen = refreshToken
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.rec
	return &cp, nil
}

func newTestTokens(t *testing.T, opts TokensOpts) (*Tokens, *MemoryStore) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	s := NewMemoryStore()
	return NewTokens(s, opts), s
}

func TestTokenRecord(t *testing.T) {
	now := time.Now()

	t.Run("Complete", func(t *testing.T) {
		tests := []struct {
			name string
			rec  *TokenRecord
			want bool
		}{
			{"Nil", nil, false},
			{"Full", &TokenRecord{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: now}, true},
			{"No Refresh Token", &TokenRecord{AccessToken: "AT", ExpiresAt: now}, true},
			{"Missing Access Token", &TokenRecord{RefreshToken: "RT", ExpiresAt: now}, false},
			{"Missing Expiry", &TokenRecord{AccessToken: "AT", RefreshToken: "RT"}, false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := tt.rec.Complete(); got != tt.want {
					t.Errorf("Complete() = %v, want %v", got, tt.want)
				}
			})
		}
	})

	t.Run("ExpiresWithin", func(t *testing.T) {
		rec := &TokenRecord{ExpiresAt: now.Add(5 * time.Minute)}

		if rec.ExpiresWithin(now, time.Minute) {
			t.Error("token with 5m left should not be within a 1m buffer")
		}
		if !rec.ExpiresWithin(now, 10*time.Minute) {
			t.Error("token with 5m left should be within a 10m buffer")
		}
	})
}

func TestTokensSaveLoad(t *testing.T) {
	t.Run("Roundtrip", func(t *testing.T) {
		tokens, _ := newTestTokens(t, TokensOpts{})

		expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		rec := &TokenRecord{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: expiresAt}

		if err := tokens.Save(t.Context(), rec); err != nil {
			t.Fatalf("failed to save record: %v", err)
		}

		loaded, err := tokens.Load(t.Context())
		if err != nil {
			t.Fatalf("failed to load record: %v", err)
		}

		if loaded.AccessToken != "AT" || loaded.RefreshToken != "RT" {
			t.Errorf("unexpected record %+v", loaded)
		}
		if !loaded.ExpiresAt.Equal(expiresAt) {
			t.Errorf("expiry changed across persistence: got %v, want %v", loaded.ExpiresAt, expiresAt)
		}
	})

	t.Run("Incomplete Record Rejected", func(t *testing.T) {
		tokens, _ := newTestTokens(t, TokensOpts{})

		err := tokens.Save(t.Context(), &TokenRecord{AccessToken: "AT"})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		if _, err := tokens.Load(t.Context()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Error("rejected save must leave the store empty")
		}
	})

	t.Run("Empty Store Reads As Not Authenticated", func(t *testing.T) {
		tokens, _ := newTestTokens(t, TokensOpts{})

		if _, err := tokens.Load(t.Context()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Partial Record Reads As Absent", func(t *testing.T) {
		tokens, s := newTestTokens(t, TokensOpts{})

		// Violate the all-or-nothing invariant directly in the store
		if err := s.Set(t.Context(), KeyAccessToken, "AT"); err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}

		if _, err := tokens.Load(t.Context()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Malformed Expiry Reads As Absent", func(t *testing.T) {
		tokens, s := newTestTokens(t, TokensOpts{})

		s.Set(t.Context(), KeyAccessToken, "AT")
		s.Set(t.Context(), KeyExpiresAt, "not-a-timestamp")

		if _, err := tokens.Load(t.Context()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		tokens, _ := newTestTokens(t, TokensOpts{})

		rec := &TokenRecord{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: time.Now().Add(time.Hour)}
		if err := tokens.Save(t.Context(), rec); err != nil {
			t.Fatalf("failed to save record: %v", err)
		}

		if err := tokens.Clear(t.Context()); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}
		if _, err := tokens.Load(t.Context()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Error("clear must leave the store empty")
		}

		// Clearing an empty store is a no-op
		if err := tokens.Clear(t.Context()); err != nil {
			t.Errorf("clearing an empty store failed: %v", err)
		}
	})
}

func TestTokensAccessToken(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	clock := func() time.Time { return now }

	t.Run("Fresh Token Returned Without Refresh", func(t *testing.T) {
		fr := &fakeRefresher{}
		tokens, _ := newTestTokens(t, TokensOpts{Refresher: fr, Now: clock})

		rec := &TokenRecord{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: now.Add(10 * time.Minute)}
		if err := tokens.Save(t.Context(), rec); err != nil {
			t.Fatalf("failed to save record: %v", err)
		}

		got, err := tokens.AccessToken(t.Context())
		if err != nil {
			t.Fatalf("failed to get access token: %v", err)
		}
		if got != "AT" {
			t.Errorf("access token = %q", got)
		}
		if fr.calls != 0 {
			t.Errorf("token outside the buffer must not refresh, saw %d calls", fr.calls)
		}

		if !tokens.IsValid(t.Context()) {
			t.Error("expected IsValid to report true")
		}
	})

	t.Run("Token Inside Buffer Triggers Refresh", func(t *testing.T) {
		fr := &fakeRefresher{
			rec: &TokenRecord{AccessToken: "AT2", RefreshToken: "RT2", ExpiresAt: now.Add(time.Hour)},
		}
		tokens, _ := newTestTokens(t, TokensOpts{Refresher: fr, Now: clock})

		rec := &TokenRecord{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: now.Add(time.Minute)}
		if err := tokens.Save(t.Context(), rec); err != nil {
			t.Fatalf("failed to save record: %v", err)
		}

		got, err := tokens.AccessToken(t.Context())
		if err != nil {
			t.Fatalf("failed to get access token: %v", err)
		}
		if got != "AT2" {
			t.Errorf("expected refreshed token, got %q", got)
		}
		if fr.calls != 1 || fr.seen != "RT" {
			t.Errorf("expected one refresh with RT, got %d calls with %q", fr.calls, fr.seen)
		}

		// The renewed record is persisted
		loaded, err := tokens.Load(t.Context())
		if err != nil {
			t.Fatalf("failed to load renewed record: %v", err)
		}
		if loaded.AccessToken != "AT2" || loaded.RefreshToken != "RT2" {
			t.Errorf("renewed record not persisted, got %+v", loaded)
		}
	})

	t.Run("Omitted Refresh Token Is Retained", func(t *testing.T) {
		fr := &fakeRefresher{
			rec: &TokenRecord{AccessToken: "AT2", ExpiresAt: now.Add(time.Hour)},
		}
		tokens, _ := newTestTokens(t, TokensOpts{Refresher: fr, Now: clock})

		rec := &TokenRecord{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: now.Add(time.Minute)}
		if err := tokens.Save(t.Context(), rec); err != nil {
			t.Fatalf("failed to save record: %v", err)
		}

		if _, err := tokens.AccessToken(t.Context()); err != nil {
			t.Fatalf("failed to refresh: %v", err)
		}

		loaded, err := tokens.Load(t.Context())
		if err != nil {
			t.Fatalf("failed to load renewed record: %v", err)
		}
		if loaded.RefreshToken != "RT" {
			t.Errorf("expected retained refresh token RT, got %q", loaded.RefreshToken)
		}
	})

	t.Run("Refresh Failure Surfaces", func(t *testing.T) {
		fr := &fakeRefresher{err: errors.New("provider down")}
		tokens, _ := newTestTokens(t, TokensOpts{Refresher: fr, Now: clock})

		rec := &TokenRecord{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: now.Add(time.Minute)}
		if err := tokens.Save(t.Context(), rec); err != nil {
			t.Fatalf("failed to save record: %v", err)
		}

		if _, err := tokens.AccessToken(t.Context()); !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
		if tokens.IsValid(t.Context()) {
			t.Error("expected IsValid to report false after refresh failure")
		}
	})

	t.Run("No Refresh Token", func(t *testing.T) {
		tokens, _ := newTestTokens(t, TokensOpts{Refresher: &fakeRefresher{}, Now: clock})

		rec := &TokenRecord{AccessToken: "AT", ExpiresAt: now.Add(time.Minute)}
		if err := tokens.Save(t.Context(), rec); err != nil {
			t.Fatalf("failed to save record: %v", err)
		}

		if _, err := tokens.AccessToken(t.Context()); !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})

	t.Run("No Refresher Configured", func(t *testing.T) {
		tokens, _ := newTestTokens(t, TokensOpts{Now: clock})

		rec := &TokenRecord{AccessToken: "AT", RefreshToken: "RT", ExpiresAt: now.Add(time.Minute)}
		if err := tokens.Save(t.Context(), rec); err != nil {
			t.Fatalf("failed to save record: %v", err)
		}

		if _, err := tokens.AccessToken(t.Context()); !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
	})

	t.Run("Expired Without Stored Record", func(t *testing.T) {
		tokens, _ := newTestTokens(t, TokensOpts{Now: clock})

		if _, err := tokens.AccessToken(t.Context()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if tokens.IsValid(t.Context()) {
			t.Error("expected IsValid to report false on an empty store")
		}
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()

	if _, err := s.Get(t.Context(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.Set(t.Context(), "k", "v1"); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if err := s.Set(t.Context(), "k", "v2"); err != nil {
		t.Fatalf("failed to overwrite: %v", err)
	}

	got, err := s.Get(t.Context(), "k")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got != "v2" {
		t.Errorf("expected overwritten value, got %q", got)
	}

	if err := s.Delete(t.Context(), "k"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, err := s.Get(t.Context(), "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting an absent key is a no-op
	if err := s.Delete(t.Context(), "k"); err != nil {
		t.Errorf("deleting absent key failed: %v", err)
	}
}
