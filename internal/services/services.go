// package services defines interface Service for interacting with HTTP APIs
package services

import "context"

// TokenSource supplies a usable access token, refreshing behind the scenes
// when the stored one is near expiry.
//
// Satisfied by [store.Tokens].
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Service defines the minimal surface a music provider exposes to tempo.
//
// Playback control (play/pause/next, device selection) lives in the host
// application; this process only proves the authentication works.
type Service interface {
	// Profile retrieves the authenticated user's profile.
	Profile(ctx context.Context) (*User, error)

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// User represents a provider user profile.
type User struct {
	ID          string
	DisplayName string
	Email       string
	Country     string
	Product     string
}
