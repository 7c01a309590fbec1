package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tempo/internal/shared"
	"github.com/desertthunder/tempo/internal/ui"
	"github.com/urfave/cli/v3"
)

// AuthLogin runs the full authorization flow: loopback listener, browser
// consent, code exchange, and token persistence.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	d, err := r.buildDeps(config)
	if err != nil {
		return err
	}
	defer d.close()

	if cmd.Bool("interactive") {
		return r.authLoginInteractive(ctx, d)
	}

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	r.writePlain("→ Waiting for authorization (%v timeout)...\n\n", config.Timeout())

	rec, err := d.coordinator.Authenticate(ctx)
	if err != nil {
		r.writePlainln("✗ %s", friendlyAuthError(err))
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Access token valid until %s\n", rec.ExpiresAt.Local().Format(time.RFC1123))

	if profile, err := d.spotify.Profile(ctx); err == nil {
		r.writePlain("✓ Logged in as %s\n", displayName(profile.DisplayName, profile.ID))
	} else {
		r.logger.Warnf("failed to fetch profile after login %v", err)
	}

	return nil
}

// authLoginInteractive runs the same flow behind a spinner view.
func (r *Runner) authLoginInteractive(ctx context.Context, d *deps) error {
	// Redirect logs to file to avoid interfering with the render
	fileLogger, err := shared.NewFileLogger("./tmp/tempo-auth.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	model := ui.NewLoginModel(ctx, d.coordinator)
	p := tea.NewProgram(model)

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("error running login view: %w", err)
	}

	login, ok := final.(ui.LoginModel)
	if !ok {
		return fmt.Errorf("unexpected final model type")
	}

	if _, resultErr := login.Result(); resultErr != nil {
		return fmt.Errorf("%s: %w", friendlyAuthError(resultErr), resultErr)
	}

	return nil
}

// AuthStatus reports whether a usable token exists and who it belongs to.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	d, err := r.buildDeps(config)
	if err != nil {
		return err
	}
	defer d.close()

	rec, err := d.tokens.Load(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			r.writePlain("✗ Not authenticated\nRun: tempo auth login\n")
			return nil
		}
		return err
	}

	if !d.tokens.IsValid(ctx) {
		r.writePlain("✗ Stored token expired and refresh failed\nRun: tempo auth login\n")
		return nil
	}

	r.writePlain("✓ Authenticated\n")
	r.writePlain("Token expires: %s\n", rec.ExpiresAt.Local().Format(time.RFC1123))

	if profile, err := d.spotify.Profile(ctx); err == nil {
		r.writePlain("Account: %s\n", displayName(profile.DisplayName, profile.ID))
		if profile.Product != "" {
			r.writePlain("Plan: %s\n", profile.Product)
		}
	} else {
		r.logger.Warnf("failed to fetch profile %v", err)
	}

	return nil
}

// AuthRefresh forces a token refresh regardless of remaining lifetime.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	d, err := r.buildDeps(config)
	if err != nil {
		return err
	}
	defer d.close()

	rec, err := d.tokens.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: nothing to refresh", shared.ErrNotAuthenticated)
	}

	if rec.RefreshToken == "" {
		return shared.ErrNoRefreshToken
	}

	renewed, err := d.exchanger.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		return err
	}

	if renewed.RefreshToken == "" {
		renewed.RefreshToken = rec.RefreshToken
	}

	if err := d.tokens.Save(ctx, renewed); err != nil {
		return err
	}

	r.writePlainln("✓ Token refreshed")
	r.writePlain("✓ Access token valid until %s\n", renewed.ExpiresAt.Local().Format(time.RFC1123))

	return nil
}

// AuthLogout clears all stored tokens.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	d, err := r.buildDeps(config)
	if err != nil {
		return err
	}
	defer d.close()

	if err := d.tokens.Clear(ctx); err != nil {
		return err
	}

	r.writePlainln("✓ Logged out")

	return nil
}

// friendlyAuthError maps the failure taxonomy to one actionable message each.
// Raw token material never reaches this function.
func friendlyAuthError(err error) string {
	switch {
	case errors.Is(err, shared.ErrPortInUse):
		return "The callback port is already in use. Close the other process using it (or a previous tempo login) and try again."
	case errors.Is(err, shared.ErrStateMismatch):
		return "The authorization response failed a security check and was rejected. Try logging in again."
	case errors.Is(err, shared.ErrProviderDenied):
		return "Spotify denied the authorization. If you cancelled by accident, try logging in again."
	case errors.Is(err, shared.ErrExchangeFailed):
		return "Exchanging the authorization code failed. Check that the redirect URI in config.toml matches the one registered with Spotify."
	case errors.Is(err, shared.ErrTimeout):
		return "Timed out waiting for authorization. Try logging in again."
	case errors.Is(err, shared.ErrRefreshFailed):
		return "Refreshing the session failed. Run: tempo auth login"
	case errors.Is(err, shared.ErrAuthInProgress):
		return "Another authorization attempt is already running."
	case errors.Is(err, context.Canceled):
		return "Authorization cancelled."
	default:
		return "Authorization failed. Try again."
	}
}

// displayName prefers the profile display name, falling back to the user ID.
func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
