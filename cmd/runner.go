package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tempo/internal/auth"
	"github.com/desertthunder/tempo/internal/services"
	"github.com/desertthunder/tempo/internal/shared"
	"github.com/desertthunder/tempo/internal/store"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger swaps the runner's logger, used when a TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// loadConfig resolves configuration for a command: the runner's config if one
// was injected, otherwise the file named by the --config flag, otherwise defaults.
func (r *Runner) loadConfig(cmd *cli.Command) *shared.Config {
	if r.config != nil {
		return r.config
	}

	configPath := cmd.String("config")
	if _, err := os.Stat(configPath); err == nil {
		config, err := shared.LoadConfig(configPath)
		if err == nil {
			return config
		}
		r.logger.Warnf("failed to load config, using defaults %v", err)
	}

	return shared.DefaultConfig()
}

// deps bundles the wired auth subsystem for one command invocation.
type deps struct {
	tokens      *store.Tokens
	exchanger   *auth.Exchanger
	coordinator *auth.Coordinator
	spotify     *services.SpotifyService
	close       func() error
}

// buildDeps wires the secure store, token lifecycle, exchanger, and
// coordinator from configuration.
func (r *Runner) buildDeps(config *shared.Config) (*deps, error) {
	if config.Credentials.Spotify.ClientID == "" || config.Credentials.Spotify.ClientID == "your_spotify_client_id" {
		return nil, fmt.Errorf("%w: Spotify client_id must be set in config.toml", shared.ErrMissingCredentials)
	}

	sqlite, err := store.NewSQLiteStore(config.Store.Path, config.Store.MaxOpenConns, config.Store.MaxIdleConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	tokens := store.NewTokens(sqlite, store.TokensOpts{Logger: r.logger})

	exchanger, err := auth.NewExchanger(auth.ExchangerOpts{
		ClientID:    config.Credentials.Spotify.ClientID,
		RedirectURI: config.RedirectURI(),
		Scopes:      services.SpotifyScopes,
		AuthURL:     services.SpotifyAuthURL,
		TokenURL:    services.SpotifyTokenURL,
		HTTPClient:  r.httpClient,
	})
	if err != nil {
		sqlite.Close()
		return nil, err
	}

	tokens.SetRefresher(exchanger)

	coordinator := auth.NewCoordinator(auth.CoordinatorOpts{
		Exchanger:    exchanger,
		Tokens:       tokens,
		Host:         config.Server.Host,
		Port:         config.Server.Port,
		Timeout:      config.Timeout(),
		HandoffDelay: config.HandoffDelay(),
		Logger:       r.logger,
		OnAuthURL: func(url string) {
			r.writePlain("If the browser does not open, visit:\n%s\n\n", url)
		},
	})

	return &deps{
		tokens:      tokens,
		exchanger:   exchanger,
		coordinator: coordinator,
		spotify:     services.NewSpotifyService(tokens, r.httpClient),
		close:       sqlite.Close,
	}, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
