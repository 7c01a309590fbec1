package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/desertthunder/tempo/internal/shared"
	"github.com/desertthunder/tempo/internal/store"
	"golang.org/x/oauth2"
)

// Exchanger trades authorization codes and refresh tokens for [store.TokenRecord]s
// against the provider's token endpoint.
//
// PKCE means no client secret is ever sent; the code grant carries the verifier
// instead, and refresh grants carry neither.
type Exchanger struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// ExchangerOpts configures an [Exchanger].
type ExchangerOpts struct {
	ClientID    string
	RedirectURI string
	Scopes      []string
	AuthURL     string
	TokenURL    string
	// HTTPClient overrides the client used for token endpoint calls. Tests
	// point this at a local stub server.
	HTTPClient *http.Client
}

// NewExchanger creates an exchanger for the given provider endpoints.
func NewExchanger(opts ExchangerOpts) (*Exchanger, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("%w: client_id is required", shared.ErrMissingCredentials)
	}
	if opts.RedirectURI == "" {
		return nil, fmt.Errorf("%w: redirect URI is required", shared.ErrInvalidConfig)
	}

	return &Exchanger{
		httpClient: opts.HTTPClient,
		config: &oauth2.Config{
			ClientID:    opts.ClientID,
			RedirectURL: opts.RedirectURI,
			Scopes:      opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}, nil
}

// AuthorizeURL builds the provider authorize URL carrying the PKCE challenge
// and the state token.
func (e *Exchanger) AuthorizeURL(state, verifier string) string {
	return e.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("code_challenge", DeriveChallenge(verifier)),
	)
}

// ExchangeCode trades an authorization code for tokens, proving possession of
// the PKCE verifier. The expiry is absolute, computed when the response lands.
func (e *Exchanger) ExchangeCode(ctx context.Context, code, verifier string) (*store.TokenRecord, error) {
	token, err := e.config.Exchange(e.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, wrapRetrieveError(shared.ErrExchangeFailed, err)
	}

	return recordFromToken(token), nil
}

// Refresh renews tokens from a refresh token. Callers are responsible for
// retaining the previous refresh token when the provider omits a new one.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (*store.TokenRecord, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	src := e.config.TokenSource(e.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, wrapRetrieveError(shared.ErrRefreshFailed, err)
	}

	rec := recordFromToken(token)
	if rec.RefreshToken == refreshToken {
		// oauth2 echoes the input token back when the provider omitted one;
		// report that as absent so the caller's retention rule stays explicit.
		rec.RefreshToken = ""
	}

	return rec, nil
}

// clientContext threads the override HTTP client into the oauth2 machinery.
func (e *Exchanger) clientContext(ctx context.Context) context.Context {
	if e.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

// recordFromToken converts an oauth2 token, whose Expiry was already computed
// from expires_in at response time, into a store record.
func recordFromToken(token *oauth2.Token) *store.TokenRecord {
	return &store.TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
}

// wrapRetrieveError maps an oauth2 failure to a sentinel, keeping the provider
// status and body for diagnostics. Token values never pass through here: the
// token endpoint only returns them on success.
func wrapRetrieveError(sentinel error, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: provider returned status %d: %s",
			sentinel, retrieveErr.Response.StatusCode, string(retrieveErr.Body))
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
