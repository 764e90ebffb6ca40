package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"immich-service/config"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

var (
	ErrOAuthDisabled = errors.New("oauth is not enabled")
	ErrInvalidState  = errors.New("invalid oauth state")
	ErrOAuthDenied   = errors.New("oauth login was denied by the provider")
	ErrOAuthProfile  = errors.New("oauth profile is missing an email")
)

// OAuthProfile is the subset of the provider's userinfo we act on
type OAuthProfile struct {
	Subject    string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

type providerMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
}

type stateClaims struct {
	RedirectURI string `json:"redirect_uri"`
	jwt.RegisteredClaims
}

// OAuthProvider talks to one OpenID Connect provider
type OAuthProvider struct {
	cfg    config.OAuthConfig
	client *resty.Client

	mu       sync.Mutex
	metadata *providerMetadata
}

// NewOAuthProvider creates a provider; discovery happens lazily on first use
func NewOAuthProvider(cfg config.OAuthConfig, client *resty.Client) *OAuthProvider {
	if client == nil {
		client = resty.New().SetTimeout(10 * time.Second)
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	return &OAuthProvider{cfg: cfg, client: client}
}

// Enabled reports whether OAuth login is configured
func (p *OAuthProvider) Enabled() bool {
	return p != nil && p.cfg.Enabled
}

// Config exposes the provider settings (button text, auto launch, ...)
func (p *OAuthProvider) Config() config.OAuthConfig {
	return p.cfg
}

// discover fetches and memoizes the provider's openid-configuration
func (p *OAuthProvider) discover(ctx context.Context) (*providerMetadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.metadata != nil {
		return p.metadata, nil
	}

	var meta providerMetadata
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&meta).
		Get(p.cfg.IssuerURL + "/.well-known/openid-configuration")
	if err != nil {
		return nil, fmt.Errorf("oauth discovery: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("oauth discovery failed: status=%d", resp.StatusCode())
	}
	if meta.AuthorizationEndpoint == "" || meta.TokenEndpoint == "" {
		return nil, fmt.Errorf("oauth discovery: provider metadata is incomplete")
	}

	p.metadata = &meta
	return p.metadata, nil
}

func (p *OAuthProvider) oauth2Config(meta *providerMetadata, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  meta.AuthorizationEndpoint,
			TokenURL: meta.TokenEndpoint,
		},
		RedirectURL: redirectURI,
		Scopes:      strings.Fields(p.cfg.Scope),
	}
}

// AuthorizeURL builds the provider login URL. The redirect URI travels inside a
// signed state so the callback can be checked without server-side storage.
func (p *OAuthProvider) AuthorizeURL(ctx context.Context, redirectURI string) (string, error) {
	if !p.Enabled() {
		return "", ErrOAuthDisabled
	}

	meta, err := p.discover(ctx)
	if err != nil {
		return "", err
	}

	state, err := p.signState(redirectURI)
	if err != nil {
		return "", err
	}

	return p.oauth2Config(meta, redirectURI).AuthCodeURL(state), nil
}

// Callback completes the handshake for the URL the provider redirected to and
// returns the user's profile
func (p *OAuthProvider) Callback(ctx context.Context, callbackURL string) (*OAuthProfile, error) {
	if !p.Enabled() {
		return nil, ErrOAuthDisabled
	}

	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("parse callback url: %w", err)
	}
	query := u.Query()
	if query.Get("error") != "" {
		return nil, fmt.Errorf("%w: %s", ErrOAuthDenied, query.Get("error"))
	}

	code := query.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrInvalidState)
	}

	redirectURI, err := p.verifyState(query.Get("state"))
	if err != nil {
		return nil, err
	}

	meta, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, p.client.GetClient())
	token, err := p.oauth2Config(meta, redirectURI).Exchange(exchangeCtx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth code exchange: %w", err)
	}

	var profile OAuthProfile
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetHeader("Accept", "application/json").
		SetResult(&profile).
		Get(meta.UserinfoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("oauth userinfo: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("oauth userinfo failed: status=%d", resp.StatusCode())
	}
	if profile.Email == "" {
		return nil, ErrOAuthProfile
	}

	return &profile, nil
}

// LogoutRedirect is where the browser goes after logging out of an OAuth session
func (p *OAuthProvider) LogoutRedirect(ctx context.Context) string {
	if !p.Enabled() {
		return LoginRedirect
	}
	meta, err := p.discover(ctx)
	if err != nil || meta.EndSessionEndpoint == "" {
		return LoginRedirect
	}
	return meta.EndSessionEndpoint
}

// LoginRedirect is the default post-logout location
const LoginRedirect = "/auth/login?autoLaunch=0"

func (p *OAuthProvider) signState(redirectURI string) (string, error) {
	now := time.Now()
	claims := stateClaims{
		RedirectURI: redirectURI,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.cfg.StateTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.cfg.StateSecret))
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return signed, nil
}

func (p *OAuthProvider) verifyState(state string) (string, error) {
	if state == "" {
		return "", fmt.Errorf("%w: missing state", ErrInvalidState)
	}

	claims := &stateClaims{}
	token, err := jwt.ParseWithClaims(state, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(p.cfg.StateSecret), nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	return claims.RedirectURI, nil
}
