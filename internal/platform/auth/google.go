package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GoogleIssuer is the issuer Google stamps into its ID tokens.
const GoogleIssuer = "https://accounts.google.com"

// OIDCProvider represents an OpenID Connect provider discovered via the
// .well-known/openid-configuration endpoint.
type OIDCProvider struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	UserinfoEndpoint      string   `json:"userinfo_endpoint"`
	JWKSURI               string   `json:"jwks_uri"`
	ScopesSupported       []string `json:"scopes_supported"`
}

// NewOIDCProvider fetches and parses the OpenID Connect discovery document
// from the given issuer URL. It constructs the well-known URL by appending
// /.well-known/openid-configuration to the issuer.
func NewOIDCProvider(issuerURL string) (*OIDCProvider, error) {
	issuerURL = strings.TrimRight(issuerURL, "/")
	discoveryURL := issuerURL + "/.well-known/openid-configuration"

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(discoveryURL)
	if err != nil {
		return nil, fmt.Errorf("fetching OIDC discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OIDC discovery endpoint returned status %d", resp.StatusCode)
	}

	var provider OIDCProvider
	if err := json.NewDecoder(resp.Body).Decode(&provider); err != nil {
		return nil, fmt.Errorf("decoding OIDC discovery document: %w", err)
	}

	if provider.JWKSURI == "" {
		return nil, fmt.Errorf("OIDC discovery document missing jwks_uri")
	}

	return &provider, nil
}

// SupportsScope returns true if the provider advertises support for the
// given scope.
func (p *OIDCProvider) SupportsScope(scope string) bool {
	for _, s := range p.ScopesSupported {
		if s == scope {
			return true
		}
	}
	return false
}

// GoogleProfile is the subset of ID token claims the service cares about.
type GoogleProfile struct {
	Subject    string
	Email      string
	GivenName  string
	FamilyName string
	Picture    string
}

type googleIDClaims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
}

// GoogleClient exchanges authorization codes with Google and verifies the
// resulting ID tokens against Google's published signing keys.
type GoogleClient struct {
	clientID     string
	clientSecret string
	redirectURL  string
	provider     *OIDCProvider
	jwks         *JWKSCache
	httpClient   *http.Client
}

// NewGoogleClient discovers Google's OIDC endpoints and returns a client
// ready to run the authorization code flow.
func NewGoogleClient(clientID, clientSecret, redirectURL string) (*GoogleClient, error) {
	provider, err := NewOIDCProvider(GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("discover google endpoints: %w", err)
	}
	return newGoogleClient(clientID, clientSecret, redirectURL, provider), nil
}

func newGoogleClient(clientID, clientSecret, redirectURL string, provider *OIDCProvider) *GoogleClient {
	return &GoogleClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		provider:     provider,
		jwks:         NewJWKSCache(provider.JWKSURI, defaultJWKSCacheTTL),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthCodeURL returns the Google consent page URL for the given state nonce.
func (g *GoogleClient) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", g.clientID)
	q.Set("redirect_uri", g.redirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	return g.provider.AuthorizationEndpoint + "?" + q.Encode()
}

// Exchange trades an authorization code for tokens and returns the verified
// profile from the ID token.
func (g *GoogleClient) Exchange(ctx context.Context, code string) (*GoogleProfile, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)
	form.Set("redirect_uri", g.redirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.provider.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if body.IDToken == "" {
		return nil, fmt.Errorf("token response missing id_token")
	}

	return g.verifyIDToken(body.IDToken)
}

func (g *GoogleClient) verifyIDToken(idToken string) (*GoogleProfile, error) {
	claims := &googleIDClaims{}
	token, err := jwt.ParseWithClaims(idToken, claims, jwksKeyFunc(g.jwks),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(g.provider.Issuer),
		jwt.WithAudience(g.clientID),
	)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid id token")
	}

	return &GoogleProfile{
		Subject:    claims.Subject,
		Email:      claims.Email,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		Picture:    claims.Picture,
	}, nil
}
