package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-oidc"
	"golang.org/x/sync/singleflight"

	"github.com/usefloww/floww-backend/internal/config"
)

// Provider resolves identity-provider metadata: the expected issuer claim
// and the location of the provider's public key set. Implementations must be
// safe for concurrent use; variant selection happens once at construction,
// never by runtime type inspection.
type Provider interface {
	Issuer(ctx context.Context) (string, error)
	JWKSURL(ctx context.Context) (string, error)
}

// NewProvider selects the provider implementation from configuration.
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.Auth.Provider {
	case "oidc":
		return NewOIDCProvider(cfg.Auth.IssuerURL), nil
	case "workos":
		return NewWorkOSProvider(cfg.Auth.APIURL, cfg.Auth.ClientID), nil
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Auth.Provider)
	}
}

// OIDCProvider resolves metadata through standard OIDC discovery
// (/.well-known/openid-configuration). Discovery runs lazily on first use and
// the document is cached for the process lifetime; concurrent first callers
// share a single fetch.
type OIDCProvider struct {
	issuerURL string

	group singleflight.Group
	mu    sync.RWMutex
	meta  *providerMetadata
}

type providerMetadata struct {
	issuer  string
	jwksURL string
}

// NewOIDCProvider creates a provider for the given issuer URL.
func NewOIDCProvider(issuerURL string) *OIDCProvider {
	return &OIDCProvider{issuerURL: issuerURL}
}

// Issuer returns the expected "iss" claim value.
func (p *OIDCProvider) Issuer(ctx context.Context) (string, error) {
	meta, err := p.metadata(ctx)
	if err != nil {
		return "", err
	}
	return meta.issuer, nil
}

// JWKSURL returns the jwks_uri from the discovery document.
func (p *OIDCProvider) JWKSURL(ctx context.Context) (string, error) {
	meta, err := p.metadata(ctx)
	if err != nil {
		return "", err
	}
	return meta.jwksURL, nil
}

func (p *OIDCProvider) metadata(ctx context.Context) (*providerMetadata, error) {
	p.mu.RLock()
	meta := p.meta
	p.mu.RUnlock()
	if meta != nil {
		return meta, nil
	}

	v, err, _ := p.group.Do("discovery", func() (interface{}, error) {
		provider, err := oidc.NewProvider(ctx, p.issuerURL)
		if err != nil {
			return nil, fmt.Errorf("%w: oidc discovery: %v", ErrProviderUnavailable, err)
		}

		var doc struct {
			Issuer  string `json:"issuer"`
			JWKSURI string `json:"jwks_uri"`
		}
		if err := provider.Claims(&doc); err != nil {
			return nil, fmt.Errorf("%w: oidc discovery claims: %v", ErrProviderUnavailable, err)
		}
		if doc.JWKSURI == "" {
			return nil, fmt.Errorf("%w: discovery document has no jwks_uri", ErrProviderUnavailable)
		}
		if doc.Issuer == "" {
			doc.Issuer = p.issuerURL
		}

		meta := &providerMetadata{issuer: doc.Issuer, jwksURL: doc.JWKSURI}
		p.mu.Lock()
		p.meta = meta
		p.mu.Unlock()
		return meta, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*providerMetadata), nil
}

// WorkOSProvider resolves metadata for WorkOS AuthKit, whose endpoints are
// derived from the API base URL and client id rather than discovered.
type WorkOSProvider struct {
	apiURL   string
	clientID string
}

// NewWorkOSProvider creates a provider for a WorkOS AuthKit tenant.
func NewWorkOSProvider(apiURL, clientID string) *WorkOSProvider {
	return &WorkOSProvider{apiURL: apiURL, clientID: clientID}
}

// Issuer returns the WorkOS user-management issuer for the client.
func (p *WorkOSProvider) Issuer(ctx context.Context) (string, error) {
	return fmt.Sprintf("%s/user_management/%s", p.apiURL, p.clientID), nil
}

// JWKSURL returns the per-client SSO key-set endpoint.
func (p *WorkOSProvider) JWKSURL(ctx context.Context) (string, error) {
	return fmt.Sprintf("%s/sso/jwks/%s", p.apiURL, p.clientID), nil
}
