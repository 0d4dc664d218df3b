package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkOSProvider_Endpoints(t *testing.T) {
	p := NewWorkOSProvider("https://api.workos.com", "client_123")

	issuer, err := p.Issuer(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "https://api.workos.com/user_management/client_123", issuer)

	jwksURL, err := p.JWKSURL(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "https://api.workos.com/sso/jwks/client_123", jwksURL)
}

func TestOIDCProvider_Discovery(t *testing.T) {
	var issuerURL string
	fetches := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"issuer":%q,"jwks_uri":%q,"authorization_endpoint":%q,"token_endpoint":%q}`,
			issuerURL, issuerURL+"/keys", issuerURL+"/auth", issuerURL+"/token")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	issuerURL = srv.URL

	p := NewOIDCProvider(srv.URL)

	issuer, err := p.Issuer(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, srv.URL, issuer)

	jwksURL, err := p.JWKSURL(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, srv.URL+"/keys", jwksURL)

	assert.Equal(t, 1, fetches, "discovery document is cached after first use")
}

func TestOIDCProvider_DiscoveryUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	p := NewOIDCProvider(srv.URL)
	_, err := p.Issuer(context.Background())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}
