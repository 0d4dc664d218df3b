package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/usefloww/floww-backend/pkg/models"
)

// ChannelTokenTTL bounds every issued token: expiry is always issued-at plus
// exactly this window, with no renewal and no revocation before expiry.
const ChannelTokenTTL = 30 * time.Minute

// channelClaims binds a token to exactly one channel.
type channelClaims struct {
	Channel string `json:"channel"`
	jwt.RegisteredClaims
}

// ChannelTokenService mints short-lived HMAC-signed tokens scoping a single
// client to a single workflow channel, for deployments where clients connect
// to the broker directly instead of through the connect/subscribe proxies.
// Tokens are never persisted; verification is signature plus expiry.
type ChannelTokenService struct {
	access AccessChecker
	secret []byte
	now    func() time.Time
}

// NewChannelTokenService creates a token service signing with the shared
// secret known only to the backend and the broker.
func NewChannelTokenService(access AccessChecker, secret string) *ChannelTokenService {
	return &ChannelTokenService{
		access: access,
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Issue mints a token for (user, workflow) after an access-policy check.
// Denied access returns ErrForbidden: this boundary serves the backend's own
// authenticated API, so an explicit denial leaks nothing new.
func (s *ChannelTokenService) Issue(ctx context.Context, user *models.User, workflowID string) (*models.ChannelToken, error) {
	allowed, err := s.access.CanAccessWorkflow(ctx, user, workflowID)
	if err != nil {
		return nil, fmt.Errorf("check channel access: %w", err)
	}
	if !allowed {
		return nil, ErrForbidden
	}

	channel := models.ChannelForWorkflow(workflowID)
	issuedAt := s.now()
	expiresAt := issuedAt.Add(ChannelTokenTTL)

	claims := channelClaims{
		Channel: channel.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign channel token: %w", err)
	}

	return &models.ChannelToken{
		Token:     signed,
		Channel:   channel,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks a token's signature and expiry and returns the subject and
// the single channel it authorizes. It requires no state beyond the shared
// secret and the current time.
func (s *ChannelTokenService) Verify(token string) (subject string, channel models.ChannelName, err error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &channelClaims{}
	_, err = parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidChannelToken, err)
	}

	if _, ok := models.ParseChannel(claims.Channel); !ok {
		return "", "", fmt.Errorf("%w: malformed channel binding", ErrInvalidChannelToken)
	}
	if claims.Subject == "" {
		return "", "", fmt.Errorf("%w: missing subject", ErrInvalidChannelToken)
	}

	return claims.Subject, models.ChannelName(claims.Channel), nil
}
