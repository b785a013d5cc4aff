package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/internal/config"
	"github.com/qlozet/stylefeed/pkg/models"
)

const tokenIssuer = "stylefeed"

var (
	errInvalidAPIKey   = errors.New("invalid API key")
	errSessionRevoked  = errors.New("session revoked or expired")
	errMissingSubject  = errors.New("token has no user")
	errSigningDisabled = errors.New("jwt secret not configured")
)

// AuthService issues and checks HS256 session tokens for shoppers and maps
// partner API keys to rate-limit tiers. When Redis is available the latest
// token per user is recorded so that issuing a new one or revoking ends the
// previous session.
type AuthService struct {
	secret   []byte
	ttl      time.Duration
	apiKeys  map[string]string
	sessions *redis.Client
	parser   *jwt.Parser
	logger   *logrus.Logger
	now      func() time.Time
}

func NewAuthService(cfg config.AuthConfig, logger *logrus.Logger, sessions *redis.Client) *AuthService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &AuthService{
		secret:   []byte(cfg.JWTSecret),
		ttl:      ttl,
		apiKeys:  cfg.APIKeys,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s
}

// IssueToken signs a session token for a shopper on the given tier.
func (s *AuthService) IssueToken(ctx context.Context, userID, tier string) (string, error) {
	if len(s.secret) == 0 {
		return "", errSigningDisabled
	}
	if userID == "" {
		return "", errMissingSubject
	}

	now := s.now()
	claims := &models.JWTClaims{
		UserID:   userID,
		UserTier: tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	if s.sessions != nil {
		if err := s.sessions.Set(ctx, sessionKey(userID), signed, s.ttl).Err(); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to record session")
		}
	}
	return signed, nil
}

// ValidateToken verifies signature, issuer and expiry. With a session store
// the token must also be the user's current one; store errors are logged and
// the token is accepted on its signature alone.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*models.JWTClaims, error) {
	if len(s.secret) == 0 {
		return nil, errSigningDisabled
	}

	claims := &models.JWTClaims{}
	if _, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.UserID == "" {
		return nil, errMissingSubject
	}

	if s.sessions == nil {
		return claims, nil
	}
	current, err := s.sessions.Get(ctx, sessionKey(claims.UserID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, errSessionRevoked
	case err != nil:
		s.logger.WithError(err).Warn("Session lookup failed, trusting token signature")
	case subtle.ConstantTimeCompare([]byte(current), []byte(token)) != 1:
		return nil, errSessionRevoked
	}
	return claims, nil
}

// RevokeToken ends the user's current session.
func (s *AuthService) RevokeToken(ctx context.Context, userID string) error {
	if s.sessions == nil {
		return nil
	}
	if err := s.sessions.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// ValidateAPIKey maps a configured partner key to its rate-limit tier.
func (s *AuthService) ValidateAPIKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", errInvalidAPIKey
	}
	for key, tier := range s.apiKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return tier, nil
		}
	}
	return "", errInvalidAPIKey
}

func sessionKey(userID string) string {
	return "session:" + userID
}
