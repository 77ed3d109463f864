package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrTokenRevoked is returned when a refresh token was already used or
// logged out.
var ErrTokenRevoked = errors.New("refresh token revoked")

const refreshKeyPrefix = "guide:refresh:"

// Service issues token pairs and tracks live refresh token ids in Redis.
type Service struct {
	jwt   *JWTManager
	redis redis.Cmdable
}

func NewService(jwt *JWTManager, client redis.Cmdable) *Service {
	return &Service{jwt: jwt, redis: client}
}

func refreshKey(userID, tokenID string) string {
	return refreshKeyPrefix + userID + ":" + tokenID
}

func (s *Service) GenerateTokens(ctx context.Context, userID, email string) (*TokenPair, error) {
	pair, tokenID, err := s.jwt.GenerateTokenPair(userID, email)
	if err != nil {
		return nil, err
	}

	if err := s.redis.Set(ctx, refreshKey(userID, tokenID), "1", s.jwt.RefreshExpiry()).Err(); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}
	return pair, nil
}

// RefreshTokens rotates a refresh token. Each refresh token is usable once:
// the DEL result decides which of two concurrent refreshes wins.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	deleted, err := s.redis.Del(ctx, refreshKey(claims.UserID, claims.TokenID)).Result()
	if err != nil {
		return nil, fmt.Errorf("revoking refresh token: %w", err)
	}
	if deleted == 0 {
		return nil, ErrTokenRevoked
	}

	return s.GenerateTokens(ctx, claims.UserID, claims.Email)
}

// Logout revokes every refresh token of the user.
func (s *Service) Logout(ctx context.Context, userID string) error {
	iter := s.redis.Scan(ctx, 0, refreshKeyPrefix+userID+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning refresh tokens: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("deleting refresh tokens: %w", err)
	}
	return nil
}

func (s *Service) ValidateAccessToken(token string) (*AccessClaims, error) {
	return s.jwt.ValidateAccessToken(token)
}
