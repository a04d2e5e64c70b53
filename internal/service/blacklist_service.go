package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// BlacklistService is the explicit revocation list. It is consulted before
// trusting an otherwise-valid token and becomes irrelevant again once the
// token would have expired naturally.
type BlacklistService struct {
	Store *StoreService
}

func NewBlacklistService(store *StoreService) *BlacklistService {
	return &BlacklistService{
		Store: store,
	}
}

func (bs *BlacklistService) Init() error {
	return nil
}

// Blacklist marks a token as revoked. The marker TTL is clamped to the
// token's remaining natural lifetime so the list never outlives the token.
func (bs *BlacklistService) Blacklist(ctx context.Context, token string, ttl time.Duration, naturalExpiry time.Time) error {
	remaining := time.Until(naturalExpiry)
	if remaining <= 0 {
		return nil
	}
	if ttl <= 0 || ttl > remaining {
		ttl = remaining
	}

	err := bs.Store.Client().Set(ctx, bs.Store.Key("blacklist", token), "1", ttl).Err()
	if err != nil {
		log.Error().Err(err).Msg("Failed to blacklist token")
		return ErrSystemError
	}
	return nil
}

func (bs *BlacklistService) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	exists, err := bs.Store.Exists(ctx, bs.Store.Key("blacklist", token))
	if err != nil {
		log.Error().Err(err).Msg("Failed to check blacklist")
		return false, ErrSystemError
	}
	return exists, nil
}
