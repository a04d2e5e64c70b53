package service

import (
	"context"
	"time"

	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/model"
	"github.com/keygate/passport/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TokenService issues, validates and revokes the opaque access and refresh
// tokens. Records live in the shared store keyed by the token string so any
// replica can resolve them in one round-trip.
type TokenService struct {
	Store     *StoreService
	Clients   *ClientService
	Blacklist *BlacklistService
	Risk      *RiskService
}

func NewTokenService(store *StoreService, clients *ClientService, blacklist *BlacklistService, risk *RiskService) *TokenService {
	return &TokenService{
		Store:     store,
		Clients:   clients,
		Blacklist: blacklist,
		Risk:      risk,
	}
}

func (ts *TokenService) Init() error {
	return nil
}

type TokenPair struct {
	AccessToken  *model.Token
	RefreshToken *model.Token
}

func (ts *TokenService) accessKey(token string) string {
	return ts.Store.Key("access", token)
}

func (ts *TokenService) refreshKey(token string) string {
	return ts.Store.Key("refresh", token)
}

func (ts *TokenService) newToken(tokenType string, userID int64, client *model.Client, scope string, ttl time.Duration) *model.Token {
	now := time.Now()
	return &model.Token{
		ID:        uuid.New().String(),
		Token:     utils.GenerateRandomString(32),
		Type:      tokenType,
		UserID:    userID,
		ClientKey: client.Key,
		Scope:     scope,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
}

func (ts *TokenService) record(input RecordEventInput) {
	if _, err := ts.Risk.RecordEvent(input); err != nil {
		log.Warn().Err(err).Str("event", input.EventType).Msg("Failed to record token event")
	}
}

// IssuePair issues a fresh access and refresh token pair.
func (ts *TokenService) IssuePair(ctx context.Context, client *model.Client, userID int64, scope string, meta RequestMeta) (*TokenPair, error) {
	access := ts.newToken(config.TokenTypeAccess, userID, client, scope, ts.Clients.AccessTokenTTL(client))
	refresh := ts.newToken(config.TokenTypeRefresh, userID, client, scope, ts.Clients.RefreshTokenTTL(client))

	if err := ts.Store.SetJSON(ctx, ts.accessKey(access.Token), access, ts.Clients.AccessTokenTTL(client)); err != nil {
		log.Error().Err(err).Msg("Failed to store access token")
		return nil, ErrSystemError
	}
	if err := ts.Store.SetJSON(ctx, ts.refreshKey(refresh.Token), refresh, ts.Clients.RefreshTokenTTL(client)); err != nil {
		log.Error().Err(err).Msg("Failed to store refresh token")
		return nil, ErrSystemError
	}

	ts.record(RecordEventInput{TokenID: access.ID, TokenType: access.Type, EventType: config.EventCreate, UserID: userID, ClientKey: client.Key, Meta: meta})
	ts.record(RecordEventInput{TokenID: refresh.ID, TokenType: refresh.Type, EventType: config.EventCreate, UserID: userID, ClientKey: client.Key, Meta: meta})

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueClientToken issues an access token for the client-credentials grant.
// No user is attached.
func (ts *TokenService) IssueClientToken(ctx context.Context, client *model.Client, scope string, meta RequestMeta) (*model.Token, error) {
	access := ts.newToken(config.TokenTypeAccess, 0, client, scope, ts.Clients.AccessTokenTTL(client))

	if err := ts.Store.SetJSON(ctx, ts.accessKey(access.Token), access, ts.Clients.AccessTokenTTL(client)); err != nil {
		log.Error().Err(err).Msg("Failed to store access token")
		return nil, ErrSystemError
	}

	ts.record(RecordEventInput{TokenID: access.ID, TokenType: access.Type, EventType: config.EventCreate, ClientKey: client.Key, Meta: meta})
	return access, nil
}

// Refresh rotates the refresh token: the new pair is written before the old
// refresh token is deleted, so a crash mid-rotation costs a re-login rather
// than resurrecting a stale token. Replaying the old token fails.
func (ts *TokenService) Refresh(ctx context.Context, refreshToken string, client *model.Client, meta RequestMeta) (*TokenPair, error) {
	var record model.Token
	found, err := ts.Store.GetJSON(ctx, ts.refreshKey(refreshToken), &record)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load refresh token")
		return nil, ErrSystemError
	}
	if !found || record.ClientKey != client.Key {
		return nil, ErrTokenInvalid
	}
	if record.ExpiresAt <= time.Now().Unix() {
		ts.record(RecordEventInput{TokenID: record.ID, TokenType: record.Type, EventType: config.EventExpire, UserID: record.UserID, ClientKey: client.Key, Meta: meta})
		return nil, ErrTokenInvalid
	}

	pair, err := ts.IssuePair(ctx, client, record.UserID, record.Scope, meta)
	if err != nil {
		return nil, err
	}

	if err := ts.Store.Delete(ctx, ts.refreshKey(refreshToken)); err != nil {
		log.Error().Err(err).Msg("Failed to delete rotated refresh token")
		return nil, ErrSystemError
	}

	ts.record(RecordEventInput{TokenID: record.ID, TokenType: record.Type, EventType: config.EventRefresh, UserID: record.UserID, ClientKey: client.Key, Meta: meta})
	return pair, nil
}

// Revoke deletes any access or refresh entry matching the token and marks
// revoked access tokens on the blacklist. Idempotent: unknown tokens
// succeed.
func (ts *TokenService) Revoke(ctx context.Context, token string, hint string, client *model.Client, meta RequestMeta) error {
	keys := []string{ts.accessKey(token), ts.refreshKey(token)}
	if hint == config.TokenTypeRefresh {
		keys = []string{ts.refreshKey(token), ts.accessKey(token)}
	}

	for _, key := range keys {
		var record model.Token
		found, err := ts.Store.GetJSON(ctx, key, &record)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load token for revocation")
			return ErrSystemError
		}
		if !found || record.ClientKey != client.Key {
			continue
		}

		if err := ts.Store.Delete(ctx, key); err != nil {
			log.Error().Err(err).Msg("Failed to delete revoked token")
			return ErrSystemError
		}

		if record.Type == config.TokenTypeAccess {
			expiry := time.Unix(record.ExpiresAt, 0)
			if err := ts.Blacklist.Blacklist(ctx, record.Token, 0, expiry); err != nil {
				return err
			}
		}

		ts.record(RecordEventInput{TokenID: record.ID, TokenType: record.Type, EventType: config.EventRevoke, UserID: record.UserID, ClientKey: client.Key, Meta: meta})
	}

	return nil
}

// ValidateAccess resolves an access token, rejecting blacklisted and
// expired entries. Validation does not consume the token.
func (ts *TokenService) ValidateAccess(ctx context.Context, token string, meta RequestMeta) (*model.Token, error) {
	blacklisted, err := ts.Blacklist.IsBlacklisted(ctx, token)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, ErrTokenInvalid
	}

	var record model.Token
	found, err := ts.Store.GetJSON(ctx, ts.accessKey(token), &record)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load access token")
		return nil, ErrSystemError
	}
	if !found {
		return nil, ErrTokenInvalid
	}
	if record.ExpiresAt <= time.Now().Unix() {
		ts.record(RecordEventInput{TokenID: record.ID, TokenType: record.Type, EventType: config.EventExpire, UserID: record.UserID, ClientKey: record.ClientKey, Meta: meta})
		return nil, ErrTokenInvalid
	}

	ts.record(RecordEventInput{TokenID: record.ID, TokenType: record.Type, EventType: config.EventUse, UserID: record.UserID, ClientKey: record.ClientKey, Meta: meta})
	return &record, nil
}
