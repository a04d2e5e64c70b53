package service

import (
	"context"
	"time"

	"github.com/keygate/passport/internal/model"
	"github.com/keygate/passport/internal/utils"

	"github.com/rs/zerolog/log"
)

type AuthCodeServiceConfig struct {
	CodeExpiry int // seconds
}

// AuthCodeService issues one-time authorization codes and exchanges them
// for token pairs. Consumption is a single atomic GETDEL claim on the
// store, so N concurrent exchanges of the same code have exactly one
// winner and a consumed code can never be re-claimed.
type AuthCodeService struct {
	Config  AuthCodeServiceConfig
	Store   *StoreService
	Clients *ClientService
	Tokens  *TokenService
}

func NewAuthCodeService(config AuthCodeServiceConfig, store *StoreService, clients *ClientService, tokens *TokenService) *AuthCodeService {
	return &AuthCodeService{
		Config:  config,
		Store:   store,
		Clients: clients,
		Tokens:  tokens,
	}
}

func (ac *AuthCodeService) Init() error {
	if ac.Config.CodeExpiry <= 0 {
		ac.Config.CodeExpiry = 600
	}
	return nil
}

func (ac *AuthCodeService) codeKey(code string) string {
	return ac.Store.Key("code", code)
}

func (ac *AuthCodeService) codeTTL() time.Duration {
	return time.Duration(ac.Config.CodeExpiry) * time.Second
}

// Issue validates the client and redirect URI and persists a fresh unused
// code. The redirect URI must exactly match a registered one.
func (ac *AuthCodeService) Issue(ctx context.Context, client *model.Client, userID int64, redirectURI string, scope string, state string) (string, error) {
	if !client.Enabled {
		return "", ErrClientInvalid
	}
	if err := ac.Clients.ValidateRedirectURI(client, redirectURI); err != nil {
		return "", err
	}
	if err := ac.Clients.ValidateScope(client, scope); err != nil {
		return "", err
	}

	now := time.Now()
	record := model.AuthorizationCode{
		Code:        utils.GenerateRandomString(32),
		ClientKey:   client.Key,
		UserID:      userID,
		RedirectURI: redirectURI,
		Scope:       scope,
		State:       state,
		ExpiresAt:   now.Add(ac.codeTTL()).Unix(),
		CreatedAt:   now.Unix(),
	}

	// The key lives for twice the code expiry so an unconsumed code that
	// expired is still distinguishable from one that never existed.
	if err := ac.Store.SetJSON(ctx, ac.codeKey(record.Code), record, 2*ac.codeTTL()); err != nil {
		log.Error().Err(err).Msg("Failed to store authorization code")
		return "", ErrSystemError
	}

	return record.Code, nil
}

// Exchange consumes a code for a fresh token pair. Validation reads the
// record without claiming it, so a redirect mismatch does not burn the
// code; the claim itself is a GETDEL, which hands the record to exactly
// one caller and leaves nothing behind to re-claim. A concurrent loser
// fails CodeAlreadyUsed, a later replay fails CodeInvalid.
func (ac *AuthCodeService) Exchange(ctx context.Context, code string, redirectURI string, client *model.Client, meta RequestMeta) (*TokenPair, string, error) {
	key := ac.codeKey(code)

	var record model.AuthorizationCode
	found, err := ac.Store.GetJSON(ctx, key, &record)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load authorization code")
		return nil, "", ErrSystemError
	}
	if !found {
		return nil, "", ErrCodeInvalid
	}

	if record.ClientKey != client.Key {
		return nil, "", ErrCodeInvalid
	}
	if record.ExpiresAt <= time.Now().Unix() {
		return nil, "", ErrCodeExpired
	}
	if record.RedirectURI != redirectURI {
		return nil, "", ErrRedirectMismatch
	}

	var claimed model.AuthorizationCode
	won, err := ac.Store.ConsumeJSON(ctx, key, &claimed)
	if err != nil {
		log.Error().Err(err).Msg("Failed to consume authorization code")
		return nil, "", ErrSystemError
	}
	if !won {
		log.Warn().Str("clientKey", client.Key).Msg("Authorization code replayed")
		return nil, "", ErrCodeAlreadyUsed
	}

	pair, err := ac.Tokens.IssuePair(ctx, client, claimed.UserID, claimed.Scope, meta)
	if err != nil {
		return nil, "", err
	}

	return pair, claimed.Scope, nil
}
