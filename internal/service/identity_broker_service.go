package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/model"
	"github.com/keygate/passport/internal/utils"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Outbound provider calls are bounded; a timeout surfaces as
// ErrProviderUnavailable and the browser flow restarts from authorization.
const providerTimeout = 10 * time.Second

const stateExpiry = 10 * time.Minute
const pendingBindExpiry = 30 * time.Minute

// IdentityProvider is the capability set every federated provider
// implements. Providers are selected via the broker's lookup table, never
// by string switches at call sites.
type IdentityProvider interface {
	Init() error
	Name() string
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*model.ProviderToken, error)
	FetchProfile(ctx context.Context, token *model.ProviderToken) (*config.FederatedProfile, error)
	RefreshToken(ctx context.Context, token *model.ProviderToken) (*model.ProviderToken, error)
}

type IdentityBrokerServiceConfig struct {
	Providers map[string]config.IdentityProviderConfig
}

// IdentityBrokerService federates login through external identity
// providers: CSRF state bookkeeping, account resolution and binding.
type IdentityBrokerService struct {
	Config    IdentityBrokerServiceConfig
	Store     *StoreService
	Database  *gorm.DB
	Users     *UserService
	providers map[string]IdentityProvider
}

func NewIdentityBrokerService(config IdentityBrokerServiceConfig, store *StoreService, database *gorm.DB, users *UserService) *IdentityBrokerService {
	return &IdentityBrokerService{
		Config:    config,
		Store:     store,
		Database:  database,
		Users:     users,
		providers: make(map[string]IdentityProvider),
	}
}

func (broker *IdentityBrokerService) Init() error {
	for name, cfg := range broker.Config.Providers {
		switch name {
		case "github":
			broker.providers[name] = NewGithubIdentityService(cfg)
		case "google":
			broker.providers[name] = NewGoogleIdentityService(cfg)
		case "wechat":
			broker.providers[name] = NewWechatIdentityService(cfg, broker.Store)
		default:
			log.Warn().Str("provider", name).Msg("Unknown identity provider, skipping")
			continue
		}
	}

	for name, provider := range broker.providers {
		if err := provider.Init(); err != nil {
			log.Error().Err(err).Str("provider", name).Msg("Failed to initialize identity provider")
			return err
		}
		log.Info().Str("provider", name).Msg("Initialized identity provider")
	}

	return nil
}

func (broker *IdentityBrokerService) GetProvider(name string) (IdentityProvider, bool) {
	provider, exists := broker.providers[name]
	return provider, exists
}

func (broker *IdentityBrokerService) stateKey(state string) string {
	return broker.Store.Key("fed", "state", state)
}

func (broker *IdentityBrokerService) pendingKey(code string) string {
	return broker.Store.Key("fed", "pending", code)
}

func (broker *IdentityBrokerService) providerTokenKey(userID int64, provider string) string {
	return broker.Store.Key("fed", "token", strconv.FormatInt(userID, 10), provider)
}

// BeginAuthorization generates the CSRF state, stores it one-shot and
// returns the provider redirect URL.
func (broker *IdentityBrokerService) BeginAuthorization(ctx context.Context, providerName string, redirectURI string) (string, error) {
	provider, exists := broker.providers[providerName]
	if !exists {
		return "", ErrProviderError
	}

	record := model.FederatedState{
		State:       utils.GenerateRandomString(32),
		Provider:    providerName,
		RedirectURI: redirectURI,
		CreatedAt:   time.Now().Unix(),
	}

	if err := broker.Store.SetJSON(ctx, broker.stateKey(record.State), record, stateExpiry); err != nil {
		log.Error().Err(err).Msg("Failed to store federated state")
		return "", ErrSystemError
	}

	return provider.AuthorizationURL(record.State), nil
}

// consumeState removes the state record exactly once. Replays and unknown
// states fail ProviderStateInvalid.
func (broker *IdentityBrokerService) consumeState(ctx context.Context, providerName string, state string) (*model.FederatedState, error) {
	if state == "" {
		return nil, ErrProviderStateInvalid
	}

	var record model.FederatedState
	found, err := broker.Store.ConsumeJSON(ctx, broker.stateKey(state), &record)
	if err != nil {
		log.Error().Err(err).Msg("Failed to consume federated state")
		return nil, ErrSystemError
	}
	if !found || record.Provider != providerName {
		return nil, ErrProviderStateInvalid
	}
	return &record, nil
}

type CallbackOutcome string

const (
	OutcomeLogin    CallbackOutcome = "login"
	OutcomeNeedBind CallbackOutcome = "need_bind"
)

type CallbackResult struct {
	Outcome     CallbackOutcome
	User        *model.User
	Profile     *config.FederatedProfile
	BindCode    string
	RedirectURI string
}

// HandleCallback consumes the state, exchanges the code and resolves the
// account: existing link logs in directly, a matching email yields a
// pending bind (no auto-merge), anything else auto-provisions.
func (broker *IdentityBrokerService) HandleCallback(ctx context.Context, providerName string, code string, state string) (*CallbackResult, error) {
	provider, exists := broker.providers[providerName]
	if !exists {
		return nil, ErrProviderError
	}

	stateRecord, err := broker.consumeState(ctx, providerName, state)
	if err != nil {
		return nil, err
	}

	token, err := provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	profile, err := provider.FetchProfile(ctx, token)
	if err != nil {
		return nil, err
	}

	// (a) Existing link: log in directly and refresh the cached tokens.
	var link model.FederatedLink
	err = broker.Database.Where("provider = ? AND subject = ?", providerName, profile.Subject).First(&link).Error
	if err == nil {
		user, userErr := broker.Users.GetByID(link.UserID)
		if userErr != nil {
			return nil, userErr
		}
		broker.updateLinkTokens(&link, token)
		broker.cacheProviderToken(ctx, link.UserID, token)
		return &CallbackResult{Outcome: OutcomeLogin, User: user, Profile: profile, RedirectURI: stateRecord.RedirectURI}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Error().Err(err).Msg("Failed to look up federated link")
		return nil, ErrSystemError
	}

	// (b) Known email: require explicit binding, never auto-merge.
	if profile.Email != "" {
		existing, emailErr := broker.Users.GetByEmail(profile.Email)
		if emailErr == nil {
			pending := model.PendingBind{
				Code:         utils.GenerateRandomString(32),
				Provider:     providerName,
				Subject:      profile.Subject,
				OpenID:       profile.OpenID,
				UnionID:      profile.UnionID,
				Email:        profile.Email,
				Name:         profile.Name,
				UserID:       existing.ID,
				AccessToken:  token.AccessToken,
				RefreshToken: token.RefreshToken,
				ExpiresAt:    time.Now().Add(pendingBindExpiry).Unix(),
			}

			if err := broker.Store.SetJSON(ctx, broker.pendingKey(pending.Code), pending, pendingBindExpiry); err != nil {
				log.Error().Err(err).Msg("Failed to store pending bind")
				return nil, ErrSystemError
			}

			return &CallbackResult{Outcome: OutcomeNeedBind, Profile: profile, BindCode: pending.Code, RedirectURI: stateRecord.RedirectURI}, nil
		}
		if !errors.Is(emailErr, gorm.ErrRecordNotFound) {
			log.Error().Err(emailErr).Msg("Failed to look up user by email")
			return nil, ErrSystemError
		}
	}

	// (c) Auto-provision a fresh account and link it.
	user, err := broker.Users.Provision(ProvisionProfile{
		Provider: providerName,
		Username: profile.Username,
		Email:    profile.Email,
		Name:     profile.Name,
	})
	if err != nil {
		return nil, err
	}

	if err := broker.createLink(user.ID, profile, token); err != nil {
		return nil, err
	}

	broker.cacheProviderToken(ctx, user.ID, token)
	return &CallbackResult{Outcome: OutcomeLogin, User: user, Profile: profile, RedirectURI: stateRecord.RedirectURI}, nil
}

// Bind persists the link from a pending record and clears the transient
// caches that carried it.
func (broker *IdentityBrokerService) Bind(ctx context.Context, userID int64, providerName string, bindCode string) (*model.FederatedLink, error) {
	var pending model.PendingBind
	found, err := broker.Store.ConsumeJSON(ctx, broker.pendingKey(bindCode), &pending)
	if err != nil {
		log.Error().Err(err).Msg("Failed to consume pending bind")
		return nil, ErrSystemError
	}
	if !found || pending.Provider != providerName || pending.ExpiresAt <= time.Now().Unix() {
		return nil, ErrCodeInvalid
	}
	if pending.UserID != userID {
		return nil, ErrForbidden
	}

	profile := config.FederatedProfile{
		Provider: pending.Provider,
		Subject:  pending.Subject,
		OpenID:   pending.OpenID,
		UnionID:  pending.UnionID,
		Email:    pending.Email,
		Name:     pending.Name,
	}

	if err := broker.createLink(userID, &profile, &model.ProviderToken{
		Provider:     pending.Provider,
		AccessToken:  pending.AccessToken,
		RefreshToken: pending.RefreshToken,
	}); err != nil {
		return nil, err
	}

	var link model.FederatedLink
	if err := broker.Database.Where("user_id = ? AND provider = ?", userID, providerName).First(&link).Error; err != nil {
		return nil, ErrSystemError
	}

	log.Info().Int64("userId", userID).Str("provider", providerName).Msg("Federated identity bound")
	return &link, nil
}

// Unbind deletes the link only; the local account is untouched.
func (broker *IdentityBrokerService) Unbind(ctx context.Context, userID int64, providerName string) error {
	result := broker.Database.Where("user_id = ? AND provider = ?", userID, providerName).Delete(&model.FederatedLink{})
	if result.Error != nil {
		log.Error().Err(result.Error).Msg("Failed to delete federated link")
		return ErrSystemError
	}
	if result.RowsAffected == 0 {
		return ErrNotLoggedIn
	}

	if err := broker.Store.Delete(ctx, broker.providerTokenKey(userID, providerName)); err != nil {
		log.Warn().Err(err).Msg("Failed to drop cached provider token")
	}

	return nil
}

func (broker *IdentityBrokerService) Links(userID int64) ([]model.FederatedLink, error) {
	var links []model.FederatedLink
	if err := broker.Database.Where("user_id = ?", userID).Find(&links).Error; err != nil {
		log.Error().Err(err).Msg("Failed to list federated links")
		return nil, ErrSystemError
	}
	return links, nil
}

// RefreshProviderToken refreshes the stored provider tokens for a linked
// identity through the provider endpoint.
func (broker *IdentityBrokerService) RefreshProviderToken(ctx context.Context, userID int64, providerName string) (*model.ProviderToken, error) {
	provider, exists := broker.providers[providerName]
	if !exists {
		return nil, ErrProviderError
	}

	var link model.FederatedLink
	err := broker.Database.Where("user_id = ? AND provider = ?", userID, providerName).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, ErrSystemError
	}

	fresh, err := provider.RefreshToken(ctx, &model.ProviderToken{
		Provider:     providerName,
		AccessToken:  link.AccessToken,
		RefreshToken: link.RefreshToken,
		OpenID:       link.OpenID,
		UnionID:      link.UnionID,
	})
	if err != nil {
		return nil, err
	}

	broker.updateLinkTokens(&link, fresh)
	broker.cacheProviderToken(ctx, userID, fresh)
	return fresh, nil
}

func (broker *IdentityBrokerService) createLink(userID int64, profile *config.FederatedProfile, token *model.ProviderToken) error {
	now := time.Now().Unix()
	link := model.FederatedLink{
		UserID:         userID,
		Provider:       profile.Provider,
		Subject:        profile.Subject,
		OpenID:         profile.OpenID,
		UnionID:        profile.UnionID,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: token.ExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := broker.Database.Create(&link).Error; err != nil {
		log.Error().Err(err).Str("provider", profile.Provider).Msg("Failed to create federated link")
		return ErrAccountConflict
	}
	return nil
}

func (broker *IdentityBrokerService) updateLinkTokens(link *model.FederatedLink, token *model.ProviderToken) {
	updates := map[string]any{
		"access_token":     token.AccessToken,
		"refresh_token":    token.RefreshToken,
		"token_expires_at": token.ExpiresAt,
		"updated_at":       time.Now().Unix(),
	}
	if err := broker.Database.Model(link).Updates(updates).Error; err != nil {
		log.Warn().Err(err).Msg("Failed to update link tokens")
	}
}

func (broker *IdentityBrokerService) cacheProviderToken(ctx context.Context, userID int64, token *model.ProviderToken) {
	ttl := time.Until(time.Unix(token.ExpiresAt, 0))
	if token.ExpiresAt == 0 {
		ttl = pendingBindExpiry
	}
	if ttl <= 0 {
		return
	}
	if err := broker.Store.SetJSON(ctx, broker.providerTokenKey(userID, token.Provider), token, ttl); err != nil {
		log.Warn().Err(err).Msg("Failed to cache provider token")
	}
}
