package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/model"
	"github.com/keygate/passport/internal/utils"

	"github.com/rs/zerolog/log"
)

type SSOServiceConfig struct {
	LoginURL       string
	SessionExpiry  int // seconds
	SSOTokenExpiry int // seconds, reference 2h
}

// SSOService extends one authenticated session across relying parties. SSO
// tokens are not one-time: validating does not consume them. Per-user
// secondary index sets keep global logout at O(bindings) instead of a
// keyspace scan.
type SSOService struct {
	Config SSOServiceConfig
	Store  *StoreService
	Users  *UserService
	Risk   *RiskService
}

func NewSSOService(config SSOServiceConfig, store *StoreService, users *UserService, risk *RiskService) *SSOService {
	return &SSOService{
		Config: config,
		Store:  store,
		Users:  users,
		Risk:   risk,
	}
}

func (sso *SSOService) Init() error {
	if sso.Config.SessionExpiry <= 0 {
		sso.Config.SessionExpiry = 24 * 3600
	}
	if sso.Config.SSOTokenExpiry <= 0 {
		sso.Config.SSOTokenExpiry = 2 * 3600
	}
	return nil
}

func (sso *SSOService) sessionKey(id string) string {
	return sso.Store.Key("session", id)
}

func (sso *SSOService) tokenKey(token string) string {
	return sso.Store.Key("sso", "token", token)
}

func (sso *SSOService) bindingKey(userID int64, clientKey string) string {
	return sso.Store.Key("sso", "binding", strconv.FormatInt(userID, 10), clientKey)
}

func (sso *SSOService) userClientsKey(userID int64) string {
	return sso.Store.Key("sso", "user", strconv.FormatInt(userID, 10), "clients")
}

func (sso *SSOService) userTokensKey(userID int64) string {
	return sso.Store.Key("sso", "user", strconv.FormatInt(userID, 10), "tokens")
}

func (sso *SSOService) sessionTTL() time.Duration {
	return time.Duration(sso.Config.SessionExpiry) * time.Second
}

func (sso *SSOService) tokenTTL() time.Duration {
	return time.Duration(sso.Config.SSOTokenExpiry) * time.Second
}

// CreateSession establishes the global session after authentication.
func (sso *SSOService) CreateSession(ctx context.Context, user *model.User) (*model.Session, error) {
	now := time.Now()
	session := model.Session{
		ID:        utils.GenerateRandomString(32),
		UserID:    user.ID,
		Username:  user.Username,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(sso.sessionTTL()).Unix(),
	}

	if err := sso.Store.SetJSON(ctx, sso.sessionKey(session.ID), session, sso.sessionTTL()); err != nil {
		log.Error().Err(err).Msg("Failed to store session")
		return nil, ErrSystemError
	}

	return &session, nil
}

func (sso *SSOService) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, ErrNotLoggedIn
	}
	var session model.Session
	found, err := sso.Store.GetJSON(ctx, sso.sessionKey(sessionID), &session)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load session")
		return nil, ErrSystemError
	}
	if !found || session.ExpiresAt <= time.Now().Unix() {
		return nil, ErrNotLoggedIn
	}
	return &session, nil
}

// Login authenticates against the credential collaborator, establishes the
// global session and mints the first client binding.
func (sso *SSOService) Login(ctx context.Context, username string, password string, clientKey string) (*model.Session, *model.SSOToken, error) {
	user, err := sso.Users.Authenticate(username, password)
	if err != nil {
		return nil, nil, err
	}

	session, err := sso.CreateSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	var token *model.SSOToken
	if clientKey != "" {
		token, err = sso.mintToken(ctx, session.UserID, clientKey)
		if err != nil {
			return nil, nil, err
		}
	}

	log.Info().Str("username", username).Str("clientKey", clientKey).Msg("SSO login")
	return session, token, nil
}

type LoginInfo struct {
	NeedLogin bool            `json:"need_login"`
	LoginURL  string          `json:"login_url,omitempty"`
	Token     *model.SSOToken `json:"token,omitempty"`
	Session   *model.Session  `json:"-"`
}

// GetLoginInfo either points an unauthenticated browser at the login URL or
// mints an SSO token bound to (user, client) and records the binding.
func (sso *SSOService) GetLoginInfo(ctx context.Context, sessionID string, clientKey string) (*LoginInfo, error) {
	session, err := sso.GetSession(ctx, sessionID)
	if err != nil {
		if err == ErrNotLoggedIn {
			return &LoginInfo{NeedLogin: true, LoginURL: sso.Config.LoginURL}, nil
		}
		return nil, err
	}

	token, err := sso.mintToken(ctx, session.UserID, clientKey)
	if err != nil {
		return nil, err
	}

	return &LoginInfo{Token: token, Session: session}, nil
}

func (sso *SSOService) mintToken(ctx context.Context, userID int64, clientKey string) (*model.SSOToken, error) {
	now := time.Now()
	token := model.SSOToken{
		Token:     utils.GenerateRandomString(32),
		UserID:    userID,
		ClientKey: clientKey,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(sso.tokenTTL()).Unix(),
	}

	if err := sso.Store.SetJSON(ctx, sso.tokenKey(token.Token), token, sso.tokenTTL()); err != nil {
		log.Error().Err(err).Msg("Failed to store SSO token")
		return nil, ErrSystemError
	}

	binding := model.SSOBinding{
		UserID:     userID,
		ClientKey:  clientKey,
		LoggedInAt: now.Unix(),
	}

	if err := sso.Store.SetJSON(ctx, sso.bindingKey(userID, clientKey), binding, sso.sessionTTL()); err != nil {
		log.Error().Err(err).Msg("Failed to store SSO binding")
		return nil, ErrSystemError
	}

	// Secondary indexes for global logout.
	pipe := sso.Store.Client().TxPipeline()
	pipe.SAdd(ctx, sso.userClientsKey(userID), clientKey)
	pipe.SAdd(ctx, sso.userTokensKey(userID), token.Token)
	pipe.Expire(ctx, sso.userClientsKey(userID), sso.sessionTTL())
	pipe.Expire(ctx, sso.userTokensKey(userID), sso.sessionTTL())
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to index SSO token")
		return nil, ErrSystemError
	}

	return &token, nil
}

type ClientStatus struct {
	LoggedIn       bool `json:"logged_in"`
	ClientLoggedIn bool `json:"client_logged_in"`
}

// CheckStatus reports global-session presence and this client's binding.
func (sso *SSOService) CheckStatus(ctx context.Context, sessionID string, clientKey string) (*ClientStatus, error) {
	session, err := sso.GetSession(ctx, sessionID)
	if err != nil {
		if err == ErrNotLoggedIn {
			return &ClientStatus{}, nil
		}
		return nil, err
	}

	status := ClientStatus{LoggedIn: true}
	if clientKey != "" {
		bound, err := sso.Store.Exists(ctx, sso.bindingKey(session.UserID, clientKey))
		if err != nil {
			return nil, ErrSystemError
		}
		status.ClientLoggedIn = bound
	}
	return &status, nil
}

// ValidateToken resolves an SSO token without consuming it.
func (sso *SSOService) ValidateToken(ctx context.Context, token string, meta RequestMeta) (*model.SSOToken, error) {
	var record model.SSOToken
	found, err := sso.Store.GetJSON(ctx, sso.tokenKey(token), &record)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load SSO token")
		return nil, ErrSystemError
	}
	if !found || record.ExpiresAt <= time.Now().Unix() {
		return nil, ErrTokenInvalid
	}

	if _, err := sso.Risk.RecordEvent(RecordEventInput{
		TokenID:   record.Token,
		TokenType: config.TokenTypeSSO,
		EventType: config.EventUse,
		UserID:    record.UserID,
		ClientKey: record.ClientKey,
		Meta:      meta,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record SSO token use")
	}

	return &record, nil
}

// RefreshToken reissues an SSO token with a fresh TTL, retiring the old one.
func (sso *SSOService) RefreshToken(ctx context.Context, token string, meta RequestMeta) (*model.SSOToken, error) {
	var record model.SSOToken
	found, err := sso.Store.GetJSON(ctx, sso.tokenKey(token), &record)
	if err != nil {
		return nil, ErrSystemError
	}
	if !found || record.ExpiresAt <= time.Now().Unix() {
		return nil, ErrTokenInvalid
	}

	fresh, err := sso.mintToken(ctx, record.UserID, record.ClientKey)
	if err != nil {
		return nil, err
	}

	pipe := sso.Store.Client().TxPipeline()
	pipe.Del(ctx, sso.tokenKey(token))
	pipe.SRem(ctx, sso.userTokensKey(record.UserID), token)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to retire refreshed SSO token")
	}

	if _, err := sso.Risk.RecordEvent(RecordEventInput{
		TokenID:   record.Token,
		TokenType: config.TokenTypeSSO,
		EventType: config.EventRefresh,
		UserID:    record.UserID,
		ClientKey: record.ClientKey,
		Meta:      meta,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to record SSO token refresh")
	}

	return fresh, nil
}

// LogoutClient removes only the (user, client) binding and the SSO tokens
// issued for that client. The global session stays intact.
func (sso *SSOService) LogoutClient(ctx context.Context, sessionID string, clientKey string) error {
	session, err := sso.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := sso.Store.Delete(ctx, sso.bindingKey(session.UserID, clientKey)); err != nil {
		log.Error().Err(err).Msg("Failed to delete SSO binding")
		return ErrSystemError
	}

	if err := sso.Store.Client().SRem(ctx, sso.userClientsKey(session.UserID), clientKey).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to unindex SSO binding")
	}

	tokens, err := sso.Store.Client().SMembers(ctx, sso.userTokensKey(session.UserID)).Result()
	if err != nil {
		log.Error().Err(err).Msg("Failed to enumerate SSO tokens")
		return ErrSystemError
	}

	for _, token := range tokens {
		var record model.SSOToken
		found, err := sso.Store.GetJSON(ctx, sso.tokenKey(token), &record)
		if err != nil {
			return ErrSystemError
		}
		if found && record.ClientKey != clientKey {
			continue
		}
		pipe := sso.Store.Client().TxPipeline()
		pipe.Del(ctx, sso.tokenKey(token))
		pipe.SRem(ctx, sso.userTokensKey(session.UserID), token)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to invalidate client SSO token")
		}
	}

	log.Info().Int64("userId", session.UserID).Str("clientKey", clientKey).Msg("SSO client logout")
	return nil
}

// LogoutGlobal destroys the global session, removes every per-client
// binding and invalidates every outstanding SSO token for the user. The
// enumeration walks the per-user index sets only.
func (sso *SSOService) LogoutGlobal(ctx context.Context, sessionID string, meta RequestMeta) error {
	session, err := sso.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	clients, err := sso.Store.Client().SMembers(ctx, sso.userClientsKey(session.UserID)).Result()
	if err != nil {
		log.Error().Err(err).Msg("Failed to enumerate SSO bindings")
		return ErrSystemError
	}

	tokens, err := sso.Store.Client().SMembers(ctx, sso.userTokensKey(session.UserID)).Result()
	if err != nil {
		log.Error().Err(err).Msg("Failed to enumerate SSO tokens")
		return ErrSystemError
	}

	keys := []string{sso.sessionKey(sessionID), sso.userClientsKey(session.UserID), sso.userTokensKey(session.UserID)}
	for _, clientKey := range clients {
		keys = append(keys, sso.bindingKey(session.UserID, clientKey))
	}
	for _, token := range tokens {
		keys = append(keys, sso.tokenKey(token))
	}

	if err := sso.Store.Delete(ctx, keys...); err != nil {
		log.Error().Err(err).Msg("Failed to destroy SSO state")
		return ErrSystemError
	}

	for _, token := range tokens {
		if _, err := sso.Risk.RecordEvent(RecordEventInput{
			TokenID:   token,
			TokenType: config.TokenTypeSSO,
			EventType: config.EventRevoke,
			UserID:    session.UserID,
			Meta:      meta,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to record SSO token revocation")
		}
	}

	log.Info().Int64("userId", session.UserID).Msg(fmt.Sprintf("SSO global logout, %d bindings and %d tokens invalidated", len(clients), len(tokens)))
	return nil
}
