package service

import (
	"errors"
	"slices"
	"time"

	"github.com/keygate/passport/internal/model"
	"github.com/keygate/passport/internal/utils"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type ClientServiceConfig struct {
	AccessTokenExpiry  int
	RefreshTokenExpiry int
}

// ClientService is the registry of relying-party clients.
type ClientService struct {
	Config   ClientServiceConfig
	Database *gorm.DB
}

func NewClientService(config ClientServiceConfig, database *gorm.DB) *ClientService {
	return &ClientService{
		Config:   config,
		Database: database,
	}
}

func (cs *ClientService) Init() error {
	return nil
}

type CreateClientInput struct {
	Key                string
	Name               string
	RedirectURIs       []string
	Scopes             []string
	GrantTypes         []string
	AutoApprove        bool
	AccessTokenExpiry  int
	RefreshTokenExpiry int
}

func (cs *ClientService) CreateClient(input CreateClientInput) (*model.Client, error) {
	key := input.Key
	if key == "" {
		key = utils.GenerateRandomString(16)
	}

	now := time.Now().Unix()

	client := model.Client{
		Key:                key,
		Secret:             utils.GenerateRandomString(32),
		Name:               input.Name,
		RedirectURIs:       model.EncodeStringList(input.RedirectURIs),
		Scopes:             model.EncodeStringList(input.Scopes),
		GrantTypes:         model.EncodeStringList(input.GrantTypes),
		AutoApprove:        input.AutoApprove,
		AccessTokenExpiry:  input.AccessTokenExpiry,
		RefreshTokenExpiry: input.RefreshTokenExpiry,
		Enabled:            true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := cs.Database.Create(&client).Error; err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to create client")
		return nil, ErrSystemError
	}

	return &client, nil
}

func (cs *ClientService) GetClient(key string) (*model.Client, error) {
	var client model.Client
	err := cs.Database.Where("key = ?", key).First(&client).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientInvalid
		}
		log.Error().Err(err).Str("key", key).Msg("Failed to look up client")
		return nil, ErrSystemError
	}
	return &client, nil
}

// Authenticate returns the client only when the secret matches and the
// client is enabled. A bad secret never falls through to success.
func (cs *ClientService) Authenticate(key string, secret string) (*model.Client, error) {
	client, err := cs.GetClient(key)
	if err != nil {
		return nil, err
	}
	if !client.Enabled || secret == "" || client.Secret != secret {
		return nil, ErrClientInvalid
	}
	return client, nil
}

// ValidateRedirectURI requires an exact string match against the registered
// URIs. No normalization: a trailing slash difference is a mismatch.
func (cs *ClientService) ValidateRedirectURI(client *model.Client, redirectURI string) error {
	if redirectURI == "" || !slices.Contains(client.RedirectURIList(), redirectURI) {
		return ErrRedirectMismatch
	}
	return nil
}

func (cs *ClientService) ValidateScope(client *model.Client, scope string) error {
	requested := utils.ParseCommaString(scope)
	if len(requested) == 0 {
		return nil
	}
	if !utils.ScopeContains(client.ScopeList(), requested) {
		return ErrScopeDenied
	}
	return nil
}

func (cs *ClientService) ValidateGrantType(client *model.Client, grantType string) error {
	if !slices.Contains(client.GrantTypeList(), grantType) {
		return ErrClientInvalid
	}
	return nil
}

func (cs *ClientService) SetEnabled(key string, enabled bool) error {
	result := cs.Database.Model(&model.Client{}).Where("key = ?", key).Updates(map[string]any{
		"enabled":    enabled,
		"updated_at": time.Now().Unix(),
	})
	if result.Error != nil {
		log.Error().Err(result.Error).Str("key", key).Msg("Failed to update client")
		return ErrSystemError
	}
	if result.RowsAffected == 0 {
		return ErrClientInvalid
	}
	return nil
}

// AccessTokenTTL returns the client's access token TTL, falling back to the
// registry default.
func (cs *ClientService) AccessTokenTTL(client *model.Client) time.Duration {
	expiry := client.AccessTokenExpiry
	if expiry <= 0 {
		expiry = cs.Config.AccessTokenExpiry
	}
	return time.Duration(expiry) * time.Second
}

func (cs *ClientService) RefreshTokenTTL(client *model.Client) time.Duration {
	expiry := client.RefreshTokenExpiry
	if expiry <= 0 {
		expiry = cs.Config.RefreshTokenExpiry
	}
	return time.Duration(expiry) * time.Second
}
