package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/model"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

var GoogleIdentityScopes = []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"}

type GoogleUserInfoResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type GoogleIdentityService struct {
	config oauth2.Config
	client *http.Client
}

func NewGoogleIdentityService(config config.IdentityProviderConfig) *GoogleIdentityService {
	return &GoogleIdentityService{
		config: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       GoogleIdentityScopes,
			Endpoint:     endpoints.Google,
		},
	}
}

func (google *GoogleIdentityService) Init() error {
	google.client = &http.Client{
		Timeout: providerTimeout,
	}
	return nil
}

func (google *GoogleIdentityService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	return context.WithValue(ctx, oauth2.HTTPClient, google.client), cancel
}

func (google *GoogleIdentityService) Name() string {
	return "google"
}

func (google *GoogleIdentityService) AuthorizationURL(state string) string {
	return google.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (google *GoogleIdentityService) ExchangeCode(ctx context.Context, code string) (*model.ProviderToken, error) {
	ctx, cancel := google.callContext(ctx)
	defer cancel()

	token, err := google.config.Exchange(ctx, code)
	if err != nil {
		return nil, mapProviderError(err)
	}

	return &model.ProviderToken{
		Provider:     "google",
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry.Unix(),
	}, nil
}

func (google *GoogleIdentityService) FetchProfile(ctx context.Context, token *model.ProviderToken) (*config.FederatedProfile, error) {
	ctx, cancel := google.callContext(ctx)
	defer cancel()

	client := google.config.Client(ctx, &oauth2.Token{AccessToken: token.AccessToken})

	req, err := http.NewRequestWithContext(ctx, "GET", "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return nil, ErrSystemError
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, mapProviderError(err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, ErrProviderError
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, mapProviderError(err)
	}

	var userInfo GoogleUserInfoResponse
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, ErrProviderError
	}

	return &config.FederatedProfile{
		Provider: "google",
		Subject:  userInfo.ID,
		Email:    userInfo.Email,
		Name:     userInfo.Name,
	}, nil
}

func (google *GoogleIdentityService) RefreshToken(ctx context.Context, token *model.ProviderToken) (*model.ProviderToken, error) {
	if token.RefreshToken == "" {
		return nil, ErrTokenInvalid
	}

	ctx, cancel := google.callContext(ctx)
	defer cancel()

	source := google.config.TokenSource(ctx, &oauth2.Token{
		RefreshToken: token.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	})

	fresh, err := source.Token()
	if err != nil {
		return nil, mapProviderError(err)
	}

	refreshToken := fresh.RefreshToken
	if refreshToken == "" {
		// Google omits the refresh token when it has not rotated.
		refreshToken = token.RefreshToken
	}

	return &model.ProviderToken{
		Provider:     "google",
		AccessToken:  fresh.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    fresh.Expiry.Unix(),
	}, nil
}
