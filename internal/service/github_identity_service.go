package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/model"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

var GithubIdentityScopes = []string{"user:email", "read:user"}

type GithubEmailResponse []struct {
	Email   string `json:"email"`
	Primary bool   `json:"primary"`
}

type GithubUserInfoResponse struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	ID    int    `json:"id"`
}

type GithubIdentityService struct {
	config oauth2.Config
	client *http.Client
}

func NewGithubIdentityService(config config.IdentityProviderConfig) *GithubIdentityService {
	return &GithubIdentityService{
		config: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       GithubIdentityScopes,
			Endpoint:     endpoints.GitHub,
		},
	}
}

func (github *GithubIdentityService) Init() error {
	github.client = &http.Client{
		Timeout: providerTimeout,
	}
	return nil
}

// callContext bounds a provider call without detaching it from the caller:
// request cancellation still propagates.
func (github *GithubIdentityService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	return context.WithValue(ctx, oauth2.HTTPClient, github.client), cancel
}

func (github *GithubIdentityService) Name() string {
	return "github"
}

func (github *GithubIdentityService) AuthorizationURL(state string) string {
	return github.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (github *GithubIdentityService) ExchangeCode(ctx context.Context, code string) (*model.ProviderToken, error) {
	ctx, cancel := github.callContext(ctx)
	defer cancel()

	token, err := github.config.Exchange(ctx, code)
	if err != nil {
		return nil, mapProviderError(err)
	}

	return &model.ProviderToken{
		Provider:     "github",
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry.Unix(),
	}, nil
}

func (github *GithubIdentityService) FetchProfile(ctx context.Context, token *model.ProviderToken) (*config.FederatedProfile, error) {
	ctx, cancel := github.callContext(ctx)
	defer cancel()

	client := github.config.Client(ctx, &oauth2.Token{AccessToken: token.AccessToken})

	var userInfo GithubUserInfoResponse
	if err := githubGet(ctx, client, "https://api.github.com/user", &userInfo); err != nil {
		return nil, err
	}

	var emails GithubEmailResponse
	if err := githubGet(ctx, client, "https://api.github.com/user/emails", &emails); err != nil {
		return nil, err
	}

	profile := config.FederatedProfile{
		Provider: "github",
		Subject:  strconv.Itoa(userInfo.ID),
		Username: userInfo.Login,
		Name:     userInfo.Name,
	}

	for _, email := range emails {
		if email.Primary {
			profile.Email = email.Email
			break
		}
	}
	if profile.Email == "" && len(emails) > 0 {
		profile.Email = emails[0].Email
	}

	return &profile, nil
}

// RefreshToken only works for GitHub apps configured with expiring tokens;
// classic OAuth app tokens have no refresh token and fail TokenInvalid.
func (github *GithubIdentityService) RefreshToken(ctx context.Context, token *model.ProviderToken) (*model.ProviderToken, error) {
	if token.RefreshToken == "" {
		return nil, ErrTokenInvalid
	}

	ctx, cancel := github.callContext(ctx)
	defer cancel()

	source := github.config.TokenSource(ctx, &oauth2.Token{
		RefreshToken: token.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	})

	fresh, err := source.Token()
	if err != nil {
		return nil, mapProviderError(err)
	}

	return &model.ProviderToken{
		Provider:     "github",
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		ExpiresAt:    fresh.Expiry.Unix(),
	}, nil
}

func githubGet(ctx context.Context, client *http.Client, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return ErrSystemError
	}

	req.Header.Set("Accept", "application/vnd.github+json")

	res, err := client.Do(req)
	if err != nil {
		return mapProviderError(err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return mapProviderError(fmt.Errorf("request failed with status: %s", res.Status))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return mapProviderError(err)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return mapProviderError(errors.New("malformed provider response"))
	}

	return nil
}
