package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/keygate/passport/internal/config"
	"github.com/keygate/passport/internal/model"

	"github.com/rs/zerolog/log"
)

// WeChat does not follow standard OAuth2: the token endpoint takes the app
// id and secret as query parameters, returns the openid next to the access
// token, and the userinfo endpoint needs both. The access_token -> openid
// mapping is cached in the store because profile fetches arrive separately.
const (
	wechatAuthorizeURL = "https://open.weixin.qq.com/connect/qrconnect"
	wechatTokenURL     = "https://api.weixin.qq.com/sns/oauth2/access_token"
	wechatRefreshURL   = "https://api.weixin.qq.com/sns/oauth2/refresh_token"
	wechatUserinfoURL  = "https://api.weixin.qq.com/sns/userinfo"
)

type WechatTokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	OpenID       string `json:"openid"`
	UnionID      string `json:"unionid"`
	Scope        string `json:"scope"`
	ErrCode      int    `json:"errcode"`
	ErrMsg       string `json:"errmsg"`
}

type WechatUserInfoResponse struct {
	OpenID   string `json:"openid"`
	Nickname string `json:"nickname"`
	UnionID  string `json:"unionid"`
	ErrCode  int    `json:"errcode"`
	ErrMsg   string `json:"errmsg"`
}

type WechatIdentityService struct {
	config config.IdentityProviderConfig
	store  *StoreService
	client *http.Client
}

func NewWechatIdentityService(config config.IdentityProviderConfig, store *StoreService) *WechatIdentityService {
	return &WechatIdentityService{
		config: config,
		store:  store,
	}
}

func (wechat *WechatIdentityService) Init() error {
	wechat.client = &http.Client{
		Timeout: providerTimeout,
	}
	return nil
}

func (wechat *WechatIdentityService) Name() string {
	return "wechat"
}

func (wechat *WechatIdentityService) AuthorizationURL(state string) string {
	params := url.Values{}
	params.Set("appid", wechat.config.ClientID)
	params.Set("redirect_uri", wechat.config.RedirectURL)
	params.Set("response_type", "code")
	params.Set("scope", "snsapi_login")
	params.Set("state", state)
	return fmt.Sprintf("%s?%s#wechat_redirect", wechatAuthorizeURL, params.Encode())
}

func (wechat *WechatIdentityService) tokenCacheKey(accessToken string) string {
	return wechat.store.Key("fed", "wechat", accessToken)
}

func (wechat *WechatIdentityService) ExchangeCode(ctx context.Context, code string) (*model.ProviderToken, error) {
	params := url.Values{}
	params.Set("appid", wechat.config.ClientID)
	params.Set("secret", wechat.config.ClientSecret)
	params.Set("code", code)
	params.Set("grant_type", "authorization_code")

	var response WechatTokenResponse
	if err := wechat.get(ctx, wechatTokenURL, params, &response); err != nil {
		return nil, err
	}
	if err := mapWechatError(response.ErrCode); err != nil {
		log.Debug().Int("errcode", response.ErrCode).Str("errmsg", response.ErrMsg).Msg("WeChat token exchange failed")
		return nil, err
	}

	token := wechat.providerToken(&response)
	if err := wechat.cacheToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

func (wechat *WechatIdentityService) FetchProfile(ctx context.Context, token *model.ProviderToken) (*config.FederatedProfile, error) {
	openid := token.OpenID

	if openid == "" {
		var cached model.WechatTokenCache
		found, err := wechat.store.GetJSON(ctx, wechat.tokenCacheKey(token.AccessToken), &cached)
		if err != nil {
			return nil, ErrSystemError
		}
		if !found {
			return nil, ErrTokenInvalid
		}
		openid = cached.OpenID
	}

	params := url.Values{}
	params.Set("access_token", token.AccessToken)
	params.Set("openid", openid)

	var response WechatUserInfoResponse
	if err := wechat.get(ctx, wechatUserinfoURL, params, &response); err != nil {
		return nil, err
	}
	if err := mapWechatError(response.ErrCode); err != nil {
		log.Debug().Int("errcode", response.ErrCode).Str("errmsg", response.ErrMsg).Msg("WeChat userinfo failed")
		return nil, err
	}

	unionID := response.UnionID
	if unionID == "" {
		unionID = token.UnionID
	}

	// unionid is the stable cross-app identifier and takes precedence over
	// openid when present.
	subject := openid
	if unionID != "" {
		subject = unionID
	}

	return &config.FederatedProfile{
		Provider: "wechat",
		Subject:  subject,
		OpenID:   openid,
		UnionID:  unionID,
		Name:     response.Nickname,
		Username: response.Nickname,
	}, nil
}

func (wechat *WechatIdentityService) RefreshToken(ctx context.Context, token *model.ProviderToken) (*model.ProviderToken, error) {
	if token.RefreshToken == "" {
		return nil, ErrTokenInvalid
	}

	params := url.Values{}
	params.Set("appid", wechat.config.ClientID)
	params.Set("grant_type", "refresh_token")
	params.Set("refresh_token", token.RefreshToken)

	var response WechatTokenResponse
	if err := wechat.get(ctx, wechatRefreshURL, params, &response); err != nil {
		return nil, err
	}
	if err := mapWechatError(response.ErrCode); err != nil {
		log.Debug().Int("errcode", response.ErrCode).Str("errmsg", response.ErrMsg).Msg("WeChat token refresh failed")
		return nil, err
	}

	if response.UnionID == "" {
		response.UnionID = token.UnionID
	}

	fresh := wechat.providerToken(&response)
	if err := wechat.cacheToken(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (wechat *WechatIdentityService) providerToken(response *WechatTokenResponse) *model.ProviderToken {
	return &model.ProviderToken{
		Provider:     "wechat",
		AccessToken:  response.AccessToken,
		RefreshToken: response.RefreshToken,
		OpenID:       response.OpenID,
		UnionID:      response.UnionID,
		ExpiresAt:    time.Now().Add(time.Duration(response.ExpiresIn) * time.Second).Unix(),
	}
}

func (wechat *WechatIdentityService) cacheToken(ctx context.Context, token *model.ProviderToken) error {
	ttl := time.Until(time.Unix(token.ExpiresAt, 0))
	if ttl <= 0 {
		return nil
	}

	cache := model.WechatTokenCache{
		OpenID:       token.OpenID,
		UnionID:      token.UnionID,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt,
	}

	if err := wechat.store.SetJSON(ctx, wechat.tokenCacheKey(token.AccessToken), cache, ttl); err != nil {
		log.Error().Err(err).Msg("Failed to cache WeChat token mapping")
		return ErrSystemError
	}
	return nil
}

func (wechat *WechatIdentityService) get(ctx context.Context, endpoint string, params url.Values, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return ErrSystemError
	}

	res, err := wechat.client.Do(req)
	if err != nil {
		return mapProviderError(err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return ErrProviderError
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return mapProviderError(err)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return ErrProviderError
	}

	return nil
}
