package config

// Version information, set at build time

var Version = "development"
var CommitHash = "development"
var BuildTimestamp = "0000-00-00T00:00:00Z"

// Cookie name templates

var SessionCookieName = "passport-session"

// Main app config

type Config struct {
	Port               int    `mapstructure:"port" validate:"required"`
	Address            string `mapstructure:"address" validate:"required,ip4_addr"`
	AppURL             string `mapstructure:"app-url" validate:"required,url"`
	LoginURL           string `mapstructure:"login-url"`
	SecureCookie       bool   `mapstructure:"secure-cookie"`
	LogLevel           string `mapstructure:"log-level" validate:"oneof=trace debug info warn error fatal panic"`
	DatabasePath       string `mapstructure:"database-path" validate:"required"`
	RedisAddress       string `mapstructure:"redis-address" validate:"required"`
	RedisPassword      string `mapstructure:"redis-password"`
	RedisDB            int    `mapstructure:"redis-db"`
	TrustedProxies     string `mapstructure:"trusted-proxies"`
	SessionExpiry      int    `mapstructure:"session-expiry"`
	SSOTokenExpiry     int    `mapstructure:"sso-token-expiry"`
	AccessTokenExpiry  int    `mapstructure:"access-token-expiry"`
	RefreshTokenExpiry int    `mapstructure:"refresh-token-expiry"`
	CodeExpiry         int    `mapstructure:"code-expiry"`
	TrustedNetworks    string `mapstructure:"trusted-networks"`
	GithubClientID     string `mapstructure:"github-client-id"`
	GithubClientSecret string `mapstructure:"github-client-secret"`
	GoogleClientID     string `mapstructure:"google-client-id"`
	GoogleClientSecret string `mapstructure:"google-client-secret"`
	WechatAppID        string `mapstructure:"wechat-app-id"`
	WechatAppSecret    string `mapstructure:"wechat-app-secret"`
}

// Identity provider config

type IdentityProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// FederatedProfile is the normalized view of a provider account. Subject is
// the stable identifier used for account links; for WeChat it is the unionid
// when present, otherwise the openid.
type FederatedProfile struct {
	Provider string `json:"provider"`
	Subject  string `json:"subject"`
	OpenID   string `json:"openid,omitempty"`
	UnionID  string `json:"unionid,omitempty"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

// Monitor event types and abnormal types

const (
	EventCreate   = "CREATE"
	EventUse      = "USE"
	EventRefresh  = "REFRESH"
	EventRevoke   = "REVOKE"
	EventExpire   = "EXPIRE"
	EventAbnormal = "ABNORMAL"
)

const (
	AbnormalHighRisk  = "HIGH_RISK"
	AbnormalFrequency = "FREQUENCY"
	AbnormalIP        = "IP_DIVERSITY"
	AbnormalUserAgent = "UA_DIVERSITY"
)

// Token types

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	TokenTypeSSO     = "sso"
)

// API queries

type CallbackQuery struct {
	Code  string `url:"code"`
	State string `url:"state"`
}

type NeedBindQuery struct {
	BindCode string `url:"bind_code"`
	Provider string `url:"provider"`
}
