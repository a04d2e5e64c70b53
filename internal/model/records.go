package model

// Records stored in the shared store. These are serialized to JSON only at
// the store boundary, never concatenated into ad-hoc strings.

type AuthorizationCode struct {
	Code        string `json:"code"`
	ClientKey   string `json:"client_key"`
	UserID      int64  `json:"user_id"`
	RedirectURI string `json:"redirect_uri"`
	Scope       string `json:"scope"`
	State       string `json:"state"`
	ExpiresAt   int64  `json:"expires_at"`
	CreatedAt   int64  `json:"created_at"`
}

type Token struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	Type      string `json:"type"`
	UserID    int64  `json:"user_id,omitempty"` // zero for client-credentials grants
	ClientKey string `json:"client_key"`
	Scope     string `json:"scope"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}

type Session struct {
	ID        string `json:"id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

type SSOToken struct {
	Token     string `json:"token"`
	UserID    int64  `json:"user_id"`
	ClientKey string `json:"client_key"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}

type SSOBinding struct {
	UserID     int64  `json:"user_id"`
	ClientKey  string `json:"client_key"`
	LoggedInAt int64  `json:"logged_in_at"`
}

type FederatedState struct {
	State       string `json:"state"`
	Provider    string `json:"provider"`
	RedirectURI string `json:"redirect_uri"`
	CreatedAt   int64  `json:"created_at"`
}

// PendingBind keeps provider tokens around while the user confirms binding
// a provider identity to an existing local account.
type PendingBind struct {
	Code         string `json:"code"`
	Provider     string `json:"provider"`
	Subject      string `json:"subject"`
	OpenID       string `json:"openid,omitempty"`
	UnionID      string `json:"unionid,omitempty"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
	UserID       int64  `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

type ProviderToken struct {
	Provider     string `json:"provider"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	OpenID       string `json:"openid,omitempty"`
	UnionID      string `json:"unionid,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
}

// WechatTokenCache maps a WeChat access token to the identifiers that the
// userinfo endpoint needs alongside it.
type WechatTokenCache struct {
	OpenID       string `json:"openid"`
	UnionID      string `json:"unionid,omitempty"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}
