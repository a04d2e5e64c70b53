package model

import "encoding/json"

type Client struct {
	Key                string `gorm:"column:key;primaryKey"`
	Secret             string `gorm:"column:secret;not null"`
	Name               string `gorm:"column:name"`
	RedirectURIs       string `gorm:"column:redirect_uris"` // JSON array
	Scopes             string `gorm:"column:scopes"`        // JSON array
	GrantTypes         string `gorm:"column:grant_types"`   // JSON array
	AutoApprove        bool   `gorm:"column:auto_approve;default:false"`
	AccessTokenExpiry  int    `gorm:"column:access_token_expiry"`
	RefreshTokenExpiry int    `gorm:"column:refresh_token_expiry"`
	Enabled            bool   `gorm:"column:enabled;default:true"`
	CreatedAt          int64  `gorm:"column:created_at"`
	UpdatedAt          int64  `gorm:"column:updated_at"`
}

func (Client) TableName() string {
	return "clients"
}

func (client *Client) RedirectURIList() []string {
	return decodeStringList(client.RedirectURIs)
}

func (client *Client) ScopeList() []string {
	return decodeStringList(client.Scopes)
}

func (client *Client) GrantTypeList() []string {
	return decodeStringList(client.GrantTypes)
}

func decodeStringList(raw string) []string {
	var list []string
	if raw == "" {
		return list
	}
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	return list
}

func EncodeStringList(list []string) string {
	raw, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
