package model

// FederatedLink binds a local account to a provider identity. Subject is
// unique per provider and a user binds at most once per provider.
type FederatedLink struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID         int64  `gorm:"column:user_id;not null;uniqueIndex:idx_links_user_provider,priority:1"`
	Provider       string `gorm:"column:provider;not null;uniqueIndex:idx_links_user_provider,priority:2;uniqueIndex:idx_links_provider_subject,priority:1"`
	Subject        string `gorm:"column:subject;not null;uniqueIndex:idx_links_provider_subject,priority:2"`
	OpenID         string `gorm:"column:openid"`
	UnionID        string `gorm:"column:unionid"`
	AccessToken    string `gorm:"column:access_token"`
	RefreshToken   string `gorm:"column:refresh_token"`
	TokenExpiresAt int64  `gorm:"column:token_expires_at"`
	CreatedAt      int64  `gorm:"column:created_at"`
	UpdatedAt      int64  `gorm:"column:updated_at"`
}

func (FederatedLink) TableName() string {
	return "federated_links"
}
