package model

type MonitorEvent struct {
	ID           int64  `gorm:"column:id;primaryKey;autoIncrement"`
	TokenID      string `gorm:"column:token_id;index;not null"`
	TokenType    string `gorm:"column:token_type"`
	EventType    string `gorm:"column:event_type;index;not null"`
	UserID       int64  `gorm:"column:user_id;index"`
	ClientKey    string `gorm:"column:client_key;index"`
	ClientIP     string `gorm:"column:client_ip"`
	UserAgent    string `gorm:"column:user_agent"`
	RequestURL   string `gorm:"column:request_url"`
	RiskScore    int    `gorm:"column:risk_score"`
	Abnormal     bool   `gorm:"column:abnormal;index"`
	AbnormalType string `gorm:"column:abnormal_type"`
	CreatedAt    int64  `gorm:"column:created_at;index"`
}

func (MonitorEvent) TableName() string {
	return "monitor_events"
}
