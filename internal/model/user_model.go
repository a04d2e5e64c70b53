package model

type User struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Username  string `gorm:"column:username;uniqueIndex;not null"`
	Email     string `gorm:"column:email;index"`
	Name      string `gorm:"column:name"`
	Password  string `gorm:"column:password;not null"` // bcrypt hash
	CreatedAt int64  `gorm:"column:created_at"`
	UpdatedAt int64  `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}
