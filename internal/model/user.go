package model

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User 用户及公开资料（认证流程不在本服务内）
type User struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username    string    `json:"username" gorm:"type:varchar(64);uniqueIndex;not null"`
	Email       string    `json:"-" gorm:"type:varchar(255);uniqueIndex;not null"`
	Password    string    `json:"-" gorm:"type:varchar(255);not null"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(64)"`
	Bio         string    `json:"bio" gorm:"type:text"`
	Age         int       `json:"age"`
	PhotoURL    string    `json:"photo_url" gorm:"type:varchar(512)"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// SetPassword 以 bcrypt 存储口令哈希
func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	return nil
}

func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(plain)) == nil
}
