package models

import "time"

// User represents a registered customer.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username     string    `json:"username" gorm:"uniqueIndex;type:varchar(100)"`
	Email        string    `json:"email" gorm:"uniqueIndex;type:varchar(255)"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255)"` // No json for security
	CreatedAt    time.Time `json:"created_at"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}
