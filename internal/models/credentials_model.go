package models

import "time"

// Credentials is the single-operator Instagram app configuration plus the
// connected account's auth details. AccessToken is stored AES-GCM encrypted.
type Credentials struct {
	ID             int64     `db:"id" json:"id"`
	AppID          string    `db:"app_id" json:"app_id"`
	AppSecret      string    `db:"app_secret" json:"-"`
	AccountID      string    `db:"account_id" json:"account_id"`
	Username       string    `db:"username" json:"username"`
	AccessToken    string    `db:"access_token" json:"-"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

func (c *Credentials) IsConfigured() bool {
	return c != nil && c.AppID != ""
}

func (c *Credentials) IsAuthenticated() bool {
	return c != nil && c.AccessToken != "" && c.AccountID != ""
}
