package transfer

import "github.com/golang-jwt/jwt/v5"

type CustomClaims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

type AuthStatus struct {
	IsConfigured    bool   `json:"is_configured"`
	IsAuthenticated bool   `json:"is_authenticated"`
	AuthURL         string `json:"auth_url"`
	AppID           string `json:"app_id"`
	Username        string `json:"username,omitempty"`
	ExpiresAt       string `json:"expires_at,omitempty"`
}

type GraphToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
