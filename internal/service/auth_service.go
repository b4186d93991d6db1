package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/maheshrc27/instapress/configs"
	"github.com/maheshrc27/instapress/internal/apperr"
	"github.com/maheshrc27/instapress/internal/repository"
	"github.com/maheshrc27/instapress/internal/transfer"
	"github.com/maheshrc27/instapress/pkg/utils"
)

// tokenRefreshWindow is how close to expiry a long-lived token gets before
// the refresh job renews it.
const tokenRefreshWindow = 24 * time.Hour

type AuthService interface {
	SaveCredentials(ctx context.Context, appID, appSecret string) error
	Status(ctx context.Context) (*transfer.AuthStatus, error)
	Disconnect(ctx context.Context) error
	AuthorizationURL(ctx context.Context) (string, error)
	Callback(ctx context.Context, code string) error
	RefreshIfNeeded(ctx context.Context) error

	// AccessToken implements instagram.TokenSource.
	AccessToken(ctx context.Context) (string, string, error)
}

type authService struct {
	cfg config.Config
	cr  repository.CredentialsRepository
}

func NewAuthService(cfg config.Config, cr repository.CredentialsRepository) AuthService {
	return &authService{cfg: cfg, cr: cr}
}

func (s *authService) SaveCredentials(ctx context.Context, appID, appSecret string) error {
	if appID == "" {
		return apperr.Validation("app id is required")
	}
	return s.cr.SaveApp(ctx, appID, appSecret)
}

func (s *authService) Status(ctx context.Context) (*transfer.AuthStatus, error) {
	creds, found, err := s.cr.Get(ctx)
	if err != nil {
		return nil, err
	}

	st := &transfer.AuthStatus{AuthURL: "#"}
	if !found {
		return st, nil
	}

	st.IsConfigured = creds.IsConfigured()
	st.IsAuthenticated = creds.IsAuthenticated() && creds.TokenExpiresAt.After(time.Now())
	st.AppID = creds.AppID
	if st.IsConfigured && !st.IsAuthenticated {
		st.AuthURL = s.buildAuthorizationURL(creds.AppID)
	}
	if st.IsAuthenticated {
		st.Username = creds.Username
		st.ExpiresAt = creds.TokenExpiresAt.Format(time.RFC3339)
	}
	return st, nil
}

func (s *authService) Disconnect(ctx context.Context) error {
	return s.cr.ClearAuth(ctx)
}

func (s *authService) AuthorizationURL(ctx context.Context) (string, error) {
	creds, found, err := s.cr.Get(ctx)
	if err != nil {
		return "", err
	}
	if !found || !creds.IsConfigured() {
		return "", &apperr.AuthError{Message: "app credentials not configured"}
	}
	return s.buildAuthorizationURL(creds.AppID), nil
}

func (s *authService) buildAuthorizationURL(appID string) string {
	q := url.Values{}
	q.Set("client_id", appID)
	q.Set("redirect_uri", s.cfg.InstagramRedirectURI)
	q.Set("scope", "instagram_business_basic,instagram_business_content_publish")
	q.Set("response_type", "code")
	return "https://www.instagram.com/oauth/authorize?" + q.Encode()
}

// Callback exchanges the OAuth code for a short-lived token, upgrades it to
// a long-lived one, and stores it encrypted alongside the account identity.
func (s *authService) Callback(ctx context.Context, code string) error {
	if code == "" {
		return apperr.Validation("code is empty")
	}

	creds, found, err := s.cr.Get(ctx)
	if err != nil {
		return err
	}
	if !found || !creds.IsConfigured() {
		return &apperr.AuthError{Message: "app credentials not configured"}
	}

	shortLived, accountID, err := s.exchangeCode(ctx, creds.AppID, creds.AppSecret, code)
	if err != nil {
		return err
	}

	longLived, expiresAt, err := s.exchangeLongLived(ctx, creds.AppSecret, shortLived)
	if err != nil {
		return err
	}

	username, err := s.fetchUsername(ctx, accountID, longLived)
	if err != nil {
		slog.Info(err.Error())
		username = ""
	}

	encrypted, err := utils.Encrypt([]byte(longLived), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	return s.cr.SetToken(ctx, accountID, username, encrypted, expiresAt)
}

func (s *authService) exchangeCode(ctx context.Context, appID, appSecret, code string) (token, accountID string, err error) {
	data := url.Values{}
	data.Set("client_id", appID)
	data.Set("client_secret", appSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", s.cfg.InstagramRedirectURI)
	data.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.instagram.com/oauth/access_token",
		strings.NewReader(data.Encode()))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", "", fmt.Errorf("failed to exchange code: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken string `json:"access_token"`
		UserID      int64  `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if result.AccessToken == "" {
		return "", "", &apperr.AuthError{Message: "no access token returned"}
	}

	return result.AccessToken, fmt.Sprintf("%d", result.UserID), nil
}

func (s *authService) exchangeLongLived(ctx context.Context, appSecret, shortLived string) (string, time.Time, error) {
	reqURL := fmt.Sprintf(
		"https://graph.instagram.com/access_token?grant_type=ig_exchange_token&client_secret=%s&access_token=%s",
		url.QueryEscape(appSecret), url.QueryEscape(shortLived),
	)

	token, err := s.fetchToken(ctx, reqURL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to get long-lived token: %w", err)
	}
	return token.AccessToken, time.Now().Add(time.Duration(token.ExpiresIn) * time.Second), nil
}

func (s *authService) fetchToken(ctx context.Context, reqURL string) (*transfer.GraphToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("error response from Instagram: %s (status code: %d)", body, resp.StatusCode)
	}

	var token transfer.GraphToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &token, nil
}

func (s *authService) fetchUsername(ctx context.Context, accountID, token string) (string, error) {
	reqURL := fmt.Sprintf("https://graph.instagram.com/%s?fields=username&access_token=%s",
		accountID, url.QueryEscape(token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Username, nil
}

// RefreshIfNeeded renews the long-lived token when it is inside the refresh
// window. Called from the cron job.
func (s *authService) RefreshIfNeeded(ctx context.Context) error {
	creds, found, err := s.cr.Get(ctx)
	if err != nil {
		return err
	}
	if !found || !creds.IsAuthenticated() {
		return nil
	}
	if time.Until(creds.TokenExpiresAt) > tokenRefreshWindow {
		return nil
	}

	decrypted, err := utils.Decrypt(creds.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf(
		"https://graph.instagram.com/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		url.QueryEscape(decrypted),
	)
	token, err := s.fetchToken(ctx, reqURL)
	if err != nil {
		return err
	}

	encrypted, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return s.cr.SetToken(ctx, creds.AccountID, creds.Username, encrypted, expiresAt)
}

// AccessToken returns the decrypted token and account id, or an AuthError
// when the account is not connected or the token has expired.
func (s *authService) AccessToken(ctx context.Context) (string, string, error) {
	creds, found, err := s.cr.Get(ctx)
	if err != nil {
		return "", "", err
	}
	if !found || !creds.IsAuthenticated() {
		return "", "", &apperr.AuthError{Message: "instagram account not authenticated"}
	}
	if !creds.TokenExpiresAt.After(time.Now()) {
		return "", "", &apperr.AuthError{Message: "access token expired"}
	}

	decrypted, err := utils.Decrypt(creds.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return "", "", &apperr.AuthError{Message: "stored access token is unreadable"}
	}
	return decrypted, creds.AccountID, nil
}
