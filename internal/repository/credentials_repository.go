package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/instapress/internal/models"
)

// CredentialsRepository stores the single operator's app credentials and
// connected-account auth details in one row.
type CredentialsRepository interface {
	Get(ctx context.Context) (*models.Credentials, bool, error)
	SaveApp(ctx context.Context, appID, appSecret string) error
	SetToken(ctx context.Context, accountID, username, encryptedToken string, expiresAt time.Time) error
	ClearAuth(ctx context.Context) error
}

type credentialsRepository struct {
	db *sql.DB
}

func NewCredentialsRepository(db *sql.DB) CredentialsRepository {
	return &credentialsRepository{db: db}
}

func (r *credentialsRepository) Get(ctx context.Context) (*models.Credentials, bool, error) {
	query := `
		SELECT id, app_id, app_secret, account_id, username, access_token, token_expires_at, created_at, updated_at
		FROM credentials
		ORDER BY id
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query)

	var c models.Credentials
	err := row.Scan(&c.ID, &c.AppID, &c.AppSecret, &c.AccountID, &c.Username, &c.AccessToken, &c.TokenExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}

	return &c, true, nil
}

func (r *credentialsRepository) SaveApp(ctx context.Context, appID, appSecret string) error {
	// Saving new app credentials clears any previous auth details.
	query := `
		INSERT INTO credentials (id, app_id, app_secret, account_id, username, access_token, token_expires_at)
		VALUES (1, $1, $2, '', '', '', to_timestamp(0))
		ON CONFLICT (id) DO UPDATE
		SET app_id = EXCLUDED.app_id,
			app_secret = CASE WHEN EXCLUDED.app_secret <> '' THEN EXCLUDED.app_secret ELSE credentials.app_secret END,
			account_id = '',
			username = '',
			access_token = '',
			token_expires_at = to_timestamp(0),
			updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, query, appID, appSecret)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *credentialsRepository) SetToken(ctx context.Context, accountID, username, encryptedToken string, expiresAt time.Time) error {
	query := `
		UPDATE credentials
		SET account_id = $1,
			username = $2,
			access_token = $3,
			token_expires_at = $4,
			updated_at = $5
		WHERE id = 1
	`
	_, err := r.db.ExecContext(ctx, query, accountID, username, encryptedToken, expiresAt, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *credentialsRepository) ClearAuth(ctx context.Context) error {
	query := `
		UPDATE credentials
		SET account_id = '',
			username = '',
			access_token = '',
			token_expires_at = to_timestamp(0),
			updated_at = $1
		WHERE id = 1
	`
	_, err := r.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
