package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/maheshrc27/instapress/internal/models"
)

type ScheduledPostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, sp *models.ScheduledPost) error
	GetByID(ctx context.Context, id string) (*models.ScheduledPost, error)
	List(ctx context.Context) ([]*models.ScheduledPost, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.ScheduledPost, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error)
	UpdateStatus(ctx context.Context, status string, id string) error
	Remove(ctx context.Context, id string) error
}

type scheduledPostRepository struct {
	db *sql.DB
}

func NewScheduledPostRepository(db *sql.DB) ScheduledPostRepository {
	return &scheduledPostRepository{db: db}
}

const scheduledPostColumns = `id, post_id, image_ids, crop_data, caption, schedule_time, status, created_at, updated_at`

func (r *scheduledPostRepository) Create(ctx context.Context, tx *sql.Tx, sp *models.ScheduledPost) error {
	query := `
		INSERT INTO scheduled_posts (id, post_id, image_ids, crop_data, caption, schedule_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	imageIDs, err := json.Marshal(sp.ImageIDs)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	cropData, err := json.Marshal(sp.CropData)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	if tx != nil {
		_, err = tx.ExecContext(ctx, query, sp.ID, sp.PostID, imageIDs, cropData, sp.Caption, sp.ScheduleTime, sp.Status)
	} else {
		_, err = r.db.ExecContext(ctx, query, sp.ID, sp.PostID, imageIDs, cropData, sp.Caption, sp.ScheduleTime, sp.Status)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

func (r *scheduledPostRepository) GetByID(ctx context.Context, id string) (*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	sp, err := scanScheduledPost(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return sp, nil
}

func (r *scheduledPostRepository) List(ctx context.Context) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts ORDER BY schedule_time`
	return r.queryMany(ctx, query)
}

func (r *scheduledPostRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts WHERE post_id = $1 ORDER BY schedule_time`
	return r.queryMany(ctx, query, postID)
}

func (r *scheduledPostRepository) ListDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts WHERE status = $1 AND schedule_time <= $2 ORDER BY schedule_time`
	return r.queryMany(ctx, query, models.ScheduleStatusPending, now)
}

func (r *scheduledPostRepository) UpdateStatus(ctx context.Context, status string, id string) error {
	query := `
		UPDATE scheduled_posts
		SET status = $1,
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM scheduled_posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) queryMany(ctx context.Context, query string, args ...any) ([]*models.ScheduledPost, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		sp, err := scanScheduledPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, sp)
	}
	return posts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduledPost(row rowScanner) (*models.ScheduledPost, error) {
	var sp models.ScheduledPost
	var imageIDs, cropData []byte

	err := row.Scan(&sp.ID, &sp.PostID, &imageIDs, &cropData, &sp.Caption, &sp.ScheduleTime, &sp.Status, &sp.CreatedAt, &sp.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(imageIDs, &sp.ImageIDs); err != nil {
		return nil, err
	}
	if len(cropData) > 0 {
		if err := json.Unmarshal(cropData, &sp.CropData); err != nil {
			return nil, err
		}
	}
	return &sp, nil
}
