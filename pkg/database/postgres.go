package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/motorplace/vehicle-ads/pkg/models"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	MaxPool  int
}

type DB struct {
	*sql.DB
}

// NewPostgresDB creates a new PostgreSQL connection pool
func NewPostgresDB(cfg Config) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Connection pool settings
	db.SetMaxOpenConns(cfg.MaxPool)
	db.SetMaxIdleConns(cfg.MaxPool / 2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

// CreateAd inserts a new ad in review state and returns its id.
func (db *DB) CreateAd(ctx context.Context, description, email, imageKey, imageURL string) (string, error) {
	var adID string

	query := `
		INSERT INTO vehicle_ads (description, email, image_key, image_url, state)
		VALUES ($1, $2, $3, $4, 'review')
		RETURNING id
	`

	err := db.QueryRowContext(ctx, query, description, email, imageKey, imageURL).Scan(&adID)
	if err != nil {
		return "", fmt.Errorf("failed to create ad: %w", err)
	}

	return adID, nil
}

// GetAd retrieves an ad by id. Returns nil without error when no row exists.
func (db *DB) GetAd(ctx context.Context, adID string) (*models.Ad, error) {
	ad := &models.Ad{}
	var state string

	query := `
		SELECT id, description, email, image_key, image_url, state,
		       category, created_at, validated_at
		FROM vehicle_ads
		WHERE id = $1
	`

	err := db.QueryRowContext(ctx, query, adID).Scan(
		&ad.ID,
		&ad.Description,
		&ad.Email,
		&ad.ImageKey,
		&ad.ImageURL,
		&state,
		&ad.Category,
		&ad.CreatedAt,
		&ad.ValidatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ad: %w", err)
	}

	ad.State, err = models.ParseState(state)
	if err != nil {
		return nil, err
	}

	return ad, nil
}

// FinalizeAd moves an ad out of review into a terminal state. The WHERE guard
// makes terminal states immutable: finalizing an already finalized ad affects
// no rows and returns false, which keeps redeliveries harmless.
func (db *DB) FinalizeAd(ctx context.Context, adID string, state models.State, category *string) (bool, error) {
	if !models.ValidTransition(models.StateReview, state) {
		return false, fmt.Errorf("invalid target state: %s", state)
	}
	if (category != nil) != (state == models.StateAccepted) {
		return false, fmt.Errorf("category must be set exactly when accepting")
	}

	query := `
		UPDATE vehicle_ads
		SET state = $1,
		    category = $2,
		    validated_at = NOW()
		WHERE id = $3
		  AND state = 'review'
	`

	result, err := db.ExecContext(ctx, query, string(state), category, adID)
	if err != nil {
		return false, fmt.Errorf("failed to finalize ad: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// FindStaleReviewAds finds ads stuck in review longer than maxAge. These are
// submissions whose enqueue was lost; the reaper re-enqueues them.
func (db *DB) FindStaleReviewAds(ctx context.Context, maxAge time.Duration) ([]string, error) {
	query := `
		SELECT id
		FROM vehicle_ads
		WHERE state = 'review'
		  AND created_at < NOW() - $1::interval
		ORDER BY created_at ASC
	`

	interval := fmt.Sprintf("%d seconds", int64(maxAge.Seconds()))

	rows, err := db.QueryContext(ctx, query, interval)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale review ads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ad id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
