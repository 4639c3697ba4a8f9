package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TokenRepository stores device push tokens.
type TokenRepository struct {
	db *sqlx.DB
}

func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Register upserts a device token for the user. A token moving between
// accounts is reassigned to the latest owner.
func (r *TokenRepository) Register(ctx context.Context, userID uuid.UUID, token, platform string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_tokens (id, user_id, token, platform, is_active, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, true, now(), now())
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    platform = EXCLUDED.platform,
		    is_active = true,
		    last_used_at = now()
	`, uuid.New(), userID, token, platform)
	return err
}

func (r *TokenRepository) Deactivate(ctx context.Context, userID uuid.UUID, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE device_tokens SET is_active = false
		WHERE user_id = $1 AND token = $2
	`, userID, token)
	return err
}

func (r *TokenRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var tokens []string
	err := r.db.SelectContext(ctx, &tokens, `
		SELECT token FROM device_tokens
		WHERE user_id = $1 AND is_active = true
	`, userID)
	return tokens, err
}

// PurgeStale deletes tokens unused past the cutoff along with
// explicitly deactivated ones.
func (r *TokenRepository) PurgeStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM device_tokens
		WHERE last_used_at < $1 OR is_active = false
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
