package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sc2companion/internal/domain"

	"github.com/rs/zerolog"
)

type CacheStateRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewCacheStateRepository(sqlDB *sql.DB, logger zerolog.Logger) *CacheStateRepository {
	return &CacheStateRepository{db: sqlDB, logger: logger}
}

func (r *CacheStateRepository) Get(ctx context.Context) (*domain.CacheState, error) {
	var (
		state       domain.CacheState
		initialized int64
		validatedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT config_hash, initialized, last_validated_at FROM cache_state WHERE id = 1").
		Scan(&state.ConfigHash, &initialized, &validatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache state: %w", err)
	}

	state.Initialized = initialized != 0
	if validatedAt.Valid {
		state.LastValidatedAt = validatedAt.Time
	}
	return &state, nil
}

func (r *CacheStateRepository) SetConfigHash(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE cache_state SET config_hash = ? WHERE id = 1", hash)
	if err != nil {
		return fmt.Errorf("failed to store config hash: %w", err)
	}
	return nil
}

// Invalidate clears both markers and stores the new config hash in one
// statement, so a crash between the two can never leave a half-invalidated
// state. Cache contents are untouched: existing rows are simply skipped by
// the path-uniqueness check on the rescan.
func (r *CacheStateRepository) Invalidate(ctx context.Context, newHash string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE cache_state SET config_hash = ?, initialized = 0, last_validated_at = NULL WHERE id = 1",
		newHash)
	if err != nil {
		return fmt.Errorf("failed to invalidate cache state: %w", err)
	}

	r.logger.Info().Str("config_hash", newHash).Msg("cache state invalidated, full rescan forced")
	return nil
}

func (r *CacheStateRepository) MarkInitialized(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE cache_state SET initialized = 1 WHERE id = 1")
	if err != nil {
		return fmt.Errorf("failed to mark cache initialized: %w", err)
	}
	return nil
}

func (r *CacheStateRepository) SetLastValidated(ctx context.Context, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE cache_state SET last_validated_at = ? WHERE id = 1", at)
	if err != nil {
		return fmt.Errorf("failed to store validation timestamp: %w", err)
	}
	return nil
}
