package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sc2companion/internal/domain"

	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{db: sqlDB, logger: logger}
}

const playerColumns = "id, nickname, battle_tag, toon, created_at, updated_at"

func (r *PlayerRepository) GetByID(ctx context.Context, id int64) (*domain.Player, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+playerColumns+" FROM players WHERE id = ?", id)
	return scanPlayer(row)
}

// GetByToon looks a player up by exact toon handle. Returns nil when absent.
func (r *PlayerRepository) GetByToon(ctx context.Context, toon string) (*domain.Player, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+playerColumns+" FROM players WHERE toon = ?", toon)
	return scanPlayer(row)
}

func (r *PlayerRepository) GetByBattleTag(ctx context.Context, battleTag string) (*domain.Player, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+playerColumns+" FROM players WHERE battle_tag = ?", battleTag)
	return scanPlayer(row)
}

// GetByToonSuffix matches a handle whose segments after the leading
// region/program part equal the given suffix. Tolerates format drift in the
// leading segment between decoder versions.
func (r *PlayerRepository) GetByToonSuffix(ctx context.Context, suffix string) (*domain.Player, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+playerColumns+" FROM players WHERE toon = ? OR toon LIKE '%-' || ? LIMIT 1",
		suffix, suffix)
	return scanPlayer(row)
}

func (r *PlayerRepository) Insert(ctx context.Context, player *domain.Player) (int64, error) {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO players (nickname, battle_tag, toon, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		player.Nickname, player.BattleTag, player.Toon, now, now)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("nickname", player.Nickname).
			Str("battle_tag", player.BattleTag).
			Msg("failed to insert player")
		return 0, fmt.Errorf("failed to insert player %s: %w", player.BattleTag, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted player id: %w", err)
	}

	r.logger.Debug().
		Int64("player_id", id).
		Str("nickname", player.Nickname).
		Str("battle_tag", player.BattleTag).
		Str("toon", player.Toon).
		Msg("player created")

	return id, nil
}

func scanPlayer(row *sql.Row) (*domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.ID, &p.Nickname, &p.BattleTag, &p.Toon, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
