package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sc2companion/internal/constants"
	"sc2companion/internal/domain"

	"github.com/rs/zerolog"
)

type ReplayRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewReplayRepository(sqlDB *sql.DB, logger zerolog.Logger) *ReplayRepository {
	return &ReplayRepository{db: sqlDB, logger: logger}
}

const replayColumns = "id, replay_hash, player1_id, player2_id, player1_race, player2_race, map_name, game_at, file_path, version, created_at, updated_at"

func (r *ReplayRepository) GetByPath(ctx context.Context, path string) (*domain.Replay, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+replayColumns+" FROM replays WHERE file_path = ?", path)
	return scanReplay(row)
}

func (r *ReplayRepository) HasPath(ctx context.Context, path string) (bool, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM replays WHERE file_path = ?", path).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertWithBuildOrder writes one replay record plus its build-order rows in a
// single transaction. The file path is the dedup key: a path that is already
// cached is left untouched and inserted=false comes back, so racing full-scan
// and single-file ingestion paths never double-insert.
func (r *ReplayRepository) InsertWithBuildOrder(ctx context.Context, replay *domain.Replay, entries []domain.BuildOrderEntry) (int64, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO replays (replay_hash, player1_id, player2_id, player1_race, player2_race, map_name, game_at, file_path, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (file_path) DO NOTHING`,
		replay.ReplayHash, replay.Player1ID, replay.Player2ID,
		replay.Player1Race, replay.Player2Race, replay.MapName,
		replay.GameAt, replay.FilePath, replay.Version, now, now)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert replay %s: %w", replay.FilePath, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var existing int64
		if err := tx.QueryRowContext(ctx,
			"SELECT id FROM replays WHERE file_path = ?", replay.FilePath).Scan(&existing); err != nil {
			return 0, false, fmt.Errorf("failed to look up cached replay %s: %w", replay.FilePath, err)
		}
		r.logger.Debug().
			Str("file_path", replay.FilePath).
			Int64("replay_id", existing).
			Msg("replay already cached, skipping")
		return existing, false, tx.Commit()
	}

	replayID, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read inserted replay id: %w", err)
	}

	for i := 0; i < len(entries); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(entries) {
			end = len(entries)
		}

		for _, entry := range entries[i:end] {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO build_order_entries (replay_id, player_slot, elapsed, kind, item, created_at) VALUES (?, ?, ?, ?, ?, ?)",
				replayID, entry.PlayerSlot, entry.Elapsed, entry.Kind, entry.Item, now)
			if err != nil {
				return 0, false, fmt.Errorf("failed to insert build order entry for %s: %w", replay.FilePath, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit replay %s: %w", replay.FilePath, err)
	}

	r.logger.Debug().
		Int64("replay_id", replayID).
		Str("file_path", replay.FilePath).
		Int("build_entries", len(entries)).
		Msg("replay cached")

	return replayID, true, nil
}

func (r *ReplayRepository) ListCachedPaths(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT file_path FROM replays")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// MissingFiles returns disk \ cached, in the order the disk paths came in.
func (r *ReplayRepository) MissingFiles(ctx context.Context, diskPaths []string) ([]string, error) {
	cached, err := r.ListCachedPaths(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(cached))
	for _, p := range cached {
		known[p] = struct{}{}
	}

	var missing []string
	for _, p := range diskPaths {
		if _, ok := known[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

// MatchHistory returns games between two identities, most recent first. The
// two ids match either stored ordering since records keep first-seen order.
func (r *ReplayRepository) MatchHistory(ctx context.Context, playerA, playerB int64, limit int) ([]domain.Replay, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+replayColumns+` FROM replays
		 WHERE (player1_id = ? AND player2_id = ?) OR (player1_id = ? AND player2_id = ?)
		 ORDER BY game_at DESC LIMIT ?`,
		playerA, playerB, playerB, playerA, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReplays(rows)
}

// RecentBuildOrders returns build-order rows from an identity's most recent
// games, newest game first, each game's entries in elapsed order.
func (r *ReplayRepository) RecentBuildOrders(ctx context.Context, playerID int64, limit int) ([]domain.BuildOrderEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.replay_id, e.player_slot, e.elapsed, e.kind, e.item, e.created_at
		 FROM build_order_entries e
		 JOIN replays r ON r.id = e.replay_id
		 WHERE r.player1_id = ? OR r.player2_id = ?
		 ORDER BY r.game_at DESC, e.elapsed ASC LIMIT ?`,
		playerID, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBuildOrders(rows)
}

// BuildOrdersBySlot returns build-order rows for one raw player slot across
// games between two identities.
func (r *ReplayRepository) BuildOrdersBySlot(ctx context.Context, playerA, playerB int64, slot int) ([]domain.BuildOrderEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.replay_id, e.player_slot, e.elapsed, e.kind, e.item, e.created_at
		 FROM build_order_entries e
		 JOIN replays r ON r.id = e.replay_id
		 WHERE e.player_slot = ?
		   AND ((r.player1_id = ? AND r.player2_id = ?) OR (r.player1_id = ? AND r.player2_id = ?))
		 ORDER BY r.game_at DESC, e.elapsed ASC`,
		slot, playerA, playerB, playerB, playerA)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBuildOrders(rows)
}

func (r *ReplayRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM replays").Scan(&count)
	return count, err
}

func scanReplay(row *sql.Row) (*domain.Replay, error) {
	var rec domain.Replay
	err := row.Scan(&rec.ID, &rec.ReplayHash, &rec.Player1ID, &rec.Player2ID,
		&rec.Player1Race, &rec.Player2Race, &rec.MapName, &rec.GameAt,
		&rec.FilePath, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func collectReplays(rows *sql.Rows) ([]domain.Replay, error) {
	var result []domain.Replay
	for rows.Next() {
		var rec domain.Replay
		err := rows.Scan(&rec.ID, &rec.ReplayHash, &rec.Player1ID, &rec.Player2ID,
			&rec.Player1Race, &rec.Player2Race, &rec.MapName, &rec.GameAt,
			&rec.FilePath, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func collectBuildOrders(rows *sql.Rows) ([]domain.BuildOrderEntry, error) {
	var result []domain.BuildOrderEntry
	for rows.Next() {
		var e domain.BuildOrderEntry
		if err := rows.Scan(&e.ID, &e.ReplayID, &e.PlayerSlot, &e.Elapsed, &e.Kind, &e.Item, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
