package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"sc2companion/internal/database"
	"sc2companion/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func insertTestPlayer(t *testing.T, players *PlayerRepository, nickname, battleTag, toon string) int64 {
	t.Helper()

	id, err := players.Insert(context.Background(), &domain.Player{
		Nickname:  nickname,
		BattleTag: battleTag,
		Toon:      toon,
	})
	require.NoError(t, err)
	return id
}

func testReplay(p1, p2 int64, path string, gameAt time.Time) *domain.Replay {
	return &domain.Replay{
		ReplayHash:  "hash-" + path,
		Player1ID:   p1,
		Player2ID:   p2,
		Player1Race: "Terran",
		Player2Race: "Zerg",
		MapName:     "Alcyone LE",
		GameAt:      gameAt,
		FilePath:    path,
		Version:     "5.0.14",
	}
}

func TestInsertWithBuildOrderDeduplicatesPath(t *testing.T) {
	db := newTestDB(t)
	players := NewPlayerRepository(db, zerolog.Nop())
	replays := NewReplayRepository(db, zerolog.Nop())
	ctx := context.Background()

	p1 := insertTestPlayer(t, players, "Foo#42", "Foo#42", "2-S2-1-100")
	p2 := insertTestPlayer(t, players, "Bar#7", "Bar#7", "2-S2-1-200")

	entries := []domain.BuildOrderEntry{
		{PlayerSlot: 1, Elapsed: 17, Kind: "building", Item: "SupplyDepot"},
		{PlayerSlot: 1, Elapsed: 39, Kind: "building", Item: "Barracks"},
	}

	id1, inserted, err := replays.InsertWithBuildOrder(ctx, testReplay(p1, p2, "/replays/a.SC2Replay", time.Now()), entries)
	require.NoError(t, err)
	require.True(t, inserted)

	id2, inserted, err := replays.InsertWithBuildOrder(ctx, testReplay(p1, p2, "/replays/a.SC2Replay", time.Now()), entries)
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, id1, id2)

	count, err := replays.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	var boCount int64
	require.NoError(t, db.QueryRow("SELECT COUNT(1) FROM build_order_entries").Scan(&boCount))
	require.EqualValues(t, 2, boCount)
}

func TestMatchHistoryMatchesEitherOrdering(t *testing.T) {
	db := newTestDB(t)
	players := NewPlayerRepository(db, zerolog.Nop())
	replays := NewReplayRepository(db, zerolog.Nop())
	ctx := context.Background()

	p1 := insertTestPlayer(t, players, "Foo#42", "Foo#42", "2-S2-1-100")
	p2 := insertTestPlayer(t, players, "Bar#7", "Bar#7", "2-S2-1-200")
	p3 := insertTestPlayer(t, players, "Baz#9", "Baz#9", "2-S2-1-300")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, rec := range []*domain.Replay{
		testReplay(p1, p2, "/r/1.SC2Replay", base),
		testReplay(p2, p1, "/r/2.SC2Replay", base.Add(1*time.Hour)),
		testReplay(p1, p3, "/r/3.SC2Replay", base.Add(2*time.Hour)),
		testReplay(p1, p2, "/r/4.SC2Replay", base.Add(3*time.Hour)),
	} {
		_, inserted, err := replays.InsertWithBuildOrder(ctx, rec, nil)
		require.NoError(t, err, "replay %d", i)
		require.True(t, inserted)
	}

	games, err := replays.MatchHistory(ctx, p1, p2, 10)
	require.NoError(t, err)
	require.Len(t, games, 3)

	// most recent first, both stored orderings included
	require.Equal(t, "/r/4.SC2Replay", games[0].FilePath)
	require.Equal(t, "/r/2.SC2Replay", games[1].FilePath)
	require.Equal(t, "/r/1.SC2Replay", games[2].FilePath)

	limited, err := replays.MatchHistory(ctx, p2, p1, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "/r/4.SC2Replay", limited[0].FilePath)
}

func TestRecentBuildOrders(t *testing.T) {
	db := newTestDB(t)
	players := NewPlayerRepository(db, zerolog.Nop())
	replays := NewReplayRepository(db, zerolog.Nop())
	ctx := context.Background()

	p1 := insertTestPlayer(t, players, "Foo#42", "Foo#42", "2-S2-1-100")
	p2 := insertTestPlayer(t, players, "Bar#7", "Bar#7", "2-S2-1-200")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, _, err := replays.InsertWithBuildOrder(ctx, testReplay(p1, p2, "/r/old.SC2Replay", base),
		[]domain.BuildOrderEntry{{PlayerSlot: 1, Elapsed: 20, Kind: "building", Item: "Pool"}})
	require.NoError(t, err)
	_, _, err = replays.InsertWithBuildOrder(ctx, testReplay(p1, p2, "/r/new.SC2Replay", base.Add(time.Hour)),
		[]domain.BuildOrderEntry{
			{PlayerSlot: 2, Elapsed: 45, Kind: "unit", Item: "Drone"},
			{PlayerSlot: 2, Elapsed: 12, Kind: "building", Item: "Hatchery"},
		})
	require.NoError(t, err)

	entries, err := replays.RecentBuildOrders(ctx, p2, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// newest game first, elapsed order within a game
	require.Equal(t, "Hatchery", entries[0].Item)
	require.Equal(t, "Drone", entries[1].Item)
	require.Equal(t, "Pool", entries[2].Item)
}

func TestBuildOrdersBySlot(t *testing.T) {
	db := newTestDB(t)
	players := NewPlayerRepository(db, zerolog.Nop())
	replays := NewReplayRepository(db, zerolog.Nop())
	ctx := context.Background()

	p1 := insertTestPlayer(t, players, "Foo#42", "Foo#42", "2-S2-1-100")
	p2 := insertTestPlayer(t, players, "Bar#7", "Bar#7", "2-S2-1-200")
	p3 := insertTestPlayer(t, players, "Baz#9", "Baz#9", "2-S2-1-300")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, _, err := replays.InsertWithBuildOrder(ctx, testReplay(p1, p2, "/r/1.SC2Replay", base),
		[]domain.BuildOrderEntry{
			{PlayerSlot: 1, Elapsed: 17, Kind: "building", Item: "SupplyDepot"},
			{PlayerSlot: 2, Elapsed: 14, Kind: "building", Item: "Pool"},
		})
	require.NoError(t, err)
	_, _, err = replays.InsertWithBuildOrder(ctx, testReplay(p1, p3, "/r/2.SC2Replay", base.Add(time.Hour)),
		[]domain.BuildOrderEntry{{PlayerSlot: 2, Elapsed: 30, Kind: "unit", Item: "Zealot"}})
	require.NoError(t, err)

	entries, err := replays.BuildOrdersBySlot(ctx, p1, p2, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Pool", entries[0].Item)
}

func TestMissingFilesSetLaw(t *testing.T) {
	db := newTestDB(t)
	players := NewPlayerRepository(db, zerolog.Nop())
	replays := NewReplayRepository(db, zerolog.Nop())
	ctx := context.Background()

	p1 := insertTestPlayer(t, players, "Foo#42", "Foo#42", "2-S2-1-100")
	p2 := insertTestPlayer(t, players, "Bar#7", "Bar#7", "2-S2-1-200")

	cached := []string{"/r/a.SC2Replay", "/r/b.SC2Replay"}
	for _, path := range cached {
		_, _, err := replays.InsertWithBuildOrder(ctx, testReplay(p1, p2, path, time.Now()), nil)
		require.NoError(t, err)
	}

	orderings := [][]string{
		{"/r/a.SC2Replay", "/r/b.SC2Replay", "/r/c.SC2Replay", "/r/d.SC2Replay"},
		{"/r/d.SC2Replay", "/r/c.SC2Replay", "/r/b.SC2Replay", "/r/a.SC2Replay"},
		{"/r/c.SC2Replay", "/r/a.SC2Replay", "/r/d.SC2Replay", "/r/b.SC2Replay"},
	}
	for _, disk := range orderings {
		missing, err := replays.MissingFiles(ctx, disk)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"/r/c.SC2Replay", "/r/d.SC2Replay"}, missing)
	}

	missing, err := replays.MissingFiles(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestBuildOrderCascadeDelete(t *testing.T) {
	db := newTestDB(t)
	players := NewPlayerRepository(db, zerolog.Nop())
	replays := NewReplayRepository(db, zerolog.Nop())
	ctx := context.Background()

	p1 := insertTestPlayer(t, players, "Foo#42", "Foo#42", "2-S2-1-100")
	p2 := insertTestPlayer(t, players, "Bar#7", "Bar#7", "2-S2-1-200")

	id, _, err := replays.InsertWithBuildOrder(ctx, testReplay(p1, p2, "/r/x.SC2Replay", time.Now()),
		[]domain.BuildOrderEntry{{PlayerSlot: 1, Elapsed: 10, Kind: "unit", Item: "SCV"}})
	require.NoError(t, err)

	_, err = db.Exec("DELETE FROM replays WHERE id = ?", id)
	require.NoError(t, err)

	var boCount int64
	require.NoError(t, db.QueryRow("SELECT COUNT(1) FROM build_order_entries").Scan(&boCount))
	require.EqualValues(t, 0, boCount)
}

func TestPlayerLookups(t *testing.T) {
	db := newTestDB(t)
	players := NewPlayerRepository(db, zerolog.Nop())
	ctx := context.Background()

	id := insertTestPlayer(t, players, "Foo#42", "Foo#42", "2-S2-1-100")

	byToon, err := players.GetByToon(ctx, "2-S2-1-100")
	require.NoError(t, err)
	require.NotNil(t, byToon)
	require.Equal(t, id, byToon.ID)

	byTag, err := players.GetByBattleTag(ctx, "Foo#42")
	require.NoError(t, err)
	require.NotNil(t, byTag)
	require.Equal(t, id, byTag.ID)

	bySuffix, err := players.GetByToonSuffix(ctx, "S2-1-100")
	require.NoError(t, err)
	require.NotNil(t, bySuffix)
	require.Equal(t, id, bySuffix.ID)

	absent, err := players.GetByToon(ctx, "9-S2-9-999")
	require.NoError(t, err)
	require.Nil(t, absent)
}
