package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sc2companion/internal/config"
	"sc2companion/internal/database"
	"sc2companion/internal/decoder"
	"sc2companion/internal/domain"
	"sc2companion/internal/repository"

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

// fakeExtractor produces deterministic metadata from the file name and
// counts every decode attempt.
type fakeExtractor struct {
	mu       sync.Mutex
	calls    int
	failures map[string]bool
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{failures: make(map[string]bool)}
}

func (f *fakeExtractor) failOn(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[name] = true
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (*domain.ReplayMetadata, error) {
	f.mu.Lock()
	f.calls++
	failed := f.failures[filepath.Base(path)]
	f.mu.Unlock()

	if failed {
		return nil, fmt.Errorf("decode %s: corrupt header", path)
	}

	return &domain.ReplayMetadata{
		FilePath: path,
		MapName:  "Alcyone LE",
		GameAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(len(path)) * time.Minute),
		Version:  "5.0.14",
		Players: [2]domain.PlayerFacts{
			{Nickname: "Me#1", Toon: "2-S2-1-100", Race: "Terran", Slot: 1},
			{Nickname: "Bar#7", Toon: "2-S2-1-200", Race: "Zerg", Slot: 2},
		},
		Build: []domain.BuildFact{
			{Slot: 1, Elapsed: 17, Kind: "building", Item: "SupplyDepot"},
			{Slot: 2, Elapsed: 14, Kind: "building", Item: "SpawningPool"},
		},
	}, nil
}

type syncFixture struct {
	db         *sql.DB
	cfg        *config.Config
	svc        *SyncService
	fake       *fakeExtractor
	players    *repository.PlayerRepository
	replays    *repository.ReplayRepository
	cacheState *repository.CacheStateRepository
}

func newSyncFixture(t *testing.T, db *sql.DB, folder string, fake *fakeExtractor) *syncFixture {
	t.Helper()

	cfg := &config.Config{
		PlayerTag:       "Me#1",
		ReplayFolder:    folder,
		ReplayRecursive: true,
	}
	return newSyncFixtureWithConfig(t, db, cfg, fake)
}

func newSyncFixtureWithConfig(t *testing.T, db *sql.DB, cfg *config.Config, fake *fakeExtractor) *syncFixture {
	t.Helper()

	pool, err := decoder.NewPool(func() (decoder.Extractor, error) { return fake, nil }, 2)
	require.NoError(t, err)

	players := repository.NewPlayerRepository(db, zerolog.Nop())
	replays := repository.NewReplayRepository(db, zerolog.Nop())
	cacheState := repository.NewCacheStateRepository(db, zerolog.Nop())
	resolver := NewIdentityResolver(players, zerolog.Nop())
	pipeline := NewPipeline(pool, replays, resolver, zerolog.Nop())
	svc := NewSyncService(cfg, replays, cacheState, pipeline, NopSink{}, zerolog.Nop())

	return &syncFixture{
		db:         db,
		cfg:        cfg,
		svc:        svc,
		fake:       fake,
		players:    players,
		replays:    replays,
		cacheState: cacheState,
	}
}

func writeReplayFile(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("replay bytes"), 0o644))
	return path
}
