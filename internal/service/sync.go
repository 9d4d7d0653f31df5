package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sc2companion/internal/config"
	"sc2companion/internal/constants"
	"sc2companion/internal/domain"
	"sc2companion/internal/repository"

	"github.com/rs/zerolog"
)

// SyncService keeps the replay store in sync with the replay folder. One
// background caller drives it; concurrent calls serialize on an internal
// lock. Cache state is held in memory after the first load so the
// validation-interval short-circuit touches neither disk nor store.
type SyncService struct {
	cfg        *config.Config
	replays    *repository.ReplayRepository
	cacheState *repository.CacheStateRepository
	pipeline   *Pipeline
	sink       ProgressSink
	logger     zerolog.Logger

	initOnce sync.Once
	mu       sync.Mutex
	state    *domain.CacheState

	stats SyncStats
}

// SyncStats counts scan outcomes, mostly for tests and debug logging.
type SyncStats struct {
	FullScans        atomic.Int64
	IncrementalScans atomic.Int64
	SkippedScans     atomic.Int64
}

func NewSyncService(
	cfg *config.Config,
	replays *repository.ReplayRepository,
	cacheState *repository.CacheStateRepository,
	pipeline *Pipeline,
	sink ProgressSink,
	logger zerolog.Logger,
) *SyncService {
	return &SyncService{
		cfg:        cfg,
		replays:    replays,
		cacheState: cacheState,
		pipeline:   pipeline,
		sink:       sink,
		logger:     logger,
	}
}

func (s *SyncService) Stats() *SyncStats {
	return &s.stats
}

// InitializeCache is the first-run bootstrap. The first call runs a sync
// pass; every later call is a no-op. A missing replay folder is not an
// error, but a missing player tag is: without it the host cannot tell
// "you" from "opponent" and initialization must abort.
func (s *SyncService) InitializeCache(ctx context.Context) error {
	var err error
	ran := false
	s.initOnce.Do(func() {
		ran = true
		if s.cfg.PlayerTag == "" {
			err = fmt.Errorf("cannot initialize replay cache: no player tag configured")
			return
		}
		err = s.sync(ctx)
	})
	if !ran {
		s.logger.Debug().Msg("replay cache already initialized, skipping")
		return nil
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("cache initialization failed")
	}
	return err
}

// SyncFromDisk is the incremental catch-up, safe to call on every match-end
// event. Inside the validation interval it returns immediately.
func (s *SyncService) SyncFromDisk(ctx context.Context) error {
	return s.sync(ctx)
}

// SaveSingleReplay ingests one known-good file right after a match ends,
// bypassing enumeration and the validation interval for low latency.
func (s *SyncService) SaveSingleReplay(ctx context.Context, path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve replay path: %w", err)
	}

	cached, err := s.replays.HasPath(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to check replay cache for %s: %w", path, err)
	}
	if cached {
		s.logger.Debug().Str("path", path).Msg("replay already cached")
		return nil
	}

	s.logger.Info().Str("path", path).Msg("caching single replay")
	_, failed, err := s.pipeline.Run(ctx, []string{path}, s.sink)
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("failed to cache replay %s", path)
	}
	return nil
}

func (s *SyncService) sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadState(ctx); err != nil {
		return err
	}

	hash := s.configHash()
	if s.state.ConfigHash != hash {
		if err := s.cacheState.Invalidate(ctx, hash); err != nil {
			return err
		}
		s.state.ConfigHash = hash
		s.state.Initialized = false
		s.state.LastValidatedAt = time.Time{}
	}

	if !s.state.Initialized {
		return s.fullScan(ctx)
	}

	if time.Since(s.state.LastValidatedAt) < constants.ValidationInterval {
		s.stats.SkippedScans.Add(1)
		s.logger.Debug().
			Time("last_validated_at", s.state.LastValidatedAt).
			Msg("cache fresh, skipping scan")
		return nil
	}

	return s.incrementalScan(ctx)
}

// fullScan re-attempts every file on disk. Already-cached rows survive
// invalidation and are skipped by the path-uniqueness check.
func (s *SyncService) fullScan(ctx context.Context) error {
	s.stats.FullScans.Add(1)

	paths, err := s.enumerate()
	if err != nil {
		return err
	}

	s.logger.Info().Int("files", len(paths)).Str("folder", s.cfg.ReplayFolder).Msg("building replay cache")

	succeeded, failed, err := s.pipeline.Run(ctx, paths, s.sink)
	if err != nil {
		return err
	}

	now := time.Now()
	if err := s.cacheState.MarkInitialized(ctx); err != nil {
		return err
	}
	if err := s.cacheState.SetLastValidated(ctx, now); err != nil {
		return err
	}
	s.state.Initialized = true
	s.state.LastValidatedAt = now

	s.logger.Info().Int("succeeded", succeeded).Int("failed", failed).Msg("replay cache built")
	return nil
}

func (s *SyncService) incrementalScan(ctx context.Context) error {
	s.stats.IncrementalScans.Add(1)

	paths, err := s.enumerate()
	if err != nil {
		return err
	}

	missing, err := s.replays.MissingFiles(ctx, paths)
	if err != nil {
		return err
	}

	if len(missing) > 0 {
		s.logger.Info().Int("files", len(missing)).Msg("caching new replays")
		if _, _, err := s.pipeline.Run(ctx, missing, s.sink); err != nil {
			return err
		}
	}

	now := time.Now()
	if err := s.cacheState.SetLastValidated(ctx, now); err != nil {
		return err
	}
	s.state.LastValidatedAt = now
	return nil
}

func (s *SyncService) loadState(ctx context.Context) error {
	if s.state != nil {
		return nil
	}
	state, err := s.cacheState.Get(ctx)
	if err != nil {
		return err
	}
	s.state = state
	return nil
}

// enumerate lists replay files under the configured folder. A missing or
// unreadable folder means nothing to cache, not an error.
func (s *SyncService) enumerate() ([]string, error) {
	root := s.cfg.ReplayFolder
	if _, err := os.Stat(root); err != nil {
		s.logger.Warn().Str("folder", root).Msg("replay folder not accessible, nothing to cache")
		return nil, nil
	}

	var paths []string

	if s.cfg.ReplayRecursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				s.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable entry")
				return nil
			}
			if !d.IsDir() && isReplayFile(d.Name()) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk replay folder: %w", err)
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			s.logger.Warn().Err(err).Str("folder", root).Msg("replay folder not readable, nothing to cache")
			return nil, nil
		}
		for _, entry := range entries {
			if !entry.IsDir() && isReplayFile(entry.Name()) {
				paths = append(paths, filepath.Join(root, entry.Name()))
			}
		}
	}

	for i, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			paths[i] = abs
		}
	}
	return paths, nil
}

func (s *SyncService) configHash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|recursive=%t", s.cfg.ReplayFolder, s.cfg.ReplayRecursive)))
	return hex.EncodeToString(sum[:])
}

func isReplayFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), constants.ReplayExtension)
}
