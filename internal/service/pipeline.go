package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"sc2companion/internal/constants"
	"sc2companion/internal/decoder"
	"sc2companion/internal/domain"
	"sc2companion/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Pipeline runs the two-stage ingestion: extraction first, store writes
// second. Records are independent, so no ordering is guaranteed across files.
type Pipeline struct {
	extractors *decoder.Pool
	replays    *repository.ReplayRepository
	resolver   *IdentityResolver
	logger     zerolog.Logger
}

func NewPipeline(extractors *decoder.Pool, replays *repository.ReplayRepository, resolver *IdentityResolver, logger zerolog.Logger) *Pipeline {
	return &Pipeline{extractors: extractors, replays: replays, resolver: resolver, logger: logger}
}

// Run ingests the given files and reports how many records made it into the
// store. Per-file failures in either stage are logged, reported to the sink
// and counted; they never abort the batch.
func (p *Pipeline) Run(ctx context.Context, paths []string, sink ProgressSink) (succeeded, failed int, err error) {
	if len(paths) == 0 {
		sink.Completed(0, 0)
		return 0, 0, nil
	}

	sink.Discovered(len(paths))

	metas := p.extractBatch(ctx, paths, sink)

	var pending []*domain.ReplayMetadata
	for _, meta := range metas {
		if meta != nil {
			pending = append(pending, meta)
		}
	}
	extractFailed := len(paths) - len(pending)

	inserted, insertFailed := p.insertBatch(ctx, pending, len(paths), extractFailed, sink)

	succeeded = inserted
	failed = extractFailed + insertFailed
	sink.Completed(succeeded, failed)
	return succeeded, failed, nil
}

// extractBatch decodes every file, keeping output order aligned with input
// order. A failed decode yields a nil slot. The decoder may hold
// thread-affinity state, so the instance comes from the per-slot pool even
// though this stage runs sequentially.
func (p *Pipeline) extractBatch(ctx context.Context, paths []string, sink ProgressSink) []*domain.ReplayMetadata {
	metas := make([]*domain.ReplayMetadata, len(paths))

	ex, err := p.extractors.Acquire(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("no extractor available")
		for _, path := range paths {
			sink.FileFailed(path, err)
		}
		return metas
	}
	defer p.extractors.Release(ex)

	for i, path := range paths {
		meta, err := ex.Extract(ctx, path)
		if err != nil {
			p.logger.Warn().Err(err).Str("path", path).Msg("extraction failed")
			sink.FileFailed(path, err)
		} else {
			metas[i] = meta
		}
		sink.Decoded(i+1, len(paths))
	}

	return metas
}

// insertBatch writes records with bounded parallelism. Each worker resolves
// both player identities, upserts the replay by path and bulk-inserts the
// build order.
func (p *Pipeline) insertBatch(ctx context.Context, metas []*domain.ReplayMetadata, total, alreadyDone int, sink ProgressSink) (inserted, failed int) {
	if len(metas) == 0 {
		return 0, 0
	}

	parallelism := Parallelism(runtime.NumCPU())
	p.logger.Debug().
		Int("files", len(metas)).
		Int("parallelism", parallelism).
		Msg("starting parallel insertion")

	var (
		insertedCount atomic.Int64
		failedCount   atomic.Int64
		doneCount     atomic.Int64
		mu            sync.Mutex
	)
	start := time.Now()

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for _, meta := range metas {
		meta := meta
		g.Go(func() error {
			if err := p.insertOne(gCtx, meta); err != nil {
				p.logger.Warn().Err(err).Str("path", meta.FilePath).Msg("insertion failed")
				sink.FileFailed(meta.FilePath, err)
				failedCount.Add(1)
			} else {
				insertedCount.Add(1)
			}

			done := int(doneCount.Add(1))
			sink.Progress(alreadyDone+done, total)

			if done%constants.ProgressReportEvery == 0 {
				mu.Lock()
				elapsed := time.Since(start)
				rate := float64(done) / elapsed.Seconds()
				remaining := time.Duration(float64(len(metas)-done)/rate) * time.Second
				p.logger.Info().
					Int("done", done).
					Int("total", len(metas)).
					Float64("files_per_sec", rate).
					Dur("eta", remaining).
					Msg("insertion progress")
				mu.Unlock()
			}
			return nil
		})
	}

	// workers swallow per-file errors, so Wait only reflects ctx cancellation
	_ = g.Wait()

	return int(insertedCount.Load()), int(failedCount.Load())
}

func (p *Pipeline) insertOne(ctx context.Context, meta *domain.ReplayMetadata) error {
	player1, err := p.resolver.Resolve(ctx, meta.Players[0].Nickname, meta.Players[0].Toon)
	if err != nil {
		return fmt.Errorf("resolve player 1: %w", err)
	}
	player2, err := p.resolver.Resolve(ctx, meta.Players[1].Nickname, meta.Players[1].Toon)
	if err != nil {
		return fmt.Errorf("resolve player 2: %w", err)
	}

	record := &domain.Replay{
		ReplayHash:  ReplayHash(meta.FilePath, meta.GameAt),
		Player1ID:   player1,
		Player2ID:   player2,
		Player1Race: meta.Players[0].Race,
		Player2Race: meta.Players[1].Race,
		MapName:     meta.MapName,
		GameAt:      meta.GameAt,
		FilePath:    meta.FilePath,
		Version:     meta.Version,
	}

	entries := make([]domain.BuildOrderEntry, 0, len(meta.Build))
	for _, fact := range meta.Build {
		entries = append(entries, domain.BuildOrderEntry{
			PlayerSlot: fact.Slot,
			Elapsed:    fact.Elapsed,
			Kind:       fact.Kind,
			Item:       fact.Item,
		})
	}

	_, _, err = p.replays.InsertWithBuildOrder(ctx, record, entries)
	return err
}

// Parallelism derives the insertion worker count from the available cores.
// Deliberately conservative: the companion shares the machine with a running
// game.
func Parallelism(cores int) int {
	switch {
	case cores <= 2:
		return 1
	case cores <= 4:
		return cores / 2
	case cores <= 8:
		return cores * 3 / 5
	case cores <= 16:
		return cores * 7 / 10
	default:
		return cores * 3 / 4
	}
}

// ReplayHash identifies a replay by file name and game timestamp, so the
// same game is recognizable after the file moves. Informational only: the
// enforced dedup key is the file path.
func ReplayHash(path string, gameAt time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", filepath.Base(path), gameAt.UTC().Unix())))
	return hex.EncodeToString(sum[:])
}
