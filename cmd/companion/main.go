package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"sc2companion/internal/api"
	"sc2companion/internal/config"
	"sc2companion/internal/console"
	"sc2companion/internal/constants"
	fxmodules "sc2companion/internal/fx"
	"sc2companion/internal/middleware"
	"sc2companion/internal/monitor"
	"sc2companion/internal/repository"
	"sc2companion/internal/server"
	"sc2companion/internal/service"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runCompanion),
	).Run()
}

func runCompanion(
	lc fx.Lifecycle,
	cfg *config.Config,
	syncSvc *service.SyncService,
	resolver *service.IdentityResolver,
	replays *repository.ReplayRepository,
	ladder *api.LadderClient,
	overlay *server.OverlayServer,
	db *sql.DB,
	logger zerolog.Logger,
) {
	render := console.NewRenderer(os.Stdout)

	mon := monitor.New(lobbyPath(), cfg.PlayerTag, logger)
	mon.OnMatchStart(func(opponent string) {
		ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
		defer cancel()

		oppID, err := resolver.Resolve(ctx, opponent, "")
		if err != nil {
			logger.Error().Err(err).Str("opponent", opponent).Msg("failed to resolve opponent")
			return
		}
		myID, err := resolver.Resolve(ctx, cfg.PlayerTag, "")
		if err != nil {
			logger.Error().Err(err).Msg("failed to resolve local player")
			return
		}

		games, err := replays.MatchHistory(ctx, myID, oppID, constants.MatchHistoryLimit)
		if err != nil {
			logger.Error().Err(err).Msg("match history lookup failed")
		} else {
			render.MatchHistory(opponent, games, myID)
		}

		builds, err := replays.RecentBuildOrders(ctx, oppID, constants.BuildOrderLimit)
		if err != nil {
			logger.Error().Err(err).Msg("build order lookup failed")
		} else {
			render.BuildOrder(builds)
		}

		stats, err := ladder.GetStats(ctx, service.NormalizeBattleTag(opponent))
		if err != nil {
			logger.Warn().Err(err).Str("opponent", opponent).Msg("ladder lookup failed")
		} else {
			render.LadderStats(stats)
		}
	})
	mon.OnMatchEnd(func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
		defer cancel()

		// the game has just written the replay; ingest it directly instead
		// of waiting out the validation interval
		if path := newestReplay(cfg.ReplayFolder); path != "" {
			if err := syncSvc.SaveSingleReplay(ctx, path); err != nil {
				logger.Error().Err(err).Str("path", path).Msg("post-match replay save failed")
			}
			return
		}
		if err := syncSvc.SyncFromDisk(ctx); err != nil {
			logger.Error().Err(err).Msg("post-match sync failed")
		}
	})

	mux := http.NewServeMux()
	overlay.Register(mux)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	handler := middleware.RequestID(logger)(c.Handler(mux))

	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%s", cfg.OverlayPort),
		Handler: handler,
	}

	monCtx, cancelMon := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := syncSvc.InitializeCache(context.Background()); err != nil {
					logger.Error().Err(err).Msg("replay cache initialization failed")
					return
				}
				mon.Run(monCtx)
			}()

			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("overlay server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("overlay server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down")
			cancelMon()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("overlay server shutdown failed")
			}

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing replay store")
			}

			logger.Info().Msg("stopped gracefully")
			return nil
		},
	})
}

// lobbyPath is where the game drops its multiplayer lobby temp file.
func lobbyPath() string {
	return filepath.Join(os.TempDir(), "StarCraft II", "TempWriteReplayP1", "replay.server.battlelobby")
}

// newestReplay returns the most recently modified replay file under folder,
// or "" if none is found.
func newestReplay(folder string) string {
	var (
		newest  string
		modTime int64
	)
	_ = filepath.WalkDir(folder, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), constants.ReplayExtension) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if ts := info.ModTime().UnixNano(); ts > modTime {
			modTime = ts
			newest = path
		}
		return nil
	})
	return newest
}
