package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"sc2companion/internal/api"
	"sc2companion/internal/constants"
	"sc2companion/internal/repository"
	"sc2companion/internal/service"

	"github.com/rs/zerolog"
)

// OverlayServer exposes the local read-only query surface to an overlay UI:
// match history, build orders and live ladder stats, all JSON.
type OverlayServer struct {
	players *repository.PlayerRepository
	replays *repository.ReplayRepository
	ladder  *api.LadderClient
	logger  zerolog.Logger
}

func NewOverlayServer(
	players *repository.PlayerRepository,
	replays *repository.ReplayRepository,
	ladder *api.LadderClient,
	logger zerolog.Logger,
) *OverlayServer {
	return &OverlayServer{players: players, replays: replays, ladder: ladder, logger: logger}
}

func (s *OverlayServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/buildorders", s.handleBuildOrders)
	mux.HandleFunc("/api/ladder", s.handleLadder)
}

// handleHistory returns games between two identities, most recent first.
// ?me=<name>&opponent=<name>&limit=<n>
func (s *OverlayServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	myID, err := s.resolveParam(ctx, r, "me")
	if err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}
	oppID, err := s.resolveParam(ctx, r, "opponent")
	if err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}

	limit := queryInt(r, "limit", constants.MatchHistoryLimit)
	games, err := s.replays.MatchHistory(ctx, myID, oppID, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("match history query failed")
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, games)
}

// handleBuildOrders returns the most recent build-order entries for one
// identity, or for a raw slot across games between two identities.
// ?player=<name>&limit=<n> or ?me=<name>&opponent=<name>&slot=<n>
func (s *OverlayServer) handleBuildOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if slotRaw := r.URL.Query().Get("slot"); slotRaw != "" {
		slot, err := strconv.Atoi(slotRaw)
		if err != nil {
			httpError(w, http.StatusBadRequest, err)
			return
		}
		myID, err := s.resolveParam(ctx, r, "me")
		if err != nil {
			httpError(w, http.StatusBadRequest, err)
			return
		}
		oppID, err := s.resolveParam(ctx, r, "opponent")
		if err != nil {
			httpError(w, http.StatusBadRequest, err)
			return
		}

		entries, err := s.replays.BuildOrdersBySlot(ctx, myID, oppID, slot)
		if err != nil {
			s.logger.Error().Err(err).Msg("build order slot query failed")
			httpError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, entries)
		return
	}

	playerID, err := s.resolveParam(ctx, r, "player")
	if err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}

	limit := queryInt(r, "limit", constants.BuildOrderLimit)
	entries, err := s.replays.RecentBuildOrders(ctx, playerID, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("build order query failed")
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, entries)
}

// handleLadder proxies a live ladder lookup for the overlay.
// ?tag=<battletag>
func (s *OverlayServer) handleLadder(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		http.Error(w, "tag parameter is required", http.StatusBadRequest)
		return
	}

	stats, err := s.ladder.GetStats(r.Context(), tag)
	if err != nil {
		s.logger.Error().Err(err).Str("tag", tag).Msg("ladder lookup failed")
		httpError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, stats)
}

// resolveParam is lookup-only: queries never create identities.
func (s *OverlayServer) resolveParam(ctx context.Context, r *http.Request, param string) (int64, error) {
	name := r.URL.Query().Get(param)
	if name == "" {
		return 0, &paramError{param: param}
	}
	player, err := s.players.GetByBattleTag(ctx, service.NormalizeBattleTag(name))
	if err != nil {
		return 0, err
	}
	if player == nil {
		return 0, &paramError{param: param + ": unknown player"}
	}
	return player.ID, nil
}

type paramError struct {
	param string
}

func (e *paramError) Error() string {
	return e.param + " parameter is required"
}

func queryInt(r *http.Request, param string, fallback int) int {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func httpError(w http.ResponseWriter, code int, err error) {
	http.Error(w, err.Error(), code)
}
