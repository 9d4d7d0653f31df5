package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sc2companion/internal/domain"
	"sc2companion/internal/repository"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// IdentityResolver maps raw (nickname, toon handle) sightings onto stable
// player rows, creating one on first sighting. The whole find-or-create
// sequence runs under one process-wide lock: lookup-then-insert is not atomic
// at the query level, and without the lock two concurrent pipeline workers
// could each miss the lookup and create duplicate rows for the same player.
type IdentityResolver struct {
	players *repository.PlayerRepository
	logger  zerolog.Logger

	mu sync.Mutex
}

func NewIdentityResolver(players *repository.PlayerRepository, logger zerolog.Logger) *IdentityResolver {
	return &IdentityResolver{players: players, logger: logger}
}

// Resolve returns the player id for a sighting. Lookup order, first match
// wins: exact toon handle, normalized battle-tag, toon-handle suffix. Two
// sightings of the same real player that share neither key become two rows
// permanently; there is no reconciliation pass.
func (r *IdentityResolver) Resolve(ctx context.Context, nickname, toon string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if toon != "" {
		player, err := r.players.GetByToon(ctx, toon)
		if err != nil {
			return 0, fmt.Errorf("toon lookup for %s: %w", toon, err)
		}
		if player != nil {
			return player.ID, nil
		}
	}

	battleTag := NormalizeBattleTag(nickname)
	player, err := r.players.GetByBattleTag(ctx, battleTag)
	if err != nil {
		return 0, fmt.Errorf("battle-tag lookup for %s: %w", battleTag, err)
	}
	if player != nil {
		return player.ID, nil
	}

	if toon != "" {
		player, err := r.players.GetByToonSuffix(ctx, ToonSuffix(toon))
		if err != nil {
			return 0, fmt.Errorf("toon suffix lookup for %s: %w", toon, err)
		}
		if player != nil {
			return player.ID, nil
		}
	}

	if toon == "" {
		placeholder, err := gonanoid.New()
		if err != nil {
			return 0, fmt.Errorf("failed to synthesize toon handle: %w", err)
		}
		toon = placeholder
	}

	id, err := r.players.Insert(ctx, &domain.Player{
		Nickname:  nickname,
		BattleTag: battleTag,
		Toon:      toon,
	})
	if err != nil {
		return 0, err
	}

	r.logger.Info().
		Int64("player_id", id).
		Str("nickname", nickname).
		Str("battle_tag", battleTag).
		Msg("new player identity")

	return id, nil
}

// NormalizeBattleTag derives a canonical Name#Number tag from a display name.
// Both "Foo#42" and "Foo_42" normalize to "Foo#42". A name without a
// separator is kept as-is.
func NormalizeBattleTag(nickname string) string {
	nickname = strings.TrimSpace(nickname)
	idx := strings.IndexAny(nickname, "#_")
	if idx <= 0 || idx == len(nickname)-1 {
		return nickname
	}
	return nickname[:idx] + "#" + nickname[idx+1:]
}

// ToonSuffix drops the leading region/program segment before the first
// hyphen. "2-S2-1-1234567" becomes "S2-1-1234567".
func ToonSuffix(toon string) string {
	if idx := strings.Index(toon, "-"); idx >= 0 {
		return toon[idx+1:]
	}
	return toon
}
