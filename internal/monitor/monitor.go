package monitor

import (
	"context"
	"os"
	"strings"
	"time"

	"sc2companion/internal/constants"

	"github.com/rs/zerolog"
)

// Monitor polls the game's lobby file to detect match start and end. The
// game writes every lobby participant's display name into a single
// well-known temp file while a match is loading and removes it afterwards.
type Monitor struct {
	lobbyPath string
	playerTag string
	logger    zerolog.Logger

	onMatchStart func(opponent string)
	onMatchEnd   func()

	inMatch bool
}

func New(lobbyPath, playerTag string, logger zerolog.Logger) *Monitor {
	return &Monitor{lobbyPath: lobbyPath, playerTag: playerTag, logger: logger}
}

func (m *Monitor) OnMatchStart(fn func(opponent string)) { m.onMatchStart = fn }
func (m *Monitor) OnMatchEnd(fn func())                  { m.onMatchEnd = fn }

// Run polls until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(constants.LobbyPollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Monitor) poll() {
	opponent, found := m.readLobby()

	switch {
	case found && !m.inMatch:
		m.inMatch = true
		m.logger.Info().Str("opponent", opponent).Msg("match started")
		if m.onMatchStart != nil {
			m.onMatchStart(opponent)
		}
	case !found && m.inMatch:
		m.inMatch = false
		m.logger.Info().Msg("match ended")
		if m.onMatchEnd != nil {
			m.onMatchEnd()
		}
	}
}

// readLobby extracts the opponent name from the lobby file: the first
// participant entry that is not the configured player tag.
func (m *Monitor) readLobby() (string, bool) {
	raw, err := os.ReadFile(m.lobbyPath)
	if err != nil {
		return "", false
	}

	names := ExtractNames(raw)
	for _, name := range names {
		if !strings.EqualFold(name, m.playerTag) {
			return name, true
		}
	}
	if len(names) > 0 {
		return "", true
	}
	return "", false
}

// ExtractNames pulls printable participant names out of the lobby file's
// binary content. Names are the runs of printable characters around the
// battle-tag separator.
func ExtractNames(raw []byte) []string {
	var names []string
	var current strings.Builder

	flush := func() {
		if current.Len() >= 3 && strings.ContainsAny(current.String(), "#_") {
			names = append(names, current.String())
		}
		current.Reset()
	}

	for _, b := range raw {
		if b >= 0x20 && b < 0x7f {
			current.WriteByte(b)
		} else {
			flush()
		}
	}
	flush()

	return names
}
