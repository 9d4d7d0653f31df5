package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestExtractNames(t *testing.T) {
	raw := []byte("\x00\x02Me#1\x00\x05Opponent#42\x00junk\x01ab")

	names := ExtractNames(raw)
	require.Equal(t, []string{"Me#1", "Opponent#42"}, names)
}

func TestExtractNamesEmpty(t *testing.T) {
	require.Empty(t, ExtractNames(nil))
	require.Empty(t, ExtractNames([]byte{0x00, 0x01, 0x02}))
}

func TestPollDetectsMatchLifecycle(t *testing.T) {
	dir := t.TempDir()
	lobby := filepath.Join(dir, "replay.server.battlelobby")

	m := New(lobby, "Me#1", zerolog.Nop())

	var started []string
	ended := 0
	m.OnMatchStart(func(opponent string) { started = append(started, opponent) })
	m.OnMatchEnd(func() { ended++ })

	// no lobby file yet
	m.poll()
	require.Empty(t, started)

	require.NoError(t, os.WriteFile(lobby, []byte("\x00Me#1\x00\x03Opponent#42\x00"), 0o644))
	m.poll()
	m.poll() // still in the same match, no second callback
	require.Equal(t, []string{"Opponent#42"}, started)
	require.Zero(t, ended)

	require.NoError(t, os.Remove(lobby))
	m.poll()
	require.Equal(t, 1, ended)
}
