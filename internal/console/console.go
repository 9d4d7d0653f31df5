package console

import (
	"fmt"
	"io"
	"text/tabwriter"

	"sc2companion/internal/api"
	"sc2companion/internal/domain"
)

// Renderer writes plain-text panels for the host terminal.
type Renderer struct {
	out io.Writer
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

func (r *Renderer) MatchHistory(opponent string, games []domain.Replay, myID int64) {
	fmt.Fprintf(r.out, "\n=== History vs %s (%d games) ===\n", opponent, len(games))
	if len(games) == 0 {
		fmt.Fprintln(r.out, "no previous games on record")
		return
	}

	w := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tMAP\tMATCHUP\tVERSION")
	for _, g := range games {
		matchup := g.Player1Race + "v" + g.Player2Race
		if g.Player2ID == myID {
			matchup = g.Player2Race + "v" + g.Player1Race
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			g.GameAt.Format("2006-01-02 15:04"), g.MapName, matchup, g.Version)
	}
	w.Flush()
}

func (r *Renderer) BuildOrder(entries []domain.BuildOrderEntry) {
	fmt.Fprintf(r.out, "\n=== Last build order (%d entries) ===\n", len(entries))
	if len(entries) == 0 {
		return
	}

	w := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tITEM")
	for _, e := range entries {
		fmt.Fprintf(w, "%d:%02d\t%s\t%s\n", e.Elapsed/60, e.Elapsed%60, e.Kind, e.Item)
	}
	w.Flush()
}

func (r *Renderer) LadderStats(stats *api.LadderStats) {
	fmt.Fprintln(r.out, "\n=== Ladder ===")
	if stats == nil {
		fmt.Fprintln(r.out, "no ladder data found")
		return
	}

	source := "season"
	if !stats.Seasonal {
		source = "legacy"
	}
	fmt.Fprintf(r.out, "%s  %s %d MMR (%s)  %d-%d (%.0f%%)  [%s]\n",
		stats.BattleTag, stats.League, stats.MMR, stats.Race,
		stats.Wins, stats.Losses, stats.WinRate*100, source)
}
