package domain

import (
	"time"
)

type Player struct {
	ID        int64
	Nickname  string
	BattleTag string // normalized Name#Number
	Toon      string // region-program-realm-id handle, synthesized when unknown
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Replay struct {
	ID          int64
	ReplayHash  string // file name + game timestamp, stable across moves; informational
	Player1ID   int64
	Player2ID   int64
	Player1Race string
	Player2Race string
	MapName     string
	GameAt      time.Time
	FilePath    string // unique; the dedup key for incremental sync
	Version     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type BuildOrderEntry struct {
	ID         int64
	ReplayID   int64
	PlayerSlot int    // raw game-engine slot, not a Player reference
	Elapsed    int    // seconds into the game
	Kind       string // "unit", "building" or "upgrade"
	Item       string
	CreatedAt  time.Time
}

type CacheState struct {
	ConfigHash      string
	Initialized     bool
	LastValidatedAt time.Time // zero when never validated
}

// ReplayMetadata is what the external decoder hands back for one file.
type ReplayMetadata struct {
	FilePath string         `json:"file_path"`
	MapName  string         `json:"map_name"`
	GameAt   time.Time      `json:"game_at"`
	Version  string         `json:"version,omitempty"`
	Players  [2]PlayerFacts `json:"players"`
	Build    []BuildFact    `json:"build"`
}

type PlayerFacts struct {
	Nickname string `json:"nickname"`
	Toon     string `json:"toon,omitempty"`
	Race     string `json:"race"`
	Slot     int    `json:"slot"`
}

type BuildFact struct {
	Slot    int    `json:"slot"`
	Elapsed int    `json:"elapsed"`
	Kind    string `json:"kind"`
	Item    string `json:"item"`
}
