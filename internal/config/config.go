package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	// PlayerTag is the battle-tag of the local player, used to tell "you"
	// from "opponent" when rendering history. Required.
	PlayerTag string

	ReplayFolder    string
	ReplayRecursive bool

	DBPath      string
	DecoderPath string

	LadderAPIKey string
	OverlayPort  string
	LogLevel     string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		PlayerTag:       getEnv("PLAYER_TAG", ""),
		ReplayFolder:    getEnv("REPLAY_FOLDER", defaultReplayFolder()),
		ReplayRecursive: getEnvBool("REPLAY_RECURSIVE", true),
		DBPath:          getEnv("DB_PATH", "companion.db"),
		DecoderPath:     getEnv("DECODER_PATH", "sc2decoder"),
		LadderAPIKey:    getEnv("LADDER_API_KEY", ""),
		OverlayPort:     getEnv("OVERLAY_PORT", "7311"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	if cfg.PlayerTag == "" {
		return nil, fmt.Errorf("PLAYER_TAG is required")
	}

	logger.Info().
		Str("player_tag", cfg.PlayerTag).
		Str("replay_folder", cfg.ReplayFolder).
		Bool("recursive", cfg.ReplayRecursive).
		Str("db_path", cfg.DBPath).
		Str("overlay_port", cfg.OverlayPort).
		Str("log_level", cfg.LogLevel).
		Msg("configuration loaded")

	return cfg, nil
}

func defaultReplayFolder() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home + "/Documents/StarCraft II/Accounts"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

var Module = fx.Provide(Load)
