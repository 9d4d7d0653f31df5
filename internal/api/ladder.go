package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sc2companion/internal/config"
	"sc2companion/internal/constants"

	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"
)

const baseURL = "https://sc2pulse.nephest.com/sc2/api"

// LadderClient fetches live ladder statistics for an opponent. Seasonal
// stats are tried first with retry/backoff; when the current season has no
// data for the player the legacy aggregate endpoint is the fallback.
type LadderClient struct {
	apiKey string
	base   string
	client *fasthttp.Client
}

type LadderStats struct {
	BattleTag   string  `json:"battle_tag"`
	Race        string  `json:"race"`
	MMR         int     `json:"mmr"`
	League      string  `json:"league"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	GamesPlayed int     `json:"games_played"`
	WinRate     float64 `json:"win_rate"`
	Seasonal    bool    `json:"seasonal"`
}

type statsResponse struct {
	Status int          `json:"status"`
	Data   []seasonStat `json:"data"`
}

type seasonStat struct {
	BattleTag string `json:"battle_tag"`
	Race      string `json:"race"`
	MMR       int    `json:"mmr"`
	Wins      int    `json:"wins"`
	Losses    int    `json:"losses"`
}

func NewLadderClient(cfg *config.Config) *LadderClient {
	return &LadderClient{
		apiKey: cfg.LadderAPIKey,
		base:   baseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

// GetStats resolves an opponent's ladder standing: seasonal first, legacy
// aggregate as fallback when the season returns nothing.
func (c *LadderClient) GetStats(ctx context.Context, battleTag string) (*LadderStats, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	stats, err := c.getSeasonStats(ctx, battleTag)
	if err != nil {
		return nil, err
	}
	if stats != nil {
		return stats, nil
	}

	return c.getLegacyStats(ctx, battleTag)
}

func (c *LadderClient) getSeasonStats(ctx context.Context, battleTag string) (*LadderStats, error) {
	url := fmt.Sprintf("%s/v1/season/stats/%s", c.base, battleTag)

	resp, err := c.doWithRetry(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("seasonal stats for %s: %w", battleTag, err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}

	return fromSeasonStat(resp.Data[0], true), nil
}

func (c *LadderClient) getLegacyStats(ctx context.Context, battleTag string) (*LadderStats, error) {
	url := fmt.Sprintf("%s/v1/legacy/stats/%s", c.base, battleTag)

	resp, err := c.doWithRetry(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("legacy stats for %s: %w", battleTag, err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}

	return fromSeasonStat(resp.Data[0], false), nil
}

func (c *LadderClient) doWithRetry(ctx context.Context, url string) (*statsResponse, error) {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	var result *statsResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.doRequest(ctx, url)
		if err != nil {
			return retry.RetryableError(err)
		}
		result = resp
		return nil
	})
	return result, err
}

func (c *LadderClient) doRequest(ctx context.Context, url string) (*statsResponse, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := c.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result statsResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func fromSeasonStat(stat seasonStat, seasonal bool) *LadderStats {
	games := stat.Wins + stat.Losses
	winRate := 0.0
	if games > 0 {
		winRate = float64(stat.Wins) / float64(games)
	}
	return &LadderStats{
		BattleTag:   stat.BattleTag,
		Race:        stat.Race,
		MMR:         stat.MMR,
		League:      ClassifyLeague(stat.MMR),
		Wins:        stat.Wins,
		Losses:      stat.Losses,
		GamesPlayed: games,
		WinRate:     winRate,
		Seasonal:    seasonal,
	}
}

// ClassifyLeague buckets an MMR value into the ladder league it roughly
// corresponds to.
func ClassifyLeague(mmr int) string {
	switch {
	case mmr >= 5600:
		return "Grandmaster"
	case mmr >= 4800:
		return "Master"
	case mmr >= 4000:
		return "Diamond"
	case mmr >= 3300:
		return "Platinum"
	case mmr >= 2600:
		return "Gold"
	case mmr >= 1900:
		return "Silver"
	default:
		return "Bronze"
	}
}
