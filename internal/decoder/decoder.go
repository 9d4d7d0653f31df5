package decoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"sc2companion/internal/config"
	"sc2companion/internal/constants"
	"sc2companion/internal/domain"

	"github.com/rs/zerolog"
)

// Extractor turns a replay file into structured match facts. Implementations
// are consumed as black boxes: decode semantics live entirely behind this
// boundary and a failure for one file never means more than a skipped file.
type Extractor interface {
	Extract(ctx context.Context, path string) (*domain.ReplayMetadata, error)
}

// Factory builds one Extractor instance. The underlying decoder may hold
// thread-affinity state, so each concurrent pipeline slot gets its own
// instance rather than sharing one.
type Factory func() (Extractor, error)

// ExecExtractor shells out to an external decoder binary that prints a JSON
// metadata record for the given replay file.
type ExecExtractor struct {
	binPath string
	logger  zerolog.Logger
}

func NewExecExtractor(cfg *config.Config, logger zerolog.Logger) *ExecExtractor {
	return &ExecExtractor{binPath: cfg.DecoderPath, logger: logger}
}

func NewFactory(cfg *config.Config, logger zerolog.Logger) Factory {
	return func() (Extractor, error) {
		return NewExecExtractor(cfg, logger), nil
	}
}

func (e *ExecExtractor) Extract(ctx context.Context, path string) (*domain.ReplayMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DecodeTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.binPath, "--json", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		e.logger.Debug().
			Err(err).
			Str("path", path).
			Str("stderr", stderr.String()).
			Msg("decoder invocation failed")
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	var meta domain.ReplayMetadata
	if err := json.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return nil, fmt.Errorf("decode %s: malformed decoder output: %w", path, err)
	}
	meta.FilePath = path

	return &meta, nil
}

// Pool hands out one Extractor per concurrent slot. Acquire blocks until an
// instance is free or the context is done.
type Pool struct {
	slots chan Extractor
}

func NewPool(factory Factory, size int) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	slots := make(chan Extractor, size)
	for i := 0; i < size; i++ {
		ex, err := factory()
		if err != nil {
			return nil, fmt.Errorf("failed to build extractor %d: %w", i, err)
		}
		slots <- ex
	}
	return &Pool{slots: slots}, nil
}

func (p *Pool) Acquire(ctx context.Context) (Extractor, error) {
	select {
	case ex := <-p.slots:
		return ex, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) Release(ex Extractor) {
	p.slots <- ex
}
