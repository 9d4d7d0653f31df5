package service

import (
	"github.com/rs/zerolog"
)

// ProgressSink receives scan progress. Progress counts are monotonically
// increasing but arrive out of strict file order when insertion is parallel.
type ProgressSink interface {
	Discovered(total int)
	Decoded(done, total int)
	Progress(done, total int)
	FileFailed(path string, err error)
	Completed(succeeded, failed int)
}

type logSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) ProgressSink {
	return &logSink{logger: logger}
}

func (s *logSink) Discovered(total int) {
	s.logger.Info().Int("total", total).Msg("replay files discovered")
}

func (s *logSink) Decoded(done, total int) {
	s.logger.Debug().Int("done", done).Int("total", total).Msg("replay decoded")
}

func (s *logSink) Progress(done, total int) {
	s.logger.Debug().Int("done", done).Int("total", total).Msg("replay processed")
}

func (s *logSink) FileFailed(path string, err error) {
	s.logger.Warn().Err(err).Str("path", path).Msg("replay skipped")
}

func (s *logSink) Completed(succeeded, failed int) {
	s.logger.Info().Int("succeeded", succeeded).Int("failed", failed).Msg("scan completed")
}

// NopSink discards progress. Used where the caller supplies no sink.
type NopSink struct{}

func (NopSink) Discovered(int)           {}
func (NopSink) Decoded(int, int)         {}
func (NopSink) Progress(int, int)        {}
func (NopSink) FileFailed(string, error) {}
func (NopSink) Completed(int, int)       {}
