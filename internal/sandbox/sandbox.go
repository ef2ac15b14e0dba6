package sandbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/replbox/replbox/internal/metrics"
	"github.com/replbox/replbox/pkg/types"
)

// Sandbox is one live sandbox tracked by the registry: its directories,
// interpreter session, and execution journal.
type Sandbox struct {
	ID        string
	CreatedAt time.Time
	Dirs      Dirs

	session Session
	journal *Journal
	logger  *zerolog.Logger

	// timer is the expiry timer; armed by the registry at registration
	// and disarmed by whoever unregisters first.
	timer *time.Timer
}

// Execute runs code in the sandbox interpreter and journals the outcome.
func (s *Sandbox) Execute(ctx context.Context, code string) (*types.Execution, error) {
	return s.runExecute(ctx, code, nil)
}

// ExecuteStream is Execute with live output events delivered to emit as
// the interpreter produces them.
func (s *Sandbox) ExecuteStream(ctx context.Context, code string, emit func(types.StreamEvent)) (*types.Execution, error) {
	return s.runExecute(ctx, code, emit)
}

func (s *Sandbox) runExecute(ctx context.Context, code string, emit func(types.StreamEvent)) (*types.Execution, error) {
	started := time.Now()
	var (
		rec *types.Execution
		err error
	)
	if emit != nil {
		rec, err = s.session.ExecuteStream(ctx, code, emit)
	} else {
		rec, err = s.session.Execute(ctx, code)
	}
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues("internal_error").Inc()
		return nil, err
	}

	duration := time.Since(started)
	status := "ok"
	if rec.Error != nil {
		status = "user_error"
	}
	metrics.ExecutionsTotal.WithLabelValues(status).Inc()
	metrics.ExecutionDuration.Observe(duration.Seconds())

	if s.journal != nil {
		if jerr := s.journal.RecordExecute(started, duration, rec); jerr != nil {
			s.logger.Warn().Err(jerr).Msg("journal write failed")
		}
	}
	return rec, nil
}

// Install installs a package into the sandbox environment and journals
// the attempt.
func (s *Sandbox) Install(ctx context.Context, pkg string) (*types.InstallResult, error) {
	started := time.Now()
	res, err := s.session.Install(ctx, pkg)
	if err != nil {
		return nil, err
	}

	status := "ok"
	if !res.Success {
		status = "failed"
	}
	metrics.InstallsTotal.WithLabelValues(status).Inc()

	if s.journal != nil {
		if jerr := s.journal.RecordInstall(started, time.Since(started), pkg, res.Success); jerr != nil {
			s.logger.Warn().Err(jerr).Msg("journal write failed")
		}
	}
	return res, nil
}

// Executions returns this sandbox's journal rows in execution order.
func (s *Sandbox) Executions() ([]types.ExecutionSummary, error) {
	if s.journal == nil {
		return []types.ExecutionSummary{}, nil
	}
	return s.journal.List()
}

// WorkDir is the directory all file operations are confined to.
func (s *Sandbox) WorkDir() string {
	return s.Dirs.WorkDir
}
