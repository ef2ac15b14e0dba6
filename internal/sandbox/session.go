package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/replbox/replbox/internal/kernel"
	"github.com/replbox/replbox/pkg/types"
)

// Session is a live interpreter attached to one sandbox. Execute and
// Install serialize per session; Shutdown may be called at any time,
// including while an execute is in flight.
type Session interface {
	Execute(ctx context.Context, code string) (*types.Execution, error)
	ExecuteStream(ctx context.Context, code string, emit func(types.StreamEvent)) (*types.Execution, error)
	Install(ctx context.Context, pkg string) (*types.InstallResult, error)
	Shutdown() error
}

// SessionConfig carries the tunables for interpreter sessions.
type SessionConfig struct {
	// StartTimeout bounds the readiness handshake and the init snippet.
	StartTimeout time.Duration
	// MessageTimeout bounds each single receive while collecting output.
	// A submission that keeps producing can run far longer than this; one
	// silent gap this long ends collection with a partial record.
	MessageTimeout time.Duration
	// InstallTimeout bounds one package installation.
	InstallTimeout time.Duration
	// Tool runs package installations against the sandbox environment.
	Tool pyTool
}

func (c *SessionConfig) applyDefaults() {
	if c.StartTimeout <= 0 {
		c.StartTimeout = 60 * time.Second
	}
	if c.MessageTimeout <= 0 {
		c.MessageTimeout = time.Hour
	}
	if c.InstallTimeout <= 0 {
		c.InstallTimeout = 120 * time.Second
	}
}

// conduit is the slice of the kernel transport the session depends on.
type conduit interface {
	Send(kernel.Message) error
	Shell() <-chan kernel.Message
	IOPub() <-chan kernel.Message
	Done() <-chan struct{}
	Close() error
}

type kernelSession struct {
	id     string
	dirs   Dirs
	tr     conduit
	cfg    SessionConfig
	logger *zerolog.Logger

	mu  sync.Mutex // serializes Execute and Install
	seq int

	closed    chan struct{}
	closeOnce sync.Once
}

// fontInitSnippet makes any staged .ttf files usable from matplotlib. It
// runs once per session as a silent submission and is a no-op when
// matplotlib or fonts are absent.
const fontInitSnippet = `
def _replbox_register_fonts():
    try:
        import os
        import matplotlib
        from matplotlib import font_manager
        added = []
        for name in sorted(os.listdir(".")):
            if name.lower().endswith(".ttf"):
                font_manager.fontManager.addfont(name)
                added.append(font_manager.FontProperties(fname=name).get_name())
        if added:
            matplotlib.rcParams["font.sans-serif"] = added + list(matplotlib.rcParams["font.sans-serif"])
            matplotlib.rcParams["axes.unicode_minus"] = False
    except Exception:
        pass

_replbox_register_fonts()
del _replbox_register_fonts
`

// StartSession launches the sandbox interpreter inside dirs and waits for
// it to become ready.
func StartSession(id string, dirs Dirs, cfg SessionConfig, logger *zerolog.Logger) (Session, error) {
	cfg.applyDefaults()

	launcher, err := kernel.WriteLauncher(dirs.EnvDir)
	if err != nil {
		return nil, sessionStartErr(err)
	}

	env := append(os.Environ(),
		"VIRTUAL_ENV="+dirs.EnvDir,
		"PATH="+filepath.Join(dirs.EnvDir, "bin")+string(os.PathListSeparator)+os.Getenv("PATH"),
	)

	sub := logger.With().Str("sandbox_id", id).Logger()
	tr, err := kernel.Start(kernel.Config{
		Python:       venvPython(dirs.EnvDir),
		Args:         []string{launcher},
		Dir:          dirs.WorkDir,
		Env:          env,
		StartTimeout: cfg.StartTimeout,
	}, &sub)
	if err != nil {
		return nil, sessionStartErr(err)
	}

	s := newKernelSession(id, dirs, tr, cfg, &sub)

	initCtx, cancel := context.WithTimeout(context.Background(), cfg.StartTimeout)
	defer cancel()
	if _, err := s.execute(initCtx, fontInitSnippet, true, nil); err != nil {
		sub.Warn().Err(err).Msg("session init snippet failed")
	}

	sub.Info().Str("work_dir", dirs.WorkDir).Msg("session ready")
	return s, nil
}

func newKernelSession(id string, dirs Dirs, tr conduit, cfg SessionConfig, logger *zerolog.Logger) *kernelSession {
	cfg.applyDefaults()
	return &kernelSession{
		id:     id,
		dirs:   dirs,
		tr:     tr,
		cfg:    cfg,
		logger: logger,
		closed: make(chan struct{}),
	}
}

func (s *kernelSession) Execute(ctx context.Context, code string) (*types.Execution, error) {
	return s.execute(ctx, code, false, nil)
}

func (s *kernelSession) ExecuteStream(ctx context.Context, code string, emit func(types.StreamEvent)) (*types.Execution, error) {
	return s.execute(ctx, code, false, emit)
}

func (s *kernelSession) execute(ctx context.Context, code string, silent bool, emit func(types.StreamEvent)) (*types.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	req, err := kernel.NewExecuteRequest(code, silent)
	if err != nil {
		return nil, executeErr(err)
	}
	if err := s.tr.Send(req); err != nil {
		if s.isClosed() {
			return nil, ErrSessionClosed
		}
		return nil, executeErr(err)
	}
	if !silent {
		s.seq++
	}

	rec, err := s.pump(ctx, req.Header.MsgID, emit)
	if err != nil {
		return nil, err
	}
	if !silent {
		rec.ExecutionCount = s.seq
	}
	return rec, nil
}

// pump collects everything the interpreter publishes for one submission.
// Messages whose parent id does not match are trailing output of an
// earlier submission and are discarded. Collection ends when the
// interpreter reports idle, or when one receive exceeds MessageTimeout,
// in which case the fragments gathered so far form the record.
func (s *kernelSession) pump(ctx context.Context, parentID string, emit func(types.StreamEvent)) (*types.Execution, error) {
	rec := &types.Execution{
		Stdout:  []string{},
		Stderr:  []string{},
		Results: []types.Result{},
	}

	timer := time.NewTimer(s.cfg.MessageTimeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-s.tr.IOPub():
			if !ok {
				return nil, executeErr(errors.New("interpreter exited during execution"))
			}
			if msg.ParentID() == parentID {
				done, err := s.collect(&msg, rec, emit)
				if err != nil {
					s.logger.Warn().Err(err).Str("msg_type", msg.Header.MsgType).Msg("skipping malformed kernel message")
				}
				if done {
					return rec, nil
				}
			}
		case _, ok := <-s.tr.Shell():
			// Replies carry nothing the iopub stream lacks; receiving
			// them keeps the channel drained.
			if !ok {
				return nil, executeErr(errors.New("interpreter exited during execution"))
			}
		case <-s.closed:
			return nil, ErrSessionClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			s.logger.Warn().Dur("timeout", s.cfg.MessageTimeout).Msg("interpreter went quiet, returning partial record")
			return rec, nil
		}
		timer.Reset(s.cfg.MessageTimeout)
	}
}

func (s *kernelSession) collect(msg *kernel.Message, rec *types.Execution, emit func(types.StreamEvent)) (bool, error) {
	switch msg.Header.MsgType {
	case kernel.MsgTypeStream:
		sc, err := msg.Stream()
		if err != nil {
			return false, err
		}
		text := kernel.StripANSI(sc.Text)
		if sc.Name == "stderr" {
			rec.Stderr = append(rec.Stderr, text)
			if emit != nil {
				emit(types.StreamEvent{Type: "stderr", Text: text})
			}
		} else {
			rec.Stdout = append(rec.Stdout, text)
			if emit != nil {
				emit(types.StreamEvent{Type: "stdout", Text: text})
			}
		}
	case kernel.MsgTypeError:
		ec, err := msg.Err()
		if err != nil {
			return false, err
		}
		rec.Error = &types.ExecutionError{
			Name:      ec.EName,
			Value:     ec.EValue,
			Traceback: kernel.StripANSIAll(ec.Traceback),
		}
		if emit != nil {
			emit(types.StreamEvent{Type: "error", Error: rec.Error})
		}
	case kernel.MsgTypeExecuteResult, kernel.MsgTypeDisplayData:
		dc, err := msg.Display()
		if err != nil {
			return false, err
		}
		for _, md := range dc.Data {
			r := types.Result{Type: md.Mime, Data: md.Data}
			rec.Results = append(rec.Results, r)
			if emit != nil {
				emit(types.StreamEvent{Type: "result", Result: &r})
			}
		}
	case kernel.MsgTypeStatus:
		st, err := msg.Status()
		if err != nil {
			return false, err
		}
		if st.ExecutionState == "idle" {
			return true, nil
		}
	}
	return false, nil
}

// Install runs a package installation against the sandbox environment.
// A failed install is reported in the result, not as an error, so callers
// always get the captured installer output.
func (s *kernelSession) Install(ctx context.Context, pkg string) (*types.InstallResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	ictx, cancel := context.WithTimeout(ctx, s.cfg.InstallTimeout)
	defer cancel()

	ok, stdout, stderr, err := s.cfg.Tool.install(ictx, s.dirs.EnvDir, pkg)
	res := &types.InstallResult{Success: ok, Stdout: stdout, Stderr: stderr}
	switch {
	case err != nil:
		res.Message = fmt.Sprintf("Installation error: %s", err)
		s.logger.Warn().Err(err).Str("package", pkg).Msg("package install errored")
	case ok:
		res.Message = fmt.Sprintf("Successfully installed package: %s", pkg)
		s.logger.Info().Str("package", pkg).Msg("package installed")
	default:
		res.Message = fmt.Sprintf("Failed to install package: %s", pkg)
		s.logger.Warn().Str("package", pkg).Msg("package install failed")
	}
	return res, nil
}

// Shutdown terminates the interpreter and removes the sandbox
// directories. Idempotent; a concurrent execute observes the close and
// returns ErrSessionClosed.
func (s *kernelSession) Shutdown() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.tr.Close()

		// Wait briefly for the child to be reaped so directory removal
		// does not race an exiting process.
		select {
		case <-s.tr.Done():
		case <-time.After(5 * time.Second):
			s.logger.Warn().Msg("interpreter slow to exit, removing directories anyway")
		}

		var errs error
		if err := os.RemoveAll(s.dirs.WorkDir); err != nil {
			errs = errors.Join(errs, err)
		}
		if err := os.RemoveAll(s.dirs.EnvDir); err != nil {
			errs = errors.Join(errs, err)
		}
		if errs != nil {
			s.logger.Warn().Err(errs).Msg("session teardown incomplete")
		} else {
			s.logger.Info().Msg("session closed")
		}
	})
	return nil
}

func (s *kernelSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
