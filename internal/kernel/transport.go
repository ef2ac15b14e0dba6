package kernel

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// Buffered capacity of the shell and iopub channels. Trailing
	// messages from a finished submission park here until the next pump
	// drains and discards them.
	channelBufferSize = 64

	// A single frame can carry a base64-encoded figure.
	maxFrameSize = 32 << 20

	initialScanSize = 64 << 10
)

// Config describes the interpreter child process.
type Config struct {
	// Python is the interpreter binary, normally <env_dir>/bin/python.
	Python string
	// Args are passed to the interpreter, normally the launcher path.
	Args []string
	// Dir is the child's working directory.
	Dir string
	// Env is the full child environment; nil inherits the parent's.
	Env []string
	// StartTimeout bounds the readiness handshake.
	StartTimeout time.Duration
}

// Transport owns one interpreter subprocess and demultiplexes its framed
// output into per-channel Go channels. Both channels close when the child's
// stdout reaches EOF; Done is closed once the child has been reaped.
type Transport struct {
	cmd    *exec.Cmd
	logger *zerolog.Logger

	writeMu sync.Mutex
	stdin   io.WriteCloser

	shell chan Message
	iopub chan Message
	done  chan struct{}

	closeOnce sync.Once
}

// Start launches the child, wires the demultiplexer, and performs the
// kernel_info readiness handshake. On any failure the child is killed and
// reaped before returning.
func Start(cfg Config, logger *zerolog.Logger) (*Transport, error) {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 60 * time.Second
	}

	cmd := exec.Command(cfg.Python, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = cfg.Env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("kernel: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("kernel: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("kernel: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("kernel: start %s: %w", cfg.Python, err)
	}

	t := &Transport{
		cmd:    cmd,
		logger: logger,
		stdin:  stdin,
		shell:  make(chan Message, channelBufferSize),
		iopub:  make(chan Message, channelBufferSize),
		done:   make(chan struct{}),
	}

	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() {
		defer pumps.Done()
		demuxFrames(stdout, t.shell, t.iopub, logger)
	}()
	go func() {
		defer pumps.Done()
		drainStderr(stderr, logger)
	}()
	go func() {
		pumps.Wait()
		if err := cmd.Wait(); err != nil {
			logger.Debug().Err(err).Msg("kernel process exited")
		}
		close(t.done)
	}()

	if err := t.handshake(cfg.StartTimeout); err != nil {
		t.Close()
		<-t.done
		return nil, err
	}

	return t, nil
}

// handshake sends kernel_info_request and waits for the matching reply.
func (t *Transport) handshake(timeout time.Duration) error {
	req, err := NewKernelInfoRequest()
	if err != nil {
		return err
	}
	if err := t.Send(req); err != nil {
		return fmt.Errorf("kernel: handshake send: %w", err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case msg, ok := <-t.shell:
			if !ok {
				return errors.New("kernel: exited before becoming ready")
			}
			if msg.Header.MsgType == MsgTypeKernelInfoReply && msg.ParentID() == req.Header.MsgID {
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("kernel: not ready after %s", timeout)
		}
	}
}

// Send writes one frame to the child. Safe for concurrent use.
func (t *Transport) Send(msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("kernel: marshal frame: %w", err)
	}
	raw = append(raw, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(raw); err != nil {
		return fmt.Errorf("kernel: write frame: %w", err)
	}
	return nil
}

// Shell returns the request/reply channel.
func (t *Transport) Shell() <-chan Message { return t.shell }

// IOPub returns the published-output channel.
func (t *Transport) IOPub() <-chan Message { return t.iopub }

// Done is closed once the child has exited and been reaped.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Close terminates the child. Idempotent; reaping happens asynchronously
// and completion is observable through Done.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.stdin.Close()
		t.writeMu.Unlock()
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
	})
	return nil
}

// demuxFrames routes newline-delimited JSON frames from r onto the shell
// and iopub channels and closes both when r is exhausted. Unparseable
// lines are logged and dropped so stray child output cannot wedge the
// protocol.
func demuxFrames(r io.Reader, shell, iopub chan<- Message, logger *zerolog.Logger) {
	defer close(shell)
	defer close(iopub)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialScanSize), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			logger.Warn().Err(err).Int("len", len(line)).Msg("dropping unparseable kernel frame")
			continue
		}

		switch msg.Channel {
		case ChannelShell:
			shell <- msg
		case ChannelIOPub:
			iopub <- msg
		default:
			logger.Warn().Str("channel", msg.Channel).Str("msg_type", msg.Header.MsgType).Msg("dropping frame on unknown channel")
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn().Err(err).Msg("kernel output scanner stopped")
	}
}

func drainStderr(r io.Reader, logger *zerolog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialScanSize), maxFrameSize)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			logger.Debug().Str("stream", "kernel_stderr").Msg(line)
		}
	}
}
