// Package ipc runs a native YOLO inference engine as a child process and
// talks to it over stdio using the framed msgpack codec from the wire
// package.  The Engine type implements wire.Messenger so the client facade
// can sit on top of a local child process or any other transport unchanged
package ipc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swdee/go-yolobridge/wire"
)

// ErrEngineClosed is returned for calls made before Start or after the
// engine process has gone away
var ErrEngineClosed = errors.New("engine is not running")

const (
	// defaultWriteTimeout bounds a single frame write to the engine's
	// stdin.  A write stalled this long means the child has wedged
	defaultWriteTimeout = 2 * time.Second

	// defaultStopTimeout is how long Stop waits for the child to exit
	// before killing it
	defaultStopTimeout = 2 * time.Second

	// eventBuffer is the queue depth of a subscriber channel.  Events
	// beyond it are dropped so a slow consumer cannot stall the read loop
	eventBuffer = 64
)

// Config holds the engine process settings
type Config struct {
	// Path is the engine binary to execute
	Path string
	// Args are extra command line arguments passed to the engine
	Args []string
	// Dir is the working directory of the engine process, inherits the
	// parent's when empty
	Dir string
	// Env is the environment of the engine process, inherits the parent's
	// when nil
	Env []string
	// CPUMask optionally pins the engine process to a set of CPU cores,
	// build one with CPUCoreMask.  Zero leaves the affinity alone
	CPUMask uintptr
	// WriteTimeout bounds a single frame write to the engine, defaults to
	// two seconds
	WriteTimeout time.Duration
	// StopTimeout is how long Stop waits for process teardown to complete
	// before forcing a kill, defaults to two seconds
	StopTimeout time.Duration
	// Logger receives lifecycle messages and relayed engine stderr output,
	// defaults to slog.Default()
	Logger *slog.Logger
}

// Engine is a native inference engine running as a child process.  Requests
// are written to the child's stdin, responses are matched back to waiting
// callers by frame ID and event frames are fanned out to channel
// subscribers.  An Engine may be started again after the process exits
type Engine struct {
	cfg Config
	log *slog.Logger

	// runMu guards the process lifecycle fields below
	runMu   sync.Mutex
	running bool
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// writeMu serializes frame writes so request frames never interleave
	writeMu sync.Mutex

	nextID uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan *wire.Frame

	subMu  sync.Mutex
	subSeq uint64
	subs   map[string]map[string]chan any
}

// NewEngine creates an engine for the given binary.  The process is not
// launched until Start is called
func NewEngine(cfg Config) (*Engine, error) {

	if cfg.Path == "" {
		return nil, errors.New("engine binary path is required")
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}

	logger := cfg.Logger

	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg: cfg,
		log: logger,
	}, nil
}

// Start launches the engine process and begins serving calls.  The context
// covers the lifetime of the process, cancelling it shuts the engine down
func (e *Engine) Start(ctx context.Context) error {

	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.running {
		return errors.New("engine already running")
	}

	ctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(ctx, e.cfg.Path, e.cfg.Args...)
	cmd.Dir = e.cfg.Dir
	cmd.Env = e.cfg.Env

	stdin, err := cmd.StdinPipe()

	if err != nil {
		cancel()
		return fmt.Errorf("error creating stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()

	if err != nil {
		cancel()
		return fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()

	if err != nil {
		cancel()
		return fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("error starting engine: %w", err)
	}

	if e.cfg.CPUMask != 0 {
		if err := setProcessAffinity(cmd.Process.Pid, e.cfg.CPUMask); err != nil {
			e.log.Warn("error setting engine CPU affinity", "error", err)
		}
	}

	e.cmd = cmd
	e.stdin = stdin
	e.cancel = cancel
	e.running = true

	e.resetRouting()

	e.wg.Add(3)
	go e.readLoop(stdout)
	go e.logStderr(stderr)
	go e.waitProcess(ctx)

	e.log.Info("engine started", "path", e.cfg.Path, "pid", cmd.Process.Pid)

	return nil
}

// Stop shuts the engine down.  Outstanding calls fail with
// ErrEngineClosed, subscriber channels close, and the process is killed
// if teardown stalls.  It is safe to call more than once
func (e *Engine) Stop() error {

	e.runMu.Lock()

	if !e.running {
		e.runMu.Unlock()
		return nil
	}

	e.running = false
	cancel := e.cancel
	stdin := e.stdin
	cmd := e.cmd
	e.stdin = nil

	e.runMu.Unlock()

	cancel()
	stdin.Close()

	done := make(chan struct{})

	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:

	case <-time.After(e.cfg.StopTimeout):
		e.log.Warn("engine did not exit in time, killing process")
		cmd.Process.Kill()
		<-done
	}

	e.log.Info("engine stopped")

	return nil
}

// Running reports whether the engine process is up
func (e *Engine) Running() bool {

	e.runMu.Lock()
	defer e.runMu.Unlock()

	return e.running
}

// Invoke sends a request frame to the engine and waits for the matching
// response.  Failures reported by the engine come back as a
// *wire.CodedError, loss of the engine as ErrEngineClosed
func (e *Engine) Invoke(ctx context.Context, channel, method string, args wire.Map) (any, error) {

	id := atomic.AddUint64(&e.nextID, 1)

	ch, err := e.addPending(id)

	if err != nil {
		return nil, err
	}

	defer e.removePending(id)

	req := &wire.Frame{
		Type:    wire.FrameRequest,
		ID:      id,
		Channel: channel,
		Method:  method,
		Args:    args,
	}

	if err := e.writeFrame(req); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case reply, ok := <-ch:
		if !ok {
			return nil, ErrEngineClosed
		}

		if reply.Error != nil {
			return nil, reply.Error.CodedError()
		}

		return reply.Result, nil
	}
}

// Subscribe attaches to a named event channel.  The returned channel is
// closed when the engine goes away, callers resubscribe after restarting it
func (e *Engine) Subscribe(channel string) (string, <-chan any, error) {

	e.subMu.Lock()
	defer e.subMu.Unlock()

	if e.subs == nil {
		return "", nil, ErrEngineClosed
	}

	e.subSeq++
	id := "sub-" + strconv.FormatUint(e.subSeq, 10)

	if e.subs[channel] == nil {
		e.subs[channel] = make(map[string]chan any)
	}

	ch := make(chan any, eventBuffer)
	e.subs[channel][id] = ch

	return id, ch, nil
}

// Unsubscribe detaches a subscription and closes its channel
func (e *Engine) Unsubscribe(channel, id string) {

	e.subMu.Lock()
	defer e.subMu.Unlock()

	subs := e.subs[channel]

	ch, ok := subs[id]

	if !ok {
		return
	}

	delete(subs, id)

	if len(subs) == 0 {
		delete(e.subs, channel)
	}

	close(ch)
}

// resetRouting prepares fresh routing tables for a new engine session
func (e *Engine) resetRouting() {

	e.pendingMu.Lock()
	e.pending = make(map[uint64]chan *wire.Frame)
	e.pendingMu.Unlock()

	e.subMu.Lock()
	e.subs = make(map[string]map[string]chan any)
	e.subMu.Unlock()
}

// shutdownRouting fails outstanding calls and closes subscriber channels
// once the engine stream is gone
func (e *Engine) shutdownRouting() {

	e.pendingMu.Lock()

	for id, ch := range e.pending {
		close(ch)
		delete(e.pending, id)
	}

	e.pending = nil
	e.pendingMu.Unlock()

	e.subMu.Lock()

	for _, subs := range e.subs {
		for _, ch := range subs {
			close(ch)
		}
	}

	e.subs = nil
	e.subMu.Unlock()
}

func (e *Engine) addPending(id uint64) (chan *wire.Frame, error) {

	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()

	if e.pending == nil {
		return nil, ErrEngineClosed
	}

	ch := make(chan *wire.Frame, 1)
	e.pending[id] = ch

	return ch, nil
}

func (e *Engine) removePending(id uint64) {

	e.pendingMu.Lock()
	delete(e.pending, id)
	e.pendingMu.Unlock()
}

// writeFrame serializes one frame to the engine's stdin.  The whole frame
// is buffered first so a single write hits the pipe, and the write is
// bounded by the write timeout
func (e *Engine) writeFrame(f *wire.Frame) error {

	var buf bytes.Buffer

	if err := wire.WriteFrame(&buf, f); err != nil {
		return err
	}

	e.runMu.Lock()
	w := e.stdin
	e.runMu.Unlock()

	if w == nil {
		return ErrEngineClosed
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	done := make(chan error, 1)

	go func() {
		_, err := w.Write(buf.Bytes())
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("error writing to engine: %w", err)
		}

		return nil

	case <-time.After(e.cfg.WriteTimeout):
		return fmt.Errorf("timeout writing to engine after %s", e.cfg.WriteTimeout)
	}
}

// readLoop consumes frames from the engine until the stream ends, routing
// responses to waiting callers and events to subscribers
func (e *Engine) readLoop(out io.Reader) {

	defer e.wg.Done()
	defer e.shutdownRouting()

	for {
		f, err := wire.ReadFrame(out)

		if err != nil {
			if errors.Is(err, wire.ErrBadFrame) {
				// stream is still aligned on the next length prefix
				e.log.Debug("skipping undecodable engine frame", "error", err)
				continue
			}

			if err == io.EOF || errors.Is(err, os.ErrClosed) ||
				errors.Is(err, io.ErrClosedPipe) {
				e.log.Debug("engine stream closed")
			} else {
				e.log.Error("error reading engine stream", "error", err)
			}

			return
		}

		switch f.Type {
		case wire.FrameResponse:
			e.dispatchResponse(f)
		case wire.FrameEvent:
			e.dispatchEvent(f)
		default:
			e.log.Debug("dropping frame of unknown type", "type", f.Type)
		}
	}
}

func (e *Engine) dispatchResponse(f *wire.Frame) {

	e.pendingMu.Lock()
	ch, ok := e.pending[f.ID]
	delete(e.pending, f.ID)
	e.pendingMu.Unlock()

	if !ok {
		e.log.Debug("response for unknown request", "id", f.ID)
		return
	}

	ch <- f
}

// dispatchEvent fans an event frame out to the channel's subscribers.  The
// sends stay under the lock so a concurrent Unsubscribe cannot close a
// channel mid delivery
func (e *Engine) dispatchEvent(f *wire.Frame) {

	e.subMu.Lock()
	defer e.subMu.Unlock()

	for _, ch := range e.subs[f.Channel] {
		select {
		case ch <- f.Event:
		default:
			// subscriber is lagging, drop the event
		}
	}
}

// logStderr relays the engine's stderr through the structured log, mapping
// the engine's own level tags onto slog levels
func (e *Engine) logStderr(stderr io.Reader) {

	defer e.wg.Done()

	scanner := bufio.NewScanner(stderr)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.Contains(line, "[ERROR]") || strings.Contains(line, "[CRITICAL]"):
			e.log.Error("engine: " + line)
		case strings.Contains(line, "[WARNING]"):
			e.log.Warn("engine: " + line)
		default:
			e.log.Debug("engine: " + line)
		}
	}
}

// waitProcess reaps the engine process so it does not linger as a zombie
func (e *Engine) waitProcess(ctx context.Context) {

	defer e.wg.Done()

	err := e.cmd.Wait()

	if ctx.Err() != nil {
		e.log.Debug("engine exited after shutdown")
		return
	}

	if err != nil {
		e.log.Error("engine exited unexpectedly", "error", err)
	} else {
		e.log.Warn("engine exited")
	}
}
