package ipc

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-yolobridge/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startPipeEngine wires an Engine over in memory pipes so tests can play
// the engine side of the protocol without spawning a process.  The returned
// reader is the engine's stdin end and the writer its stdout end
func startPipeEngine(t *testing.T) (*Engine, *io.PipeReader, *io.PipeWriter) {

	t.Helper()

	e, err := NewEngine(Config{Path: "/opt/yolo/engine", Logger: testLogger()})
	require.NoError(t, err)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	e.stdin = inW
	e.resetRouting()

	e.wg.Add(1)
	go e.readLoop(outR)

	t.Cleanup(func() {
		outW.Close()
		e.wg.Wait()
		inR.Close()
		inW.Close()
	})

	return e, inR, outW
}

// recvEvent receives one event payload or fails the test after a timeout
func recvEvent(t *testing.T, ev <-chan any) any {

	t.Helper()

	select {
	case v, ok := <-ev:
		require.True(t, ok, "event channel closed")
		return v

	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestNewEngineRequiresPath(t *testing.T) {

	_, err := NewEngine(Config{})
	assert.Error(t, err)
}

func TestEngineInvoke(t *testing.T) {

	e, in, out := startPipeEngine(t)

	go func() {
		req, err := wire.ReadFrame(in)

		if !assert.NoError(t, err) {
			return
		}

		assert.Equal(t, wire.FrameRequest, req.Type)
		assert.Equal(t, wire.DefaultMethodChannel, req.Channel)
		assert.Equal(t, "loadModel", req.Method)
		assert.Equal(t, "yolo11n.tflite", wire.String(req.Args, "modelPath", ""))
		assert.Equal(t, "detect", wire.String(req.Args, "task", ""))

		wire.WriteFrame(out, &wire.Frame{
			Type:   wire.FrameResponse,
			ID:     req.ID,
			Result: true,
		})
	}()

	res, err := e.Invoke(context.Background(), wire.DefaultMethodChannel,
		"loadModel", wire.Map{"modelPath": "yolo11n.tflite", "task": "detect"})

	require.NoError(t, err)
	assert.Equal(t, true, res)
}

func TestEngineInvokeOutOfOrder(t *testing.T) {

	e, in, out := startPipeEngine(t)

	go func() {
		first, err := wire.ReadFrame(in)

		if !assert.NoError(t, err) {
			return
		}

		second, err := wire.ReadFrame(in)

		if !assert.NoError(t, err) {
			return
		}

		// answer in reverse order, callers must still get their own reply
		wire.WriteFrame(out, &wire.Frame{
			Type: wire.FrameResponse, ID: second.ID, Result: second.Method,
		})
		wire.WriteFrame(out, &wire.Frame{
			Type: wire.FrameResponse, ID: first.ID, Result: first.Method,
		})
	}()

	methods := []string{"loadModel", "predictSingleImage"}
	results := make([]any, len(methods))
	errs := make([]error, len(methods))

	var wg sync.WaitGroup

	for i, m := range methods {
		wg.Add(1)

		go func(i int, m string) {
			defer wg.Done()
			results[i], errs[i] = e.Invoke(context.Background(),
				wire.DefaultMethodChannel, m, nil)
		}(i, m)
	}

	wg.Wait()

	for i, m := range methods {
		require.NoError(t, errs[i])
		assert.Equal(t, m, results[i])
	}
}

func TestEngineInvokeCodedError(t *testing.T) {

	e, in, out := startPipeEngine(t)

	go func() {
		req, err := wire.ReadFrame(in)

		if !assert.NoError(t, err) {
			return
		}

		wire.WriteFrame(out, &wire.Frame{
			Type: wire.FrameResponse,
			ID:   req.ID,
			Error: &wire.FrameError{
				Code:    "MODEL_NOT_FOUND",
				Message: "no model at path",
			},
		})
	}()

	_, err := e.Invoke(context.Background(), wire.DefaultMethodChannel,
		"loadModel", wire.Map{"modelPath": "missing.tflite"})

	var ce *wire.CodedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "MODEL_NOT_FOUND", ce.Code)
	assert.Equal(t, "no model at path", ce.Message)
}

func TestEngineInvokeContextTimeout(t *testing.T) {

	e, in, _ := startPipeEngine(t)

	// drain the request but never answer it
	go func() {
		wire.ReadFrame(in)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.Invoke(ctx, wire.DefaultMethodChannel, "predictSingleImage", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngineCallsBeforeStart(t *testing.T) {

	e, err := NewEngine(Config{Path: "/opt/yolo/engine", Logger: testLogger()})
	require.NoError(t, err)

	_, err = e.Invoke(context.Background(), wire.DefaultMethodChannel, "loadModel", nil)
	assert.ErrorIs(t, err, ErrEngineClosed)

	_, _, err = e.Subscribe(wire.EventChannel("v0"))
	assert.ErrorIs(t, err, ErrEngineClosed)

	assert.False(t, e.Running())
	assert.NoError(t, e.Stop())
}

func TestEngineEventFanout(t *testing.T) {

	e, _, out := startPipeEngine(t)

	channel := wire.EventChannel("v0")

	id1, ev1, err := e.Subscribe(channel)
	require.NoError(t, err)

	_, ev2, err := e.Subscribe(channel)
	require.NoError(t, err)

	// an event on another channel must not reach these subscribers
	require.NoError(t, wire.WriteFrame(out, &wire.Frame{
		Type:    wire.FrameEvent,
		Channel: wire.EventChannel("v1"),
		Event:   wire.Map{"fps": 99.0},
	}))

	require.NoError(t, wire.WriteFrame(out, &wire.Frame{
		Type:    wire.FrameEvent,
		Channel: channel,
		Event:   wire.Map{"fps": 30.0},
	}))

	for _, ev := range []<-chan any{ev1, ev2} {
		m, ok := wire.AsMap(recvEvent(t, ev))
		require.True(t, ok)
		assert.Equal(t, 30.0, wire.Float(m, "fps", 0))
	}

	e.Unsubscribe(channel, id1)

	_, open := <-ev1
	assert.False(t, open)

	require.NoError(t, wire.WriteFrame(out, &wire.Frame{
		Type:    wire.FrameEvent,
		Channel: channel,
		Event:   wire.Map{"fps": 31.0},
	}))

	m, ok := wire.AsMap(recvEvent(t, ev2))
	require.True(t, ok)
	assert.Equal(t, 31.0, wire.Float(m, "fps", 0))
}

func TestEngineStreamLossFailsPending(t *testing.T) {

	e, in, out := startPipeEngine(t)

	_, ev, err := e.Subscribe(wire.EventChannel("v0"))
	require.NoError(t, err)

	errCh := make(chan error, 1)

	go func() {
		_, err := e.Invoke(context.Background(), wire.DefaultMethodChannel,
			"predictSingleImage", nil)
		errCh <- err
	}()

	// wait for the request to reach the engine, then kill the stream
	_, err = wire.ReadFrame(in)
	require.NoError(t, err)

	out.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrEngineClosed)

	case <-time.After(2 * time.Second):
		t.Fatal("invoke did not fail after stream loss")
	}

	// subscriber channels close so upper layers know to resubscribe
	_, open := <-ev
	assert.False(t, open)

	_, err = e.Invoke(context.Background(), wire.DefaultMethodChannel, "loadModel", nil)
	assert.ErrorIs(t, err, ErrEngineClosed)

	_, _, err = e.Subscribe(wire.EventChannel("v0"))
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestEngineSkipsBadFrame(t *testing.T) {

	e, _, out := startPipeEngine(t)

	_, ev, err := e.Subscribe(wire.EventChannel("v0"))
	require.NoError(t, err)

	// valid length prefix around a body msgpack cannot decode
	junk := []byte{0xc1, 0xff, 0x00}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(junk)))

	_, err = out.Write(prefix[:])
	require.NoError(t, err)
	_, err = out.Write(junk)
	require.NoError(t, err)

	require.NoError(t, wire.WriteFrame(out, &wire.Frame{
		Type:    wire.FrameEvent,
		Channel: wire.EventChannel("v0"),
		Event:   wire.Map{"fps": 5.0},
	}))

	m, ok := wire.AsMap(recvEvent(t, ev))
	require.True(t, ok)
	assert.Equal(t, 5.0, wire.Float(m, "fps", 0))
}

func TestEngineUnknownResponseIgnored(t *testing.T) {

	e, _, out := startPipeEngine(t)

	_, ev, err := e.Subscribe(wire.EventChannel("v0"))
	require.NoError(t, err)

	require.NoError(t, wire.WriteFrame(out, &wire.Frame{
		Type: wire.FrameResponse, ID: 9999, Result: true,
	}))

	require.NoError(t, wire.WriteFrame(out, &wire.Frame{
		Type:    wire.FrameEvent,
		Channel: wire.EventChannel("v0"),
		Event:   wire.Map{"frameNumber": 1},
	}))

	m, ok := wire.AsMap(recvEvent(t, ev))
	require.True(t, ok)
	assert.EqualValues(t, 1, wire.Int(m, "frameNumber", 0))
}

func TestEngineDropsEventsWhenSubscriberLags(t *testing.T) {

	e, _, out := startPipeEngine(t)

	_, ev, err := e.Subscribe(wire.EventChannel("v0"))
	require.NoError(t, err)

	for i := 0; i < eventBuffer+8; i++ {
		require.NoError(t, wire.WriteFrame(out, &wire.Frame{
			Type:    wire.FrameEvent,
			Channel: wire.EventChannel("v0"),
			Event:   wire.Map{"frameNumber": i},
		}))
	}

	// the queue holds the earliest events, the overflow was dropped
	require.Eventually(t, func() bool {
		return len(ev) == eventBuffer
	}, 2*time.Second, 5*time.Millisecond)

	m, ok := wire.AsMap(recvEvent(t, ev))
	require.True(t, ok)
	assert.EqualValues(t, 0, wire.Int(m, "frameNumber", -1))
}
