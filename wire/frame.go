package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrBadFrame reports a frame body that could not be decoded.  The stream
// remains aligned on the next length prefix, so callers may skip the frame
// and keep reading
var ErrBadFrame = errors.New("bad frame")

// frame types carried on an engine stream
const (
	FrameRequest  = "request"
	FrameResponse = "response"
	FrameEvent    = "event"
)

// MaxFrameSize is the largest frame accepted from an engine.  Frames carry
// image buffers and mask data so the cap is generous, it exists to stop a
// corrupted length prefix from triggering a huge allocation
const MaxFrameSize = 64 << 20

// Frame is a single message on an engine stream.  Requests flow from client
// to engine, responses and events flow back.  Control channel callbacks
// pushed by the engine arrive as events whose payload carries a method name
type Frame struct {
	// Type is one of FrameRequest, FrameResponse or FrameEvent
	Type string `msgpack:"type"`
	// ID correlates a response with its request
	ID uint64 `msgpack:"id,omitempty"`
	// Channel is the named channel the frame belongs to
	Channel string `msgpack:"channel,omitempty"`
	// Method is the method name of a request
	Method string `msgpack:"method,omitempty"`
	// Args are the request arguments
	Args Map `msgpack:"args,omitempty"`
	// Result is the response payload of a successful call
	Result any `msgpack:"result,omitempty"`
	// Error is set instead of Result when the call failed
	Error *FrameError `msgpack:"error,omitempty"`
	// Event is the payload of an event frame
	Event any `msgpack:"event,omitempty"`
}

// FrameError is the wire form of a coded engine failure
type FrameError struct {
	Code    string `msgpack:"code"`
	Message string `msgpack:"message,omitempty"`
	Details any    `msgpack:"details,omitempty"`
}

// CodedError converts the wire form to a *CodedError
func (f *FrameError) CodedError() *CodedError {
	return &CodedError{
		Code:    f.Code,
		Message: f.Message,
		Details: f.Details,
	}
}

// WriteFrame msgpack encodes f and writes it to w with a 4 byte big endian
// length prefix so the reader can find message boundaries in the stream
func WriteFrame(w io.Writer, f *Frame) error {

	body, err := msgpack.Marshal(f)

	if err != nil {
		return fmt.Errorf("error encoding frame: %w", err)
	}

	if len(body) > MaxFrameSize {
		return fmt.Errorf("frame size %d exceeds limit %d", len(body), MaxFrameSize)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))

	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("error writing frame length: %w", err)
	}

	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("error writing frame body: %w", err)
	}

	return nil
}

// ReadFrame reads one length prefixed frame from r.  It returns io.EOF
// unwrapped when the stream ends cleanly on a frame boundary
func ReadFrame(r io.Reader) (*Frame, error) {

	var prefix [4]byte

	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}

		return nil, fmt.Errorf("error reading frame length: %w", err)
	}

	size := binary.BigEndian.Uint32(prefix[:])

	if size > MaxFrameSize {
		return nil, fmt.Errorf("frame size %d exceeds limit %d", size, MaxFrameSize)
	}

	body := make([]byte, size)

	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("error reading frame body: %w", err)
	}

	f := &Frame{}

	if err := msgpack.Unmarshal(body, f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}

	return f, nil
}
