package yolobridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/swdee/go-yolobridge/result"
	"github.com/swdee/go-yolobridge/wire"
)

// ErrNotAttached is returned by View calls that need a live engine view
// before Attach has been called
var ErrNotAttached = errors.New("view is not attached")

const (
	defaultResubscribeDelay = 2 * time.Second
	defaultFrameBuffer      = 16
	metricsWindowSize       = 120
)

// ViewOptions configure a View.
type ViewOptions struct {
	// Labels backfills class names on decoded stream frames, indexed by
	// class ID
	Labels []string
	// StreamingConfig is pushed to the engine on Attach, nil leaves the
	// engine defaults in place
	StreamingConfig *StreamingConfig
	// ResubscribeDelay is the wait before reopening a dropped event or
	// control stream, defaults to 2s
	ResubscribeDelay time.Duration
	// FrameBuffer is the Frames channel capacity. When the consumer
	// falls this far behind, frames are dropped. Defaults to 16
	FrameBuffer int
	// OnZoomChanged is called from the stream goroutine when the engine
	// reports a camera zoom change
	OnZoomChanged func(level float64)
	// Logger receives absorbed stream and control errors, nil for
	// slog.Default()
	Logger *slog.Logger
}

// View drives one live camera session on the engine. It holds the
// current threshold set and streaming configuration, forwards changes
// over the view's control channel, and delivers the continuous stream
// of per frame results through Frames.
//
// Setters clamp out of range values silently and never return an error:
// state is updated optimistically and engine call failures are logged
// and absorbed so interactive callers never crash on a transient
// channel failure. Before Attach, setters only record the clamped
// value.
type View struct {
	msgr       wire.Messenger
	log        *slog.Logger
	decoder    result.Decoder
	resubDelay time.Duration
	onZoom     func(float64)

	frames   chan result.Frame
	done     chan struct{}
	recreate chan struct{}
	wg       sync.WaitGroup
	window   *result.MetricsWindow

	mu         sync.Mutex
	viewID     string
	attached   bool
	stopped    bool
	thresholds Thresholds
	streamCfg  *StreamingConfig
	zoom       float64
}

// NewView creates a View talking to the engine over m. The view starts
// detached, call Attach to bind it to a live engine view.
func NewView(m wire.Messenger, opts ViewOptions) *View {

	log := opts.Logger

	if log == nil {
		log = slog.Default()
	}

	delay := opts.ResubscribeDelay

	if delay <= 0 {
		delay = defaultResubscribeDelay
	}

	buffer := opts.FrameBuffer

	if buffer <= 0 {
		buffer = defaultFrameBuffer
	}

	return &View{
		msgr:       m,
		log:        log,
		decoder:    result.Decoder{Labels: opts.Labels},
		resubDelay: delay,
		onZoom:     opts.OnZoomChanged,
		frames:     make(chan result.Frame, buffer),
		done:       make(chan struct{}),
		recreate:   make(chan struct{}, 1),
		window:     result.NewMetricsWindow(metricsWindowSize),
		thresholds: DefaultThresholds(),
		streamCfg:  opts.StreamingConfig,
		zoom:       1.0,
	}
}

// Attach binds the view to the live engine view identified by viewID,
// subscribes to its result and control channels, and pushes the current
// thresholds and streaming configuration. Frames delivers decoded
// results from this point until Stop is called.
func (v *View) Attach(ctx context.Context, viewID string) error {

	v.mu.Lock()

	if v.stopped {
		v.mu.Unlock()
		return errors.New("view has been stopped")
	}

	if v.attached {
		v.mu.Unlock()
		return errors.New("view is already attached")
	}

	v.viewID = viewID
	v.attached = true
	thresholds := v.thresholds
	streamCfg := v.streamCfg
	v.mu.Unlock()

	v.wg.Add(2)
	go v.streamLoop()
	go v.controlLoop()

	// push the initial state, failures here are absorbed like any other
	// setter failure
	v.invokeControl(ctx, "setThresholds", thresholds.toMap())

	if streamCfg != nil {
		v.invokeControl(ctx, "setStreamingConfig", streamCfg.ToMap())
	}

	return nil
}

// ID returns the engine view ID, empty before Attach
func (v *View) ID() string {

	v.mu.Lock()
	defer v.mu.Unlock()

	return v.viewID
}

// Frames returns the channel of decoded per frame results. Frames are
// dropped rather than blocking the stream when the consumer falls
// behind. The channel is closed by Stop.
func (v *View) Frames() <-chan result.Frame {
	return v.frames
}

// Thresholds returns the threshold set currently in effect
func (v *View) Thresholds() Thresholds {

	v.mu.Lock()
	defer v.mu.Unlock()

	return v.thresholds
}

// Zoom returns the camera zoom level last reported by the engine
func (v *View) Zoom() float64 {

	v.mu.Lock()
	defer v.mu.Unlock()

	return v.zoom
}

// MetricsSummary returns rolling aggregate statistics over the metrics
// of recently streamed frames.
func (v *View) MetricsSummary() result.MetricsSummary {
	return v.window.Summary()
}

// SetConfidenceThreshold clamps conf to [0,1] and pushes it to the
// engine. NaN clamps to 0.
func (v *View) SetConfidenceThreshold(ctx context.Context, conf float64) {

	conf = clampFloat(conf, 0, 1)

	v.mu.Lock()
	v.thresholds.Confidence = conf
	v.mu.Unlock()

	if !v.ready() {
		return
	}

	v.pushThreshold(ctx, "setConfidenceThreshold", wire.Map{"threshold": conf})
}

// SetIoUThreshold clamps iou to [0,1] and pushes it to the engine. NaN
// clamps to 0.
func (v *View) SetIoUThreshold(ctx context.Context, iou float64) {

	iou = clampFloat(iou, 0, 1)

	v.mu.Lock()
	v.thresholds.IoU = iou
	v.mu.Unlock()

	if !v.ready() {
		return
	}

	v.pushThreshold(ctx, "setIoUThreshold", wire.Map{"threshold": iou})
}

// SetNumItemsThreshold clamps numItems to [1,100] and pushes it to the
// engine.
func (v *View) SetNumItemsThreshold(ctx context.Context, numItems int) {

	numItems = clampInt(numItems, minNumItems, maxNumItems)

	v.mu.Lock()
	v.thresholds.NumItems = numItems
	v.mu.Unlock()

	if !v.ready() {
		return
	}

	v.pushThreshold(ctx, "setNumItemsThreshold", wire.Map{"numItems": numItems})
}

// SetThresholds clamps and pushes the whole threshold set in one engine
// call.
func (v *View) SetThresholds(ctx context.Context, t Thresholds) {

	t = t.clamp()

	v.mu.Lock()
	v.thresholds = t
	v.mu.Unlock()

	if !v.ready() {
		return
	}

	v.invokeControl(ctx, "setThresholds", t.toMap())
}

// SetStreamingConfig pushes a new streaming configuration to the
// engine.
func (v *View) SetStreamingConfig(ctx context.Context, c StreamingConfig) {

	v.mu.Lock()
	v.streamCfg = &c
	v.mu.Unlock()

	if !v.ready() {
		return
	}

	v.invokeControl(ctx, "setStreamingConfig", c.ToMap())
}

// SwitchCamera flips between the front and back camera
func (v *View) SwitchCamera(ctx context.Context) {

	if !v.ready() {
		return
	}

	v.invokeControl(ctx, "switchCamera", nil)
}

// ZoomIn steps the camera zoom in
func (v *View) ZoomIn(ctx context.Context) {

	if !v.ready() {
		return
	}

	v.invokeControl(ctx, "zoomIn", nil)
}

// ZoomOut steps the camera zoom out
func (v *View) ZoomOut(ctx context.Context) {

	if !v.ready() {
		return
	}

	v.invokeControl(ctx, "zoomOut", nil)
}

// SetZoomLevel sets an absolute camera zoom level. The local zoom state
// updates when the engine reports the change back.
func (v *View) SetZoomLevel(ctx context.Context, level float64) {

	if !v.ready() {
		return
	}

	v.invokeControl(ctx, "setZoomLevel", wire.Map{"zoomLevel": level})
}

// SetShowUIControls toggles the engine rendered camera controls
func (v *View) SetShowUIControls(ctx context.Context, show bool) {

	if !v.ready() {
		return
	}

	v.invokeControl(ctx, "setShowUIControls", wire.Map{"show": show})
}

// SetShowOverlays toggles the engine rendered result overlays
func (v *View) SetShowOverlays(ctx context.Context, show bool) {

	if !v.ready() {
		return
	}

	v.invokeControl(ctx, "setShowOverlays", wire.Map{"show": show})
}

// Pause suspends live inference while leaving the camera running
func (v *View) Pause(ctx context.Context) {

	if !v.ready() {
		return
	}

	v.invokeControl(ctx, "pauseLivePrediction", nil)
}

// Resume restarts live inference after Pause
func (v *View) Resume(ctx context.Context) {

	if !v.ready() {
		return
	}

	v.invokeControl(ctx, "resumeLivePrediction", nil)
}

// CaptureFrame asks the engine for the current camera frame with result
// overlays as an encoded image.
func (v *View) CaptureFrame(ctx context.Context) ([]byte, error) {

	if !v.ready() {
		return nil, ErrNotAttached
	}

	res, err := v.msgr.Invoke(ctx, v.controlChannel(), "captureFrame", nil)

	if err != nil {
		return nil, fmt.Errorf("error capturing frame: %w", err)
	}

	b, ok := wire.AsBytes(res)

	if !ok {
		return nil, errors.New("error capturing frame: engine returned no image")
	}

	return b, nil
}

// Stop ends the live session: tells the engine to stop the camera,
// cancels both channel subscriptions, and closes the Frames channel.
// Engine errors are logged and absorbed, stopping always succeeds
// locally. Safe to call more than once.
func (v *View) Stop(ctx context.Context) {

	v.mu.Lock()

	if v.stopped {
		v.mu.Unlock()
		return
	}

	v.stopped = true
	attached := v.attached
	v.mu.Unlock()

	if attached {
		v.invokeControl(ctx, "stop", nil)
	}

	close(v.done)
	v.wg.Wait()
	close(v.frames)
}

// ready reports whether the view is attached and still running
func (v *View) ready() bool {

	v.mu.Lock()
	defer v.mu.Unlock()

	return v.attached && !v.stopped
}

func (v *View) controlChannel() string {
	return wire.ControlChannel(v.ID())
}

// invokeControl issues a control channel call, logging and absorbing
// any failure.
func (v *View) invokeControl(ctx context.Context, method string, args wire.Map) {

	_, err := v.msgr.Invoke(ctx, v.controlChannel(), method, args)

	if err != nil {
		v.log.Warn("control call failed", "method", method, "error", err)
	}
}

// pushThreshold issues a per field threshold call, falling back to
// resending the combined threshold set when the direct call fails.
// Errors are logged, never raised.
func (v *View) pushThreshold(ctx context.Context, method string, args wire.Map) {

	_, err := v.msgr.Invoke(ctx, v.controlChannel(), method, args)

	if err == nil {
		return
	}

	v.log.Warn("threshold call failed, resending combined thresholds",
		"method", method, "error", err)

	v.mu.Lock()
	combined := v.thresholds.toMap()
	v.mu.Unlock()

	if _, err := v.msgr.Invoke(ctx, v.controlChannel(), "setThresholds", combined); err != nil {
		v.log.Warn("combined threshold call failed", "error", err)
	}
}
