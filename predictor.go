package yolobridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/swdee/go-yolobridge/result"
	"github.com/swdee/go-yolobridge/wire"
)

// Config configures a Predictor.
type Config struct {
	// ModelPath is the model file the engine should load
	ModelPath string
	// Task selects the model task type
	Task Task
	// Messenger is the engine transport. A Predictor only uses the
	// request response half, so anything satisfying wire.Invoker works
	Messenger wire.Invoker
	// MultiInstance gives this Predictor its own engine instance with a
	// unique instance ID, allowing several models to be loaded
	// concurrently. The default session talks to the shared engine
	// instance over the bare method channel
	MultiInstance bool
	// UseGPU asks the engine to place the model on its GPU delegate
	UseGPU bool
	// Labels backfills class names on results the engine returns
	// unnamed, indexed by class ID. See LoadLabels
	Labels []string
	// Logger receives absorbed disposal errors, nil for slog.Default()
	Logger *slog.Logger
}

// Prediction is the outcome of one single image inference.
type Prediction struct {
	// Detections are the decoded results, empty when nothing was found
	Detections []result.Detection
	// ProcessingTimeMs is the engine side inference time
	ProcessingTimeMs float64
	// FPS is the engine reported equivalent throughput
	FPS float64
	// AnnotatedImage is the engine rendered frame with results drawn
	// on, when the engine provides one
	AnnotatedImage []byte
}

// Predictor is a single model session on the engine. It loads a model,
// runs single image prediction, and can switch the loaded model,
// issuing calls over its own method channel.
//
// A Predictor issues calls in program order and holds no internal lock
// across them. Callers wanting overlapping Predict calls on one
// Predictor must serialize them; independent Predictors run
// concurrently.
type Predictor struct {
	inv     wire.Invoker
	decoder result.Decoder
	useGPU  bool
	log     *slog.Logger

	// instanceID is empty for the default single instance session
	instanceID string
	channel    string

	mu        sync.Mutex
	modelPath string
	task      Task
	loaded    bool
	disposed  bool
	viewID    string
}

// New creates a Predictor for the given model and task. When
// cfg.MultiInstance is set the Predictor is assigned a fresh instance ID
// and registered in Instances until disposed.
func New(cfg Config) (*Predictor, error) {

	if cfg.Messenger == nil {
		return nil, errors.New("config Messenger is required")
	}

	log := cfg.Logger

	if log == nil {
		log = slog.Default()
	}

	p := &Predictor{
		inv:       cfg.Messenger,
		decoder:   result.Decoder{Labels: cfg.Labels},
		useGPU:    cfg.UseGPU,
		log:       log,
		modelPath: cfg.ModelPath,
		task:      cfg.Task,
	}

	if cfg.MultiInstance {
		p.instanceID = "yolo_" + uuid.NewString()
		Instances.Register(p.instanceID, p)
	}

	p.channel = wire.MethodChannel(p.instanceID)

	return p, nil
}

// LoadModel loads the model onto the engine. The returned bool mirrors
// the engine reply. An empty model path fails with an InvalidInputError
// before any engine call. Engine failures surface as ModelLoadingError.
func (p *Predictor) LoadModel(ctx context.Context) (bool, error) {

	p.mu.Lock()
	path := p.modelPath
	task := p.task
	disposed := p.disposed
	p.mu.Unlock()

	if disposed {
		return false, ErrDisposed
	}

	if path == "" {
		return false, &InvalidInputError{Message: "model path is empty"}
	}

	// multi instance sessions register their ID with the engine before
	// loading, creating the per instance channel on the engine side
	if p.instanceID != "" {
		_, err := p.inv.Invoke(ctx, wire.DefaultMethodChannel, "createInstance",
			wire.Map{"instanceId": p.instanceID})

		if err != nil {
			return false, mapLoadError(err, path, task)
		}
	}

	args := wire.Map{
		"modelPath": path,
		"task":      task.String(),
		"useGpu":    p.useGPU,
	}

	if p.instanceID != "" {
		args["instanceId"] = p.instanceID
	}

	res, err := p.inv.Invoke(ctx, p.channel, "loadModel", args)

	if err != nil {
		return false, mapLoadError(err, path, task)
	}

	ok, _ := res.(bool)

	if ok {
		p.mu.Lock()
		p.loaded = true
		p.mu.Unlock()
	}

	return ok, nil
}

// PredictOption adjusts a single Predict call.
type PredictOption func(*predictOpts)

type predictOpts struct {
	conf    float64
	iou     float64
	hasConf bool
	hasIoU  bool
}

// WithConfidenceThreshold drops results scoring below conf for this
// call. Values outside [0,1] fail the call with an InvalidInputError.
func WithConfidenceThreshold(conf float64) PredictOption {
	return func(o *predictOpts) {
		o.conf = conf
		o.hasConf = true
	}
}

// WithIoUThreshold sets the NMS IoU limit for this call. Values outside
// [0,1] fail the call with an InvalidInputError.
func WithIoUThreshold(iou float64) PredictOption {
	return func(o *predictOpts) {
		o.iou = iou
		o.hasIoU = true
	}
}

// Predict runs inference on a single encoded image. Argument validation
// failures are returned before any engine call is made. Engine failures
// surface as ModelNotLoadedError, InvalidInputError, or InferenceError
// per their error code.
func (p *Predictor) Predict(ctx context.Context, image []byte, opts ...PredictOption) (*Prediction, error) {

	p.mu.Lock()
	disposed := p.disposed
	p.mu.Unlock()

	if disposed {
		return nil, ErrDisposed
	}

	if len(image) == 0 {
		return nil, &InvalidInputError{Message: "image data is empty"}
	}

	var po predictOpts

	for _, opt := range opts {
		opt(&po)
	}

	if po.hasConf && !validThreshold(po.conf) {
		return nil, &InvalidInputError{
			Message: fmt.Sprintf("confidence threshold %v is outside range 0.0-1.0", po.conf),
		}
	}

	if po.hasIoU && !validThreshold(po.iou) {
		return nil, &InvalidInputError{
			Message: fmt.Sprintf("IoU threshold %v is outside range 0.0-1.0", po.iou),
		}
	}

	args := wire.Map{"image": image}

	if po.hasConf {
		args["confidenceThreshold"] = po.conf
	}

	if po.hasIoU {
		args["iouThreshold"] = po.iou
	}

	if p.instanceID != "" {
		args["instanceId"] = p.instanceID
	}

	res, err := p.inv.Invoke(ctx, p.channel, "predictSingleImage", args)

	if err != nil {
		return nil, mapPredictError(err)
	}

	m, ok := wire.AsMap(res)

	if !ok {
		return nil, &InferenceError{Message: "inference returned no result"}
	}

	pred := &Prediction{
		Detections:       p.decoder.DecodeDetections(m["detections"]),
		ProcessingTimeMs: wire.Float(m, "processingTimeMs", 0),
		FPS:              wire.Float(m, "fps", 0),
		AnnotatedImage:   wire.Bytes(m, "annotatedImage"),
	}

	return pred, nil
}

// SwitchModel swaps the model loaded on the engine view this Predictor
// is bound to. BindView must have been called first, switching models is
// only meaningful against a live view.
func (p *Predictor) SwitchModel(ctx context.Context, path string, task Task) error {

	p.mu.Lock()
	viewID := p.viewID
	disposed := p.disposed
	p.mu.Unlock()

	if disposed {
		return ErrDisposed
	}

	if viewID == "" {
		return ErrNoViewAttached
	}

	if path == "" {
		return &InvalidInputError{Message: "model path is empty"}
	}

	args := wire.Map{
		"viewId":    viewID,
		"modelPath": path,
		"task":      task.String(),
	}

	if p.instanceID != "" {
		args["instanceId"] = p.instanceID
	}

	if _, err := p.inv.Invoke(ctx, p.channel, "setModel", args); err != nil {
		return mapLoadError(err, path, task)
	}

	p.mu.Lock()
	p.modelPath = path
	p.task = task
	p.loaded = true
	p.mu.Unlock()

	return nil
}

// BindView associates the Predictor with a live view ID, enabling
// SwitchModel.
func (p *Predictor) BindView(viewID string) {

	p.mu.Lock()
	defer p.mu.Unlock()

	p.viewID = viewID
}

// Dispose releases the engine side instance and removes this Predictor
// from Instances. Engine errors are logged and swallowed so disposal
// always succeeds from the caller's point of view. Safe to call more
// than once; the Predictor is unusable afterwards.
func (p *Predictor) Dispose(ctx context.Context) {

	p.mu.Lock()

	if p.disposed {
		p.mu.Unlock()
		return
	}

	p.disposed = true
	p.loaded = false
	p.mu.Unlock()

	if p.instanceID == "" {
		return
	}

	_, err := p.inv.Invoke(ctx, p.channel, "disposeInstance",
		wire.Map{"instanceId": p.instanceID})

	if err != nil {
		p.log.Warn("error disposing engine instance",
			"instanceId", p.instanceID, "error", err)
	}

	Instances.Unregister(p.instanceID)
}

// InstanceID returns the opaque instance ID, empty for the default
// session
func (p *Predictor) InstanceID() string {
	return p.instanceID
}

// MultiInstance reports whether this Predictor has its own engine
// instance
func (p *Predictor) MultiInstance() bool {
	return p.instanceID != ""
}

// ModelPath returns the model path currently in effect
func (p *Predictor) ModelPath() string {

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.modelPath
}

// Task returns the task currently in effect
func (p *Predictor) Task() Task {

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.task
}

// Loaded reports whether a LoadModel or SwitchModel call has succeeded
func (p *Predictor) Loaded() bool {

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.loaded
}

// Disposed reports whether Dispose has been called
func (p *Predictor) Disposed() bool {

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.disposed
}
