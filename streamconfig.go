package yolobridge

import (
	"github.com/swdee/go-yolobridge/wire"
)

// StreamingConfig declares which optional fields a live View includes in
// each streamed frame and how often inference runs. The engine omits
// fields that are not requested and throttles inference to the given
// frequency control, trading latency and payload size for power.
// Immutable value object, push changes with View.SetStreamingConfig.
type StreamingConfig struct {
	// IncludeDetections includes the decoded detection list
	IncludeDetections bool
	// IncludeClassifications includes classification results
	IncludeClassifications bool
	// IncludeProcessingTime includes the per frame inference time
	IncludeProcessingTime bool
	// IncludeFPS includes the engine reported throughput
	IncludeFPS bool
	// IncludeMasks includes segmentation masks
	IncludeMasks bool
	// IncludePoses includes pose keypoints
	IncludePoses bool
	// IncludeOBB includes oriented bounding box angles
	IncludeOBB bool
	// IncludeOriginalImage includes the JPEG encoded camera frame
	IncludeOriginalImage bool

	// MaxFPS caps the rate frames are streamed back, 0 for no cap
	MaxFPS int
	// ThrottleIntervalMs is the minimum gap between streamed frames in
	// milliseconds, 0 for none
	ThrottleIntervalMs int
	// InferenceFrequency fixes how many inferences run per second, 0 to
	// run on every camera frame
	InferenceFrequency int
	// SkipFrames runs inference on every SkipFrames+1 camera frame, 0 to
	// skip none
	SkipFrames int
}

// DefaultStreamingConfig returns the standard streaming payload of
// detections plus performance metrics
func DefaultStreamingConfig() StreamingConfig {
	return StreamingConfig{
		IncludeDetections:      true,
		IncludeClassifications: true,
		IncludeProcessingTime:  true,
		IncludeFPS:             true,
	}
}

// WithMasksStreamingConfig returns the default payload plus segmentation
// masks
func WithMasksStreamingConfig() StreamingConfig {

	c := DefaultStreamingConfig()
	c.IncludeMasks = true

	return c
}

// FullStreamingConfig returns a payload carrying every optional result
// field except the original image
func FullStreamingConfig() StreamingConfig {

	c := DefaultStreamingConfig()
	c.IncludeMasks = true
	c.IncludePoses = true
	c.IncludeOBB = true

	return c
}

// DebugStreamingConfig returns the full payload plus the original camera
// frame. Streaming images is expensive, intended for diagnostics only
func DebugStreamingConfig() StreamingConfig {

	c := FullStreamingConfig()
	c.IncludeOriginalImage = true

	return c
}

// ThrottledStreamingConfig returns the default payload capped to maxFPS
// streamed frames per second
func ThrottledStreamingConfig(maxFPS int) StreamingConfig {

	c := DefaultStreamingConfig()
	c.MaxFPS = maxFPS

	return c
}

// PowerSavingStreamingConfig returns a low rate configuration suited to
// battery powered hosts
func PowerSavingStreamingConfig() StreamingConfig {

	c := DefaultStreamingConfig()
	c.InferenceFrequency = 10
	c.MaxFPS = 15

	return c
}

// HighPerformanceStreamingConfig returns a configuration running
// inference at full rate
func HighPerformanceStreamingConfig() StreamingConfig {

	c := DefaultStreamingConfig()
	c.InferenceFrequency = 30

	return c
}

// ToMap encodes the configuration as setStreamingConfig call arguments.
// Frequency controls are omitted when unset so the engine applies its
// own defaults.
func (c StreamingConfig) ToMap() wire.Map {

	m := wire.Map{
		"includeDetections":       c.IncludeDetections,
		"includeClassifications":  c.IncludeClassifications,
		"includeProcessingTimeMs": c.IncludeProcessingTime,
		"includeFps":              c.IncludeFPS,
		"includeMasks":            c.IncludeMasks,
		"includePoses":            c.IncludePoses,
		"includeOBB":              c.IncludeOBB,
		"includeOriginalImage":    c.IncludeOriginalImage,
	}

	if c.MaxFPS > 0 {
		m["maxFPS"] = c.MaxFPS
	}

	if c.ThrottleIntervalMs > 0 {
		m["throttleIntervalMs"] = c.ThrottleIntervalMs
	}

	if c.InferenceFrequency > 0 {
		m["inferenceFrequency"] = c.InferenceFrequency
	}

	if c.SkipFrames > 0 {
		m["skipFrames"] = c.SkipFrames
	}

	return m
}
