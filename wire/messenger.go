package wire

import "context"

// channel name parts.  These mirror the channel naming of the Ultralytics
// mobile SDKs so an engine binary can serve either client unchanged
const (
	// DefaultMethodChannel is the method channel used by the default single
	// instance session
	DefaultMethodChannel = "yolo_single_image_channel"

	controlChannelPrefix = "com.ultralytics.yolo/controlChannel_"
	eventChannelPrefix   = "com.ultralytics.yolo/detectionResults_"
)

// MethodChannel returns the method channel name for the given instance ID.
// The default session passes an empty ID and uses the bare channel name so
// engines predating multi instance support keep working
func MethodChannel(instanceID string) string {

	if instanceID == "" {
		return DefaultMethodChannel
	}

	return DefaultMethodChannel + "_" + instanceID
}

// ControlChannel returns the control channel name for a live view session
func ControlChannel(viewID string) string {
	return controlChannelPrefix + viewID
}

// EventChannel returns the per frame result event channel name for a live
// view session
func EventChannel(viewID string) string {
	return eventChannelPrefix + viewID
}

// Invoker issues a request on a named method channel and waits for the
// engine's response.  A failure reported by the engine is returned as a
// *CodedError, transport failures as ordinary errors
type Invoker interface {
	Invoke(ctx context.Context, channel, method string, args Map) (any, error)
}

// Subscriber attaches to a named event channel.  Subscribe returns a
// subscription ID and a channel of event payloads.  The events channel is
// closed when the subscription is cancelled or the transport loses the
// stream, subscribers wishing to continue must call Subscribe again
type Subscriber interface {
	Subscribe(channel string) (string, <-chan any, error)
	Unsubscribe(channel, id string)
}

// Messenger is the full transport boundary to an engine, combining request
// response calls with event channel subscriptions
type Messenger interface {
	Invoker
	Subscriber
}
