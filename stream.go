package yolobridge

import (
	"time"

	"github.com/swdee/go-yolobridge/wire"
)

// reasons the consume loops return
const (
	consumeStopped = iota
	consumeDropped
	consumeRecreate
)

// recreateDelay is the wait before reopening the event stream after the
// engine asks for it to be recreated
const recreateDelay = 50 * time.Millisecond

// streamLoop keeps the result event subscription alive until the view
// stops. A dropped stream is reopened after the resubscribe delay and an
// engine requested recreate reopens it almost immediately.
func (v *View) streamLoop() {

	defer v.wg.Done()

	channel := wire.EventChannel(v.ID())
	var delay time.Duration

	for {
		if !v.sleep(delay) {
			return
		}

		id, events, err := v.msgr.Subscribe(channel)

		if err != nil {
			v.log.Warn("event channel subscribe failed",
				"channel", channel, "error", err)
			delay = v.resubDelay
			continue
		}

		reason := v.consumeEvents(events)
		v.msgr.Unsubscribe(channel, id)

		switch reason {
		case consumeStopped:
			return

		case consumeRecreate:
			delay = recreateDelay

		default:
			v.log.Warn("event stream lost, resubscribing", "channel", channel)
			delay = v.resubDelay
		}
	}
}

// consumeEvents decodes streamed frames until the subscription drops,
// the engine asks for a recreate, or the view stops. A payload that
// fails to decode is skipped, it never ends the stream.
func (v *View) consumeEvents(events <-chan any) int {

	for {
		select {
		case <-v.done:
			return consumeStopped

		case <-v.recreate:
			return consumeRecreate

		case ev, ok := <-events:
			if !ok {
				return consumeDropped
			}

			frame, ok := v.decoder.DecodeFrame(ev)

			if !ok {
				// diagnostic or malformed push, keep listening
				v.log.Debug("skipped non frame event")
				continue
			}

			v.window.Add(frame.Metrics)

			select {
			case v.frames <- frame:
			default:
				// consumer is lagging, drop the frame
			}
		}
	}
}

// controlLoop receives the calls the engine pushes back on the control
// channel, resubscribing like the event stream when the subscription
// drops.
func (v *View) controlLoop() {

	defer v.wg.Done()

	channel := wire.ControlChannel(v.ID())
	var delay time.Duration

	for {
		if !v.sleep(delay) {
			return
		}

		id, events, err := v.msgr.Subscribe(channel)

		if err != nil {
			v.log.Warn("control channel subscribe failed",
				"channel", channel, "error", err)
			delay = v.resubDelay
			continue
		}

		stopped := v.consumeControl(events)
		v.msgr.Unsubscribe(channel, id)

		if stopped {
			return
		}

		delay = v.resubDelay
	}
}

// consumeControl handles engine pushed control calls until the
// subscription drops or the view stops. Returns true when the view
// stopped.
func (v *View) consumeControl(events <-chan any) bool {

	for {
		select {
		case <-v.done:
			return true

		case ev, ok := <-events:
			if !ok {
				return false
			}

			v.handleControl(ev)
		}
	}
}

// handleControl dispatches one engine pushed control call. Pushes
// arrive as flat maps carrying a method name plus its arguments, ie:
// {method: onZoomChanged, zoomLevel: 2.0}.
func (v *View) handleControl(ev any) {

	m, ok := wire.AsMap(ev)

	if !ok {
		return
	}

	switch wire.String(m, "method", "") {
	case "onZoomChanged":
		level := wire.Float(m, "zoomLevel", 0)

		v.mu.Lock()
		v.zoom = level
		v.mu.Unlock()

		if v.onZoom != nil {
			v.onZoom(level)
		}

	case "recreateEventChannel":
		// non blocking, a pending recreate is already enough
		select {
		case v.recreate <- struct{}{}:
		default:
		}

	default:
		v.log.Debug("unhandled control push", "method",
			wire.String(m, "method", ""))
	}
}

// sleep waits for d, returning false when the view stops first. A zero
// d only polls the stop signal.
func (v *View) sleep(d time.Duration) bool {

	if d == 0 {
		select {
		case <-v.done:
			return false
		default:
			return true
		}
	}

	select {
	case <-v.done:
		return false
	case <-time.After(d):
		return true
	}
}
