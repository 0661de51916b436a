package yolobridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/swdee/go-yolobridge/wire"
)

// call records one Invoke issued against the fake messenger
type call struct {
	channel string
	method  string
	args    wire.Map
}

// fakeMessenger is an in memory wire.Messenger so facades and views can
// be tested without an engine. Replies are registered per method name
// and default to acknowledging with true.
type fakeMessenger struct {
	mu      sync.Mutex
	calls   []call
	replies map[string]func(channel string, args wire.Map) (any, error)
	subs    map[string]map[string]chan any
	nextSub int
	subN    map[string]int
	subErr  error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		replies: make(map[string]func(string, wire.Map) (any, error)),
		subs:    make(map[string]map[string]chan any),
		subN:    make(map[string]int),
	}
}

// reply registers the response for a method
func (f *fakeMessenger) reply(method string, fn func(channel string, args wire.Map) (any, error)) {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.replies[method] = fn
}

// failWith makes a method fail with a coded error
func (f *fakeMessenger) failWith(method, code, message string) {
	f.reply(method, func(string, wire.Map) (any, error) {
		return nil, &wire.CodedError{Code: code, Message: message}
	})
}

func (f *fakeMessenger) Invoke(ctx context.Context, channel, method string, args wire.Map) (any, error) {

	f.mu.Lock()
	f.calls = append(f.calls, call{channel: channel, method: method, args: args})
	fn := f.replies[method]
	f.mu.Unlock()

	if fn == nil {
		return true, nil
	}

	return fn(channel, args)
}

func (f *fakeMessenger) Subscribe(channel string) (string, <-chan any, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subErr != nil {
		return "", nil, f.subErr
	}

	f.nextSub++
	f.subN[channel]++
	id := fmt.Sprintf("sub-%d", f.nextSub)
	ch := make(chan any, 64)

	if f.subs[channel] == nil {
		f.subs[channel] = make(map[string]chan any)
	}

	f.subs[channel][id] = ch

	return id, ch, nil
}

func (f *fakeMessenger) Unsubscribe(channel, id string) {

	f.mu.Lock()
	defer f.mu.Unlock()

	if ch, ok := f.subs[channel][id]; ok {
		close(ch)
		delete(f.subs[channel], id)
	}
}

// emit pushes an event to every subscriber of channel
func (f *fakeMessenger) emit(channel string, ev any) {

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs[channel] {
		ch <- ev
	}
}

// dropSubscribers closes every subscription on channel, simulating a
// transport level stream loss
func (f *fakeMessenger) dropSubscribers(channel string) {

	f.mu.Lock()
	defer f.mu.Unlock()

	for id, ch := range f.subs[channel] {
		close(ch)
		delete(f.subs[channel], id)
	}
}

// subscribeCount returns how many times channel has been subscribed
func (f *fakeMessenger) subscribeCount(channel string) int {

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.subN[channel]
}

// callCount returns the total number of Invokes issued
func (f *fakeMessenger) callCount() int {

	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}

// callsFor returns the recorded calls for a method
func (f *fakeMessenger) callsFor(method string) []call {

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []call

	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}

	return out
}
