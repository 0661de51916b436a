// Package mqttbridge implements wire.Messenger over an MQTT broker so a
// client can drive an inference engine running on another host.  Requests
// are JSON messages published to per channel rpc topics, each carrying the
// reply topic the engine answers on.  Events arrive on per channel event
// topics.  Binary values cross the JSON boundary wrapped as
// {"$bin": "<base64>"} objects and are delivered as byte slices
package mqttbridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/swdee/go-yolobridge/wire"
)

// ErrBridgeClosed is returned for calls made after Close
var ErrBridgeClosed = errors.New("bridge is closed")

const (
	defaultTopicPrefix    = "yolo"
	defaultCallTimeout    = 30 * time.Second
	defaultConnectTimeout = 30 * time.Second
	defaultKeepAlive      = 2 * time.Second
	defaultPingTimeout    = 1 * time.Second

	// eventBuffer is the queue depth of a subscriber channel.  Events
	// beyond it are dropped so a slow consumer cannot block delivery
	eventBuffer = 64

	// binKey wraps binary values crossing the JSON boundary
	binKey = "$bin"
)

// Config holds the broker connection settings
type Config struct {
	// Broker is the MQTT broker URL, ie: tcp://10.0.0.5:1883
	Broker string
	// ClientID identifies this client to the broker and roots its reply
	// topic, defaults to a random yolo-bridge-* ID
	ClientID string
	// TopicPrefix roots all bridge topics, defaults to "yolo"
	TopicPrefix string
	// Username and Password are optional broker credentials
	Username string
	Password string
	// CallTimeout caps how long Invoke waits for the engine's reply,
	// defaults to thirty seconds
	CallTimeout time.Duration
	// ConnectTimeout bounds the initial broker connection, defaults to
	// thirty seconds
	ConnectTimeout time.Duration
	// KeepAlive is the MQTT keep alive interval, defaults to two seconds
	KeepAlive time.Duration
	// PingTimeout is how long to wait for a ping response before deciding
	// the connection is lost, defaults to one second
	PingTimeout time.Duration
	// Logger receives connection lifecycle messages, defaults to
	// slog.Default()
	Logger *slog.Logger
}

// rpcRequest is the JSON request published to an engine's rpc topic
type rpcRequest struct {
	ID         string `json:"id"`
	Method     string `json:"method"`
	Args       any    `json:"args,omitempty"`
	ResponseTo string `json:"responseTo"`
}

// rpcResponse is the JSON reply the engine publishes to the request's
// ResponseTo topic
type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

func (e *rpcError) coded() *wire.CodedError {

	return &wire.CodedError{
		Code:    e.Code,
		Message: e.Message,
		Details: decodeValue(e.Details),
	}
}

// Bridge is a wire.Messenger that relays calls and events through an MQTT
// broker.  Responses are matched back to callers by request ID on a per
// client reply topic, event subscriptions are replayed on reconnect
type Bridge struct {
	cfg    Config
	log    *slog.Logger
	client mqtt.Client

	pendingMu sync.Mutex
	pending   map[string]chan *rpcResponse

	subMu  sync.Mutex
	subSeq uint64
	subs   map[string]map[string]chan any
}

// newBridge validates the config and prepares an unconnected bridge
func newBridge(cfg Config) (*Bridge, error) {

	if cfg.Broker == "" {
		return nil, errors.New("broker URL is required")
	}

	if cfg.ClientID == "" {
		cfg.ClientID = "yolo-bridge-" + uuid.NewString()
	}

	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = defaultTopicPrefix
	}

	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}

	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}

	logger := cfg.Logger

	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		cfg:     cfg,
		log:     logger,
		pending: make(map[string]chan *rpcResponse),
		subs:    make(map[string]map[string]chan any),
	}, nil
}

// Dial connects to the broker and returns a ready bridge
func Dial(cfg Config) (*Bridge, error) {

	b, err := newBridge(cfg)

	if err != nil {
		return nil, err
	}

	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID)

	opts.SetKeepAlive(b.cfg.KeepAlive)
	opts.SetPingTimeout(b.cfg.PingTimeout)
	opts.SetConnectTimeout(b.cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)

	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}

	opts.OnConnect = b.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.log.Warn("broker connection lost", "error", err)
	}

	b.client = mqtt.NewClient(opts)

	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("error connecting to broker %s: %w",
			b.cfg.Broker, token.Error())
	}

	return b, nil
}

// Close fails outstanding calls, closes subscriber channels and disconnects
// from the broker.  It is safe to call more than once
func (b *Bridge) Close() {

	b.pendingMu.Lock()

	if b.pending == nil {
		b.pendingMu.Unlock()
		return
	}

	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}

	b.pending = nil
	b.pendingMu.Unlock()

	b.subMu.Lock()

	for _, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
	}

	b.subs = nil
	b.subMu.Unlock()

	b.client.Disconnect(250)
	b.log.Info("bridge closed")
}

// Connected reports whether the broker connection is up
func (b *Bridge) Connected() bool {
	return b.client.IsConnected()
}

// Invoke publishes a request to the channel's rpc topic and waits for the
// engine's reply on this client's reply topic.  Failures reported by the
// engine come back as a *wire.CodedError
func (b *Bridge) Invoke(ctx context.Context, channel, method string, args wire.Map) (any, error) {

	id := uuid.NewString()

	ch, err := b.addPending(id)

	if err != nil {
		return nil, err
	}

	defer b.removePending(id)

	req := rpcRequest{
		ID:         id,
		Method:     method,
		ResponseTo: b.replyTopic(id),
	}

	if args != nil {
		req.Args = encodeValue(args)
	}

	body, err := json.Marshal(req)

	if err != nil {
		return nil, fmt.Errorf("error encoding request: %w", err)
	}

	topic := b.requestTopic(channel)
	token := b.client.Publish(topic, 0, false, body)

	if !token.WaitTimeout(b.cfg.CallTimeout) {
		return nil, fmt.Errorf("timeout publishing request to %s", topic)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("error publishing request to %s: %w", topic, err)
	}

	timer := time.NewTimer(b.cfg.CallTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for %s response on %s", method, channel)

	case resp, ok := <-ch:
		if !ok {
			return nil, ErrBridgeClosed
		}

		if resp.Error != nil {
			return nil, resp.Error.coded()
		}

		return decodeResult(resp.Result)
	}
}

// Subscribe attaches to a named event channel, subscribing to its MQTT
// topic on first use.  The returned channel is closed by Close
func (b *Bridge) Subscribe(channel string) (string, <-chan any, error) {

	b.subMu.Lock()

	if b.subs == nil {
		b.subMu.Unlock()
		return "", nil, ErrBridgeClosed
	}

	first := len(b.subs[channel]) == 0

	b.subSeq++
	id := "sub-" + strconv.FormatUint(b.subSeq, 10)

	if b.subs[channel] == nil {
		b.subs[channel] = make(map[string]chan any)
	}

	ch := make(chan any, eventBuffer)
	b.subs[channel][id] = ch

	b.subMu.Unlock()

	if first {
		if err := b.subscribeEvents(b.client, channel); err != nil {
			b.Unsubscribe(channel, id)
			return "", nil, err
		}
	}

	return id, ch, nil
}

// Unsubscribe detaches a subscription and closes its channel, dropping the
// MQTT subscription when the channel has no subscribers left
func (b *Bridge) Unsubscribe(channel, id string) {

	b.subMu.Lock()

	subs := b.subs[channel]

	ch, ok := subs[id]

	if !ok {
		b.subMu.Unlock()
		return
	}

	delete(subs, id)
	last := len(subs) == 0

	if last {
		delete(b.subs, channel)
	}

	close(ch)
	b.subMu.Unlock()

	if last {
		b.client.Unsubscribe(b.eventTopic(channel))
	}
}

// onConnect runs on every broker connection, including reconnects, and
// restores the reply topic and event subscriptions
func (b *Bridge) onConnect(c mqtt.Client) {

	b.log.Info("connected to broker", "broker", b.cfg.Broker,
		"clientId", b.cfg.ClientID)

	inbox := b.replyTopic("+")

	if token := c.Subscribe(inbox, 0, b.handleReply); token.Wait() && token.Error() != nil {
		b.log.Error("error subscribing to reply topic", "topic", inbox,
			"error", token.Error())
	}

	b.subMu.Lock()
	channels := make([]string, 0, len(b.subs))

	for channel := range b.subs {
		channels = append(channels, channel)
	}

	b.subMu.Unlock()

	for _, channel := range channels {
		b.subscribeEvents(c, channel)
	}
}

func (b *Bridge) subscribeEvents(c mqtt.Client, channel string) error {

	topic := b.eventTopic(channel)

	token := c.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		b.fanOut(channel, m.Payload())
	})

	if token.Wait() && token.Error() != nil {
		b.log.Error("error subscribing to event topic", "topic", topic,
			"error", token.Error())
		return token.Error()
	}

	return nil
}

func (b *Bridge) handleReply(_ mqtt.Client, m mqtt.Message) {

	resp := &rpcResponse{}

	if err := json.Unmarshal(m.Payload(), resp); err != nil {
		b.log.Warn("dropping undecodable reply", "topic", m.Topic(), "error", err)
		return
	}

	b.pendingMu.Lock()
	ch, ok := b.pending[resp.ID]
	delete(b.pending, resp.ID)
	b.pendingMu.Unlock()

	if !ok {
		b.log.Debug("reply for unknown request", "id", resp.ID)
		return
	}

	ch <- resp
}

// fanOut decodes an event payload and delivers it to the channel's
// subscribers.  Sends stay under the lock so a concurrent Unsubscribe
// cannot close a channel mid delivery
func (b *Bridge) fanOut(channel string, payload []byte) {

	var v any

	if err := json.Unmarshal(payload, &v); err != nil {
		b.log.Warn("dropping undecodable event", "channel", channel, "error", err)
		return
	}

	event := decodeValue(v)

	b.subMu.Lock()
	defer b.subMu.Unlock()

	for _, ch := range b.subs[channel] {
		select {
		case ch <- event:
		default:
			// subscriber is lagging, drop the event
		}
	}
}

func (b *Bridge) addPending(id string) (chan *rpcResponse, error) {

	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	if b.pending == nil {
		return nil, ErrBridgeClosed
	}

	ch := make(chan *rpcResponse, 1)
	b.pending[id] = ch

	return ch, nil
}

func (b *Bridge) removePending(id string) {

	b.pendingMu.Lock()
	delete(b.pending, id)
	b.pendingMu.Unlock()
}

// topicSegment flattens a channel name into a single topic level so names
// carrying slashes do not add levels under the rpc and events roots
func topicSegment(channel string) string {
	return strings.ReplaceAll(channel, "/", ".")
}

func (b *Bridge) requestTopic(channel string) string {
	return b.cfg.TopicPrefix + "/rpc/" + topicSegment(channel) + "/request"
}

func (b *Bridge) replyTopic(id string) string {
	return b.cfg.TopicPrefix + "/reply/" + b.cfg.ClientID + "/" + id
}

func (b *Bridge) eventTopic(channel string) string {
	return b.cfg.TopicPrefix + "/events/" + topicSegment(channel)
}

// decodeResult converts a raw JSON result into wire values
func decodeResult(raw json.RawMessage) (any, error) {

	if len(raw) == 0 {
		return nil, nil
	}

	var v any

	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("error decoding response payload: %w", err)
	}

	return decodeValue(v), nil
}

// encodeValue prepares a wire value for JSON, wrapping byte slices so they
// survive the text encoding
func encodeValue(v any) any {

	switch x := v.(type) {
	case []byte:
		return map[string]any{binKey: base64.StdEncoding.EncodeToString(x)}

	case map[string]any:
		out := make(map[string]any, len(x))

		for k, val := range x {
			out[k] = encodeValue(val)
		}

		return out

	case []any:
		out := make([]any, len(x))

		for i, val := range x {
			out[i] = encodeValue(val)
		}

		return out
	}

	return v
}

// decodeValue undoes encodeValue after JSON decoding, unwrapping binary
// markers back into byte slices
func decodeValue(v any) any {

	switch x := v.(type) {
	case map[string]any:
		if len(x) == 1 {
			if s, ok := x[binKey].(string); ok {
				if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
					return raw
				}
			}
		}

		out := make(map[string]any, len(x))

		for k, val := range x {
			out[k] = decodeValue(val)
		}

		return out

	case []any:
		out := make([]any, len(x))

		for i, val := range x {
			out[i] = decodeValue(val)
		}

		return out
	}

	return v
}
