package wolf

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/wolf-bridge/internal/device"
	"github.com/nerrad567/wolf-bridge/internal/infrastructure/mqtt"
)

// ConnState is the bridge's view of the broker connection.
type ConnState int

const (
	// Disconnected means no session is open.
	Disconnected ConnState = iota
	// Connected means a session is open.
	Connected
)

func (s ConnState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// MQTTClient is the interface for MQTT operations.
// *mqtt.Client satisfies it; tests use a mock.
type MQTTClient interface {
	// Connect opens a session. Connecting a connected client is a no-op.
	Connect() error

	// Disconnect closes the session.
	Disconnect()

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error

	// SetOnConnect registers a callback run after every (re)connect.
	SetOnConnect(callback func())

	// SetOnDisconnect registers a callback run when the connection drops.
	SetOnDisconnect(callback func(err error))
}

// WriteRequest asks the driver to write a parameter. The driver answers on
// Result, which must be buffered.
type WriteRequest struct {
	Name   string
	Value  any
	Source string
	Result chan error
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Client is the MQTT client. Nil when no broker is configured; every
	// MQTT operation then fails with ErrNoSettings.
	Client MQTTClient

	// Topics selects the topic prefix. The zero value uses "wolf".
	Topics mqtt.Topics

	// QoS for publish and subscribe.
	QoS byte

	// Logger is optional structured logger.
	Logger Logger
}

// Bridge connects the device driver to MQTT. It publishes status snapshots
// to <prefix>/status and turns messages on <prefix>/set into WriteRequests.
//
// A bridge is one-shot until StartCommandListener marks it persistent: a
// one-shot bridge disconnects after every publish.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	client MQTTClient
	topics mqtt.Topics
	qos    byte

	mu         sync.Mutex
	state      ConnState
	persistent bool
	listenCtx  context.Context
	writes     chan<- WriteRequest

	done     chan struct{}
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge. It does not connect.
func NewBridge(opts BridgeOptions) *Bridge {
	return &Bridge{
		client: opts.Client,
		topics: opts.Topics,
		qos:    opts.QoS,
		state:  Disconnected,
		done:   make(chan struct{}),
		logger: opts.Logger,
	}
}

// HasClient reports whether a broker is configured.
func (b *Bridge) HasClient() bool {
	return b.client != nil
}

// State returns the connection state.
func (b *Bridge) State() ConnState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Persistent reports whether the command listener has been started.
func (b *Bridge) Persistent() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.persistent
}

func (b *Bridge) setState(s ConnState) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// EnsureConnected opens a session unless one is open.
func (b *Bridge) EnsureConnected() error {
	if b.client == nil {
		return ErrNoSettings
	}
	if b.State() == Connected && b.client.IsConnected() {
		return nil
	}

	if err := b.client.Connect(); err != nil {
		b.setState(Disconnected)
		return err
	}
	b.setState(Connected)
	return nil
}

// PublishStatus publishes status as retained JSON.
//
// A connect failure is returned. A publish failure is logged only. A
// one-shot bridge disconnects afterwards either way.
func (b *Bridge) PublishStatus(status device.Status) error {
	if err := b.EnsureConnected(); err != nil {
		return err
	}

	defer func() {
		if !b.Persistent() {
			b.disconnect()
		}
	}()

	payload, err := json.Marshal(status)
	if err != nil {
		b.logError("failed to encode status", err)
		return nil
	}

	topic := b.topics.Status()
	if err := b.client.Publish(topic, payload, b.qos, true); err != nil {
		b.logError("failed to publish status", err)
		return nil
	}

	b.logDebug("published status", "topic", topic, "values", status.Len())
	return nil
}

// StartCommandListener subscribes to the set topic and connects. Every
// valid command is sent on writes; the message handler waits for the
// result, for ctx to end or for Stop.
//
// The subscription is renewed on every reconnect.
func (b *Bridge) StartCommandListener(ctx context.Context, writes chan<- WriteRequest) error {
	if b.client == nil {
		return ErrNoSettings
	}

	b.mu.Lock()
	b.persistent = true
	b.listenCtx = ctx
	b.writes = writes
	b.mu.Unlock()

	wasConnected := b.State() == Connected && b.client.IsConnected()

	b.client.SetOnConnect(func() {
		b.setState(Connected)
		b.subscribe()
	})
	b.client.SetOnDisconnect(func(err error) {
		b.setState(Disconnected)
		b.logWarn("MQTT connection lost", "error", err)
	})

	if err := b.EnsureConnected(); err != nil {
		return err
	}
	if wasConnected {
		b.subscribe()
	}
	return nil
}

func (b *Bridge) subscribe() {
	topic := b.topics.Set()
	if err := b.client.Subscribe(topic, b.qos, b.handleSet); err != nil {
		b.logError("failed to subscribe to set topic", fmt.Errorf("%s: %w", topic, err))
		return
	}
	b.logInfo("subscribed to set topic", "topic", topic)
}

// handleSet processes one set message. Problems are logged and never
// returned to the MQTT client.
func (b *Bridge) handleSet(_ string, payload []byte) error {
	cmd, err := ParseCommand(payload)
	if err != nil {
		b.logWarn("ignoring set payload", "payload", string(payload), "error", err)
		return nil
	}

	b.mu.Lock()
	ctx, writes := b.listenCtx, b.writes
	b.mu.Unlock()
	if ctx == nil || writes == nil {
		return nil
	}

	b.logInfo("MQTT set request", "name", cmd.Name, "value", cmd.Value)

	req := WriteRequest{
		Name:   cmd.Name,
		Value:  cmd.Value,
		Source: SourceMQTT,
		Result: make(chan error, 1),
	}

	select {
	case writes <- req:
	case <-ctx.Done():
		return nil
	case <-b.done:
		return nil
	}

	select {
	case err := <-req.Result:
		if err != nil {
			b.logError("MQTT-triggered write failed", err)
		}
	case <-ctx.Done():
	case <-b.done:
	}
	return nil
}

// Stop unsubscribes and closes the session of a persistent bridge. It is
// safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		if b.client == nil || !b.Persistent() {
			return
		}
		if b.client.IsConnected() {
			if err := b.client.Unsubscribe(b.topics.Set()); err != nil {
				b.logDebug("unsubscribe on stop failed", "error", err)
			}
		}
		b.disconnect()
		b.logInfo("bridge stopped")
	})
}

func (b *Bridge) disconnect() {
	b.client.Disconnect()
	b.setState(Disconnected)
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
