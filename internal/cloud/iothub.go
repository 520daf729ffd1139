package cloud

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	apiVersion = "2021-04-12"

	qosAtLeastOnce = 1

	keepAliveInterval     = 30 * time.Second
	reconnectMax          = 30 * time.Second
	defaultTokenTTL       = 1 * time.Hour
	defaultConnectTimeout = 30 * time.Second
	disconnectQuiesceMS   = 250
)

// Options holds HubSession tuning knobs. The zero value selects the TLS
// transport on 8883, a one-hour token lifetime, and slog.Default().
type Options struct {
	// Transport selects how MQTT reaches the hub: "tcp" (TLS, port 8883)
	// or "wss" (MQTT over WebSockets, port 443).
	Transport string

	// TokenTTL is the SAS token lifetime.
	TokenTTL time.Duration

	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration

	Logger *slog.Logger

	// OnConnectionChange is called when the session connects or loses its
	// connection. Optional.
	OnConnectionChange func(connected bool)
}

// HubSession is an Azure IoT Hub device session over MQTT 3.1.1. It
// implements Session: device-to-cloud messages publish to the events topic
// with a property bag, cloud-to-device messages arrive on the devicebound
// subscription. Reconnection is handled by the MQTT client.
type HubSession struct {
	client   mqtt.Client
	settings Settings
	logger   *slog.Logger

	mu      sync.RWMutex
	handler ReceiveHandler
}

var _ Session = (*HubSession)(nil)

// Connect establishes an IoT Hub device session. It blocks until the
// connection is up, the ConnectTimeout elapses, or ctx is cancelled.
func Connect(ctx context.Context, s Settings, opts Options) (*HubSession, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}

	broker, err := brokerURL(s.HostName, opts.Transport)
	if err != nil {
		return nil, err
	}
	token, err := GenerateSASToken(s.ResourceURI(), s.SharedAccessKeyName, s.SharedAccessKey, opts.TokenTTL)
	if err != nil {
		return nil, err
	}

	hub := &HubSession{settings: s, logger: opts.Logger}

	co := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(s.DeviceID).
		SetUsername(s.HostName + "/" + s.DeviceID + "/?api-version=" + apiVersion).
		SetPassword(token).
		SetProtocolVersion(4).
		SetCleanSession(true).
		SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}).
		SetKeepAlive(keepAliveInterval).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(reconnectMax).
		SetOrderMatters(false)

	co.SetOnConnectHandler(func(mqtt.Client) {
		opts.Logger.Info("cloud session connected", "host", s.HostName, "deviceId", s.DeviceID)
		if opts.OnConnectionChange != nil {
			opts.OnConnectionChange(true)
		}
		// Re-establish the devicebound subscription after a reconnect.
		hub.mu.RLock()
		installed := hub.handler != nil
		hub.mu.RUnlock()
		if installed {
			if err := hub.subscribe(); err != nil {
				opts.Logger.Error("resubscribe after reconnect failed", "error", err)
			}
		}
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		opts.Logger.Warn("cloud session disconnected", "error", sanitizeErr(err))
		if opts.OnConnectionChange != nil {
			opts.OnConnectionChange(false)
		}
	})

	hub.client = mqtt.NewClient(co)

	connCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	tok := hub.client.Connect()
	select {
	case <-tok.Done():
		if tok.Error() != nil {
			return nil, fmt.Errorf("cloud: connect: %w", sanitizeErr(tok.Error()))
		}
	case <-connCtx.Done():
		hub.client.Disconnect(0)
		return nil, fmt.Errorf("cloud: connect: %w", connCtx.Err())
	}
	return hub, nil
}

// Submit publishes msg to the device's events topic with QoS 1 and invokes
// done once the hub acknowledges the publish (or the attempt settles with
// an error, or ctx is cancelled).
func (s *HubSession) Submit(ctx context.Context, msg *Message, done CompletionFunc) error {
	if msg == nil || done == nil {
		return errors.New("cloud: nil message or completion")
	}
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	topic := "devices/" + s.settings.DeviceID + "/messages/events/" + encodePropertyBag(msg)
	tok := s.client.Publish(topic, qosAtLeastOnce, false, msg.Body())
	go func() {
		select {
		case <-tok.Done():
			done(tok.Error())
		case <-ctx.Done():
			done(ctx.Err())
		}
	}()
	return nil
}

// SetReceiveHandler installs h and subscribes to the devicebound topic.
func (s *HubSession) SetReceiveHandler(h ReceiveHandler) error {
	s.mu.Lock()
	if s.handler != nil {
		s.mu.Unlock()
		return errors.New("cloud: receive handler already installed")
	}
	s.handler = h
	s.mu.Unlock()
	return s.subscribe()
}

func (s *HubSession) subscribe() error {
	filter := "devices/" + s.settings.DeviceID + deviceboundMarker + "#"
	tok := s.client.Subscribe(filter, qosAtLeastOnce, s.onMessage)
	if tok.Wait() && tok.Error() != nil {
		return fmt.Errorf("cloud: subscribe %s: %w", filter, tok.Error())
	}
	return nil
}

func (s *HubSession) onMessage(_ mqtt.Client, m mqtt.Message) {
	msg := newInbound(m.Payload())
	if bag := topicBag(m.Topic()); bag != "" {
		if err := decodePropertyBag(bag, msg); err != nil {
			s.logger.Warn("dropping inbound message", "error", err)
			return
		}
	}

	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	if h == nil {
		return
	}
	if h(msg) == Rejected {
		s.logger.Warn("inbound message rejected", "messageId", msg.MessageID())
	}
}

// Close disconnects from the hub, waiting briefly for queued work to drain.
// In-flight submissions that have not settled are abandoned.
func (s *HubSession) Close() error {
	s.client.Disconnect(disconnectQuiesceMS)
	return nil
}

// brokerURL maps a transport name to the hub's MQTT endpoint.
func brokerURL(host, transport string) (string, error) {
	switch transport {
	case "", "tcp":
		return "ssl://" + host + ":8883", nil
	case "wss":
		return "wss://" + host + ":443/$iothub/websocket", nil
	default:
		return "", fmt.Errorf("cloud: unknown transport %q (want tcp or wss)", transport)
	}
}
