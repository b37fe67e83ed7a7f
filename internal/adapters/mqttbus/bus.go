package mqttbus

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mikey-austin/nowplaying/internal/ports"
)

// Options configures the MQTT connection.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLSCA     string
	TLSCert   string
	TLSKey    string
	Timeout   time.Duration
	Logger    *zap.Logger
	Debug     bool
}

type subscription struct {
	qos     byte
	handler paho.MessageHandler
}

// Bus is a paho-backed implementation of ports.Bus.
type Bus struct {
	client  paho.Client
	log     *zap.Logger
	debug   bool
	timeout time.Duration

	mu   sync.Mutex
	subs map[string]subscription
}

// Connect dials the broker. Subscriptions made through the bus are restored
// after an automatic reconnect.
func Connect(opts Options) (*Bus, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	b := &Bus{
		log:     opts.Logger,
		debug:   opts.Debug,
		timeout: opts.Timeout,
		subs:    map[string]subscription{},
	}

	clientOpts := paho.NewClientOptions().AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetOnConnectHandler(b.restore)
	clientOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		b.log.Warn("mqtt connection lost", zap.Error(err))
	})

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	tlsConfig, err := buildTLSConfig(opts.TLSCA, opts.TLSCert, opts.TLSKey)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	b.client = paho.NewClient(clientOpts)
	token := b.client.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		return nil, errors.New("timeout connecting to broker")
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	return b, nil
}

// Publish publishes a message. QoS 0 publishes return once the packet is
// handed to the client.
func (b *Bus) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if b.debug {
		b.log.Debug("mqtt publish", zap.String("topic", topic), zap.Int("bytes", len(payload)), zap.String("payload", truncatePayload(payload)))
	}
	token := b.client.Publish(topic, qos, retained, payload)
	if qos == 0 {
		select {
		case <-token.Done():
			return token.Error()
		default:
			return nil
		}
	}
	if !token.WaitTimeout(b.timeout) {
		return errors.New("timeout publishing")
	}
	return token.Error()
}

// Subscribe subscribes to a topic.
func (b *Bus) Subscribe(topic string, qos byte, handler ports.MessageHandler) error {
	if b.debug {
		b.log.Debug("mqtt subscribe", zap.String("topic", topic))
	}
	wrapped := func(_ paho.Client, msg paho.Message) {
		if b.debug {
			b.log.Debug("mqtt message", zap.String("topic", msg.Topic()), zap.Int("bytes", len(msg.Payload())), zap.String("payload", truncatePayload(msg.Payload())))
		}
		handler(msg.Topic(), msg.Payload())
	}

	b.mu.Lock()
	b.subs[topic] = subscription{qos: qos, handler: wrapped}
	b.mu.Unlock()

	token := b.client.Subscribe(topic, qos, wrapped)
	if !token.WaitTimeout(b.timeout) {
		return errors.New("timeout subscribing")
	}
	return token.Error()
}

// Unsubscribe unsubscribes from a topic.
func (b *Bus) Unsubscribe(topic string) error {
	if b.debug {
		b.log.Debug("mqtt unsubscribe", zap.String("topic", topic))
	}
	b.mu.Lock()
	delete(b.subs, topic)
	b.mu.Unlock()

	token := b.client.Unsubscribe(topic)
	if !token.WaitTimeout(b.timeout) {
		return errors.New("timeout unsubscribing")
	}
	return token.Error()
}

// Close disconnects from the broker.
func (b *Bus) Close() {
	b.client.Disconnect(250)
}

func (b *Bus) restore(client paho.Client) {
	b.mu.Lock()
	subs := make(map[string]subscription, len(b.subs))
	for topic, sub := range b.subs {
		subs[topic] = sub
	}
	b.mu.Unlock()

	for topic, sub := range subs {
		token := client.Subscribe(topic, sub.qos, sub.handler)
		if token.WaitTimeout(b.timeout) && token.Error() != nil {
			b.log.Warn("mqtt resubscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
		}
	}
}

func truncatePayload(payload []byte) string {
	const max = 2048
	if len(payload) <= max {
		return string(payload)
	}
	return string(payload[:max]) + "..."
}

func buildTLSConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	if caPath == "" && certPath == "" && keyPath == "" {
		return nil, nil
	}

	config := &tls.Config{}
	if caPath != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to parse CA bundle")
		}
		config.RootCAs = pool
	}

	if certPath != "" || keyPath != "" {
		if certPath == "" || keyPath == "" {
			return nil, errors.New("both tls cert and key are required")
		}
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, err
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}
