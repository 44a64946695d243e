package mqtt

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Client wraps the paho client with the subscription bookkeeping the service
// needs: every registered subscription is re-issued on reconnect, so a
// broker restart never silently drops the telemetry feed.
type Client struct {
	client mqtt.Client

	mu   sync.Mutex
	subs map[string]func(Message)
}

type Message struct {
	mqtt.Message
}

// Publisher is the minimal publish surface handed to the pipeline and the
// toggle handler.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Connect dials the broker and blocks until the initial connection settles.
// An initial connect failure is returned to the caller; once connected the
// client retries lost connections indefinitely at a fixed 5s interval.
func Connect(brokerURL, clientID string) (*Client, error) {
	c := &Client{subs: make(map[string]func(Message))}

	url := strings.TrimSpace(brokerURL)
	if url == "" {
		return nil, errors.New("mqtt: broker URL is empty")
	}
	if strings.HasPrefix(url, "mqtt://") {
		url = "tcp://" + strings.TrimPrefix(url, "mqtt://")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(url)
	if strings.TrimSpace(clientID) == "" {
		clientID = "sensor-hub-" + uuid.NewString()[:8]
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	// Serialized in-order delivery per topic.
	opts.SetOrderMatters(true)
	// Brokers on the local network run without verifiable certs.
	opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "error", err)
	}
	opts.OnConnect = func(cli mqtt.Client) {
		slog.Info("mqtt connected", "broker", url)
		c.resubscribe(cli)
	}

	c.client = mqtt.NewClient(opts)
	tok := c.client.Connect()
	if ok := tok.WaitTimeout(15 * time.Second); !ok {
		return nil, tok.Error()
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return c, nil
}

// Subscribe registers a handler for a topic. The subscription is remembered
// and re-issued after every reconnect.
func (c *Client) Subscribe(topic string, handler func(Message)) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	tok := c.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(Message{Message: msg})
	})
	tok.Wait()
	if err := tok.Error(); err != nil {
		return err
	}
	slog.Info("mqtt subscribed", "topic", topic)
	return nil
}

func (c *Client) resubscribe(cli mqtt.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, handler := range c.subs {
		h := handler
		tok := cli.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			h(Message{Message: msg})
		})
		tok.Wait()
		if err := tok.Error(); err != nil {
			slog.Error("mqtt resubscribe failed", "topic", topic, "error", err)
			continue
		}
		slog.Info("mqtt resubscribed", "topic", topic)
	}
}

// Publish sends a payload at QoS 1 and waits for the token. Errors are
// transient; callers decide whether to surface or drop them.
func (c *Client) Publish(topic string, payload []byte) error {
	tok := c.client.Publish(topic, 1, false, payload)
	tok.Wait()
	return tok.Error()
}

func (c *Client) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Disconnect(1000)
}
