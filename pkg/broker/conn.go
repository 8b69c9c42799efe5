package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string

	// ConnectRetries bounds the initial connection attempts (default 5).
	ConnectRetries int
	// ConcurrentHandlers lets paho run message callbacks in parallel, so
	// unrelated zones are not serialized behind one goroutine.
	ConcurrentHandlers bool

	// Hooks run after every successful (re)connection.
	Hooks *ConnectHooks

	Logger *slog.Logger
}

// ConnectHooks collects callbacks run on each connection. With a clean
// session the broker forgets subscriptions on reconnect, so consumers
// register here to subscribe again.
type ConnectHooks struct {
	mu  sync.Mutex
	fns []mqtt.OnConnectHandler
}

func (h *ConnectHooks) Add(fn mqtt.OnConnectHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

func (h *ConnectHooks) run(client mqtt.Client) {
	if h == nil {
		return
	}
	h.mu.Lock()
	fns := append([]mqtt.OnConnectHandler(nil), h.fns...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(client)
	}
}

// Addr is the broker URL used by paho.
func (c *Config) Addr() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

func NewConn(ctx context.Context, cfg *Config) (mqtt.Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	connAddr := cfg.Addr()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(connAddr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOrderMatters(!cfg.ConcurrentHandlers)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("broker: connection lost", "addr", connAddr, "error", err)
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Debug("broker: on connect", "addr", connAddr)
		cfg.Hooks.run(c)
	})

	// Exponential backoff per le retry in caso di fail
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	maxRetries := cfg.ConnectRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Warn("broker: connect failed", "addr", connAddr, "error", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	logger.Info("broker: connected", "addr", connAddr, "client_id", cfg.ClientID)

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		logger.Info("broker: connection closed")
	}()

	return client, nil
}

func Close(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}
