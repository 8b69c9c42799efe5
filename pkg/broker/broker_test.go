package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err     error
	pending bool
	done    chan struct{}
}

func newToken(err error, pending bool) *fakeToken {
	t := &fakeToken{err: err, pending: pending, done: make(chan struct{})}
	if !pending {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  interface{}
}

// fakeClient embeds mqtt.Client so only the methods under test need bodies.
type fakeClient struct {
	mqtt.Client

	mu         sync.Mutex
	publishErr error
	hang       bool
	published  []published
	callbacks  map[string]mqtt.MessageHandler
	qos        map[string]byte
	subs       map[string]int
	unsubbed   []string
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, qos, retained, payload})
	return newToken(c.publishErr, c.hang)
}

func (c *fakeClient) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.callbacks == nil {
		c.callbacks = map[string]mqtt.MessageHandler{}
		c.qos = map[string]byte{}
		c.subs = map[string]int{}
	}
	c.subs[topic]++
	c.callbacks[topic] = cb
	c.qos[topic] = qos
	return newToken(nil, false)
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubbed = append(c.unsubbed, topics...)
	return newToken(nil, false)
}

func (c *fakeClient) subscribeCount(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[topic]
}

func (c *fakeClient) callback(topic string) mqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callbacks[topic]
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func TestPublisher_PublishToQos(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, time.Second, nil)

	require.NoError(t, p.PublishToQos("chrab/z1/cmd", 1, false, "1"))
	require.Len(t, client.published, 1)
	assert.Equal(t, published{"chrab/z1/cmd", 1, false, "1"}, client.published[0])
}

func TestPublisher_RejectsUnsupportedPayload(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, time.Second, nil)

	err := p.PublishToQos("chrab/z1/cmd", 1, false, 42)
	require.Error(t, err)
	assert.Empty(t, client.published)
}

func TestPublisher_BrokerError(t *testing.T) {
	client := &fakeClient{publishErr: errors.New("not connected")}
	p := NewPublisher(client, time.Second, nil)

	err := p.PublishToQos("chrab/z1/cmd", 1, false, "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestPublisher_TimesOut(t *testing.T) {
	client := &fakeClient{hang: true}
	p := NewPublisher(client, 20*time.Millisecond, nil)

	start := time.Now()
	err := p.PublishToQos("chrab/z1/cmd", 1, false, "1")
	require.ErrorIs(t, err, ErrPublishTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestQosFor(t *testing.T) {
	assert.Equal(t, byte(1), qosFor("chrab/+/telemetry"))
	assert.Equal(t, byte(1), qosFor("chrab/z1/cmd"))
	assert.Equal(t, byte(1), qosFor("chrab/z1/cfg"))
	assert.Equal(t, byte(0), qosFor("chrab/z1/status"))
}

func TestConsumer_DispatchesAndUnsubscribes(t *testing.T) {
	client := &fakeClient{}
	got := make(chan string, 1)
	c := NewConsumer(client, nil, nil, "chrab/+/telemetry")
	c.SetHandler(func(topic string, m mqtt.Message) error {
		got <- topic + " " + string(m.Payload())
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.ConsumeMessage(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return client.callback("chrab/+/telemetry") != nil }, time.Second, 5*time.Millisecond)
	client.callback("chrab/+/telemetry")(client, fakeMessage{topic: "chrab/z1/telemetry", payload: []byte(`{}`)})
	assert.Equal(t, "chrab/+/telemetry {}", <-got)
	assert.Equal(t, byte(1), client.qos["chrab/+/telemetry"])

	cancel()
	<-done
	assert.Equal(t, []string{"chrab/+/telemetry"}, client.unsubbed)
}

func TestConsumer_ResubscribesOnReconnect(t *testing.T) {
	client := &fakeClient{}
	hooks := &ConnectHooks{}
	got := make(chan string, 4)
	c := NewConsumer(client, func(topic string, m mqtt.Message) error {
		got <- string(m.Payload())
		return nil
	}, nil, "chrab/z1/cmd", "chrab/z1/cfg")
	hooks.Add(c.OnConnect)

	// first connect happens before consuming starts
	hooks.run(client)
	assert.Zero(t, client.subscribeCount("chrab/z1/cmd"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.ConsumeMessage(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return client.subscribeCount("chrab/z1/cfg") == 1 }, time.Second, 5*time.Millisecond)

	hooks.run(client)
	hooks.run(client)
	assert.Equal(t, 3, client.subscribeCount("chrab/z1/cmd"))
	assert.Equal(t, 3, client.subscribeCount("chrab/z1/cfg"))

	client.callback("chrab/z1/cmd")(client, fakeMessage{topic: "chrab/z1/cmd", payload: []byte("1")})
	assert.Equal(t, "1", <-got)

	cancel()
	<-done
	hooks.run(client)
	assert.Equal(t, 3, client.subscribeCount("chrab/z1/cmd"))
}

func TestConnectHooks_NilIsNoop(t *testing.T) {
	var hooks *ConnectHooks
	assert.NotPanics(t, func() { hooks.run(&fakeClient{}) })
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "chrab/area-1/cmd", TopicFor("chrab/{zone}/cmd", "area-1"))
}
