package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/telemetry"
	"github.com/robotalks/canlink/pkg/telemetry/msgs"
)

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	lock      sync.Mutex
	published []published
	subs      []string
	unsubs    []string
}

func (c *fakeClient) Connect() paho.Token { return &paho.DummyToken{} }
func (c *fakeClient) Disconnect(uint)     {}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	data, _ := payload.([]byte)
	c.published = append(c.published, published{topic: topic, retained: retained, payload: data})
	return &paho.DummyToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.subs = append(c.subs, topic)
	return &paho.DummyToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	for topic := range filters {
		c.subs = append(c.subs, topic)
	}
	return &paho.DummyToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.unsubs = append(c.unsubs, topics...)
	return &paho.DummyToken{}
}

func (c *fakeClient) Published() []published {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]published(nil), c.published...)
}

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		topic, pattern string
		match          bool
	}{
		{"n1/sample", "n1/sample", true},
		{"n1/sample", "+/sample", true},
		{"n1/sample", "#", true},
		{"n1/sample", "n1/#", true},
		{"n1", "n1/#", true},
		{"n1/sample", "n2/#", false},
		{"n1/sample/x", "+/sample", false},
		{"n1", "+/sample", false},
	}
	for _, c := range cases {
		require.Equal(t, c.match, MatchTopic(c.topic, c.pattern), "%s ~ %s", c.topic, c.pattern)
	}
}

func TestClientOptionsFromURL(t *testing.T) {
	opts, prefix, err := ClientOptionsFromURL("mqtt://u:p@broker:1883/canlink?client-id=abc")
	require.NoError(t, err)
	require.Equal(t, "canlink/", prefix)
	require.Equal(t, "tcp://broker:1883", opts.Servers[0].String())
	require.Equal(t, "u", opts.Username)
	require.Equal(t, "p", opts.Password)
	require.Equal(t, "abc", opts.ClientID)

	_, prefix, err = ClientOptionsFromURL("mqtt://broker:1883")
	require.NoError(t, err)
	require.Empty(t, prefix)
}

func TestQueueSubDispatch(t *testing.T) {
	client := &fakeClient{}
	q := &Queue{Client: client, TopicPrefix: "canlink/"}
	var got []string
	sub := q.Sub("+/sample", func(topic string, payload []byte) {
		got = append(got, topic+"="+string(payload))
	})
	q.Sub("n1/meta", func(topic string, payload []byte) {
		got = append(got, "meta")
	})
	require.Equal(t, []string{"canlink/+/sample", "canlink/n1/meta"}, client.subs)

	q.deliver("canlink/n1/sample", []byte("x"))
	q.deliver("canlink/n1/meta", nil)
	q.deliver("other/n1/sample", []byte("y"))
	require.Equal(t, []string{"n1/sample=x", "meta"}, got)

	require.NoError(t, sub.Close())
	require.Equal(t, []string{"canlink/+/sample"}, client.unsubs)
	q.deliver("canlink/n2/sample", []byte("z"))
	require.Len(t, got, 2)
}

func newTestPublisher(client *fakeClient) *Publisher {
	return &Publisher{
		Queue:    &Queue{Client: client, TopicPrefix: "canlink/"},
		Meta:     NodeMeta{Node: "n1", Role: "listener"},
		metaJSON: []byte(`{"node":"n1"}`),
		status:   make(chan []byte, StatusQueueLen),
	}
}

func TestPublisherSample(t *testing.T) {
	client := &fakeClient{}
	p := newTestPublisher(client)
	at := time.Unix(100, 0)
	require.NoError(t, p.Consume(context.Background(), telemetry.Reading{Channel: 0x1A0, Value: 23.5, At: at}))

	pubs := client.Published()
	require.Len(t, pubs, 1)
	require.Equal(t, "canlink/n1/sample", pubs[0].topic)
	require.False(t, pubs[0].retained)
	typed, err := msgs.DecodeTyped(pubs[0].payload)
	require.NoError(t, err)
	msg, err := typed.Decode()
	require.NoError(t, err)
	require.Equal(t, &msgs.TemperatureSample{Node: "n1", Channel: 0x1A0, Celsius: 23.5, TimestampMs: 100000}, msg)
}

type fixedStats bus.Stats

func (s fixedStats) Stats() bus.Stats { return bus.Stats(s) }

func TestPublisherStatus(t *testing.T) {
	client := &fakeClient{}
	p := newTestPublisher(client)
	p.Stats = fixedStats{TxFrames: 3, BusOffs: 1}
	p.StateChanged(bus.Faulted)
	// nothing goes to the client until Run picks it up
	require.Empty(t, client.Published())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()
	deadline := time.Now().Add(time.Second)
	for len(client.Published()) == 0 {
		require.True(t, time.Now().Before(deadline), "status not published")
		time.Sleep(time.Millisecond)
	}
	cancel()
	require.NoError(t, <-errCh)

	pubs := client.Published()
	require.True(t, len(pubs) >= 1)
	require.Equal(t, "canlink/n1/status", pubs[0].topic)
	require.True(t, pubs[0].retained)
	typed, err := msgs.DecodeTyped(pubs[0].payload)
	require.NoError(t, err)
	msg, err := typed.Decode()
	require.NoError(t, err)
	status := msg.(*msgs.BusStatus)
	require.Equal(t, "faulted", status.State)
	require.Equal(t, uint64(3), status.TxFrames)
	require.Equal(t, uint64(1), status.BusOffs)
}

func TestPublisherRunWithdrawsMeta(t *testing.T) {
	client := &fakeClient{}
	p := newTestPublisher(client)
	p.Queue.OnConnect = func(*Queue) { p.publishMeta() }
	p.Queue.OnConnectHandler(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	pubs := client.Published()
	require.True(t, len(pubs) >= 2)
	require.Equal(t, "canlink/n1/meta", pubs[0].topic)
	require.Equal(t, `{"node":"n1"}`, string(pubs[0].payload))
	last := pubs[len(pubs)-1]
	require.Equal(t, "canlink/n1/meta", last.topic)
	require.True(t, last.retained)
	require.Empty(t, last.payload)
}

func TestPublisherStatusNeverBlocks(t *testing.T) {
	p := newTestPublisher(&fakeClient{})
	done := make(chan struct{})
	go func() {
		for i := 0; i < StatusQueueLen+3; i++ {
			p.StateChanged(bus.Faulted)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StateChanged blocked without a running publisher")
	}
	require.Len(t, p.status, StatusQueueLen)
}
