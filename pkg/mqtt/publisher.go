package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/framework"
	"github.com/robotalks/canlink/pkg/telemetry"
	"github.com/robotalks/canlink/pkg/telemetry/msgs"
)

// Topics under <prefix><node>/.
const (
	TopicSample = "sample"
	TopicMeta   = "meta"
	TopicStatus = "status"
)

// ConnectRetryInterval is the pause between failed initial connects.
const ConnectRetryInterval = 5 * time.Second

// StatusQueueLen is the number of status messages waiting for Run.
const StatusQueueLen = 8

// NodeMeta is published retained on <node>/meta while the node is online.
type NodeMeta struct {
	Node    string `json:"node"`
	Role    string `json:"role"`
	Channel string `json:"channel"`
	Bitrate string `json:"bitrate"`
	Driver  string `json:"driver"`
}

// StatsSource provides bus counters for status messages.
type StatsSource interface {
	Stats() bus.Stats
}

// Publisher uplinks readings and bus state changes. It implements
// telemetry.Sink and bus.StateNotifier.
type Publisher struct {
	Queue *Queue
	Meta  NodeMeta
	Stats StatsSource

	metaJSON []byte
	status   chan []byte
}

// NewPublisher creates a Publisher connecting to brokerURL. The broker
// clears the retained meta through the will when the node vanishes.
func NewPublisher(brokerURL string, meta NodeMeta) (*Publisher, error) {
	metaJSON, err := json.Marshal(&meta)
	if err != nil {
		return nil, err
	}
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+meta.Node+"/"+TopicMeta, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("canlink:" + meta.Node)
	}
	p := &Publisher{
		Queue:    NewQueue(opts, topicPrefix),
		Meta:     meta,
		metaJSON: metaJSON,
		status:   make(chan []byte, StatusQueueLen),
	}
	p.Queue.OnConnect = func(*Queue) { p.publishMeta() }
	return p, nil
}

func (p *Publisher) topic(name string) string {
	return p.Meta.Node + "/" + name
}

// Consume implements telemetry.Sink.
func (p *Publisher) Consume(_ context.Context, r telemetry.Reading) error {
	data, err := msgs.Encode(&msgs.TemperatureSample{
		Node:        p.Meta.Node,
		Channel:     r.Channel,
		Celsius:     r.Value,
		TimestampMs: r.At.UnixNano() / int64(time.Millisecond),
	})
	if err != nil {
		return err
	}
	token := p.Queue.Pub(p.topic(TopicSample), data)
	if token.WaitTimeout(0) {
		return token.Error()
	}
	return nil
}

// StateChanged implements bus.StateNotifier. It is called with the bus
// lock held, so the message is only queued for Run; it is dropped when the
// queue is full.
func (p *Publisher) StateChanged(state bus.State) {
	status := &msgs.BusStatus{Node: p.Meta.Node, State: state.String()}
	if p.Stats != nil {
		st := p.Stats.Stats()
		status.TxFrames, status.TxErrors = st.TxFrames, st.TxErrors
		status.RxFrames, status.RxErrors = st.RxFrames, st.RxErrors
		status.BusOffs = st.BusOffs
		status.Recoveries, status.FailedRecoveries = st.Recoveries, st.FailedRecoveries
	}
	data, err := msgs.Encode(status)
	if err != nil {
		glog.Errorf("mqtt: encode status: %v", err)
		return
	}
	select {
	case p.status <- data:
	default:
		glog.Warningf("mqtt: status queue full, dropped %s", state)
	}
}

// Run implements framework.Runnable. It keeps the connection and publishes
// queued status until ctx is done, then withdraws the meta.
func (p *Publisher) Run(ctx context.Context) error {
	go p.connect(ctx)
	for {
		select {
		case data := <-p.status:
			p.Queue.PubWith(p.topic(TopicStatus), data, 1, true)
		case <-ctx.Done():
			p.Queue.PubWith(p.topic(TopicMeta), nil, 1, true).WaitTimeout(time.Second)
			p.Queue.Close()
			return nil
		}
	}
}

// connect retries until the first connection succeeds; after that the
// client reconnects by itself.
func (p *Publisher) connect(ctx context.Context) {
	for {
		token := p.Queue.Connect()
		if token.Wait(); token.Error() == nil {
			return
		}
		glog.Warningf("mqtt: connect: %v", token.Error())
		if framework.Sleep(ctx, ConnectRetryInterval) != nil {
			return
		}
	}
}

func (p *Publisher) publishMeta() {
	p.Queue.PubWith(p.topic(TopicMeta), p.metaJSON, 1, true)
}
