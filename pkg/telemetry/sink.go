package telemetry

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canlink/pkg/framework"
)

// Reading is a decoded sample surfaced by Receiver.
type Reading struct {
	Channel uint32
	Value   float32
	At      time.Time
}

// Sink consumes readings.
type Sink interface {
	Consume(context.Context, Reading) error
}

// SinkFunc is func type of Sink.
type SinkFunc func(context.Context, Reading) error

// Consume implements Sink.
func (f SinkFunc) Consume(ctx context.Context, r Reading) error {
	return f(ctx, r)
}

// Sinks fans a reading out to every sink.
type Sinks []Sink

// Consume implements Sink.
func (s Sinks) Consume(ctx context.Context, r Reading) error {
	var errs framework.AggregatedError
	for _, sink := range s {
		errs.Add(sink.Consume(ctx, r))
	}
	return errs.Aggregate()
}

// LogSink logs every reading.
type LogSink struct{}

// Consume implements Sink.
func (LogSink) Consume(_ context.Context, r Reading) error {
	glog.Infof("temperature %.2f °C on %03X", r.Value, r.Channel)
	return nil
}
