package telemetry

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// Sampler defaults.
const (
	DefaultSamplePeriod  = 2 * time.Second
	DefaultSubmitTimeout = 100 * time.Millisecond
)

// SampleSource produces one reading per call.
type SampleSource interface {
	Read(ctx context.Context) (float32, error)
}

// SamplerStats are cumulative Sampler counters.
type SamplerStats struct {
	Produced   uint64
	Dropped    uint64
	ReadErrors uint64
}

// Sampler reads Source on a fixed period and submits each reading to Out.
// A reading that can't be queued within SubmitTimeout, capped at Period,
// is dropped so the cadence is kept.
type Sampler struct {
	stats SamplerStats

	Source        SampleSource
	Out           SampleSender
	Period        time.Duration
	SubmitTimeout time.Duration
}

// NewSampler creates a Sampler with default period and submit timeout.
func NewSampler(src SampleSource, out SampleSender) *Sampler {
	return &Sampler{
		Source:        src,
		Out:           out,
		Period:        DefaultSamplePeriod,
		SubmitTimeout: DefaultSubmitTimeout,
	}
}

// Stats returns a snapshot of the counters.
func (s *Sampler) Stats() SamplerStats {
	return SamplerStats{
		Produced:   atomic.LoadUint64(&s.stats.Produced),
		Dropped:    atomic.LoadUint64(&s.stats.Dropped),
		ReadErrors: atomic.LoadUint64(&s.stats.ReadErrors),
	}
}

// Run implements framework.Runnable. The first reading is taken right away.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()
	for {
		if err := s.SampleOnce(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SampleOnce takes one reading and submits it.
func (s *Sampler) SampleOnce(ctx context.Context) error {
	value, err := s.Source.Read(ctx)
	if err != nil {
		atomic.AddUint64(&s.stats.ReadErrors, 1)
		glog.Warningf("sampler: read: %v", err)
		return err
	}
	err = s.Out.Send(ctx, Sample(value), s.submitTimeout())
	switch {
	case err == nil:
		atomic.AddUint64(&s.stats.Produced, 1)
		glog.V(2).Infof("sampler: queued %.2f", value)
	case errors.Is(err, ErrMailboxFull):
		atomic.AddUint64(&s.stats.Dropped, 1)
		glog.Warningf("sampler: mailbox full, dropped %.2f", value)
	}
	return err
}

// submitTimeout never exceeds one period, so a full mailbox can't stall
// the cadence.
func (s *Sampler) submitTimeout() time.Duration {
	timeout := s.SubmitTimeout
	if s.Period > 0 && (timeout < 0 || timeout > s.Period) {
		return s.Period
	}
	if timeout < 0 {
		return DefaultSubmitTimeout
	}
	return timeout
}
