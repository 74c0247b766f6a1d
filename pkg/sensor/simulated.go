package sensor

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SimulatedADC produces a bounded random walk of raw counts, for running
// a node without hardware.
type SimulatedADC struct {
	Min, Max int
	Step     int

	lock sync.Mutex
	raw  int
	rnd  *rand.Rand
}

// NewSimulatedADC creates a SimulatedADC starting at the counts of
// celsius, wandering within ±5 °C.
func NewSimulatedADC(celsius float32) *SimulatedADC {
	raw := CelsiusToRaw(celsius)
	span := CelsiusToRaw(5)
	return &SimulatedADC{
		Min:  raw - span,
		Max:  raw + span,
		Step: CelsiusToRaw(0.25),
		raw:  raw,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ReadRaw implements ADC.
func (a *SimulatedADC) ReadRaw(context.Context) (int, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.Step > 0 {
		a.raw += a.rnd.Intn(2*a.Step+1) - a.Step
	}
	if a.raw < a.Min {
		a.raw = a.Min
	}
	if a.raw > a.Max {
		a.raw = a.Max
	}
	return a.raw, nil
}
