// Package sensor provides temperature sources for the Sampler.
package sensor

import (
	"context"
)

// Source produces one reading per call.
type Source interface {
	Read(ctx context.Context) (float32, error)
}

// ADC reads raw conversion counts from one analog channel.
type ADC interface {
	ReadRaw(ctx context.Context) (int, error)
}

// LM35 constants for a 12-bit ADC with a 3.1 V full scale.
const (
	ADCMaxRaw      = 4095
	ADCFullScaleMV = 3100
	LM35MVPerDegC  = 10
)

// LM35 converts ADC counts from an LM35 into °C.
type LM35 struct {
	ADC ADC
}

// Read implements Source.
func (s *LM35) Read(ctx context.Context) (float32, error) {
	raw, err := s.ADC.ReadRaw(ctx)
	if err != nil {
		return 0, err
	}
	return RawToCelsius(raw), nil
}

// RawToCelsius converts raw counts: mV = raw*3100/4095, °C = mV/10.
func RawToCelsius(raw int) float32 {
	mv := float32(raw) * ADCFullScaleMV / ADCMaxRaw
	return mv / LM35MVPerDegC
}

// CelsiusToRaw is the inverse of RawToCelsius, rounded to whole counts.
func CelsiusToRaw(c float32) int {
	raw := int(c*LM35MVPerDegC*ADCMaxRaw/ADCFullScaleMV + 0.5)
	switch {
	case raw < 0:
		return 0
	case raw > ADCMaxRaw:
		return ADCMaxRaw
	}
	return raw
}
