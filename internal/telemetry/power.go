package telemetry

import (
	"errors"
	"time"
)

// Power sampling constants.
const (
	// minSampleInterval is the shortest gap over which power is computed.
	// Shorter gaps return the previous reading.
	minSampleInterval = 10 * time.Millisecond

	// microjoulesPerJoule converts the RAPL counter unit.
	microjoulesPerJoule = 1e6

	defaultMaxFailures     = 5
	defaultReprobeInterval = 30 * time.Second
)

// PowerSampler derives instantaneous power from a wrapping energy counter.
//
// The baseline (lastEnergy, lastTime) only moves forward. A counter that goes
// backwards is treated as wraparound: the baseline is re-anchored and the
// previous valid reading is returned, so a negative value is never produced.
//
// Thread Safety:
//   - Not safe for concurrent use. The render loop is the only caller.
type PowerSampler struct {
	sensor          EnergySensor
	logger          Logger
	maxFailures     int
	reprobeInterval time.Duration

	initialized bool
	lastEnergy  int64
	lastTime    time.Time
	lastValid   float64

	needsProbe bool
	failures   int
	lastProbe  time.Time
	lastErr    error
}

// NewPowerSampler creates a sampler reading from sensor.
//
// Parameters:
//   - sensor: Energy counter, or nil when the host has none (always 0 W)
//   - maxFailures: Consecutive failures before re-probes are throttled
//   - reprobeInterval: Minimum gap between throttled re-probes
func NewPowerSampler(sensor EnergySensor, maxFailures int, reprobeInterval time.Duration) *PowerSampler {
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	if reprobeInterval <= 0 {
		reprobeInterval = defaultReprobeInterval
	}
	return &PowerSampler{
		sensor:          sensor,
		logger:          noopLogger{},
		maxFailures:     maxFailures,
		reprobeInterval: reprobeInterval,
		needsProbe:      true,
	}
}

// SetLogger sets the logger for the sampler.
func (p *PowerSampler) SetLogger(logger Logger) {
	p.logger = logger
}

// Sample folds one raw counter reading (microjoules) taken at now into the
// sampler and returns the current power in watts.
func (p *PowerSampler) Sample(raw int64, now time.Time) float64 {
	if !p.initialized {
		p.lastEnergy = raw
		p.lastTime = now
		p.initialized = true
		return p.lastValid
	}

	dt := now.Sub(p.lastTime)
	if dt < minSampleInterval {
		return p.lastValid
	}

	de := raw - p.lastEnergy
	switch {
	case de < 0:
		// Counter wrapped or was reset.
		p.lastEnergy = raw
		p.lastTime = now
		return p.lastValid
	case de == 0:
		return p.lastValid
	}

	watts := (float64(de) / microjoulesPerJoule) / dt.Seconds()
	p.lastEnergy = raw
	p.lastTime = now
	p.lastValid = watts
	return watts
}

// Read samples the sensor at now, applying the re-probe policy.
//
// A read failure returns the last valid reading and schedules a probe for the
// next call. Once maxFailures consecutive failures have accumulated, probes
// happen at most once per reprobeInterval. A successful probe resets the
// baseline so the next reading starts fresh.
func (p *PowerSampler) Read(now time.Time) float64 {
	if p.sensor == nil {
		return 0
	}

	if p.needsProbe {
		if p.failures >= p.maxFailures && now.Sub(p.lastProbe) < p.reprobeInterval {
			return p.lastValid
		}
		p.lastProbe = now
		if err := p.sensor.Probe(); err != nil {
			p.recordFailure(err)
			return p.lastValid
		}
		if p.lastErr != nil {
			p.logger.Info("energy sensor available again")
		}
		p.needsProbe = false
		p.initialized = false
		p.lastErr = nil
	}

	raw, err := p.sensor.ReadMicrojoules()
	if err != nil {
		p.recordFailure(err)
		p.needsProbe = true
		return p.lastValid
	}

	p.failures = 0
	return p.Sample(raw, now)
}

// recordFailure counts a failure and logs only when the cause changes.
func (p *PowerSampler) recordFailure(err error) {
	p.failures++
	if p.lastErr != nil && errors.Is(err, unwrapSentinel(p.lastErr)) {
		p.lastErr = err
		return
	}
	p.lastErr = err

	switch {
	case errors.Is(err, ErrSensorPermission):
		p.logger.Warn("energy sensor present but not readable, power shows last value", "error", err)
	case errors.Is(err, ErrSensorNotPresent):
		p.logger.Warn("energy sensor not present, power unavailable", "error", err)
	default:
		p.logger.Warn("energy sensor read failed", "error", err)
	}
}

// unwrapSentinel maps an error to the sentinel it wraps, if any.
func unwrapSentinel(err error) error {
	for _, s := range []error{ErrSensorPermission, ErrSensorNotPresent} {
		if errors.Is(err, s) {
			return s
		}
	}
	return err
}

// Failures returns the current count of consecutive failures.
func (p *PowerSampler) Failures() int {
	return p.failures
}
