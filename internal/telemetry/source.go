package telemetry

import (
	"context"
	"time"
)

// Snapshot is one tick's worth of telemetry. It is recomputed every tick.
type Snapshot struct {
	Time          time.Time `json:"time"`
	Hostname      string    `json:"hostname"`
	CPUPercent    float64   `json:"cpu_percent"`
	CPUTempC      float64   `json:"cpu_temp_c"`
	PowerWatts    float64   `json:"power_watts"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Uptime        string    `json:"uptime"`
	History       []float64 `json:"history,omitempty"`
}

// Source composes sensor readings into snapshots.
//
// Thread Safety:
//   - Snapshot is called only from the render loop.
type Source struct {
	sensors Sensors
	power   *PowerSampler
	uptime  *UptimeAccumulator
	history *History
	logger  Logger

	now func() time.Time
}

// NewSource creates a telemetry source. power and uptime may be nil, in
// which case those readings stay zero.
func NewSource(sensors Sensors, power *PowerSampler, uptime *UptimeAccumulator) *Source {
	return &Source{
		sensors: sensors,
		power:   power,
		uptime:  uptime,
		history: NewHistory(HistorySize),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the source.
func (s *Source) SetLogger(logger Logger) {
	s.logger = logger
}

// Snapshot reads every sensor once. Individual read failures produce zero
// values rather than an error so the dashboard keeps rendering.
func (s *Source) Snapshot(ctx context.Context) Snapshot {
	now := s.now()
	snap := Snapshot{
		Time:     now,
		Hostname: s.sensors.Hostname(),
	}

	if v, err := s.sensors.CPUUsagePercent(); err == nil {
		snap.CPUPercent = v
	} else {
		s.logger.Debug("cpu usage read failed", "error", err)
	}
	s.history.Push(snap.CPUPercent)
	snap.History = s.history.Values()

	if v, err := s.sensors.CPUTemperatureCelsius(); err == nil {
		snap.CPUTempC = v
	} else {
		s.logger.Debug("cpu temperature read failed", "error", err)
	}

	if s.power != nil {
		snap.PowerWatts = s.power.Read(now)
	}

	if s.uptime != nil {
		snap.UptimeSeconds = s.uptime.TotalSeconds(ctx)
	}
	snap.Uptime = FormatUptime(snap.UptimeSeconds)

	return snap
}
