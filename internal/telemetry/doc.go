// Package telemetry gathers the host readings shown on the dashboard.
//
// It provides:
//   - PowerSampler: package power in watts derived from a wrapping energy
//     counter (RAPL energy_uj), with a bounded re-probe policy when the
//     counter becomes unreadable
//   - UptimeAccumulator: cumulative machine uptime that survives reboots,
//     correlated by kernel boot id and persisted through the settings store
//   - History: a fixed window of recent CPU load samples for the graph
//   - Source: composes everything into one Snapshot per render tick
//
// Host readings (CPU load, temperature, hostname, raw uptime) come from
// gopsutil through the Sensors and BootClock interfaces, so every piece can
// be driven by fakes in tests.
package telemetry
