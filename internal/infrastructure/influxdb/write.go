package influxdb

import (
	"context"
	"fmt"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/coolpanel/internal/telemetry"
)

// measurementHost is the measurement every snapshot is written to.
const measurementHost = "host_telemetry"

// WriteSnapshot queues one telemetry snapshot as a point.
//
// The write is non-blocking; points are batched and failures surface through
// the SetOnError callback. The only synchronous errors are cancellation and a
// disconnected client.
//
// Example:
//
//	client.WriteSnapshot(ctx, source.Snapshot(ctx))
func (c *Client) WriteSnapshot(ctx context.Context, snap telemetry.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.IsConnected() {
		return fmt.Errorf("%w: %w", ErrWriteFailed, ErrNotConnected)
	}

	c.writeAPI.WritePoint(snapshotPoint(snap))
	return nil
}

// snapshotPoint maps a snapshot to the host_telemetry measurement, tagged by
// hostname so several panels can share a bucket.
func snapshotPoint(snap telemetry.Snapshot) *write.Point {
	return write.NewPoint(
		measurementHost,
		map[string]string{
			"host": snap.Hostname,
		},
		map[string]interface{}{
			"cpu_percent":    snap.CPUPercent,
			"cpu_temp_c":     snap.CPUTempC,
			"power_watts":    snap.PowerWatts,
			"uptime_seconds": snap.UptimeSeconds,
		},
		snap.Time,
	)
}
