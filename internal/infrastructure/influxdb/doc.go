// Package influxdb records coolpanel telemetry history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched snapshot writes, and health monitoring. Each telemetry
// snapshot becomes one point in the host_telemetry measurement:
//
//	host_telemetry,host=desk-pc cpu_percent=12.5,cpu_temp_c=48,power_watts=35.2,uptime_seconds=91234
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSnapshot(ctx, snap)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Batch write errors are delivered asynchronously through SetOnError.
// Connection and health check errors are returned directly.
package influxdb
