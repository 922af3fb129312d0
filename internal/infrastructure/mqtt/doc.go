// Package mqtt provides MQTT connectivity for coolpanel.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing telemetry snapshots and the retained mode state
//   - The command subscription used as a secondary control transport
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
//	coolpanel/<client_id>/telemetry   snapshot JSON
//	coolpanel/<client_id>/state       retained mode JSON
//	coolpanel/<client_id>/command     control request JSON
//	coolpanel/<client_id>/response    control response JSON
//	coolpanel/<client_id>/status      retained online/offline, LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	pub := mqtt.NewPublisher(client)
//	pub.PublishSnapshot(ctx, snap)
package mqtt
