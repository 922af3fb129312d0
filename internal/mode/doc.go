// Package mode holds the panel's display mode and the media resource behind it.
//
// A Controller has exactly one of three modes:
//   - monitor: the render loop draws the telemetry dashboard
//   - static:  a single cached raster (a still image)
//   - video:   a frame source played at its native rate, looping at the end
//
// Transitions (SetMonitor, SetMedia, SetBrightness) take the controller's
// lock for their state swap only, so the render loop always observes either
// the old state or the new one. A new media source is opened and validated
// before the swap; the previous resource is closed after it. A failed
// transition leaves the previous state untouched. Every successful
// transition is persisted through the settings store.
package mode
