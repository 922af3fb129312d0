// Package settings persists coolpanel's durable state in SQLite.
//
// The store holds five keys: mode, brightness, media_path, total_seconds and
// boot_id. Each key is one row of the settings table; values are JSON
// encoded. Writes are merge updates: only the keys named in an Update are
// touched, last writer wins per key, and unrelated keys are preserved.
//
// Settings are read once at startup with Load. A read or decode failure is
// reported and the affected keys fall back to their defaults, so a damaged
// store never prevents the panel from starting.
package settings
