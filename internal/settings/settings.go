package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/coolpanel/internal/infrastructure/database"
)

// Persisted keys.
const (
	KeyMode         = "mode"
	KeyBrightness   = "brightness"
	KeyMediaPath    = "media_path"
	KeyTotalSeconds = "total_seconds"
	KeyBootID       = "boot_id"
)

// Defaults applied to keys that are absent or unreadable.
const (
	DefaultMode       = "monitor"
	DefaultBrightness = 1.0
)

// Settings is the durable state read at startup.
type Settings struct {
	Mode         string  `json:"mode"`
	Brightness   float64 `json:"brightness"`
	MediaPath    string  `json:"media_path,omitempty"`
	TotalSeconds float64 `json:"total_seconds"`
	BootID       string  `json:"boot_id,omitempty"`
}

// Defaults returns the settings used for an empty store.
func Defaults() Settings {
	return Settings{
		Mode:       DefaultMode,
		Brightness: DefaultBrightness,
	}
}

// Update is a partial update. Nil fields are left untouched.
type Update struct {
	Mode         *string
	Brightness   *float64
	MediaPath    *string
	TotalSeconds *float64
	BootID       *string
}

// entries returns the key/value pairs carried by the update.
func (u Update) entries() map[string]any {
	out := make(map[string]any, 5)
	if u.Mode != nil {
		out[KeyMode] = *u.Mode
	}
	if u.Brightness != nil {
		out[KeyBrightness] = *u.Brightness
	}
	if u.MediaPath != nil {
		out[KeyMediaPath] = *u.MediaPath
	}
	if u.TotalSeconds != nil {
		out[KeyTotalSeconds] = *u.TotalSeconds
	}
	if u.BootID != nil {
		out[KeyBootID] = *u.BootID
	}
	return out
}

// Logger is the subset of logging used by the store.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Store is the SQLite-backed settings store.
//
// Thread Safety:
//   - A single mutex serialises every read and write. The render loop
//     (uptime flush) and the control listener (mode changes) share it.
type Store struct {
	mu     sync.Mutex
	db     *database.DB
	logger Logger
	closed bool

	// now is overridable in tests.
	now func() time.Time
}

// NewStore returns a store on an open, migrated database.
func NewStore(db *database.DB, logger Logger) *Store {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Store{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Load reads every persisted key.
//
// Keys that are missing keep their defaults. A query failure returns the
// defaults together with the error; a value that fails to decode is logged
// and skipped.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Defaults()
	if s.closed {
		return out, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return out, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return Defaults(), fmt.Errorf("scanning settings row: %w", err)
		}
		if err := decodeInto(&out, key, raw); err != nil {
			s.logger.Warn("ignoring unreadable setting", "key", key, "error", err)
		}
	}
	if err := rows.Err(); err != nil {
		return Defaults(), fmt.Errorf("reading settings: %w", err)
	}

	return out, nil
}

// decodeInto decodes one persisted value into its Settings field.
// Unknown keys are ignored.
func decodeInto(s *Settings, key, raw string) error {
	var target any
	switch key {
	case KeyMode:
		target = &s.Mode
	case KeyBrightness:
		target = &s.Brightness
	case KeyMediaPath:
		target = &s.MediaPath
	case KeyTotalSeconds:
		target = &s.TotalSeconds
	case KeyBootID:
		target = &s.BootID
	default:
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}

// Merge writes the fields set in u in one transaction, leaving every other
// key as it was.
func (s *Store) Merge(ctx context.Context, u Update) error {
	entries := u.entries()
	if len(entries) == 0 {
		return ErrEmptyUpdate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	stamp := s.now().UTC().Format(time.RFC3339)

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for key, value := range entries {
			encoded, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("encoding %s: %w", key, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, key, string(encoded), stamp)
			if err != nil {
				return fmt.Errorf("writing %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("merging settings: %w", err)
	}
	return nil
}

// Close marks the store closed. The database itself is owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return nil
}

// Ptr returns a pointer to v, for building an Update inline.
func Ptr[T any](v T) *T {
	return &v
}
