package telemetry

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/coolpanel/internal/settings"
)

// defaultFlushInterval is how often cumulative uptime is persisted.
const defaultFlushInterval = 60 * time.Second

// BootClock reports the identity and age of the current boot.
type BootClock interface {
	// BootID returns an identifier unique to the current machine boot.
	BootID() (string, error)

	// UptimeSeconds returns seconds since the machine booted.
	UptimeSeconds() (float64, error)
}

// UptimeWriter persists uptime records. *settings.Store satisfies it.
type UptimeWriter interface {
	Merge(ctx context.Context, u settings.Update) error
}

// UptimeAccumulator tracks machine uptime accumulated across reboots.
//
// The total is historyBase plus the current boot's raw uptime. historyBase is
// fixed at construction:
//   - same boot id as persisted: total - raw (process restarts within a boot
//     do not double count)
//   - different boot id: the persisted total carries over unchanged
//
// Thread Safety:
//   - All methods are safe for concurrent use; TotalSeconds is called by the
//     render loop while Close runs on the shutdown path.
type UptimeAccumulator struct {
	mu            sync.Mutex
	clock         BootClock
	store         UptimeWriter
	logger        Logger
	flushInterval time.Duration

	bootID      string
	historyBase float64
	lastRaw     float64
	lastFlush   time.Time
	closed      bool

	now func() time.Time
}

// NewUptimeAccumulator reconciles the persisted record with the current boot.
//
// Parameters:
//   - ctx: Context for the boot id write when a reboot is detected. If that
//     write fails the next TotalSeconds call flushes right away instead of
//     waiting for the interval.
//   - persisted: Settings loaded at startup (total_seconds, boot_id)
//   - clock: Boot identity and raw uptime source
//   - store: Durable sink for {total_seconds, boot_id}
//   - flushInterval: Persist cadence (60s when zero)
//
// Returns:
//   - *UptimeAccumulator: Ready accumulator
//   - error: If the boot clock cannot be read; persistence failures are not fatal
func NewUptimeAccumulator(ctx context.Context, persisted settings.Settings, clock BootClock, store UptimeWriter, flushInterval time.Duration) (*UptimeAccumulator, error) {
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	bootID, err := clock.BootID()
	if err != nil {
		return nil, fmt.Errorf("reading boot id: %w", err)
	}
	raw, err := clock.UptimeSeconds()
	if err != nil {
		return nil, fmt.Errorf("reading uptime: %w", err)
	}

	u := &UptimeAccumulator{
		clock:         clock,
		store:         store,
		logger:        noopLogger{},
		flushInterval: flushInterval,
		bootID:        bootID,
		lastRaw:       raw,
		now:           time.Now,
	}
	u.lastFlush = u.now()

	if persisted.BootID == bootID {
		u.historyBase = math.Max(0, persisted.TotalSeconds-raw)
		return u, nil
	}

	u.historyBase = persisted.TotalSeconds
	if err := store.Merge(ctx, settings.Update{BootID: settings.Ptr(bootID)}); err != nil {
		u.lastFlush = time.Time{}
	}
	return u, nil
}

// SetLogger sets the logger for the accumulator.
func (u *UptimeAccumulator) SetLogger(logger Logger) {
	u.logger = logger
}

// HistoryBase returns the uptime carried over from earlier boots.
func (u *UptimeAccumulator) HistoryBase() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.historyBase
}

// TotalSeconds returns cumulative uptime, persisting it when a flush is due.
// A failed raw uptime read reuses the previous reading.
func (u *UptimeAccumulator) TotalSeconds(ctx context.Context) float64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	if raw, err := u.clock.UptimeSeconds(); err == nil {
		u.lastRaw = raw
	} else {
		u.logger.Debug("uptime read failed, reusing last value", "error", err)
	}
	total := u.historyBase + u.lastRaw

	if !u.closed && u.now().Sub(u.lastFlush) >= u.flushInterval {
		if err := u.flushLocked(ctx, total); err != nil {
			u.logger.Warn("uptime flush failed", "error", err)
		}
	}
	return total
}

// Close performs the final flush. Later calls are no-ops.
func (u *UptimeAccumulator) Close(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true

	if raw, err := u.clock.UptimeSeconds(); err == nil {
		u.lastRaw = raw
	}
	return u.flushLocked(ctx, u.historyBase+u.lastRaw)
}

func (u *UptimeAccumulator) flushLocked(ctx context.Context, total float64) error {
	u.lastFlush = u.now()
	err := u.store.Merge(ctx, settings.Update{
		TotalSeconds: settings.Ptr(total),
		BootID:       settings.Ptr(u.bootID),
	})
	if err != nil {
		return fmt.Errorf("flushing uptime: %w", err)
	}
	return nil
}

// FormatUptime renders seconds as "UP: 1d 05:30:59", dropping the day
// component when it is zero.
func FormatUptime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int64(seconds)
	days := s / 86400
	hours := (s % 86400) / 3600
	minutes := (s % 3600) / 60
	secs := s % 60

	if days > 0 {
		return fmt.Sprintf("UP: %dd %02d:%02d:%02d", days, hours, minutes, secs)
	}
	return fmt.Sprintf("UP: %02d:%02d:%02d", hours, minutes, secs)
}
