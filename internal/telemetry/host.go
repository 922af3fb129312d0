package telemetry

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
)

// Sensors reads the host values shown on the dashboard.
type Sensors interface {
	CPUUsagePercent() (float64, error)
	CPUTemperatureCelsius() (float64, error)
	Hostname() string
}

// HostSensors implements Sensors and BootClock with gopsutil.
type HostSensors struct {
	bootIDPath string
	hostname   string
}

// NewHostSensors returns host sensors. bootIDPath is the kernel boot_id file;
// when unreadable the boot timestamp is used as the boot identity.
func NewHostSensors(bootIDPath string) *HostSensors {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "localhost"
	}
	return &HostSensors{
		bootIDPath: bootIDPath,
		hostname:   name,
	}
}

// Hostname returns the machine hostname captured at construction.
func (h *HostSensors) Hostname() string {
	return h.hostname
}

// CPUUsagePercent returns overall CPU load since the previous call.
func (h *HostSensors) CPUUsagePercent() (float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, fmt.Errorf("reading cpu percent: %w", err)
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}

// CPUTemperatureCelsius returns the preferred CPU temperature reading.
func (h *HostSensors) CPUTemperatureCelsius() (float64, error) {
	temps, err := host.SensorsTemperatures()
	if len(temps) == 0 {
		if err != nil {
			return 0, fmt.Errorf("reading temperatures: %w", err)
		}
		return 0, ErrNoTemperature
	}
	// gopsutil returns partial results alongside warnings; use what we got.
	return pickTemperature(temps)
}

// temperaturePreference is the ordered list of sensor matchers.
// Keys look like "k10temp_tctl", "acpitz", "coretemp_package_id_0".
var temperaturePreference = []func(key string) bool{
	func(k string) bool {
		return strings.HasPrefix(k, "k10temp") && (strings.Contains(k, "tctl") || strings.Contains(k, "tdie"))
	},
	func(k string) bool { return strings.HasPrefix(k, "acpitz") },
	func(k string) bool { return strings.HasPrefix(k, "zenpower") },
	func(k string) bool { return strings.HasPrefix(k, "coretemp_package") },
	func(k string) bool { return strings.HasPrefix(k, "coretemp") },
}

func pickTemperature(temps []host.TemperatureStat) (float64, error) {
	for _, match := range temperaturePreference {
		for _, t := range temps {
			if match(strings.ToLower(t.SensorKey)) {
				return t.Temperature, nil
			}
		}
	}
	return 0, ErrNoTemperature
}

// BootID returns the kernel boot identifier, or the boot timestamp when the
// identifier file cannot be read.
func (h *HostSensors) BootID() (string, error) {
	if data, err := os.ReadFile(h.bootIDPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	boot, err := host.BootTime()
	if err != nil {
		return "", fmt.Errorf("reading boot time: %w", err)
	}
	return "boot-" + strconv.FormatUint(boot, 10), nil
}

// UptimeSeconds returns seconds since the machine booted.
func (h *HostSensors) UptimeSeconds() (float64, error) {
	up, err := host.Uptime()
	if err != nil {
		return 0, fmt.Errorf("reading uptime: %w", err)
	}
	return float64(up), nil
}
