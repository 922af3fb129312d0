package telemetry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// EnergySensor reads a monotonically increasing energy counter.
type EnergySensor interface {
	// Probe reports whether the counter can currently be read.
	Probe() error

	// ReadMicrojoules returns the raw counter value in microjoules.
	ReadMicrojoules() (int64, error)
}

// RAPLSensor reads the powercap energy counter exposed under /sys.
type RAPLSensor struct {
	Path string
}

// NewRAPLSensor returns a sensor for the given energy_uj path.
func NewRAPLSensor(path string) *RAPLSensor {
	return &RAPLSensor{Path: path}
}

// Probe distinguishes a missing counter from one the process may not read.
// Recent kernels restrict energy_uj to root.
func (r *RAPLSensor) Probe() error {
	f, err := os.Open(r.Path)
	if err != nil {
		return classifyOpenError(r.Path, err)
	}
	return f.Close()
}

// ReadMicrojoules reads and parses the counter.
func (r *RAPLSensor) ReadMicrojoules() (int64, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return 0, classifyOpenError(r.Path, err)
	}

	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", r.Path, err)
	}
	return v, nil
}

func classifyOpenError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", path, ErrSensorNotPresent)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w", path, ErrSensorPermission)
	default:
		return fmt.Errorf("reading %s: %w", path, err)
	}
}
