package telemetry

import "errors"

// Domain errors for telemetry sensors.
var (
	// ErrSensorNotPresent is returned when the energy counter file does not exist.
	ErrSensorNotPresent = errors.New("energy sensor not present")

	// ErrSensorPermission is returned when the energy counter exists but cannot be read.
	ErrSensorPermission = errors.New("energy sensor not readable")

	// ErrNoTemperature is returned when no supported temperature sensor is found.
	ErrNoTemperature = errors.New("no cpu temperature sensor")
)
