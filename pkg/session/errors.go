package session

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when required settings are missing or
	// invalid, or when a driver or model cannot be resolved.
	ErrConfiguration = errors.New("session configuration error")

	// ErrCapability is returned when a resolved storage model does not
	// implement SaveHandler.
	ErrCapability = errors.New("session capability error")

	// ErrDestroyed is returned when an operation needs an active session.
	ErrDestroyed = errors.New("session destroyed")
)

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func capabilityError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCapability, fmt.Sprintf(format, args...))
}
