package util

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned for bad config or requests, before any remote call is made.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrExternalService wraps failures of the catalog, the raster reader, destinations and job stores.
	ErrExternalService = errors.New("external service failure")
)

func Invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

func External(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrExternalService, what, err)
}
