package config

import "errors"

// ErrInvalidConfig is returned when the effective configuration is unusable.
var ErrInvalidConfig = errors.New("invalid configuration")
