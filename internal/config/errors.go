package config

import "errors"

var (
	// ErrLoadConfig wraps failures reading a config source.
	ErrLoadConfig = errors.New("load config failed")
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrUnknownDriver is joined into ErrInvalidConfig when a backend name is not recognized.
	ErrUnknownDriver = errors.New("unknown driver")
)
