package rhpman

import "errors"

var (
	ErrInvalidThreshold  = errors.New("threshold must be within [0, 1]")
	ErrInvalidWeight     = errors.New("weight must be non-negative")
	ErrInvalidHops       = errors.New("hop count must be positive")
	ErrInvalidDuration   = errors.New("duration must be positive")
	ErrInvalidCapacity   = errors.New("capacity must be non-negative")
	ErrInvalidRole       = errors.New("unknown role")
	ErrNotRunning        = errors.New("engine is not running")
	ErrTransportRequired = errors.New("transport is required")
	ErrSchedulerRequired = errors.New("scheduler is required")
)
