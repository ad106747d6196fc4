package core

import (
	"errors"
)

var (
	// ErrCapacityExceeded is returned when a fixed-size table has no free slot left.
	ErrCapacityExceeded = errors.New("configured capacity exceeded")
	// ErrUnsupportedPipelineState is returned when the device rejects a layout or pipeline.
	ErrUnsupportedPipelineState = errors.New("unsupported pipeline state")
	// ErrProtocolViolation is returned when an API is called out of order.
	ErrProtocolViolation = errors.New("protocol violation")
	ErrDeviceLost    = errors.New("device lost")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrUnknown       = errors.New("unknown")
)
