package linkcheck

import "errors"

// Sentinel errors shared by stores and the orchestrator.
var (
	ErrJobNotFound       = errors.New("analysis not found")
	ErrJobExists         = errors.New("analysis already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrResultNotFound    = errors.New("analysis result not found")
	ErrResultExists      = errors.New("analysis result already saved")
	ErrJobNotRunning     = errors.New("analysis is not running")
	ErrInvalidURL        = errors.New("invalid url")
)
