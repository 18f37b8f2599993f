package location

import "errors"

// Errors reported by location sensors and the tracker
var (
	ErrPermissionDenied     = errors.New("location permission denied")
	ErrPositionUnavailable  = errors.New("position unavailable")
	ErrTimeout              = errors.New("location request timed out")
	ErrUnsupported          = errors.New("location sensing is not supported")
	ErrSensorClosed         = errors.New("sensor is closed")
	ErrTrackerClosed        = errors.New("tracker is closed")
	ErrInvalidTimeout       = errors.New("timeout must be positive")
	ErrInvalidMaximumAge    = errors.New("maximum age must be non-negative")
	ErrInvalidTransition    = errors.New("marker transition must be non-negative")
	ErrInvalidNMEA          = errors.New("invalid NMEA sentence")
	ErrNMEAChecksumMismatch = errors.New("NMEA checksum mismatch")
	ErrUnhandledSentence    = errors.New("unhandled NMEA sentence type")
)
