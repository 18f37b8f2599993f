package playback

import "errors"

// Errors returned by path loading and engine construction
var (
	ErrEmptyPath           = errors.New("path must contain at least one waypoint")
	ErrWaypointOutOfRange  = errors.New("waypoint coordinates must be between 0 and 100 percent")
	ErrSafeIndexOutOfRange = errors.New("safe index is outside the path")
	ErrInvalidInterval     = errors.New("tick interval must be positive")
	ErrInvalidMargin       = errors.New("margin must be between 0 and 50 percent")
	ErrEngineClosed        = errors.New("engine is closed")
	ErrNoTrackPoints       = errors.New("no track points or route points found")
)
