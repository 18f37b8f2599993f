package location

import (
	"context"
	"errors"
)

// WatchID identifies a standing subscription on a Sensor.
type WatchID string

// WatchHandler receives each fix, or an error, reported to a watch.
type WatchHandler func(GeoPosition, error)

// Sensor is the host's location-sensing capability. Implementations must be
// safe for concurrent use; clearing one watch must not affect any other.
//
// Errors should wrap ErrPermissionDenied, ErrPositionUnavailable or
// ErrTimeout so callers can classify them.
type Sensor interface {
	// CurrentFix produces one fix or fails. It returns when ctx is done.
	CurrentFix(ctx context.Context, opts Options) (GeoPosition, error)

	// WatchFix calls handler for every new fix until ClearWatch.
	WatchFix(opts Options, handler WatchHandler) (WatchID, error)

	// ClearWatch releases a watch. Unknown ids are ignored.
	ClearWatch(id WatchID)
}

// PermissionState is the cached permission reported by the host.
type PermissionState int

const (
	PermissionUnknown PermissionState = iota
	PermissionGranted
	PermissionPrompt
	PermissionDenied
)

func (p PermissionState) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionPrompt:
		return "prompt"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// PermissionChecker is implemented by sensors that can report cached
// permission state without issuing a request. The answer is a hint only.
type PermissionChecker interface {
	Permission(ctx context.Context) (PermissionState, error)
}

// Classify maps a sensor error onto an ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimedOut
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindUnavailable
	}
}

// Message returns the remedial text shown for a failure kind. Permission,
// availability and timeout each call for a different user action.
func Message(kind ErrorKind) string {
	switch kind {
	case KindPermissionDenied:
		return "Location permission denied. Allow location access for this device in its settings, then try again."
	case KindUnavailable:
		return "Location unavailable. The receiver has no usable signal; move to open sky and retry."
	case KindTimedOut:
		return "Location request timed out. The receiver may still be acquiring satellites; retry in a moment."
	case KindUnsupported:
		return "Location sensing is not supported on this host."
	case KindCancelled:
		return "request cancelled"
	default:
		return "Location error."
	}
}

func failure(kind ErrorKind) Failed {
	return Failed{Reason: kind, Message: Message(kind)}
}
