package location

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoPosition is a single fix reported by a sensor. A newer fix supersedes
// it; it is never modified in place.
type GeoPosition struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Altitude   float64   `json:"altitude,omitempty"`
	Accuracy   float64   `json:"accuracy,omitempty"` // meters, 0 when unknown
	CapturedAt time.Time `json:"captured_at"`
}

// Point returns the fix as an orb point (lon, lat order).
func (p GeoPosition) Point() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// Feature returns the fix as a GeoJSON point feature.
func (p GeoPosition) Feature() *geojson.Feature {
	f := geojson.NewFeature(p.Point())
	f.Properties["captured_at"] = p.CapturedAt.UTC().Format(time.RFC3339)
	if p.Accuracy > 0 {
		f.Properties["accuracy"] = p.Accuracy
	}
	if p.Altitude != 0 {
		f.Properties["altitude"] = p.Altitude
	}
	return f
}

// After reports whether p was captured strictly later than other.
func (p GeoPosition) After(other GeoPosition) bool {
	return p.CapturedAt.After(other.CapturedAt)
}

func (p GeoPosition) String() string {
	return fmt.Sprintf("%.6f, %.6f @ %s", p.Latitude, p.Longitude, p.CapturedAt.Format(time.RFC3339))
}

// ErrorKind classifies why an acquisition failed
type ErrorKind int

const (
	KindPermissionDenied ErrorKind = iota + 1
	KindUnavailable
	KindTimedOut
	KindUnsupported
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindUnavailable:
		return "unavailable"
	case KindTimedOut:
		return "timed_out"
	case KindUnsupported:
		return "unsupported"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Retryable reports whether retrying without user action can succeed.
func (k ErrorKind) Retryable() bool {
	return k == KindUnavailable || k == KindTimedOut || k == KindCancelled
}

// Status is the tracker's current acquisition state. Exactly one of Idle,
// Acquiring, Available or Failed.
type Status interface {
	Name() string
	isStatus()
}

// Idle means no acquisition has been attempted yet.
type Idle struct{}

// Acquiring means a request is in flight.
type Acquiring struct{}

// Available carries the most recent successful fix.
type Available struct {
	Position GeoPosition
}

// Failed carries the classified cause of the last attempt.
type Failed struct {
	Reason  ErrorKind
	Message string
}

func (Idle) Name() string      { return "idle" }
func (Acquiring) Name() string { return "acquiring" }
func (Available) Name() string { return "available" }
func (Failed) Name() string    { return "failed" }

func (Idle) isStatus()      {}
func (Acquiring) isStatus() {}
func (Available) isStatus() {}
func (Failed) isStatus()    {}

// StatusView is the flattened, JSON friendly form of a Status.
type StatusView struct {
	State    string       `json:"state"`
	Position *GeoPosition `json:"position,omitempty"`
	Reason   ErrorKind    `json:"reason,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// View flattens s for encoding.
func View(s Status) StatusView {
	switch v := s.(type) {
	case Available:
		pos := v.Position
		return StatusView{State: v.Name(), Position: &pos}
	case Failed:
		return StatusView{State: v.Name(), Reason: v.Reason, Message: v.Message}
	case nil:
		return StatusView{State: Idle{}.Name()}
	default:
		return StatusView{State: s.Name()}
	}
}
