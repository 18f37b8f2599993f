package playback

import (
	"fmt"
	"time"
)

// TimestampLayout is the format of Waypoint.Timestamp.
const TimestampLayout = "2006-01-02T15:04:05"

// Waypoint is one recorded rover position in display coordinates. X and Y
// are percentages of the map container, Y growing downwards.
type Waypoint struct {
	X         float64 `json:"x" yaml:"x" validate:"gte=0,lte=100"`
	Y         float64 `json:"y" yaml:"y" validate:"gte=0,lte=100"`
	Timestamp string  `json:"ts" yaml:"ts"`
}

// Time parses the waypoint timestamp.
func (w Waypoint) Time() (time.Time, error) {
	return time.Parse(TimestampLayout, w.Timestamp)
}

func (w Waypoint) String() string {
	return fmt.Sprintf("(%.0f%%, %.0f%%) at %s", w.X, w.Y, w.Timestamp)
}

// Path is a fixed, non-empty, cyclic sequence of waypoints.
type Path struct {
	waypoints []Waypoint
}

// NewPath copies waypoints into a Path.
func NewPath(waypoints []Waypoint) (Path, error) {
	if len(waypoints) == 0 {
		return Path{}, ErrEmptyPath
	}
	for i, w := range waypoints {
		if !inRange(w.X) || !inRange(w.Y) {
			return Path{}, fmt.Errorf("waypoint %d %v: %w", i, w, ErrWaypointOutOfRange)
		}
	}
	return Path{waypoints: append([]Waypoint(nil), waypoints...)}, nil
}

// inRange reports whether v is a percentage. NaN is not.
func inRange(v float64) bool {
	return v >= 0 && v <= 100
}

// Len returns the number of waypoints.
func (p Path) Len() int {
	return len(p.waypoints)
}

// At returns the waypoint at index i.
func (p Path) At(i int) Waypoint {
	return p.waypoints[i]
}

// Waypoints returns a copy of the sequence.
func (p Path) Waypoints() []Waypoint {
	return append([]Waypoint(nil), p.waypoints...)
}
