package location

import (
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const (
	defaultFrameInterval = 50 * time.Millisecond
	// moves shorter than this jump instead of animating
	minAnimatedDistance = 0.5 // meters
)

// Frame is one rendered marker position.
type Frame struct {
	Point orb.Point `json:"point"`
	Final bool      `json:"final"`
}

// Marker is a map annotation following the tracked fix. Moves are animated
// with an ease-out interpolation instead of jumping.
type Marker struct {
	// frameMu orders frame delivery; it is taken before mu
	frameMu       sync.Mutex
	mu            sync.Mutex
	label         string
	shown         orb.Point
	target        GeoPosition
	placed        bool
	frameInterval time.Duration
	onFrame       func(Frame)
	stop          chan struct{}
	done          chan struct{}
	closed        bool
}

// NewMarker creates an unplaced marker. onFrame may be nil and must not
// call back into the marker.
func NewMarker(label string, onFrame func(Frame)) *Marker {
	return &Marker{
		label:         label,
		frameInterval: defaultFrameInterval,
		onFrame:       onFrame,
	}
}

// SetFrameInterval changes the animation frame period.
func (m *Marker) SetFrameInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frameInterval = d
}

// Place moves the marker to pos without animation.
func (m *Marker) Place(pos GeoPosition) {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.cancelLocked()
	m.shown = pos.Point()
	m.target = pos
	m.placed = true
	onFrame := m.onFrame
	m.mu.Unlock()

	if onFrame != nil {
		onFrame(Frame{Point: pos.Point(), Final: true})
	}
}

// MoveTo animates the marker to pos over d. An unplaced marker, a zero
// duration or a negligible distance places it directly. A running
// animation is abandoned and the new one starts from the shown point.
func (m *Marker) MoveTo(pos GeoPosition, d time.Duration) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if !m.placed || d <= 0 || geo.Distance(m.shown, pos.Point()) < minAnimatedDistance {
		m.mu.Unlock()
		m.Place(pos)
		return
	}
	m.cancelLocked()
	from := m.shown
	m.target = pos
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stop = stop
	m.done = done
	interval := m.frameInterval
	m.mu.Unlock()

	go m.animate(from, pos.Point(), d, interval, stop, done)
}

func (m *Marker) animate(from, to orb.Point, d, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			t := float64(now.Sub(start)) / float64(d)
			final := t >= 1
			if final {
				t = 1
			}
			p := interpolate(from, to, easeOut(t))
			if !m.deliver(p, final, stop) {
				return
			}
			if final {
				return
			}
		}
	}
}

// deliver shows p unless the animation was stopped.
func (m *Marker) deliver(p orb.Point, final bool, stop <-chan struct{}) bool {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()

	m.mu.Lock()
	select {
	case <-stop:
		m.mu.Unlock()
		return false
	default:
	}
	m.shown = p
	onFrame := m.onFrame
	m.mu.Unlock()

	if onFrame != nil {
		onFrame(Frame{Point: p, Final: final})
	}
	return true
}

// cancelLocked stops the running animation. Caller holds m.mu.
func (m *Marker) cancelLocked() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

// Shown returns the point currently drawn.
func (m *Marker) Shown() (orb.Point, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shown, m.placed
}

// Target returns the fix the marker is moving to, or resting on.
func (m *Marker) Target() (GeoPosition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target, m.placed
}

// Settled returns a channel closed when the current animation ends.
func (m *Marker) Settled() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return m.done
}

// Popup renders the marker's info text.
func (m *Marker) Popup() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.placed {
		return m.label
	}
	return fmt.Sprintf("%s\nLat: %.6f\nLng: %.6f\nUpdated: %s",
		m.label, m.target.Latitude, m.target.Longitude, m.target.CapturedAt.Local().Format("15:04:05"))
}

// Close stops any animation; later moves are ignored.
func (m *Marker) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancelLocked()
	done := m.done
	m.mu.Unlock()

	if done != nil {
		<-done
	}
}

func easeOut(t float64) float64 {
	return t * (2 - t)
}

func interpolate(from, to orb.Point, t float64) orb.Point {
	if t >= 1 {
		return to
	}
	return orb.Point{
		from[0] + (to[0]-from[0])*t,
		from[1] + (to[1]-from[1])*t,
	}
}
