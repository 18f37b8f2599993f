package location

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/agrosmart/fieldtrack/internal/notify"
)

// TrackerConfig holds the acquisition budgets of a Tracker
type TrackerConfig struct {
	OneShot            Options       // used by RequestOnce
	Watch              Options       // used by continuous tracking
	MarkerTransition   time.Duration // animation length for continuous moves
	PermissionPrecheck bool          // consult PermissionChecker before requesting
}

// DefaultTrackerConfig returns the standard budgets
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		OneShot:            OneShotOptions(),
		Watch:              WatchOptions(),
		MarkerTransition:   1 * time.Second,
		PermissionPrecheck: true,
	}
}

// Validate checks if the configuration is valid and returns an error if not
func (c *TrackerConfig) Validate() error {
	if err := c.OneShot.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	if c.MarkerTransition < 0 {
		return ErrInvalidTransition
	}
	return nil
}

// Tracker keeps the best known position of the device and the status of
// its acquisition. A nil sensor means the host cannot sense location.
type Tracker struct {
	mu      sync.Mutex
	sensor  Sensor
	config  TrackerConfig
	logger  *log.Logger
	status  Status
	last    GeoPosition
	hasLast bool
	marker  *Marker
	closed  bool

	// in-flight RequestOnce calls keyed by issue order
	nextSeq   uint64
	latestSeq uint64
	pending   map[uint64]context.CancelFunc

	watches map[*TrackingHandle]struct{}
	updates notify.Queue[Status]
}

// TrackingHandle is the release handle of a continuous tracking session.
type TrackingHandle struct {
	id      WatchID
	tracker *Tracker
	once    sync.Once
}

// ID returns the sensor watch id.
func (h *TrackingHandle) ID() WatchID {
	h.tracker.mu.Lock()
	defer h.tracker.mu.Unlock()
	return h.id
}

// Stop releases the session. Safe to call more than once.
func (h *TrackingHandle) Stop() {
	if h == nil || h.tracker == nil {
		return
	}
	h.tracker.Stop(h)
}

// NewTracker creates a tracker in the Idle state. A nil logger logs to the
// standard logger.
func NewTracker(sensor Sensor, config TrackerConfig, logger *log.Logger) (*Tracker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Tracker{
		sensor:  sensor,
		config:  config,
		logger:  logger,
		status:  Idle{},
		pending: make(map[uint64]context.CancelFunc),
		watches: make(map[*TrackingHandle]struct{}),
	}, nil
}

// OnStatus registers a callback invoked with every status change, in order.
// Callbacks may call back into the tracker.
func (t *Tracker) OnStatus(fn func(Status)) {
	t.updates.Subscribe(fn)
}

// AttachMarker binds the map annotation moved by new fixes.
func (t *Tracker) AttachMarker(m *Marker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marker = m
}

// Status returns the current status.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// LastPosition returns the most recent successful fix, kept even while the
// status reports a failure.
func (t *Tracker) LastPosition() (GeoPosition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasLast
}

// RequestOnce acquires a single fix and returns the resulting status. The
// status passes through Acquiring. Failures are returned as Failed values.
func (t *Tracker) RequestOnce(ctx context.Context) Status {
	if t.sensor == nil {
		return t.fail(failure(KindUnsupported))
	}

	if t.config.PermissionPrecheck {
		if pc, ok := t.sensor.(PermissionChecker); ok {
			state, err := pc.Permission(ctx)
			if err == nil && state == PermissionDenied {
				return t.fail(failure(KindPermissionDenied))
			}
		}
	}

	opts := t.config.OneShot
	reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	t.mu.Lock()
	if t.closed {
		s := t.status
		t.mu.Unlock()
		return s
	}
	t.nextSeq++
	seq := t.nextSeq
	t.latestSeq = seq
	t.pending[seq] = cancel
	t.setLocked(Acquiring{})
	t.mu.Unlock()
	t.updates.Drain()

	pos, err := t.sensor.CurrentFix(reqCtx, opts)

	t.mu.Lock()
	if _, ok := t.pending[seq]; !ok {
		// cancelled by CancelPendingRequest or Close, which already set the status
		s := t.status
		t.mu.Unlock()
		return s
	}
	delete(t.pending, seq)

	if err != nil {
		kind := Classify(err)
		if errors.Is(ctx.Err(), context.Canceled) {
			kind = KindCancelled
		}
		f := failure(kind)
		if seq == t.latestSeq {
			t.setLocked(f)
		}
		t.mu.Unlock()
		t.updates.Drain()
		return f
	}

	placed := t.acceptLocked(pos)
	t.setLocked(Available{Position: t.last})
	s := t.status
	marker := t.marker
	t.mu.Unlock()
	t.updates.Drain()

	if placed && marker != nil {
		marker.Place(pos)
	}
	return s
}

// CancelPendingRequest aborts every in-flight RequestOnce. It is a no-op
// when nothing is pending.
func (t *Tracker) CancelPendingRequest() {
	t.mu.Lock()
	if len(t.pending) == 0 {
		t.mu.Unlock()
		return
	}
	for seq, cancel := range t.pending {
		cancel()
		delete(t.pending, seq)
	}
	t.setLocked(failure(KindCancelled))
	t.mu.Unlock()
	t.updates.Drain()
}

// StartContinuousTracking subscribes to fixes pushed by the sensor. The
// returned handle must be stopped exactly once when the owner goes away;
// Close stops any handles still open.
func (t *Tracker) StartContinuousTracking() (*TrackingHandle, error) {
	if t.sensor == nil {
		return nil, ErrUnsupported
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTrackerClosed
	}
	t.mu.Unlock()

	h := &TrackingHandle{tracker: t}
	id, err := t.sensor.WatchFix(t.config.Watch, func(pos GeoPosition, err error) {
		t.handleWatch(h, pos, err)
	})
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	h.id = id
	if t.closed {
		t.mu.Unlock()
		t.sensor.ClearWatch(id)
		return nil, ErrTrackerClosed
	}
	t.watches[h] = struct{}{}
	t.mu.Unlock()
	return h, nil
}

// Stop releases a continuous tracking session. Repeated calls and nil
// handles are ignored.
func (t *Tracker) Stop(h *TrackingHandle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		t.mu.Lock()
		delete(t.watches, h)
		id := h.id
		t.mu.Unlock()
		t.sensor.ClearWatch(id)
	})
}

// handleWatch applies a pushed fix. Errors are logged and leave the status
// as it was.
func (t *Tracker) handleWatch(h *TrackingHandle, pos GeoPosition, err error) {
	t.mu.Lock()
	id := h.id
	// an empty id means WatchFix has not returned yet
	if _, ok := t.watches[h]; t.closed || (!ok && id != "") {
		t.mu.Unlock()
		return
	}
	if err != nil {
		t.mu.Unlock()
		t.logger.Printf("location watch %s: %v", id, err)
		return
	}
	accepted := t.acceptLocked(pos)
	if accepted {
		t.setLocked(Available{Position: pos})
	}
	marker := t.marker
	transition := t.config.MarkerTransition
	t.mu.Unlock()
	t.updates.Drain()

	if !accepted {
		t.logger.Printf("location watch %s: dropped stale fix captured at %s", id, pos.CapturedAt.Format(time.RFC3339Nano))
		return
	}
	if marker != nil {
		marker.MoveTo(pos, transition)
	}
}

// acceptLocked records pos if it is newer than the last fix. Ordering is by
// capture time, not arrival. Caller holds t.mu.
func (t *Tracker) acceptLocked(pos GeoPosition) bool {
	if t.hasLast && !pos.After(t.last) {
		return false
	}
	t.last = pos
	t.hasLast = true
	return true
}

func (t *Tracker) fail(f Failed) Status {
	t.mu.Lock()
	if t.closed {
		s := t.status
		t.mu.Unlock()
		return s
	}
	t.setLocked(f)
	t.mu.Unlock()
	t.updates.Drain()
	return f
}

// setLocked changes the status and queues the notification. Caller holds t.mu.
func (t *Tracker) setLocked(s Status) {
	t.status = s
	t.updates.Enqueue(s)
}

// Close cancels pending requests and stops every continuous tracking
// session started through this tracker. It is idempotent.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	for seq, cancel := range t.pending {
		cancel()
		delete(t.pending, seq)
	}
	handles := make([]*TrackingHandle, 0, len(t.watches))
	for h := range t.watches {
		handles = append(handles, h)
	}
	t.mu.Unlock()

	for _, h := range handles {
		t.Stop(h)
	}
	t.updates.Reset()
	return nil
}
