package location

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSensor is a Sensor driven entirely by the test
type fakeSensor struct {
	mu         sync.Mutex
	current    func(ctx context.Context, opts Options) (GeoPosition, error)
	permission PermissionState
	calls      int
	nextID     int
	handlers   map[WatchID]WatchHandler
	cleared    map[WatchID]int
}

func newFakeSensor() *fakeSensor {
	return &fakeSensor{
		handlers: make(map[WatchID]WatchHandler),
		cleared:  make(map[WatchID]int),
	}
}

func (f *fakeSensor) CurrentFix(ctx context.Context, opts Options) (GeoPosition, error) {
	f.mu.Lock()
	f.calls++
	current := f.current
	f.mu.Unlock()
	if current == nil {
		return GeoPosition{}, ErrPositionUnavailable
	}
	return current(ctx, opts)
}

func (f *fakeSensor) WatchFix(opts Options, handler WatchHandler) (WatchID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := WatchID(fmt.Sprintf("watch-%d", f.nextID))
	f.handlers[id] = handler
	return id, nil
}

func (f *fakeSensor) ClearWatch(id WatchID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared[id]++
	delete(f.handlers, id)
}

func (f *fakeSensor) Permission(ctx context.Context) (PermissionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permission, nil
}

// push delivers a fix or error to every active watch
func (f *fakeSensor) push(pos GeoPosition, err error) {
	f.mu.Lock()
	handlers := make([]WatchHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(pos, err)
	}
}

func (f *fakeSensor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func succeedWith(pos GeoPosition) func(context.Context, Options) (GeoPosition, error) {
	return func(context.Context, Options) (GeoPosition, error) { return pos, nil }
}

func blockUntilDone(ctx context.Context, _ Options) (GeoPosition, error) {
	<-ctx.Done()
	return GeoPosition{}, ctx.Err()
}

// Helper function to create a test tracker with short budgets
func createTestTracker(t *testing.T, sensor Sensor) (*Tracker, *bytes.Buffer) {
	t.Helper()
	config := DefaultTrackerConfig()
	config.OneShot.Timeout = 200 * time.Millisecond
	config.Watch.Timeout = 200 * time.Millisecond
	config.MarkerTransition = 0

	buf := &bytes.Buffer{}
	tracker, err := NewTracker(sensor, config, log.New(buf, "", 0))
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	t.Cleanup(func() { tracker.Close() })
	return tracker, buf
}

func recordStatuses(tracker *Tracker) func() []string {
	var mu sync.Mutex
	var names []string
	tracker.OnStatus(func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, s.Name())
	})
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), names...)
	}
}

func TestNewTrackerIsIdle(t *testing.T) {
	tracker, _ := createTestTracker(t, newFakeSensor())

	if _, ok := tracker.Status().(Idle); !ok {
		t.Errorf("Expected Idle status, got %s", tracker.Status().Name())
	}
	if _, ok := tracker.LastPosition(); ok {
		t.Error("New tracker should not have a last position")
	}
}

func TestNewTrackerRejectsInvalidConfig(t *testing.T) {
	config := DefaultTrackerConfig()
	config.OneShot.Timeout = 0
	if _, err := NewTracker(nil, config, nil); !errors.Is(err, ErrInvalidTimeout) {
		t.Errorf("Expected ErrInvalidTimeout, got %v", err)
	}

	config = DefaultTrackerConfig()
	config.MarkerTransition = -time.Second
	if _, err := NewTracker(nil, config, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestRequestOnceSuccess(t *testing.T) {
	captured := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	sensor := newFakeSensor()
	sensor.current = succeedWith(GeoPosition{Latitude: 27.1, Longitude: 88.2, CapturedAt: captured})

	tracker, _ := createTestTracker(t, sensor)
	statuses := recordStatuses(tracker)

	s := tracker.RequestOnce(context.Background())
	available, ok := s.(Available)
	if !ok {
		t.Fatalf("Expected Available status, got %s", s.Name())
	}
	if available.Position.Latitude != 27.1 || available.Position.Longitude != 88.2 {
		t.Errorf("Expected position 27.1, 88.2, got %v", available.Position)
	}
	if !available.Position.CapturedAt.Equal(captured) {
		t.Errorf("Expected capture time %v, got %v", captured, available.Position.CapturedAt)
	}

	got := statuses()
	if strings.Join(got, ",") != "acquiring,available" {
		t.Errorf("Expected transitions acquiring,available, got %v", got)
	}
}

func TestRequestOnceSecondSuccessReplaces(t *testing.T) {
	first := GeoPosition{Latitude: 27.1, Longitude: 88.2, CapturedAt: time.Unix(1000, 0)}
	second := GeoPosition{Latitude: 27.2, Longitude: 88.3, CapturedAt: time.Unix(2000, 0)}

	sensor := newFakeSensor()
	sensor.current = succeedWith(first)
	tracker, _ := createTestTracker(t, sensor)
	tracker.RequestOnce(context.Background())

	sensor.mu.Lock()
	sensor.current = succeedWith(second)
	sensor.mu.Unlock()

	s := tracker.RequestOnce(context.Background())
	available, ok := s.(Available)
	if !ok {
		t.Fatalf("Expected Available status, got %s", s.Name())
	}
	if available.Position != second {
		t.Errorf("Expected %v, got %v", second, available.Position)
	}
	if last, _ := tracker.LastPosition(); last != second {
		t.Errorf("Expected last position %v, got %v", second, last)
	}
}

func TestRequestOnceWithoutSensor(t *testing.T) {
	tracker, _ := createTestTracker(t, nil)

	s := tracker.RequestOnce(context.Background())
	failed, ok := s.(Failed)
	if !ok {
		t.Fatalf("Expected Failed status, got %s", s.Name())
	}
	if failed.Reason != KindUnsupported {
		t.Errorf("Expected reason %s, got %s", KindUnsupported, failed.Reason)
	}

	if _, err := tracker.StartContinuousTracking(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
}

func TestRequestOncePermissionPrecheck(t *testing.T) {
	sensor := newFakeSensor()
	sensor.permission = PermissionDenied
	sensor.current = succeedWith(GeoPosition{Latitude: 1, Longitude: 2, CapturedAt: time.Now()})

	tracker, _ := createTestTracker(t, sensor)
	statuses := recordStatuses(tracker)

	s := tracker.RequestOnce(context.Background())
	failed, ok := s.(Failed)
	if !ok || failed.Reason != KindPermissionDenied {
		t.Fatalf("Expected Failed(permission_denied), got %v", View(s))
	}
	if sensor.callCount() != 0 {
		t.Errorf("Expected no sensor request after denied precheck, got %d", sensor.callCount())
	}
	for _, name := range statuses() {
		if name == "available" {
			t.Error("Status must never become available when permission is denied")
		}
	}
}

func TestRequestOnceSimulatedSensorDenied(t *testing.T) {
	config := DefaultSimConfig()
	config.Permission = PermissionDenied
	sensor, err := NewSimulatedSensor(config)
	if err != nil {
		t.Fatalf("Failed to create simulated sensor: %v", err)
	}
	defer sensor.Close()

	for _, precheck := range []bool{true, false} {
		t.Run(fmt.Sprintf("precheck=%v", precheck), func(t *testing.T) {
			trackerConfig := DefaultTrackerConfig()
			trackerConfig.PermissionPrecheck = precheck
			tracker, err := NewTracker(sensor, trackerConfig, log.New(&bytes.Buffer{}, "", 0))
			if err != nil {
				t.Fatalf("Failed to create tracker: %v", err)
			}
			defer tracker.Close()

			s := tracker.RequestOnce(context.Background())
			failed, ok := s.(Failed)
			if !ok || failed.Reason != KindPermissionDenied {
				t.Errorf("Expected Failed(permission_denied), got %v", View(s))
			}
		})
	}
}

func TestRequestOnceFailureClassification(t *testing.T) {
	tests := []struct {
		name     string
		current  func(context.Context, Options) (GeoPosition, error)
		expected ErrorKind
	}{
		{
			name: "permission denied",
			current: func(context.Context, Options) (GeoPosition, error) {
				return GeoPosition{}, fmt.Errorf("host refused: %w", ErrPermissionDenied)
			},
			expected: KindPermissionDenied,
		},
		{
			name: "position unavailable",
			current: func(context.Context, Options) (GeoPosition, error) {
				return GeoPosition{}, ErrPositionUnavailable
			},
			expected: KindUnavailable,
		},
		{
			name: "sensor timeout",
			current: func(context.Context, Options) (GeoPosition, error) {
				return GeoPosition{}, ErrTimeout
			},
			expected: KindTimedOut,
		},
		{
			name:     "deadline exceeded",
			current:  blockUntilDone,
			expected: KindTimedOut,
		},
		{
			name: "unknown error",
			current: func(context.Context, Options) (GeoPosition, error) {
				return GeoPosition{}, errors.New("receiver on fire")
			},
			expected: KindUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sensor := newFakeSensor()
			sensor.current = tt.current
			tracker, _ := createTestTracker(t, sensor)

			s := tracker.RequestOnce(context.Background())
			failed, ok := s.(Failed)
			if !ok {
				t.Fatalf("Expected Failed status, got %s", s.Name())
			}
			if failed.Reason != tt.expected {
				t.Errorf("Expected reason %s, got %s", tt.expected, failed.Reason)
			}
			if failed.Message != Message(tt.expected) {
				t.Errorf("Expected message %q, got %q", Message(tt.expected), failed.Message)
			}
			if _, ok := tracker.Status().(Failed); !ok {
				t.Errorf("Expected tracker status Failed, got %s", tracker.Status().Name())
			}
		})
	}
}

func TestFailureMessagesDiffer(t *testing.T) {
	kinds := []ErrorKind{KindPermissionDenied, KindUnavailable, KindTimedOut}
	seen := make(map[string]ErrorKind)
	for _, kind := range kinds {
		msg := Message(kind)
		if other, ok := seen[msg]; ok {
			t.Errorf("Kinds %s and %s share message %q", kind, other, msg)
		}
		seen[msg] = kind
	}
	if Message(KindCancelled) != "request cancelled" {
		t.Errorf("Expected cancelled message 'request cancelled', got %q", Message(KindCancelled))
	}
}

func TestFailedKeepsLastPosition(t *testing.T) {
	good := GeoPosition{Latitude: 27.1, Longitude: 88.2, CapturedAt: time.Now()}
	sensor := newFakeSensor()
	sensor.current = succeedWith(good)
	tracker, _ := createTestTracker(t, sensor)
	tracker.RequestOnce(context.Background())

	sensor.mu.Lock()
	sensor.current = nil
	sensor.mu.Unlock()

	if _, ok := tracker.RequestOnce(context.Background()).(Failed); !ok {
		t.Fatalf("Expected Failed status, got %s", tracker.Status().Name())
	}
	if last, ok := tracker.LastPosition(); !ok || last != good {
		t.Errorf("Expected last position %v to survive a failure, got %v", good, last)
	}
}

func TestCancelPendingRequest(t *testing.T) {
	sensor := newFakeSensor()
	sensor.current = blockUntilDone
	tracker, _ := createTestTracker(t, sensor)
	tracker.config.OneShot.Timeout = 10 * time.Second

	acquiring := make(chan struct{}, 1)
	tracker.OnStatus(func(s Status) {
		if _, ok := s.(Acquiring); ok {
			acquiring <- struct{}{}
		}
	})

	result := make(chan Status, 1)
	go func() { result <- tracker.RequestOnce(context.Background()) }()

	select {
	case <-acquiring:
	case <-time.After(2 * time.Second):
		t.Fatal("Request never started")
	}
	tracker.CancelPendingRequest()

	select {
	case s := <-result:
		failed, ok := s.(Failed)
		if !ok || failed.Reason != KindCancelled {
			t.Fatalf("Expected Failed(cancelled), got %v", View(s))
		}
		if failed.Message != "request cancelled" {
			t.Errorf("Expected message 'request cancelled', got %q", failed.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Cancelled request did not return")
	}

	if failed, ok := tracker.Status().(Failed); !ok || failed.Reason != KindCancelled {
		t.Errorf("Expected tracker status Failed(cancelled), got %v", View(tracker.Status()))
	}
}

func TestCancelPendingRequestNoop(t *testing.T) {
	tracker, _ := createTestTracker(t, newFakeSensor())
	statuses := recordStatuses(tracker)

	tracker.CancelPendingRequest()

	if _, ok := tracker.Status().(Idle); !ok {
		t.Errorf("Expected Idle status, got %s", tracker.Status().Name())
	}
	if len(statuses()) != 0 {
		t.Errorf("Expected no status changes, got %v", statuses())
	}
}

func TestCallerCancellationIsCancelled(t *testing.T) {
	sensor := newFakeSensor()
	sensor.current = blockUntilDone
	tracker, _ := createTestTracker(t, sensor)
	tracker.config.OneShot.Timeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	cctx, ccancel := context.WithCancel(context.Background())
	ccancel()

	if failed, ok := tracker.RequestOnce(cctx).(Failed); !ok || failed.Reason != KindCancelled {
		t.Errorf("Expected Failed(cancelled) for a cancelled caller context, got %v", View(tracker.Status()))
	}
	if failed, ok := tracker.RequestOnce(ctx).(Failed); !ok || failed.Reason != KindTimedOut {
		t.Errorf("Expected Failed(timed_out) for an expired caller deadline, got %v", View(tracker.Status()))
	}
}

func TestSupersededFailureIsNotStored(t *testing.T) {
	release := make(chan struct{})
	good := GeoPosition{Latitude: 27.1, Longitude: 88.2, CapturedAt: time.Now()}

	sensor := newFakeSensor()
	var calls int
	var mu sync.Mutex
	sensor.current = func(ctx context.Context, opts Options) (GeoPosition, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			<-release
			return GeoPosition{}, ErrPositionUnavailable
		}
		return good, nil
	}
	tracker, _ := createTestTracker(t, sensor)
	tracker.config.OneShot.Timeout = 10 * time.Second

	acquiring := make(chan struct{}, 2)
	tracker.OnStatus(func(s Status) {
		if _, ok := s.(Acquiring); ok {
			acquiring <- struct{}{}
		}
	})

	first := make(chan Status, 1)
	go func() { first <- tracker.RequestOnce(context.Background()) }()
	<-acquiring

	if _, ok := tracker.RequestOnce(context.Background()).(Available); !ok {
		t.Fatalf("Expected second request to succeed, got %s", tracker.Status().Name())
	}
	close(release)

	s := <-first
	if failed, ok := s.(Failed); !ok || failed.Reason != KindUnavailable {
		t.Errorf("Expected first request to report Failed(unavailable), got %v", View(s))
	}
	if available, ok := tracker.Status().(Available); !ok || available.Position != good {
		t.Errorf("Expected status to stay Available(%v), got %v", good, View(tracker.Status()))
	}
}

func TestContinuousTrackingUpdates(t *testing.T) {
	sensor := newFakeSensor()
	tracker, _ := createTestTracker(t, sensor)

	var frames []Frame
	var mu sync.Mutex
	marker := NewMarker("Farm Robot Location", func(f Frame) {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, f)
	})
	defer marker.Close()
	tracker.AttachMarker(marker)

	h, err := tracker.StartContinuousTracking()
	if err != nil {
		t.Fatalf("Failed to start tracking: %v", err)
	}
	defer h.Stop()
	if h.ID() == "" {
		t.Error("Tracking handle should carry the watch id")
	}

	pos := GeoPosition{Latitude: 27.1, Longitude: 88.2, CapturedAt: time.Now()}
	sensor.push(pos, nil)

	available, ok := tracker.Status().(Available)
	if !ok || available.Position != pos {
		t.Fatalf("Expected Available(%v), got %v", pos, View(tracker.Status()))
	}
	if target, placed := marker.Target(); !placed || target != pos {
		t.Errorf("Expected marker at %v, got %v", pos, target)
	}
	mu.Lock()
	if len(frames) == 0 || !frames[len(frames)-1].Final {
		t.Errorf("Expected a final marker frame, got %v", frames)
	}
	mu.Unlock()
}

func TestContinuousFailureLeavesStatus(t *testing.T) {
	sensor := newFakeSensor()
	tracker, logs := createTestTracker(t, sensor)

	h, err := tracker.StartContinuousTracking()
	if err != nil {
		t.Fatalf("Failed to start tracking: %v", err)
	}
	defer h.Stop()

	pos := GeoPosition{Latitude: 27.1, Longitude: 88.2, CapturedAt: time.Now()}
	sensor.push(pos, nil)
	sensor.push(GeoPosition{}, fmt.Errorf("%w: no signal", ErrPositionUnavailable))

	available, ok := tracker.Status().(Available)
	if !ok || available.Position != pos {
		t.Errorf("Expected status to stay Available(%v), got %v", pos, View(tracker.Status()))
	}
	if !strings.Contains(logs.String(), "no signal") {
		t.Errorf("Expected the failure to be logged, got %q", logs.String())
	}
}

func TestContinuousStaleFixDropped(t *testing.T) {
	sensor := newFakeSensor()
	tracker, logs := createTestTracker(t, sensor)

	h, err := tracker.StartContinuousTracking()
	if err != nil {
		t.Fatalf("Failed to start tracking: %v", err)
	}
	defer h.Stop()

	newer := GeoPosition{Latitude: 27.2, Longitude: 88.3, CapturedAt: time.Unix(2000, 0)}
	older := GeoPosition{Latitude: 27.1, Longitude: 88.2, CapturedAt: time.Unix(1000, 0)}
	sensor.push(newer, nil)
	sensor.push(older, nil)

	if available, ok := tracker.Status().(Available); !ok || available.Position != newer {
		t.Errorf("Expected Available(%v), got %v", newer, View(tracker.Status()))
	}
	if last, _ := tracker.LastPosition(); last != newer {
		t.Errorf("Expected last position %v, got %v", newer, last)
	}
	if !strings.Contains(logs.String(), "stale") {
		t.Errorf("Expected the stale fix to be logged, got %q", logs.String())
	}
}

func TestContinuousTrackingAcrossMidnight(t *testing.T) {
	sensor := newFakeSensor()
	tracker, logs := createTestTracker(t, sensor)

	h, err := tracker.StartContinuousTracking()
	if err != nil {
		t.Fatalf("Failed to start tracking: %v", err)
	}
	defer h.Stop()

	// a receiver sentence from the last second of the day read just after midnight
	readings := []struct {
		line     string
		received time.Time
	}{
		{formatNMEA("$GPGGA,235959,2706.000,N,08812.000,E,1,08,0.9,320.0,M,,M,,"), time.Date(2026, 10, 19, 0, 0, 0, 300000000, time.UTC)},
		{formatNMEA("$GPGGA,000005,2706.600,N,08812.600,E,1,08,0.9,320.0,M,,M,,"), time.Date(2026, 10, 19, 0, 0, 5, 200000000, time.UTC)},
	}
	var last GeoPosition
	for _, r := range readings {
		fix, err := ParseNMEA(r.line, r.received)
		if err != nil {
			t.Fatalf("ParseNMEA(%q) returned error: %v", r.line, err)
		}
		last = fix.Position
		sensor.push(fix.Position, nil)
	}

	want := time.Date(2026, 10, 19, 0, 0, 5, 0, time.UTC)
	if !last.CapturedAt.Equal(want) {
		t.Fatalf("Expected capture time %v, got %v", want, last.CapturedAt)
	}
	if available, ok := tracker.Status().(Available); !ok || available.Position != last {
		t.Errorf("Expected Available(%v), got %v", last, View(tracker.Status()))
	}
	if strings.Contains(logs.String(), "stale") {
		t.Errorf("No fix should be dropped across midnight, got %q", logs.String())
	}
}

func TestStopTwice(t *testing.T) {
	sensor := newFakeSensor()
	tracker, _ := createTestTracker(t, sensor)

	h, err := tracker.StartContinuousTracking()
	if err != nil {
		t.Fatalf("Failed to start tracking: %v", err)
	}
	id := h.ID()

	h.Stop()
	tracker.Stop(h)
	tracker.Stop(nil)

	sensor.mu.Lock()
	released := sensor.cleared[id]
	sensor.mu.Unlock()
	if released != 1 {
		t.Errorf("Expected the watch to be released once, got %d", released)
	}

	// fixes for a stopped handle are ignored
	sensor.push(GeoPosition{Latitude: 1, Longitude: 1, CapturedAt: time.Now()}, nil)
	if _, ok := tracker.Status().(Idle); !ok {
		t.Errorf("Expected Idle status after stop, got %s", tracker.Status().Name())
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	sensor := newFakeSensor()
	sensor.current = blockUntilDone
	tracker, _ := createTestTracker(t, sensor)
	tracker.config.OneShot.Timeout = 10 * time.Second

	h1, _ := tracker.StartContinuousTracking()
	h2, _ := tracker.StartContinuousTracking()

	acquiring := make(chan struct{}, 1)
	tracker.OnStatus(func(s Status) {
		if _, ok := s.(Acquiring); ok {
			acquiring <- struct{}{}
		}
	})
	result := make(chan Status, 1)
	go func() { result <- tracker.RequestOnce(context.Background()) }()
	<-acquiring

	if err := tracker.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := tracker.Close(); err != nil {
		t.Fatalf("Second Close returned error: %v", err)
	}

	select {
	case <-result:
	case <-time.After(2 * time.Second):
		t.Fatal("Pending request was not cancelled by Close")
	}

	sensor.mu.Lock()
	for _, h := range []*TrackingHandle{h1, h2} {
		if sensor.cleared[h.id] != 1 {
			t.Errorf("Expected watch %s released once, got %d", h.id, sensor.cleared[h.id])
		}
	}
	sensor.mu.Unlock()

	// stopping after Close must not release again
	h1.Stop()
	sensor.mu.Lock()
	if sensor.cleared[h1.id] != 1 {
		t.Errorf("Expected watch %s released once, got %d", h1.id, sensor.cleared[h1.id])
	}
	sensor.mu.Unlock()

	if _, err := tracker.StartContinuousTracking(); !errors.Is(err, ErrTrackerClosed) {
		t.Errorf("Expected ErrTrackerClosed, got %v", err)
	}
}

func TestStatusCallbackReentrancy(t *testing.T) {
	sensor := newFakeSensor()
	sensor.current = succeedWith(GeoPosition{Latitude: 27.1, Longitude: 88.2, CapturedAt: time.Now()})
	tracker, _ := createTestTracker(t, sensor)

	var seen []string
	tracker.OnStatus(func(s Status) {
		// reading state from inside a callback must not deadlock
		seen = append(seen, s.Name()+"/"+tracker.Status().Name())
	})
	tracker.RequestOnce(context.Background())

	if len(seen) != 2 || !strings.HasPrefix(seen[0], "acquiring/") || !strings.HasPrefix(seen[1], "available/") {
		t.Errorf("Unexpected callback sequence %v", seen)
	}
}

func TestStatusView(t *testing.T) {
	pos := GeoPosition{Latitude: 27.1, Longitude: 88.2, CapturedAt: time.Unix(1000, 0)}
	tests := []struct {
		status Status
		state  string
	}{
		{Idle{}, "idle"},
		{Acquiring{}, "acquiring"},
		{Available{Position: pos}, "available"},
		{failure(KindTimedOut), "failed"},
		{nil, "idle"},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			v := View(tt.status)
			if v.State != tt.state {
				t.Errorf("Expected state %s, got %s", tt.state, v.State)
			}
			if _, ok := tt.status.(Available); ok && (v.Position == nil || *v.Position != pos) {
				t.Errorf("Expected position %v, got %v", pos, v.Position)
			}
			if f, ok := tt.status.(Failed); ok && (v.Reason != f.Reason || v.Message != f.Message) {
				t.Errorf("Expected reason %s, got %s", f.Reason, v.Reason)
			}
		})
	}
}
