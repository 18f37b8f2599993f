package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Errors returned by SimConfig.Validate
var (
	ErrInvalidSatelliteCount = errors.New("number of satellites must be between 4 and 12")
	ErrInvalidRadius         = errors.New("radius must be positive")
	ErrInvalidJitter         = errors.New("jitter must be between 0.0 and 1.0")
	ErrInvalidSpeed          = errors.New("speed must be non-negative")
	ErrInvalidCourse         = errors.New("course must be between 0.0 and 359.9 degrees")
	ErrInvalidOutputRate     = errors.New("output rate must be positive")
	ErrInvalidLatitude       = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude      = errors.New("longitude must be between -180 and 180")
	ErrSimulatorRunning      = errors.New("simulator is already running")
	ErrSimulatorNotRunning   = errors.New("simulator is not running")
)

// SimConfig configures a SimulatedSensor
type SimConfig struct {
	Latitude   float64         // field center
	Longitude  float64         // field center
	Radius     float64         // in meters
	Altitude   float64         // in meters
	Jitter     float64         // GPS jitter factor (0.0-1.0)
	Speed      float64         // in knots
	Course     float64         // in degrees (0-359)
	Satellites int             // reported in NMEA output
	Accuracy   float64         // reported accuracy in meters
	TimeToLock time.Duration   // no fix is produced before this
	OutputRate time.Duration   // one fix per period
	Permission PermissionState // reported by Permission
}

// DefaultSimConfig returns a rover pacing a field near Jorethang.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Latitude:   27.1,
		Longitude:  88.2,
		Radius:     150.0,
		Altitude:   320.0,
		Jitter:     0.1,
		Speed:      1.5,
		Course:     45.0,
		Satellites: 8,
		Accuracy:   6.0,
		TimeToLock: 2 * time.Second,
		OutputRate: 1 * time.Second,
		Permission: PermissionGranted,
	}
}

// Validate checks if the configuration is valid and returns an error if not
func (c *SimConfig) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return ErrInvalidLongitude
	}
	if c.Radius <= 0 {
		return ErrInvalidRadius
	}
	if c.Jitter < 0.0 || c.Jitter > 1.0 {
		return ErrInvalidJitter
	}
	if c.Speed < 0.0 {
		return ErrInvalidSpeed
	}
	if c.Course < 0.0 || c.Course >= 360.0 {
		return ErrInvalidCourse
	}
	if c.Satellites < 4 || c.Satellites > 12 {
		return ErrInvalidSatelliteCount
	}
	if c.OutputRate <= 0 {
		return ErrInvalidOutputRate
	}
	return nil
}

// SimulatedSensor is a Sensor producing a rover wandering inside a radius
// around the field center. It can mirror each fix as NMEA to a writer.
type SimulatedSensor struct {
	mu            sync.Mutex
	config        SimConfig
	hub           *fixHub
	rng           *rand.Rand
	current       orb.Point
	currentSpeed  float64
	currentCourse float64
	lockTime      time.Time
	lastUpdate    time.Time
	nmeaWriter    io.Writer

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSimulatedSensor creates a stopped simulated sensor.
func NewSimulatedSensor(config SimConfig) (*SimulatedSensor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &SimulatedSensor{
		config:        config,
		hub:           newFixHub(time.Now),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		current:       orb.Point{config.Longitude, config.Latitude},
		currentSpeed:  config.Speed,
		currentCourse: config.Course,
	}, nil
}

// SetNMEAWriter mirrors every produced fix as GGA and RMC sentences.
func (s *SimulatedSensor) SetNMEAWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nmeaWriter = w
}

// Start begins producing fixes.
func (s *SimulatedSensor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSimulatorRunning
	}
	now := time.Now()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})
	s.lockTime = now.Add(s.config.TimeToLock)
	s.lastUpdate = now
	s.running = true

	go s.run(s.ctx, s.done)
	return nil
}

// Stop halts fix production. Watches stay registered.
func (s *SimulatedSensor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSimulatorNotRunning
	}
	s.cancel()
	s.running = false
	done := s.done
	s.mu.Unlock()

	<-done
	return nil
}

// IsRunning returns whether the simulator is currently producing fixes
func (s *SimulatedSensor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Close stops the simulation and every watch.
func (s *SimulatedSensor) Close() error {
	if s.IsRunning() {
		if err := s.Stop(); err != nil && !errors.Is(err, ErrSimulatorNotRunning) {
			return err
		}
	}
	s.hub.close()
	return nil
}

func (s *SimulatedSensor) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.config.OutputRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.step(now)
		}
	}
}

// step advances the simulation by one output period
func (s *SimulatedSensor) step(now time.Time) {
	s.mu.Lock()
	if now.Before(s.lockTime) {
		w := s.nmeaWriter
		s.mu.Unlock()
		s.hub.reportNoFix()
		if w != nil {
			fmt.Fprint(w, EncodeNoFixRMC(now))
		}
		return
	}

	s.updateSpeedAndCourse()
	s.updatePosition(now)
	pos := GeoPosition{
		Latitude:   s.current.Lat(),
		Longitude:  s.current.Lon(),
		Altitude:   s.config.Altitude,
		Accuracy:   s.config.Accuracy,
		CapturedAt: now,
	}
	w := s.nmeaWriter
	speed, course := s.currentSpeed, s.currentCourse
	s.mu.Unlock()

	s.hub.publish(pos)
	if w != nil {
		fmt.Fprint(w, EncodeGGA(pos, s.config.Satellites))
		fmt.Fprint(w, EncodeRMC(pos, speed, course))
	}
}

// updateSpeedAndCourse applies jitter to speed and course
func (s *SimulatedSensor) updateSpeedAndCourse() {
	var speedVariation, courseVariation float64

	if s.config.Jitter == 0.0 {
		speedVariation = 0.0
		courseVariation = 0.0
	} else if s.config.Jitter < 0.2 {
		speedVariation = 0.05
		courseVariation = 2.0
	} else if s.config.Jitter < 0.7 {
		speedVariation = 0.10 + (s.config.Jitter-0.2)*0.40
		courseVariation = 5.0 + (s.config.Jitter-0.2)*20.0
	} else {
		speedVariation = 0.30 + (s.config.Jitter-0.7)*0.67
		courseVariation = 15.0 + (s.config.Jitter-0.7)*50.0
	}

	speedDelta := (s.rng.Float64() - 0.5) * 2 * s.config.Speed * speedVariation
	s.currentSpeed = s.config.Speed + speedDelta
	if s.currentSpeed < 0 {
		s.currentSpeed = 0
	}

	courseDelta := (s.rng.Float64() - 0.5) * 2 * courseVariation
	s.currentCourse = normalizeCourse(s.currentCourse + courseDelta)
}

// updatePosition moves the rover along its course, turning back toward the
// center when it would leave the radius
func (s *SimulatedSensor) updatePosition(now time.Time) {
	deltaTime := now.Sub(s.lastUpdate).Seconds()
	s.lastUpdate = now
	if deltaTime <= 0 {
		return
	}

	// knots to meters per second
	distance := s.currentSpeed * 0.514444 * deltaTime
	center := orb.Point{s.config.Longitude, s.config.Latitude}

	next := geo.PointAtBearingAndDistance(s.current, s.currentCourse, distance)
	if geo.Distance(center, next) > s.config.Radius {
		// head back toward the center with a little randomness
		s.currentCourse = normalizeCourse(geo.Bearing(s.current, center) + (s.rng.Float64()-0.5)*30.0)
		next = geo.PointAtBearingAndDistance(s.current, s.currentCourse, distance)
		if geo.Distance(center, next) > s.config.Radius {
			next = geo.PointAtBearingAndDistance(center, geo.Bearing(center, next), s.config.Radius)
		}
	}
	s.current = next
}

func normalizeCourse(course float64) float64 {
	for course < 0 {
		course += 360
	}
	for course >= 360 {
		course -= 360
	}
	return course
}

// Permission reports the configured permission state.
func (s *SimulatedSensor) Permission(ctx context.Context) (PermissionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Permission, nil
}

// SetPermission changes the reported permission state.
func (s *SimulatedSensor) SetPermission(p PermissionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Permission = p
}

// CurrentFix waits for the next simulated fix.
func (s *SimulatedSensor) CurrentFix(ctx context.Context, opts Options) (GeoPosition, error) {
	s.mu.Lock()
	denied := s.config.Permission == PermissionDenied
	s.mu.Unlock()
	if denied {
		return GeoPosition{}, ErrPermissionDenied
	}
	return s.hub.currentFix(ctx, opts)
}

// WatchFix delivers every simulated fix to handler.
func (s *SimulatedSensor) WatchFix(opts Options, handler WatchHandler) (WatchID, error) {
	s.mu.Lock()
	denied := s.config.Permission == PermissionDenied
	s.mu.Unlock()
	if denied {
		return "", ErrPermissionDenied
	}
	return s.hub.watch(opts, handler)
}

// ClearWatch stops a watch.
func (s *SimulatedSensor) ClearWatch(id WatchID) {
	s.hub.clearWatch(id)
}
