package playback

import (
	"sync"
	"time"

	"github.com/agrosmart/fieldtrack/internal/notify"
)

// Config holds the playback cadence and the safe zone
type Config struct {
	Interval  time.Duration // time between ticks
	SafeIndex int           // waypoint JumpToSafe returns to
}

// DefaultConfig returns the dashboard cadence of one waypoint every 2.5s
func DefaultConfig() Config {
	return Config{
		Interval:  2500 * time.Millisecond,
		SafeIndex: 0,
	}
}

// Validate checks if the configuration is valid and returns an error if not
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return ErrInvalidInterval
	}
	if c.SafeIndex < 0 {
		return ErrSafeIndexOutOfRange
	}
	return nil
}

// State is a snapshot of the engine.
type State struct {
	CurrentIndex int      `json:"current_index"`
	Running      bool     `json:"running"`
	Total        int      `json:"total"`
	Waypoint     Waypoint `json:"waypoint"`
}

// Engine replays a Path, advancing one waypoint per interval while running.
// It starts at index 0 with running set; ticks begin once Open is called.
type Engine struct {
	mu      sync.Mutex
	path    Path
	config  Config
	index   int
	running bool
	open    bool
	closed  bool

	// at most one tick is ever pending; gen invalidates a timer that
	// fired but has not yet taken the lock
	timer *time.Timer
	gen   uint64

	changes notify.Queue[State]
}

// NewEngine creates an engine over path.
func NewEngine(path Path, config Config) (*Engine, error) {
	if path.Len() == 0 {
		return nil, ErrEmptyPath
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.SafeIndex >= path.Len() {
		return nil, ErrSafeIndexOutOfRange
	}
	return &Engine{
		path:    path,
		config:  config,
		running: true,
	}, nil
}

// OnChange registers a callback invoked with every state change, in order.
func (e *Engine) OnChange(fn func(State)) {
	e.changes.Subscribe(fn)
}

// Open starts the tick timer. Opening twice is a no-op.
func (e *Engine) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.open = true
	e.armLocked()
	return nil
}

// Close cancels the pending tick. No callback runs after Close returns,
// except one already being delivered. It is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.disarmLocked()
	e.mu.Unlock()
	e.changes.Reset()
	return nil
}

// Tick advances to the next waypoint, wrapping silently to 0.
func (e *Engine) Tick() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.advanceLocked()
	e.mu.Unlock()
	e.changes.Drain()
}

// Pause stops ticking. The index is kept.
func (e *Engine) Pause() {
	e.setRunning(false)
}

// Resume restarts ticking; the next tick comes one full interval later.
func (e *Engine) Resume() {
	e.setRunning(true)
}

// Toggle flips between running and paused.
func (e *Engine) Toggle() {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	e.setRunning(!running)
}

// Reset returns to the first waypoint without touching running.
func (e *Engine) Reset() {
	e.jump(0)
}

// JumpToSafe moves to the configured safe waypoint.
func (e *Engine) JumpToSafe() {
	e.jump(e.config.SafeIndex)
}

// CurrentWaypoint returns the waypoint at the current index.
func (e *Engine) CurrentWaypoint() Waypoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path.At(e.index)
}

// State returns a snapshot.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Path returns the replayed path.
func (e *Engine) Path() Path {
	return e.path
}

func (e *Engine) jump(index int) {
	e.mu.Lock()
	if e.closed || e.index == index {
		e.mu.Unlock()
		return
	}
	e.index = index
	e.changes.Enqueue(e.stateLocked())
	e.mu.Unlock()
	e.changes.Drain()
}

func (e *Engine) setRunning(running bool) {
	e.mu.Lock()
	if e.closed || e.running == running {
		e.mu.Unlock()
		return
	}
	e.running = running
	if running {
		e.armLocked()
	} else {
		e.disarmLocked()
	}
	e.changes.Enqueue(e.stateLocked())
	e.mu.Unlock()
	e.changes.Drain()
}

// advanceLocked moves one step. Caller holds e.mu.
func (e *Engine) advanceLocked() {
	e.index = (e.index + 1) % e.path.Len()
	e.changes.Enqueue(e.stateLocked())
}

func (e *Engine) stateLocked() State {
	return State{
		CurrentIndex: e.index,
		Running:      e.running,
		Total:        e.path.Len(),
		Waypoint:     e.path.At(e.index),
	}
}

// armLocked schedules the next tick unless one is pending. Caller holds e.mu.
func (e *Engine) armLocked() {
	if !e.open || e.closed || !e.running || e.timer != nil {
		return
	}
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(e.config.Interval, func() { e.fire(gen) })
}

// disarmLocked cancels the pending tick. Caller holds e.mu.
func (e *Engine) disarmLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}

func (e *Engine) fire(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.closed || !e.running {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	e.advanceLocked()
	e.armLocked()
	e.mu.Unlock()
	e.changes.Drain()
}
