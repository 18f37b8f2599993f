package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fixHub fans fixes out to one-shot requests and watches. Sensors feed it
// with publish, noFix and fail.
type fixHub struct {
	mu      sync.Mutex
	now     func() time.Time
	seq     uint64
	last    GeoPosition
	lastAt  time.Time // host time the last fix arrived
	noFix   bool      // receiver currently reports no fix
	failure error     // source is gone for good
	updated chan struct{}
	watches map[WatchID]chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

func newFixHub(now func() time.Time) *fixHub {
	if now == nil {
		now = time.Now
	}
	return &fixHub{
		now:     now,
		updated: make(chan struct{}),
		watches: make(map[WatchID]chan struct{}),
	}
}

// wakeLocked releases everyone waiting for a change. Caller holds h.mu.
func (h *fixHub) wakeLocked() {
	close(h.updated)
	h.updated = make(chan struct{})
}

func (h *fixHub) publish(pos GeoPosition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.seq++
	h.last = pos
	h.lastAt = h.now()
	h.noFix = false
	h.wakeLocked()
}

func (h *fixHub) reportNoFix() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.noFix = true
}

func (h *fixHub) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failure != nil || h.closed {
		return
	}
	h.failure = err
	h.wakeLocked()
}

// latest returns the last fix if one has ever been seen.
func (h *fixHub) latest() (GeoPosition, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.seq > 0
}

// currentFix waits for a fix newer than the call. When ctx's deadline
// passes first, a cached fix no older than opts.MaximumAge is returned
// instead. Cancellation never falls back to the cache.
func (h *fixHub) currentFix(ctx context.Context, opts Options) (GeoPosition, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return GeoPosition{}, ErrSensorClosed
	}
	start := h.seq
	h.mu.Unlock()

	for {
		h.mu.Lock()
		if h.seq > start {
			pos := h.last
			h.mu.Unlock()
			return pos, nil
		}
		if h.failure != nil {
			err := h.failure
			h.mu.Unlock()
			return GeoPosition{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
		}
		if h.closed {
			h.mu.Unlock()
			return GeoPosition{}, ErrSensorClosed
		}
		wait := h.updated
		h.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return h.fallback(ctx.Err(), opts)
		}
	}
}

func (h *fixHub) fallback(cause error, opts Options) (GeoPosition, error) {
	if !errors.Is(cause, context.DeadlineExceeded) {
		return GeoPosition{}, cause
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seq > 0 && h.now().Sub(h.lastAt) <= opts.MaximumAge {
		return h.last, nil
	}
	if h.noFix {
		return GeoPosition{}, fmt.Errorf("%w: receiver reports no fix", ErrPositionUnavailable)
	}
	return GeoPosition{}, fmt.Errorf("%w after %s", ErrTimeout, opts.Timeout)
}

// watch starts a goroutine delivering each new fix to handler. A gap longer
// than opts.Timeout is reported as ErrTimeout and the watch continues.
func (h *fixHub) watch(opts Options, handler WatchHandler) (WatchID, error) {
	if handler == nil {
		return "", errors.New("nil watch handler")
	}
	if err := opts.Validate(); err != nil {
		return "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", ErrSensorClosed
	}
	id := WatchID(uuid.NewString())
	stop := make(chan struct{})
	h.watches[id] = stop
	seen := h.seq

	h.wg.Add(1)
	go h.runWatch(stop, seen, opts, handler)
	return id, nil
}

func (h *fixHub) runWatch(stop <-chan struct{}, seen uint64, opts Options, handler WatchHandler) {
	defer h.wg.Done()
	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	for {
		h.mu.Lock()
		seq, pos, failure, wait := h.seq, h.last, h.failure, h.updated
		h.mu.Unlock()

		select {
		case <-stop:
			return
		default:
		}

		if seq > seen {
			seen = seq
			handler(pos, nil)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(opts.Timeout)
			continue
		}
		if failure != nil {
			handler(GeoPosition{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, failure))
			<-stop
			return
		}

		select {
		case <-stop:
			return
		case <-wait:
		case <-timer.C:
			handler(GeoPosition{}, fmt.Errorf("%w: no fix within %s", ErrTimeout, opts.Timeout))
			timer.Reset(opts.Timeout)
		}
	}
}

func (h *fixHub) clearWatch(id WatchID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if stop, ok := h.watches[id]; ok {
		close(stop)
		delete(h.watches, id)
	}
}

// activeWatches reports how many watches are registered.
func (h *fixHub) activeWatches() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watches)
}

// close stops every watch and wakes pending requests.
func (h *fixHub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for id, stop := range h.watches {
		close(stop)
		delete(h.watches, id)
	}
	h.wakeLocked()
	h.mu.Unlock()
	h.wg.Wait()
}
