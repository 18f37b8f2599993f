package location

import "time"

// Options are the request parameters passed to a Sensor.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration // budget for producing a fix
	MaximumAge   time.Duration // oldest cached fix acceptable when no fresh one arrives in time
}

// OneShotOptions returns the parameters for a single precise request.
func OneShotOptions() Options {
	return Options{
		HighAccuracy: true,
		Timeout:      15 * time.Second,
		MaximumAge:   5 * time.Minute,
	}
}

// WatchOptions returns the relaxed parameters used by continuous tracking.
func WatchOptions() Options {
	return Options{
		HighAccuracy: true,
		Timeout:      5 * time.Second,
		MaximumAge:   30 * time.Second,
	}
}

// Validate checks the options and returns an error if they are unusable
func (o Options) Validate() error {
	if o.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if o.MaximumAge < 0 {
		return ErrInvalidMaximumAge
	}
	return nil
}
