package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// NMEASensor is a Sensor fed by NMEA 0183 sentences from a GPS receiver.
// It reads GGA and RMC sentences; everything else is skipped.
type NMEASensor struct {
	hub       *fixHub
	src       io.ReadCloser
	logger    *log.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewNMEASensor starts reading sentences from src. The sensor owns src and
// closes it on Close.
func NewNMEASensor(src io.ReadCloser, logger *log.Logger) *NMEASensor {
	if logger == nil {
		logger = log.Default()
	}
	s := &NMEASensor{
		hub:    newFixHub(time.Now),
		src:    src,
		logger: logger,
		done:   make(chan struct{}),
	}
	go s.read()
	return s
}

// OpenSerialSensor opens a GPS receiver on a serial port (8N1).
func OpenSerialSensor(device string, baudRate int, logger *log.Logger) (*NMEASensor, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PermissionDenied {
			return nil, fmt.Errorf("%w: open %s: %v", ErrPermissionDenied, device, err)
		}
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}
	return NewNMEASensor(port, logger), nil
}

func (s *NMEASensor) read() {
	defer close(s.done)
	scanner := bufio.NewScanner(s.src)
	for scanner.Scan() {
		fix, err := ParseNMEA(scanner.Text(), time.Now())
		switch {
		case errors.Is(err, ErrUnhandledSentence):
			continue
		case err != nil:
			s.logger.Printf("nmea: skipping sentence: %v", err)
			continue
		case !fix.Valid:
			s.hub.reportNoFix()
		default:
			s.hub.publish(fix.Position)
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.hub.fail(err)
}

// CurrentFix waits for the next valid sentence.
func (s *NMEASensor) CurrentFix(ctx context.Context, opts Options) (GeoPosition, error) {
	return s.hub.currentFix(ctx, opts)
}

// WatchFix delivers every valid sentence to handler.
func (s *NMEASensor) WatchFix(opts Options, handler WatchHandler) (WatchID, error) {
	return s.hub.watch(opts, handler)
}

// ClearWatch stops a watch.
func (s *NMEASensor) ClearWatch(id WatchID) {
	s.hub.clearWatch(id)
}

// Close stops all watches and closes the underlying source.
func (s *NMEASensor) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.hub.close()
		err = s.src.Close()
		<-s.done
	})
	return err
}
