package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agrosmart/fieldtrack/config"
	"github.com/agrosmart/fieldtrack/dataset"
	"github.com/agrosmart/fieldtrack/location"
	"github.com/agrosmart/fieldtrack/playback"
	"github.com/agrosmart/fieldtrack/web"
)

// Version information - populated at build time via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// options holds the command line flags. Flags that were set override the
// config file and the environment.
type options struct {
	showVersion bool
	configFile  string
	envFile     string

	addr     string
	sensor   string
	serial   string
	baud     int
	gpxFile  string
	interval time.Duration
	nmeaEcho bool
	quiet    bool

	set map[string]bool
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options
	flags := flag.NewFlagSet("fieldtrack", flag.ContinueOnError)
	flags.SetOutput(output)

	flags.BoolVar(&opts.showVersion, "version", false, "Show version information and exit")
	flags.StringVar(&opts.configFile, "config", "", "YAML configuration file")
	flags.StringVar(&opts.envFile, "env", ".env", "Environment file loaded before reading FIELDTRACK_* variables")
	flags.StringVar(&opts.addr, "addr", ":8080", "Dashboard API listen address")
	flags.StringVar(&opts.sensor, "sensor", config.SensorSimulated, "Location sensor: simulated, serial or none")
	flags.StringVar(&opts.serial, "serial", "", "Serial port of an NMEA receiver (e.g., /dev/ttyUSB0, COM1)")
	flags.IntVar(&opts.baud, "baud", 9600, "Serial port baud rate")
	flags.StringVar(&opts.gpxFile, "gpx", "", "GPX track to replay instead of the built-in rover path")
	flags.DurationVar(&opts.interval, "interval", 2500*time.Millisecond, "Playback tick interval")
	flags.BoolVar(&opts.nmeaEcho, "nmea", false, "Print simulated NMEA sentences to stdout")
	flags.BoolVar(&opts.quiet, "quiet", false, "Suppress info messages")

	flags.Usage = func() {
		fmt.Fprintf(output, "Usage: fieldtrack [options]\n")
		fmt.Fprintf(output, "\nFarm robot location tracker and path playback service.\n\n")
		fmt.Fprintf(output, "Options:\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return opts, err
	}

	opts.set = make(map[string]bool)
	flags.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts, nil
}

// loadConfig layers defaults, the config file, the environment and flags.
func loadConfig(opts options, lookup func(string) (string, bool)) (config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, err
	}

	if opts.set["addr"] {
		cfg.Server.Addr = opts.addr
	}
	if opts.set["sensor"] {
		cfg.Sensor.Kind = opts.sensor
	}
	if opts.set["serial"] {
		cfg.Sensor.Device = opts.serial
		if !opts.set["sensor"] {
			cfg.Sensor.Kind = config.SensorSerial
		}
	}
	if opts.set["baud"] {
		cfg.Sensor.BaudRate = opts.baud
	}
	if opts.set["gpx"] {
		cfg.Playback.GPXFile = opts.gpxFile
	}
	if opts.set["interval"] {
		cfg.Playback.Interval = opts.interval
	}
	if opts.set["nmea"] {
		cfg.Sensor.NMEAEcho = opts.nmeaEcho
	}
	if opts.set["quiet"] {
		cfg.Quiet = opts.quiet
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newSensor opens the configured sensor. The returned func releases it.
func newSensor(cfg config.Config, logger *log.Logger, nmeaOut io.Writer) (location.Sensor, func(), error) {
	switch cfg.Sensor.Kind {
	case config.SensorSimulated:
		sim, err := location.NewSimulatedSensor(cfg.Simulation())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create simulated sensor: %w", err)
		}
		if cfg.Sensor.NMEAEcho {
			sim.SetNMEAWriter(nmeaOut)
		}
		if err := sim.Start(); err != nil {
			return nil, nil, err
		}
		logger.Printf("Simulated sensor around %.6f, %.6f (radius %.1fm, lock in %v)",
			cfg.Sensor.Latitude, cfg.Sensor.Longitude, cfg.Sensor.Radius, cfg.Sensor.TimeToLock)
		return sim, func() { sim.Close() }, nil
	case config.SensorSerial:
		s, err := location.OpenSerialSensor(cfg.Sensor.Device, cfg.Sensor.BaudRate, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Printf("Opened serial port: %s at %d baud", cfg.Sensor.Device, cfg.Sensor.BaudRate)
		return s, func() { s.Close() }, nil
	default:
		logger.Printf("No location sensor configured")
		return nil, func() {}, nil
	}
}

// loadPath returns the replayed path and its safe index.
func loadPath(cfg config.Config, data *dataset.Dataset) (playback.Path, int, error) {
	if cfg.Playback.GPXFile != "" {
		path, err := playback.LoadGPX(cfg.Playback.GPXFile, cfg.Playback.GPXMargin)
		return path, 0, err
	}
	path, err := data.Path()
	return path, data.SafeIndex, err
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger, nmeaOut io.Writer) error {
	data, err := dataset.Load()
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	sensor, closeSensor, err := newSensor(cfg, logger, nmeaOut)
	if err != nil {
		return err
	}
	defer closeSensor()

	tracker, err := location.NewTracker(sensor, cfg.LocationTracker(), logger)
	if err != nil {
		return fmt.Errorf("failed to create tracker: %w", err)
	}
	defer tracker.Close()

	path, pathSafeIndex, err := loadPath(cfg, data)
	if err != nil {
		return fmt.Errorf("failed to load path: %w", err)
	}
	engineConfig := cfg.PlaybackEngine(pathSafeIndex)
	engine, err := playback.NewEngine(path, engineConfig)
	if err != nil {
		return fmt.Errorf("failed to create playback engine: %w", err)
	}
	defer engine.Close()

	srv := web.NewServer(tracker, engine, data, engineConfig.SafeIndex, logger)
	defer srv.Close()

	marker := location.NewMarker(cfg.Tracker.MarkerLabel, srv.MarkerFrame)
	defer marker.Close()
	tracker.AttachMarker(marker)
	srv.AttachMarker(marker)

	tracker.OnStatus(func(s location.Status) {
		v := location.View(s)
		switch {
		case v.Position != nil:
			logger.Printf("location: %s %s", v.State, v.Position)
		case v.Message != "":
			logger.Printf("location: %s (%s)", v.State, v.Message)
		default:
			logger.Printf("location: %s", v.State)
		}
	})
	engine.OnChange(func(st playback.State) {
		logger.Printf("playback: %d/%d running=%t %s", st.CurrentIndex+1, st.Total, st.Running, st.Waypoint)
	})

	if cfg.Redis.Addr != "" {
		pub, err := web.NewRedisPublisher(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			return err
		}
		defer pub.Close()
		srv.SetPublisher(pub)
		logger.Printf("Publishing events to redis %s under %q", cfg.Redis.Addr, cfg.Redis.Prefix)
	}

	go srv.Run(ctx)

	if err := engine.Open(); err != nil {
		return err
	}

	go tracker.RequestOnce(ctx)
	if cfg.Tracker.Continuous && sensor != nil {
		handle, err := tracker.StartContinuousTracking()
		if err != nil {
			logger.Printf("Continuous tracking unavailable: %v", err)
		} else {
			defer handle.Stop()
		}
	}

	if !cfg.Server.Enabled {
		<-ctx.Done()
		return nil
	}
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}

	if opts.showVersion {
		if Version != "dev" {
			fmt.Printf("v%s\n", Version)
		} else {
			fmt.Printf("%s\n", Commit)
		}
		os.Exit(0)
	}

	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to load %s: %v", opts.envFile, err)
	}

	cfg, err := loadConfig(opts, os.LookupEnv)
	if err != nil {
		log.Fatal(err)
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if cfg.Quiet {
		log.SetOutput(io.Discard)
	}
	logger := log.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdout); err != nil {
		log.Fatalf("fieldtrack: %v", err)
	}
}
