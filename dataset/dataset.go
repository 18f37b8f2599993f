// Package dataset provides the static demonstration data shown by the
// dashboard: the rover path, the sensor reading history, crops, alerts and
// KPI figures. The figures are illustrative constants.
package dataset

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/agrosmart/fieldtrack/playback"
)

//go:embed data.yml
var embedded []byte

// ErrUnknownCrop is returned by Crop for an id not in the dataset
var ErrUnknownCrop = errors.New("unknown crop")

// Reading is one sample of the field sensors.
type Reading struct {
	Time         string  `yaml:"ts" json:"ts" validate:"required"`
	SoilMoisture float64 `yaml:"soil_moisture" json:"soil_moisture" validate:"gte=0,lte=100"` // %
	SoilTemp     float64 `yaml:"soil_temp" json:"soil_temp"`                                  // °C
	AirTemp      float64 `yaml:"air_temp" json:"air_temp"`                                    // °C
	AirHumidity  float64 `yaml:"air_humidity" json:"air_humidity" validate:"gte=0,lte=100"`   // %
	Salinity     float64 `yaml:"salinity" json:"salinity" validate:"gte=0"`                   // dS/m
	WaterLevel   float64 `yaml:"water_level" json:"water_level" validate:"gte=0,lte=100"`     // % of tank
	Pressure     float64 `yaml:"pressure" json:"pressure" validate:"gte=0"`                   // bar
	WaterQuality float64 `yaml:"water_quality" json:"water_quality" validate:"gte=0,lte=14"`  // pH
}

// IrrigationSample is one row of the demo irrigation model: soil moisture,
// soil temperature, air humidity and salinity mapped to liters needed.
type IrrigationSample struct {
	Features []float64 `yaml:"x" json:"x" validate:"len=4"`
	Liters   float64   `yaml:"y" json:"y" validate:"gte=0"`
}

// Crop describes a crop and its preferred soil moisture band.
type Crop struct {
	ID              string    `yaml:"id" json:"id" validate:"required"`
	Name            string    `yaml:"name" json:"name" validate:"required"`
	OptimalMoisture []float64 `yaml:"optimal_moisture" json:"optimal_moisture" validate:"len=2,dive,gte=0,lte=100"`
}

// InRange reports whether moisture lies inside the crop's optimal band.
func (c Crop) InRange(moisture float64) bool {
	return moisture >= c.OptimalMoisture[0] && moisture <= c.OptimalMoisture[1]
}

// Alert is a dashboard notification.
type Alert struct {
	Time  string `yaml:"ts" json:"ts"`
	Text  string `yaml:"text" json:"text" validate:"required"`
	Level string `yaml:"level" json:"level" validate:"oneof=critical warning info"`
}

// KPI is a headline figure.
type KPI struct {
	Title    string `yaml:"title" json:"title" validate:"required"`
	Value    string `yaml:"value" json:"value" validate:"required"`
	Subtitle string `yaml:"subtitle" json:"subtitle"`
}

// Dataset is the full static dataset. Treat it as read only.
type Dataset struct {
	RoverPath  []playback.Waypoint `yaml:"rover_path" json:"rover_path" validate:"required,min=1,dive"`
	SafeIndex  int                 `yaml:"safe_index" json:"safe_index" validate:"gte=0"`
	Readings   []Reading           `yaml:"readings" json:"readings" validate:"dive"`
	Irrigation []IrrigationSample  `yaml:"irrigation" json:"irrigation" validate:"dive"`
	Crops      []Crop              `yaml:"crops" json:"crops" validate:"dive"`
	Alerts     []Alert             `yaml:"alerts" json:"alerts" validate:"dive"`
	KPIs       []KPI               `yaml:"kpis" json:"kpis" validate:"dive"`
}

var (
	loadOnce sync.Once
	loaded   *Dataset
	loadErr  error
)

// Load returns the embedded dataset, parsed once.
func Load() (*Dataset, error) {
	loadOnce.Do(func() {
		loaded, loadErr = Parse(embedded)
	})
	return loaded, loadErr
}

// Parse decodes and validates a dataset document.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if err := validator.New().Struct(ds); err != nil {
		return nil, fmt.Errorf("invalid dataset: %w", err)
	}
	if ds.SafeIndex >= len(ds.RoverPath) {
		return nil, fmt.Errorf("invalid dataset: %w", playback.ErrSafeIndexOutOfRange)
	}
	return &ds, nil
}

// Path returns the rover path ready for playback.
func (d *Dataset) Path() (playback.Path, error) {
	return playback.NewPath(d.RoverPath)
}

// LatestReading returns the most recent sensor sample.
func (d *Dataset) LatestReading() (Reading, bool) {
	if len(d.Readings) == 0 {
		return Reading{}, false
	}
	return d.Readings[len(d.Readings)-1], true
}

// Crop looks up a crop by id.
func (d *Dataset) Crop(id string) (Crop, error) {
	for _, c := range d.Crops {
		if c.ID == id {
			return c, nil
		}
	}
	return Crop{}, fmt.Errorf("%w: %s", ErrUnknownCrop, id)
}

// AlertsAtLeast returns the alerts at or above level, most recent first as
// stored. Levels rank info < warning < critical.
func (d *Dataset) AlertsAtLeast(level string) []Alert {
	rank := map[string]int{"info": 0, "warning": 1, "critical": 2}
	min := rank[level]
	var out []Alert
	for _, a := range d.Alerts {
		if rank[a.Level] >= min {
			out = append(out, a)
		}
	}
	return out
}
