package playback

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/paulmach/orb"
)

// GPX represents the root GPX document structure
type GPX struct {
	XMLName xml.Name `xml:"gpx"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	Tracks  []Track  `xml:"trk"`
	Routes  []Route  `xml:"rte"`
}

// Track represents a GPX track
type Track struct {
	Name     string         `xml:"name"`
	Segments []TrackSegment `xml:"trkseg"`
}

// TrackSegment represents a segment of a GPX track
type TrackSegment struct {
	TrackPoints []TrackPoint `xml:"trkpt"`
}

// Route represents a GPX route
type Route struct {
	Name        string       `xml:"name"`
	RoutePoints []TrackPoint `xml:"rtept"`
}

// TrackPoint represents a point in a GPS track or route
type TrackPoint struct {
	Lat       float64   `xml:"lat,attr"`
	Lon       float64   `xml:"lon,attr"`
	Elevation float64   `xml:"ele"`
	Time      time.Time `xml:"time"`
}

// ReadGPX parses a GPX document. Track points are preferred; the first
// route is used when the document has no tracks.
func ReadGPX(r io.Reader) ([]TrackPoint, error) {
	var gpx GPX
	if err := xml.NewDecoder(r).Decode(&gpx); err != nil {
		return nil, fmt.Errorf("failed to parse GPX: %w", err)
	}

	var points []TrackPoint
	for _, trk := range gpx.Tracks {
		for _, seg := range trk.Segments {
			points = append(points, seg.TrackPoints...)
		}
	}
	if len(points) == 0 && len(gpx.Routes) > 0 {
		points = append(points, gpx.Routes[0].RoutePoints...)
	}
	if len(points) == 0 {
		return nil, ErrNoTrackPoints
	}
	return points, nil
}

// LoadGPX reads a GPX file and normalises it into a Path.
func LoadGPX(filename string, margin float64) (Path, error) {
	file, err := os.Open(filename)
	if err != nil {
		return Path{}, fmt.Errorf("failed to open GPX file %s: %w", filename, err)
	}
	defer file.Close()

	points, err := ReadGPX(file)
	if err != nil {
		return Path{}, fmt.Errorf("%s: %w", filename, err)
	}
	return Normalize(points, margin)
}

// Normalize maps geographic points into display percentages. The bounding
// box of the points fills the container minus margin percent on each side,
// with north at the top. A degenerate axis is centred.
func Normalize(points []TrackPoint, margin float64) (Path, error) {
	if len(points) == 0 {
		return Path{}, ErrEmptyPath
	}
	if margin < 0 || margin >= 50 {
		return Path{}, ErrInvalidMargin
	}

	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.Lon, p.Lat}
	}
	bound := mp.Bound()
	span := 100 - 2*margin

	scale := func(v, min, max float64) float64 {
		if max == min {
			return 50
		}
		return margin + (v-min)/(max-min)*span
	}

	waypoints := make([]Waypoint, len(points))
	for i, p := range points {
		w := Waypoint{
			X: scale(p.Lon, bound.Min.Lon(), bound.Max.Lon()),
			Y: 100 - scale(p.Lat, bound.Min.Lat(), bound.Max.Lat()),
		}
		if !p.Time.IsZero() {
			w.Timestamp = p.Time.UTC().Format(TimestampLayout)
		}
		waypoints[i] = w
	}
	return NewPath(waypoints)
}
