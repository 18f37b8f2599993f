package location

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// user equivalent range error used to turn HDOP into meters
const uereMeters = 5.0

// NMEAFix is the position content of one GGA or RMC sentence.
type NMEAFix struct {
	Sentence string // GGA or RMC
	Valid    bool   // false for "no fix" sentences
	Position GeoPosition
}

// calculateChecksum calculates the NMEA checksum for a sentence
func calculateChecksum(sentence string) string {
	var checksum byte
	for i := 1; i < len(sentence); i++ { // Skip the '$' character
		checksum ^= sentence[i]
	}
	return fmt.Sprintf("%02X", checksum)
}

// formatNMEA formats a complete NMEA sentence with checksum
func formatNMEA(sentence string) string {
	checksum := calculateChecksum(sentence)
	return fmt.Sprintf("%s*%s\r\n", sentence, checksum)
}

// formatCoord converts decimal degrees to NMEA (D)DDMM.MMMM plus hemisphere
func formatCoord(value float64, isLat bool) string {
	deg := int(math.Abs(value))
	min := (math.Abs(value) - float64(deg)) * 60
	if isLat {
		hem := "N"
		if value < 0 {
			hem = "S"
		}
		return fmt.Sprintf("%02d%07.4f,%s", deg, min, hem)
	}
	hem := "E"
	if value < 0 {
		hem = "W"
	}
	return fmt.Sprintf("%03d%07.4f,%s", deg, min, hem)
}

// EncodeGGA renders a fix as a GGA (Global Positioning System Fix Data) sentence
func EncodeGGA(pos GeoPosition, satellites int) string {
	hdop := 1.2
	if pos.Accuracy > 0 {
		hdop = pos.Accuracy / uereMeters
	}
	sentence := fmt.Sprintf("$GPGGA,%s,%s,%s,1,%02d,%.1f,%.1f,M,0.0,M,,",
		pos.CapturedAt.UTC().Format("150405"),
		formatCoord(pos.Latitude, true),
		formatCoord(pos.Longitude, false),
		satellites, hdop, pos.Altitude)
	return formatNMEA(sentence)
}

// EncodeRMC renders a fix as an RMC (Recommended Minimum) sentence
func EncodeRMC(pos GeoPosition, speedKnots, course float64) string {
	ts := pos.CapturedAt.UTC()
	sentence := fmt.Sprintf("$GPRMC,%s,A,%s,%s,%.1f,%.1f,%s,,,A",
		ts.Format("150405"),
		formatCoord(pos.Latitude, true),
		formatCoord(pos.Longitude, false),
		speedKnots, course,
		ts.Format("020106"))
	return formatNMEA(sentence)
}

// EncodeNoFixRMC renders a void RMC sentence, sent while the receiver has no fix
func EncodeNoFixRMC(ts time.Time) string {
	sentence := fmt.Sprintf("$GPRMC,%s,V,,,,,,,%s,,,N", ts.UTC().Format("150405"), ts.UTC().Format("020106"))
	return formatNMEA(sentence)
}

// ParseNMEA decodes a GGA or RMC sentence. GGA carries no date, so the
// fix is placed on the day that puts it within 12 hours of received.
// Other sentence types return ErrUnhandledSentence.
func ParseNMEA(line string, received time.Time) (NMEAFix, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") || len(line) < 7 {
		return NMEAFix{}, ErrInvalidNMEA
	}

	if star := strings.LastIndexByte(line, '*'); star >= 0 {
		if !strings.EqualFold(line[star+1:], calculateChecksum(line[:star])) {
			return NMEAFix{}, ErrNMEAChecksumMismatch
		}
		line = line[:star]
	}

	fields := strings.Split(line, ",")
	if len(fields[0]) != 6 {
		return NMEAFix{}, ErrInvalidNMEA
	}

	switch fields[0][3:] {
	case "GGA":
		return parseGGA(fields, received)
	case "RMC":
		return parseRMC(fields)
	default:
		return NMEAFix{}, ErrUnhandledSentence
	}
}

func parseGGA(fields []string, received time.Time) (NMEAFix, error) {
	if len(fields) < 10 {
		return NMEAFix{}, fmt.Errorf("%w: short GGA", ErrInvalidNMEA)
	}
	fix := NMEAFix{Sentence: "GGA"}
	if fields[6] == "" || fields[6] == "0" {
		return fix, nil
	}

	ts, err := parseClock(fields[1], received.UTC())
	if err != nil {
		return NMEAFix{}, err
	}
	ts = nearestDay(ts, received)
	lat, err := parseCoord(fields[2], fields[3])
	if err != nil {
		return NMEAFix{}, err
	}
	lon, err := parseCoord(fields[4], fields[5])
	if err != nil {
		return NMEAFix{}, err
	}

	pos := GeoPosition{Latitude: lat, Longitude: lon, CapturedAt: ts}
	if hdop, err := strconv.ParseFloat(fields[8], 64); err == nil {
		pos.Accuracy = hdop * uereMeters
	}
	if alt, err := strconv.ParseFloat(fields[9], 64); err == nil {
		pos.Altitude = alt
	}
	fix.Valid = true
	fix.Position = pos
	return fix, nil
}

func parseRMC(fields []string) (NMEAFix, error) {
	if len(fields) < 10 {
		return NMEAFix{}, fmt.Errorf("%w: short RMC", ErrInvalidNMEA)
	}
	fix := NMEAFix{Sentence: "RMC"}
	if fields[2] != "A" {
		return fix, nil
	}

	day, err := time.Parse("020106", fields[9])
	if err != nil {
		return NMEAFix{}, fmt.Errorf("%w: bad date %q", ErrInvalidNMEA, fields[9])
	}
	ts, err := parseClock(fields[1], day)
	if err != nil {
		return NMEAFix{}, err
	}
	lat, err := parseCoord(fields[3], fields[4])
	if err != nil {
		return NMEAFix{}, err
	}
	lon, err := parseCoord(fields[5], fields[6])
	if err != nil {
		return NMEAFix{}, err
	}

	fix.Valid = true
	fix.Position = GeoPosition{Latitude: lat, Longitude: lon, CapturedAt: ts}
	return fix, nil
}

// parseClock combines an hhmmss(.ss) field with the date of day (UTC)
func parseClock(value string, day time.Time) (time.Time, error) {
	if len(value) < 6 {
		return time.Time{}, fmt.Errorf("%w: bad time %q", ErrInvalidNMEA, value)
	}
	h, err1 := strconv.Atoi(value[0:2])
	m, err2 := strconv.Atoi(value[2:4])
	sec, err3 := strconv.ParseFloat(value[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("%w: bad time %q", ErrInvalidNMEA, value)
	}
	whole := int(sec)
	nanos := int(math.Round((sec - float64(whole)) * 1e9))
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, whole, nanos, time.UTC), nil
}

// nearestDay shifts ts by a day when it straddles UTC midnight relative
// to received.
func nearestDay(ts, received time.Time) time.Time {
	switch d := ts.Sub(received); {
	case d > 12*time.Hour:
		return ts.AddDate(0, 0, -1)
	case d < -12*time.Hour:
		return ts.AddDate(0, 0, 1)
	}
	return ts
}

// parseCoord converts (D)DDMM.MMMM plus hemisphere into decimal degrees
func parseCoord(value, hemisphere string) (float64, error) {
	dot := strings.IndexByte(value, '.')
	if dot < 0 {
		dot = len(value)
	}
	if dot < 3 {
		return 0, fmt.Errorf("%w: bad coordinate %q", ErrInvalidNMEA, value)
	}
	deg, err := strconv.ParseFloat(value[:dot-2], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad coordinate %q", ErrInvalidNMEA, value)
	}
	min, err := strconv.ParseFloat(value[dot-2:], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad coordinate %q", ErrInvalidNMEA, value)
	}

	dec := deg + min/60.0
	switch hemisphere {
	case "N", "E":
	case "S", "W":
		dec = -dec
	default:
		return 0, fmt.Errorf("%w: bad hemisphere %q", ErrInvalidNMEA, hemisphere)
	}
	return dec, nil
}
