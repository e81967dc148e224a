// Package geo computes sun event times for a fixed location.
package geo

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Sun events a schedule can be anchored to
const (
	Dawn    = "dawn" // civil dawn, sun 6 degrees below the horizon
	Sunrise = "sunrise"
	Noon    = "noon"
	Sunset  = "sunset"
	Dusk    = "dusk" // civil dusk
)

// IsEvent reports whether name is a known sun event.
func IsEvent(name string) bool {
	switch name {
	case Dawn, Sunrise, Noon, Sunset, Dusk:
		return true
	}
	return false
}

// SunTimes contains the sun events of one day
type SunTimes struct {
	Dawn    time.Time `json:"dawn"`
	Sunrise time.Time `json:"sunrise"`
	Noon    time.Time `json:"noon"`
	Sunset  time.Time `json:"sunset"`
	Dusk    time.Time `json:"dusk"`
}

// Event returns the time of the named event.
func (t *SunTimes) Event(name string) (time.Time, bool) {
	switch name {
	case Dawn:
		return t.Dawn, true
	case Sunrise:
		return t.Sunrise, true
	case Noon:
		return t.Noon, true
	case Sunset:
		return t.Sunset, true
	case Dusk:
		return t.Dusk, true
	}
	return time.Time{}, false
}

// Calculator computes sun times for one location and caches them per day.
// Near the poles, days without a sunrise report the solar noon instead.
type Calculator struct {
	lat, lon float64

	mu    sync.RWMutex
	cache map[string]*SunTimes // by "date tz"
}

// NewCalculator creates a calculator for the given coordinates in degrees.
func NewCalculator(lat, lon float64) (*Calculator, error) {
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	return &Calculator{lat: lat, lon: lon, cache: make(map[string]*SunTimes)}, nil
}

// Times returns the sun events on the calendar day of date in tz.
func (c *Calculator) Times(date time.Time, tz *time.Location) *SunTimes {
	if tz == nil {
		tz = time.UTC
	}
	local := date.In(tz)
	key := local.Format("2006-01-02") + " " + tz.String()

	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return cached
	}

	times := c.calculate(local, tz)

	c.mu.Lock()
	c.cache[key] = times
	c.mu.Unlock()
	return times
}

func (c *Calculator) calculate(date time.Time, tz *time.Location) *SunTimes {
	// the NOAA sunrise equation expects the Julian day at noon
	jd := toJulianDay(date) + 0.5
	s := solarPosition(jd, c.lon)

	return &SunTimes{
		Dawn:    s.event(c.lat, -6.0, true, tz, date),
		Sunrise: s.event(c.lat, -0.833, true, tz, date),
		Noon:    julianToTime(s.transit, tz, date),
		Sunset:  s.event(c.lat, -0.833, false, tz, date),
		Dusk:    s.event(c.lat, -6.0, false, tz, date),
	}
}

func toJulianDay(t time.Time) float64 {
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())

	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5
}

type solar struct {
	transit     float64 // Julian day of solar noon
	declination float64 // radians
}

func solarPosition(jd, lon float64) solar {
	n := jd - 2451545.0 + 0.0008
	jStar := n - lon/360.0

	// mean anomaly
	m := math.Mod(357.5291+0.98560028*jStar, 360.0)
	mRad := m * math.Pi / 180.0

	// equation of center
	c := 1.9148*math.Sin(mRad) + 0.02*math.Sin(2*mRad) + 0.0003*math.Sin(3*mRad)

	// ecliptic longitude
	lambda := math.Mod(m+c+180+102.9372, 360.0)
	lambdaRad := lambda * math.Pi / 180.0

	return solar{
		transit:     2451545.0 + jStar + 0.0053*math.Sin(mRad) - 0.0069*math.Sin(2*lambdaRad),
		declination: math.Asin(math.Sin(lambdaRad) * math.Sin(23.44*math.Pi/180.0)),
	}
}

// event returns the time the sun crosses angle degrees, rising or setting.
func (s solar) event(lat, angle float64, rising bool, tz *time.Location, date time.Time) time.Time {
	latRad := lat * math.Pi / 180.0
	angleRad := angle * math.Pi / 180.0

	cosOmega := (math.Sin(angleRad) - math.Sin(latRad)*math.Sin(s.declination)) / (math.Cos(latRad) * math.Cos(s.declination))
	cosOmega = math.Max(-1, math.Min(1, cosOmega))
	omega := math.Acos(cosOmega) * 180.0 / math.Pi

	if rising {
		return julianToTime(s.transit-omega/360.0, tz, date)
	}
	return julianToTime(s.transit+omega/360.0, tz, date)
}

// julianToTime converts a Julian day to a wall-clock time on the calendar
// day of refDate, truncated to the second.
func julianToTime(jd float64, tz *time.Location, refDate time.Time) time.Time {
	unix := (jd - 2440587.5) * 86400.0
	t := time.Unix(int64(math.Round(unix)), 0).In(tz)

	return time.Date(
		refDate.Year(), refDate.Month(), refDate.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, tz,
	)
}
