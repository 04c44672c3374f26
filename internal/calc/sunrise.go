package calc

import (
	"fmt"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/smukkama/prayer-times/internal/prayer"
)

// SunriseCalculator derives prayer times from the sun elevation events
// computed by go-sunrise
type SunriseCalculator struct {
	method Method
}

var _ Calculator = (*SunriseCalculator)(nil)

// NewSunriseCalculator creates an elevation-event calculator for a method
func NewSunriseCalculator(method Method) (*SunriseCalculator, error) {
	if err := method.Validate(); err != nil {
		return nil, err
	}
	return &SunriseCalculator{method: method}, nil
}

// Method returns the calculation convention
func (s *SunriseCalculator) Method() Method {
	return s.method
}

// Compute returns the five prayer times of date at coords
func (s *SunriseCalculator) Compute(coords prayer.Coordinates, date time.Time) (prayer.PrayerTimeSet, error) {
	year, month, day := date.Date()
	loc := date.Location()
	lat, lon := coords.Latitude, coords.Longitude

	rise, set := sunrise.SunriseSunset(lat, lon, year, month, day)
	if rise.IsZero() || set.IsZero() {
		return prayer.PrayerTimeSet{}, fmt.Errorf("sun does not rise or set at latitude %.4f on %s",
			lat, date.Format("2006-01-02"))
	}

	noon := rise.Add(set.Sub(rise) / 2)

	fajr, _ := sunrise.TimeOfElevation(lat, lon, -s.method.FajrAngle, year, month, day)
	if fajr.IsZero() {
		fajr = s.nightBound(rise, set, s.method.FajrAngle, true)
	}

	asrAngle := asrElevation(s.method.AsrFactor, lat, solarDeclination(lon, year, month, day))
	_, asr := sunrise.TimeOfElevation(lat, lon, asrAngle, year, month, day)
	if asr.IsZero() {
		return prayer.PrayerTimeSet{}, fmt.Errorf("asr is undefined at latitude %.4f on %s",
			lat, date.Format("2006-01-02"))
	}

	var isha time.Time
	if s.method.IshaInterval > 0 {
		isha = set.Add(s.method.IshaInterval)
	} else {
		_, isha = sunrise.TimeOfElevation(lat, lon, -s.method.IshaAngle, year, month, day)
		if isha.IsZero() {
			isha = s.nightBound(rise, set, s.method.IshaAngle, false)
		}
	}

	if fajr.IsZero() || isha.IsZero() {
		return prayer.PrayerTimeSet{}, fmt.Errorf("twilight does not end at latitude %.4f on %s",
			lat, date.Format("2006-01-02"))
	}

	return prayer.PrayerTimeSet{
		Fajr:    s.method.Clock(fajr, loc),
		Dhuhr:   s.method.Clock(noon.Add(s.method.DhuhrOffset), loc),
		Asr:     s.method.Clock(asr, loc),
		Maghrib: s.method.Clock(set, loc),
		Isha:    s.method.Clock(isha, loc),
	}, nil
}

// nightBound places fajr before sunrise (or isha after sunset) at a portion
// of the night when the sun never reaches the twilight angle
func (s *SunriseCalculator) nightBound(rise, set time.Time, angle float64, beforeSunrise bool) time.Time {
	var portion float64
	switch s.method.HighLatitude {
	case HighLatitudeNone, "":
		return time.Time{}
	case HighLatitudeAngleBased:
		portion = angle / 60
	case HighLatitudeOneSeventh:
		portion = 1.0 / 7
	default:
		portion = 0.5
	}

	night := 24*time.Hour - set.Sub(rise)
	offset := time.Duration(float64(night) * portion)
	if beforeSunrise {
		return rise.Add(-offset)
	}
	return set.Add(offset)
}

// solarDeclination returns the declination of the sun, in degrees, at the
// solar noon of a day
func solarDeclination(longitude float64, year int, month time.Month, day int) float64 {
	d := sunrise.MeanSolarNoon(longitude, year, month, day)
	anomaly := sunrise.SolarMeanAnomaly(d)
	center := sunrise.EquationOfCenter(anomaly)
	return sunrise.Declination(sunrise.EclipticLongitude(anomaly, center, d))
}
