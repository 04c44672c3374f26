package calc

import (
	"fmt"
	"math"
	"time"

	goprayer "github.com/hablullah/go-prayer"

	"github.com/smukkama/prayer-times/internal/prayer"
)

// Calculator computes prayer times for a day at a position. The date carries
// the location the times are expressed in.
type Calculator interface {
	Method() Method
	Compute(coords prayer.Coordinates, date time.Time) (prayer.PrayerTimeSet, error)
}

// noHighLatitudeAdjustment is outside go-prayer's rule set, which leaves
// undefined twilight times unadjusted
const noHighLatitudeAdjustment goprayer.HighLatitudeMethod = -1

// PrayerCalculator computes prayer times with github.com/hablullah/go-prayer
type PrayerCalculator struct {
	method Method
	config goprayer.Config
}

var _ Calculator = (*PrayerCalculator)(nil)

// NewPrayerCalculator creates a go-prayer backed calculator for a method
func NewPrayerCalculator(method Method) (*PrayerCalculator, error) {
	if err := method.Validate(); err != nil {
		return nil, err
	}

	cfg := goprayer.Config{
		FajrAngle:          method.FajrAngle,
		AsrConvention:      goprayer.Shafii,
		PreciseToSeconds:   true,
		HighLatitudeMethod: highLatitudeMethod(method.HighLatitude),
		TimeCorrections: goprayer.TimeCorrections{
			Zuhr: method.DhuhrOffset,
		},
	}
	if method.AsrFactor >= 2 {
		cfg.AsrConvention = goprayer.Hanafi
	}
	if method.IshaInterval > 0 {
		cfg.MaghribDuration = method.IshaInterval
	} else {
		cfg.IshaAngle = method.IshaAngle
	}

	return &PrayerCalculator{method: method, config: cfg}, nil
}

func highLatitudeMethod(rule HighLatitudeRule) goprayer.HighLatitudeMethod {
	switch rule {
	case HighLatitudeAngleBased:
		return goprayer.AngleBased
	case HighLatitudeOneSeventh:
		return goprayer.OneSeventhNight
	case HighLatitudeNone:
		return noHighLatitudeAdjustment
	default:
		return goprayer.MiddleNight
	}
}

// Method returns the calculation convention
func (p *PrayerCalculator) Method() Method {
	return p.method
}

// Compute returns the five prayer times of date at coords
func (p *PrayerCalculator) Compute(coords prayer.Coordinates, date time.Time) (prayer.PrayerTimeSet, error) {
	cfg := p.config
	cfg.Latitude = coords.Latitude
	cfg.Longitude = coords.Longitude

	year, month, day := date.Date()
	loc := date.Location()
	times, err := goprayer.Calculate(cfg, time.Date(year, month, day, 0, 0, 0, 0, loc))
	if err != nil {
		return prayer.PrayerTimeSet{}, fmt.Errorf("failed to calculate prayer times: %w", err)
	}

	if times.Sunrise.IsZero() || times.Maghrib.IsZero() {
		return prayer.PrayerTimeSet{}, fmt.Errorf("sun does not rise or set at latitude %.4f on %s",
			coords.Latitude, date.Format("2006-01-02"))
	}
	checks := []struct {
		name  prayer.Prayer
		value time.Time
	}{{prayer.Fajr, times.Fajr}, {prayer.Asr, times.Asr}, {prayer.Isha, times.Isha}}
	for _, c := range checks {
		if c.value.IsZero() {
			return prayer.PrayerTimeSet{}, fmt.Errorf("%s is undefined at latitude %.4f on %s",
				c.name, coords.Latitude, date.Format("2006-01-02"))
		}
	}

	return prayer.PrayerTimeSet{
		Fajr:    p.method.Clock(times.Fajr, loc),
		Dhuhr:   p.method.Clock(times.Zuhr, loc),
		Asr:     p.method.Clock(times.Asr, loc),
		Maghrib: p.method.Clock(times.Maghrib, loc),
		Isha:    p.method.Clock(times.Isha, loc),
	}, nil
}

// asrElevation returns the sun elevation, in degrees, at which an object's
// shadow equals factor times its height plus its noon shadow
func asrElevation(factor, latitude, declination float64) float64 {
	zenith := math.Abs(latitude-declination) * math.Pi / 180
	return math.Atan(1/(factor+math.Tan(zenith))) * 180 / math.Pi
}
