package menu

import (
	"fmt"
	"slices"
	"time"

	"github.com/devskill-org/menu-co2e/utils"
	"github.com/sixdouglas/suncalc"
)

// Survey holds the per-day survey quantities. The remote API does not carry
// them, so days fetched from it use the zero Survey.
type Survey struct {
	Cornflakes float64
	Lingon     float64
}

// Day is one served day: the dishes offered and the survey results.
type Day struct {
	Dishes     []string  // dish ids, resolved through the owning Dataset
	Date       time.Time // midnight of the calendar date
	Cornflakes float64
	Lingon     float64
}

// DayRecord is the cached form of a Day.
type DayRecord struct {
	Dishes     []string `json:"dishes"`
	Date       string   `json:"date"`
	Cornflakes float64  `json:"cornflakes"`
	Lingon     float64  `json:"lingon"`
}

// NewDay creates a Day. The dish id slice is copied.
func NewDay(dishIDs []string, date time.Time, survey Survey) Day {
	return Day{
		Dishes:     slices.Clone(dishIDs),
		Date:       date,
		Cornflakes: survey.Cornflakes,
		Lingon:     survey.Lingon,
	}
}

// ParseDay rebuilds a Day from its cached record. The date is read as a
// calendar date in loc; the dish ids are taken as is.
func ParseDay(r DayRecord, loc *time.Location) (Day, error) {
	date, err := utils.ParseDate(r.Date, loc)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q: %w", r.Date, err)
	}

	return NewDay(r.Dishes, date, Survey{Cornflakes: r.Cornflakes, Lingon: r.Lingon}), nil
}

// Serialize returns the cached form of the day. Time of day and zone are
// dropped.
func (d Day) Serialize() DayRecord {
	dishes := d.Dishes
	if dishes == nil {
		dishes = []string{}
	}

	return DayRecord{
		Dishes:     slices.Clone(dishes),
		Date:       utils.FormatDate(d.Date),
		Cornflakes: d.Cornflakes,
		Lingon:     d.Lingon,
	}
}

// Weekday returns the day of the week of the date.
func (d Day) Weekday() time.Weekday {
	return d.Date.Weekday()
}

// Daylight returns the time between sunrise and sunset on the date at the
// given coordinates. It returns 0 when the sun does not rise or set that day.
func (d Day) Daylight(lat, lon float64) time.Duration {
	// noon keeps suncalc on the intended date
	noon := d.Date.Add(12 * time.Hour)
	times := suncalc.GetTimes(noon, lat, lon)

	sunrise := times["sunrise"].Value
	sunset := times["sunset"].Value
	if sunrise.IsZero() || sunset.IsZero() || !sunset.After(sunrise) {
		return 0
	}

	return sunset.Sub(sunrise)
}
