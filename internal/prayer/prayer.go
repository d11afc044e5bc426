package prayer

import (
	"fmt"
	"strings"
	"time"

	"github.com/smokyabdulrahman/prayer-notifier/internal/api"
)

// Name identifies one of the daily prayer events. The zero value is None.
type Name int

const (
	None Name = iota
	Imsak
	Fajr
	Sunrise
	Dhuhr
	Asr
	Maghrib
	Isha
)

var nameStrings = [...]string{"", "Imsak", "Fajr", "Sunrise", "Dhuhr", "Asr", "Maghrib", "Isha"}

// Order lists every event in daily chronological order.
var Order = []Name{Imsak, Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

// DefaultNames are the events shown by default.
var DefaultNames = []Name{Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

// Eligible are the prayers that get an Adhan, an Iqama window and notifications.
var Eligible = []Name{Fajr, Dhuhr, Asr, Maghrib, Isha}

// ShortNames maps names to abbreviations for compact status bars.
var ShortNames = map[Name]string{
	Imsak:   "Im",
	Fajr:    "F",
	Sunrise: "S",
	Dhuhr:   "D",
	Asr:     "A",
	Maghrib: "M",
	Isha:    "I",
}

func (n Name) String() string {
	if n < None || int(n) >= len(nameStrings) {
		return fmt.Sprintf("Name(%d)", int(n))
	}
	return nameStrings[n]
}

// Short returns the abbreviation of n.
func (n Name) Short() string {
	return ShortNames[n]
}

// TriggerEligible reports whether n has an Adhan and Iqama.
// Sunrise and Imsak are informational only.
func (n Name) TriggerEligible() bool {
	switch n {
	case Fajr, Dhuhr, Asr, Maghrib, Isha:
		return true
	}
	return false
}

// MarshalText lets Name be used as a JSON value and map key.
func (n Name) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText parses a case-insensitive prayer name.
func (n *Name) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*n = None
		return nil
	}
	v, err := ParseName(string(b))
	if err != nil {
		return err
	}
	*n = v
	return nil
}

// ParseName parses a case-insensitive prayer name.
func ParseName(s string) (Name, error) {
	s = strings.TrimSpace(s)
	for _, n := range Order {
		if strings.EqualFold(n.String(), s) {
			return n, nil
		}
	}
	return None, fmt.Errorf("unknown prayer name: %q", s)
}

// ParseNames parses a comma-separated list of prayer names.
func ParseNames(csv string) ([]Name, error) {
	var out []Name
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		n, err := ParseName(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Prayer is a single prayer event on a concrete date.
type Prayer struct {
	Name Name
	Time time.Time
}

// TimeOfDay is a wall-clock hour and minute in the schedule's location.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

// On returns the instant of t on the given date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// ParseTimeOfDay parses a time string like "15:02" or "15:02 (BST)".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	// Strip timezone suffix like " (BST)" that the API sometimes appends.
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, " "); idx != -1 {
		s = s[:idx]
	}

	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time format: %q", raw)
	}

	var hour, min int
	if _, err := fmt.Sscanf(parts[0], "%d", &hour); err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q: %w", raw, err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &min); err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q: %w", raw, err)
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return TimeOfDay{}, fmt.Errorf("time out of range: %q", raw)
	}

	return TimeOfDay{Hour: hour, Minute: min}, nil
}

// Schedule holds one day's prayer times for one location. It is immutable;
// build it with NewSchedule or ScheduleFromTimings.
type Schedule struct {
	date  time.Time
	loc   *time.Location
	times map[Name]TimeOfDay
}

// NewSchedule validates times and returns a schedule for date in loc.
// Fajr through Isha are required and Imsak is optional. Times must strictly
// increase in Order; anything else is rejected, never reordered.
func NewSchedule(date time.Time, loc *time.Location, times map[Name]TimeOfDay) (*Schedule, error) {
	if loc == nil {
		loc = time.UTC
	}
	date = date.In(loc)

	s := &Schedule{
		date:  time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc),
		loc:   loc,
		times: make(map[Name]TimeOfDay, len(times)),
	}

	prev, prevName := -1, None
	for _, n := range Order {
		t, ok := times[n]
		if !ok {
			if n == Imsak {
				continue
			}
			return nil, fmt.Errorf("%w: %s missing on %s", ErrInvalidSchedule, n, s.DateString())
		}
		if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
			return nil, fmt.Errorf("%w: %s time %s out of range", ErrInvalidSchedule, n, t)
		}
		if t.minutes() <= prev {
			return nil, fmt.Errorf("%w: %s (%s) is not after %s on %s",
				ErrInvalidSchedule, n, t, prevName, s.DateString())
		}
		prev, prevName = t.minutes(), n
		s.times[n] = t
	}

	return s, nil
}

// ScheduleFromTimings converts API timings into a validated Schedule.
func ScheduleFromTimings(timings api.Timings, date time.Time, loc *time.Location) (*Schedule, error) {
	raw := map[Name]string{
		Imsak:   timings.Imsak,
		Fajr:    timings.Fajr,
		Sunrise: timings.Sunrise,
		Dhuhr:   timings.Dhuhr,
		Asr:     timings.Asr,
		Maghrib: timings.Maghrib,
		Isha:    timings.Isha,
	}

	times := make(map[Name]TimeOfDay, len(raw))
	for n, s := range raw {
		if strings.TrimSpace(s) == "" {
			continue
		}
		t, err := ParseTimeOfDay(s)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse time for %s: %v", ErrInvalidSchedule, n, err)
		}
		times[n] = t
	}

	return NewSchedule(date, loc, times)
}

// Date returns midnight of the schedule's day in its location.
func (s *Schedule) Date() time.Time { return s.date }

// DateString returns the schedule's day as YYYY-MM-DD.
func (s *Schedule) DateString() string { return s.date.Format("2006-01-02") }

// Location returns the schedule's time zone.
func (s *Schedule) Location() *time.Location { return s.loc }

// Has reports whether the schedule carries a time for n.
func (s *Schedule) Has(n Name) bool {
	_, ok := s.times[n]
	return ok
}

// TimeOfDay returns the wall-clock time of n.
func (s *Schedule) TimeOfDay(n Name) (TimeOfDay, bool) {
	t, ok := s.times[n]
	return t, ok
}

// At returns the instant of n on the schedule's day.
func (s *Schedule) At(n Name) (time.Time, bool) {
	t, ok := s.times[n]
	if !ok {
		return time.Time{}, false
	}
	return t.On(s.date, s.loc), true
}

// Prayers returns the selected events that exist in the schedule, in
// chronological order regardless of the order of names.
func (s *Schedule) Prayers(names []Name) []Prayer {
	want := make(map[Name]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []Prayer
	for _, n := range Order {
		if !want[n] {
			continue
		}
		if at, ok := s.At(n); ok {
			out = append(out, Prayer{Name: n, Time: at})
		}
	}
	return out
}

// Project returns a copy of s with the same wall-clock times on another day.
// It is used to approximate a day whose data has not been fetched yet.
func (s *Schedule) Project(date time.Time) *Schedule {
	date = date.In(s.loc)
	times := make(map[Name]TimeOfDay, len(s.times))
	for n, t := range s.times {
		times[n] = t
	}
	return &Schedule{
		date:  time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.loc),
		loc:   s.loc,
		times: times,
	}
}

// tracked returns the events the resolver walks through.
func (s *Schedule) tracked(withImsak bool) []Prayer {
	names := DefaultNames
	if withImsak {
		names = Order
	}
	return s.Prayers(names)
}

// FormatRemaining formats a duration as "Xh Ym" or "Ym" if less than an hour.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		return "0m"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
