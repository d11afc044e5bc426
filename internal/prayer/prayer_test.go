package prayer

import (
	"errors"
	"testing"
	"time"

	"github.com/smokyabdulrahman/prayer-notifier/internal/api"
)

// ---------------------------------------------------------------------------
// Name
// ---------------------------------------------------------------------------

func TestParseName(t *testing.T) {
	tests := []struct {
		in      string
		want    Name
		wantErr bool
	}{
		{"Fajr", Fajr, false},
		{"fajr", Fajr, false},
		{"  MAGHRIB ", Maghrib, false},
		{"imsak", Imsak, false},
		{"Tahajjud", None, true},
		{"", None, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseName(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseName(%q) expected error, got %v", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseName(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseName(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseNames(t *testing.T) {
	got, err := ParseNames("fajr, Isha,,asr")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Name{Fajr, Isha, Asr}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if _, err := ParseNames("Fajr,Witr"); err == nil {
		t.Error("expected error for unknown name")
	}
}

func TestName_TriggerEligible(t *testing.T) {
	for _, n := range Order {
		want := n != Imsak && n != Sunrise
		if n.TriggerEligible() != want {
			t.Errorf("%v.TriggerEligible() = %v, want %v", n, n.TriggerEligible(), want)
		}
	}
	if None.TriggerEligible() {
		t.Error("None must not be trigger eligible")
	}
}

func TestName_TextRoundTrip(t *testing.T) {
	b, err := Asr.MarshalText()
	if err != nil || string(b) != "Asr" {
		t.Fatalf("MarshalText = %q, %v", b, err)
	}
	var n Name
	if err := n.UnmarshalText([]byte("asr")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if n != Asr {
		t.Errorf("UnmarshalText = %v, want Asr", n)
	}
}

func TestShortNames_AllPrayers(t *testing.T) {
	for _, n := range Order {
		if n.Short() == "" {
			t.Errorf("ShortNames missing entry for prayer %v", n)
		}
	}
}

// ---------------------------------------------------------------------------
// ParseTimeOfDay
// ---------------------------------------------------------------------------

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantH   int
		wantM   int
		wantErr bool
	}{
		{"simple HH:MM", "15:02", 15, 2, false},
		{"midnight", "00:00", 0, 0, false},
		{"with timezone suffix", "15:02 (BST)", 15, 2, false},
		{"with spaces and suffix", "  05:17  (EET) ", 5, 17, false},
		{"invalid format", "bad", 0, 0, true},
		{"empty string", "", 0, 0, true},
		{"missing minute", "15:", 0, 0, true},
		{"non-numeric", "ab:cd", 0, 0, true},
		{"hour out of range", "24:00", 0, 0, true},
		{"minute out of range", "12:60", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTimeOfDay(%q) expected error, got nil", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeOfDay(%q) unexpected error: %v", tt.raw, err)
			}
			if got.Hour != tt.wantH || got.Minute != tt.wantM {
				t.Errorf("ParseTimeOfDay(%q) = %v, want %02d:%02d", tt.raw, got, tt.wantH, tt.wantM)
			}
		})
	}
}

func TestTimeOfDay_OnLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	date := time.Date(2026, 6, 15, 0, 0, 0, 0, loc)

	got := TimeOfDay{Hour: 12, Minute: 30}.On(date, loc)
	if got.Location() != loc {
		t.Errorf("expected location %v, got %v", loc, got.Location())
	}
	if got.Hour() != 12 || got.Minute() != 30 || got.Day() != 15 {
		t.Errorf("On() = %v", got)
	}
}

// ---------------------------------------------------------------------------
// Schedule
// ---------------------------------------------------------------------------

func sampleTimings() api.Timings {
	return api.Timings{
		Fajr:       "05:17",
		Sunrise:    "06:48",
		Dhuhr:      "12:13",
		Asr:        "15:02",
		Sunset:     "17:39",
		Maghrib:    "17:39",
		Isha:       "19:10",
		Imsak:      "05:07",
		Midnight:   "00:14",
		Firstthird: "22:02",
		Lastthird:  "02:25",
	}
}

// mustSchedule builds a schedule on date from "HH:MM" strings keyed by name.
func mustSchedule(t *testing.T, date time.Time, times map[Name]string) *Schedule {
	t.Helper()
	parsed := make(map[Name]TimeOfDay, len(times))
	for n, s := range times {
		tod, err := ParseTimeOfDay(s)
		if err != nil {
			t.Fatalf("bad fixture time %q: %v", s, err)
		}
		parsed[n] = tod
	}
	s, err := NewSchedule(date, date.Location(), parsed)
	if err != nil {
		t.Fatalf("NewSchedule: %v", err)
	}
	return s
}

func TestScheduleFromTimings(t *testing.T) {
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	s, err := ScheduleFromTimings(sampleTimings(), date, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.DateString() != "2026-02-28" {
		t.Errorf("DateString() = %q", s.DateString())
	}
	for _, n := range Order {
		if !s.Has(n) {
			t.Errorf("schedule missing %v", n)
		}
	}
	at, _ := s.At(Asr)
	if at.Hour() != 15 || at.Minute() != 2 {
		t.Errorf("Asr = %v, want 15:02", at.Format("15:04"))
	}
}

func TestScheduleFromTimings_TimezoneSuffix(t *testing.T) {
	timings := sampleTimings()
	timings.Fajr = "05:17 (BST)"
	timings.Isha = "19:10 (GMT)"

	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	s, err := ScheduleFromTimings(timings, date, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tod, _ := s.TimeOfDay(Isha); tod.String() != "19:10" {
		t.Errorf("Isha = %v, want 19:10", tod)
	}
}

func TestScheduleFromTimings_ImsakOptional(t *testing.T) {
	timings := sampleTimings()
	timings.Imsak = ""

	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	s, err := ScheduleFromTimings(timings, date, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Has(Imsak) {
		t.Error("expected no Imsak")
	}
}

func TestNewSchedule_RejectsInvalid(t *testing.T) {
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*api.Timings)
	}{
		{"missing dhuhr", func(tm *api.Timings) { tm.Dhuhr = "" }},
		{"asr before dhuhr", func(tm *api.Timings) { tm.Asr = "12:00" }},
		{"equal times", func(tm *api.Timings) { tm.Maghrib = tm.Asr }},
		{"isha after midnight", func(tm *api.Timings) { tm.Isha = "00:30" }},
		{"imsak after fajr", func(tm *api.Timings) { tm.Imsak = "05:30" }},
		{"garbage", func(tm *api.Timings) { tm.Fajr = "soon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := sampleTimings()
			tt.mutate(&tm)
			_, err := ScheduleFromTimings(tm, date, time.UTC)
			if !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("err = %v, want ErrInvalidSchedule", err)
			}
		})
	}
}

func TestSchedule_PrayersChronological(t *testing.T) {
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	s, _ := ScheduleFromTimings(sampleTimings(), date, time.UTC)

	got := s.Prayers([]Name{Isha, Fajr, Maghrib})
	if len(got) != 3 {
		t.Fatalf("expected 3 prayers, got %d", len(got))
	}
	if got[0].Name != Fajr || got[1].Name != Maghrib || got[2].Name != Isha {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestSchedule_Project(t *testing.T) {
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	s, _ := ScheduleFromTimings(sampleTimings(), date, time.UTC)

	p := s.Project(date.AddDate(0, 0, 1))
	if p.DateString() != "2026-03-01" {
		t.Errorf("projected date = %s", p.DateString())
	}
	at, _ := p.At(Fajr)
	if at.Day() != 1 || at.Hour() != 5 || at.Minute() != 17 {
		t.Errorf("projected Fajr = %v", at)
	}
	// Original is untouched.
	if s.DateString() != "2026-02-28" {
		t.Error("Project mutated the original schedule")
	}
}

// ---------------------------------------------------------------------------
// FormatRemaining
// ---------------------------------------------------------------------------

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"hours and minutes", 2*time.Hour + 15*time.Minute, "2h 15m"},
		{"only minutes", 45 * time.Minute, "45m"},
		{"exactly one hour", 1 * time.Hour, "1h 0m"},
		{"zero", 0, "0m"},
		{"negative", -30 * time.Minute, "0m"},
		{"large", 10*time.Hour + 59*time.Minute, "10h 59m"},
		{"just over an hour", 1*time.Hour + 1*time.Minute, "1h 1m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatRemaining(tt.duration)
			if got != tt.want {
				t.Errorf("FormatRemaining(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}
