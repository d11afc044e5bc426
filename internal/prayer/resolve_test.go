package prayer

import (
	"errors"
	"testing"
	"time"
)

func scenarioSchedule(t *testing.T, date time.Time) *Schedule {
	t.Helper()
	return mustSchedule(t, date, map[Name]string{
		Fajr:    "05:10",
		Sunrise: "06:30",
		Dhuhr:   "12:15",
		Asr:     "15:45",
		Maghrib: "18:20",
		Isha:    "19:40",
	})
}

func fixedIqama(d time.Duration) func(Name) time.Duration {
	return func(Name) time.Duration { return d }
}

func at(date time.Time, h, m, s int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, s, 0, date.Location())
}

// ---------------------------------------------------------------------------
// Resolve
// ---------------------------------------------------------------------------

func TestResolve_NilSchedule(t *testing.T) {
	_, err := Resolve(nil, nil, time.Now(), ResolveOptions{})
	if !errors.Is(err, ErrDataUnavailable) {
		t.Errorf("err = %v, want ErrDataUnavailable", err)
	}
}

func TestResolve_CurrentAndNext(t *testing.T) {
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	s := scenarioSchedule(t, date)

	tests := []struct {
		name        string
		now         time.Time
		wantCurrent Name
		wantNext    Name
		wantUntil   time.Duration
	}{
		{"before fajr", at(date, 3, 0, 0), None, Fajr, 2*time.Hour + 10*time.Minute},
		{"exactly fajr", at(date, 5, 10, 0), Fajr, Sunrise, 80 * time.Minute},
		{"after sunrise", at(date, 7, 0, 0), Sunrise, Dhuhr, 5*time.Hour + 15*time.Minute},
		{"one second before asr", at(date, 15, 44, 59), Dhuhr, Asr, time.Second},
		{"evening", at(date, 18, 30, 0), Maghrib, Isha, 70 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Resolve(s, nil, tt.now, ResolveOptions{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Current != tt.wantCurrent || p.Next != tt.wantNext {
				t.Errorf("Current/Next = %v/%v, want %v/%v", p.Current, p.Next, tt.wantCurrent, tt.wantNext)
			}
			if p.UntilNext != tt.wantUntil {
				t.Errorf("UntilNext = %v, want %v", p.UntilNext, tt.wantUntil)
			}
			if p.Extrapolated {
				t.Error("unexpected Extrapolated")
			}
		})
	}
}

func TestResolve_Scenario(t *testing.T) {
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	s := scenarioSchedule(t, date)

	p, err := Resolve(s, nil, at(date, 12, 15, 5), ResolveOptions{Iqama: fixedIqama(15 * time.Minute)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Current != Dhuhr {
		t.Errorf("Current = %v, want Dhuhr", p.Current)
	}
	if !p.InIqama {
		t.Fatal("expected InIqama")
	}
	if p.IqamaRemaining != 14*time.Minute+55*time.Second {
		t.Errorf("IqamaRemaining = %v, want 14m55s", p.IqamaRemaining)
	}
	if FormatCountdown(p.IqamaRemaining) != "00:14:55" {
		t.Errorf("countdown = %s", FormatCountdown(p.IqamaRemaining))
	}
}

func TestResolve_IqamaBoundary(t *testing.T) {
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	s := mustSchedule(t, date, map[Name]string{
		Fajr: "05:00", Sunrise: "06:30", Dhuhr: "12:15",
		Asr: "15:45", Maghrib: "18:20", Isha: "19:40",
	})
	opts := ResolveOptions{Iqama: fixedIqama(20 * time.Minute)}

	tests := []struct {
		now  time.Time
		want bool
	}{
		{at(date, 4, 59, 59), false},
		{at(date, 5, 0, 0), true},
		{at(date, 5, 10, 0), true},
		{at(date, 5, 19, 59), true},
		{at(date, 5, 20, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.now.Format("15:04:05"), func(t *testing.T) {
			p, err := Resolve(s, nil, tt.now, opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.InIqama != tt.want {
				t.Errorf("InIqama = %v, want %v", p.InIqama, tt.want)
			}
		})
	}
}

func TestResolve_NoIqamaForSunrise(t *testing.T) {
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	s := scenarioSchedule(t, date)

	p, _ := Resolve(s, nil, at(date, 6, 31, 0), ResolveOptions{Iqama: fixedIqama(time.Hour)})
	if p.Current != Sunrise || p.InIqama {
		t.Errorf("Current=%v InIqama=%v, want Sunrise without iqama", p.Current, p.InIqama)
	}
}

func TestResolve_PerPrayerIqama(t *testing.T) {
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	s := scenarioSchedule(t, date)
	opts := ResolveOptions{Iqama: func(n Name) time.Duration {
		if n == Maghrib {
			return 0
		}
		return 20 * time.Minute
	}}

	p, _ := Resolve(s, nil, at(date, 18, 21, 0), opts)
	if p.InIqama {
		t.Error("Maghrib has no window, expected InIqama=false")
	}
	p, _ = Resolve(s, nil, at(date, 15, 50, 0), opts)
	if !p.InIqama || p.IqamaRemaining != 15*time.Minute {
		t.Errorf("Asr InIqama=%v remaining=%v", p.InIqama, p.IqamaRemaining)
	}
}

func TestResolve_AfterIshaUsesTomorrow(t *testing.T) {
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	today := scenarioSchedule(t, date)
	tomorrow := mustSchedule(t, date.AddDate(0, 0, 1), map[Name]string{
		Fajr: "05:08", Sunrise: "06:29", Dhuhr: "12:15",
		Asr: "15:46", Maghrib: "18:21", Isha: "19:41",
	})

	p, err := Resolve(today, tomorrow, at(date, 22, 0, 0), ResolveOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Current != Isha || p.Next != Fajr {
		t.Errorf("Current/Next = %v/%v", p.Current, p.Next)
	}
	if p.Extrapolated {
		t.Error("tomorrow was available, expected Extrapolated=false")
	}
	if want := 7*time.Hour + 8*time.Minute; p.UntilNext != want {
		t.Errorf("UntilNext = %v, want %v", p.UntilNext, want)
	}
}

func TestResolve_AfterIshaExtrapolates(t *testing.T) {
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	today := scenarioSchedule(t, date)

	p, _ := Resolve(today, nil, at(date, 22, 0, 0), ResolveOptions{})
	if p.Next != Fajr || !p.Extrapolated {
		t.Errorf("Next=%v Extrapolated=%v, want Fajr/true", p.Next, p.Extrapolated)
	}
	if want := 7*time.Hour + 10*time.Minute; p.UntilNext != want {
		t.Errorf("UntilNext = %v, want %v", p.UntilNext, want)
	}
}

func TestResolve_DayRollover(t *testing.T) {
	date := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	s := mustSchedule(t, date, map[Name]string{
		Fajr: "05:20", Sunrise: "06:40", Dhuhr: "12:30",
		Asr: "15:50", Maghrib: "18:25", Isha: "19:45",
	})

	now := time.Date(2024, 3, 11, 0, 0, 1, 0, time.UTC)
	p, err := Resolve(s, nil, now, ResolveOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Next != Fajr {
		t.Errorf("Next = %v, want Fajr", p.Next)
	}
	if !p.Extrapolated {
		t.Error("expected Extrapolated")
	}
	if p.UntilNext <= 0 {
		t.Errorf("UntilNext = %v, want positive", p.UntilNext)
	}
	if p.Current != None {
		t.Errorf("Current = %v, want None", p.Current)
	}
	if p.DateString() != "2024-03-11" {
		t.Errorf("Date = %s, want 2024-03-11", p.DateString())
	}
}

func lateIshaSchedule(t *testing.T, date time.Time) *Schedule {
	t.Helper()
	return mustSchedule(t, date, map[Name]string{
		Fajr: "02:40", Sunrise: "04:45", Dhuhr: "13:10",
		Asr: "17:30", Maghrib: "21:35", Isha: "23:50",
	})
}

func TestResolve_IshaIqamaPastMidnight(t *testing.T) {
	date := time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC)
	yesterday := lateIshaSchedule(t, date)
	today := lateIshaSchedule(t, date.AddDate(0, 0, 1))
	opts := ResolveOptions{Iqama: fixedIqama(20 * time.Minute)}
	now := time.Date(2026, 6, 21, 0, 5, 0, 0, time.UTC)
	ishaAt := time.Date(2026, 6, 20, 23, 50, 0, 0, time.UTC)

	tests := []struct {
		name         string
		today, tmrw  *Schedule
		extrapolated bool
	}{
		{"previous day still loaded", yesterday, today, false},
		{"new day loaded", today, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Resolve(tt.today, tt.tmrw, now, opts)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if p.Current != Isha || !p.CurrentAt.Equal(ishaAt) {
				t.Errorf("Current = %v at %v, want Isha at %v", p.Current, p.CurrentAt, ishaAt)
			}
			if !p.InIqama || p.IqamaRemaining != 5*time.Minute {
				t.Errorf("InIqama=%v remaining=%v, want true/5m", p.InIqama, p.IqamaRemaining)
			}
			if p.Next != Fajr || p.UntilNext != 2*time.Hour+35*time.Minute {
				t.Errorf("Next = %v in %v", p.Next, p.UntilNext)
			}
			if p.Extrapolated != tt.extrapolated {
				t.Errorf("Extrapolated = %v, want %v", p.Extrapolated, tt.extrapolated)
			}
		})
	}

	// The window is closed-open: at its end the night has no current prayer.
	p, _ := Resolve(yesterday, today, time.Date(2026, 6, 21, 0, 10, 0, 0, time.UTC), opts)
	if p.Current != None || p.InIqama {
		t.Errorf("at Iqama end: Current=%v InIqama=%v, want None/false", p.Current, p.InIqama)
	}
}

func TestResolve_TomorrowBecomesToday(t *testing.T) {
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	today := scenarioSchedule(t, date)
	tomorrow := mustSchedule(t, date.AddDate(0, 0, 1), map[Name]string{
		Fajr: "05:08", Sunrise: "06:29", Dhuhr: "12:15",
		Asr: "15:46", Maghrib: "18:21", Isha: "19:41",
	})

	p, _ := Resolve(today, tomorrow, time.Date(2026, 3, 1, 5, 8, 0, 0, time.UTC), ResolveOptions{})
	if p.Current != Fajr || p.Extrapolated {
		t.Errorf("Current=%v Extrapolated=%v, want Fajr from tomorrow's schedule", p.Current, p.Extrapolated)
	}
}

func TestResolve_TrackImsak(t *testing.T) {
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	s, _ := ScheduleFromTimings(sampleTimings(), date, time.UTC)

	p, _ := Resolve(s, nil, at(date, 4, 0, 0), ResolveOptions{TrackImsak: true})
	if p.Next != Imsak {
		t.Errorf("Next = %v, want Imsak", p.Next)
	}
	p, _ = Resolve(s, nil, at(date, 4, 0, 0), ResolveOptions{})
	if p.Next != Fajr {
		t.Errorf("without tracking Next = %v, want Fajr", p.Next)
	}
	p, _ = Resolve(s, nil, at(date, 23, 0, 0), ResolveOptions{TrackImsak: true})
	if p.Next != Imsak {
		t.Errorf("after Isha Next = %v, want Imsak", p.Next)
	}
}

func TestResolve_ConvertsToScheduleLocation(t *testing.T) {
	loc := time.FixedZone("AST", 3*60*60)
	date := time.Date(2026, 2, 28, 0, 0, 0, 0, loc)
	s := scenarioSchedule(t, date)

	// 09:20 UTC is 12:20 in AST.
	p, _ := Resolve(s, nil, time.Date(2026, 2, 28, 9, 20, 0, 0, time.UTC), ResolveOptions{})
	if p.Current != Dhuhr {
		t.Errorf("Current = %v, want Dhuhr", p.Current)
	}
}

// ---------------------------------------------------------------------------
// FormatCountdown / IsUrgent
// ---------------------------------------------------------------------------

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{-time.Minute, "00:00:00"},
		{14*time.Minute + 59*time.Second + 900*time.Millisecond, "00:14:59"},
		{2*time.Hour + 5*time.Minute + 3*time.Second, "02:05:03"},
		{26 * time.Hour, "26:00:00"},
	}

	for _, tt := range tests {
		if got := FormatCountdown(tt.d); got != tt.want {
			t.Errorf("FormatCountdown(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestIsUrgent(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want bool
	}{
		{0, false},
		{time.Second, true},
		{14*time.Minute + 59*time.Second, true},
		{15 * time.Minute, false},
		{time.Hour, false},
	}
	for _, tt := range tests {
		if got := IsUrgent(tt.d); got != tt.want {
			t.Errorf("IsUrgent(%v) = %v, want %v", tt.d, got, tt.want)
		}
	}
}
