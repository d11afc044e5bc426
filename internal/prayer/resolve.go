package prayer

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDataUnavailable means no schedule is loaded for the requested key.
	ErrDataUnavailable = errors.New("prayer schedule unavailable")
	// ErrInvalidSchedule means upstream data is missing a prayer or out of order.
	ErrInvalidSchedule = errors.New("invalid prayer schedule")
)

// UrgentThreshold is the remaining time below which a countdown is urgent.
const UrgentThreshold = 15 * time.Minute

// ResolveOptions tunes Resolve.
type ResolveOptions struct {
	// TrackImsak makes Imsak a regular event, so it can be current or next.
	TrackImsak bool
	// Iqama returns the Iqama window length for an eligible prayer.
	// A nil func or a zero duration means no window.
	Iqama func(Name) time.Duration
}

// Period describes where "now" falls in the day. It is recomputed on every
// tick and never persisted.
type Period struct {
	Date           time.Time     `json:"date"`
	Current        Name          `json:"current"`
	CurrentAt      time.Time     `json:"current_at"`
	Next           Name          `json:"next"`
	NextAt         time.Time     `json:"next_at"`
	UntilNext      time.Duration `json:"until_next"`
	InIqama        bool          `json:"in_iqama"`
	IqamaEnd       time.Time     `json:"iqama_end"`
	IqamaRemaining time.Duration `json:"iqama_remaining"`
	// Extrapolated marks a result computed from another day's times.
	Extrapolated bool `json:"extrapolated"`
}

// DateString returns the day of the schedule used, as YYYY-MM-DD.
func (p Period) DateString() string {
	return p.Date.Format("2006-01-02")
}

// Resolve classifies now against today's schedule. tomorrow is optional and
// is used for the next Fajr after Isha; without it (or when it is for another
// day) the next day is projected from today's times and the period is marked
// Extrapolated. Resolve is a pure function of its inputs.
func Resolve(today, tomorrow *Schedule, now time.Time, opts ResolveOptions) (Period, error) {
	if today == nil {
		return Period{}, ErrDataUnavailable
	}

	loc := today.Location()
	now = now.In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	var p Period
	base := today
	switch {
	case sameDay(today.Date(), day):
	case tomorrow != nil && sameDay(tomorrow.Date(), day):
		base, tomorrow = tomorrow, nil
	default:
		base = today.Project(day)
		p.Extrapolated = true
	}
	p.Date = base.Date()

	events := base.tracked(opts.TrackImsak)
	if len(events) == 0 {
		return Period{}, fmt.Errorf("%w: no events on %s", ErrInvalidSchedule, base.DateString())
	}

	for _, ev := range events {
		if ev.Time.After(now) {
			p.Next, p.NextAt = ev.Name, ev.Time
			break
		}
		p.Current, p.CurrentAt = ev.Name, ev.Time
	}

	if p.Current == None {
		// Before the first event: the previous day's last prayer stays current
		// while its Iqama window, which may run past midnight, is still open.
		prevDay := day.AddDate(0, 0, -1)
		prev := today
		if !sameDay(prev.Date(), prevDay) {
			prev = base.Project(prevDay)
		}
		if evs := prev.tracked(opts.TrackImsak); len(evs) > 0 && opts.Iqama != nil {
			last := evs[len(evs)-1]
			if d := opts.Iqama(last.Name); last.Name.TriggerEligible() && d > 0 && now.Before(last.Time.Add(d)) {
				p.Current, p.CurrentAt = last.Name, last.Time
				if prev != today {
					p.Extrapolated = true
				}
			}
		}
	}

	if p.Next == None {
		nextDay := day.AddDate(0, 0, 1)
		src := tomorrow
		if src == nil || !sameDay(src.Date(), nextDay) {
			src = base.Project(nextDay)
			p.Extrapolated = true
		}
		first := src.tracked(opts.TrackImsak)[0]
		p.Next, p.NextAt = first.Name, first.Time
	}
	p.UntilNext = p.NextAt.Sub(now)

	if p.Current.TriggerEligible() && opts.Iqama != nil {
		if d := opts.Iqama(p.Current); d > 0 {
			end := p.CurrentAt.Add(d)
			if now.Before(end) {
				p.InIqama = true
				p.IqamaEnd = end
				p.IqamaRemaining = end.Sub(now)
			}
		}
	}

	return p, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FormatCountdown formats d as zero-padded HH:MM:SS, truncating fractions of
// a second. Negative durations render as 00:00:00.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// IsUrgent reports whether a remaining time is inside the urgency threshold.
func IsUrgent(d time.Duration) bool {
	return d > 0 && d < UrgentThreshold
}
