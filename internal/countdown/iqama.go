package countdown

import (
	"time"

	"github.com/smokyabdulrahman/prayer-notifier/internal/prayer"
)

// IqamaState is the phase of the Iqama grace period for the current prayer.
type IqamaState int

const (
	IqamaIdle IqamaState = iota
	IqamaArmed
	IqamaCounting
	IqamaExpired
)

func (s IqamaState) String() string {
	switch s {
	case IqamaArmed:
		return "armed"
	case IqamaCounting:
		return "counting"
	case IqamaExpired:
		return "expired"
	}
	return "idle"
}

// MarshalText renders the state by name in JSON.
func (s IqamaState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// occurrence identifies one prayer on one day.
type occurrence struct {
	date   string
	prayer prayer.Name
}

func currentOf(p prayer.Period) occurrence {
	if p.Current == prayer.None {
		return occurrence{}
	}
	return occurrence{date: p.CurrentAt.Format("2006-01-02"), prayer: p.Current}
}

func nextOf(p prayer.Period) occurrence {
	return occurrence{date: p.NextAt.Format("2006-01-02"), prayer: p.Next}
}

// Transition is a state change reported by IqamaTimer.Observe.
type Transition struct {
	From, To IqamaState
	Date     string
	Prayer   prayer.Name
	// End is the Iqama time. It is zero when the window was never observed
	// open, e.g. when the process started after it closed.
	End time.Time
}

// IqamaTimer follows the Iqama window of the current prayer. It holds no
// clock of its own: every step is derived from a resolved Period, so a timer
// created mid-window starts Counting with the true remaining time.
type IqamaTimer struct {
	state     IqamaState
	cur       occurrence
	end       time.Time
	remaining time.Duration
}

// State returns the current phase.
func (t *IqamaTimer) State() IqamaState { return t.state }

// Prayer returns the prayer the timer is following, or None.
func (t *IqamaTimer) Prayer() prayer.Name { return t.cur.prayer }

// Remaining returns the time left while Counting.
func (t *IqamaTimer) Remaining() time.Duration {
	if t.state != IqamaCounting {
		return 0
	}
	return t.remaining
}

// Reset forgets the followed prayer.
func (t *IqamaTimer) Reset() { *t = IqamaTimer{} }

// Observe advances the timer to match p and returns the transitions taken,
// in order. Expired is always followed by Idle within the same call.
func (t *IqamaTimer) Observe(p prayer.Period) []Transition {
	var out []Transition
	step := func(to IqamaState) {
		out = append(out, Transition{From: t.state, To: to, Date: t.cur.date, Prayer: t.cur.prayer, End: t.end})
		t.state = to
	}

	cur := currentOf(p)
	eligible := p.Current.TriggerEligible()

	if t.cur != cur && (t.state == IqamaArmed || t.state == IqamaCounting) {
		// The followed prayer is no longer current.
		step(IqamaExpired)
		step(IqamaIdle)
	}

	if !eligible {
		t.cur, t.end, t.remaining = cur, time.Time{}, 0
		t.state = IqamaIdle
		return out
	}

	if t.cur != cur {
		t.cur, t.end, t.remaining = cur, time.Time{}, 0
		step(IqamaArmed)
	}

	switch t.state {
	case IqamaArmed, IqamaCounting:
		if p.InIqama {
			t.end = p.IqamaEnd
			t.remaining = p.IqamaRemaining
			if t.state == IqamaArmed {
				step(IqamaCounting)
			}
			return out
		}
		t.remaining = 0
		step(IqamaExpired)
		step(IqamaIdle)
	}
	return out
}
