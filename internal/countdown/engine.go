// Package countdown drives the once-per-second countdown to the next prayer
// and decides when each notification trigger fires.
package countdown

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smokyabdulrahman/prayer-notifier/internal/clock"
	"github.com/smokyabdulrahman/prayer-notifier/internal/ledger"
	"github.com/smokyabdulrahman/prayer-notifier/internal/notify"
	"github.com/smokyabdulrahman/prayer-notifier/internal/prayer"
	"github.com/smokyabdulrahman/prayer-notifier/internal/settings"
	"github.com/smokyabdulrahman/prayer-notifier/internal/store"
)

const (
	DefaultInterval = time.Second
	// DefaultStaleAfter caps how late a missed boundary may still fire,
	// e.g. after the machine wakes from sleep.
	DefaultStaleAfter = 30 * time.Minute
	// DefaultPreviewTTL is how long a shifted view lasts before returning to
	// today.
	DefaultPreviewTTL = 15 * time.Minute

	NoCountdown = "--:--:--"

	graceTicks     = 2
	ledgerTimeout  = 2 * time.Second
	previewTimeout = 30 * time.Second
	recentSize     = 64
	subBuffer      = 16
	markBuffer     = 32
)

// Store is the part of store.Store the engine needs.
type Store interface {
	Snapshot() store.Snapshot
	Updates() <-chan struct{}
	Ensure(date time.Time)
	Set(sched *prayer.Schedule) error
	Preview(ctx context.Context, date time.Time) (today, tomorrow *prayer.Schedule, err error)
}

// Dispatcher receives fired events.
type Dispatcher interface {
	Dispatch(ctx context.Context, e notify.Event) bool
}

// Display is what a UI renders for one tick.
type Display struct {
	Now         time.Time     `json:"now"`
	Period      prayer.Period `json:"period"`
	NoData      bool          `json:"no_data"`
	Countdown   string        `json:"countdown"`
	Urgent      bool          `json:"urgent"`
	IqamaActive bool          `json:"iqama_active"`
	IqamaState  IqamaState    `json:"iqama_state"`
	// Offset is the number of days the view is shifted from today. Only the
	// view moves; triggers keep following the real clock.
	Offset int    `json:"offset"`
	Error  string `json:"error,omitempty"`
}

// Engine owns the only ticker. Each tick resolves the period, advances the
// Iqama timer and fires triggers through the ledger, which guarantees each
// (date, prayer, kind) is dispatched at most once.
type Engine struct {
	clock      clock.Clock
	store      Store
	ledger     ledger.Ledger
	fallback   *ledger.Memory
	dispatcher Dispatcher
	settings   settings.Provider
	log        logrus.FieldLogger
	interval   time.Duration
	staleAfter time.Duration
	previewTTL time.Duration

	// tick state
	mu      sync.Mutex
	version uint64
	seen    bool
	cur     occurrence
	next    occurrence
	until   time.Duration
	iqama   IqamaTimer

	// preview state, also under mu
	offset       int
	previewSince time.Time
	previewGen   int
	preview      *previewDays

	// marks hands fired triggers to the worker started by Run.
	marks chan mark
	async atomic.Bool

	dmu     sync.RWMutex
	display Display

	smu    sync.Mutex
	subs   map[int]chan notify.Event
	subID  int
	recent []notify.Event

	kick chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithStaleAfter sets how late a missed boundary may still fire.
func WithStaleAfter(d time.Duration) Option {
	return func(e *Engine) { e.staleAfter = d }
}

// WithPreviewTTL sets how long AdvanceDate shifts the view. Zero keeps it
// until it is reset.
func WithPreviewTTL(d time.Duration) Option {
	return func(e *Engine) { e.previewTTL = d }
}

// New returns an engine. A nil ledger keeps fired triggers in memory only.
func New(st Store, l ledger.Ledger, d Dispatcher, sp settings.Provider, log logrus.FieldLogger, opts ...Option) *Engine {
	fallback := ledger.NewMemory()
	if l == nil {
		l = fallback
	}
	e := &Engine{
		clock:      clock.Real{},
		store:      st,
		ledger:     l,
		fallback:   fallback,
		dispatcher: d,
		settings:   sp,
		log:        log,
		interval:   DefaultInterval,
		staleAfter: DefaultStaleAfter,
		previewTTL: DefaultPreviewTTL,
		subs:       make(map[int]chan notify.Event),
		kick:       make(chan struct{}, 1),
		marks:      make(chan mark, markBuffer),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.display = Display{NoData: true, Countdown: NoCountdown}
	return e
}

// Run ticks until ctx is cancelled. A new schedule or a date change restarts
// the interval so the countdown never shows a partially elapsed second from
// the old schedule. While Run is active, fired triggers are marked in the
// ledger and dispatched by a separate worker so a slow ledger never stalls
// the countdown.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	done := make(chan struct{})
	go e.markLoop(ctx, done)
	e.async.Store(true)
	defer func() {
		e.async.Store(false)
		<-done
	}()

	e.log.WithField("interval", e.interval).Info("Countdown started")
	e.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("Countdown stopped")
			return nil
		case <-ticker.C:
			e.Tick(ctx)
		case <-e.store.Updates():
			ticker.Reset(e.interval)
			e.Tick(ctx)
		case <-e.kick:
			ticker.Reset(e.interval)
			e.Tick(ctx)
		}
	}
}

// Tick performs one evaluation against the clock and returns the display.
// Triggers always follow the real clock and the live schedule; a shifted
// view only changes what is displayed.
func (e *Engine) Tick(ctx context.Context) Display {
	e.mu.Lock()
	d, fired := e.tickLocked()
	e.setDisplay(d)
	e.mu.Unlock()

	for _, m := range fired {
		e.submit(ctx, m)
	}
	return d
}

func (e *Engine) tickLocked() (Display, []mark) {
	now := e.clock.Now()
	snap := e.store.Snapshot()
	if snap.Version != e.version {
		e.resetLocked()
		e.version = snap.Version
	}
	s := e.settings.Settings()

	if e.offset != 0 && e.previewTTL > 0 && now.Sub(e.previewSince) >= e.previewTTL {
		e.log.WithField("offset", e.offset).Info("Preview expired, showing today")
		e.offset, e.preview = 0, nil
		e.previewGen++
	}

	d := Display{Now: now, IqamaState: e.iqama.State()}
	var fired []mark

	if snap.Today == nil {
		noData(&d, snap.Err)
	} else {
		local := now.In(snap.Today.Location())
		if snap.Today.DateString() != local.Format("2006-01-02") {
			e.store.Ensure(local)
		}

		p, err := prayer.Resolve(snap.Today, snap.Tomorrow, now, s.ResolveOptions())
		if err != nil {
			e.log.WithError(err).Warn("Failed to resolve period")
			noData(&d, err)
		} else {
			showPeriod(&d, p)
			fired = e.evaluateLocked(now, p, s)
			d.IqamaState = e.iqama.State()
		}
	}

	if e.offset != 0 {
		d = e.previewLocked(now, snap, s)
	}
	return d, fired
}

// previewLocked renders the view offset days ahead from the fetched preview
// schedules, projecting from the live ones until they arrive.
func (e *Engine) previewLocked(now time.Time, snap store.Snapshot, s settings.Settings) Display {
	at := now.AddDate(0, 0, e.offset)
	d := Display{Now: at, Offset: e.offset, IqamaState: IqamaIdle}

	today, tomorrow := snap.Today, snap.Tomorrow
	if e.preview != nil {
		today, tomorrow = e.preview.today, e.preview.tomorrow
	}
	if today == nil {
		noData(&d, snap.Err)
		return d
	}

	p, err := prayer.Resolve(today, tomorrow, at, s.ResolveOptions())
	if err != nil {
		noData(&d, err)
		return d
	}
	showPeriod(&d, p)
	if p.InIqama {
		d.IqamaState = IqamaCounting
	}
	return d
}

func noData(d *Display, err error) {
	d.NoData = true
	d.Countdown = NoCountdown
	if err != nil {
		d.Error = err.Error()
	}
}

func showPeriod(d *Display, p prayer.Period) {
	d.Period = p
	if p.InIqama {
		d.IqamaActive = true
		d.Countdown = prayer.FormatCountdown(p.IqamaRemaining)
		return
	}
	d.Countdown = prayer.FormatCountdown(p.UntilNext)
	d.Urgent = prayer.IsUrgent(p.UntilNext)
}

// mark is a trigger the tick decided to fire.
type mark struct {
	now time.Time
	key ledger.Key
	at  time.Time
}

// evaluateLocked returns the triggers implied by moving from the previous
// tick to p.
func (e *Engine) evaluateLocked(now time.Time, p prayer.Period, s settings.Settings) []mark {
	cur, next := currentOf(p), nextOf(p)
	var out []mark

	for _, tr := range e.iqama.Observe(p) {
		switch {
		case tr.To == IqamaArmed:
			age := now.Sub(p.CurrentAt)
			fresh := age <= graceTicks*e.interval
			if e.seen {
				fresh = e.cur != cur && age <= e.staleAfter
			}
			if !fresh {
				e.log.WithFields(logrus.Fields{
					"prayer": tr.Prayer.String(),
					"age":    age.Round(time.Second),
				}).Debug("Skipping adhan for unobserved boundary")
				continue
			}
			out = append(out, mark{now, ledger.Key{Date: tr.Date, Prayer: tr.Prayer, Kind: ledger.Adhan}, p.CurrentAt})
			if w := s.Iqama(tr.Prayer); w > 0 {
				out = append(out, mark{now, ledger.Key{Date: tr.Date, Prayer: tr.Prayer, Kind: ledger.IqamaStart}, p.CurrentAt.Add(w)})
			}
		case tr.From == IqamaCounting && tr.To == IqamaExpired:
			// A clock stepping backwards leaves the window without reaching its end.
			if tr.End.IsZero() || now.Before(tr.End) || now.Sub(tr.End) > e.staleAfter {
				continue
			}
			out = append(out, mark{now, ledger.Key{Date: tr.Date, Prayer: tr.Prayer, Kind: ledger.IqamaEnd}, tr.End})
		}
	}

	if p.Next.TriggerEligible() {
		lead := s.For(p.Next).PreAdhanLead
		if lead > 0 && p.UntilNext > 0 && p.UntilNext <= lead {
			if !e.seen || e.next != next || e.until > lead {
				out = append(out, mark{now, ledger.Key{Date: next.date, Prayer: next.prayer, Kind: ledger.PreAdhan}, p.NextAt})
			}
		}
	}

	e.seen = true
	e.cur, e.next, e.until = cur, next, p.UntilNext
	return out
}

// submit queues m for the Run worker, or fires it inline when Run is not
// active or the queue is full.
func (e *Engine) submit(ctx context.Context, m mark) {
	if e.async.Load() {
		select {
		case e.marks <- m:
			return
		default:
			e.log.WithField("key", m.key.String()).Warn("Trigger queue full, firing inline")
		}
	}
	e.fire(ctx, m)
}

func (e *Engine) markLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-e.marks:
			e.fire(ctx, m)
		}
	}
}

// fire marks the trigger and, if this call created the mark, publishes and
// dispatches it.
func (e *Engine) fire(ctx context.Context, m mark) {
	lctx, cancel := context.WithTimeout(ctx, ledgerTimeout)
	fired, err := e.ledger.MarkFired(lctx, m.key, m.now)
	cancel()
	if err != nil {
		e.log.WithError(err).WithField("key", m.key.String()).Warn("Ledger unavailable, using in-memory fallback")
		fired, _ = e.fallback.MarkFired(ctx, m.key, m.now)
	}
	if !fired {
		return
	}

	ev := notify.NewEvent(m.key, m.at, m.now)
	entry := e.log.WithFields(logrus.Fields{
		"key":      m.key.String(),
		"event_id": ev.ID,
	})
	if e.dispatcher == nil {
		entry.Debug("Trigger fired")
	} else {
		entry.Info("Trigger fired")
	}

	e.publish(ev)
	if e.dispatcher != nil {
		e.dispatcher.Dispatch(ctx, ev)
	}
}

func (e *Engine) resetLocked() {
	e.seen = false
	e.cur, e.next, e.until = occurrence{}, occurrence{}, 0
	e.iqama.Reset()
}

func (e *Engine) setDisplay(d Display) {
	e.dmu.Lock()
	e.display = d
	e.dmu.Unlock()
}

// Snapshot returns the display of the last tick.
func (e *Engine) Snapshot() Display {
	e.dmu.RLock()
	defer e.dmu.RUnlock()
	return e.display
}

// SetSchedule replaces today's schedule. The next tick starts a fresh
// interval against it.
func (e *Engine) SetSchedule(sched *prayer.Schedule) error {
	if err := e.store.Set(sched); err != nil {
		return err
	}
	e.poke()
	return nil
}

// previewDays are the schedules shown while the view is shifted.
type previewDays struct {
	today, tomorrow *prayer.Schedule
}

// AdvanceDate shifts the displayed date offset days from today and fetches
// that day in the background. Zero returns to the live view. The shift lasts
// for the preview TTL; triggers are unaffected.
func (e *Engine) AdvanceDate(offset int) {
	e.mu.Lock()
	now := e.clock.Now()
	e.offset = offset
	e.previewSince = now
	e.preview = nil
	e.previewGen++
	gen := e.previewGen
	e.mu.Unlock()

	if offset != 0 {
		date := now.AddDate(0, 0, offset)
		if snap := e.store.Snapshot(); snap.Today != nil {
			date = date.In(snap.Today.Location())
		}
		go e.loadPreview(gen, date)
	}
	e.poke()
}

func (e *Engine) loadPreview(gen int, date time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), previewTimeout)
	defer cancel()

	today, tomorrow, err := e.store.Preview(ctx, date)
	if err != nil {
		e.log.WithError(err).WithField("date", date.Format("2006-01-02")).Debug("Preview unavailable, projecting from today")
		return
	}

	e.mu.Lock()
	if e.previewGen == gen {
		e.preview = &previewDays{today: today, tomorrow: tomorrow}
	}
	e.mu.Unlock()
	e.poke()
}

func (e *Engine) poke() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Subscribe returns a stream of fired events and a function to stop it.
// Slow subscribers miss events rather than blocking the engine.
func (e *Engine) Subscribe() (<-chan notify.Event, func()) {
	ch := make(chan notify.Event, subBuffer)

	e.smu.Lock()
	id := e.subID
	e.subID++
	e.subs[id] = ch
	e.smu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.smu.Lock()
			delete(e.subs, id)
			e.smu.Unlock()
			close(ch)
		})
	}
}

// Recent returns up to n of the latest events, oldest first.
func (e *Engine) Recent(n int) []notify.Event {
	e.smu.Lock()
	defer e.smu.Unlock()
	if n <= 0 || n > len(e.recent) {
		n = len(e.recent)
	}
	out := make([]notify.Event, n)
	copy(out, e.recent[len(e.recent)-n:])
	return out
}

func (e *Engine) publish(ev notify.Event) {
	e.smu.Lock()
	defer e.smu.Unlock()

	e.recent = append(e.recent, ev)
	if len(e.recent) > recentSize {
		e.recent = e.recent[len(e.recent)-recentSize:]
	}
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
