package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smokyabdulrahman/prayer-notifier/internal/ledger"
	"github.com/smokyabdulrahman/prayer-notifier/internal/settings"
)

const defaultSendTimeout = 30 * time.Second

// Dispatcher fans trigger events out to notifiers and the audio player.
// Sends never block the caller and failures never propagate; they are logged
// and reflected in Active.
type Dispatcher struct {
	log        logrus.FieldLogger
	settings   settings.Provider
	notifiers  []Notifier
	player     Player
	timeFormat string
	timeout    time.Duration

	wg     sync.WaitGroup
	active atomic.Bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPlayer sets the Adhan audio player.
func WithPlayer(p Player) Option {
	return func(d *Dispatcher) { d.player = p }
}

// WithTimeFormat sets the layout used in message bodies.
func WithTimeFormat(layout string) Option {
	return func(d *Dispatcher) { d.timeFormat = layout }
}

// WithSendTimeout bounds each sink call.
func WithSendTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

// NewDispatcher returns a dispatcher sending to notifiers.
func NewDispatcher(log logrus.FieldLogger, sp settings.Provider, notifiers []Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:        log,
		settings:   sp,
		notifiers:  notifiers,
		timeFormat: "15:04",
		timeout:    defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.active.Store(true)
	return d
}

// Dispatch requests notifications for e according to the current settings.
// It reports whether anything was requested.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) bool {
	s := d.settings.Settings()
	if !s.Allows(e.Prayer) {
		return false
	}

	switch e.Kind {
	case ledger.IqamaStart:
		// Shown by the countdown itself.
		return false
	case ledger.IqamaEnd:
		if !s.NotifyIqamaEnd {
			return false
		}
	}

	log := d.log.WithFields(logrus.Fields{
		"prayer":   e.Prayer.String(),
		"kind":     string(e.Kind),
		"event_id": e.ID,
	})

	msg := NewMessage(e, d.timeFormat)
	for _, n := range d.notifiers {
		n := n
		d.async(ctx, func(ctx context.Context) {
			if err := n.Notify(ctx, msg); err != nil {
				log.WithError(err).Warn("Notification failed")
				d.active.Store(false)
				return
			}
			d.active.Store(true)
		})
	}

	if e.Kind == ledger.Adhan && d.player != nil {
		if track := s.Track(); track != "" {
			d.async(ctx, func(ctx context.Context) {
				if err := d.player.Play(ctx, track); err != nil {
					log.WithError(err).WithField("track", track).Warn("Adhan playback failed")
				}
			})
		}
	}

	log.Debug("Dispatched")
	return true
}

func (d *Dispatcher) async(parent context.Context, fn func(context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
		defer cancel()
		fn(ctx)
	}()
}

// Active reports whether the most recent notification attempt succeeded.
func (d *Dispatcher) Active() bool {
	return d.active.Load()
}

// StopAudio stops any Adhan being played.
func (d *Dispatcher) StopAudio() error {
	if d.player == nil {
		return nil
	}
	return d.player.Stop()
}

// Close waits for in-flight sends and stops audio.
func (d *Dispatcher) Close() error {
	d.wg.Wait()
	return d.StopAudio()
}
