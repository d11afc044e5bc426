// Package notify delivers prayer trigger events to notification sinks and
// the Adhan audio player.
package notify

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/smokyabdulrahman/prayer-notifier/internal/ledger"
	"github.com/smokyabdulrahman/prayer-notifier/internal/prayer"
)

// Event is a fired trigger.
type Event struct {
	ID      string      `json:"id"`
	Date    string      `json:"date"`
	Prayer  prayer.Name `json:"prayer"`
	Kind    ledger.Kind `json:"kind"`
	At      time.Time   `json:"at"` // prayer start, or Iqama time for iqama-end
	FiredAt time.Time   `json:"fired_at"`
}

// NewEvent builds an event for a ledger key with a fresh ID.
func NewEvent(key ledger.Key, at, firedAt time.Time) Event {
	return Event{
		ID:      uuid.NewString(),
		Date:    key.Date,
		Prayer:  key.Prayer,
		Kind:    key.Kind,
		At:      at,
		FiredAt: firedAt,
	}
}

// Key returns the ledger identity of e.
func (e Event) Key() ledger.Key {
	return ledger.Key{Date: e.Date, Prayer: e.Prayer, Kind: e.Kind}
}

// Message is what a Notifier shows the user.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Event Event  `json:"event"`
}

// NewMessage derives a title and body from the event.
func NewMessage(e Event, timeFormat string) Message {
	if timeFormat == "" {
		timeFormat = "15:04"
	}
	at := e.At.Format(timeFormat)

	var title, body string
	switch e.Kind {
	case ledger.PreAdhan:
		mins := int(math.Round(e.At.Sub(e.FiredAt).Minutes()))
		title = fmt.Sprintf("%s in %d minutes", e.Prayer, mins)
		body = fmt.Sprintf("%s begins at %s", e.Prayer, at)
	case ledger.Adhan:
		title = fmt.Sprintf("Time for %s", e.Prayer)
		body = fmt.Sprintf("Adhan for %s at %s", e.Prayer, at)
	case ledger.IqamaStart:
		title = fmt.Sprintf("%s Iqama countdown", e.Prayer)
		body = fmt.Sprintf("Iqama for %s at %s", e.Prayer, at)
	case ledger.IqamaEnd:
		title = fmt.Sprintf("Iqama for %s", e.Prayer)
		body = fmt.Sprintf("Iqama for %s is now (%s)", e.Prayer, at)
	default:
		title = e.Prayer.String()
		body = string(e.Kind)
	}
	return Message{Title: title, Body: body, Event: e}
}

// Notifier delivers a message to the user. Implementations may block; the
// dispatcher always calls them off the tick goroutine.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Player plays Adhan audio.
type Player interface {
	Play(ctx context.Context, track string) error
	Stop() error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }
