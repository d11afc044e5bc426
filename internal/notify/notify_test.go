package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"gopkg.in/telebot.v3"

	"github.com/smokyabdulrahman/prayer-notifier/internal/ledger"
	"github.com/smokyabdulrahman/prayer-notifier/internal/prayer"
	"github.com/smokyabdulrahman/prayer-notifier/internal/settings"
)

var asrAt = time.Date(2026, 2, 28, 15, 30, 0, 0, time.UTC)

func event(p prayer.Name, kind ledger.Kind, firedAt time.Time) Event {
	return NewEvent(ledger.NewKey(asrAt, p, kind), asrAt, firedAt)
}

// recorder is a Notifier that remembers every message.
type recorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recorder) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

type fakePlayer struct {
	mu     sync.Mutex
	tracks []string
	stops  int
}

func (p *fakePlayer) Play(_ context.Context, track string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, track)
	return nil
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

func newTestDispatcher(s settings.Settings, n Notifier, p Player) *Dispatcher {
	log, _ := test.NewNullLogger()
	return NewDispatcher(log, settings.Static(s), []Notifier{n}, WithPlayer(p))
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

func TestNewMessage(t *testing.T) {
	tests := []struct {
		kind      ledger.Kind
		firedAt   time.Time
		wantTitle string
		wantBody  string
	}{
		{ledger.PreAdhan, asrAt.Add(-5 * time.Minute), "Asr in 5 minutes", "Asr begins at 15:30"},
		{ledger.Adhan, asrAt, "Time for Asr", "Adhan for Asr at 15:30"},
		{ledger.IqamaEnd, asrAt, "Iqama for Asr", "Iqama for Asr is now (15:30)"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			msg := NewMessage(event(prayer.Asr, tt.kind, tt.firedAt), "15:04")
			if msg.Title != tt.wantTitle || msg.Body != tt.wantBody {
				t.Errorf("got %q / %q, want %q / %q", msg.Title, msg.Body, tt.wantTitle, tt.wantBody)
			}
		})
	}
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	a := event(prayer.Asr, ledger.Adhan, asrAt)
	b := event(prayer.Asr, ledger.Adhan, asrAt)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct non-empty IDs, got %q and %q", a.ID, b.ID)
	}
	if a.Key() != ledger.NewKey(asrAt, prayer.Asr, ledger.Adhan) {
		t.Errorf("Key() = %+v", a.Key())
	}
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

func TestDispatch_Gating(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*settings.Settings)
		ev     Event
		want   bool
	}{
		{"enabled adhan", func(*settings.Settings) {}, event(prayer.Asr, ledger.Adhan, asrAt), true},
		{"global off", func(s *settings.Settings) { s.Enabled = false }, event(prayer.Asr, ledger.Adhan, asrAt), false},
		{"prayer off", func(s *settings.Settings) {
			s.Prayers[prayer.Asr] = settings.PrayerSettings{Enabled: false}
		}, event(prayer.Asr, ledger.Adhan, asrAt), false},
		{"iqama start is stream only", func(*settings.Settings) {}, event(prayer.Asr, ledger.IqamaStart, asrAt), false},
		{"iqama end when configured", func(*settings.Settings) {}, event(prayer.Asr, ledger.IqamaEnd, asrAt), true},
		{"iqama end disabled", func(s *settings.Settings) { s.NotifyIqamaEnd = false }, event(prayer.Asr, ledger.IqamaEnd, asrAt), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := settings.Defaults()
			tt.mutate(&s)
			rec := &recorder{}
			d := newTestDispatcher(s, rec, nil)

			got := d.Dispatch(context.Background(), tt.ev)
			d.Close()
			if got != tt.want {
				t.Errorf("Dispatch = %v, want %v", got, tt.want)
			}
			wantMsgs := 0
			if tt.want {
				wantMsgs = 1
			}
			if rec.count() != wantMsgs {
				t.Errorf("notifier got %d messages, want %d", rec.count(), wantMsgs)
			}
		})
	}
}

func TestDispatch_AudioOnlyForAdhan(t *testing.T) {
	s := settings.Defaults()
	s.AdhanTrack = "adhan.mp3"
	p := &fakePlayer{}
	d := newTestDispatcher(s, &recorder{}, p)

	ctx := context.Background()
	d.Dispatch(ctx, event(prayer.Asr, ledger.PreAdhan, asrAt.Add(-5*time.Minute)))
	d.Dispatch(ctx, event(prayer.Asr, ledger.Adhan, asrAt))
	d.Dispatch(ctx, event(prayer.Asr, ledger.IqamaEnd, asrAt))
	d.Close()

	if len(p.tracks) != 1 || p.tracks[0] != "adhan.mp3" {
		t.Errorf("played %v, want [adhan.mp3]", p.tracks)
	}
	if p.stops != 1 {
		t.Errorf("Close should stop audio once, got %d", p.stops)
	}
}

func TestDispatch_SilentMode(t *testing.T) {
	s := settings.Defaults()
	s.AdhanTrack = "adhan.mp3"
	s.Audio = settings.AudioSilent
	p := &fakePlayer{}
	d := newTestDispatcher(s, &recorder{}, p)

	d.Dispatch(context.Background(), event(prayer.Asr, ledger.Adhan, asrAt))
	d.Close()

	if len(p.tracks) != 0 {
		t.Errorf("silent mode played %v", p.tracks)
	}
}

func TestDispatch_FailureFlipsActive(t *testing.T) {
	rec := &recorder{err: errors.New("permission denied")}
	log, hook := test.NewNullLogger()
	d := NewDispatcher(log, settings.Static(settings.Defaults()), []Notifier{rec})

	if !d.Active() {
		t.Fatal("dispatcher should start active")
	}
	d.Dispatch(context.Background(), event(prayer.Asr, ledger.Adhan, asrAt))
	d.Close()

	if d.Active() {
		t.Error("Active() should be false after a failed notification")
	}
	if e := hook.LastEntry(); e == nil || e.Level != logrus.WarnLevel {
		t.Errorf("expected a warning, got %v", e)
	}

	rec.err = nil
	d.Dispatch(context.Background(), event(prayer.Isha, ledger.Adhan, asrAt))
	d.Close()
	if !d.Active() {
		t.Error("Active() should recover after a successful notification")
	}
}

func TestDispatch_DoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	slow := NotifierFunc(func(ctx context.Context, _ Message) error {
		<-release
		return nil
	})
	log, _ := test.NewNullLogger()
	d := NewDispatcher(log, settings.Static(settings.Defaults()), []Notifier{slow})

	done := make(chan struct{})
	go func() {
		d.Dispatch(context.Background(), event(prayer.Asr, ledger.Adhan, asrAt))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a slow notifier")
	}
	close(release)
	d.Close()
}

// ---------------------------------------------------------------------------
// MQTT
// ---------------------------------------------------------------------------

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, payload: payload.([]byte)})
	return newFakeToken(p.err)
}

func TestMQTT_Notify(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMQTT(pub, "masjid/main")

	msg := NewMessage(event(prayer.Asr, ledger.Adhan, asrAt), "15:04")
	if err := m.Notify(context.Background(), msg); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].topic != "masjid/main/notify" {
		t.Fatalf("published %+v", pub.msgs)
	}

	var got Message
	if err := json.Unmarshal(pub.msgs[0].payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.Title != "Time for Asr" || got.Event.Prayer != prayer.Asr {
		t.Errorf("decoded %+v", got)
	}
}

func TestMQTT_PlayAndStop(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMQTT(pub, "")

	if err := m.Play(context.Background(), "adhan.mp3"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(pub.msgs) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(pub.msgs))
	}
	if pub.msgs[0].topic != "prayer/audio" || string(pub.msgs[0].payload) != `{"action":"play","track":"adhan.mp3"}` {
		t.Errorf("play publish = %s %s", pub.msgs[0].topic, pub.msgs[0].payload)
	}
	if string(pub.msgs[1].payload) != `{"action":"stop"}` {
		t.Errorf("stop payload = %s", pub.msgs[1].payload)
	}
}

func TestMQTT_PublishError(t *testing.T) {
	m := NewMQTT(&fakePublisher{err: errors.New("not connected")}, "")
	if err := m.Notify(context.Background(), Message{}); err == nil {
		t.Error("expected publish error")
	}
}

// ---------------------------------------------------------------------------
// Telegram
// ---------------------------------------------------------------------------

type fakeSender struct {
	to   telebot.Recipient
	text string
	err  error
}

func (s *fakeSender) Send(to telebot.Recipient, what interface{}, _ ...interface{}) (*telebot.Message, error) {
	s.to = to
	s.text, _ = what.(string)
	return &telebot.Message{}, s.err
}

func TestTelegram_Notify(t *testing.T) {
	s := &fakeSender{}
	tg := NewTelegram(s, 4242)

	msg := NewMessage(event(prayer.Asr, ledger.Adhan, asrAt), "15:04")
	if err := tg.Notify(context.Background(), msg); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if s.to.Recipient() != "4242" {
		t.Errorf("recipient = %q", s.to.Recipient())
	}
	if s.text != "Time for Asr\nAdhan for Asr at 15:30" {
		t.Errorf("text = %q", s.text)
	}
}

func TestTelegram_CancelledContext(t *testing.T) {
	s := &fakeSender{}
	tg := NewTelegram(s, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tg.Notify(ctx, Message{Title: "x"}); err == nil {
		t.Error("expected context error")
	}
	if s.to != nil {
		t.Error("should not send with a cancelled context")
	}
}

func TestNewTelegramBot_EmptyToken(t *testing.T) {
	if _, err := NewTelegramBot(""); err == nil {
		t.Error("expected error for empty token")
	}
}

// ---------------------------------------------------------------------------
// ExecPlayer
// ---------------------------------------------------------------------------

func TestNewExecPlayer_Empty(t *testing.T) {
	log, _ := test.NewNullLogger()
	if _, err := NewExecPlayer(log, "   "); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestExecPlayer_MissingBinary(t *testing.T) {
	log, _ := test.NewNullLogger()
	p, err := NewExecPlayer(log, "definitely-not-a-player-binary --quiet")
	if err != nil {
		t.Fatalf("NewExecPlayer: %v", err)
	}
	if err := p.Play(context.Background(), "adhan.mp3"); err == nil {
		t.Error("expected error starting a missing binary")
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop with nothing playing: %v", err)
	}
}
