// Package settings holds the notification and Iqama preferences consumed by
// the countdown engine and the dispatcher.
package settings

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/smokyabdulrahman/prayer-notifier/internal/prayer"
)

// AudioMode selects what is played at the Adhan.
type AudioMode string

const (
	AudioFull    AudioMode = "full"
	AudioTakbeer AudioMode = "takbeer"
	AudioSilent  AudioMode = "silent"
)

// ParseAudioMode validates an audio mode string.
func ParseAudioMode(s string) (AudioMode, error) {
	switch m := AudioMode(s); m {
	case AudioFull, AudioTakbeer, AudioSilent:
		return m, nil
	}
	return "", fmt.Errorf("invalid audio mode %q: must be full, takbeer or silent", s)
}

// PrayerSettings are the per-prayer notification switches.
type PrayerSettings struct {
	Enabled      bool          `json:"enabled"`
	PreAdhanLead time.Duration `json:"pre_adhan_lead"`
}

// Settings is an immutable snapshot; replace it wholesale through a Holder.
type Settings struct {
	Enabled        bool                           `json:"enabled"`
	Prayers        map[prayer.Name]PrayerSettings `json:"prayers"`
	IqamaDefault   time.Duration                  `json:"iqama_default"`
	IqamaOverrides map[prayer.Name]time.Duration  `json:"iqama_overrides,omitempty"`
	NotifyIqamaEnd bool                           `json:"notify_iqama_end"`
	TrackImsak     bool                           `json:"track_imsak"`
	Audio          AudioMode                      `json:"audio"`
	AdhanTrack     string                         `json:"adhan_track,omitempty"`
	TakbeerTrack   string                         `json:"takbeer_track,omitempty"`
}

// DefaultIqama are the minutes between Adhan and Iqama used by most mosques.
var DefaultIqama = map[prayer.Name]time.Duration{
	prayer.Fajr:    25 * time.Minute,
	prayer.Dhuhr:   20 * time.Minute,
	prayer.Asr:     25 * time.Minute,
	prayer.Maghrib: 10 * time.Minute,
	prayer.Isha:    20 * time.Minute,
}

// RamadanIqama is the shorter preset used during Ramadan.
var RamadanIqama = map[prayer.Name]time.Duration{
	prayer.Fajr:    15 * time.Minute,
	prayer.Dhuhr:   15 * time.Minute,
	prayer.Asr:     15 * time.Minute,
	prayer.Maghrib: 5 * time.Minute,
	prayer.Isha:    15 * time.Minute,
}

// Defaults returns notifications enabled for the five prayers with lead times
// of 15 minutes before Fajr, 10 before Isha and 5 for the rest.
func Defaults() Settings {
	return Settings{
		Enabled: true,
		Prayers: map[prayer.Name]PrayerSettings{
			prayer.Fajr:    {Enabled: true, PreAdhanLead: 15 * time.Minute},
			prayer.Sunrise: {Enabled: false},
			prayer.Dhuhr:   {Enabled: true, PreAdhanLead: 5 * time.Minute},
			prayer.Asr:     {Enabled: true, PreAdhanLead: 5 * time.Minute},
			prayer.Maghrib: {Enabled: true, PreAdhanLead: 5 * time.Minute},
			prayer.Isha:    {Enabled: true, PreAdhanLead: 10 * time.Minute},
		},
		IqamaDefault:   15 * time.Minute,
		IqamaOverrides: copyDurations(DefaultIqama),
		NotifyIqamaEnd: true,
		Audio:          AudioFull,
	}
}

// Iqama returns the Iqama window for n. Ineligible prayers get zero.
func (s Settings) Iqama(n prayer.Name) time.Duration {
	if !n.TriggerEligible() {
		return 0
	}
	if d, ok := s.IqamaOverrides[n]; ok {
		return d
	}
	return s.IqamaDefault
}

// For returns the per-prayer settings; unknown prayers are disabled.
func (s Settings) For(n prayer.Name) PrayerSettings {
	return s.Prayers[n]
}

// Allows reports whether both the global and the per-prayer switch are on.
func (s Settings) Allows(n prayer.Name) bool {
	return s.Enabled && s.Prayers[n].Enabled
}

// Track returns the audio track for the Adhan, or "" when silent.
func (s Settings) Track() string {
	switch s.Audio {
	case AudioFull:
		return s.AdhanTrack
	case AudioTakbeer:
		return s.TakbeerTrack
	}
	return ""
}

// ResolveOptions adapts s for prayer.Resolve.
func (s Settings) ResolveOptions() prayer.ResolveOptions {
	return prayer.ResolveOptions{TrackImsak: s.TrackImsak, Iqama: s.Iqama}
}

// Validate checks for negative durations and unknown audio modes.
func (s Settings) Validate() error {
	if s.IqamaDefault < 0 {
		return fmt.Errorf("iqama default must not be negative")
	}
	for n, d := range s.IqamaOverrides {
		if d < 0 {
			return fmt.Errorf("iqama for %s must not be negative", n)
		}
	}
	for n, p := range s.Prayers {
		if p.PreAdhanLead < 0 {
			return fmt.Errorf("pre-adhan lead for %s must not be negative", n)
		}
	}
	if _, err := ParseAudioMode(string(s.Audio)); err != nil {
		return err
	}
	return nil
}

func copyDurations(m map[prayer.Name]time.Duration) map[prayer.Name]time.Duration {
	out := make(map[prayer.Name]time.Duration, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Provider supplies the settings in effect for the current tick.
type Provider interface {
	Settings() Settings
}

// Static is a Provider that never changes.
type Static Settings

// Settings returns s.
func (s Static) Settings() Settings { return Settings(s) }

// Holder is a Provider whose value can be swapped at runtime. Readers see
// either the old or the new snapshot, never a mix.
type Holder struct {
	v atomic.Pointer[Settings]
}

// NewHolder returns a Holder initialised with s.
func NewHolder(s Settings) *Holder {
	h := &Holder{}
	h.Store(s)
	return h
}

// Settings returns the current snapshot.
func (h *Holder) Settings() Settings {
	return *h.v.Load()
}

// Store replaces the snapshot. It takes effect on the next tick.
func (h *Holder) Store(s Settings) {
	h.v.Store(&s)
}
