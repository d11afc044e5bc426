// Package config provides persistent configuration for the prayer-notifier CLI.
//
// Configuration is stored as JSON at ~/.config/prayer-notifier/config.json
// (XDG-compliant). PRAYER_* environment variables, optionally loaded from a
// .env file, override the file. The merge priority is:
// CLI flags > environment > config file > defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/smokyabdulrahman/prayer-notifier/internal/ledger"
	"github.com/smokyabdulrahman/prayer-notifier/internal/prayer"
	"github.com/smokyabdulrahman/prayer-notifier/internal/settings"
)

const (
	configDirName  = "prayer-notifier"
	configFileName = "config.json"
	envFileName    = ".env"
	envPrefix      = "PRAYER_"
)

// ValidKeys lists all config keys that can be set via `config set`.
var ValidKeys = []string{
	"city", "country",
	"latitude", "longitude",
	"method", "school",
	"time_format",
	"prayers",
	"cache_dir",
	"notify", "notify_prayers", "pre_adhan",
	"iqama_minutes", "iqama", "iqama_end",
	"imsak",
	"audio_mode", "adhan_track", "takbeer_track", "player_cmd",
	"ledger", "ledger_path", "redis_addr", "postgres_dsn",
	"mqtt_broker", "mqtt_topic",
	"telegram_token", "telegram_chat",
	"listen_addr",
	"log_level", "log_format",
}

// Config holds all user-configurable settings.
// Zero values mean "not set" (use defaults or auto-detect).
type Config struct {
	City       string  `json:"city,omitempty"`
	Country    string  `json:"country,omitempty"`
	Latitude   float64 `json:"latitude,omitempty"`
	Longitude  float64 `json:"longitude,omitempty"`
	Method     *int    `json:"method,omitempty"`      // pointer so we can distinguish "not set" from 0
	School     *int    `json:"school,omitempty"`      // pointer so we can distinguish "not set" from 0
	TimeFormat string  `json:"time_format,omitempty"` // "12h" or "24h"
	Prayers    string  `json:"prayers,omitempty"`     // comma-separated list
	CacheDir   string  `json:"cache_dir,omitempty"`

	Notify        *bool  `json:"notify,omitempty"`
	NotifyPrayers string `json:"notify_prayers,omitempty"` // comma-separated list
	PreAdhan      string `json:"pre_adhan,omitempty"`      // "10" or "fajr=15,isha=10"
	IqamaMinutes  *int   `json:"iqama_minutes,omitempty"`
	Iqama         string `json:"iqama,omitempty"` // "standard", "ramadan", "none" or "fajr=25,..."
	IqamaEnd      *bool  `json:"iqama_end,omitempty"`
	Imsak         *bool  `json:"imsak,omitempty"`

	AudioMode    string `json:"audio_mode,omitempty"`
	AdhanTrack   string `json:"adhan_track,omitempty"`
	TakbeerTrack string `json:"takbeer_track,omitempty"`
	PlayerCmd    string `json:"player_cmd,omitempty"`

	Ledger      string `json:"ledger,omitempty"`
	LedgerPath  string `json:"ledger_path,omitempty"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	PostgresDSN string `json:"postgres_dsn,omitempty"`

	MQTTBroker    string `json:"mqtt_broker,omitempty"`
	MQTTTopic     string `json:"mqtt_topic,omitempty"`
	TelegramToken string `json:"telegram_token,omitempty"`
	TelegramChat  int64  `json:"telegram_chat,omitempty"`

	ListenAddr string `json:"listen_addr,omitempty"`
	LogLevel   string `json:"log_level,omitempty"`
	LogFormat  string `json:"log_format,omitempty"`
}

// Defaults returns a Config with all default values applied.
func Defaults() Config {
	method := -1
	school := -1
	return Config{
		Method:     &method,
		School:     &school,
		TimeFormat: "24h",
		AudioMode:  string(settings.AudioFull),
		Ledger:     ledger.BackendFile,
		MQTTTopic:  "prayer",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Dir returns the config directory path.
// It respects $XDG_CONFIG_HOME if set, otherwise uses ~/.config/.
func Dir() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, configDirName), nil
}

// Path returns the full path to the config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads the config file from disk.
// If the file does not exist, it returns an empty Config (not an error).
// If the file exists but is invalid JSON, it returns an error.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	return LoadFrom(path)
}

// LoadFrom reads the config from a specific file path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Config{}
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadDotEnv loads .env from the working directory and the config directory
// into the process environment. Variables already set are not overwritten.
// Missing files are ignored.
func LoadDotEnv() error {
	candidates := []string{envFileName}
	if dir, err := Dir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, envFileName))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return envPrefix + strings.ToUpper(key)
}

// ApplyEnv overrides fields from environment variables named by EnvName.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, key := range ValidKeys {
		value, ok := lookup(EnvName(key))
		if !ok || value == "" {
			continue
		}
		if err := c.Set(key, value); err != nil {
			return fmt.Errorf("%s: %w", EnvName(key), err)
		}
	}
	return nil
}

// Save writes the config to disk, creating the directory if needed.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}

	return c.SaveTo(path)
}

// SaveTo writes the config to a specific file path. The file may hold
// credentials, so it is only readable by the owner.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Reset deletes the config file.
func Reset() error {
	path, err := Path()
	if err != nil {
		return err
	}

	return ResetAt(path)
}

// ResetAt deletes the config file at a specific path.
func ResetAt(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}
	return nil
}

// Set sets a config key to the given value.
// It validates the key name and parses the value into the correct type.
func (c *Config) Set(key, value string) error {
	switch key {
	case "city":
		c.City = value
	case "country":
		c.Country = value
	case "latitude":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid latitude %q: must be a number", value)
		}
		if v < -90 || v > 90 {
			return fmt.Errorf("invalid latitude %q: must be between -90 and 90", value)
		}
		c.Latitude = v
	case "longitude":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid longitude %q: must be a number", value)
		}
		if v < -180 || v > 180 {
			return fmt.Errorf("invalid longitude %q: must be between -180 and 180", value)
		}
		c.Longitude = v
	case "method":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid method %q: must be an integer", value)
		}
		if v < 0 || v > 23 {
			return fmt.Errorf("invalid method %q: must be between 0 and 23", value)
		}
		c.Method = &v
	case "school":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid school %q: must be an integer", value)
		}
		if v != 0 && v != 1 {
			return fmt.Errorf("invalid school %q: must be 0 (Shafi) or 1 (Hanafi)", value)
		}
		c.School = &v
	case "time_format":
		if value != "12h" && value != "24h" {
			return fmt.Errorf("invalid time_format %q: must be \"12h\" or \"24h\"", value)
		}
		c.TimeFormat = value
	case "prayers":
		if _, err := prayer.ParseNames(value); err != nil {
			return fmt.Errorf("invalid prayers list: %w", err)
		}
		c.Prayers = value
	case "cache_dir":
		c.CacheDir = value
	case "notify":
		v, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Notify = &v
	case "notify_prayers":
		names, err := prayer.ParseNames(value)
		if err != nil {
			return fmt.Errorf("invalid notify_prayers list: %w", err)
		}
		for _, n := range names {
			if !n.TriggerEligible() {
				return fmt.Errorf("invalid notify_prayers list: %s has no notifications", n)
			}
		}
		c.NotifyPrayers = value
	case "pre_adhan":
		if _, err := parseMinutesMap(value); err != nil {
			return fmt.Errorf("invalid pre_adhan %q: %w", value, err)
		}
		c.PreAdhan = value
	case "iqama_minutes":
		v, err := strconv.Atoi(value)
		if err != nil || v < 0 || v > 120 {
			return fmt.Errorf("invalid iqama_minutes %q: must be between 0 and 120", value)
		}
		c.IqamaMinutes = &v
	case "iqama":
		switch value {
		case "standard", "ramadan", "none":
		default:
			if _, err := parseMinutesMap(value); err != nil {
				return fmt.Errorf("invalid iqama %q: use standard, ramadan, none or prayer=minutes pairs", value)
			}
		}
		c.Iqama = value
	case "iqama_end":
		v, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.IqamaEnd = &v
	case "imsak":
		v, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Imsak = &v
	case "audio_mode":
		if _, err := settings.ParseAudioMode(value); err != nil {
			return err
		}
		c.AudioMode = value
	case "adhan_track":
		c.AdhanTrack = value
	case "takbeer_track":
		c.TakbeerTrack = value
	case "player_cmd":
		c.PlayerCmd = value
	case "ledger":
		switch value {
		case ledger.BackendMemory, ledger.BackendFile, ledger.BackendRedis, ledger.BackendPostgres:
		default:
			return fmt.Errorf("invalid ledger %q: must be memory, file, redis or postgres", value)
		}
		c.Ledger = value
	case "ledger_path":
		c.LedgerPath = value
	case "redis_addr":
		c.RedisAddr = value
	case "postgres_dsn":
		c.PostgresDSN = value
	case "mqtt_broker":
		c.MQTTBroker = value
	case "mqtt_topic":
		c.MQTTTopic = strings.Trim(value, "/")
	case "telegram_token":
		c.TelegramToken = value
	case "telegram_chat":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid telegram_chat %q: must be a chat ID", value)
		}
		c.TelegramChat = v
	case "listen_addr":
		c.ListenAddr = value
	case "log_level":
		switch value {
		case "trace", "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("invalid log_level %q", value)
		}
		c.LogLevel = value
	case "log_format":
		if value != "text" && value != "json" {
			return fmt.Errorf("invalid log_format %q: must be \"text\" or \"json\"", value)
		}
		c.LogFormat = value
	default:
		return fmt.Errorf("unknown config key %q; valid keys: %s", key, strings.Join(ValidKeys, ", "))
	}

	return nil
}

// Get returns the string value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "city":
		return c.City, nil
	case "country":
		return c.Country, nil
	case "latitude":
		if c.Latitude == 0 {
			return "", nil
		}
		return strconv.FormatFloat(c.Latitude, 'f', -1, 64), nil
	case "longitude":
		if c.Longitude == 0 {
			return "", nil
		}
		return strconv.FormatFloat(c.Longitude, 'f', -1, 64), nil
	case "method":
		return formatIntPtr(c.Method), nil
	case "school":
		return formatIntPtr(c.School), nil
	case "time_format":
		return c.TimeFormat, nil
	case "prayers":
		return c.Prayers, nil
	case "cache_dir":
		return c.CacheDir, nil
	case "notify":
		return formatBoolPtr(c.Notify), nil
	case "notify_prayers":
		return c.NotifyPrayers, nil
	case "pre_adhan":
		return c.PreAdhan, nil
	case "iqama_minutes":
		return formatIntPtr(c.IqamaMinutes), nil
	case "iqama":
		return c.Iqama, nil
	case "iqama_end":
		return formatBoolPtr(c.IqamaEnd), nil
	case "imsak":
		return formatBoolPtr(c.Imsak), nil
	case "audio_mode":
		return c.AudioMode, nil
	case "adhan_track":
		return c.AdhanTrack, nil
	case "takbeer_track":
		return c.TakbeerTrack, nil
	case "player_cmd":
		return c.PlayerCmd, nil
	case "ledger":
		return c.Ledger, nil
	case "ledger_path":
		return c.LedgerPath, nil
	case "redis_addr":
		return c.RedisAddr, nil
	case "postgres_dsn":
		return c.PostgresDSN, nil
	case "mqtt_broker":
		return c.MQTTBroker, nil
	case "mqtt_topic":
		return c.MQTTTopic, nil
	case "telegram_token":
		return c.TelegramToken, nil
	case "telegram_chat":
		if c.TelegramChat == 0 {
			return "", nil
		}
		return strconv.FormatInt(c.TelegramChat, 10), nil
	case "listen_addr":
		return c.ListenAddr, nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	default:
		return "", fmt.Errorf("unknown config key %q", key)
	}
}

// Secret reports whether a key holds a credential that should be masked
// when displayed.
func Secret(key string) bool {
	return key == "telegram_token" || key == "postgres_dsn"
}

// Merge copies every field set in other over c.
func (c *Config) Merge(other *Config) {
	for _, key := range ValidKeys {
		if v, _ := other.Get(key); v != "" {
			_ = c.Set(key, v)
		}
	}
}

// MethodOrDefault returns the method value, falling back to the given default.
func (c *Config) MethodOrDefault(def int) int {
	if c.Method != nil {
		return *c.Method
	}
	return def
}

// SchoolOrDefault returns the school value, falling back to the given default.
func (c *Config) SchoolOrDefault(def int) int {
	if c.School != nil {
		return *c.School
	}
	return def
}

// Settings converts the notification keys into engine settings, starting
// from settings.Defaults.
func (c *Config) Settings() (settings.Settings, error) {
	s := settings.Defaults()

	if c.Notify != nil {
		s.Enabled = *c.Notify
	}

	if c.NotifyPrayers != "" {
		names, err := prayer.ParseNames(c.NotifyPrayers)
		if err != nil {
			return s, err
		}
		want := make(map[prayer.Name]bool, len(names))
		for _, n := range names {
			want[n] = true
		}
		for _, n := range prayer.Eligible {
			p := s.Prayers[n]
			p.Enabled = want[n]
			s.Prayers[n] = p
		}
	}

	if c.PreAdhan != "" {
		leads, err := parseMinutesMap(c.PreAdhan)
		if err != nil {
			return s, fmt.Errorf("pre_adhan: %w", err)
		}
		for n, d := range leads {
			p := s.Prayers[n]
			p.PreAdhanLead = d
			s.Prayers[n] = p
		}
	}

	if c.IqamaMinutes != nil {
		s.IqamaDefault = time.Duration(*c.IqamaMinutes) * time.Minute
		s.IqamaOverrides = map[prayer.Name]time.Duration{}
	}
	switch c.Iqama {
	case "", "standard":
	case "ramadan":
		s.IqamaOverrides = make(map[prayer.Name]time.Duration, len(settings.RamadanIqama))
		for n, d := range settings.RamadanIqama {
			s.IqamaOverrides[n] = d
		}
	case "none":
		s.IqamaDefault = 0
		s.IqamaOverrides = map[prayer.Name]time.Duration{}
	default:
		custom, err := parseMinutesMap(c.Iqama)
		if err != nil {
			return s, fmt.Errorf("iqama: %w", err)
		}
		for n, d := range custom {
			s.IqamaOverrides[n] = d
		}
	}

	if c.IqamaEnd != nil {
		s.NotifyIqamaEnd = *c.IqamaEnd
	}
	if c.Imsak != nil {
		s.TrackImsak = *c.Imsak
	}
	if c.AudioMode != "" {
		s.Audio = settings.AudioMode(c.AudioMode)
	}
	s.AdhanTrack = c.AdhanTrack
	s.TakbeerTrack = c.TakbeerTrack

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// parseMinutesMap parses "10" (every eligible prayer) or
// "fajr=15,isha=10" into per-prayer durations.
func parseMinutesMap(raw string) (map[prayer.Name]time.Duration, error) {
	out := make(map[prayer.Name]time.Duration)
	raw = strings.TrimSpace(raw)

	if v, err := strconv.Atoi(raw); err == nil {
		if v < 0 || v > 120 {
			return nil, fmt.Errorf("minutes must be between 0 and 120")
		}
		for _, n := range prayer.Eligible {
			out[n] = time.Duration(v) * time.Minute
		}
		return out, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		name, mins, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("expected prayer=minutes, got %q", pair)
		}
		n, err := prayer.ParseName(name)
		if err != nil {
			return nil, err
		}
		if !n.TriggerEligible() {
			return nil, fmt.Errorf("%s has no notifications", n)
		}
		v, err := strconv.Atoi(strings.TrimSpace(mins))
		if err != nil || v < 0 || v > 120 {
			return nil, fmt.Errorf("minutes for %s must be between 0 and 120", n)
		}
		out[n] = time.Duration(v) * time.Minute
	}
	return out, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: must be true or false", key, value)
	}
	return v, nil
}

func formatIntPtr(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func formatBoolPtr(p *bool) string {
	if p == nil {
		return ""
	}
	return strconv.FormatBool(*p)
}
