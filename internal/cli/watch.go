package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-notifier/internal/config"
	"github.com/smokyabdulrahman/prayer-notifier/internal/countdown"
	"github.com/smokyabdulrahman/prayer-notifier/internal/display"
	"github.com/smokyabdulrahman/prayer-notifier/internal/ledger"
	"github.com/smokyabdulrahman/prayer-notifier/internal/logger"
	"github.com/smokyabdulrahman/prayer-notifier/internal/notify"
	"github.com/smokyabdulrahman/prayer-notifier/internal/scheduler"
	"github.com/smokyabdulrahman/prayer-notifier/internal/server"
	"github.com/smokyabdulrahman/prayer-notifier/internal/settings"
	"github.com/smokyabdulrahman/prayer-notifier/internal/store"
)

var (
	flagListen   string
	flagLedger   string
	flagInterval time.Duration
	flagStatus   bool
)

func newWatchCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the notification daemon",
		Long: "Track the countdown continuously and send Adhan, Iqama and pre-Adhan\n" +
			"notifications to the configured sinks (log, Telegram, MQTT, audio player).\n" +
			"Send SIGHUP to reload notification settings from the config file.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, version)
		},
	}

	cmd.Flags().StringVar(&flagListen, "listen", "", "Serve the status API on this address, e.g. :8080 (overrides listen_addr)")
	cmd.Flags().StringVar(&flagLedger, "ledger", "", "Trigger ledger backend: memory, file, redis or postgres (overrides config)")
	cmd.Flags().DurationVar(&flagInterval, "interval", countdown.DefaultInterval, "Countdown tick interval")
	cmd.Flags().BoolVar(&flagStatus, "status", false, "Print the countdown to stdout on every tick")

	return cmd
}

func runWatch(cmd *cobra.Command, version string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	cfg, log := s.cfg, s.log
	if flagWasSet(cmd.Flags(), cmd.Root().PersistentFlags(), "listen") {
		cfg.ListenAddr = flagListen
	}
	if flagLedger != "" {
		if err := cfg.Set("ledger", flagLedger); err != nil {
			return err
		}
	}

	// Schedules
	st := store.New(s.source, logger.Component(log, "store"))
	today, err := s.source.Today(ctx, s.key, time.Now())
	if err != nil {
		// The retry job keeps trying; the countdown shows no data meanwhile.
		log.WithError(err).Warn("Schedule unavailable at startup")
		now := time.Now().In(s.zone)
		today = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.zone)
	}
	if err := st.Load(ctx, s.key, today); err != nil {
		log.WithError(err).Debug("Initial schedule load failed")
	}

	// Ledger
	l, err := ledger.Open(ctx, ledger.Options{
		Backend:     cfg.Ledger,
		Path:        cfg.LedgerPath,
		RedisAddr:   cfg.RedisAddr,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		log.WithError(err).Warn("Ledger unavailable, triggers deduplicated in memory only")
		l = nil
	} else {
		defer l.Close()
	}

	// Notifications
	holder := settings.NewHolder(s.settings)
	sinks, err := newSinks(cfg, log)
	if err != nil {
		return err
	}
	defer sinks.close()

	dispatcher := notify.NewDispatcher(logger.Component(log, "notify"), holder, sinks.notifiers,
		notify.WithPlayer(sinks.player),
		notify.WithTimeFormat(timeLayout(cfg)),
	)
	defer dispatcher.Close()

	engine := countdown.New(st, l, dispatcher, holder, logger.Component(log, "countdown"),
		countdown.WithInterval(flagInterval),
	)

	// Housekeeping. The scheduler moves to the schedule's own zone once a
	// later load succeeds.
	zone := today.Location()
	if snap := st.Snapshot(); snap.Today != nil {
		zone = snap.Today.Location()
	}
	opts := []scheduler.Option{}
	if s.cache != nil {
		opts = append(opts, scheduler.WithCache(s.cache))
	}
	var pruner scheduler.LedgerPruner
	if l != nil {
		pruner = l
	}
	sched := scheduler.New(zone, st, pruner, logger.Component(log, "scheduler"), opts...)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	var wg sync.WaitGroup
	errc := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil {
			errc <- fmt.Errorf("countdown: %w", err)
		}
	}()

	if cfg.ListenAddr != "" {
		srv := server.New(server.Config{Addr: cfg.ListenAddr, Version: version, Ledger: cfg.Ledger},
			engine, st, dispatcher, logger.Component(log, "server"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				errc <- fmt.Errorf("status API: %w", err)
			}
		}()
	}

	if flagStatus {
		wg.Add(1)
		go func() {
			defer wg.Done()
			printStatus(ctx, cmd, engine)
		}()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	log.WithFields(logrus.Fields{
		"location": s.label,
		"ledger":   cfg.Ledger,
		"sinks":    len(sinks.notifiers),
	}).Info("Watching prayer times")

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-hup:
			reloadSettings(cmd, holder, log)
		case err := <-errc:
			runErr = err
			stop()
			break loop
		}
	}

	wg.Wait()
	log.Info("Shutting down")
	return runErr
}

// reloadSettings re-reads the config file and swaps the settings snapshot.
// The location is not reloaded; restart the daemon to change it.
func reloadSettings(cmd *cobra.Command, holder *settings.Holder, log logrus.FieldLogger) {
	file, err := config.Load()
	if err != nil {
		log.WithError(err).Warn("Settings reload failed")
		return
	}
	loadedConfig = file
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		log.WithError(err).Warn("Settings reload failed")
		return
	}
	set, err := cfg.Settings()
	if err != nil {
		log.WithError(err).Warn("Settings reload failed")
		return
	}
	holder.Store(set)
	log.Info("Settings reloaded")
}

func printStatus(ctx context.Context, cmd *cobra.Command, engine *countdown.Engine) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	w := stdout(cmd)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w)
			return
		case <-ticker.C:
			d := engine.Snapshot()
			label := d.Period.Next.String()
			if d.IqamaActive {
				label = "Iqama " + d.Period.Current.String()
			}
			if d.NoData {
				label = "no schedule"
			}
			fmt.Fprintf(w, "\r  %-14s %s ", label, display.Countdown(d))
		}
	}
}

// sinks holds the notifiers and players built from the config.
type sinks struct {
	notifiers []notify.Notifier
	player    notify.Player
	mqtt      mqtt.Client
}

func newSinks(cfg *config.Config, log *logrus.Logger) (*sinks, error) {
	out := &sinks{
		notifiers: []notify.Notifier{notify.NewLogNotifier(logger.Component(log, "notify"))},
	}
	var players notify.MultiPlayer

	if cfg.PlayerCmd != "" {
		p, err := notify.NewExecPlayer(logger.Component(log, "player"), cfg.PlayerCmd)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}

	if cfg.TelegramToken != "" || cfg.TelegramChat != 0 {
		if cfg.TelegramToken == "" || cfg.TelegramChat == 0 {
			return nil, errors.New("telegram needs both telegram_token and telegram_chat")
		}
		bot, err := notify.NewTelegramBot(cfg.TelegramToken)
		if err != nil {
			return nil, err
		}
		out.notifiers = append(out.notifiers, notify.NewTelegram(bot, cfg.TelegramChat))
	}

	if cfg.MQTTBroker != "" {
		clientID := "prayer-notifier-" + uuid.NewString()[:8]
		client, err := notify.ConnectMQTT(cfg.MQTTBroker, clientID, logger.Component(log, "mqtt"))
		if err != nil {
			return nil, err
		}
		out.mqtt = client
		m := notify.NewMQTT(client, cfg.MQTTTopic)
		out.notifiers = append(out.notifiers, m)
		players = append(players, m)
	}

	if len(players) > 0 {
		out.player = players
	}
	return out, nil
}

func (s *sinks) close() {
	if s.mqtt != nil {
		s.mqtt.Disconnect(250)
	}
}
