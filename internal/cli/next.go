package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-notifier/internal/countdown"
	"github.com/smokyabdulrahman/prayer-notifier/internal/logger"
	"github.com/smokyabdulrahman/prayer-notifier/internal/prayer"
	"github.com/smokyabdulrahman/prayer-notifier/internal/settings"
	"github.com/smokyabdulrahman/prayer-notifier/internal/store"
)

var flagFormat string

func newNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the next prayer with countdown",
		Long: "Display the next upcoming prayer time with a countdown. Inside an Iqama\n" +
			"window the target is the Iqama instead. Suitable for status bars such as tmux.",
		RunE: runNext,
	}

	cmd.Flags().StringVar(&flagFormat, "format", prayer.FormatFull, "Display format: time-remaining, next-prayer-time, name-and-time, name-and-remaining, short-name-and-time, short-name-and-remaining, countdown, full, or a custom Go template (e.g. '{{.Name}} in {{.Remaining}}')")

	return cmd
}

func runNext(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}

	// One tick of the same engine the daemon runs, without notifications.
	st := store.New(s.source, logger.Component(s.log, "store"))
	today, err := s.source.Today(ctx, s.key, time.Now())
	if err != nil {
		return err
	}
	if err := st.Load(ctx, s.key, today); err != nil {
		return err
	}

	quiet := s.settings
	quiet.Enabled = false
	engine := countdown.New(st, nil, nil, settings.Static(quiet), logger.Component(s.log, "countdown"))
	d := engine.Tick(ctx)

	if FlagJSON {
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(stdout(cmd), string(data))
		return nil
	}

	if d.NoData {
		// Keep status bars stable rather than failing.
		fmt.Fprint(stdout(cmd), countdown.NoCountdown)
		return nil
	}
	fmt.Fprint(stdout(cmd), prayer.FormatOutput(d.Period, flagFormat, timeLayout(s.cfg)))
	return nil
}
