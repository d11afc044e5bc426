package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-notifier/internal/api"
	"github.com/smokyabdulrahman/prayer-notifier/internal/display"
	"github.com/smokyabdulrahman/prayer-notifier/internal/prayer"
)

func runToday(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}

	now := time.Now()
	days, err := s.days(ctx, now, 1)
	if err != nil {
		return err
	}
	today := days[0]

	// Tomorrow is only needed after Isha; Resolve projects without it.
	tomorrow, err := s.source.FetchDay(ctx, s.key, today.Schedule.Date().AddDate(0, 0, 1))
	if err != nil {
		s.log.WithError(err).Debug("Tomorrow unavailable")
		tomorrow = nil
	}

	period, err := prayer.Resolve(today.Schedule, tomorrow, now, s.settings.ResolveOptions())
	if err != nil {
		return err
	}

	names, err := s.trackedNames()
	if err != nil {
		return err
	}
	v := todayView{
		session: s,
		day:     today,
		period:  period,
		names:   names,
		layout:  timeLayout(s.cfg),
		now:     now.In(today.Schedule.Location()),
	}

	if FlagJSON {
		return v.printJSON(stdout(cmd))
	}
	v.printRich(stdout(cmd))
	return nil
}

// todayView renders one day's schedule with Iqama times and the countdown.
type todayView struct {
	session *session
	day     day
	period  prayer.Period
	names   []prayer.Name
	layout  string
	now     time.Time
}

func (v todayView) printRich(w io.Writer) {
	sched := v.day.Schedule

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", display.Bold("Prayer Times"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", v.session.label)
	fmt.Fprintf(w, "  %s\n", sched.Location())
	fmt.Fprintf(w, "  %s\n", formatGregorianDate(v.now, v.day.Data))
	if hijri := v.day.Data.Date.Hijri.Format(); hijri != "" {
		fmt.Fprintf(w, "  %s\n", hijri)
	}
	fmt.Fprintln(w)

	tbl := display.NewTable([]string{"Prayer", "Adhan", "Iqama"})
	for _, p := range sched.Prayers(v.names) {
		row := []string{p.Name.String(), p.Time.Format(v.layout), ""}
		if at, ok := v.session.iqamaAt(sched, p.Name); ok {
			row[2] = at.Format(v.layout)
		}

		switch {
		case p.Name == v.period.Current && v.period.InIqama:
			tbl.AddStyledRow(display.RowPlain, row, display.Green("<- iqama in "+prayer.FormatRemaining(v.period.IqamaRemaining)))
		case p.Name == v.period.Current:
			tbl.AddStyledRow(display.RowMuted, row, "")
		case p.Name == v.period.Next && p.Time.Equal(v.period.NextAt):
			tbl.AddStyledRow(display.RowHighlight, row, "<- next in "+prayer.FormatRemaining(v.period.UntilNext))
		default:
			tbl.AddRow(row)
		}
	}
	fmt.Fprint(w, tbl.Render())

	if !v.period.NextAt.Before(sched.Date().AddDate(0, 0, 1)) {
		fmt.Fprintf(w, "\n  %s\n", display.Dim(fmt.Sprintf("Next: %s at %s (in %s)",
			v.period.Next, v.period.NextAt.Format(v.layout), prayer.FormatRemaining(v.period.UntilNext))))
	}
	fmt.Fprintln(w)
}

// formatGregorianDate returns a formatted Gregorian date string.
// Prefers API data; falls back to formatting now.
func formatGregorianDate(now time.Time, d api.Data) string {
	g := d.Date.Gregorian
	if g.Day != "" && g.Month.En != "" && g.Year != "" {
		return g.Day + " " + g.Month.En + " " + g.Year
	}
	return now.Format("02 Jan 2006")
}

// todayJSON is the JSON output structure for the root command.
type todayJSON struct {
	Location todayJSONLocation `json:"location"`
	Date     todayJSONDate     `json:"date"`
	Timings  map[string]string `json:"timings"`
	Iqama    map[string]string `json:"iqama"`
	Current  string            `json:"current"`
	Next     *todayJSONNext    `json:"next"`
	InIqama  bool              `json:"in_iqama"`
}

type todayJSONLocation struct {
	Label     string  `json:"label"`
	Timezone  string  `json:"timezone"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type todayJSONDate struct {
	Gregorian string `json:"gregorian"`
	Hijri     string `json:"hijri"`
	Ramadan   bool   `json:"ramadan"`
}

type todayJSONNext struct {
	Prayer    string `json:"prayer"`
	Time      string `json:"time"`
	Remaining string `json:"remaining"`
}

func (v todayView) printJSON(w io.Writer) error {
	sched := v.day.Schedule
	out := todayJSON{
		Location: todayJSONLocation{
			Label:     v.session.label,
			Timezone:  sched.Location().String(),
			Latitude:  v.day.Data.Meta.Latitude,
			Longitude: v.day.Data.Meta.Longitude,
		},
		Date: todayJSONDate{
			Gregorian: formatGregorianDate(v.now, v.day.Data),
			Hijri:     v.day.Data.Date.Hijri.Format(),
			Ramadan:   v.day.Data.Date.Hijri.IsRamadan(),
		},
		Timings: make(map[string]string),
		Iqama:   make(map[string]string),
		InIqama: v.period.InIqama,
	}

	for _, p := range sched.Prayers(v.names) {
		key := strings.ToLower(p.Name.String())
		out.Timings[key] = p.Time.Format(v.layout)
		if at, ok := v.session.iqamaAt(sched, p.Name); ok {
			out.Iqama[key] = at.Format(v.layout)
		}
	}
	if v.period.Current != prayer.None {
		out.Current = strings.ToLower(v.period.Current.String())
	}
	out.Next = &todayJSONNext{
		Prayer:    strings.ToLower(v.period.Next.String()),
		Time:      v.period.NextAt.Format(v.layout),
		Remaining: prayer.FormatRemaining(v.period.UntilNext),
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
