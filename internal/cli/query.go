package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-notifier/internal/display"
	"github.com/smokyabdulrahman/prayer-notifier/internal/prayer"
)

var flagQueryDays string

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <prayer>",
		Short: "Query a specific prayer's Adhan and Iqama time",
		Long:  "Query one prayer for today, or across multiple days with --days.\n\nValid prayer names: Imsak, Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}

	cmd.Flags().StringVar(&flagQueryDays, "days", "", "Number of days to show (or 'week'/'month')")

	return cmd
}

// parseDays accepts a positive count, "week" or "month".
func parseDays(raw string) (int, error) {
	switch raw {
	case "":
		return 1, nil
	case "week":
		return 7, nil
	case "month":
		return 30, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListDays {
		return 0, fmt.Errorf("invalid --days value %q: must be 1-%d, 'week', or 'month'", raw, maxListDays)
	}
	return n, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	name, err := prayer.ParseName(args[0])
	if err != nil {
		return err
	}
	days, err := parseDays(flagQueryDays)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	list, err := s.days(ctx, time.Now(), days)
	if err != nil {
		return err
	}

	rows := make([]queryRow, 0, len(list))
	layout := timeLayout(s.cfg)
	for _, d := range list {
		at, ok := d.Schedule.At(name)
		if !ok {
			return fmt.Errorf("no timing found for %s on %s", name, d.Schedule.DateString())
		}
		r := queryRow{
			Date:  d.Schedule.DateString(),
			Label: d.Schedule.Date().Format("Mon 02 Jan"),
			Hijri: d.Data.Date.Hijri.Format(),
			Time:  at.Format(layout),
		}
		if iq, ok := s.iqamaAt(d.Schedule, name); ok {
			r.Iqama = iq.Format(layout)
		}
		rows = append(rows, r)
	}

	w := stdout(cmd)
	if FlagJSON {
		return printQueryJSON(w, s, name, rows)
	}

	if days == 1 {
		line := fmt.Sprintf("%s %s", name, rows[0].Time)
		if rows[0].Iqama != "" {
			line += fmt.Sprintf(" (iqama %s)", rows[0].Iqama)
		}
		fmt.Fprintln(w, line)
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", display.Bold(fmt.Sprintf("%s Times - %d Days", name, days)))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", s.label)
	fmt.Fprintln(w)

	headers := []string{"Date", "Adhan"}
	if name.TriggerEligible() {
		headers = append(headers, "Iqama")
	}
	tbl := display.NewTable(headers)
	for _, r := range rows {
		tbl.AddRow([]string{r.Label, r.Time, r.Iqama})
	}
	tbl.SetHighlightRow(0)

	fmt.Fprint(w, tbl.Render())
	fmt.Fprintln(w)
	return nil
}

type queryRow struct {
	Date  string `json:"date"`
	Label string `json:"-"`
	Hijri string `json:"hijri"`
	Time  string `json:"time"`
	Iqama string `json:"iqama,omitempty"`
}

type queryJSON struct {
	Location todayJSONLocation `json:"location"`
	Prayer   string            `json:"prayer"`
	Days     []queryRow        `json:"days"`
}

func printQueryJSON(w io.Writer, s *session, name prayer.Name, rows []queryRow) error {
	out := queryJSON{
		Location: todayJSONLocation{Label: s.label},
		Prayer:   strings.ToLower(name.String()),
		Days:     rows,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
