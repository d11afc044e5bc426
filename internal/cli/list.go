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

// maxListDays bounds how many months a single list may fetch.
const maxListDays = 90

var flagListIqama bool

// runList is the handler for the list, week and month subcommands.
func runList(cmd *cobra.Command, args []string, defaultDays int) error {
	days := defaultDays
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > maxListDays {
			return fmt.Errorf("invalid number of days: %q (must be between 1 and %d)", args[0], maxListDays)
		}
		days = n
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
	names, err := s.trackedNames()
	if err != nil {
		return err
	}
	layout := timeLayout(s.cfg)

	if FlagJSON {
		return printListJSON(stdout(cmd), s, list, names, layout)
	}

	w := stdout(cmd)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", display.Bold(fmt.Sprintf("Prayer Times - %d Days", days)))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", s.label)
	if flagListIqama {
		fmt.Fprintf(w, "  %s\n", display.Dim("Adhan/Iqama"))
	}
	fmt.Fprintln(w)

	headers := []string{"Date"}
	for _, n := range names {
		headers = append(headers, n.String())
	}
	tbl := display.NewTable(headers)

	for _, d := range list {
		row := []string{d.Schedule.Date().Format("Mon 02 Jan")}
		for _, p := range d.Schedule.Prayers(names) {
			cell := p.Time.Format(layout)
			if flagListIqama {
				if at, ok := s.iqamaAt(d.Schedule, p.Name); ok {
					cell += "/" + at.Format(layout)
				}
			}
			row = append(row, cell)
		}
		tbl.AddRow(row)
	}
	// The first day is always today in the schedule's timezone.
	tbl.SetHighlightRow(0)

	fmt.Fprint(w, tbl.Render())
	fmt.Fprintln(w)
	return nil
}

// listJSONOutput is the JSON structure for the list command.
type listJSONOutput struct {
	Location todayJSONLocation `json:"location"`
	Days     []listJSONDay     `json:"days"`
}

type listJSONDay struct {
	Date    string            `json:"date"`
	Hijri   string            `json:"hijri"`
	Timings map[string]string `json:"timings"`
	Iqama   map[string]string `json:"iqama,omitempty"`
}

func printListJSON(w io.Writer, s *session, list []day, names []prayer.Name, layout string) error {
	out := listJSONOutput{
		Location: todayJSONLocation{
			Label:     s.label,
			Timezone:  list[0].Schedule.Location().String(),
			Latitude:  list[0].Data.Meta.Latitude,
			Longitude: list[0].Data.Meta.Longitude,
		},
	}

	for _, d := range list {
		jd := listJSONDay{
			Date:    d.Schedule.DateString(),
			Hijri:   d.Data.Date.Hijri.Format(),
			Timings: make(map[string]string),
			Iqama:   make(map[string]string),
		}
		for _, p := range d.Schedule.Prayers(names) {
			key := strings.ToLower(p.Name.String())
			jd.Timings[key] = p.Time.Format(layout)
			if at, ok := s.iqamaAt(d.Schedule, p.Name); ok {
				jd.Iqama[key] = at.Format(layout)
			}
		}
		out.Days = append(out.Days, jd)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
