package prayer

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Format constants for display modes.
const (
	FormatTimeRemaining      = "time-remaining"
	FormatNextPrayerTime     = "next-prayer-time"
	FormatNameAndTime        = "name-and-time"
	FormatNameAndRemaining   = "name-and-remaining"
	FormatShortNameAndTime   = "short-name-and-time"
	FormatShortNameAndRemain = "short-name-and-remaining"
	FormatCountdownMode      = "countdown"
	FormatFull               = "full"
)

// FormatData is the data passed to custom Go templates.
type FormatData struct {
	Name      string // Target name, e.g. "Asr" or "Iqama Dhuhr"
	ShortName string // Abbreviated name, e.g. "A"
	Current   string // Prayer whose period we are in, empty before Fajr
	Time      string // Formatted target time, e.g. "15:02" or "3:02 PM"
	Remaining string // Time remaining, e.g. "2h 15m"
	Countdown string // Time remaining as HH:MM:SS
	Hours     int    // Whole hours remaining
	Minutes   int    // Remaining minutes after hours
	Iqama     bool   // True while inside an Iqama window
	Urgent    bool   // True when less than 15 minutes remain
	Approx    bool   // True when the times were projected from another day
}

// FormatOutput formats a resolved period for display. The target is the next
// prayer, or the end of the Iqama window while one is running.
// timeFormat should be "15:04" for 24h or "3:04 PM" for 12h.
//
// If mode contains "{{", it is treated as a custom Go template string over
// FormatData.
//
// Example: "{{.Name}} in {{.Remaining}}" -> "Asr in 2h 15m"
func FormatOutput(p Period, mode string, timeFormat string) string {
	name, short := p.Next.String(), p.Next.Short()
	at, d := p.NextAt, p.UntilNext
	if p.InIqama {
		name, short = "Iqama "+p.Current.String(), "Iq "+p.Current.Short()
		at, d = p.IqamaEnd, p.IqamaRemaining
	}

	remaining := FormatRemaining(d)
	timeStr := at.Format(timeFormat)

	// Custom template mode: any format string containing "{{" is a Go template.
	if strings.Contains(mode, "{{") {
		return formatCustom(mode, FormatData{
			Name:      name,
			ShortName: short,
			Current:   p.Current.String(),
			Time:      timeStr,
			Remaining: remaining,
			Countdown: FormatCountdown(d),
			Hours:     int(d.Hours()),
			Minutes:   int(d.Minutes()) % 60,
			Iqama:     p.InIqama,
			Urgent:    IsUrgent(d),
			Approx:    p.Extrapolated,
		})
	}

	switch mode {
	case FormatTimeRemaining:
		return remaining
	case FormatNextPrayerTime:
		return timeStr
	case FormatNameAndTime:
		return fmt.Sprintf("%s %s", name, timeStr)
	case FormatNameAndRemaining:
		return fmt.Sprintf("%s %s", name, remaining)
	case FormatShortNameAndTime:
		return fmt.Sprintf("%s %s", short, timeStr)
	case FormatShortNameAndRemain:
		return fmt.Sprintf("%s %s", short, remaining)
	case FormatCountdownMode:
		return fmt.Sprintf("%s %s", name, FormatCountdown(d))
	case FormatFull:
		return fmt.Sprintf("%s %s (%s)", name, timeStr, remaining)
	default:
		// Default to name-and-time.
		return fmt.Sprintf("%s %s", name, timeStr)
	}
}

// formatCustom executes a user-provided Go template string against the FormatData.
func formatCustom(tmpl string, data FormatData) string {
	t, err := template.New("custom").Parse(tmpl)
	if err != nil {
		return fmt.Sprintf("template-err: %v", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Sprintf("template-err: %v", err)
	}

	return buf.String()
}
