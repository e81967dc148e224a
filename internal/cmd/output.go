package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/dokzlo13/lifxd/internal/lifx"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func renderLights(w io.Writer, lights []lifx.Light) {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Label", "Power", "Brightness", "Color", "Group", "Location", "Connected"})
	on := 0
	for _, l := range lights {
		if l.IsOn() {
			on++
		}
		t.AppendRow(table.Row{
			l.ID,
			l.Label,
			l.Power,
			fmt.Sprintf("%.0f%%", l.Brightness*100),
			formatColor(l.Color),
			l.Group.Name,
			l.Location.Name,
			l.Connected,
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d lights", len(lights)), fmt.Sprintf("%d on", on), "", "", "", "", ""})
	fmt.Fprintln(w, t.Render())
}

func renderScenes(w io.Writer, scenes []lifx.Scene) {
	t := newTable()
	t.AppendHeader(table.Row{"UUID", "Name", "Lights", "Updated"})
	for _, s := range scenes {
		updated := ""
		if s.UpdatedAt > 0 {
			updated = time.Unix(s.UpdatedAt, 0).UTC().Format(time.RFC3339)
		}
		t.AppendRow(table.Row{s.UUID, s.Name, len(s.States), updated})
	}
	fmt.Fprintln(w, t.Render())
}

func renderColor(w io.Writer, c *lifx.Color) {
	t := newTable()
	t.AppendHeader(table.Row{"Hue", "Saturation", "Brightness", "Kelvin"})
	t.AppendRow(table.Row{optFloat(c.Hue), optFloat(c.Saturation), optFloat(c.Brightness), optInt(c.Kelvin)})
	fmt.Fprintln(w, t.Render())
}

func renderResults(w io.Writer, res *lifx.Results) {
	if res == nil {
		fmt.Fprintln(w, "ok")
		return
	}
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Label", "Status"})
	for _, r := range res.Results {
		t.AppendRow(table.Row{r.ID, r.Label, r.Status})
	}
	if failed := len(res.Failed()); failed > 0 {
		t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d failed", failed)})
	}
	fmt.Fprintln(w, t.Render())
}

func printRateLimit(w io.Writer, rl *lifx.RateLimit) {
	if rl == nil {
		fmt.Fprintln(w, "rate limit: unknown (no limit headers seen)")
		return
	}
	fmt.Fprintf(w, "rate limit: %d/%d remaining, resets at %s\n",
		rl.Remaining, rl.Limit, rl.ResetTime().UTC().Format(time.RFC3339))
}

func formatColor(c lifx.Color) string {
	if c.Saturation != nil && *c.Saturation == 0 && c.Kelvin != nil {
		return fmt.Sprintf("%dK", *c.Kelvin)
	}
	if c.Hue == nil {
		return ""
	}
	sat := 0.0
	if c.Saturation != nil {
		sat = *c.Saturation
	}
	return fmt.Sprintf("hue:%.0f sat:%.2f", *c.Hue, sat)
}

func optFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func optInt(i *int) string {
	if i == nil {
		return "-"
	}
	return strconv.Itoa(*i)
}
