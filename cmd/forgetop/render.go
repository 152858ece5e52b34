package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/Strob0t/forgetop/internal/domain/agent"
	"github.com/Strob0t/forgetop/internal/domain/quality"
	"github.com/Strob0t/forgetop/internal/service"
)

// chromeLines is the number of frame lines outside the agent table.
const chromeLines = 12

// pageSize returns the configured page size, or one that fits the terminal.
func pageSize(configured int) int {
	if configured > 0 {
		return configured
	}
	fd := int(os.Stdout.Fd()) //nolint:gosec // fd fits in int
	if !term.IsTerminal(fd) {
		return agent.DefaultPageSize
	}
	_, h, err := term.GetSize(fd)
	if err != nil {
		return agent.DefaultPageSize
	}
	return max(h-chromeLines, 5)
}

// renderer redraws the dashboard whenever a store changes.
type renderer struct {
	dash *service.Dashboard
	out  io.Writer
	now  func() time.Time
}

// newRenderer returns nil when out is not a terminal; the dashboard then
// runs headless.
func newRenderer(d *service.Dashboard, out *os.File) *renderer {
	if !term.IsTerminal(int(out.Fd())) { //nolint:gosec // fd fits in int
		return nil
	}
	return &renderer{dash: d, out: out, now: time.Now}
}

// Run draws until ctx ends. Store notifications are coalesced into at most
// one pending redraw.
func (r *renderer) Run(ctx context.Context, tick time.Duration) error {
	dirty := make(chan struct{}, 1)
	mark := func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	}
	unsubs := []func(){
		r.dash.Agents.Store().Subscribe(func(service.AgentState) { mark() }),
		r.dash.View.Subscribe(func(service.View) { mark() }),
		r.dash.Projects.Subscribe(func(service.Catalog) { mark() }),
	}
	defer func() {
		for _, u := range unsubs {
			u()
		}
	}()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	r.draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-dirty:
		case <-ticker.C:
		}
		r.draw()
	}
}

func (r *renderer) draw() {
	var buf bytes.Buffer
	buf.WriteString("\x1b[H\x1b[2J")
	r.frame(&buf)
	_, _ = r.out.Write(buf.Bytes())
}

// frame formats one screen.
func (r *renderer) frame(w io.Writer) {
	page := r.dash.AgentPage()
	selected := r.dash.Agents.State().Selected
	costView, gate := r.dash.Summaries()
	now := r.now()

	c := page.Counts
	fmt.Fprintf(w, "forgetop  %d agents  running %d  queued %d  paused %d  completed %d  failed %d  cancelled %d\n",
		c.Total, c.Running, c.Queued, c.Paused, c.Completed, c.Failed, c.Cancelled)
	fmt.Fprintf(w, "filter %s  sort %s %s  page %d/%d\n\n",
		page.Params.Filter, page.Params.SortBy, page.Params.Order, page.Page.Page, max(page.TotalPages, 1))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, " \tID\tNAME\tMODEL\tSTATUS\tCOST\tTOKENS\tDURATION")
	for i := range page.Items {
		rec := &page.Items[i]
		marker := " "
		if rec.ID == selected {
			marker = ">"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t$%.2f\t%d\t%s\n",
			marker, rec.ID, rec.DisplayName(), rec.Model, rec.Status, rec.CostUSD,
			rec.Tokens.Input+rec.Tokens.Output, rec.Duration(now).Truncate(time.Second))
	}
	_ = tw.Flush()
	fmt.Fprintln(w)

	if d, ok := r.dash.Detail(selected); ok {
		fmt.Fprintf(w, "%s  %s  controls: %s", d.Record.DisplayName(), d.Record.Status, controlList(d.Controls))
		if d.Transitioning {
			fmt.Fprint(w, "  (pending)")
		}
		if d.Record.Error != nil {
			fmt.Fprintf(w, "  error: %s", d.Record.Error.Message)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, costLine(costView))
	fmt.Fprintln(w, qualityLine(gate))
	fmt.Fprintln(w, projectLine(r.dash.Projects.State()))
}

func controlList(cs agent.ControlSet) string {
	list := cs.List()
	if len(list) == 0 {
		return "none"
	}
	names := make([]string, len(list))
	for i, c := range list {
		names[i] = string(c)
	}
	return strings.Join(names, " ")
}

const meterWidth = 20

func costLine(v service.CostView) string {
	filled := int(v.Percentage / 100 * meterWidth)
	bar := strings.Repeat("#", filled) + strings.Repeat("-", meterWidth-filled)
	line := fmt.Sprintf("cost     [%s] %5.1f%% of $%.2f %s  %s", bar, v.Percentage, v.Budget, v.Period, v.Color)
	if v.OverBudget {
		line += "  OVER BUDGET"
	}
	if v.Projection != nil {
		line += fmt.Sprintf("  projected $%.2f", v.Projection.Projected)
	}
	if v.Estimated {
		line += "  (estimated)"
	}
	return line
}

func qualityLine(g quality.Gate) string {
	if g.Color == quality.ColorGray {
		return "quality  n/a"
	}
	verdict := "pass"
	if !g.Pass {
		verdict = "fail"
	}
	line := fmt.Sprintf("quality  %.1f / %.0f %s  %s", g.Score, g.Threshold, verdict, g.Color)
	if g.Sparkline != "" {
		line += "  " + g.Sparkline
	}
	if g.RetryHint {
		line += "  retry suggested"
	}
	return line
}

func projectLine(c service.Catalog) string {
	if len(c.Projects) == 0 {
		return "projects none"
	}
	names := make([]string, len(c.Projects))
	for i, p := range c.Projects {
		names[i] = p.Name
		if p.ID == c.Selected {
			names[i] = "*" + p.Name
		}
	}
	return "projects " + strings.Join(names, "  ")
}
