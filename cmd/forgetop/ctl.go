package main

import (
	"context"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Strob0t/forgetop/internal/config"
	"github.com/Strob0t/forgetop/internal/domain/agent"
	"github.com/Strob0t/forgetop/internal/domain/quality"
	"github.com/Strob0t/forgetop/internal/service"
)

const defaultCtlAddr = "127.0.0.1:8787"

// runCtl dispatches ctl subcommands against a running dashboard's API.
func runCtl(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printCtlHelp()
		return nil
	}

	switch args[0] {
	case "agents":
		return runCtlAgents(args[1:])
	case "show":
		return runCtlShow(args[1:])
	case "select":
		return runCtlSelect(args[1:])
	case "control":
		return runCtlControl(args[1:])
	case "cost":
		return runCtlCost(args[1:])
	case "quality":
		return runCtlQuality(args[1:])
	default:
		printCtlHelp()
		return fmt.Errorf("unknown ctl command: %s", args[0])
	}
}

func printCtlHelp() {
	fmt.Fprintf(os.Stderr, `Usage: forgetop ctl <command> [options]

Commands:
  agents    List agents (filter, sort and page like the dashboard)
  show      Show one agent with its enabled controls
  select    Select the agent the dashboard details
  control   Pause, resume, cancel or retry an agent
  cost      Show the budget meter
  quality   Show the quality gate
  help      Show this help message

Examples:
  forgetop ctl agents --filter running --sort cost --order desc
  forgetop ctl show --agent a1
  forgetop ctl select --agent a1
  forgetop ctl control --agent a1 --control pause
  forgetop ctl cost --addr 10.0.0.5:8787
`)
}

// ctlClient talks to the headless API.
type ctlClient struct {
	base string
	http *http.Client
}

func addrFlag(fs *flag.FlagSet) *string {
	addr := defaultCtlAddr
	if cfg, err := config.Load(); err == nil && cfg.Server.Addr != "" {
		addr = cfg.Server.Addr
	}
	return fs.String("addr", addr, "dashboard API address")
}

func dialCtl(addr string) *ctlClient {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return &ctlClient{base: "http://" + addr, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *ctlClient) do(method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact dashboard: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s (%d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}

func runCtlAgents(args []string) error {
	fs := flag.NewFlagSet("agents", flag.ContinueOnError)
	addr := addrFlag(fs)
	filter := fs.String("filter", "", "status to show, or all")
	sortBy := fs.String("sort", "", "start_time, cost, model or status")
	order := fs.String("order", "", "asc or desc")
	page := fs.Int("page", 0, "page number")
	size := fs.Int("page-size", 0, "agents per page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := url.Values{}
	setQuery(q, "filter", *filter)
	setQuery(q, "sort_by", *sortBy)
	setQuery(q, "order", *order)
	if *page > 0 {
		q.Set("page", fmt.Sprint(*page))
	}
	if *size > 0 {
		q.Set("page_size", fmt.Sprint(*size))
	}

	var p service.AgentPage
	if err := dialCtl(*addr).do(http.MethodGet, "/api/v1/agents?"+q.Encode(), nil, &p); err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	if p.Total == 0 {
		fmt.Println("No agents found.")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tMODEL\tSTATUS\tCOST\tTOKENS\tDURATION")
	for i := range p.Items {
		r := &p.Items[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t$%.2f\t%d\t%s\n",
			r.ID, r.DisplayName(), r.Model, r.Status, r.CostUSD, r.Tokens.Input+r.Tokens.Output, r.Duration(now).Truncate(time.Second))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "page %d/%d, %d of %d agents\n", p.Page.Page, max(p.TotalPages, 1), len(p.Items), p.Total)
	return nil
}

func runCtlShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	addr := addrFlag(fs)
	id := fs.String("agent", "", "agent id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--agent is required")
	}

	var d service.AgentDetail
	if err := dialCtl(*addr).do(http.MethodGet, "/api/v1/agents/"+url.PathEscape(*id), nil, &d); err != nil {
		return fmt.Errorf("show agent: %w", err)
	}
	printDetail(os.Stdout, &d)
	return nil
}

func runCtlSelect(args []string) error {
	fs := flag.NewFlagSet("select", flag.ContinueOnError)
	addr := addrFlag(fs)
	id := fs.String("agent", "", "agent id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--agent is required")
	}

	var d service.AgentDetail
	req := map[string]string{"id": *id}
	if err := dialCtl(*addr).do(http.MethodPut, "/api/v1/agents/selected", req, &d); err != nil {
		return fmt.Errorf("select agent: %w", err)
	}
	printDetail(os.Stdout, &d)
	return nil
}

func runCtlControl(args []string) error {
	fs := flag.NewFlagSet("control", flag.ContinueOnError)
	addr := addrFlag(fs)
	id := fs.String("agent", "", "agent id (required)")
	ctl := fs.String("control", "", "pause, resume, cancel or retry (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--agent is required")
	}
	c, err := agent.ParseControl(*ctl)
	if err != nil {
		return err
	}

	var d service.AgentDetail
	path := "/api/v1/agents/" + url.PathEscape(*id) + "/controls/" + string(c)
	if err := dialCtl(*addr).do(http.MethodPost, path, nil, &d); err != nil {
		return fmt.Errorf("%s: %w", c, err)
	}
	fmt.Fprintf(os.Stderr, "%s requested for %s\n", c, *id)
	printDetail(os.Stdout, &d)
	return nil
}

func runCtlCost(args []string) error {
	fs := flag.NewFlagSet("cost", flag.ContinueOnError)
	addr := addrFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	var v service.CostView
	if err := dialCtl(*addr).do(http.MethodGet, "/api/v1/cost", nil, &v); err != nil {
		return fmt.Errorf("cost: %w", err)
	}
	fmt.Println(costLine(v))
	if len(v.Breakdown) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "MODEL\tCOST")
		for _, m := range v.Breakdown {
			_, _ = fmt.Fprintf(w, "%s\t$%.2f\n", m.Model, m.TotalCostUSD)
		}
		return w.Flush()
	}
	return nil
}

func runCtlQuality(args []string) error {
	fs := flag.NewFlagSet("quality", flag.ContinueOnError)
	addr := addrFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	var g quality.Gate
	if err := dialCtl(*addr).do(http.MethodGet, "/api/v1/quality", nil, &g); err != nil {
		return fmt.Errorf("quality: %w", err)
	}
	fmt.Println(qualityLine(g))
	for _, d := range g.Dimensions {
		fmt.Printf("  %-16s %5.1f  %s\n", d.Name, d.Score, d.Color)
	}
	return nil
}

func printDetail(w io.Writer, d *service.AgentDetail) {
	fmt.Fprintf(w, "%s (%s)  %s  %s\n", d.Record.DisplayName(), d.Record.ID, d.Record.Model, d.Record.Status)
	fmt.Fprintf(w, "controls  %s", controlList(d.Controls))
	if d.Transitioning {
		fmt.Fprint(w, "  (pending)")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "usage     $%.2f of $%.2f  %s\n", d.Usage.Spent, d.Usage.Budget, d.Usage.Color)
	fmt.Fprintf(w, "duration  %s\n", d.Duration.Truncate(time.Second))
	if d.Record.Error != nil {
		fmt.Fprintf(w, "error     %s\n", d.Record.Error.Message)
	}
}

func setQuery(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
