package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/roach88/mvvplatform/internal/config"
	"github.com/roach88/mvvplatform/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Driver  string
	Path    string
	Session string
	OrderID int64 // optional - filter to one order
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string          `json:"session"`
	Timeline []journal.Event `json:"timeline"`
	Stats    TraceStats      `json:"stats"`
}

// TraceStats holds summary statistics for a session.
type TraceStats struct {
	TotalEvents int           `json:"total_events"`
	Orders      int           `json:"orders"`
	Submitted   int           `json:"submitted"`
	Finished    int           `json:"finished"`
	Failed      int           `json:"failed"`
	Dispatched  int           `json:"dispatched"`
	Discarded   int           `json:"discarded"`
	Span        time.Duration `json:"span_ns"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the order journal of a session",
		Long: `Read a journal written by "mvv run" and show the lifecycle of
every order in a session: submitted, started, finished or failed,
dispatched, discarded.

Without --session, lists the sessions in the journal, oldest first.
The journal driver and path default to the ones in --config.

Examples:
  mvv trace --db ./mvv.db
  mvv trace --db ./mvv.db --session 0190c1d2-...
  mvv trace --driver pebble --db ./journal --session 0190c1d2-... --order 42
  mvv trace --db ./mvv.db --session 0190c1d2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Driver, "driver", "", "journal driver (sqlite|pebble)")
	cmd.Flags().StringVar(&opts.Path, "db", "", "path to the journal")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session token to trace")
	cmd.Flags().Int64Var(&opts.OrderID, "order", 0, "filter to one order id")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	jc := opts.resolvedConfig().Journal
	if opts.Driver != "" {
		jc.Driver = opts.Driver
	}
	if opts.Path != "" {
		jc.Path = opts.Path
	}
	if jc.Driver != config.DriverSQLite && jc.Driver != config.DriverPebble {
		if opts.Driver != "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("trace needs a durable journal driver (sqlite|pebble), got %q", jc.Driver))
		}
		jc.Driver = config.DriverSQLite
	}
	if jc.Path == "" {
		return NewExitError(ExitCommandError, "--db is required")
	}
	if _, err := os.Stat(jc.Path); err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}

	st, err := openJournal(jc)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	if opts.Session == "" {
		return listSessions(ctx, opts, st, cmd)
	}

	events, err := st.ReadSession(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}
	stats := summarize(events)
	if opts.OrderID != 0 {
		events = filterOrder(events, opts.OrderID)
	}

	result := TraceResult{Session: opts.Session, Timeline: events, Stats: stats}
	if result.Timeline == nil {
		result.Timeline = []journal.Event{}
	}

	if opts.Format == "json" {
		f := newFormatter(opts.RootOptions, cmd)
		return f.JSON(CLIResponse{Status: "ok", Data: result, Session: opts.Session})
	}
	if len(result.Timeline) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No events found for session: %s\n", opts.Session)
		return nil
	}
	outputTraceText(cmd.OutOrStdout(), result)
	return nil
}

func listSessions(ctx context.Context, opts *TraceOptions, st journal.Reader, cmd *cobra.Command) error {
	sessions, err := st.Sessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}
	if sessions == nil {
		sessions = []string{}
	}

	if opts.Format == "json" {
		f := newFormatter(opts.RootOptions, cmd)
		return f.JSON(CLIResponse{Status: "ok", Data: map[string]any{"sessions": sessions}})
	}

	w := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintln(w, s)
	}
	fmt.Fprintf(w, "\n%s session(s)\n", humanize.Comma(int64(len(sessions))))
	return nil
}

// summarize counts events per kind over the whole session.
func summarize(events []journal.Event) TraceStats {
	stats := TraceStats{TotalEvents: len(events)}
	orders := make(map[int64]struct{})
	for _, ev := range events {
		orders[ev.OrderID] = struct{}{}
		switch ev.Kind {
		case journal.KindSubmitted:
			stats.Submitted++
		case journal.KindFinished:
			stats.Finished++
		case journal.KindFailed:
			stats.Failed++
		case journal.KindDispatched:
			stats.Dispatched++
		case journal.KindDiscarded:
			stats.Discarded++
		}
	}
	stats.Orders = len(orders)
	if len(events) > 1 {
		stats.Span = events[len(events)-1].At.Sub(events[0].At)
	}
	return stats
}

func filterOrder(events []journal.Event, id int64) []journal.Event {
	var out []journal.Event
	for _, ev := range events {
		if ev.OrderID == id {
			out = append(out, ev)
		}
	}
	return out
}

// outputTraceText renders the timeline as a table. Times are offsets from
// the first event shown.
func outputTraceText(w io.Writer, result TraceResult) {
	fmt.Fprintf(w, "Trace for session: %s\n\n", result.Session)

	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"seq", "order", "class", "kind", "worker", "at", "error"})
	start := result.Timeline[0].At
	for _, ev := range result.Timeline {
		tbl.Append([]string{
			strconv.FormatInt(ev.Seq, 10),
			strconv.FormatInt(ev.OrderID, 10),
			ev.Class,
			string(ev.Kind),
			workerLabel(ev.Worker),
			"+" + ev.At.Sub(start).String(),
			ev.Err,
		})
	}
	tbl.Render()

	s := result.Stats
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %s\n", humanize.Comma(int64(s.TotalEvents)))
	fmt.Fprintf(w, "  Orders:       %s\n", humanize.Comma(int64(s.Orders)))
	fmt.Fprintf(w, "  Submitted:    %s\n", humanize.Comma(int64(s.Submitted)))
	fmt.Fprintf(w, "  Finished:     %s\n", humanize.Comma(int64(s.Finished)))
	fmt.Fprintf(w, "  Failed:       %s\n", humanize.Comma(int64(s.Failed)))
	fmt.Fprintf(w, "  Dispatched:   %s\n", humanize.Comma(int64(s.Dispatched)))
	fmt.Fprintf(w, "  Discarded:    %s\n", humanize.Comma(int64(s.Discarded)))
	fmt.Fprintf(w, "  Span:         %s\n", s.Span)
}

func workerLabel(id int) string {
	if id == journal.NoWorker {
		return "manager"
	}
	return strconv.Itoa(id)
}
