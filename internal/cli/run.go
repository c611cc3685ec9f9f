package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/mvvplatform/internal/journal"
	"github.com/roach88/mvvplatform/internal/manager"
	"github.com/roach88/mvvplatform/internal/order"
	"github.com/roach88/mvvplatform/internal/symbol"
)

// WorkClass is the class of every order pushed by the run command.
var WorkClass = symbol.Intern("WORK")

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Orders    int
	Depth     int
	SyncEvery int
	Work      time.Duration
	Timeout   time.Duration

	// Sessions allows overriding the journal session generator (for
	// testing). If nil, defaults to journal.UUIDv7Generator.
	Sessions journal.SessionGenerator
}

// RunReport summarizes a workload run.
type RunReport struct {
	Orders     int           `json:"orders"`
	Workers    int           `json:"workers"`
	ScanPolicy string        `json:"scan_policy"`
	Delivered  int           `json:"delivered"`
	Failed     int           `json:"failed"`
	Discarded  int           `json:"discarded"`
	Wall       time.Duration `json:"wall_ns"`
	Rate       float64       `json:"orders_per_second"`
	Latency    LatencyReport `json:"latency"`
	Stats      manager.Stats `json:"stats"`
	Session    string        `json:"session,omitempty"`
}

// LatencyReport is push-to-delivery latency.
type LatencyReport struct {
	Avg time.Duration `json:"avg_ns"`
	Min time.Duration `json:"min_ns"`
	P50 time.Duration `json:"p50_ns"`
	P95 time.Duration `json:"p95_ns"`
	P99 time.Duration `json:"p99_ns"`
	Max time.Duration `json:"max_ns"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Push a synthetic workload through the scheduler",
		Long: `Push a synthetic workload through the order manager and report
push-to-delivery latency.

Orders are grouped into chains of --depth: each order waits on the one
before it in its chain. Every --sync-every'th order runs on the manager
goroutine instead of a worker. The worker count, scan policy, tick and
journal come from --config.

Examples:
  mvv run --orders 10000
  mvv run --orders 500 --depth 5 --sync-every 3 --work 200us
  mvv run --config ./mvv.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Orders, "orders", "n", 1000, "number of orders to push")
	cmd.Flags().IntVar(&opts.Depth, "depth", 1, "length of each predecessor chain")
	cmd.Flags().IntVar(&opts.SyncEvery, "sync-every", 0, "make every n-th order synchronous (0 = none)")
	cmd.Flags().DurationVar(&opts.Work, "work", 0, "simulated work per order")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", time.Minute, "give up after this long")

	return cmd
}

func runWorkload(opts *RunOptions, cmd *cobra.Command) error {
	if opts.Orders < 1 {
		return NewExitError(ExitCommandError, "--orders must be at least 1")
	}
	if opts.Depth < 1 {
		return NewExitError(ExitCommandError, "--depth must be at least 1")
	}
	cfg := opts.resolvedConfig()

	st, err := openJournal(cfg.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	mopts := []manager.Option{
		manager.WithScanPolicy(cfg.Scan()),
		manager.WithTick(cfg.TickDuration()),
	}
	if st != nil {
		defer st.Close()
		gen := opts.Sessions
		if gen == nil {
			gen = journal.UUIDv7Generator{}
		}
		mopts = append(mopts, manager.WithJournal(st, gen))
	}
	m := manager.New(cfg.Workers, mopts...)

	tach := tachymeter.New(&tachymeter.Config{Size: opts.Orders})
	sink := &latencySink{tach: tach, pushed: make(map[*order.Order]time.Time, opts.Orders)}
	m.Connect(sink)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	slog.Info("workload starting",
		"orders", opts.Orders,
		"workers", cfg.Workers,
		"depth", opts.Depth,
		"scan_policy", cfg.Scan().String())

	start := time.Now()
	var prev *order.Order
	for i := 0; i < opts.Orders; i++ {
		var oo []order.Option
		if opts.Depth > 1 && i%opts.Depth != 0 {
			oo = append(oo, order.After(prev))
		}
		if opts.SyncEvery > 0 && (i+1)%opts.SyncEvery == 0 {
			oo = append(oo, order.Synchronous())
		}
		o := order.New(WorkClass, simulatedWork(opts.Work), oo...)
		sink.push(o)
		m.PushOrder(o)
		prev = o
	}

	delivered, drainErr := m.Drain(ctx, opts.Orders)
	wall := time.Since(start)
	discarded := m.Kill()
	if drainErr != nil {
		slog.Warn("workload interrupted", "delivered", delivered, "error", drainErr)
	}

	report := sink.report()
	report.Orders = opts.Orders
	report.Workers = cfg.Workers
	report.ScanPolicy = cfg.Scan().String()
	report.Discarded = discarded
	report.Wall = wall
	report.Rate = float64(report.Delivered) / wall.Seconds()
	report.Stats = m.Stats()
	report.Session = m.Session()

	f := newFormatter(opts.RootOptions, cmd)
	if opts.Format == "json" {
		if err := f.JSON(CLIResponse{Status: "ok", Data: report, Session: report.Session}); err != nil {
			return err
		}
	} else {
		renderRunReport(cmd, report)
	}

	if drainErr != nil {
		return WrapExitError(ExitFailure, "workload did not finish", drainErr)
	}
	return nil
}

func simulatedWork(d time.Duration) order.Func {
	return func(ctx context.Context) (any, error) {
		if d <= 0 {
			return nil, nil
		}
		select {
		case <-time.After(d):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// latencySink consumes WORK orders and records how long each took from
// push to delivery.
type latencySink struct {
	tach *tachymeter.Tachymeter

	mu        sync.Mutex
	pushed    map[*order.Order]time.Time
	delivered int
	failed    int
}

func (s *latencySink) push(o *order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushed[o] = time.Now()
}

func (s *latencySink) Consume(o *order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at, ok := s.pushed[o]; ok {
		s.tach.AddTime(time.Since(at))
		delete(s.pushed, o)
	}
	s.delivered++
	if res := o.Result(); res != nil && res.Err != nil {
		s.failed++
	}
}

func (s *latencySink) InterestedOrders() []order.ClassID {
	return []order.ClassID{WorkClass}
}

func (s *latencySink) report() RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := RunReport{Delivered: s.delivered, Failed: s.failed}
	if s.delivered == 0 {
		return r
	}
	calc := s.tach.Calc()
	r.Latency = LatencyReport{
		Avg: calc.Time.Avg,
		Min: calc.Time.Min,
		P50: calc.Time.P50,
		P95: calc.Time.P95,
		P99: calc.Time.P99,
		Max: calc.Time.Max,
	}
	return r
}

func renderRunReport(cmd *cobra.Command, r RunReport) {
	tbl := table.NewWriter()
	tbl.SetTitle("Workload")
	tbl.SetOutputMirror(cmd.OutOrStdout())
	tbl.AppendHeader(table.Row{"orders", "workers", "policy", "wall", "orders/s", "avg", "p50", "p95", "p99", "max"})
	tbl.AppendRow(table.Row{
		humanize.Comma(int64(r.Delivered)),
		r.Workers,
		r.ScanPolicy,
		r.Wall.Round(time.Microsecond),
		humanize.Comma(int64(r.Rate)),
		r.Latency.Avg,
		r.Latency.P50,
		r.Latency.P95,
		r.Latency.P99,
		r.Latency.Max,
	})
	tbl.Render()

	if r.Failed > 0 || r.Discarded > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s failed, %s discarded\n",
			humanize.Comma(int64(r.Failed)), humanize.Comma(int64(r.Discarded)))
	}
	if r.Session != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Journal session: %s\n", r.Session)
	}
}
