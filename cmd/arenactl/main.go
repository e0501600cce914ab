// arenactl runs an arena lifecycle script and reports unmet expectations and
// leaked slots.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/pavanmanishd/genarena"
	"github.com/pavanmanishd/genarena/internal/script"
)

type config struct {
	Arena        genarena.Config
	FailOnLeak   bool
	PrintMetrics bool
	LogLevel     string
}

func (c *config) RegisterFlags(f *flag.FlagSet) {
	c.Arena.RegisterFlagsWithPrefix("arena.", f)
	f.BoolVar(&c.FailOnLeak, "fail-on-leak", false, "Exit with status 1 if any slot is still live when the arena is released.")
	f.BoolVar(&c.PrintMetrics, "print-metrics", false, "Print the arena metrics in Prometheus text format after the run.")
	f.StringVar(&c.LogLevel, "log.level", "info", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error]")
}

func main() {
	var cfg config
	cfg.RegisterFlags(flag.CommandLine)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <script.yaml>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	allowed, err := levelFilter(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, allowed)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	os.Exit(run(cfg, flag.Arg(0), os.Stdout, logger))
}

func levelFilter(l string) (level.Option, error) {
	switch l {
	case "debug":
		return level.AllowDebug(), nil
	case "info":
		return level.AllowInfo(), nil
	case "warn":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	default:
		return nil, errors.Errorf("invalid log level %q: must be one of debug, info, warn, error", l)
	}
}

func run(cfg config, path string, out io.Writer, logger log.Logger) int {
	s, err := script.Load(path, cfg.Arena)
	if err != nil {
		level.Error(logger).Log("msg", "failed to load script", "path", path, "err", err)
		return 2
	}

	reg := prometheus.NewRegistry()
	rep := script.NewRunner(logger, reg).Run(s)

	writeReport(out, rep)

	if cfg.PrintMetrics {
		if err := writeMetrics(out, reg); err != nil {
			level.Error(logger).Log("msg", "failed to write metrics", "err", err)
			return 2
		}
	}

	switch {
	case rep.Unmet > 0:
		return 1
	case cfg.FailOnLeak && len(rep.Leaks) > 0:
		return 1
	default:
		return 0
	}
}

func writeReport(out io.Writer, rep *script.Report) {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tOP\tREF\tHANDLE\tRESULT")
	for _, o := range rep.Outcomes {
		result := "ok"
		switch {
		case o.Err != nil:
			result = o.Err.Error()
		case o.Op == script.OpGet || o.Op == script.OpTake:
			result = fmt.Sprintf("value=%d", o.Value)
		case o.Op == script.OpLeaks:
			result = fmt.Sprintf("live=%v", o.Leaked)
		}
		if !o.Met {
			result += " (unexpected)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", o.Step, o.Op, o.Ref, o.Handle, result)
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d leaked slot(s), %d unmet expectation(s)\n", len(rep.Leaks), rep.Unmet)
	for _, l := range rep.Leaks {
		fmt.Fprintf(out, "  leaked %s (ref %q, index %d, value %d)\n", l.Handle, l.Ref, l.Index, l.Value)
	}
}

func writeMetrics(out io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(out, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
