package cli

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/pmsync/internal/engine"
	"github.com/roach88/pmsync/internal/harness"
	"github.com/roach88/pmsync/internal/journal"
	"github.com/roach88/pmsync/internal/pm"
)

// RunResult is the outcome of one recorded scenario run.
type RunResult struct {
	Scenario string         `json:"scenario"`
	Journal  string         `json:"journal"`
	Pass     bool           `json:"pass"`
	Commands int            `json:"commands"`
	Failed   int            `json:"failed"`
	Sent     map[string]int `json:"sent"`
	Errors   []string       `json:"errors,omitempty"`
	Metrics  []MetricSample `json:"metrics,omitempty"`
}

// MetricSample is one engine metric series gathered after a run.
type MetricSample struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var withMetrics bool
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario and record its session journal",
		Long: `Run one scenario against a fresh client/server engine pair and record
every delivered command in the SQLite journal given by --journal.

The journal must be new or empty. It can then be inspected with
"pmsync trace" and replayed with "pmsync replay".

Examples:
  pmsync run ./scenarios/basket_add_item.yaml --journal ./session.db
  pmsync run ./scenarios/basket_add_item.yaml --journal ./session.db --log-level debug
  pmsync run ./scenarios/basket_add_item.yaml --journal ./session.db --metrics`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(rootOpts, args[0], withMetrics, cmd)
		},
	}

	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "report the engines' counters after the run")

	return cmd
}

func runScenarioFile(opts *RootOptions, file string, withMetrics bool, cmd *cobra.Command) error {
	if opts.Journal == "" {
		return NewExitError(ExitCommandError, "--journal is required")
	}
	logger := opts.logger()

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	j, err := journal.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer func() {
		if closeErr := j.Close(); closeErr != nil {
			logger.Error("error closing journal", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		reg     *prometheus.Registry
		runOpts []harness.RunOption
	)
	if withMetrics {
		reg = prometheus.NewRegistry()
		m, err := engine.NewMetrics(reg)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to register metrics", err)
		}
		runOpts = append(runOpts, harness.WithMetrics(m))
	}

	logger.Info("running scenario", "scenario", scenario.Name, "journal", opts.Journal)
	result, err := harness.RunJournal(ctx, scenario, j, logger, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario did not run", err)
	}

	out := RunResult{
		Scenario: scenario.Name,
		Journal:  opts.Journal,
		Pass:     result.Pass,
		Commands: len(result.Trace),
		Sent:     map[string]int{string(pm.SideClient): 0, string(pm.SideServer): 0},
		Errors:   result.Errors,
	}
	for _, ev := range result.Trace {
		out.Sent[string(ev.From)]++
		if ev.ErrorCode != "" {
			out.Failed++
		}
	}
	if reg != nil {
		if out.Metrics, err = gatherMetrics(reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
	}

	formatter := opts.formatter(cmd)
	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: out}
		if !out.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeTestFailed, Message: "scenario failed"}
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		mark := "✓"
		if !out.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", mark, out.Scenario)
		for _, e := range out.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		fmt.Fprintf(w, "Recorded %d command(s) in %s (client %d, server %d, failed %d)\n",
			out.Commands, out.Journal,
			out.Sent[string(pm.SideClient)], out.Sent[string(pm.SideServer)], out.Failed)
		if len(out.Metrics) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "=== Metrics ===")
			for _, s := range out.Metrics {
				fmt.Fprintf(w, "  %s %g\n", s.series(), s.Value)
			}
		}
	}

	if !out.Pass {
		return NewExitError(ExitFailure, "scenario failed")
	}
	return nil
}

// gatherMetrics flattens the registry's counters and gauges into samples,
// ordered by name and then labels.
func gatherMetrics(reg prometheus.Gatherer) ([]MetricSample, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}
	var out []MetricSample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			s := MetricSample{Name: mf.GetName(), Labels: map[string]string{}}
			for _, lp := range m.GetLabel() {
				s.Labels[lp.GetName()] = lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				s.Value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				s.Value = m.GetGauge().GetValue()
			default:
				continue
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// series renders the sample as name{k="v",...} with sorted label names.
func (s MetricSample) series() string {
	if len(s.Labels) == 0 {
		return s.Name
	}
	keys := slices.Sorted(maps.Keys(s.Labels))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, s.Labels[k])
	}
	return s.Name + "{" + strings.Join(parts, ",") + "}"
}
