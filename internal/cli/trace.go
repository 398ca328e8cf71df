package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/pmsync/internal/journal"
	"github.com/roach88/pmsync/internal/pm"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Model  string // only commands about this model id
	Side   string // only commands sent by this side
	Failed bool   // only commands the receiver rejected
}

// TraceEvent is one journal entry in the trace timeline.
type TraceEvent struct {
	Seq       int64           `json:"seq"`
	From      string          `json:"from"`
	Kind      string          `json:"kind"`
	ModelID   string          `json:"model_id"`
	ModelType string          `json:"model_type,omitempty"`
	Command   json.RawMessage `json:"command"`
	ErrorCode string          `json:"error_code,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Total   int            `json:"total"`
	Client  int            `json:"client"`
	Server  int            `json:"server"`
	Failed  int            `json:"failed"`
	ByKind  map[string]int `json:"by_kind"`
	Splices int            `json:"splices"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Journal  string       `json:"journal"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the commands recorded in a session journal",
		Long: `Show the commands a session delivered, in sequence order.

Every entry shows the sending side, the command kind and the model it
concerns. Rejected commands carry the receiver's error code.

Examples:
  pmsync trace --journal ./session.db
  pmsync trace --journal ./session.db --model c-1
  pmsync trace --journal ./session.db --side SERVER --failed
  pmsync trace --journal ./session.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Model, "model", "", "filter to one model id")
	cmd.Flags().StringVar(&opts.Side, "side", "", "filter to commands sent by CLIENT or SERVER")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "only show rejected commands")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Journal == "" {
		return NewExitError(ExitCommandError, "--journal is required")
	}
	side := pm.Side(opts.Side)
	if side != "" && !side.Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid side %q: must be CLIENT or SERVER", opts.Side))
	}

	j, err := openExistingJournal(opts.Journal)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Read(ctx, journal.Filter{
		Side:       side,
		ModelID:    opts.Model,
		FailedOnly: opts.Failed,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := TraceResult{
		Journal:  opts.Journal,
		Timeline: make([]TraceEvent, 0, len(entries)),
		Stats:    TraceStats{ByKind: map[string]int{}},
	}
	for _, e := range entries {
		ev := TraceEvent{
			Seq:       e.Seq,
			From:      string(e.Side),
			Kind:      string(e.Kind),
			ModelID:   e.ModelID,
			ModelType: e.ModelType,
			Command:   json.RawMessage(e.Payload),
			ErrorCode: string(e.ErrorCode),
			Error:     e.Error,
		}
		result.Timeline = append(result.Timeline, ev)
		result.Stats.add(e)
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).JSON(CLIResponse{Status: "ok", Data: result})
	}
	outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

func (s *TraceStats) add(e journal.Entry) {
	s.Total++
	switch e.Side {
	case pm.SideClient:
		s.Client++
	case pm.SideServer:
		s.Server++
	}
	if e.Failed() {
		s.Failed++
	}
	s.ByKind[string(e.Kind)]++
	if e.ModelType == pm.TypeListSplice {
		s.Splices++
	}
}

// openExistingJournal opens a journal that must already exist on disk.
func openExistingJournal(path string) (*journal.Journal, error) {
	if !fileExists(path) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", path))
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for journal: %s\n", result.Journal)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no commands)")
	}
	for _, ev := range result.Timeline {
		line := fmt.Sprintf("  [%d] %-6s %-6s %s", ev.Seq, ev.From, ev.Kind, ev.ModelID)
		if ev.ModelType != "" {
			line += " (" + ev.ModelType + ")"
		}
		if ev.ErrorCode != "" {
			line += " REJECTED " + ev.ErrorCode
		}
		fmt.Fprintln(w, line)
		if verbose {
			fmt.Fprintf(w, "       %s\n", ev.Command)
			if ev.Error != "" {
				fmt.Fprintf(w, "       error: %s\n", ev.Error)
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total:    %d\n", result.Stats.Total)
	fmt.Fprintf(w, "  Client:   %d\n", result.Stats.Client)
	fmt.Fprintf(w, "  Server:   %d\n", result.Stats.Server)
	fmt.Fprintf(w, "  Splices:  %d\n", result.Stats.Splices)
	fmt.Fprintf(w, "  Rejected: %d\n", result.Stats.Failed)
}
