package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pmsync/internal/convert"
	"github.com/roach88/pmsync/internal/engine"
	"github.com/roach88/pmsync/internal/journal"
	"github.com/roach88/pmsync/internal/pm"
	"github.com/roach88/pmsync/internal/schema"
	"github.com/roach88/pmsync/internal/testutil"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	From string // side whose commands are replayed
}

// ReplayFailure is one command the fresh receiver rejected.
type ReplayFailure struct {
	Seq       int64  `json:"seq"`
	ModelID   string `json:"model_id"`
	ErrorCode string `json:"error_code"`
	Error     string `json:"error"`
}

// ReplayResult holds the replay result.
type ReplayResult struct {
	From          string          `json:"from"`
	Into          string          `json:"into"`
	Applied       int             `json:"applied"`
	Failures      []ReplayFailure `json:"failures"`
	Models        int             `json:"models"`
	Beans         int             `json:"beans"`
	Pending       []string        `json:"pending"`
	Deterministic bool            `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a session journal into a fresh engine",
		Long: `Replay the commands one side sent during a session into a fresh engine
for the other side, and verify that doing so twice yields identical stores.

The schema (--schema) must declare the bean types the session used.

Exit codes:
  0 - Replay is deterministic
  1 - The two replays produced different stores
  2 - Command error (journal or schema not found, etc.)

Examples:
  pmsync replay --journal ./session.db --schema ./beans.cue
  pmsync replay --journal ./session.db --schema ./beans.cue --from SERVER
  pmsync replay --journal ./session.db --schema ./beans.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", string(pm.SideClient), "replay commands sent by CLIENT or SERVER")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	from := pm.Side(opts.From)
	if !from.Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid side %q: must be CLIENT or SERVER", opts.From))
	}
	if opts.Journal == "" {
		return NewExitError(ExitCommandError, "--journal is required")
	}
	if opts.Schema == "" {
		return NewExitError(ExitCommandError, "--schema is required")
	}

	doc, err := schema.LoadFile(opts.Schema)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}
	j, err := openExistingJournal(opts.Journal)
	if err != nil {
		return err
	}
	defer j.Close()

	logger := opts.logger()
	first, firstDump, err := replayOnce(ctx, j, doc, from, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	_, secondDump, err := replayOnce(ctx, j, doc, from, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "second replay failed", err)
	}
	first.Deterministic = firstDump == secondDump

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: first}
		if !first.Deterministic {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeNondeterministic, Message: "replays produced different stores"}
		}
		if err := opts.formatter(cmd).JSON(resp); err != nil {
			return err
		}
	} else {
		outputReplayText(cmd.OutOrStdout(), first, opts.Verbose, firstDump)
	}

	if !first.Deterministic {
		return NewExitError(ExitFailure, "replays produced different stores")
	}
	return nil
}

// replayOnce feeds the journal into a fresh receiving engine and returns the
// result together with a canonical dump of the engine's store.
func replayOnce(ctx context.Context, j *journal.Journal, doc *schema.Document, from pm.Side, logger *slog.Logger) (ReplayResult, string, error) {
	into := from.Opposite()
	reg := schema.NewRegistry(convert.NewRegistry())
	if err := doc.Apply(reg); err != nil {
		return ReplayResult{}, "", err
	}
	prefix := "c"
	if into == pm.SideServer {
		prefix = "s"
	}
	eng, err := engine.New(into, reg,
		engine.WithLogger(logger),
		engine.WithIDGenerator(testutil.NewSequenceGenerator(prefix)))
	if err != nil {
		return ReplayResult{}, "", err
	}
	defer eng.Close()

	res, err := j.Replay(ctx, from, eng)
	if err != nil {
		return ReplayResult{}, "", err
	}

	out := ReplayResult{
		From:     string(from),
		Into:     string(into),
		Applied:  res.Applied,
		Failures: make([]ReplayFailure, 0, len(res.Failed)),
		Models:   eng.Store().Len(),
		Beans:    eng.Repository().Len(),
		Pending:  eng.Pending(),
	}
	if out.Pending == nil {
		out.Pending = []string{}
	}
	for _, f := range res.Failed {
		out.Failures = append(out.Failures, ReplayFailure{
			Seq:       f.Seq,
			ModelID:   f.ModelID,
			ErrorCode: string(f.ErrorCode),
			Error:     f.Error,
		})
	}

	dump, err := dumpStore(eng)
	if err != nil {
		return ReplayResult{}, "", err
	}
	return out, dump, nil
}

// dumpStore renders every model of the engine's store as canonical JSON,
// one model per line, ordered by id.
func dumpStore(eng *engine.Engine) (string, error) {
	models := eng.Store().ListAll()
	slices.SortFunc(models, func(a, b *pm.PresentationModel) int {
		return strings.Compare(a.ID(), b.ID())
	})

	var sb strings.Builder
	for _, m := range models {
		attrs := make([]any, 0)
		for _, a := range m.Attributes() {
			entry := map[string]any{"name": a.Name, "value": pm.OrNull(a.Value)}
			if a.Qualifier != "" {
				entry["qualifier"] = a.Qualifier
			}
			attrs = append(attrs, entry)
		}
		line, err := pm.MarshalCanonical(map[string]any{
			"id":         m.ID(),
			"type":       m.Type(),
			"attributes": attrs,
		})
		if err != nil {
			return "", fmt.Errorf("dump %s: %w", m.ID(), err)
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(w io.Writer, r ReplayResult, verbose bool, dump string) {
	status := "✓ deterministic"
	if !r.Deterministic {
		status = "✗ NON-DETERMINISTIC"
	}
	fmt.Fprintf(w, "Replayed %s commands into a fresh %s engine: %s\n", r.From, r.Into, status)
	fmt.Fprintf(w, "  Applied:  %d\n", r.Applied)
	fmt.Fprintf(w, "  Rejected: %d\n", len(r.Failures))
	fmt.Fprintf(w, "  Models:   %d\n", r.Models)
	fmt.Fprintf(w, "  Beans:    %d\n", r.Beans)
	fmt.Fprintf(w, "  Pending:  %d\n", len(r.Pending))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  [%d] %s %s: %s\n", f.Seq, f.ModelID, f.ErrorCode, f.Error)
	}
	if verbose {
		fmt.Fprintln(w)
		fmt.Fprint(w, dump)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
