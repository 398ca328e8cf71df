package journal

import (
	"context"
	"fmt"

	"github.com/roach88/pmsync/internal/pm"
)

// Applier receives replayed commands. *engine.Engine satisfies it.
type Applier interface {
	Apply(cmd pm.Command) error
}

// ReplayResult summarizes one Replay run.
type ReplayResult struct {
	Applied int
	Failed  []Entry
}

// Replay applies the commands sent by from to dst in seq order.
//
// Entries that failed originally are replayed too. A command that fails
// again is recorded in the result and replay continues; the receiver keeps
// failed list splices pending, so a later entry may still complete them.
func (j *Journal) Replay(ctx context.Context, from pm.Side, dst Applier) (ReplayResult, error) {
	var res ReplayResult
	entries, err := j.ReadSide(ctx, from)
	if err != nil {
		return res, fmt.Errorf("replay: %w", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cmd, err := e.Command()
		if err != nil {
			return res, fmt.Errorf("replay entry %d: %w", e.Seq, err)
		}
		if err := dst.Apply(cmd); err != nil {
			failed := e
			failed.ErrorCode = pm.CodeOf(err)
			failed.Error = err.Error()
			res.Failed = append(res.Failed, failed)
			continue
		}
		res.Applied++
	}
	return res, nil
}
