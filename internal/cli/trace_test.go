package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pmsync/internal/journal"
	"github.com/roach88/pmsync/internal/pm"
)

func TestTraceCommandText(t *testing.T) {
	path := recordSession(t)

	stdout, _, err := execute(t, "trace", "--journal", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "=== Timeline ===")
	assert.Contains(t, stdout, "[1] CLIENT create @class:Basket (@@@ CLASS_DESCRIPTOR @@@)")
	assert.Contains(t, stdout, "[5] CLIENT change c-2")
	assert.Contains(t, stdout, "[6] CLIENT create c-3 (LIST_SPLICE)")
	assert.Contains(t, stdout, "Total:    6")
	assert.Contains(t, stdout, "Splices:  1")
	assert.NotContains(t, stdout, "REJECTED")
}

func TestTraceCommandVerboseShowsPayload(t *testing.T) {
	path := recordSession(t)

	stdout, _, err := execute(t, "trace", "--journal", path, "--model", "c-2", "-v")
	require.NoError(t, err)
	assert.Contains(t, stdout, `{"id":"c-2","kind":"change","new":"apple","old":null,"property":"name"}`)
}

func TestTraceCommandJSON(t *testing.T) {
	path := recordSession(t)

	stdout, _, err := execute(t, "trace", "--journal", path, "--format", "json")
	require.NoError(t, err)

	var result TraceResult
	resp := decodeData(t, stdout, &result)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, result.Timeline, 6)
	for i, ev := range result.Timeline {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, "CLIENT", ev.From)
	}
	assert.Equal(t, TraceStats{
		Total:   6,
		Client:  6,
		ByKind:  map[string]int{"create": 5, "change": 1},
		Splices: 1,
	}, result.Stats)
}

func TestTraceCommandFilters(t *testing.T) {
	path := recordSession(t)

	tests := []struct {
		name string
		args []string
		want []int64
	}{
		{"model", []string{"--model", "c-2"}, []int64{4, 5}},
		{"side_client", []string{"--side", "CLIENT"}, []int64{1, 2, 3, 4, 5, 6}},
		{"side_server", []string{"--side", "SERVER"}, nil},
		{"failed", []string{"--failed"}, nil},
		{"model_and_side", []string{"--model", "c-1", "--side", "SERVER"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"trace", "--journal", path, "--format", "json"}, tt.args...)
			stdout, _, err := execute(t, args...)
			require.NoError(t, err)

			var result TraceResult
			decodeData(t, stdout, &result)
			var seqs []int64
			for _, ev := range result.Timeline {
				seqs = append(seqs, ev.Seq)
			}
			assert.Equal(t, tt.want, seqs)
		})
	}
}

func TestTraceCommandShowsRejections(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")
	j, err := journal.Open(path)
	require.NoError(t, err)
	cmd := pm.ChangeCommand("s-9", "name", pm.Null{}, pm.String("x"))
	e, err := journal.NewEntry(1, pm.SideServer, cmd, pm.NewUnknownModelError("s-9"))
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, e))
	require.NoError(t, j.Close())

	stdout, _, err := execute(t, "trace", "--journal", path, "--failed")
	require.NoError(t, err)
	assert.Contains(t, stdout, "[1] SERVER change s-9 REJECTED UNKNOWN_MODEL")
	assert.Contains(t, stdout, "Rejected: 1")
}

func TestTraceCommandEmptyJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	j, err := journal.Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	stdout, _, err := execute(t, "trace", "--journal", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "(no commands)")
}

func TestTraceCommandErrors(t *testing.T) {
	path := recordSession(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no_journal", []string{"trace"}, "--journal is required"},
		{"missing_journal", []string{"trace", "--journal", "/nonexistent/s.db"}, "journal not found"},
		{"bad_side", []string{"trace", "--journal", path, "--side", "BOTH"}, "invalid side"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
