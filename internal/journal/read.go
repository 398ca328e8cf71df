package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/pmsync/internal/pm"
)

const selectEntries = `SELECT seq, side, kind, model_id, model_type, payload, error_code, error FROM commands`

// stableOrder is the total order of every read: seq first, side as the
// tiebreaker for journals merged from separately numbered links.
const stableOrder = `seq ASC, side COLLATE BINARY ASC`

// Read returns the entries matching f in seq order.
// Returns an empty slice (not nil) when nothing matches.
func (j *Journal) Read(ctx context.Context, f Filter) ([]Entry, error) {
	query, params, err := f.compile()
	if err != nil {
		return nil, err
	}
	return j.read(ctx, query, params...)
}

// ReadAll returns every entry ordered by seq, then side.
func (j *Journal) ReadAll(ctx context.Context) ([]Entry, error) {
	return j.Read(ctx, Filter{})
}

// ReadSide returns the entries sent by side, ordered by seq.
func (j *Journal) ReadSide(ctx context.Context, side pm.Side) ([]Entry, error) {
	return j.Read(ctx, Filter{Side: side})
}

// ReadModel returns the entries about one model id, ordered by seq.
func (j *Journal) ReadModel(ctx context.Context, modelID string) ([]Entry, error) {
	return j.Read(ctx, Filter{ModelID: modelID})
}

// ReadFailed returns the entries the receiver could not apply.
func (j *Journal) ReadFailed(ctx context.Context) ([]Entry, error) {
	return j.Read(ctx, Filter{FailedOnly: true})
}

// LastSeq returns the highest sequence number in the journal, or 0.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM commands`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

func (j *Journal) read(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                     Entry
		side, kind, errorCode string
	)
	err := rows.Scan(&e.Seq, &side, &kind, &e.ModelID, &e.ModelType, &e.Payload, &errorCode, &e.Error)
	if err != nil {
		return Entry{}, fmt.Errorf("scan command: %w", err)
	}
	e.Side = pm.Side(side)
	e.Kind = pm.CommandKind(kind)
	e.ErrorCode = pm.ErrorCode(errorCode)
	return e, nil
}
