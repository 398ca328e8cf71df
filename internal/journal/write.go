package journal

import (
	"context"
	"fmt"
)

// Append inserts an entry. Uses ON CONFLICT DO NOTHING for idempotency:
// appending the same (side, seq) twice keeps the first entry.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if err := e.validate(); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO commands
		(seq, side, kind, model_id, model_type, payload, error_code, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(side, seq) DO NOTHING
	`,
		e.Seq,
		string(e.Side),
		string(e.Kind),
		e.ModelID,
		e.ModelType,
		e.Payload,
		string(e.ErrorCode),
		e.Error,
	)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}
	return nil
}
