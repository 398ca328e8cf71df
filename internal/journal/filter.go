package journal

import (
	"fmt"
	"strings"

	"github.com/roach88/pmsync/internal/pm"
)

// Filter selects journal entries. Zero fields match everything; set fields
// are combined with AND.
type Filter struct {
	Side       pm.Side
	ModelID    string
	Kind       pm.CommandKind
	ModelType  string
	FailedOnly bool

	// AfterSeq skips entries with seq <= AfterSeq.
	AfterSeq int64
}

// predicate is one parameterized WHERE fragment.
type predicate struct {
	sql   string
	param any // nil for parameterless fragments
}

// compile builds the query for f. Values are always bound as parameters,
// never interpolated, and every query carries the same total order so that
// reads are reproducible.
func (f Filter) compile() (string, []any, error) {
	if f.Side != "" && !f.Side.Valid() {
		return "", nil, fmt.Errorf("filter: invalid side %q", f.Side)
	}
	if f.AfterSeq < 0 {
		return "", nil, fmt.Errorf("filter: negative seq %d", f.AfterSeq)
	}

	var preds []predicate
	if f.Side != "" {
		preds = append(preds, predicate{"side = ?", string(f.Side)})
	}
	if f.ModelID != "" {
		preds = append(preds, predicate{"model_id = ?", f.ModelID})
	}
	if f.Kind != "" {
		preds = append(preds, predicate{"kind = ?", string(f.Kind)})
	}
	if f.ModelType != "" {
		preds = append(preds, predicate{"model_type = ?", f.ModelType})
	}
	if f.FailedOnly {
		preds = append(preds, predicate{sql: "error != ''"})
	}
	if f.AfterSeq > 0 {
		preds = append(preds, predicate{"seq > ?", f.AfterSeq})
	}

	var (
		sb     strings.Builder
		params []any
	)
	sb.WriteString(selectEntries)
	for i, p := range preds {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(p.sql)
		if p.param != nil {
			params = append(params, p.param)
		}
	}
	sb.WriteString(" ORDER BY " + stableOrder)
	return sb.String(), params, nil
}
