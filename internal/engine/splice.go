package engine

import (
	"fmt"

	"github.com/roach88/pmsync/internal/pm"
)

// spliceRecord is the content of one LIST_SPLICE model: the elements of list
// Attribute of model Source in [From, To) were replaced by Values.
type spliceRecord struct {
	ID        string
	Source    string
	Attribute string
	From      int
	To        int
	Values    []pm.Value
}

// attributes lays the record out as presentation model attributes. All of
// them carry the record id as qualifier, marking them as one tuple.
func (r spliceRecord) attributes() []pm.Attribute {
	attrs := make([]pm.Attribute, 0, 5+len(r.Values))
	add := func(name string, v pm.Value) {
		attrs = append(attrs, pm.Attribute{Name: name, Value: pm.OrNull(v), Qualifier: r.ID})
	}
	add(pm.SpliceSource, pm.String(r.Source))
	add(pm.SpliceAttribute, pm.String(r.Attribute))
	add(pm.SpliceFrom, pm.Int(r.From))
	add(pm.SpliceTo, pm.Int(r.To))
	add(pm.SpliceCount, pm.Int(len(r.Values)))
	for i, v := range r.Values {
		add(pm.SpliceElement(i), v)
	}
	return attrs
}

// parseSplice reads a LIST_SPLICE model back into a record.
func parseSplice(m *pm.PresentationModel) (spliceRecord, error) {
	rec := spliceRecord{ID: m.ID()}

	str := func(name string) (string, error) {
		v, ok := m.Value(name)
		if !ok {
			return "", missingSpliceField(m.ID(), name)
		}
		s, ok := v.(pm.String)
		if !ok || s == "" {
			return "", pm.NewTypeMismatchError(name, "non-empty string", v)
		}
		return string(s), nil
	}
	num := func(name string) (int, error) {
		v, ok := m.Value(name)
		if !ok {
			return 0, missingSpliceField(m.ID(), name)
		}
		n, ok := v.(pm.Int)
		if !ok {
			return 0, pm.NewTypeMismatchError(name, "integer", v)
		}
		return int(n), nil
	}

	var err error
	if rec.Source, err = str(pm.SpliceSource); err != nil {
		return rec, annotate(err, m.ID(), pm.SpliceSource)
	}
	if rec.Attribute, err = str(pm.SpliceAttribute); err != nil {
		return rec, annotate(err, m.ID(), pm.SpliceAttribute)
	}
	if rec.From, err = num(pm.SpliceFrom); err != nil {
		return rec, annotate(err, m.ID(), pm.SpliceFrom)
	}
	if rec.To, err = num(pm.SpliceTo); err != nil {
		return rec, annotate(err, m.ID(), pm.SpliceTo)
	}
	count, err := num(pm.SpliceCount)
	if err != nil {
		return rec, annotate(err, m.ID(), pm.SpliceCount)
	}
	if count < 0 {
		return rec, &pm.Error{
			Code:     pm.ErrCodeIndexOutOfRange,
			Message:  fmt.Sprintf("negative element count %d", count),
			ModelID:  m.ID(),
			Property: pm.SpliceCount,
		}
	}

	rec.Values = make([]pm.Value, count)
	for i := range count {
		v, ok := m.Value(pm.SpliceElement(i))
		if !ok {
			return rec, missingSpliceField(m.ID(), pm.SpliceElement(i))
		}
		rec.Values[i] = v
	}
	return rec, nil
}

func missingSpliceField(id, name string) error {
	return &pm.Error{
		Code:     pm.ErrCodeUnknownProperty,
		Message:  "splice record is missing a field",
		ModelID:  id,
		Property: name,
	}
}
