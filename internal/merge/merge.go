package merge

import (
	"slices"

	"samplepipe/internal/sample"
)

// Tuple is the merged value of an attribute that differed between
// observations and has no reducer.
type Tuple = sample.Tuple

var builtinAttrs = []string{
	sample.AttrFiles,
	sample.AttrProcessed,
	sample.AttrMeta,
	sample.AttrFailureReason,
}

// Merge groups records by identifier and folds each group into one record.
// Groups appear in first-appearance order and every merged record keeps the
// instance identifier of its first contributor. The inputs are not modified.
func Merge(records []*sample.Sample, typ *sample.RecordType) *sample.Samples {
	if typ == nil {
		typ = sample.DefaultType()
	}
	var order []string
	groups := make(map[string][]*sample.Sample)
	for _, record := range records {
		if record == nil {
			continue
		}
		if _, seen := groups[record.ID]; !seen {
			order = append(order, record.ID)
		}
		groups[record.ID] = append(groups[record.ID], record)
	}

	out := sample.New(typ)
	for _, id := range order {
		out.Add(mergeGroup(groups[id], typ))
	}
	return out
}

// Collections merges the records of several collections and unions their
// declared outputs.
func Collections(typ *sample.RecordType, parts ...*sample.Samples) *sample.Samples {
	var records []*sample.Sample
	for _, part := range parts {
		if part == nil {
			continue
		}
		records = append(records, part.Items...)
	}
	out := Merge(records, typ)
	for _, part := range parts {
		if part == nil {
			continue
		}
		out.AddOutput(part.Outputs...)
		out.AddGlob(part.Globs...)
	}
	return out
}

func mergeGroup(group []*sample.Sample, typ *sample.RecordType) *sample.Sample {
	merged := group[0].Clone()
	if len(group) == 1 {
		return merged
	}

	attrs := slices.Clone(builtinAttrs)
	for _, field := range typ.Fields() {
		attrs = append(attrs, field.Name)
	}
	for _, attr := range attrs {
		values := make([]any, 0, len(group))
		for _, record := range group {
			value, _ := record.Get(attr)
			values = append(values, value)
		}
		// Set only fails on a type mismatch, which a reducer returning the
		// wrong type would cause; the first observation is kept then.
		_ = merged.Set(attr, reduce(attr, values, typ))
	}

	merged.Runs = mergeRuns(group)
	return merged
}

func reduce(attr string, values []any, typ *sample.RecordType) any {
	if allEqual(values) {
		return values[0]
	}
	if reducer, ok := typ.Reducer(attr); ok {
		acc := values[0]
		for _, value := range values[1:] {
			acc = reducer(acc, value)
		}
		return acc
	}
	tuple := make(Tuple, 0, len(values))
	for _, value := range values {
		if nested, ok := value.(Tuple); ok {
			tuple = append(tuple, nested...)
			continue
		}
		tuple = append(tuple, value)
	}
	return tuple
}

func allEqual(values []any) bool {
	for _, value := range values[1:] {
		if !sample.Equal(values[0], value) {
			return false
		}
	}
	return true
}

func mergeRuns(group []*sample.Sample) map[string]bool {
	runs := make(map[string]bool)
	for _, record := range group {
		for runner, ok := range record.Runs {
			if prev, seen := runs[runner]; seen {
				runs[runner] = prev && ok
				continue
			}
			runs[runner] = ok
		}
	}
	return runs
}
