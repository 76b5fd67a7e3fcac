package sample

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sort"

	"github.com/google/uuid"

	"samplepipe/internal/failure"
)

// Sample is one observation of an input unit.
type Sample struct {
	ID            string
	Files         []string
	Processed     bool
	Meta          map[string]any
	FailureReason string
	// Runs records, per runner name, whether that runner processed the
	// sample without failing it.
	Runs map[string]bool

	instanceID uuid.UUID
	typ        *RecordType
	attrs      map[string]any
}

func newInstanceID() uuid.UUID {
	return uuid.New()
}

// InstanceID returns the identifier assigned when the sample was created.
func (s *Sample) InstanceID() uuid.UUID {
	return s.instanceID
}

// Type returns the record type the sample was created from.
func (s *Sample) Type() *RecordType {
	return s.typ
}

func (s *Sample) String() string {
	return s.ID
}

// Fail marks the sample as failed. An empty reason is replaced by a generic one.
func (s *Sample) Fail(reason string) {
	if reason == "" {
		reason = "unspecified failure"
	}
	s.FailureReason = reason
}

// IsFailed reports whether a failure reason has been recorded.
func (s *Sample) IsFailed() bool {
	return s.FailureReason != ""
}

// IsComplete reports whether the sample was processed, never failed, and
// every runner that saw it succeeded.
func (s *Sample) IsComplete() bool {
	if !s.Processed || s.IsFailed() {
		return false
	}
	for _, ok := range s.Runs {
		if !ok {
			return false
		}
	}
	return true
}

// Tag records the outcome of a runner on this sample.
func (s *Sample) Tag(runner string, ok bool) {
	if s.Runs == nil {
		s.Runs = map[string]bool{}
	}
	s.Runs[runner] = ok
}

// Attr returns the value of an extension field or a built-in attribute.
// It is intended for templates; it returns nil for unknown names.
func (s *Sample) Attr(name string) any {
	v, _ := s.Get(name)
	return v
}

// Get returns the value of an extension field or a built-in attribute.
func (s *Sample) Get(name string) (any, bool) {
	switch name {
	case AttrID:
		return s.ID, true
	case AttrInstanceID:
		return s.instanceID.String(), true
	case AttrFiles:
		return s.Files, true
	case AttrProcessed:
		return s.Processed, true
	case AttrMeta:
		return s.Meta, true
	case AttrFailureReason:
		return s.FailureReason, true
	case AttrRuns:
		return s.Runs, true
	}
	v, ok := s.attrs[name]
	return v, ok
}

// Set assigns an attribute. Extension values must match the type of the
// field's default (or be a Tuple produced by merging).
func (s *Sample) Set(name string, value any) error {
	switch name {
	case AttrID:
		id, ok := value.(string)
		if !ok {
			return setTypeError(name, "string", value)
		}
		s.ID = id
		return nil
	case AttrInstanceID, AttrRuns:
		return failure.Wrap(failure.ErrRecord, "sample", "set", fmt.Sprintf("attribute %q is read-only", name), nil)
	case AttrFiles:
		files, ok := value.([]string)
		if !ok {
			return setTypeError(name, "[]string", value)
		}
		s.Files = files
		return nil
	case AttrProcessed:
		processed, ok := value.(bool)
		if !ok {
			return setTypeError(name, "bool", value)
		}
		s.Processed = processed
		return nil
	case AttrMeta:
		meta, ok := value.(map[string]any)
		if !ok {
			return setTypeError(name, "map[string]any", value)
		}
		s.Meta = meta
		return nil
	case AttrFailureReason:
		reason, ok := value.(string)
		if !ok {
			return setTypeError(name, "string", value)
		}
		s.FailureReason = reason
		return nil
	}
	if s.typ == nil {
		return failure.Wrap(failure.ErrRecord, "sample", "set", fmt.Sprintf("no attribute %q", name), nil)
	}
	if err := s.typ.check(name, value); err != nil {
		return err
	}
	if value == nil {
		def, _ := s.typ.defaultOf(name)
		value = reflect.Zero(reflect.TypeOf(def)).Interface()
	}
	s.attrs[name] = value
	return nil
}

// AttrNames returns the extension field names set on the sample, sorted.
func (s *Sample) AttrNames() []string {
	names := slices.Collect(maps.Keys(s.attrs))
	sort.Strings(names)
	return names
}

// Clone returns a deep copy that keeps the instance identifier.
func (s *Sample) Clone() *Sample {
	out := &Sample{
		ID:            s.ID,
		Files:         slices.Clone(s.Files),
		Processed:     s.Processed,
		FailureReason: s.FailureReason,
		Meta:          cloneMap(s.Meta),
		Runs:          maps.Clone(s.Runs),
		instanceID:    s.instanceID,
		typ:           s.typ,
		attrs:         make(map[string]any, len(s.attrs)),
	}
	if out.Meta == nil {
		out.Meta = map[string]any{}
	}
	if out.Runs == nil {
		out.Runs = map[string]bool{}
	}
	for k, v := range s.attrs {
		out.attrs[k] = cloneValue(v)
	}
	return out
}

func setTypeError(name, want string, value any) error {
	return failure.Wrap(failure.ErrRecord, "sample", "set",
		fmt.Sprintf("attribute %q expects %s, got %T", name, want, value), nil)
}
