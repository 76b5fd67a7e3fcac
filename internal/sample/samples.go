package sample

import (
	"fmt"
	"os"
	"reflect"
	"slices"

	"github.com/google/uuid"
)

// Samples is an ordered collection of samples plus its declared outputs.
type Samples struct {
	Type    *RecordType
	Items   []*Sample
	Outputs []Output
	Globs   []OutputGlob
}

// New returns a collection of the given record type. A nil type uses
// DefaultType.
func New(typ *RecordType, items ...*Sample) *Samples {
	if typ == nil {
		typ = DefaultType()
	}
	return &Samples{Type: typ, Items: slices.Clone(items)}
}

// Len returns the number of samples.
func (s *Samples) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Items)
}

// NewSample creates a sample of the collection's record type and appends it.
func (s *Samples) NewSample(id string, files ...string) *Sample {
	item := s.Type.New(id, files...)
	s.Items = append(s.Items, item)
	return item
}

// Add appends samples.
func (s *Samples) Add(items ...*Sample) {
	s.Items = append(s.Items, items...)
}

// Lookup returns the sample with the given instance identifier.
func (s *Samples) Lookup(id uuid.UUID) (*Sample, bool) {
	for _, item := range s.Items {
		if item.instanceID == id {
			return item, true
		}
	}
	return nil, false
}

// AddOutput declares concrete outputs, ignoring duplicates.
func (s *Samples) AddOutput(outputs ...Output) {
	for _, out := range outputs {
		if !slices.ContainsFunc(s.Outputs, out.same) {
			s.Outputs = append(s.Outputs, out)
		}
	}
}

// AddGlob declares output patterns, ignoring duplicates.
func (s *Samples) AddGlob(globs ...OutputGlob) {
	for _, g := range globs {
		if !slices.ContainsFunc(s.Globs, g.same) {
			s.Globs = append(s.Globs, g)
		}
	}
}

// Filter returns a view holding the samples for which keep returns true.
// The view shares sample pointers and carries a copy of the output set.
func (s *Samples) Filter(keep func(*Sample) bool) *Samples {
	out := &Samples{
		Type:    s.Type,
		Outputs: slices.Clone(s.Outputs),
		Globs:   slices.Clone(s.Globs),
	}
	for _, item := range s.Items {
		if keep(item) {
			out.Items = append(out.Items, item)
		}
	}
	return out
}

// UniqueIDs returns the distinct sample identifiers in first-appearance order.
func (s *Samples) UniqueIDs() []string {
	var ids []string
	for _, item := range s.Items {
		if !slices.Contains(ids, item.ID) {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

// WithFiles returns the samples that list at least one file and whose files
// all exist.
func (s *Samples) WithFiles() *Samples {
	return s.Filter(hasFiles)
}

// WithoutFiles returns the complement of WithFiles.
func (s *Samples) WithoutFiles() *Samples {
	return s.Filter(func(item *Sample) bool { return !hasFiles(item) })
}

// Complete returns the samples that were processed, never failed, and
// succeeded in every runner that saw them.
func (s *Samples) Complete() *Samples {
	return s.Filter((*Sample).IsComplete)
}

// Failed returns the samples that are not complete.
func (s *Samples) Failed() *Samples {
	return s.Filter(func(item *Sample) bool { return !item.IsComplete() })
}

// Unprocessed returns the samples that are neither processed nor failed.
func (s *Samples) Unprocessed() *Samples {
	return s.Filter(func(item *Sample) bool { return !item.Processed && !item.IsFailed() })
}

// Clone deep-copies the collection; samples keep their instance identifiers.
func (s *Samples) Clone() *Samples {
	out := &Samples{
		Type:    s.Type,
		Items:   make([]*Sample, 0, len(s.Items)),
		Outputs: slices.Clone(s.Outputs),
		Globs:   slices.Clone(s.Globs),
	}
	for _, item := range s.Items {
		out.Items = append(out.Items, item.Clone())
	}
	return out
}

// Group is one partition of a collection.
type Group struct {
	Key     string
	Samples *Samples
}

// Split partitions the collection by the value of attr. Samples sharing a
// value form one group; samples where attr is unset (missing, nil, or an
// empty string) form singleton groups keyed by sample identifier.
// Groups follow first-appearance order.
func (s *Samples) Split(attr string) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, item := range s.Items {
		value, ok := item.Get(attr)
		if !ok || isUnset(value) {
			groups = append(groups, Group{Key: item.ID, Samples: s.Filter(sameInstance(item))})
			continue
		}
		key := fmt.Sprint(value)
		if pos, seen := index[key]; seen {
			groups[pos].Samples.Items = append(groups[pos].Samples.Items, item)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, Group{Key: key, Samples: s.Filter(sameInstance(item))})
	}
	return groups
}

// Individual partitions the collection into one group per sample.
func (s *Samples) Individual() []Group {
	groups := make([]Group, 0, len(s.Items))
	for _, item := range s.Items {
		groups = append(groups, Group{Key: item.ID, Samples: s.Filter(sameInstance(item))})
	}
	return groups
}

func sameInstance(target *Sample) func(*Sample) bool {
	return func(item *Sample) bool { return item == target }
}

func isUnset(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	case reflect.String:
		return v.Len() == 0
	}
	return false
}

func hasFiles(item *Sample) bool {
	if len(item.Files) == 0 {
		return false
	}
	for _, file := range item.Files {
		if _, err := os.Stat(file); err != nil {
			return false
		}
	}
	return true
}
