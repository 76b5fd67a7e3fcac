package sample

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"samplepipe/internal/failure"
)

// Built-in attribute names. They may carry reducers but cannot be redeclared
// as extension fields.
const (
	AttrID            = "id"
	AttrInstanceID    = "instance_id"
	AttrFiles         = "files"
	AttrProcessed     = "processed"
	AttrMeta          = "meta"
	AttrFailureReason = "failure_reason"
	AttrRuns          = "runs"
)

var builtinAttrs = []string{AttrID, AttrInstanceID, AttrFiles, AttrProcessed, AttrMeta, AttrFailureReason, AttrRuns}

// Reducer folds two differing values of one attribute into a single value.
// Reducers are applied left to right over all observed values.
type Reducer func(a, b any) any

// Field declares an extension attribute. Default is mandatory and fixes the
// attribute's type; use a typed nil pointer for nullable attributes.
type Field struct {
	Name    string
	Default any
}

// Extension is a module's contribution to the record type.
type Extension struct {
	Name     string
	Fields   []Field
	Reducers map[string]Reducer
}

// RecordType is the composition of every registered Extension. It is
// immutable once built and safe for concurrent use.
type RecordType struct {
	fields     []Field
	index      map[string]int
	reducers   map[string]Reducer
	extensions []string
}

// Compose builds a RecordType from the given extensions. Fields without a
// default, fields shadowing built-in attributes, fields redeclared with a
// different type, and reducers for unknown attributes are configuration
// errors. A field redeclared with the same type takes the later default.
func Compose(exts ...Extension) (*RecordType, error) {
	t := &RecordType{
		index:    make(map[string]int),
		reducers: builtinReducers(),
	}
	for _, ext := range exts {
		name := strings.TrimSpace(ext.Name)
		if name == "" {
			name = "anonymous"
		}
		for _, field := range ext.Fields {
			if err := t.addField(name, field); err != nil {
				return nil, err
			}
		}
		t.extensions = append(t.extensions, name)
	}
	for _, ext := range exts {
		for attr, reducer := range ext.Reducers {
			if reducer == nil {
				continue
			}
			if _, ok := t.index[attr]; !ok && !slices.Contains(builtinAttrs, attr) {
				return nil, failure.Wrap(failure.ErrConfiguration, "record type", ext.Name,
					fmt.Sprintf("reducer registered for unknown attribute %q", attr), nil)
			}
			if attr == AttrID || attr == AttrInstanceID || attr == AttrRuns {
				return nil, failure.Wrap(failure.ErrConfiguration, "record type", ext.Name,
					fmt.Sprintf("attribute %q cannot carry a reducer", attr), nil)
			}
			t.reducers[attr] = reducer
		}
	}
	return t, nil
}

// MustCompose is Compose for package-level record types in tests and
// built-in wiring.
func MustCompose(exts ...Extension) *RecordType {
	t, err := Compose(exts...)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultType returns a record type without extensions.
func DefaultType() *RecordType {
	return MustCompose()
}

func (t *RecordType) addField(ext string, field Field) error {
	name := strings.TrimSpace(field.Name)
	if name == "" {
		return failure.Wrap(failure.ErrConfiguration, "record type", ext, "field without a name", nil)
	}
	if slices.Contains(builtinAttrs, name) {
		return failure.Wrap(failure.ErrConfiguration, "record type", ext,
			fmt.Sprintf("field %q shadows a built-in attribute", name), nil)
	}
	if field.Default == nil {
		return failure.Wrap(failure.ErrConfiguration, "record type", ext,
			fmt.Sprintf("field %q has no default", name), nil)
	}
	if pos, ok := t.index[name]; ok {
		existing := reflect.TypeOf(t.fields[pos].Default)
		if existing != reflect.TypeOf(field.Default) {
			return failure.Wrap(failure.ErrConfiguration, "record type", ext,
				fmt.Sprintf("field %q redeclared as %T, previously %s", name, field.Default, existing), nil)
		}
		t.fields[pos].Default = field.Default
		return nil
	}
	t.index[name] = len(t.fields)
	t.fields = append(t.fields, Field{Name: name, Default: field.Default})
	return nil
}

// Fields returns the extension fields in declaration order.
func (t *RecordType) Fields() []Field {
	return slices.Clone(t.fields)
}

// Extensions returns the names of the composed extensions in order.
func (t *RecordType) Extensions() []string {
	return slices.Clone(t.extensions)
}

// HasField reports whether name is an extension field of this type.
func (t *RecordType) HasField(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Reducer returns the reducer registered for attr, if any.
func (t *RecordType) Reducer(attr string) (Reducer, bool) {
	r, ok := t.reducers[attr]
	return r, ok
}

// New creates a sample with a fresh instance identifier and every extension
// field set to a copy of its default.
func (t *RecordType) New(id string, files ...string) *Sample {
	s := &Sample{
		ID:         id,
		Files:      slices.Clone(files),
		Meta:       map[string]any{},
		Runs:       map[string]bool{},
		instanceID: newInstanceID(),
		typ:        t,
		attrs:      make(map[string]any, len(t.fields)),
	}
	for _, field := range t.fields {
		s.attrs[field.Name] = cloneValue(field.Default)
	}
	return s
}

func (t *RecordType) defaultOf(name string) (any, bool) {
	pos, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.fields[pos].Default, true
}

// check verifies that value may be stored in the named extension field.
func (t *RecordType) check(name string, value any) error {
	def, ok := t.defaultOf(name)
	if !ok {
		return failure.Wrap(failure.ErrRecord, "sample", "set", fmt.Sprintf("no attribute %q", name), nil)
	}
	if _, isTuple := value.(Tuple); isTuple {
		return nil
	}
	want := reflect.TypeOf(def)
	if value == nil {
		switch want.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
			return nil
		}
		return failure.Wrap(failure.ErrRecord, "sample", "set", fmt.Sprintf("attribute %q cannot be nil", name), nil)
	}
	if !reflect.TypeOf(value).AssignableTo(want) {
		return failure.Wrap(failure.ErrRecord, "sample", "set",
			fmt.Sprintf("attribute %q expects %s, got %T", name, want, value), nil)
	}
	return nil
}
