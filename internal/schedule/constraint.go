package schedule

import (
	"slices"
	"strings"
)

// All is the sentinel that constrains a hook against every other hook.
const All = "all"

// Constraint is a set of hook names, or the All sentinel.
type Constraint struct {
	all   bool
	names []string
}

// Names builds a constraint from hook names. If any name is "all" the
// constraint becomes the All sentinel.
func Names(names ...string) Constraint {
	var c Constraint
	for _, name := range names {
		name = strings.TrimSpace(name)
		switch {
		case name == "":
		case strings.EqualFold(name, All):
			return Constraint{all: true}
		case !slices.Contains(c.names, name):
			c.names = append(c.names, name)
		}
	}
	return c
}

// AllHooks returns the All sentinel constraint.
func AllHooks() Constraint {
	return Constraint{all: true}
}

// IsAll reports whether the constraint is the All sentinel.
func (c Constraint) IsAll() bool { return c.all }

// IsZero reports whether the constraint names nothing.
func (c Constraint) IsZero() bool { return !c.all && len(c.names) == 0 }

// List returns the named hooks; it is empty for the All sentinel.
func (c Constraint) List() []string { return slices.Clone(c.names) }

// Contains reports whether name is explicitly listed.
func (c Constraint) Contains(name string) bool {
	return slices.Contains(c.names, name)
}

func (c Constraint) String() string {
	if c.all {
		return All
	}
	return strings.Join(c.names, ",")
}
