package sim

import (
	"strings"
	"sync"
)

// Named is implemented by everything that shows up in traces and in the
// monitor.
type Named interface {
	Name() string
}

// Component is a named, hookable event handler, such as a protection domain
// or the bus controller.
type Component interface {
	Named
	Handler
	Hookable
}

// ComponentBase carries the name, the hooks and a lock for a component.
type ComponentBase struct {
	HookableBase
	sync.Mutex

	name string
}

// NewComponentBase panics if name is not a valid component name.
func NewComponentBase(name string) *ComponentBase {
	NameMustBeValid(name)

	return &ComponentBase{name: name}
}

// Name returns the name given at construction.
func (c *ComponentBase) Name() string {
	return c.name
}

// NameMustBeValid panics on an empty name or one containing whitespace.
// Names become ring names and table keys, so they must be single tokens.
func NameMustBeValid(name string) {
	if name == "" {
		panic("name must not be empty")
	}

	if strings.ContainsAny(name, " \t\r\n") {
		panic("name " + name + " must not contain whitespace")
	}
}
