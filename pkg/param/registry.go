package param

import (
	"errors"
	"fmt"
	"strings"
)

// Registry holds the ordered top-level groups of an application.
type Registry struct {
	groups []*Group
	byName map[string]*Group
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Group)}
}

// Add registers groups in order. Group names must be unique.
func (r *Registry) Add(groups ...*Group) error {
	for _, g := range groups {
		if g.name == "" {
			return fmt.Errorf("%w: empty group name", ErrInvalidName)
		}
		if _, exists := r.byName[g.name]; exists {
			return fmt.Errorf("%w: group %q", ErrDuplicateName, g.name)
		}
		r.groups = append(r.groups, g)
		r.byName[g.name] = g
	}
	return nil
}

// Groups returns the registered groups in order.
func (r *Registry) Groups() []*Group {
	out := make([]*Group, len(r.groups))
	copy(out, r.groups)
	return out
}

// Group returns the top-level group with the given name, or nil.
func (r *Registry) Group(name string) *Group {
	return r.byName[name]
}

// Lookup resolves a dotted path such as "network.mqtt.port" to a parameter.
func (r *Registry) Lookup(path string) *Parameter {
	parts := strings.Split(path, ".")
	if len(parts) < 2 {
		return nil
	}
	g := r.byName[parts[0]]
	for _, name := range parts[1 : len(parts)-1] {
		if g == nil {
			return nil
		}
		g = g.Group(name)
	}
	if g == nil {
		return nil
	}
	return g.Parameter(parts[len(parts)-1])
}

// Schema returns the schema of every group in registration order.
func (r *Registry) Schema() []GroupSchema {
	out := make([]GroupSchema, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g.Schema())
	}
	return out
}

// Document returns the readable values keyed by group name.
func (r *Registry) Document() map[string]any {
	out := make(map[string]any, len(r.groups))
	for _, g := range r.groups {
		out[g.name] = g.values(false)
	}
	return out
}

// FromDocument applies doc to every group. Groups absent from doc are left
// untouched. The returned error joins every skipped field; values that could
// be applied are applied regardless.
func (r *Registry) FromDocument(doc map[string]any) error {
	var errs []error
	for _, g := range r.groups {
		if err := g.fromDocument(doc, "", false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// snapshot returns every value, write-only included.
func (r *Registry) snapshot() map[string]any {
	out := make(map[string]any, len(r.groups))
	for _, g := range r.groups {
		out[g.name] = g.values(true)
	}
	return out
}

// restore applies a snapshot ignoring access modes.
func (r *Registry) restore(snap map[string]any) error {
	var errs []error
	for _, g := range r.groups {
		if err := g.fromDocument(snap, "", true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
