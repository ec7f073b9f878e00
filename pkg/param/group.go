package param

import (
	"errors"
	"fmt"
)

// Node is a member of a Group: a *Parameter or a nested *Group.
type Node interface {
	Name() string
	isNode()
}

// GroupOption configures a Group.
type GroupOption func(*Group)

// WithLabel sets the human-readable group label.
func WithLabel(label string) GroupOption {
	return func(g *Group) { g.label = label }
}

// WithDescription sets the group description.
func WithDescription(description string) GroupOption {
	return func(g *Group) { g.description = description }
}

// Group is a named, ordered collection of parameters and nested groups.
type Group struct {
	name        string
	label       string
	description string

	children []Node
	byName   map[string]Node
}

// NewGroup creates an empty group.
func NewGroup(name string, opts ...GroupOption) *Group {
	g := &Group{
		name:   name,
		byName: make(map[string]Node),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Label returns the group label.
func (g *Group) Label() string { return g.label }

// Description returns the group description.
func (g *Group) Description() string { return g.description }

func (g *Group) isNode() {}

// Add appends nodes in order. It stops at the first empty or duplicate name.
func (g *Group) Add(nodes ...Node) error {
	for _, n := range nodes {
		name := n.Name()
		if name == "" {
			return fmt.Errorf("%w: empty name in group %q", ErrInvalidName, g.name)
		}
		if _, exists := g.byName[name]; exists {
			return fmt.Errorf("%w: %q in group %q", ErrDuplicateName, name, g.name)
		}
		g.children = append(g.children, n)
		g.byName[name] = n
	}
	return nil
}

// MustAdd is Add that panics on error. Intended for static declarations.
func (g *Group) MustAdd(nodes ...Node) *Group {
	if err := g.Add(nodes...); err != nil {
		panic(err)
	}
	return g
}

// Children returns the members in declaration order.
func (g *Group) Children() []Node {
	out := make([]Node, len(g.children))
	copy(out, g.children)
	return out
}

// Parameter returns the direct parameter with the given name, or nil.
func (g *Group) Parameter(name string) *Parameter {
	p, _ := g.byName[name].(*Parameter)
	return p
}

// Group returns the direct nested group with the given name, or nil.
func (g *Group) Group(name string) *Group {
	sub, _ := g.byName[name].(*Group)
	return sub
}

// GroupSchema describes a group.
type GroupSchema struct {
	Name        string `json:"name"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
	Params      []any  `json:"params"`
}

// ParamSchema describes a parameter.
type ParamSchema struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Access    string   `json:"access"`
	Choices   []string `json:"choices,omitempty"`
	MaxLength int      `json:"maxLength,omitempty"`
}

// Schema returns the group schema. Params holds ParamSchema and nested
// GroupSchema values in declaration order.
func (g *Group) Schema() GroupSchema {
	s := GroupSchema{
		Name:        g.name,
		Label:       g.label,
		Description: g.description,
		Params:      make([]any, 0, len(g.children)),
	}
	for _, n := range g.children {
		switch n := n.(type) {
		case *Parameter:
			s.Params = append(s.Params, n.Schema())
		case *Group:
			s.Params = append(s.Params, n.Schema())
		}
	}
	return s
}

// Schema returns the parameter schema.
func (p *Parameter) Schema() ParamSchema {
	return ParamSchema{
		Name:      p.name,
		Type:      p.kind.String(),
		Access:    p.access.String(),
		Choices:   p.Choices(),
		MaxLength: p.maxLen,
	}
}

// Values returns the readable values of the group, nested groups as objects.
func (g *Group) Values() map[string]any {
	return g.values(false)
}

func (g *Group) values(all bool) map[string]any {
	out := make(map[string]any, len(g.children))
	for _, n := range g.children {
		switch n := n.(type) {
		case *Parameter:
			if all || n.access.CanRead() {
				out[n.name] = n.Value()
			}
		case *Group:
			out[n.name] = n.values(all)
		}
	}
	return out
}

// FieldError reports a document field that was skipped.
type FieldError struct {
	Path string
	Err  error
}

func (e *FieldError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// FromDocument applies the group's entry in doc. A missing entry leaves the
// group untouched; an entry that is not an object is skipped. Members are
// applied individually and mismatches are collected, never aborting.
func (g *Group) FromDocument(doc map[string]any) error {
	return g.fromDocument(doc, "", false)
}

func (g *Group) fromDocument(doc map[string]any, prefix string, restore bool) error {
	raw, ok := doc[g.name]
	if !ok {
		return nil
	}
	path := prefix + g.name
	obj, ok := raw.(map[string]any)
	if !ok {
		return &FieldError{Path: path, Err: fmt.Errorf("%w: expected object, got %T", ErrValueType, raw)}
	}

	var errs []error
	for _, n := range g.children {
		switch n := n.(type) {
		case *Parameter:
			v, ok := obj[n.name]
			if !ok {
				continue
			}
			var err error
			if restore {
				err = n.assign(v)
			} else if n.access.CanWrite() {
				err = n.assign(v)
			}
			if err != nil {
				errs = append(errs, &FieldError{Path: path + "." + n.name, Err: err})
			}
		case *Group:
			if err := n.fromDocument(obj, path+".", restore); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
