package orchestrator

import (
	"context"
	"reflect"
)

// Node is a unit of work in the graph.
//
// IMPLEMENTATION CONTRACT:
// - Name() is a human readable label; it also feeds ContentIdentity, so under
//   the default scheme two nodes with the same name and the same parents are
//   rejected by Run
// - Parents() must return the same nodes every time it is called
// - Execute() is called at most once per run, only after every parent succeeded
// - Execute() reports failure through the returned NodeState, not by panicking
// - ec.State is shared with concurrently running nodes without locking
//
// Nodes are used as map keys and must be pointers. Embed Base to get Name and
// Parents for free.
type Node interface {
	Name() string
	Parents() []Node
	Execute(ctx context.Context, ec *ExecutionContext) NodeState
}

// Base holds a node's name and its immutable parent set.
type Base struct {
	name    string
	parents []Node
}

// NewBase validates parents and returns a Base. Accepted forms are nil, a
// single Node, a []Node, or any slice or array whose elements are all Nodes.
// Anything else is a *ValidationError.
//
// name may be empty or repeated, but with ContentIdentity (the default) a
// node's identity is derived from its name and its parents' identities.
// Nodes sharing both a name and a parent set would share a checkpoint, so Run
// rejects them with a *ValidationError. Give them distinct names or use
// SequentialIdentity.
func NewBase(name string, parents any) (Base, error) {
	ps, err := normalizeParents(name, parents)
	if err != nil {
		return Base{}, err
	}
	return Base{name: name, parents: ps}, nil
}

// MustBase is like NewBase but panics on error. Use it for static graphs.
func MustBase(name string, parents any) Base {
	b, err := NewBase(name, parents)
	if err != nil {
		panic(err)
	}
	return b
}

// Name returns the node name.
func (b Base) Name() string {
	return b.name
}

// Parents returns a copy of the parent list.
func (b Base) Parents() []Node {
	if len(b.parents) == 0 {
		return nil
	}
	return append([]Node(nil), b.parents...)
}

func normalizeParents(name string, parents any) ([]Node, error) {
	switch p := parents.(type) {
	case nil:
		return nil, nil
	case Node:
		if isNilNode(p) {
			return nil, validationErrorf("parents", "node %q: parent is nil", name)
		}
		return []Node{p}, nil
	case []Node:
		return copyParents(name, p)
	}

	v := reflect.ValueOf(parents)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, validationErrorf("parents", "node %q: unsupported parents type %T", name, parents)
	}
	ps := make([]Node, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		elem := v.Index(i)
		if !elem.CanInterface() {
			return nil, validationErrorf("parents", "node %q: element %d is not a node", name, i)
		}
		n, ok := elem.Interface().(Node)
		if !ok {
			return nil, validationErrorf("parents", "node %q: element %d has type %s, not a node", name, i, elem.Type())
		}
		ps = append(ps, n)
	}
	return copyParents(name, ps)
}

func copyParents(name string, ps []Node) ([]Node, error) {
	out := make([]Node, 0, len(ps))
	for i, p := range ps {
		if isNilNode(p) {
			return nil, validationErrorf("parents", "node %q: parent %d is nil", name, i)
		}
		out = append(out, p)
	}
	return out, nil
}

func isNilNode(n Node) bool {
	if n == nil {
		return true
	}
	v := reflect.ValueOf(n)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// FuncNode is a Node whose body is a function.
type FuncNode struct {
	Base
	fn func(ctx context.Context, ec *ExecutionContext) NodeState
}

// NewFuncNode builds a node named name that runs fn. Parents are validated
// as in NewBase.
func NewFuncNode(name string, parents any, fn func(ctx context.Context, ec *ExecutionContext) NodeState) (*FuncNode, error) {
	base, err := NewBase(name, parents)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, validationErrorf("fn", "node %q: function is nil", name)
	}
	return &FuncNode{Base: base, fn: fn}, nil
}

// Execute calls the node function.
func (n *FuncNode) Execute(ctx context.Context, ec *ExecutionContext) NodeState {
	return n.fn(ctx, ec)
}
