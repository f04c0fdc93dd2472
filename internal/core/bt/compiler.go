package bt

import (
	"fmt"
	"strconv"

	"github.com/zeusync/npcbrain/internal/core/observability/log"
)

type compileOptions struct {
	log log.Log
}

// CompileOption configures Compile.
type CompileOption func(*compileOptions)

// WithLogger makes Compile log a summary of the produced tree.
func WithLogger(l log.Log) CompileOption {
	return func(o *compileOptions) { o.log = l }
}

type frame struct {
	desc  *NodeDescriptor
	index int
	path  string
	next  int
}

// Compile flattens root into a CompiledTree using reg to resolve node types.
// Any error fails the whole compilation. The descriptor is not modified and
// is not referenced by the result.
func Compile(root *NodeDescriptor, reg *Registry, opts ...CompileOption) (*CompiledTree, error) {
	o := compileOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if root == nil {
		return nil, ErrEmptyTree
	}
	if reg == nil {
		return nil, fmt.Errorf("bt: compile without registry")
	}

	count, depth, err := measure(root)
	if err != nil {
		return nil, err
	}

	nodes := make([]CompiledNode, 0, count)
	static := make([]Footprint, 0, count)
	stack := make([]frame, 0, depth)

	visit := func(d *NodeDescriptor, path string) error {
		proto, fp, ok := reg.Lookup(d.Type)
		if !ok {
			return &CompileError{Path: path, Type: d.Type, Err: ErrUnknownType}
		}
		k := proto()
		if a, ok := k.(Arity); ok {
			lo, hi := a.Children()
			n := len(d.Children)
			if n < lo || (hi >= 0 && n > hi) {
				return &CompileError{Path: path, Type: d.Type,
					Err: fmt.Errorf("%w: have %d, want %s", ErrArity, n, arityText(lo, hi))}
			}
		}
		if in, ok := k.(Initializer); ok {
			if err := in.Init(d.Params); err != nil {
				return &CompileError{Path: path, Type: d.Type, Err: err}
			}
		}
		nodes = append(nodes, CompiledNode{Kind: k, Type: d.Type, Depth: len(stack)})
		static = append(static, fp)
		stack = append(stack, frame{desc: d, index: len(nodes) - 1, path: path})
		return nil
	}

	if err = visit(root, "root"); err != nil {
		return nil, err
	}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.desc.Children) {
			child := top.desc.Children[top.next]
			path := top.path + "/" + strconv.Itoa(top.next)
			top.next++
			if err = visit(child, path); err != nil {
				return nil, err
			}
			continue
		}
		nodes[top.index].Skip = len(nodes)
		stack = stack[:len(stack)-1]
	}

	t := &CompiledTree{
		nodes:   nodes,
		depth:   depth,
		layout:  computeLayout(static),
		runtime: runtimeFootprint(nodes),
	}
	t.fingerprint = fingerprint(nodes)

	if o.log != nil {
		o.log.Debug("behavior tree compiled",
			log.Int("nodes", len(nodes)),
			log.Int("depth", depth),
			log.Uint64("runtime_size", uint64(t.runtime.Size)),
			log.Uint64("static_size", uint64(t.layout.Size)),
		)
	}
	return t, nil
}

// measure counts nodes and the maximum depth, with the root at depth 1.
func measure(root *NodeDescriptor) (count, depth int, err error) {
	type item struct {
		d     *NodeDescriptor
		depth int
		path  string
	}
	stack := []item{{d: root, depth: 1, path: "root"}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		depth = max(depth, it.depth)
		for i := len(it.d.Children) - 1; i >= 0; i-- {
			child := it.d.Children[i]
			path := it.path + "/" + strconv.Itoa(i)
			if child == nil {
				return 0, 0, &CompileError{Path: path, Err: ErrNilNode}
			}
			stack = append(stack, item{d: child, depth: it.depth + 1, path: path})
		}
	}
	return count, depth, nil
}

func arityText(lo, hi int) string {
	switch {
	case hi < 0:
		return "at least " + strconv.Itoa(lo)
	case lo == hi:
		return strconv.Itoa(lo)
	default:
		return strconv.Itoa(lo) + ".." + strconv.Itoa(hi)
	}
}
