package bt

import (
	"encoding/binary"
	"errors"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// CompiledNode is one slot of the flattened tree. The children of node i
// occupy [i+1, Skip) and each child's own Skip marks where its next sibling
// starts.
type CompiledNode struct {
	Kind  Kind
	Skip  int
	Type  string
	Depth int
}

// Layout places every node's configured kind in one static block.
type Layout struct {
	Offsets []uintptr
	Size    uintptr
	Align   uintptr
}

// Stats summarizes a compiled tree.
type Stats struct {
	Nodes        int     `json:"nodes"`
	Depth        int     `json:"depth"`
	StaticSize   uintptr `json:"static_size"`
	StaticAlign  uintptr `json:"static_align"`
	RuntimeSize  uintptr `json:"runtime_size"`
	RuntimeAlign uintptr `json:"runtime_align"`
	Fingerprint  uint64  `json:"fingerprint"`
}

// CompiledTree is immutable after Compile and may be shared by any number of
// players on any number of goroutines.
type CompiledTree struct {
	nodes       []CompiledNode
	depth       int
	layout      Layout
	runtime     Footprint
	fingerprint uint64
	released    atomic.Bool
}

// Len is the number of nodes.
func (t *CompiledTree) Len() int { return len(t.nodes) }

// Node returns the compiled node at i.
func (t *CompiledTree) Node(i int) CompiledNode { return t.nodes[i] }

// Skip returns the index one past the subtree rooted at i.
func (t *CompiledTree) Skip(i int) int { return t.nodes[i].Skip }

// MaxDepth is the depth of the deepest node, the root being at depth 1.
func (t *CompiledTree) MaxDepth() int { return t.depth }

// Layout returns the static layout. The offsets must not be modified.
func (t *CompiledTree) Layout() Layout { return t.layout }

// Runtime is the largest runtime footprint of any single node.
func (t *CompiledTree) Runtime() Footprint { return t.runtime }

// Fingerprint hashes the type and skip structure. Two compilations of the
// same descriptor have the same fingerprint.
func (t *CompiledTree) Fingerprint() uint64 { return t.fingerprint }

// Children returns the indices of i's direct children in declaration order.
func (t *CompiledTree) Children(i int) []int {
	var out []int
	for c := i + 1; c < t.nodes[i].Skip; c = t.nodes[c].Skip {
		out = append(out, c)
	}
	return out
}

// isChild reports whether c starts a direct child of i.
func (t *CompiledTree) isChild(i, c int) bool {
	for x := i + 1; x < t.nodes[i].Skip; x = t.nodes[x].Skip {
		if x == c {
			return true
		}
		if x > c {
			return false
		}
	}
	return false
}

// Stats summarizes the tree.
func (t *CompiledTree) Stats() Stats {
	return Stats{
		Nodes:        len(t.nodes),
		Depth:        t.depth,
		StaticSize:   t.layout.Size,
		StaticAlign:  t.layout.Align,
		RuntimeSize:  t.runtime.Size,
		RuntimeAlign: t.runtime.Align,
		Fingerprint:  t.fingerprint,
	}
}

// Release closes every kind that implements Closer. Only the first call has
// any effect. Players must be stopped first.
func (t *CompiledTree) Release() error {
	if !t.released.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	for i := range t.nodes {
		if c, ok := t.nodes[i].Kind.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Released reports whether Release has been called.
func (t *CompiledTree) Released() bool { return t.released.Load() }

func computeLayout(static []Footprint) Layout {
	l := Layout{Offsets: make([]uintptr, len(static)), Align: 1}
	var cursor uintptr
	for i, fp := range static {
		align := max(fp.Align, 1)
		cursor = alignUp(cursor, align)
		l.Offsets[i] = cursor
		cursor += fp.Size
		l.Align = max(l.Align, align)
	}
	l.Size = alignUp(cursor, l.Align)
	return l
}

func runtimeFootprint(nodes []CompiledNode) Footprint {
	var fp Footprint
	for i := range nodes {
		in, ok := nodes[i].Kind.(Instanced)
		if !ok {
			continue
		}
		f := in.Footprint()
		fp.Size = max(fp.Size, f.Size)
		fp.Align = max(fp.Align, f.Align)
	}
	return fp
}

func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

func fingerprint(nodes []CompiledNode) uint64 {
	h := xxhash.New()
	var buf [8]byte
	for i := range nodes {
		_, _ = h.WriteString(nodes[i].Type)
		binary.LittleEndian.PutUint64(buf[:], uint64(nodes[i].Skip))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}
