package shared

import "sort"

// TreeNode is anything stored as an adjacency list row.
type TreeNode interface {
	NodeID() int64
	ParentNodeID() *int64
}

// Tree is a parent to children index built once from a flat result set.
type Tree[T TreeNode] struct {
	nodes    map[int64]T
	children map[int64][]int64
	roots    []int64
}

// BuildTree indexes nodes. Children keep the input order; orphans are treated as roots.
func BuildTree[T TreeNode](nodes []T) *Tree[T] {
	t := &Tree[T]{nodes: make(map[int64]T, len(nodes)), children: make(map[int64][]int64)}
	for _, n := range nodes {
		t.nodes[n.NodeID()] = n
	}
	for _, n := range nodes {
		parent := n.ParentNodeID()
		if parent == nil {
			t.roots = append(t.roots, n.NodeID())
			continue
		}
		if _, ok := t.nodes[*parent]; !ok {
			t.roots = append(t.roots, n.NodeID())
			continue
		}
		t.children[*parent] = append(t.children[*parent], n.NodeID())
	}
	return t
}

// Get returns the node with id.
func (t *Tree[T]) Get(id int64) (T, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Roots lists top level nodes.
func (t *Tree[T]) Roots() []T {
	return t.collect(t.roots)
}

// Children lists direct children of id.
func (t *Tree[T]) Children(id int64) []T {
	return t.collect(t.children[id])
}

// Ancestors walks from the parent of id up to its root. Cycles stop the walk.
func (t *Tree[T]) Ancestors(id int64) []T {
	var out []T
	seen := map[int64]bool{id: true}
	n, ok := t.nodes[id]
	for ok {
		parent := n.ParentNodeID()
		if parent == nil || seen[*parent] {
			break
		}
		seen[*parent] = true
		n, ok = t.nodes[*parent]
		if ok {
			out = append(out, n)
		}
	}
	return out
}

// Descendants returns every node below id in depth first order.
func (t *Tree[T]) Descendants(id int64) []T {
	var out []T
	seen := map[int64]bool{id: true}
	var walk func(int64)
	walk = func(parent int64) {
		for _, child := range t.children[parent] {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, t.nodes[child])
			walk(child)
		}
	}
	walk(id)
	return out
}

// DescendantIDs is Descendants projected to ids, sorted.
func (t *Tree[T]) DescendantIDs(id int64) []int64 {
	nodes := t.Descendants(id)
	ids := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.NodeID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *Tree[T]) collect(ids []int64) []T {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.nodes[id])
	}
	return out
}
