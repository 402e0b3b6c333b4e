package models

import (
	"strconv"

	id "actarchive/pkg/domain"
)

// BuildTree counts inventory records and documents at each of the four
// levels, then derives matched/missing/extra per node from those counts.
//
// The per-node figures are an approximation: a registre holding 3 declared
// acts and 3 different stored acts reports 3 matched, where Diff would
// report 0 matched, 3 missing and 3 extra. Use Diff for key-exact answers.
// Unlike Diff, repeated keys are counted every time they occur.
func BuildTree(inventory, documents []id.ClassificationKey) (Stats, map[string]*Node) {
	root := &Node{}
	for _, k := range inventory {
		for _, n := range root.path(k) {
			n.InventoryCount++
		}
	}
	for _, k := range documents {
		for _, n := range root.path(k) {
			n.ActualCount++
		}
	}
	root.finalize()
	return root.Stats, root.Children
}

// path returns the root and the four nodes along k, creating missing ones.
func (n *Node) path(k id.ClassificationKey) []*Node {
	nodes := make([]*Node, 0, 5)
	nodes = append(nodes, n)
	cur := n
	for _, seg := range []string{k.Bureau, k.RegistreType, strconv.Itoa(k.Year), k.RegistreNumber} {
		cur = cur.child(seg)
		nodes = append(nodes, cur)
	}
	return nodes
}

func (n *Node) child(name string) *Node {
	if n.Children == nil {
		n.Children = make(map[string]*Node)
	}
	c, ok := n.Children[name]
	if !ok {
		c = &Node{}
		n.Children[name] = c
	}
	return c
}

// finalize computes the derived counters bottom-up.
func (n *Node) finalize() {
	for _, c := range n.Children {
		c.finalize()
	}
	n.Matched = min(n.InventoryCount, n.ActualCount)
	n.Missing = max(0, n.InventoryCount-n.ActualCount)
	n.Extra = max(0, n.ActualCount-n.InventoryCount)
	n.MatchRate = MatchRate(n.Matched, n.InventoryCount)
}
