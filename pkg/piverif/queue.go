package piverif

import "container/heap"

// nodeHeap is a container/heap.Interface over pending QueryNodes, ordered
// by descending message depth: the query engine works on the most
// specific (deepest) goals first, so that generic premises like
// variables resolve only after their more concrete siblings have had a
// chance to fail fast.
type nodeHeap []*QueryNode

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	return h[i].Message.Depth() > h[j].Message.Depth()
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nodeHeap) Push(x any) {
	*h = append(*h, x.(*QueryNode))
}

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// frontier is a priority queue of QueryNodes awaiting AssessRules.
type frontier struct {
	h nodeHeap
}

func newFrontier() *frontier {
	f := &frontier{}
	heap.Init(&f.h)
	return f
}

func (f *frontier) push(n *QueryNode) {
	heap.Push(&f.h, n)
}

func (f *frontier) pop() (*QueryNode, bool) {
	if f.h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&f.h).(*QueryNode), true
}

func (f *frontier) empty() bool {
	return f.h.Len() == 0
}
