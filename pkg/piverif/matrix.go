package piverif

// QueryNodeMatrix interns QueryNodes by (Message, Rank, Guard): two
// requests for the same key return the same *QueryNode object, so the
// AND/OR proof graph never duplicates a goal.
type QueryNodeMatrix struct {
	nodes map[string]*QueryNode
}

// NewQueryNodeMatrix returns an empty matrix.
func NewQueryNodeMatrix() *QueryNodeMatrix {
	return &QueryNodeMatrix{nodes: map[string]*QueryNode{}}
}

func nodeKey(msg Message, rank int, guard Guard) string {
	return msg.String() + "|" + rankString(rank) + "|" + guard.String()
}

// Intern returns the canonical QueryNode for (msg, rank, guard),
// creating it (in InProgress state, or Unresolvable if msg is a bare
// Variable) if it does not already exist.
func (qm *QueryNodeMatrix) Intern(msg Message, rank int, guard Guard) *QueryNode {
	key := nodeKey(msg, rank, guard)
	if existing, ok := qm.nodes[key]; ok {
		return existing
	}
	node := &QueryNode{Message: msg, Rank: rank, Guard: guard, matrix: qm}
	if msg.IsVariable() {
		node.State = Unresolvable
	} else {
		node.State = InProgress
	}
	qm.nodes[key] = node
	return node
}

// All returns every interned node, for diagnostics and testing.
func (qm *QueryNodeMatrix) All() []*QueryNode {
	out := make([]*QueryNode, 0, len(qm.nodes))
	for _, n := range qm.nodes {
		out = append(out, n)
	}
	return out
}
