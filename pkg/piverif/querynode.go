package piverif

// NodeState is the state of one goal in the AND/OR proof graph built by
// a QueryEngine over a nession's HornClauses.
type NodeState int

const (
	InProgress NodeState = iota
	Waiting
	Proven
	Failed
	Unresolvable
)

func (s NodeState) String() string {
	switch s {
	case InProgress:
		return "InProgress"
	case Waiting:
		return "Waiting"
	case Proven:
		return "Proven"
	case Failed:
		return "Failed"
	case Unresolvable:
		return "Unresolvable"
	default:
		return "?"
	}
}

// QueryNode is one interned goal: prove that Message is knowable by the
// attacker at Rank, under Guard. Its state is derived from its
// PremiseOptionSets, one per HornClause whose result could produce
// Message.
type QueryNode struct {
	Message Message
	Rank    int
	Guard   Guard
	State   NodeState

	OptionSets []*PremiseOptionSet

	// LeadingFrom holds every option set that lists this node as a
	// premise, so a state change here can propagate to its ancestors.
	LeadingFrom []*PremiseOptionSet

	assessed bool
	matrix   *QueryNodeMatrix
}

// AssessRules tries every clause in clauses whose rank precedes the
// node's and whose result could produce the node's message, building one
// PremiseOptionSet per successful match. Tuple-valued messages also get
// a synthetic "detuple" option set whose premises are the tuple's
// members. Idempotent: a node is only assessed once.
func (qn *QueryNode) AssessRules(clauses []HornClause) {
	if qn.assessed || qn.State == Unresolvable {
		return
	}
	qn.assessed = true

	candidates := clauses
	if qn.Message.Kind() == KindTuple {
		synthetic := NewHornClause(qn.Message.Members(), qn.Message, EmptyGuard(), qn.Rank, nil)
		candidates = append(append([]HornClause{}, clauses...), synthetic)
	}

	for _, clause := range candidates {
		if !BeforeRank(clause.Rank, qn.Rank) {
			continue
		}
		sf, ok := clause.CanResultIn(qn.Message, qn.Guard)
		if !ok {
			continue
		}
		forward := sf.CreateForwardMap()
		premiseMsgs := make([]Message, len(clause.Premises))
		for i, p := range clause.Premises {
			premiseMsgs[i] = p.Substitute(forward)
		}
		combinedGuard := qn.Guard.Union(clause.Guard.Substitute(forward))

		premiseNodes := make([]*QueryNode, len(premiseMsgs))
		for i, pm := range premiseMsgs {
			premiseNodes[i] = qn.matrix.Intern(pm, qn.Rank, combinedGuard)
		}

		opt := &PremiseOptionSet{
			Node:     qn,
			Clause:   clause,
			Premises: premiseNodes,
			Sigma:    sf,
		}
		for _, pn := range premiseNodes {
			pn.LeadingFrom = append(pn.LeadingFrom, opt)
		}
		qn.OptionSets = append(qn.OptionSets, opt)
	}

	qn.RefreshState()
}

// RefreshState recomputes qn.State from the current state of its option
// sets: Proven if any option set is Proven, Failed if every option set
// is Failed (or there are none), Waiting otherwise.
func (qn *QueryNode) RefreshState() NodeState {
	if qn.State == Unresolvable {
		return qn.State
	}
	if len(qn.OptionSets) == 0 {
		if qn.assessed {
			qn.State = Failed
		}
		return qn.State
	}

	anyProven := false
	allFailed := true
	for _, opt := range qn.OptionSets {
		switch opt.Refresh() {
		case Proven:
			anyProven = true
		case Failed:
			// leave allFailed as-is
		default:
			allFailed = false
		}
	}
	switch {
	case anyProven:
		qn.State = Proven
	case allFailed:
		qn.State = Failed
	default:
		qn.State = Waiting
	}
	return qn.State
}

// SuccessfulOptionSet returns the first Proven option set, or nil.
func (qn *QueryNode) SuccessfulOptionSet() *PremiseOptionSet {
	for _, opt := range qn.OptionSets {
		if opt.State == Proven {
			return opt
		}
	}
	return nil
}
