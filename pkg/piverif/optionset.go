package piverif

// PremiseOptionSet is one way to prove a QueryNode: the HornClause whose
// result unified with the node's message, and the (interned) premise
// nodes that must in turn be proven. Sigma records the bindings the
// unification produced, so a successful option set can be replayed into
// a concrete Attack derivation.
type PremiseOptionSet struct {
	Node     *QueryNode
	Clause   HornClause
	Premises []*QueryNode
	Sigma    *SigmaFactory

	State NodeState
}

// Refresh recomputes the option set's state from its premise nodes: any
// Failed premise fails the set; every premise Proven proves it;
// otherwise it is still Waiting -- an Unresolvable premise does NOT
// satisfy Refresh on its own (see refreshAllowingUnresolvable below for
// the only place that weaker rule applies, as a last-resort fallback
// once the search ends with the root unresolved, not Refresh's ordinary
// behavior).
func (opt *PremiseOptionSet) Refresh() NodeState {
	if len(opt.Premises) == 0 {
		opt.State = Proven
		return opt.State
	}
	allSatisfied := true
	for _, p := range opt.Premises {
		if p.State == Failed {
			opt.State = Failed
			return opt.State
		}
		if p.State != Proven {
			allSatisfied = false
		}
	}
	if allSatisfied {
		opt.State = Proven
	} else {
		opt.State = Waiting
	}
	return opt.State
}

// refreshAllowingUnresolvable is used by FinalAssess's fallback: it treats Unresolvable premises as discharged even though
// Refresh ordinarily requires them to be fully Proven.
func (opt *PremiseOptionSet) refreshAllowingUnresolvable() bool {
	for _, p := range opt.Premises {
		if p.State == Failed {
			return false
		}
		if p.State != Proven && p.State != Unresolvable {
			return false
		}
	}
	return true
}
