package piverif

// IsUnifiableWith reports whether m and other can be unified, without
// recording any bindings. It is a convenience wrapper around
// DetermineUnifiableSubstitution using a scratch SigmaFactory and empty
// guards.
func (m Message) IsUnifiableWith(other Message) bool {
	sf := NewSigmaFactory()
	return m.DetermineUnifiableSubstitution(other, EmptyGuard(), EmptyGuard(), sf)
}

// DetermineUnifiableSubstitution performs bidirectional unification: a
// variable on either side may be bound. gThis guards bindings recorded
// for m's side (forward), gOther guards bindings recorded for other's
// side (backward). Successful tentative bindings are accumulated into sf.
func (m Message) DetermineUnifiableSubstitution(other Message, gThis, gOther Guard, sf *SigmaFactory) bool {
	t1 := sf.ForwardSubstitute(m, NewSigmaMap())
	t2 := other.Substitute(sf.backward)

	if t1.kind == KindVariable && t2.kind == KindVariable && t1.name == t2.name {
		return true
	}
	if t1.kind == KindVariable {
		if gThis.Forbids(t1, t2) {
			return false
		}
		return sf.bindForward(t1, t2)
	}
	if t2.kind == KindVariable {
		if gOther.Forbids(t2, t1) {
			return false
		}
		return sf.bindBackward(t2, t1)
	}
	if t1.kind != t2.kind {
		return false
	}
	switch t1.kind {
	case KindName, KindNonce:
		return t1.name == t2.name
	case KindFunction:
		if t1.name != t2.name || len(t1.args) != len(t2.args) {
			return false
		}
		for i := range t1.args {
			if !t1.args[i].DetermineUnifiableSubstitution(t2.args[i], gThis, gOther, sf) {
				return false
			}
		}
		return true
	case KindTuple:
		if len(t1.members) != len(t2.members) {
			return false
		}
		for i := range t1.members {
			if !t1.members[i].DetermineUnifiableSubstitution(t2.members[i], gThis, gOther, sf) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// DetermineUnifiedToSubstitution performs one-sided unification: only
// variables on m's side may be bound; other is the target shape. This is
// the relation used by implication checks (a.Implies(b)), where a
// premise/result of `a` must specialize to one of `b`.
func (m Message) DetermineUnifiedToSubstitution(other Message, gThis Guard, sf *SigmaFactory) bool {
	t1 := sf.ForwardSubstitute(m, NewSigmaMap())
	t2 := other

	if t1.kind == KindVariable {
		if existing, ok := sf.forward.Lookup(t1.name); ok {
			return existing.Equal(t2)
		}
		if gThis.Forbids(t1, t2) {
			return false
		}
		return sf.bindForward(t1, t2)
	}
	if t1.kind != t2.kind {
		return false
	}
	switch t1.kind {
	case KindName, KindNonce:
		return t1.name == t2.name
	case KindFunction:
		if t1.name != t2.name || len(t1.args) != len(t2.args) {
			return false
		}
		for i := range t1.args {
			if !t1.args[i].DetermineUnifiedToSubstitution(t2.args[i], gThis, sf) {
				return false
			}
		}
		return true
	case KindTuple:
		if len(t1.members) != len(t2.members) {
			return false
		}
		for i := range t1.members {
			if !t1.members[i].DetermineUnifiedToSubstitution(t2.members[i], gThis, sf) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
