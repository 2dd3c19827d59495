package piverif

// SigmaFactory records bidirectional tentative substitutions during
// unification: a forward map (bindings made on the "this"/left side) and
// a backward map (bindings made on the "other"/right side), kept
// consistent so that composing them would unify the two original terms.
//
// NotBackward is true when no variable of the "existing" side (the side
// already present in a nession's history) was bound backward -- the
// knit pattern uses this to know a rule applies without rewriting
// history.
type SigmaFactory struct {
	forward     SigmaMap
	backward    SigmaMap
	NotBackward bool
}

// NewSigmaFactory returns an empty SigmaFactory with NotBackward true.
func NewSigmaFactory() *SigmaFactory {
	return &SigmaFactory{forward: NewSigmaMap(), backward: NewSigmaMap(), NotBackward: true}
}

// CreateForwardMap returns the accumulated forward SigmaMap.
func (sf *SigmaFactory) CreateForwardMap() SigmaMap { return sf.forward }

// CreateBackwardMap returns the accumulated backward SigmaMap.
func (sf *SigmaFactory) CreateBackwardMap() SigmaMap { return sf.backward }

// bindForward records v -> m in the forward map. Returns false if v is
// already bound to a different message (a binding conflict).
func (sf *SigmaFactory) bindForward(v, m Message) bool {
	if existing, ok := sf.forward.Lookup(v.Name()); ok {
		return existing.Equal(m)
	}
	sf.forward = sf.forward.Bind(v.Name(), m)
	return true
}

// bindBackward records v -> m in the backward map and clears
// NotBackward. Returns false on a binding conflict.
func (sf *SigmaFactory) bindBackward(v, m Message) bool {
	if existing, ok := sf.backward.Lookup(v.Name()); ok {
		return existing.Equal(m)
	}
	sf.backward = sf.backward.Bind(v.Name(), m)
	sf.NotBackward = false
	return true
}

// ForwardSubstitute applies the forward map to m, additionally consulting
// extra for variables not yet present in the forward map.
func (sf *SigmaFactory) ForwardSubstitute(m Message, extra SigmaMap) Message {
	out := m.Substitute(sf.forward)
	return out.Substitute(extra)
}

// ForwardIsValidByGuard reports whether every forward binding respects g.
func (sf *SigmaFactory) ForwardIsValidByGuard(g Guard) bool {
	return sigmaRespectsGuard(sf.forward, g)
}

// BackwardIsValidByGuard reports whether every backward binding respects g.
func (sf *SigmaFactory) BackwardIsValidByGuard(g Guard) bool {
	return sigmaRespectsGuard(sf.backward, g)
}

func sigmaRespectsGuard(sm SigmaMap, g Guard) bool {
	for _, k := range sm.Keys() {
		v, _ := sm.Lookup(k)
		if g.Forbids(Message{kind: KindVariable, name: k}, v) {
			return false
		}
	}
	return true
}
