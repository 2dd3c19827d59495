package piverif

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Nession ("nonce session") is an append-only sequence of Frames. It
// keeps the set of nonce declarations seen so far and a monotonically
// increasing vNumber used to alpha-rename rule variables on every
// application, guaranteeing uniqueness across the whole nession (the
// counter is never decremented, even when a rule application partially
// succeeds).
//
// ID identifies this nession branch for logging and attack reporting;
// it is assigned once per branch point (NewNession and every clone) so
// that a query that succeeds against several elaborated nessions can be
// traced back to the specific branch the Attack came from.
type Nession struct {
	ID      string
	Frames  []Frame
	nonces  map[string]struct{}
	vNumber int64
}

// NewNession starts a nession from a sorted list of initial States, each
// stored as a StateCell with no producing STR.
func NewNession(initial []State) *Nession {
	cells := make([]StateCell, len(initial))
	for i, s := range initial {
		cells[i] = NewInitialStateCell(s)
	}
	return &Nession{
		ID:     uuid.NewString(),
		Frames: []Frame{NewFrame(cells, EmptyGuard())},
		nonces: map[string]struct{}{},
	}
}

// LastFrame returns the nession's most recent frame.
func (n *Nession) LastFrame() Frame { return n.Frames[len(n.Frames)-1] }

// nextVNumber increments and returns the nession's alpha-renaming tag.
func (n *Nession) nextVNumber() int64 {
	n.vNumber++
	return n.vNumber
}

func (n *Nession) clone() *Nession {
	out := &Nession{
		ID:      uuid.NewString(),
		Frames:  append([]Frame{}, n.Frames...),
		nonces:  make(map[string]struct{}, len(n.nonces)),
		vNumber: n.vNumber,
	}
	for k := range n.nonces {
		out.nonces[k] = struct{}{}
	}
	return out
}

// substituteAll returns a clone of n with sm applied to every frame.
func (n *Nession) substituteAll(sm SigmaMap) *Nession {
	out := n.clone()
	for i := range out.Frames {
		out.Frames[i] = out.Frames[i].Substitute(sm)
	}
	return out
}

// checkNonceBookkeeping reports whether r's nonce declarations do not
// redeclare an already-declared nonce, and every nonce r requires has
// already been declared in n.
func (n *Nession) checkNonceBookkeeping(r Rule) bool {
	for _, decl := range r.NonceDeclarations() {
		for _, m := range decl.Messages {
			if _, already := n.nonces[m.Name()]; already {
				return false
			}
		}
	}
	for _, required := range r.NoncesRequired() {
		if _, declared := n.nonces[required.Name()]; !declared {
			return false
		}
	}
	return true
}

func (n *Nession) declareNonces(r Rule) {
	for _, decl := range r.NonceDeclarations() {
		for _, m := range decl.Messages {
			n.nonces[m.Name()] = struct{}{}
		}
	}
}

// cellHistory returns the States the named cell has held, newest first,
// deduplicating immediate repeats so only distinct predecessor values
// remain.
func (n *Nession) cellHistory(cellName string) []State {
	out := []State{}
	for i := len(n.Frames) - 1; i >= 0; i-- {
		cell, ok := n.Frames[i].Cell(cellName)
		if !ok {
			continue
		}
		if len(out) > 0 && out[len(out)-1].Equal(cell.Condition) {
			continue
		}
		out = append(out, cell.Condition)
	}
	return out
}

// matchSnapshot attempts to match snap against n's cell history,
// accumulating bindings into sf. It implements the walk of spec.md
// section 4.2: the current value must unify with Current; then walking
// the prior chain in order, ModifiedOnceAfter forbids skipping to a
// later distinct predecessor value, while ModifiedAnyTimesAfter permits
// skipping over values that do not unify.
func (n *Nession) matchSnapshot(snap Snapshot, sf *SigmaFactory) bool {
	history := n.cellHistory(snap.CellName())
	if len(history) == 0 {
		return false
	}
	if !snap.Current.CanBeUnifiableWith(history[0], EmptyGuard(), EmptyGuard(), sf) {
		return false
	}
	idx := 1
	for _, prior := range snap.Priors() {
		switch prior.Order {
		case ModifiedOnceAfter:
			if idx >= len(history) {
				return false
			}
			if !prior.State.CanBeUnifiableWith(history[idx], EmptyGuard(), EmptyGuard(), sf) {
				return false
			}
			idx++
		case ModifiedAnyTimesAfter:
			matched := false
			for ; idx < len(history); idx++ {
				if prior.State.CanBeUnifiableWith(history[idx], EmptyGuard(), EmptyGuard(), sf) {
					idx++
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
	}
	return true
}

// CanApplyRule reports whether r's nonce bookkeeping is consistent with n
// and every snapshot trace in r matches n's history, accumulating a
// single consistent SigmaFactory across all of r's snapshots.
func (n *Nession) CanApplyRule(r Rule, sf *SigmaFactory) bool {
	if !n.checkNonceBookkeeping(r) {
		return false
	}
	for _, snap := range r.Snapshots().Traces() {
		if !n.matchSnapshot(snap, sf) {
			return false
		}
	}
	return true
}

// TryApplySystemRule alpha-renames scr via the next vNumber and attempts
// CanApplyRule. On success it splits the accumulated SigmaFactory into a
// forward and backward map. If the backward map is empty, it returns a
// copy of n (with a fresh ID) whose final frame has the substituted SCR
// added (preserving IdTag); n itself is not modified. Otherwise it returns two nessions: n unchanged (remains a
// possibility) and a branched nession with the backward map applied to
// every frame.
func (n *Nession) TryApplySystemRule(scr *StateConsistentRule) ([]*Nession, bool) {
	renamed := scr.SubscriptVariables(fmt.Sprintf("v%d", n.nextVNumber())).(*StateConsistentRule)

	sf := NewSigmaFactory()
	if !n.CanApplyRule(renamed, sf) {
		return nil, false
	}

	forward := sf.CreateForwardMap()
	backward := sf.CreateBackwardMap()

	applied := renamed.Substitute(forward).(*StateConsistentRule)
	if sf.NotBackward {
		out := n.clone()
		out.declareNonces(applied)
		last := len(out.Frames) - 1
		out.Frames[last] = out.Frames[last].WithSCR(applied)
		return []*Nession{out}, true
	}

	branched := n.substituteAll(backward)
	branched.declareNonces(applied.Substitute(backward).(*StateConsistentRule))
	last := len(branched.Frames) - 1
	branched.Frames[last] = branched.Frames[last].WithSCR(applied.Substitute(backward).(*StateConsistentRule))

	return []*Nession{n, branched}, true
}

// TryApplyMultipleTransfers alpha-renames each STR uniquely, accumulates
// bindings for all of them into one SigmaFactory (failing atomically if
// any STR fails), then builds the next frame by applying each transfer's
// (Snapshot, newState) substitution. The frame is rejected if it is
// cell-wise identical to the previous one. Returns the extended nession
// and whether n itself remains a valid (unextended) alternative.
func (n *Nession) TryApplyMultipleTransfers(strs []*StateTransferringRule) (*Nession, bool, bool) {
	sf := NewSigmaFactory()
	renamedSTRs := make([]*StateTransferringRule, len(strs))
	for i, str := range strs {
		renamed := str.SubscriptVariables(fmt.Sprintf("v%d", n.nextVNumber())).(*StateTransferringRule)
		if !n.CanApplyRule(renamed, sf) {
			return nil, false, false
		}
		renamedSTRs[i] = renamed
	}

	forward := sf.CreateForwardMap()
	backward := sf.CreateBackwardMap()

	base := n.clone()
	if !sf.NotBackward {
		base = n.substituteAll(backward)
	}

	newCells := append([]StateCell{}, base.LastFrame().Cells...)
	for i, str := range renamedSTRs {
		applied := str.Substitute(forward)
		if !sf.NotBackward {
			applied = applied.Substitute(backward)
		}
		astr := applied.(*StateTransferringRule)
		base.declareNonces(astr)
		for _, tr := range astr.Transformations {
			newCells = replaceCell(newCells, tr.NewValue, astr)
		}
		_ = i
	}

	newFrame := NewFrame(newCells, base.LastFrame().CumulativeGuard)
	if newFrame.CellsEqual(base.LastFrame()) {
		return nil, false, false
	}

	out := base.clone()
	out.Frames = append(out.Frames, newFrame)
	return out, sf.NotBackward, true
}

func replaceCell(cells []StateCell, newValue State, producer *StateTransferringRule) []StateCell {
	out := make([]StateCell, len(cells))
	replaced := false
	for i, c := range cells {
		if c.Condition.Name == newValue.Name {
			out[i] = NewProducedStateCell(newValue, producer)
			replaced = true
		} else {
			out[i] = c
		}
	}
	if !replaced {
		out = append(out, NewProducedStateCell(newValue, producer))
		sort.Slice(out, func(i, j int) bool { return out[i].Condition.Name < out[j].Condition.Name })
	}
	return out
}

// MatchingWhenAtEnd returns a variant of n in which at least one cell of
// the final frame unifies with whenState, propagating any backward
// substitution; ok is false if no cell matches.
func (n *Nession) MatchingWhenAtEnd(whenState State) (*Nession, bool) {
	for _, cell := range n.LastFrame().Cells {
		if cell.Condition.Name != whenState.Name {
			continue
		}
		sf := NewSigmaFactory()
		if !cell.Condition.CanBeUnifiableWith(whenState, EmptyGuard(), EmptyGuard(), sf) {
			continue
		}
		backward := sf.CreateBackwardMap()
		if backward.Len() == 0 {
			return n, true
		}
		return n.substituteAll(backward), true
	}
	return nil, false
}

// FindStateVariables returns the union of variable names across every
// State condition in every frame.
func (n *Nession) FindStateVariables() []string {
	set := map[string]struct{}{}
	for _, f := range n.Frames {
		for _, c := range f.Cells {
			for _, v := range c.Condition.Value.Variables() {
				set[v] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
