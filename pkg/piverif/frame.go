package piverif

import "sort"

// StateCell holds one cell's current condition and the STR that
// produced it (nil for an initial cell). CachedPremises and
// CachedLeadupRules amortize repeated CollectHornClauses queries across
// a nession; Substitute always produces a fresh StateCell with an empty
// cache, since the cached values would otherwise describe stale
// messages.
type StateCell struct {
	Condition State
	Producer  *StateTransferringRule

	cachedPremises    []Message
	cachedLeadupRules []*StateConsistentRule
	cacheValid        bool
}

// NewInitialStateCell builds a StateCell with no producing rule.
func NewInitialStateCell(condition State) StateCell {
	return StateCell{Condition: condition}
}

// NewProducedStateCell builds a StateCell produced by str.
func NewProducedStateCell(condition State, str *StateTransferringRule) StateCell {
	return StateCell{Condition: condition, Producer: str}
}

// Substitute applies sm to the cell's condition, returning a fresh
// StateCell with no cache (caches are invalidated on substitution).
func (c StateCell) Substitute(sm SigmaMap) StateCell {
	var producer *StateTransferringRule
	if c.Producer != nil {
		producer = c.Producer.Substitute(sm).(*StateTransferringRule)
	}
	return StateCell{Condition: c.Condition.Substitute(sm), Producer: producer}
}

// Frame is one discrete point in a nession: a sorted list of StateCells
// (alphabetically by cell name, so cells of the same name share
// positional identity across the nession), the SCRs found applicable in
// this frame, and a CumulativeGuard. The CumulativeGuard of a new
// nession's frame is empty and each later frame carries its
// predecessor's forward (substituted along with the frames); the guards
// of the rules applied to the nession are not added to it.
type Frame struct {
	Cells        []StateCell
	SCRs         []*StateConsistentRule
	CumulativeGuard Guard
}

// NewFrame builds a Frame from cells, sorting them alphabetically by
// cell name.
func NewFrame(cells []StateCell, guard Guard) Frame {
	cp := append([]StateCell{}, cells...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Condition.Name < cp[j].Condition.Name })
	return Frame{Cells: cp, CumulativeGuard: guard}
}

// Cell looks up the StateCell named name, if present.
func (f Frame) Cell(name string) (StateCell, bool) {
	for _, c := range f.Cells {
		if c.Condition.Name == name {
			return c, true
		}
	}
	return StateCell{}, false
}

// WithSCR returns a copy of f with scr appended, unless an SCR with the
// same IdTag is already present (an SCR IdTag appears at most once per
// frame).
func (f Frame) WithSCR(scr *StateConsistentRule) Frame {
	for _, existing := range f.SCRs {
		if existing.MatchesTagOf(scr) {
			return f
		}
	}
	out := f
	out.SCRs = append(append([]*StateConsistentRule{}, f.SCRs...), scr)
	return out
}

// CellsEqual reports whether f and other hold cell-wise identical
// conditions (used to reject a newly extended frame that made no
// progress).
func (f Frame) CellsEqual(other Frame) bool {
	if len(f.Cells) != len(other.Cells) {
		return false
	}
	for i := range f.Cells {
		if !f.Cells[i].Condition.Equal(other.Cells[i].Condition) {
			return false
		}
	}
	return true
}

// Substitute applies sm to every cell and SCR in f, and to the
// cumulative guard.
func (f Frame) Substitute(sm SigmaMap) Frame {
	cells := make([]StateCell, len(f.Cells))
	for i, c := range f.Cells {
		cells[i] = c.Substitute(sm)
	}
	scrs := make([]*StateConsistentRule, len(f.SCRs))
	for i, s := range f.SCRs {
		scrs[i] = s.Substitute(sm).(*StateConsistentRule)
	}
	return Frame{Cells: cells, SCRs: scrs, CumulativeGuard: f.CumulativeGuard.Substitute(sm)}
}
