package piverif

import "sort"

// State is a named cell condition carrying one message value: the
// assertion "cell Name currently holds Value".
type State struct {
	Name  string
	Value Message
}

// NewState constructs a State.
func NewState(name string, value Message) State {
	return State{Name: name, Value: value}
}

// Equal reports whether s and other name the same cell with equal values.
func (s State) Equal(other State) bool {
	return s.Name == other.Name && s.Value.Equal(other.Value)
}

// Less orders States by cell name, then by value string -- used to keep
// a Frame's StateCells sorted alphabetically by name so cells of the
// same name share positional identity across a nession.
func (s State) Less(other State) bool {
	if s.Name != other.Name {
		return s.Name < other.Name
	}
	return s.Value.String() < other.Value.String()
}

// Substitute applies sm to s's value.
func (s State) Substitute(sm SigmaMap) State {
	return State{Name: s.Name, Value: s.Value.Substitute(sm)}
}

// String renders s deterministically.
func (s State) String() string {
	return s.Name + "=" + s.Value.String()
}

// CanBeUnifiableWith tentatively unifies s's value against other's value,
// provided they name the same cell, recording bindings into sf under the
// supplied guards. Returns false (without mutating sf further than any
// partial work already performed by the underlying unification) if the
// cells differ or the values do not unify.
func (s State) CanBeUnifiableWith(other State, gThis, gOther Guard, sf *SigmaFactory) bool {
	if s.Name != other.Name {
		return false
	}
	return s.Value.DetermineUnifiableSubstitution(other.Value, gThis, gOther, sf)
}

// PriorOrdering tags how a prior link in a Snapshot chain relates to the
// value that follows it.
type PriorOrdering int

const (
	// ModifiedOnceAfter forbids skipping: the next older distinct value
	// of the cell must unify with this prior state, or the match fails.
	ModifiedOnceAfter PriorOrdering = iota
	// ModifiedAnyTimesAfter permits skipping over any number of
	// non-unifying predecessor values before this prior state must match.
	ModifiedAnyTimesAfter
)

// priorLink is one link in a Snapshot's chain of prior states.
type priorLink struct {
	State State
	Order PriorOrdering
}

// Snapshot encodes the premise "cell X held these values, in this order,
// prior to the current frame." It carries the current (most recent)
// State plus a chain of priors.
type Snapshot struct {
	Current State
	priors  []priorLink
}

// NewSnapshot starts a Snapshot at current with no prior chain.
func NewSnapshot(current State) Snapshot {
	return Snapshot{Current: current}
}

// Before extends the Snapshot's prior chain with (state, order), reading
// newest-to-oldest -- the first call to Before records the value
// immediately preceding Current, the next call the value before that,
// and so on.
func (sn Snapshot) Before(state State, order PriorOrdering) Snapshot {
	out := sn.clone()
	out.priors = append(out.priors, priorLink{State: state, Order: order})
	return out
}

// Priors returns the chain of prior links, oldest-call-first (i.e. in
// the order Before was called, which is newest-to-oldest in wall-clock
// terms).
func (sn Snapshot) Priors() []struct {
	State State
	Order PriorOrdering
} {
	out := make([]struct {
		State State
		Order PriorOrdering
	}, len(sn.priors))
	for i, p := range sn.priors {
		out[i] = struct {
			State State
			Order PriorOrdering
		}{State: p.State, Order: p.Order}
	}
	return out
}

// Substitute applies sm to the Current state and every prior link.
func (sn Snapshot) Substitute(sm SigmaMap) Snapshot {
	out := Snapshot{Current: sn.Current.Substitute(sm)}
	out.priors = make([]priorLink, len(sn.priors))
	for i, p := range sn.priors {
		out.priors[i] = priorLink{State: p.State.Substitute(sm), Order: p.Order}
	}
	return out
}

// CellName returns the name of the cell this snapshot constrains.
func (sn Snapshot) CellName() string { return sn.Current.Name }

func (sn Snapshot) clone() Snapshot {
	out := Snapshot{Current: sn.Current}
	out.priors = append([]priorLink(nil), sn.priors...)
	return out
}

// SnapshotTree aggregates the Snapshots appearing in one Rule, keyed by
// cell name (a Rule reads or mutates each cell's history at most once).
type SnapshotTree struct {
	byCell map[string]Snapshot
}

// NewSnapshotTree returns an empty SnapshotTree.
func NewSnapshotTree() SnapshotTree {
	return SnapshotTree{byCell: map[string]Snapshot{}}
}

// With returns a new SnapshotTree extending t with snap.
func (t SnapshotTree) With(snap Snapshot) SnapshotTree {
	out := t.clone()
	out.byCell[snap.CellName()] = snap
	return out
}

// Traces returns the Snapshots held by t, sorted by cell name for
// deterministic iteration.
func (t SnapshotTree) Traces() []Snapshot {
	names := make([]string, 0, len(t.byCell))
	for n := range t.byCell {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Snapshot, len(names))
	for i, n := range names {
		out[i] = t.byCell[n]
	}
	return out
}

// IsEmpty reports whether t holds no snapshots -- a Rule whose
// SnapshotTree is empty is stateless.
func (t SnapshotTree) IsEmpty() bool { return len(t.byCell) == 0 }

// Substitute applies sm to every Snapshot in t.
func (t SnapshotTree) Substitute(sm SigmaMap) SnapshotTree {
	out := NewSnapshotTree()
	for _, snap := range t.byCell {
		out = out.With(snap.Substitute(sm))
	}
	return out
}

func (t SnapshotTree) clone() SnapshotTree {
	out := SnapshotTree{byCell: make(map[string]Snapshot, len(t.byCell))}
	for k, v := range t.byCell {
		out.byCell[k] = v
	}
	return out
}
