package piverif

import (
	"fmt"
	"sort"
)

// Rule is the common shape shared by StateConsistentRule and
// StateTransferringRule: a set of Premises, a Guard, a SnapshotTree, and
// an alpha-renaming operation used to avoid variable capture when a rule
// is inserted into a nession.
type Rule interface {
	Premises() []Event
	RuleGuard() Guard
	Snapshots() SnapshotTree
	// SubscriptVariables renames every variable v to a name unique to tag
	// (e.g. "v@tag"), returning a fresh Rule.
	SubscriptVariables(tag string) Rule
	// Substitute returns a semantically identical Rule with every message,
	// guard and snapshot substituted by sm.
	Substitute(sm SigmaMap) Rule
	// NonceDeclarations returns the set of New(n) events in Premises.
	NonceDeclarations() []Event
	// NoncesRequired returns the multiset of nonce leaves referenced by
	// the rule's messages but not declared by this rule itself.
	NoncesRequired() []Message
	// IsStateless reports whether the rule's SnapshotTree is empty.
	IsStateless() bool
}

func eventsVariables(evs []Event) map[string]struct{} {
	set := map[string]struct{}{}
	for _, e := range evs {
		for _, m := range e.Messages {
			for _, v := range m.Variables() {
				set[v] = struct{}{}
			}
		}
	}
	return set
}

func subscriptMapFor(vars map[string]struct{}, tag string) SigmaMap {
	sm := NewSigmaMap()
	for v := range vars {
		sm = sm.Bind(v, NewVariable(fmt.Sprintf("%s@%s", v, tag)))
	}
	return sm
}

// nonceDeclarationsOf extracts New(n) events from premises.
func nonceDeclarationsOf(premises []Event) []Event {
	out := []Event{}
	for _, e := range premises {
		if e.Tag == New {
			out = append(out, e)
		}
	}
	return out
}

// noncesRequiredOf returns the Nonce leaves referenced anywhere in
// premises/result messages that are not declared (as New events) among
// premises.
func noncesRequiredOf(premises []Event, extra ...[]Event) []Message {
	declared := map[string]struct{}{}
	for _, e := range premises {
		if e.Tag == New {
			for _, m := range e.Messages {
				declared[m.Name()] = struct{}{}
			}
		}
	}
	seen := map[string]Message{}
	collect := func(e Event) {
		for _, m := range e.Messages {
			collectNonces(m, declared, seen)
		}
	}
	for _, e := range premises {
		collect(e)
	}
	for _, evs := range extra {
		for _, e := range evs {
			collect(e)
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Message, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}

func collectNonces(m Message, declared map[string]struct{}, out map[string]Message) {
	if m.kind == KindNonce {
		if _, ok := declared[m.name]; !ok {
			out[m.name] = m
		}
		return
	}
	for _, k := range m.children() {
		collectNonces(k, declared, out)
	}
}

// StateConsistentRule (SCR) acts on a frame without changing state; its
// Result is a single Event (usually Know). Carries a stable IdTag
// assigned once by the engine, used to avoid re-adding the same SCR to a
// frame (MatchesTagOf) and to keep it at most once per frame.
type StateConsistentRule struct {
	premises  []Event
	Result    Event
	guard     Guard
	snapshots SnapshotTree
	IdTag     int64
}

// NewSCR constructs a StateConsistentRule.
func NewSCR(idTag int64, premises []Event, result Event, guard Guard, snapshots SnapshotTree) *StateConsistentRule {
	cp := make([]Event, len(premises))
	copy(cp, premises)
	return &StateConsistentRule{premises: cp, Result: result, guard: guard, snapshots: snapshots, IdTag: idTag}
}

func (r *StateConsistentRule) Premises() []Event      { return r.premises }
func (r *StateConsistentRule) RuleGuard() Guard        { return r.guard }
func (r *StateConsistentRule) Snapshots() SnapshotTree { return r.snapshots }
func (r *StateConsistentRule) IsStateless() bool       { return r.snapshots.IsEmpty() }

func (r *StateConsistentRule) NonceDeclarations() []Event { return nonceDeclarationsOf(r.premises) }

func (r *StateConsistentRule) NoncesRequired() []Message {
	return noncesRequiredOf(r.premises, []Event{r.Result})
}

// SubscriptVariables alpha-renames every variable in the rule to a name
// unique to tag, preserving IdTag.
func (r *StateConsistentRule) SubscriptVariables(tag string) Rule {
	all := append(append([]Event{}, r.premises...), r.Result)
	vars := eventsVariables(all)
	for _, snap := range r.snapshots.Traces() {
		for v := range snapshotVariables(snap) {
			vars[v] = struct{}{}
		}
	}
	sm := subscriptMapFor(vars, tag)
	return &StateConsistentRule{
		premises:  subscriptEventsWith(r.premises, sm),
		Result:    r.Result.Substitute(sm),
		guard:     r.guard.Substitute(sm),
		snapshots: r.snapshots.Substitute(sm),
		IdTag:     r.IdTag,
	}
}

func subscriptEventsWith(evs []Event, sm SigmaMap) []Event {
	out := make([]Event, len(evs))
	for i, e := range evs {
		out[i] = e.Substitute(sm)
	}
	return out
}

// Substitute returns a fresh StateConsistentRule with sm applied
// throughout, IdTag preserved.
func (r *StateConsistentRule) Substitute(sm SigmaMap) Rule {
	return &StateConsistentRule{
		premises:  subscriptEventsWith(r.premises, sm),
		Result:    r.Result.Substitute(sm),
		guard:     r.guard.Substitute(sm),
		snapshots: r.snapshots.Substitute(sm),
		IdTag:     r.IdTag,
	}
}

// MatchesTagOf reports whether r and other carry the same IdTag --
// used to avoid re-adding the same SCR to a frame.
func (r *StateConsistentRule) MatchesTagOf(other *StateConsistentRule) bool {
	return r.IdTag == other.IdTag
}

// Transformation describes how one cell is rewritten by a
// StateTransferringRule: the Snapshot of the value(s) that must precede
// it, and the new value the cell takes on.
type Transformation struct {
	AfterPoint Snapshot
	NewValue   State
}

// Substitute applies sm to both halves of a Transformation.
func (tr Transformation) Substitute(sm SigmaMap) Transformation {
	return Transformation{AfterPoint: tr.AfterPoint.Substitute(sm), NewValue: tr.NewValue.Substitute(sm)}
}

// StateTransferringRule (STR) moves the system from one frame to the
// next: its Result is a list of Transformations, each rewriting one cell.
type StateTransferringRule struct {
	premises        []Event
	Transformations []Transformation
	guard           Guard
	snapshots       SnapshotTree
}

// NewSTR constructs a StateTransferringRule.
func NewSTR(premises []Event, transformations []Transformation, guard Guard, snapshots SnapshotTree) *StateTransferringRule {
	cp := make([]Event, len(premises))
	copy(cp, premises)
	trs := make([]Transformation, len(transformations))
	copy(trs, transformations)
	return &StateTransferringRule{premises: cp, Transformations: trs, guard: guard, snapshots: snapshots}
}

func (r *StateTransferringRule) Premises() []Event      { return r.premises }
func (r *StateTransferringRule) RuleGuard() Guard        { return r.guard }
func (r *StateTransferringRule) Snapshots() SnapshotTree { return r.snapshots }
func (r *StateTransferringRule) IsStateless() bool       { return r.snapshots.IsEmpty() }

func (r *StateTransferringRule) NonceDeclarations() []Event { return nonceDeclarationsOf(r.premises) }

func (r *StateTransferringRule) NoncesRequired() []Message {
	extra := make([]Event, 0, len(r.Transformations))
	for _, tr := range r.Transformations {
		extra = append(extra, NewEvent(Make, tr.NewValue.Value))
	}
	return noncesRequiredOf(r.premises, extra)
}

// SubscriptVariables alpha-renames every variable in the rule uniquely
// to tag.
func (r *StateTransferringRule) SubscriptVariables(tag string) Rule {
	vars := eventsVariables(r.premises)
	for _, tr := range r.Transformations {
		for v := range snapshotVariables(tr.AfterPoint) {
			vars[v] = struct{}{}
		}
		for _, v := range tr.NewValue.Value.Variables() {
			vars[v] = struct{}{}
		}
	}
	for _, snap := range r.snapshots.Traces() {
		for v := range snapshotVariables(snap) {
			vars[v] = struct{}{}
		}
	}
	sm := subscriptMapFor(vars, tag)
	return r.Substitute(sm).(*StateTransferringRule)
}

func snapshotVariables(sn Snapshot) map[string]struct{} {
	set := map[string]struct{}{}
	for _, v := range sn.Current.Value.Variables() {
		set[v] = struct{}{}
	}
	for _, p := range sn.Priors() {
		for _, v := range p.State.Value.Variables() {
			set[v] = struct{}{}
		}
	}
	return set
}

// Substitute returns a fresh StateTransferringRule with sm applied.
func (r *StateTransferringRule) Substitute(sm SigmaMap) Rule {
	trs := make([]Transformation, len(r.Transformations))
	for i, tr := range r.Transformations {
		trs[i] = tr.Substitute(sm)
	}
	return &StateTransferringRule{
		premises:        subscriptEventsWith(r.premises, sm),
		Transformations: trs,
		guard:           r.guard.Substitute(sm),
		snapshots:       r.snapshots.Substitute(sm),
	}
}

// KnowPremises returns the subset of r's premises tagged Know, projected
// to their messages.
func KnowPremises(premises []Event) []Message {
	out := []Message{}
	for _, e := range premises {
		if e.Tag == Know {
			out = append(out, e.Messages[0])
		}
	}
	return out
}
