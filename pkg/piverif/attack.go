package piverif

import (
	"fmt"
	"strings"
)

// Attack is a successful proof that an attacker can come to know Query
// by the end of Nession's final frame. Root is the proof's top-level
// QueryNode; walking SuccessfulOptionSet recursively reconstructs the
// whole derivation.
type Attack struct {
	Query   Message
	Nession *Nession
	Root    *QueryNode
}

// GetStateConsistentProof flattens the derivation into the sequence of
// HornClauses it applies, parent before children, in the order a reader
// would want to check them -- but unlike a plain first-Proven-option-set
// walk, it requires every clause it picks to agree on the concrete value
// of any state variable (a.Nession.FindStateVariables) more than one
// premise binds. Two sibling premises can each have their own Proven
// option set yet disagree about what a shared state variable equals (one
// option set was derived against an earlier cell value, the other
// against a later one); assembling both into one Attack would produce an
// internally-inconsistent witness. assembleConsistent backtracks to the
// next Proven option set at the conflicting node instead. ok is false if
// no combination of option sets agrees on every state variable -- the
// derivation exists but cannot be replayed as one consistent trace.
func (a *Attack) GetStateConsistentProof() ([]HornClause, bool) {
	stateVars := map[string]struct{}{}
	for _, v := range a.Nession.FindStateVariables() {
		stateVars[v] = struct{}{}
	}
	out := []HornClause{}
	bindings := map[string]Message{}
	ok := assembleConsistent(a.Root, stateVars, bindings, &out)
	return out, ok
}

// assembleConsistent tries each of n's Proven option sets in turn,
// extending bindings with any state-variable value that option set's
// Sigma fixes and recursing into its premises; it accepts the first
// option set whose choice (and whose premises' choices, recursively)
// never conflicts with a binding already fixed elsewhere in the proof.
func assembleConsistent(n *QueryNode, stateVars map[string]struct{}, bindings map[string]Message, out *[]HornClause) bool {
	if n.State == Unresolvable {
		return true
	}
	for _, opt := range n.OptionSets {
		if opt.State != Proven {
			continue
		}
		trialBindings := make(map[string]Message, len(bindings))
		for k, v := range bindings {
			trialBindings[k] = v
		}
		if !recordStateBindings(opt, stateVars, trialBindings) {
			continue
		}
		trialClauses := []HornClause{opt.Clause}
		consistent := true
		for _, p := range opt.Premises {
			if !assembleConsistent(p, stateVars, trialBindings, &trialClauses) {
				consistent = false
				break
			}
		}
		if !consistent {
			continue
		}
		*out = append(*out, trialClauses...)
		for k, v := range trialBindings {
			bindings[k] = v
		}
		return true
	}
	return false
}

// recordStateBindings checks opt's Sigma against every state variable
// already fixed in bindings, failing on the first disagreement, and
// otherwise records any newly-fixed state variable into bindings.
func recordStateBindings(opt *PremiseOptionSet, stateVars map[string]struct{}, bindings map[string]Message) bool {
	if opt.Sigma == nil {
		return true
	}
	forward := opt.Sigma.CreateForwardMap()
	for v := range stateVars {
		msg, ok := forward.Lookup(v)
		if !ok {
			continue
		}
		if existing, seen := bindings[v]; seen {
			if !existing.Equal(msg) {
				return false
			}
			continue
		}
		bindings[v] = msg
	}
	return true
}

// Describe renders the derivation tree as indented "knows ..." lines,
// headed by the ID of the nession branch the attack was found against.
func (a *Attack) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "nession %s:\n", a.Nession.ID)
	describeNode(&b, a.Root, 1, false)
	return b.String()
}

// DescribeWithSources is Describe, additionally annotating each step
// with the RuleSource that produced its HornClause (composition,
// substitution, detuple, scrub, or nession-frame origin).
func (a *Attack) DescribeWithSources() string {
	var b strings.Builder
	fmt.Fprintf(&b, "nession %s:\n", a.Nession.ID)
	describeNode(&b, a.Root, 1, true)
	return b.String()
}

func describeNode(b *strings.Builder, n *QueryNode, depth int, withSources bool) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%sattacker knows %s", indent, n.Message.String())

	if n.State == Unresolvable {
		b.WriteString(" (free variable, any term)\n")
		return
	}
	opt := n.SuccessfulOptionSet()
	if opt == nil {
		b.WriteString(" (unresolved)\n")
		return
	}
	b.WriteString("\n")
	if withSources && opt.Clause.Source != nil {
		fmt.Fprintf(b, "%s  via %s: %s\n", indent, opt.Clause.Source.Kind(), opt.Clause.Source.Describe())
	}
	for _, p := range opt.Premises {
		describeNode(b, p, depth+1, withSources)
	}
}
