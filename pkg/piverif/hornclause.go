package piverif

import (
	"sort"
	"strconv"
)

// HornClause is a ranked Horn clause: Premises (a set of Messages) imply
// Result, subject to Guard, ordered by Rank (-1 meaning "any time").
// Hash and Equal ignore Source but include Rank and Guard.
type HornClause struct {
	Premises []Message
	Result   Message
	Guard    Guard
	Rank     int
	Source   RuleSource
}

// NewHornClause builds a HornClause, deduplicating Premises (set
// semantics) and sorting them for deterministic iteration.
func NewHornClause(premises []Message, result Message, guard Guard, rank int, source RuleSource) HornClause {
	return HornClause{Premises: dedupMessages(premises), Result: result, Guard: guard, Rank: rank, Source: source}
}

func dedupMessages(ms []Message) []Message {
	seen := map[string]Message{}
	for _, m := range ms {
		seen[m.String()] = m
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

// key returns a canonical string identifying c's Premises/Result/Rank/
// Guard, ignoring Source -- used for set-membership and equality.
func (c HornClause) key() string {
	s := c.Result.String() + "|" + c.Guard.String() + "|rank=" + rankString(c.Rank) + "|{"
	for i, p := range c.Premises {
		if i > 0 {
			s += ","
		}
		s += p.String()
	}
	return s + "}"
}

func rankString(r int) string {
	if r == AnyRank {
		return "*"
	}
	return strconv.Itoa(r)
}

// Equal reports whether c and other have the same Premises (as a set),
// Result, Guard and Rank. Source is ignored.
func (c HornClause) Equal(other HornClause) bool {
	return c.key() == other.key()
}

// Substitute returns a fresh HornClause with sm applied to every
// premise, the result and the guard.
func (c HornClause) Substitute(sm SigmaMap) HornClause {
	premises := make([]Message, len(c.Premises))
	for i, p := range c.Premises {
		premises[i] = p.Substitute(sm)
	}
	return NewHornClause(premises, c.Result.Substitute(sm), c.Guard.Substitute(sm), c.Rank, SubstitutionSource{Of: c, Sigma: sm})
}

// hasPremise reports whether m (by structural equality) is among c's
// Premises.
func (c HornClause) hasPremise(m Message) (int, bool) {
	for i, p := range c.Premises {
		if p.Equal(m) {
			return i, true
		}
	}
	return -1, false
}

// isSelfReferential reports whether c's Result unifies with one of its
// own non-variable premises -- composition is not iterated through such
// a clause, to prevent infinite loops.
func (c HornClause) isSelfReferential() bool {
	for _, p := range c.Premises {
		if p.IsVariable() {
			continue
		}
		if c.Result.IsUnifiableWith(p) {
			return true
		}
	}
	return false
}

// ComposeUpon tries to insert a's Result into a non-variable premise of
// b of the same Kind, via bidirectional unification. On success it
// returns the composed clause and true. If no premise admits a, it
// returns the zero HornClause and false.
func (a HornClause) ComposeUpon(b HornClause) (HornClause, bool) {
	for _, p := range b.Premises {
		if p.IsVariable() || p.Kind() != a.Result.Kind() {
			continue
		}
		sf := NewSigmaFactory()
		if !a.Result.DetermineUnifiableSubstitution(p, a.Guard, b.Guard, sf) {
			continue
		}
		forward := sf.CreateForwardMap()
		backward := sf.CreateBackwardMap()

		newResult := b.Result.Substitute(backward)

		newPremises := []Message{}
		for _, bp := range b.Premises {
			if bp.Equal(p) {
				continue
			}
			newPremises = append(newPremises, bp.Substitute(backward))
		}
		for _, ap := range a.Premises {
			newPremises = append(newPremises, ap.Substitute(forward))
		}

		newGuard := a.Guard.Substitute(forward).Union(b.Guard.Substitute(backward))
		newRank := RatchetRank(a.Rank, b.Rank)

		composed := NewHornClause(newPremises, newResult, newGuard, newRank, CompositionSource{A: a, B: b})
		if _, selfPremised := composed.hasPremise(composed.Result); selfPremised {
			continue
		}
		return composed, true
	}
	return HornClause{}, false
}

// ComposeToFixpoint repeatedly composes a upon b (and upon the results of
// prior compositions) until no further composition is possible,
// returning every intermediate clause produced along the way. A
// self-referential clause is never iterated through, to prevent
// infinite composition loops.
func ComposeToFixpoint(a, b HornClause) []HornClause {
	out := []HornClause{}
	current, ok := a.ComposeUpon(b)
	for ok {
		out = append(out, current)
		if current.isSelfReferential() {
			break
		}
		current, ok = a.ComposeUpon(current)
	}
	return out
}

// looseVariables returns the premises of c that are single-variable
// premises whose variable does not occur in the Result, any other
// premise, or the Guard -- such a premise could be discharged by any
// attacker-known atom and carries no constraint.
func (c HornClause) looseVariables() []int {
	resultVars := toSet(c.Result.Variables())
	loose := []int{}
	for i, p := range c.Premises {
		if !p.IsVariable() {
			continue
		}
		if _, inResult := resultVars[p.Name()]; inResult {
			continue
		}
		appearsElsewhere := false
		for j, q := range c.Premises {
			if j == i {
				continue
			}
			for _, v := range q.Variables() {
				if v == p.Name() {
					appearsElsewhere = true
					break
				}
			}
			if appearsElsewhere {
				break
			}
		}
		if appearsElsewhere {
			continue
		}
		if c.Guard.Forbids(p, p) || guardMentions(c.Guard, p.Name()) {
			continue
		}
		loose = append(loose, i)
	}
	return loose
}

func guardMentions(g Guard, varName string) bool {
	_, ok := g.banned[varName]
	return ok
}

func toSet(ss []string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, s := range ss {
		out[s] = struct{}{}
	}
	return out
}

// ScrubLooseVariables drops every loose premise from c. It is
// idempotent: calling it again on the result finds no further loose
// premises, and never changes the set of derivable results.
func (c HornClause) ScrubLooseVariables() HornClause {
	loose := c.looseVariables()
	if len(loose) == 0 {
		return c
	}
	looseSet := map[int]struct{}{}
	for _, i := range loose {
		looseSet[i] = struct{}{}
	}
	kept := []Message{}
	for i, p := range c.Premises {
		if _, drop := looseSet[i]; drop {
			continue
		}
		kept = append(kept, p)
	}
	return NewHornClause(kept, c.Result, c.Guard, c.Rank, ScrubSource{Of: c})
}

// DetupleResult splits c into one clause per component if c's Result is
// a Tuple, recursing on each component's own Result (which may itself be
// a Tuple). Returns {c} unchanged if Result is not a Tuple.
func (c HornClause) DetupleResult() []HornClause {
	if c.Result.Kind() != KindTuple {
		return []HornClause{c}
	}
	out := []HornClause{}
	for i, member := range c.Result.Members() {
		component := NewHornClause(c.Premises, member, c.Guard, c.Rank, DetupleSource{Of: c, Index: i})
		out = append(out, component.DetupleResult()...)
	}
	return out
}

// Implies reports whether a.Implies(b): there is a forward-only
// substitution sigma such that a.Result.Substitute(sigma) == b.Result,
// every premise of a unifies one-sidedly (in lockstep, scanning b's
// premises left to right in sorted order, never reusing one b-premise
// for two distinct a-premises) to a premise of b, a.Guard == b.Guard,
// and ranks compare appropriately (equal if a has premises; a.Rank <=
// b.Rank if a has none).
func (a HornClause) Implies(b HornClause) bool {
	if !a.Guard.Equals(b.Guard) {
		return false
	}
	if len(a.Premises) > 0 {
		if a.Rank != b.Rank {
			return false
		}
	} else if !BeforeRank(a.Rank, b.Rank) {
		return false
	}

	sf := NewSigmaFactory()
	if !a.Result.DetermineUnifiedToSubstitution(b.Result, a.Guard, sf) {
		return false
	}

	used := make([]bool, len(b.Premises))
	for _, ap := range a.Premises {
		matched := false
		for j, bp := range b.Premises {
			if used[j] {
				continue
			}
			trial := *sf
			if ap.DetermineUnifiedToSubstitution(bp, a.Guard, &trial) {
				*sf = trial
				used[j] = true
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// FilterImpliedRules removes any clause implied by another clause in the
// list. When two clauses imply each other, the one with the lower (more
// permissive) rank is retained.
func FilterImpliedRules(list []HornClause) []HornClause {
	keep := make([]bool, len(list))
	for i := range list {
		keep[i] = true
	}
	for i := range list {
		if !keep[i] {
			continue
		}
		for j := range list {
			if i == j || !keep[j] {
				continue
			}
			iImpliesJ := list[i].Implies(list[j])
			jImpliesI := list[j].Implies(list[i])
			switch {
			case iImpliesJ && jImpliesI:
				if list[i].Rank == AnyRank || (list[j].Rank != AnyRank && list[i].Rank <= list[j].Rank) {
					keep[j] = false
				} else {
					keep[i] = false
				}
			case jImpliesI:
				keep[i] = false
			}
		}
	}
	out := []HornClause{}
	for i, k := range keep {
		if k {
			out = append(out, list[i])
		}
	}
	return out
}

// CanResultIn reports whether there is a substitution making c.Result
// equal to m while respecting both c.Guard and callerGuard. Dangling
// variables introduced by the substitution but not appearing in m are
// renamed to fresh "instance" variables, so two independent callers of
// CanResultIn never alias each other's free variables.
func (c HornClause) CanResultIn(m Message, callerGuard Guard) (*SigmaFactory, bool) {
	sf := NewSigmaFactory()
	if !c.Result.DetermineUnifiableSubstitution(m, c.Guard, callerGuard, sf) {
		return nil, false
	}
	mVars := toSet(m.Variables())
	forward := sf.CreateForwardMap()
	rename := NewSigmaMap()
	for _, k := range forward.Keys() {
		v, _ := forward.Lookup(k)
		for _, fv := range v.Variables() {
			if _, inM := mVars[fv]; !inM {
				rename = rename.Bind(fv, NewVariable(fv+"$instance"))
			}
		}
	}
	if rename.Len() > 0 {
		renamed := NewSigmaFactory()
		renamed.forward = forward.renameRange(rename)
		renamed.backward = sf.backward
		renamed.NotBackward = sf.NotBackward
		return renamed, true
	}
	return sf, true
}

// renameRange returns sm with every binding's range (but not its keys)
// substituted by rename.
func (sm SigmaMap) renameRange(rename SigmaMap) SigmaMap {
	out := NewSigmaMap()
	for _, k := range sm.Keys() {
		v, _ := sm.Lookup(k)
		out = out.Bind(k, v.Substitute(rename))
	}
	return out
}

// FromSCR converts a stateless StateConsistentRule to a HornClause:
// Know-premises project to messages, the single Result (which must be
// Know) supplies the clause's Result, and Guard is preserved.
func FromSCR(r *StateConsistentRule, rank int) (HornClause, bool) {
	if !r.IsStateless() || r.Result.Tag != Know {
		return HornClause{}, false
	}
	return NewHornClause(KnowPremises(r.Premises()), r.Result.Messages[0], r.RuleGuard(), rank, NessionRuleSource{FrameRank: rank}), true
}

// ToKnowEvents converts c back into an equivalent SCR-shaped premise/
// result pair of Know events, for interop with rule-oriented code.
func (c HornClause) ToKnowEvents() (premises []Event, result Event) {
	for _, p := range c.Premises {
		premises = append(premises, KnowEvent(p))
	}
	result = KnowEvent(c.Result)
	return
}
