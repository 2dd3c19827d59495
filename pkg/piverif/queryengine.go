package piverif

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gitrdm/piverif/internal/parallel"
)

// DefaultMaximumTerms is the default budget of QueryNode assessments a
// single query is allowed to spend before QueryEngine falls back to
// FinalAssess's greedy promotion of Unresolvable-only option sets.
const DefaultMaximumTerms = 300

// QueryEngine drives backward-search proof resolution over the
// HornClauses a NessionManager's elaborated nessions induce. It is
// immutable and safe to reuse across many (nession, query) pairs; all
// mutable search state lives in the proveState built by each Verify
// call.
type QueryEngine struct {
	SystemRules  []*StateConsistentRule
	MaximumTerms int
}

// NewQueryEngine constructs a QueryEngine. maximumTerms <= 0 selects
// DefaultMaximumTerms.
func NewQueryEngine(systemRules []*StateConsistentRule, maximumTerms int) *QueryEngine {
	if maximumTerms <= 0 {
		maximumTerms = DefaultMaximumTerms
	}
	return &QueryEngine{SystemRules: systemRules, MaximumTerms: maximumTerms}
}

type proveState struct {
	matrix   *QueryNodeMatrix
	frontier *frontier
	clauses  []HornClause
	budget   int
}

// Verify attempts to prove that query is knowable to the attacker at the
// end of nession n, under guard. It returns an Attack witness on
// success. ctx cancellation is checked between node assessments.
func (qe *QueryEngine) Verify(ctx context.Context, n *Nession, query Message, guard Guard) (*Attack, bool) {
	ps := &proveState{
		matrix:   NewQueryNodeMatrix(),
		frontier: newFrontier(),
		clauses:  append(StatelessKnowledgeRules(qe.SystemRules), n.CollectHornClauses()...),
		budget:   qe.MaximumTerms,
	}

	root := ps.matrix.Intern(query, AnyRank, guard)
	if root.State == Unresolvable {
		return nil, false
	}
	ps.frontier.push(root)

	for !ps.frontier.empty() && ps.budget > 0 {
		select {
		case <-ctx.Done():
			ps.budget = 0
		default:
		}
		if ps.budget <= 0 {
			break
		}
		node, ok := ps.frontier.pop()
		if !ok || node.assessed {
			continue
		}
		ps.budget--
		node.AssessRules(ps.clauses)
		qe.propagateFrom(node)

		for _, opt := range node.OptionSets {
			for _, p := range opt.Premises {
				if !p.assessed && p.State != Unresolvable {
					ps.frontier.push(p)
				}
			}
		}
		if root.State == Proven || root.State == Failed {
			break
		}
	}

	if root.State != Proven && root.State != Failed {
		qe.finalAssess(ps, root)
	}

	if root.State != Proven {
		return nil, false
	}
	return &Attack{Query: query, Nession: n, Root: root}, true
}

// VerifyAny fans query out across nessions, one task per nession, on
// pool. It returns the first Attack any task finds. Per spec.md section
// 5, the query step is embarrassingly parallel across independent
// nessions: every Message/HornClause/Guard reachable from qe and each
// nession is immutable after construction, so workers share them safely
// while each Verify call keeps its own proveState. errgroup propagates
// the first task's cancellation to the rest once an Attack is found, or
// the first real error (there are none today; Verify never returns one,
// but errgroup is what carries ctx cancellation through pool.Submit).
func (qe *QueryEngine) VerifyAny(ctx context.Context, pool *parallel.Pool, nessions []*Nession, query Message, guard Guard) (*Attack, bool) {
	group, groupCtx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var found *Attack

	for _, n := range nessions {
		n := n
		group.Go(func() error {
			resultCh := make(chan *Attack, 1)
			submitErr := pool.Submit(groupCtx, func() {
				attack, ok := qe.Verify(groupCtx, n, query, guard)
				if ok {
					resultCh <- attack
					return
				}
				resultCh <- nil
			})
			if submitErr != nil {
				return submitErr
			}
			if attack := <-resultCh; attack != nil {
				mu.Lock()
				if found == nil {
					found = attack
				}
				mu.Unlock()
				return errFoundAttack
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil && err != errFoundAttack {
		return nil, false
	}
	if found == nil {
		return nil, false
	}
	return found, true
}

var errFoundAttack = fmt.Errorf("attack found")

// propagateFrom re-derives the state of every ancestor of node (via
// LeadingFrom) reachable through an option set whose state actually
// changed, breadth-first.
func (qe *QueryEngine) propagateFrom(node *QueryNode) {
	queue := []*QueryNode{node}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, opt := range cur.LeadingFrom {
			before := opt.Node.State
			opt.Refresh()
			after := opt.Node.RefreshState()
			if after != before {
				queue = append(queue, opt.Node)
			}
		}
	}
}

// finalAssess implements the fallback Verify runs when the search ends
// (budget exhausted or frontier empty) with root unresolved: any option set
// whose only unresolved premises are bare-variable (Unresolvable) nodes
// is greedily promoted to Proven, on the reasoning that a bare variable
// premise can always be instantiated to whatever the attacker already
// knows. This repeats to a fixpoint, or until root itself resolves.
func (qe *QueryEngine) finalAssess(ps *proveState, root *QueryNode) {
	for root.State != Proven && root.State != Failed {
		changed := false
		for _, n := range ps.matrix.All() {
			if n.State != Waiting {
				continue
			}
			for _, opt := range n.OptionSets {
				if opt.State == Proven {
					continue
				}
				if opt.refreshAllowingUnresolvable() {
					opt.State = Proven
					n.State = Proven
					changed = true
					qe.propagateFrom(n)
					break
				}
			}
		}
		if !changed {
			return
		}
	}
}
