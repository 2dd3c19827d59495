package piverif

import (
	"fmt"
	"sort"
)

// KnitPattern precomputes, over the lists of StateTransferringRules and
// StateConsistentRules a translation produced, which pairs of STRs may
// be applied together in one frame transition without interfering. This
// replaces the naive cross-product of transfers with a polynomial
// grouping: GetTransferGroups returns maximal sets of mutually
// compatible, currently-applicable STRs.
type KnitPattern struct {
	strs []*StateTransferringRule
	scrs []*StateConsistentRule

	affects        []map[string]struct{}
	concurrentSCRs [][]int
	dependentSCRs  [][]int
	compatible     [][]bool
}

// NewKnitPattern builds the compatibility matrix for strs and scrs. For
// each STR it records the cells it affects, the SCRs that could fire
// concurrently with it (those depending only on cells it does not
// overwrite), and the SCRs that depend on its outputs (those reading a
// cell it writes).
func NewKnitPattern(strs []*StateTransferringRule, scrs []*StateConsistentRule) *KnitPattern {
	kp := &KnitPattern{strs: strs, scrs: scrs}
	kp.affects = make([]map[string]struct{}, len(strs))
	for i, str := range strs {
		kp.affects[i] = cellsWrittenBy(str)
	}

	kp.concurrentSCRs = make([][]int, len(strs))
	kp.dependentSCRs = make([][]int, len(strs))
	for i, str := range strs {
		for j, scr := range scrs {
			read := cellsReadBy(scr)
			dependsOnWrite := false
			for cell := range read {
				if _, written := kp.affects[i][cell]; written {
					dependsOnWrite = true
					break
				}
			}
			if dependsOnWrite {
				kp.dependentSCRs[i] = append(kp.dependentSCRs[i], j)
			} else {
				kp.concurrentSCRs[i] = append(kp.concurrentSCRs[i], j)
			}
		}
	}

	kp.compatible = make([][]bool, len(strs))
	for i := range strs {
		kp.compatible[i] = make([]bool, len(strs))
		for j := range strs {
			if i == j {
				continue
			}
			kp.compatible[i][j] = kp.pairCompatible(i, j)
		}
	}
	return kp
}

func cellsWrittenBy(str *StateTransferringRule) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tr := range str.Transformations {
		out[tr.NewValue.Name] = struct{}{}
	}
	return out
}

func cellsReadBy(r Rule) map[string]struct{} {
	out := map[string]struct{}{}
	for _, snap := range r.Snapshots().Traces() {
		out[snap.CellName()] = struct{}{}
	}
	return out
}

func (kp *KnitPattern) pairCompatible(i, j int) bool {
	for cell := range kp.affects[i] {
		if _, overlap := kp.affects[j][cell]; overlap {
			return false
		}
	}
	if intersectsInts(kp.concurrentSCRs[i], kp.dependentSCRs[j]) {
		return false
	}
	if intersectsInts(kp.concurrentSCRs[j], kp.dependentSCRs[i]) {
		return false
	}
	return true
}

func intersectsInts(a, b []int) bool {
	set := map[int]struct{}{}
	for _, x := range a {
		set[x] = struct{}{}
	}
	for _, y := range b {
		if _, ok := set[y]; ok {
			return true
		}
	}
	return false
}

// GetTransferGroups returns maximal sets of mutually-compatible STRs
// that are currently applicable against n, as index slices into the
// strs passed to NewKnitPattern. Groups of size one that can be applied
// without a backward substitution ("empties") are combined up to the
// largest compatible combination, since they never conflict with the
// rest of the frame's history.
func (kp *KnitPattern) GetTransferGroups(n *Nession) [][]int {
	applicable := []int{}
	empties := []int{}
	for i, str := range kp.strs {
		scratch := NewSigmaFactory()
		if !n.CanApplyRule(str, scratch) {
			continue
		}
		applicable = append(applicable, i)
		if scratch.NotBackward {
			empties = append(empties, i)
		}
	}
	if len(applicable) == 0 {
		return nil
	}

	groups := [][]int{}
	for _, seed := range applicable {
		group := []int{seed}
		for _, cand := range applicable {
			if cand == seed || containsInt(group, cand) {
				continue
			}
			if kp.compatibleWithAll(cand, group) {
				group = append(group, cand)
			}
		}
		groups = append(groups, group)
	}

	if len(empties) > 1 {
		combined := []int{}
		for _, e := range empties {
			if kp.compatibleWithAll(e, combined) {
				combined = append(combined, e)
			}
		}
		if len(combined) > 1 {
			groups = append(groups, combined)
		}
	}

	return dedupGroups(groups)
}

func (kp *KnitPattern) compatibleWithAll(cand int, group []int) bool {
	for _, g := range group {
		if !kp.compatible[cand][g] {
			return false
		}
	}
	return true
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func dedupGroups(groups [][]int) [][]int {
	seen := map[string]struct{}{}
	out := [][]int{}
	for _, g := range groups {
		cp := append([]int{}, g...)
		sort.Ints(cp)
		key := fmt.Sprint(cp)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, cp)
	}
	return out
}
