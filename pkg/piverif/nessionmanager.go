package piverif

import (
	"context"
	"sync/atomic"
)

// NessionManager runs the elaboration loop that grows an initial nession
// into a finite set of symbolic traces by repeatedly applying
// system rules (SCRs) to saturation, then applying compatible groups of
// transferring rules (STRs) to advance to the next frame.
type NessionManager struct {
	SystemRules             []*StateConsistentRule
	TransferringRules       []*StateTransferringRule
	Knitter                 *KnitPattern
	NumberOfSubElaborations int
	CheckIteratively        bool
	FinishedFunc            func([]*Nession) bool

	cancelled int32
}

// NewNessionManager constructs a NessionManager, building its
// KnitPattern from strs and scrs.
func NewNessionManager(scrs []*StateConsistentRule, strs []*StateTransferringRule, numberOfSubElaborations int, finishedFunc func([]*Nession) bool, checkIteratively bool) *NessionManager {
	return &NessionManager{
		SystemRules:             scrs,
		TransferringRules:       strs,
		Knitter:                 NewKnitPattern(strs, scrs),
		NumberOfSubElaborations: numberOfSubElaborations,
		CheckIteratively:        checkIteratively,
		FinishedFunc:            finishedFunc,
	}
}

// CancelElaboration cooperatively halts Elaborate after its current SCR
// pass.
func (m *NessionManager) CancelElaboration() {
	atomic.StoreInt32(&m.cancelled, 1)
}

func (m *NessionManager) isCancelled() bool {
	return atomic.LoadInt32(&m.cancelled) != 0
}

// Elaborate drives the alternating-generation state machine described in
// spec.md section 4.7, starting from initial, and returns every nession
// found. If CheckIteratively is false, FinishedFunc is invoked exactly
// once at the end with the complete list, reversed so the deepest
// nessions are examined first; it is not invoked when elaboration is
// cancelled.
func (m *NessionManager) Elaborate(ctx context.Context, initial *Nession) []*Nession {
	a := []*Nession{initial}
	processed := []*Nession{}

	for iter := 0; m.NumberOfSubElaborations <= 0 || iter < m.NumberOfSubElaborations; iter++ {
		// Step 1: saturate with SCRs, one pass per system rule.
		for _, scr := range m.SystemRules {
			next := make([]*Nession, 0, len(a))
			for _, nession := range a {
				if results, ok := nession.TryApplySystemRule(scr); ok {
					next = append(next, results...)
				} else {
					next = append(next, nession)
				}
			}
			a = next
		}

		select {
		case <-ctx.Done():
			return finalize(processed, a, m.FinishedFunc, m.CheckIteratively, true)
		default:
		}
		if m.isCancelled() {
			return finalize(processed, a, m.FinishedFunc, m.CheckIteratively, true)
		}
		if m.CheckIteratively && m.FinishedFunc != nil && m.FinishedFunc(a) {
			return finalize(processed, a, m.FinishedFunc, true, true)
		}

		// Step 3: advance a frame via compatible STR groups.
		next := []*Nession{}
		anyExtended := false
		for _, nession := range a {
			groups := m.Knitter.GetTransferGroups(nession)
			if len(groups) == 0 {
				next = append(next, nession)
				continue
			}
			extendedAny := false
			for _, group := range groups {
				strs := make([]*StateTransferringRule, len(group))
				for i, idx := range group {
					strs[i] = m.TransferringRules[idx]
				}
				extended, prefixStillValid, ok := nession.TryApplyMultipleTransfers(strs)
				if !ok {
					continue
				}
				extendedAny = true
				anyExtended = true
				next = append(next, extended)
				if prefixStillValid {
					next = append(next, nession)
				}
			}
			if !extendedAny {
				next = append(next, nession)
			}
		}

		if !anyExtended {
			processed = append(processed, a...)
			a = next
			break
		}
		processed = append(processed, a...)
		a = next
	}

	return finalize(processed, a, m.FinishedFunc, m.CheckIteratively, false)
}

func finalize(processed, final []*Nession, finishedFunc func([]*Nession) bool, checkIteratively, wasCancelled bool) []*Nession {
	all := append(append([]*Nession{}, processed...), final...)
	if !checkIteratively && finishedFunc != nil && !wasCancelled {
		reversed := make([]*Nession, len(all))
		for i, n := range all {
			reversed[len(all)-1-i] = n
		}
		finishedFunc(reversed)
	}
	return all
}
