package piverif

// CollectHornClauses walks every frame of n and emits the HornClauses
// induced by its StateCells and SCRs, per spec.md section 4.5. Frame
// index doubles as Rank (0-based). Recursive contribution lookups are
// cached on each StateCell (CachedPremises) to amortize repeated
// queries across overlapping derivations.
func (n *Nession) CollectHornClauses() []HornClause {
	out := []HornClause{}
	for r := range n.Frames {
		frame := &n.Frames[r]
		for i := range frame.Cells {
			cell := &frame.Cells[i]
			if cell.Producer == nil {
				continue
			}
			strChain := []string{cell.Condition.Name}
			for _, premise := range cell.Producer.Premises() {
				if premise.Tag != Make {
					continue
				}
				premises := n.contributingKnow(r, i)
				for _, makeMsg := range premise.Messages {
					out = append(out, NewHornClause(premises, makeMsg, cell.Producer.RuleGuard(), r, NessionRuleSource{FrameRank: r, STRChain: strChain}))
				}
			}
		}
		for _, scr := range frame.SCRs {
			if scr.Result.Tag != Know {
				continue
			}
			premises := append([]Message{}, KnowPremises(scr.Premises())...)
			for _, snap := range scr.Snapshots().Traces() {
				if idx := findCellIndex(*frame, snap.CellName()); idx >= 0 {
					premises = append(premises, n.contributingKnow(r, idx)...)
				}
			}
			guard := frame.CumulativeGuard.Union(scr.RuleGuard())
			out = append(out, NewHornClause(premises, scr.Result.Messages[0], guard, r, NessionRuleSource{FrameRank: r}))
		}
	}
	return out
}

// contributingKnow returns every Know-tagged message that recursively
// contributed to the value held by the cell at (frameIdx, cellIdx): the
// producing STR's own Know-premises, plus (recursively) the
// contributions of every cell its snapshot tree reads in the
// immediately preceding frame.
func (n *Nession) contributingKnow(frameIdx, cellIdx int) []Message {
	cell := &n.Frames[frameIdx].Cells[cellIdx]
	if cell.cacheValid {
		return cell.cachedPremises
	}
	msgs := []Message{}
	if cell.Producer != nil {
		for _, p := range cell.Producer.Premises() {
			if p.Tag == Know {
				msgs = append(msgs, p.Messages[0])
			}
		}
		if frameIdx > 0 {
			for _, snap := range cell.Producer.Snapshots().Traces() {
				if idx := findCellIndex(n.Frames[frameIdx-1], snap.CellName()); idx >= 0 {
					msgs = append(msgs, n.contributingKnow(frameIdx-1, idx)...)
				}
			}
		}
	}
	msgs = dedupMessages(msgs)
	cell.cachedPremises = msgs
	cell.cacheValid = true
	return msgs
}

func findCellIndex(f Frame, name string) int {
	for i, c := range f.Cells {
		if c.Condition.Name == name {
			return i
		}
	}
	return -1
}

// StatelessKnowledgeRules converts every stateless SCR in rules to a
// rank -1 ("any time") HornClause -- the "stateless SCRs convert to
// Horn clauses directly" line of spec.md section 3.
func StatelessKnowledgeRules(rules []*StateConsistentRule) []HornClause {
	out := []HornClause{}
	for _, r := range rules {
		if hc, ok := FromSCR(r, AnyRank); ok {
			out = append(out, hc)
		}
	}
	return out
}
