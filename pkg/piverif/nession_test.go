package piverif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNession_CanApplyRule_MatchesCurrentCellValue(t *testing.T) {
	n := NewNession([]State{NewState("cell", NewName("initial"))})

	snap := NewSnapshot(NewState("cell", NewVariable("v")))
	str := NewSTR(nil, []Transformation{{AfterPoint: snap, NewValue: NewState("cell", NewName("next"))}}, EmptyGuard(), NewSnapshotTree().With(snap))

	sf := NewSigmaFactory()
	ok := n.CanApplyRule(str, sf)
	require.True(t, ok)

	forward := sf.CreateForwardMap()
	bound, found := forward.Lookup("v")
	require.True(t, found)
	assert.True(t, bound.Equal(NewName("initial")))
}

func TestNession_CanApplyRule_FailsWhenSnapshotNamesUnknownCell(t *testing.T) {
	n := NewNession([]State{NewState("cell", NewName("initial"))})

	snap := NewSnapshot(NewState("missing", NewVariable("v")))
	str := NewSTR(nil, []Transformation{{AfterPoint: snap, NewValue: NewState("missing", NewName("next"))}}, EmptyGuard(), NewSnapshotTree().With(snap))

	sf := NewSigmaFactory()
	assert.False(t, n.CanApplyRule(str, sf))
}

func TestNession_TryApplySystemRule_AddsStatelessFactToLastFrame(t *testing.T) {
	n := NewNession(nil)
	scr := NewSCR(1, nil, KnowEvent(NewName("secret")), EmptyGuard(), NewSnapshotTree())

	results, ok := n.TryApplySystemRule(scr)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Len(t, results[0].LastFrame().SCRs, 1)
}

func TestNession_TryApplyMultipleTransfers_AdvancesFrameOnSuccessfulWrite(t *testing.T) {
	n := NewNession([]State{NewState("cell", NewName("empty"))})
	str := NewSTR(nil, []Transformation{{
		AfterPoint: NewSnapshot(NewState("cell", NewVariable("v"))),
		NewValue:   NewState("cell", NewName("written")),
	}}, EmptyGuard(), NewSnapshotTree().With(NewSnapshot(NewState("cell", NewVariable("v")))))

	extended, prefixValid, ok := n.TryApplyMultipleTransfers([]*StateTransferringRule{str})
	require.True(t, ok)
	assert.True(t, prefixValid)

	cell, found := extended.LastFrame().Cell("cell")
	require.True(t, found)
	assert.True(t, cell.Condition.Value.Equal(NewName("written")))
}
