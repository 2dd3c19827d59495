package piverif

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHornClause_Substitute_DistributesOverPremisesAndResult(t *testing.T) {
	premises := []Message{NewVariable("x"), NewFunction("enc", NewVariable("x"), NewName("k"))}
	result := NewFunction("dec", NewVariable("x"))
	c := NewHornClause(premises, result, EmptyGuard(), 0, nil)

	sm := NewSigmaMap().Bind("x", NewName("secret"))
	substituted := c.Substitute(sm)

	expectedPremises := dedupMessages([]Message{NewName("secret"), NewFunction("enc", NewName("secret"), NewName("k"))})
	if diff := cmp.Diff(expectedPremises, substituted.Premises); diff != "" {
		t.Errorf("substituted premises mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, substituted.Result.Equal(result.Substitute(sm)))
}

func TestHornClause_ComposeUpon_ReplaysTwoStepDerivationAsOneClause(t *testing.T) {
	// a: -> enc(secret,k)      (a fact)
	// b: enc(x,y) -> x      (decryption: knowing enc(x,y) yields x)
	a := NewHornClause(nil, NewFunction("enc", NewName("secret"), NewName("k")), EmptyGuard(), 0, nil)
	b := NewHornClause(
		[]Message{NewFunction("enc", NewVariable("x"), NewVariable("y"))},
		NewVariable("x"),
		EmptyGuard(), 0, nil,
	)

	composed, ok := a.ComposeUpon(b)
	require.True(t, ok)
	assert.True(t, composed.Result.Equal(NewName("secret")))
	assert.Empty(t, composed.Premises)
	assert.Equal(t, 0, composed.Rank)
}

func TestHornClause_ComposeUpon_FailsWhenNoPremiseAdmitsResult(t *testing.T) {
	a := NewHornClause(nil, NewName("secret"), EmptyGuard(), 0, nil)
	b := NewHornClause([]Message{NewFunction("enc", NewVariable("x"), NewVariable("y"))}, NewVariable("x"), EmptyGuard(), 0, nil)

	_, ok := a.ComposeUpon(b)
	assert.False(t, ok)
}

func TestHornClause_DetupleResult_SplitsTupleIntoComponentClauses(t *testing.T) {
	result := NewTuple(NewName("a"), NewName("b"))
	c := NewHornClause([]Message{NewVariable("p")}, result, EmptyGuard(), 0, nil)

	parts := c.DetupleResult()
	require.Len(t, parts, 2)
	assert.True(t, parts[0].Result.Equal(NewName("a")))
	assert.True(t, parts[1].Result.Equal(NewName("b")))
	for _, part := range parts {
		assert.Len(t, part.Premises, 1)
		assert.True(t, part.Premises[0].Equal(NewVariable("p")))
	}
}

func TestHornClause_DetupleResult_RecursesOnNestedTuples(t *testing.T) {
	inner := NewTuple(NewName("a"), NewName("b"))
	result := NewTuple(inner, NewName("c"))
	c := NewHornClause(nil, result, EmptyGuard(), 0, nil)

	parts := c.DetupleResult()
	require.Len(t, parts, 3)
}

func TestHornClause_DetupleResult_UnchangedForNonTupleResult(t *testing.T) {
	c := NewHornClause(nil, NewName("a"), EmptyGuard(), 0, nil)
	parts := c.DetupleResult()
	require.Len(t, parts, 1)
	assert.True(t, parts[0].Equal(c))
}

func TestHornClause_ScrubLooseVariables_DropsUnconstrainedPremise(t *testing.T) {
	c := NewHornClause(
		[]Message{NewVariable("unused"), NewName("needed")},
		NewName("result"),
		EmptyGuard(), 0, nil,
	)
	scrubbed := c.ScrubLooseVariables()
	require.Len(t, scrubbed.Premises, 1)
	assert.True(t, scrubbed.Premises[0].Equal(NewName("needed")))
}

func TestHornClause_ScrubLooseVariables_IsIdempotent(t *testing.T) {
	c := NewHornClause(
		[]Message{NewVariable("unused"), NewName("needed")},
		NewName("result"),
		EmptyGuard(), 0, nil,
	)
	once := c.ScrubLooseVariables()
	twice := once.ScrubLooseVariables()
	assert.True(t, once.Equal(twice))
}

func TestHornClause_ScrubLooseVariables_KeepsVariableOccurringInResult(t *testing.T) {
	c := NewHornClause(
		[]Message{NewVariable("x")},
		NewVariable("x"),
		EmptyGuard(), 0, nil,
	)
	scrubbed := c.ScrubLooseVariables()
	require.Len(t, scrubbed.Premises, 1)
}
