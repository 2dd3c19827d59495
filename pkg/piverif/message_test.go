package piverif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Substitute_EmptySigmaIsIdentity(t *testing.T) {
	m := NewFunction("enc", NewVariable("x"), NewName("k"))
	assert.True(t, m.Substitute(NewSigmaMap()).Equal(m))
}

func TestMessage_Substitute_FreeVariablesMatchVarsMinusDomPlusInserted(t *testing.T) {
	// m = (x, y, enc(z,k)); sigma = {x -> a, z -> w}
	m := NewTuple(NewVariable("x"), NewVariable("y"), NewFunction("enc", NewVariable("z"), NewName("k")))

	sm := NewSigmaMap().Bind("x", NewName("a")).Bind("z", NewVariable("w"))
	result := m.Substitute(sm)

	// vars(m) \ dom(sigma) = {y}; inserted(sigma restricted to dom(sigma)∩vars(m)) = {w}
	assert.ElementsMatch(t, []string{"y", "w"}, result.Variables())
}

func TestMessage_Substitute_LeavesUnboundVariableUnchanged(t *testing.T) {
	m := NewVariable("x")
	sm := NewSigmaMap().Bind("y", NewName("a"))
	assert.True(t, m.Substitute(sm).Equal(m))
}

func TestMessage_Equal_StructuralByVariantNameAndChildren(t *testing.T) {
	a := NewFunction("f", NewName("a"), NewVariable("x"))
	b := NewFunction("f", NewName("a"), NewVariable("x"))
	c := NewFunction("f", NewName("a"), NewVariable("y"))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestMessage_Depth_LeafIsOne(t *testing.T) {
	assert.Equal(t, 1, NewName("a").Depth())
	assert.Equal(t, 2, NewFunction("f", NewName("a")).Depth())
	assert.Equal(t, 3, NewFunction("f", NewFunction("g", NewName("a"))).Depth())
}

func TestNewTuple_PanicsOnFewerThanTwoMembers(t *testing.T) {
	assert.Panics(t, func() { NewTuple(NewName("a")) })
}

func TestSigmaMap_Bind_PanicsOnDuplicateKey(t *testing.T) {
	sm := NewSigmaMap().Bind("x", NewName("a"))
	assert.Panics(t, func() { sm.Bind("x", NewName("b")) })
}

func TestSigmaMap_Merge_CombinesDisjointBindings(t *testing.T) {
	a := NewSigmaMap().Bind("x", NewName("1"))
	b := NewSigmaMap().Bind("y", NewName("2"))
	merged := a.Merge(b)

	require.Equal(t, 2, merged.Len())
	v, ok := merged.Lookup("x")
	require.True(t, ok)
	assert.True(t, v.Equal(NewName("1")))
}
