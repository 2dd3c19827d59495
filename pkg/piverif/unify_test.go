package piverif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetermineUnifiableSubstitution_ProducesConsistentForwardBackwardSubstitutions(t *testing.T) {
	a := NewFunction("enc", NewVariable("x"), NewName("k"))
	b := NewFunction("enc", NewName("secret"), NewVariable("y"))

	sf := NewSigmaFactory()
	ok := a.DetermineUnifiableSubstitution(b, EmptyGuard(), EmptyGuard(), sf)
	require.True(t, ok)

	forward := sf.CreateForwardMap()
	backward := sf.CreateBackwardMap()

	assert.True(t, a.Substitute(forward).Equal(b.Substitute(backward)))
}

func TestDetermineUnifiableSubstitution_RespectsForbiddingGuard(t *testing.T) {
	x := NewVariable("x")
	guard := EmptyGuard().Forbid(x, NewName("bad"))

	sf := NewSigmaFactory()
	ok := x.DetermineUnifiableSubstitution(NewName("bad"), guard, EmptyGuard(), sf)
	assert.False(t, ok)
}

func TestDetermineUnifiableSubstitution_AllowsNonForbiddenBinding(t *testing.T) {
	x := NewVariable("x")
	guard := EmptyGuard().Forbid(x, NewName("bad"))

	sf := NewSigmaFactory()
	ok := x.DetermineUnifiableSubstitution(NewName("good"), guard, EmptyGuard(), sf)
	assert.True(t, ok)
}

func TestDetermineUnifiableSubstitution_FailsOnMismatchedFunctors(t *testing.T) {
	a := NewFunction("enc", NewName("a"))
	b := NewFunction("dec", NewName("a"))
	sf := NewSigmaFactory()
	assert.False(t, a.DetermineUnifiableSubstitution(b, EmptyGuard(), EmptyGuard(), sf))
}

func TestGuard_Union_CombinesBothSidesProhibitions(t *testing.T) {
	x := NewVariable("x")
	y := NewVariable("y")
	g1 := EmptyGuard().Forbid(x, NewName("a"))
	g2 := EmptyGuard().Forbid(y, NewName("b"))

	combined := g1.Union(g2)
	assert.True(t, combined.Forbids(x, NewName("a")))
	assert.True(t, combined.Forbids(y, NewName("b")))
	assert.False(t, combined.Forbids(x, NewName("b")))
}

func TestGuard_IsEmpty_TrueOnlyWithNoProhibitions(t *testing.T) {
	assert.True(t, EmptyGuard().IsEmpty())
	nonEmpty := EmptyGuard().Forbid(NewVariable("x"), NewName("a"))
	assert.False(t, nonEmpty.IsEmpty())
}
