package piverif

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrdm/piverif/internal/parallel"
)

func TestQueryEngine_Verify_ProvesFactFromStatelessRule(t *testing.T) {
	scr := NewSCR(1, nil, KnowEvent(NewName("secret")), EmptyGuard(), NewSnapshotTree())
	engine := NewQueryEngine([]*StateConsistentRule{scr}, 50)
	n := NewNession(nil)

	attack, ok := engine.Verify(context.Background(), n, NewName("secret"), EmptyGuard())
	require.True(t, ok)
	assert.True(t, attack.Query.Equal(NewName("secret")))
}

func TestQueryEngine_Verify_FailsForUnderivableFact(t *testing.T) {
	engine := NewQueryEngine(nil, 50)
	n := NewNession(nil)

	_, ok := engine.Verify(context.Background(), n, NewName("secret"), EmptyGuard())
	assert.False(t, ok)
}

func TestQueryEngine_VerifyAny_FindsAttackAmongManyNessions(t *testing.T) {
	scr := NewSCR(1, nil, KnowEvent(NewName("secret")), EmptyGuard(), NewSnapshotTree())
	engine := NewQueryEngine([]*StateConsistentRule{scr}, 50)

	nessions := make([]*Nession, 8)
	for i := range nessions {
		nessions[i] = NewNession(nil)
	}

	pool := parallel.New(4)
	defer pool.Shutdown()

	attack, ok := engine.VerifyAny(context.Background(), pool, nessions, NewName("secret"), EmptyGuard())
	require.True(t, ok)
	assert.True(t, attack.Query.Equal(NewName("secret")))
}

func TestQueryEngine_VerifyAny_NoAttackAcrossEmptyNessionSet(t *testing.T) {
	engine := NewQueryEngine(nil, 50)
	pool := parallel.New(2)
	defer pool.Shutdown()

	_, ok := engine.VerifyAny(context.Background(), pool, nil, NewName("secret"), EmptyGuard())
	assert.False(t, ok)
}
