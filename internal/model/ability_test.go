package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAbility_BudgetLifecycle(t *testing.T) {
	a := &Ability{MaxUses: MaxUsesForLevel(2), UsesRemaining: MaxUsesForLevel(2)}
	assert.Equal(t, 6, a.MaxUses)
	assert.True(t, a.CanCast())

	for i := 0; i < 6; i++ {
		require := a.CanCast()
		assert.True(t, require)
		a.Decrement()
	}
	assert.False(t, a.CanCast())
	assert.NoError(t, a.ValidateBudget())

	// Over-decrement is a no-op, never goes negative.
	a.Decrement()
	assert.Equal(t, 0, a.UsesRemaining)
}

func TestAbility_RestoreBudget(t *testing.T) {
	a := &Ability{MaxUses: 3, UsesRemaining: 0}
	a.RestoreBudget(4)
	assert.Equal(t, 12, a.MaxUses)
	assert.Equal(t, 12, a.UsesRemaining)
}

func TestAbility_ValidateSlot(t *testing.T) {
	a := &Ability{Slot: 6}
	assert.Error(t, a.ValidateSlot())
	a.Slot = 1
	assert.NoError(t, a.ValidateSlot())
}
