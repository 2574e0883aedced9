package diag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := NewCollector()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	c.Degenerate(Degeneracy{Date: day, Component: ComponentERC, Detail: "portfolio variance is zero", Fallback: "last weights"})
	c.Degenerate(Degeneracy{Date: day, Component: ComponentERC, Detail: "portfolio variance is NaN", Fallback: "last weights"})
	c.Degenerate(Degeneracy{Date: day, Component: ComponentVolTarget, Detail: "rv=0", Fallback: "leverage cap"})
	c.Warn(Warning{Date: day, Code: CodeCashBelowFloor, Message: "cash 0.20 below floor 0.45"})

	assert.Len(t, c.Degeneracies(), 3)
	assert.Len(t, c.Warnings(), 1)
	assert.Equal(t, map[string]int{ComponentERC: 2, ComponentVolTarget: 1}, c.CountByComponent())
	assert.Contains(t, c.Warnings()[0].String(), "2024-03-01 [cash_below_floor]")
}
