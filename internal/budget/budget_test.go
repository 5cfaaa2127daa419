package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateSpend_Boundary(t *testing.T) {
	refused := NewGate(35, DefaultUnitCost).EvaluateSpend(30, 6)
	assert.False(t, refused.Allowed)
	assert.Equal(t, 36.0, refused.ProjectedTotal)
	assert.Equal(t, 35.0, refused.MonthlyBudget)

	allowed := NewGate(36, DefaultUnitCost).EvaluateSpend(30, 6)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, 36.0, allowed.ProjectedTotal)
}

func TestEvaluate_ItemCounts(t *testing.T) {
	gate := NewGate(DefaultMonthlyBudget, DefaultUnitCost)

	// 15000 items so far ($30) plus 3000 pending ($6).
	report := gate.Evaluate(15000, 3000)

	assert.False(t, report.Allowed)
	assert.Equal(t, 15000, report.MTDPosts)
	assert.Equal(t, 3000, report.BatchPosts)
	assert.Equal(t, 30.0, report.MTDSpend)
	assert.Equal(t, 6.0, report.BatchEstimatedCost)
	assert.Equal(t, 36.0, report.ProjectedTotal)

	assert.True(t, gate.Evaluate(15000, 2500).Allowed)
}

func TestEvaluate_EmptyMonth(t *testing.T) {
	report := NewGate(DefaultMonthlyBudget, DefaultUnitCost).Evaluate(0, 0)

	assert.True(t, report.Allowed)
	assert.Zero(t, report.ProjectedTotal)
}

func TestCost(t *testing.T) {
	assert.InDelta(t, 0.2, NewGate(1, DefaultUnitCost).Cost(100), 1e-12)
}

func TestMonthStart(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	got := MonthStart(time.Date(2026, 4, 1, 1, 0, 0, 0, loc))

	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)
}
