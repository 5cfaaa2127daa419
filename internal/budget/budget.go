// Package budget decides whether a scrape batch fits under the monthly spend
// cap. Amounts are compared in integer micro-dollars so that boundary cases
// like 30+6 against 36 are exact.
package budget

import (
	"math"
	"time"

	"social_ingest/internal/domain"
)

const (
	DefaultMonthlyBudget = 35.0
	DefaultUnitCost      = 0.002
)

type Gate struct {
	capMicros  int64
	unitMicros int64
}

func NewGate(monthlyBudget, unitCost float64) *Gate {
	return &Gate{
		capMicros:  toMicros(monthlyBudget),
		unitMicros: toMicros(unitCost),
	}
}

func (g *Gate) MonthlyBudget() float64 {
	return fromMicros(g.capMicros)
}

// Cost prices a number of scraped items.
func (g *Gate) Cost(items int) float64 {
	return fromMicros(int64(items) * g.unitMicros)
}

// Evaluate prices month-to-date and pending item counts and reports whether
// the batch may start.
func (g *Gate) Evaluate(mtdItems, batchItems int) domain.BudgetReport {
	mtd := int64(mtdItems) * g.unitMicros
	batch := int64(batchItems) * g.unitMicros

	report := g.decide(mtd, batch)
	report.MTDPosts = mtdItems
	report.BatchPosts = batchItems
	return report
}

// EvaluateSpend is Evaluate for callers that already hold dollar amounts.
func (g *Gate) EvaluateSpend(mtdSpend, batchCost float64) domain.BudgetReport {
	return g.decide(toMicros(mtdSpend), toMicros(batchCost))
}

func (g *Gate) decide(mtd, batch int64) domain.BudgetReport {
	projected := mtd + batch
	return domain.BudgetReport{
		MonthlyBudget:      fromMicros(g.capMicros),
		MTDSpend:           fromMicros(mtd),
		BatchEstimatedCost: fromMicros(batch),
		ProjectedTotal:     fromMicros(projected),
		Allowed:            projected <= g.capMicros,
	}
}

// MonthStart is the first instant of now's calendar month in UTC.
func MonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func toMicros(v float64) int64 {
	return int64(math.Round(v * 1e6))
}

func fromMicros(v int64) float64 {
	return float64(v) / 1e6
}
