package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlacementOutcome summarises how a cycle's legs fared at placement.
type PlacementOutcome string

const (
	OutcomePlaced   PlacementOutcome = "placed"   // every leg NEW
	OutcomePartial  PlacementOutcome = "partial"  // mixed NEW and PLAN
	OutcomeRejected PlacementOutcome = "rejected" // every leg PLAN, nothing persisted
)

// CycleExecution records one placed cycle group. It is the per-group summary
// alongside the per-leg ArbitrageOrder rows sharing GroupID.
type CycleExecution struct {
	GroupID     string
	Cycle       string
	Kind        CycleKind
	Direction   Direction
	Coefficient decimal.Decimal
	LegCount    int
	PlacedCount int
	Outcome     PlacementOutcome
	CreatedAt   time.Time
}
