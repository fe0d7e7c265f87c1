package models

import "time"

// StatusTransition is an accepted order status change and the total_sold
// delta it implies for every line of the order.
type StatusTransition struct {
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	SoldDelta int         `json:"sold_delta"`
}

// Noop reports whether the transition leaves the order unchanged.
func (t StatusTransition) Noop() bool {
	return t.From == t.To
}

// ItemStats is the cached read model of an item's derived counters.
type ItemStats struct {
	ItemID        string    `json:"item_id"`
	AvgRating     float64   `json:"avg_rating"`
	TotalSold     int       `json:"total_sold"`
	ReviewCount   int       `json:"review_count"`
	ApprovedCount int       `json:"approved_count"`
	RefreshedAt   time.Time `json:"refreshed_at"`
}

// Counter names used by reconciliation
const (
	CounterTotalSold  = "total_sold"
	CounterItemsCount = "items_count"
)

// CounterCorrection records one counter rewritten by reconciliation.
type CounterCorrection struct {
	Counter string `db:"counter" json:"counter"`
	ID      string `db:"id" json:"id"`
	Was     int    `db:"old_value" json:"was"`
	Now     int    `db:"new_value" json:"now"`
}

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
	Corrections []CounterCorrection `json:"corrections"`
}
