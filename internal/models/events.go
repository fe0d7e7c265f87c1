package models

import "time"

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeReviewChanged      = "REVIEW_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when a checkout is captured
type OrderCreatedEvent struct {
	BaseEvent
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id,omitempty"`
	GrandTotal string          `json:"grand_total"`
	Currency   Currency        `json:"currency"`
	Lines      []OrderLineData `json:"lines"`
}

// OrderStatusChangedEvent published after a status transition is stored
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID   string      `json:"order_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	SoldDelta int         `json:"sold_delta"`
	ItemIDs   []string    `json:"item_ids"`
}

// ReviewChangedEvent published when an item's reviews or average change
type ReviewChangedEvent struct {
	BaseEvent
	ItemID    string  `json:"item_id"`
	ReviewID  string  `json:"review_id"`
	Action    string  `json:"action"`
	AvgRating float64 `json:"avg_rating"`
}

// OrderLineData represents a line in events
type OrderLineData struct {
	ItemID    string `json:"item_id"`
	PackageID string `json:"package_id"`
	LineTotal string `json:"line_total"`
}

// Review event actions
const (
	ReviewActionAdded     = "added"
	ReviewActionModerated = "moderated"
	ReviewActionReplied   = "replied"
	ReviewActionRemoved   = "removed"
)
