package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewID returns a new 24-character hex identifier.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// IsValidID reports whether id is a well-formed 24-character hex identifier.
func IsValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

// Currency is a supported package currency.
type Currency string

const (
	CurrencyBDT Currency = "BDT"
	CurrencyUSD Currency = "USD"
)

// ExpiryUnit is the unit of a package validity period.
type ExpiryUnit string

const (
	ExpiryDay   ExpiryUnit = "Day"
	ExpiryMonth ExpiryUnit = "Month"
	ExpiryYear  ExpiryUnit = "Year"
)

// Item visibility and availability
const (
	VisibilityShow = "show"
	VisibilityHide = "hide"

	AvailabilityAvailable   = "available"
	AvailabilityUnavailable = "unavailable"
)

// Category groups items; ItemsCount is maintained by the item lifecycle.
type Category struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"categories"`
	ItemsCount int       `db:"items_count" json:"items_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Item is a sellable catalog entry. It owns its packages and reviews.
type Item struct {
	ID               string         `db:"id" json:"id"`
	CategoryID       string         `db:"category_id" json:"categories_id"`
	CategoryName     string         `db:"category_name" json:"categories"`
	Name             string         `db:"item_name" json:"item_name"`
	ShortDescription string         `db:"short_description" json:"short_description"`
	LongDescription  string         `db:"long_description" json:"long_description"`
	Features         pq.StringArray `db:"features" json:"features"`
	Notes            string         `db:"notes" json:"notes"`
	Visibility       string         `db:"visibility" json:"status"`
	Availability     string         `db:"availability" json:"availability"`
	AvgRating        float64        `db:"avg_rating" json:"avg_rating"`
	TotalSold        int            `db:"total_sold" json:"total_sold"`
	Packages         []Package      `db:"-" json:"packages"`
	Reviews          []Review       `db:"-" json:"reviews"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// FindPackage returns the package with the given id, or nil.
func (i *Item) FindPackage(packageID string) *Package {
	for idx := range i.Packages {
		if i.Packages[idx].ID == packageID {
			return &i.Packages[idx]
		}
	}
	return nil
}

// FindReview returns the index of the review with the given id, or -1.
func (i *Item) FindReview(reviewID string) int {
	for idx := range i.Reviews {
		if i.Reviews[idx].ID == reviewID {
			return idx
		}
	}
	return -1
}

// Package is a pricing tier of an Item.
type Package struct {
	ID            string          `db:"id" json:"id"`
	ItemID        string          `db:"item_id" json:"-"`
	Position      int             `db:"position" json:"-"`
	Name          string          `db:"package_name" json:"package_name"`
	Quantity      int             `db:"quantity" json:"quantity"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Currency      Currency        `db:"currency" json:"currency"`
	Expired       int             `db:"expired" json:"expired"`
	ExpiredType   ExpiryUnit      `db:"expired_type" json:"expired_type"`
	Discount      decimal.Decimal `db:"discount" json:"discount"`
	Features      pq.StringArray  `db:"features" json:"features"`
	IsActive      bool            `db:"is_active" json:"isActive"`
	IsRecommended bool            `db:"is_recommended" json:"isRecommended"`
	CouponCode    string          `db:"coupon_code" json:"coupon_code,omitempty"`
}

// ReviewStatus is the moderation state of a review.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// Valid reports whether s is a known review status.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected:
		return true
	}
	return false
}

// Review is a user's rating of an Item.
type Review struct {
	ID        string       `db:"id" json:"id"`
	ItemID    string       `db:"item_id" json:"-"`
	UserID    string       `db:"user_id" json:"user_id"`
	UserName  string       `db:"user_name" json:"user_name"`
	Rating    int          `db:"rating" json:"rating"`
	Message   string       `db:"message" json:"message"`
	Status    ReviewStatus `db:"status" json:"isApproved"`
	Reply     string       `db:"reply" json:"message_reply,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"date_and_time"`
}

// User is the subset of the identity record the marketplace needs.
type User struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusReturned  OrderStatus = "returned"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// PaymentMethod is a supported checkout payment method.
type PaymentMethod string

const (
	PaymentCreditCard     PaymentMethod = "credit_card"
	PaymentBkash          PaymentMethod = "bkash"
	PaymentNagad          PaymentMethod = "nagad"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentRocket         PaymentMethod = "rocket"
)

// PaymentMethods lists every accepted payment method.
var PaymentMethods = []PaymentMethod{
	PaymentCreditCard,
	PaymentBkash,
	PaymentNagad,
	PaymentCashOnDelivery,
	PaymentRocket,
}

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	for _, pm := range PaymentMethods {
		if m == pm {
			return true
		}
	}
	return false
}

// Address is a billing or shipping address block.
type Address struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	SameAsBill   bool   `json:"same_as_billing,omitempty"`
}

// Fields returns the address keyed by JSON field name.
func (a Address) Fields() map[string]string {
	return map[string]string{
		"name":          a.Name,
		"email":         a.Email,
		"phone":         a.Phone,
		"address_line1": a.AddressLine1,
		"address_line2": a.AddressLine2,
		"city":          a.City,
		"state":         a.State,
		"postal_code":   a.PostalCode,
		"country":       a.Country,
	}
}

// Value stores the address as JSON.
func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan reads a JSON address column.
func (a *Address) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = Address{}
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("unsupported address source type %T", src)
	}
}

// Order is a captured checkout. Lines are frozen at creation.
type Order struct {
	ID             string          `db:"id" json:"id"`
	UserID         string          `db:"user_id" json:"user_id,omitempty"`
	IsGuest        bool            `db:"is_guest" json:"isGuestUser"`
	Lines          []OrderLine     `db:"-" json:"items"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	TotalDiscount  decimal.Decimal `db:"total_discount" json:"total_discount"`
	Tax            decimal.Decimal `db:"tax" json:"tax"`
	ShippingCost   decimal.Decimal `db:"shipping_cost" json:"shipping_cost"`
	GrandTotal     decimal.Decimal `db:"grand_total" json:"grand_total"`
	Currency       Currency        `db:"currency" json:"currency"`
	PaymentMethod  PaymentMethod   `db:"payment_method" json:"payment_method"`
	Status         OrderStatus     `db:"status" json:"status"`
	Billing        Address         `db:"billing_address" json:"billing_address"`
	Shipping       Address         `db:"shipping_address" json:"shipping_address"`
	CouponCode     string          `db:"coupon_code" json:"coupon_code,omitempty"`
	Notes          string          `db:"notes" json:"notes,omitempty"`
	IdempotencyKey string          `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderLine is a snapshot of an item package at checkout time.
type OrderLine struct {
	ID             string          `db:"id" json:"id"`
	OrderID        string          `db:"order_id" json:"-"`
	Position       int             `db:"position" json:"-"`
	ItemID         string          `db:"item_id" json:"item_id"`
	PackageID      string          `db:"package_id" json:"package_id"`
	ItemName       string          `db:"item_name" json:"item_name"`
	PackageName    string          `db:"package_name" json:"package_name"`
	Price          decimal.Decimal `db:"price" json:"price"`
	Currency       Currency        `db:"currency" json:"currency"`
	Discount       decimal.Decimal `db:"discount" json:"discount"`
	Expired        int             `db:"expired" json:"expired"`
	ExpiredType    ExpiryUnit      `db:"expired_type" json:"expired_type"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	SubTotal       decimal.Decimal `db:"sub_total" json:"sub_total"`
	Fee            decimal.Decimal `db:"fee" json:"cash_out_fee"`
	LineTotal      decimal.Decimal `db:"line_total" json:"grand_total"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
