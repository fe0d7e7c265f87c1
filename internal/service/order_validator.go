package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/pricing"
	"marketplace-service/internal/util"
	"marketplace-service/internal/validation"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Billing field sets
const (
	BillingFieldsBasic    = "basic"
	BillingFieldsExtended = "extended"
)

// BillingRuleSet returns the required billing fields for name. Unknown names fall back to extended.
func BillingRuleSet(name string) validation.RuleSet {
	rules := []validation.Rule{
		{Field: "name", Tag: "required"},
		{Field: "email", Tag: "required"},
		{Field: "phone", Tag: "required"},
	}
	if name == BillingFieldsBasic {
		return validation.RuleSet{Name: BillingFieldsBasic, Rules: rules}
	}
	rules = append(rules,
		validation.Rule{Field: "address_line1", Tag: "required"},
		validation.Rule{Field: "city", Tag: "required"},
		validation.Rule{Field: "state", Tag: "required"},
		validation.Rule{Field: "postal_code", Tag: "required"},
		validation.Rule{Field: "country", Tag: "required"},
	)
	return validation.RuleSet{Name: BillingFieldsExtended, Rules: rules}
}

// CheckoutLine references one package of one item.
type CheckoutLine struct {
	ItemID    string `json:"item_id"`
	PackageID string `json:"package_id"`
}

// CheckoutAmounts are the client-supplied order totals.
type CheckoutAmounts struct {
	Subtotal      *float64 `json:"subtotal" validate:"required,gte=0"`
	TotalDiscount *float64 `json:"total_discount" validate:"required,gte=0"`
	Tax           *float64 `json:"tax" validate:"required,gte=0"`
	ShippingCost  *float64 `json:"shipping_cost" validate:"required,gte=0"`
	GrandTotal    *float64 `json:"grand_total" validate:"required,gte=0"`
}

// CheckoutRequest is a raw order as submitted by the client.
type CheckoutRequest struct {
	CheckoutAmounts
	IsGuestUser     bool                 `json:"isGuestUser"`
	UserID          string               `json:"user_id"`
	Items           []CheckoutLine       `json:"items"`
	Currency        models.Currency      `json:"currency"`
	PaymentMethod   models.PaymentMethod `json:"payment_method"`
	BillingAddress  *models.Address      `json:"billing_address"`
	ShippingAddress *models.Address      `json:"shipping_address"`
	CouponCode      string               `json:"coupon_code"`
	Notes           string               `json:"notes"`
	IdempotencyKey  string               `json:"idempotency_key,omitempty"`
}

// PricedOrder is a validated order ready to be stored.
type PricedOrder struct {
	Order *models.Order
}

// OrderValidator resolves and prices raw orders against the catalog.
type OrderValidator struct {
	catalog     CatalogStore
	validator   *validation.Validator
	billing     validation.RuleSet
	feeRate     decimal.Decimal
	paymentTags string
	logger      *zap.Logger
}

// NewOrderValidator creates a new order validator
func NewOrderValidator(catalog CatalogStore, v *validation.Validator, billing validation.RuleSet, feeRatePercent decimal.Decimal) *OrderValidator {
	methods := make([]string, 0, len(models.PaymentMethods))
	for _, pm := range models.PaymentMethods {
		methods = append(methods, string(pm))
	}
	return &OrderValidator{
		catalog:     catalog,
		validator:   v,
		billing:     billing,
		feeRate:     feeRatePercent,
		paymentTags: "required,oneof=" + strings.Join(methods, " "),
		logger:      util.GetLogger(),
	}
}

// ValidateAndPrice checks raw in order and stops at the first failing step.
func (v *OrderValidator) ValidateAndPrice(ctx context.Context, raw *CheckoutRequest) (*PricedOrder, error) {
	const op = "OrderValidator.ValidateAndPrice"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutValidationLatency.Observe(time.Since(start).Seconds())
	}()

	if raw == nil {
		return nil, apperr.Validation(apperr.ReasonInvalidItems, op, "order is required")
	}
	if err := v.checkLines(op, raw); err != nil {
		return nil, err
	}

	lines, err := v.resolveLines(ctx, op, raw.Items)
	if err != nil {
		return nil, err
	}

	if errs := v.validator.Struct(raw.CheckoutAmounts); len(errs) > 0 {
		fields := validation.FieldNames(errs)
		return nil, apperr.Validation(apperr.ReasonInvalidAmount, op,
			fmt.Sprintf("%s %s", errs[0].Field, errs[0].Message), fields...)
	}

	if errs := v.validator.Var("payment_method", string(raw.PaymentMethod), v.paymentTags); len(errs) > 0 {
		return nil, apperr.Validation(apperr.ReasonInvalidPaymentMethod, op,
			fmt.Sprintf("payment method %q is not supported", raw.PaymentMethod))
	}

	var billing models.Address
	if raw.BillingAddress != nil {
		billing = *raw.BillingAddress
	}
	if errs := v.validator.Check(v.billing, billing.Fields()); len(errs) > 0 {
		return nil, apperr.Validation(apperr.ReasonMissingBillingField, op,
			"billing address is missing required fields", validation.FieldNames(errs)...)
	}

	subtotal := decimal.NewFromFloat(*raw.Subtotal)
	totalDiscount := decimal.NewFromFloat(*raw.TotalDiscount)
	tax := decimal.NewFromFloat(*raw.Tax)
	shipping := decimal.NewFromFloat(*raw.ShippingCost)
	clientTotal := decimal.NewFromFloat(*raw.GrandTotal)

	computed := pricing.OrderTotal(subtotal, totalDiscount, tax, shipping)
	if !pricing.WithinTolerance(computed, clientTotal) {
		return nil, apperr.Integrity(apperr.ReasonTotalMismatch, op,
			fmt.Sprintf("grand total %s does not match computed total %s", clientTotal.String(), computed.String()))
	}
	grandTotal := pricing.Round2(computed)

	shippingAddr := billing
	shippingAddr.SameAsBill = true
	if raw.ShippingAddress != nil && !raw.ShippingAddress.SameAsBill {
		shippingAddr = *raw.ShippingAddress
	}

	currency := raw.Currency
	if currency == "" {
		currency = lines[0].Currency
	}

	order := &models.Order{
		UserID:        raw.UserID,
		IsGuest:       raw.IsGuestUser,
		Lines:         lines,
		Subtotal:      pricing.Round2(subtotal),
		TotalDiscount: pricing.Round2(totalDiscount),
		Tax:           pricing.Round2(tax),
		ShippingCost:  pricing.Round2(shipping),
		GrandTotal:    grandTotal,
		Currency:      currency,
		PaymentMethod: raw.PaymentMethod,
		Status:        models.OrderStatusPending,
		Billing:       billing,
		Shipping:      shippingAddr,
		CouponCode:    raw.CouponCode,
		Notes:         raw.Notes,
	}

	return &PricedOrder{Order: order}, nil
}

func (v *OrderValidator) checkLines(op string, raw *CheckoutRequest) error {
	if len(raw.Items) == 0 {
		return apperr.Validation(apperr.ReasonInvalidItems, op, "items must be a non-empty list")
	}
	for i, line := range raw.Items {
		if line.ItemID == "" || line.PackageID == "" {
			return apperr.Validation(apperr.ReasonInvalidItems, op,
				fmt.Sprintf("items[%d] must reference both item_id and package_id", i))
		}
		if !models.IsValidID(line.ItemID) {
			return apperr.Validation(apperr.ReasonInvalidID, op, "invalid item id", fmt.Sprintf("items[%d].item_id", i))
		}
		if !models.IsValidID(line.PackageID) {
			return apperr.Validation(apperr.ReasonInvalidID, op, "invalid package id", fmt.Sprintf("items[%d].package_id", i))
		}
	}
	if raw.UserID != "" && !models.IsValidID(raw.UserID) {
		return apperr.Validation(apperr.ReasonInvalidID, op, "invalid user id", "user_id")
	}
	return nil
}

func (v *OrderValidator) resolveLines(ctx context.Context, op string, in []CheckoutLine) ([]models.OrderLine, error) {
	items := make(map[string]*models.Item, len(in))
	lines := make([]models.OrderLine, 0, len(in))
	total := decimal.Zero

	for i, ref := range in {
		item, ok := items[ref.ItemID]
		if !ok {
			var err error
			item, err = v.catalog.GetItem(ctx, ref.ItemID)
			if err != nil {
				return nil, fmt.Errorf("failed to get item %s: %w", ref.ItemID, err)
			}
			if item == nil {
				return nil, apperr.NotFound(apperr.ReasonItemNotFound, op,
					fmt.Sprintf("item %s not found", ref.ItemID))
			}
			items[ref.ItemID] = item
		}

		pkg := item.FindPackage(ref.PackageID)
		if pkg == nil {
			return nil, apperr.NotFound(apperr.ReasonPackageNotFound, op,
				fmt.Sprintf("package %s not found in item %s", ref.PackageID, ref.ItemID))
		}
		if !pkg.IsActive {
			return nil, apperr.State(apperr.ReasonPackageInactive, op,
				fmt.Sprintf("package %s is not active", ref.PackageID))
		}

		b := pricing.LineTotal(pkg.Price, pkg.Discount, v.feeRate)
		lines = append(lines, models.OrderLine{
			Position:       i,
			ItemID:         item.ID,
			PackageID:      pkg.ID,
			ItemName:       item.Name,
			PackageName:    pkg.Name,
			Price:          pkg.Price,
			Currency:       pkg.Currency,
			Discount:       pkg.Discount,
			Expired:        pkg.Expired,
			ExpiredType:    pkg.ExpiredType,
			DiscountAmount: b.DiscountAmount,
			SubTotal:       b.SubTotal,
			Fee:            b.Fee,
			LineTotal:      b.GrandTotal,
		})
		total = total.Add(b.GrandTotal)
	}

	v.logger.Debug("Order lines resolved", zap.Int("lines", len(lines)), zap.String("lines_total", total.StringFixed(2)))
	return lines, nil
}
