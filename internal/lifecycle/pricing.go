package lifecycle

import (
	"github.com/safar/go-food-delivery/internal/config"
	"github.com/shopspring/decimal"
)

type Pricing struct {
	DeliveryFee decimal.Decimal
	TaxRate     decimal.Decimal
	// RestoreFlipsAvailability marks a restored item "In Stock" again once
	// its stock is positive.
	RestoreFlipsAvailability bool
}

func PricingFromConfig(cfg config.PricingConfig) Pricing {
	return Pricing{
		DeliveryFee:              cfg.DeliveryFee,
		TaxRate:                  cfg.TaxRate,
		RestoreFlipsAvailability: cfg.RestoreFlipsAvailability,
	}
}

// Quote is the money breakdown of an order. Total always equals
// Subtotal + DeliveryFee + Tax - DiscountAmount.
type Quote struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DeliveryFee    decimal.Decimal `json:"delivery_fee"`
	Tax            decimal.Decimal `json:"tax"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total_amount"`
}

func (p Pricing) Quote(subtotal decimal.Decimal) Quote {
	subtotal = subtotal.Round(2)
	fee := p.DeliveryFee.Round(2)
	tax := subtotal.Mul(p.TaxRate).Round(2)
	discount := decimal.Zero

	return Quote{
		Subtotal:       subtotal,
		DeliveryFee:    fee,
		Tax:            tax,
		DiscountAmount: discount,
		Total:          subtotal.Add(fee).Add(tax).Sub(discount),
	}
}
