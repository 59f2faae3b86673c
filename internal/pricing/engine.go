package pricing

import "math"

// Price computes the authoritative quote for items shipped with option.
// It has no side effects; the live checkout quote and the persisted order
// both go through it so the two can never disagree.
func Price(items []LineItem, option *ShippingOption) (Quote, error) {
	if option == nil {
		return Quote{}, ErrShippingOptionRequired
	}
	if err := validateOption(option); err != nil {
		return Quote{}, err
	}

	var subtotal int64
	for i, item := range items {
		if item.Quantity < 1 {
			return Quote{}, ErrInvalidQuantity.Wrapf("line %d: quantity %d", i, item.Quantity)
		}
		if item.UnitPrice < 0 {
			return Quote{}, ErrInvalidPrice.Wrapf("line %d: unit price %d", i, item.UnitPrice)
		}
		if item.UnitPrice > 0 && int64(item.Quantity) > math.MaxInt64/item.UnitPrice {
			return Quote{}, ErrAmountOverflow
		}
		line := item.Subtotal()
		if subtotal > math.MaxInt64-line {
			return Quote{}, ErrAmountOverflow
		}
		subtotal += line
	}

	fee := ShippingFee(subtotal, option)
	if subtotal > math.MaxInt64-fee {
		return Quote{}, ErrAmountOverflow
	}

	return Quote{
		Subtotal:    subtotal,
		ShippingFee: fee,
		Total:       subtotal + fee,
	}, nil
}

// ShippingFee applies the option's threshold rules to subtotal.
// Free shipping takes precedence over the discount, and the fee floors at 0.
func ShippingFee(subtotal int64, option *ShippingOption) int64 {
	if option.FreeShippingThreshold != nil && subtotal >= *option.FreeShippingThreshold {
		return 0
	}

	fee := option.BasePrice
	if d := option.Discount; d != nil && subtotal >= d.Threshold {
		fee -= d.Amount
	}
	if fee < 0 {
		return 0
	}
	return fee
}

func validateOption(option *ShippingOption) error {
	if option.BasePrice < 0 {
		return ErrInvalidShippingOption.Wrapf("option %d: negative base price", option.ID)
	}
	if option.FreeShippingThreshold != nil && *option.FreeShippingThreshold < 0 {
		return ErrInvalidShippingOption.Wrapf("option %d: negative free shipping threshold", option.ID)
	}
	if d := option.Discount; d != nil && (d.Threshold < 0 || d.Amount < 0) {
		return ErrInvalidShippingOption.Wrapf("option %d: negative discount rule", option.ID)
	}
	return nil
}
