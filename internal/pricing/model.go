package pricing

// LineItem is a priced order line. UnitPrice is the snapshot taken when the
// line is priced; it is never re-read after the order exists.
type LineItem struct {
	ProductID uint
	UnitPrice int64
	Quantity  int
	Size      *string
	Color     *string
}

func (li LineItem) Subtotal() int64 {
	return li.UnitPrice * int64(li.Quantity)
}

// ShippingDiscount lowers the base fee once the subtotal reaches Threshold.
type ShippingDiscount struct {
	Threshold int64 `json:"threshold"`
	Amount    int64 `json:"amount"`
}

type ShippingOption struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	BasePrice int64  `json:"basePrice"`

	// FreeShippingThreshold zeroes the fee when subtotal >= threshold.
	FreeShippingThreshold *int64            `json:"freeShippingThreshold,omitempty"`
	Discount              *ShippingDiscount `json:"discount,omitempty"`

	Enabled   bool `json:"enabled"`
	SortOrder int  `json:"sortOrder"`
}

type Quote struct {
	Subtotal    int64 `json:"subtotal"`
	ShippingFee int64 `json:"shippingFee"`
	Total       int64 `json:"total"`
}

// Consistent reports whether total == subtotal + shippingFee.
func (q Quote) Consistent() bool {
	return q.Total == q.Subtotal+q.ShippingFee && q.ShippingFee >= 0 && q.Subtotal >= 0
}
