package order

import (
	"strings"
	"time"

	"storefront-be/internal/payment"
	"storefront-be/internal/utils"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

type Order struct {
	ID          uuid.UUID `json:"id"`
	OrderNumber string    `json:"orderNumber"`
	// UserID is nil for guest checkouts.
	UserID *uint `json:"userId,omitempty"`

	Subtotal    int64 `json:"subtotal"`
	ShippingFee int64 `json:"shippingFee"`
	Total       int64 `json:"total"`

	Status            Status             `json:"status"`
	ShippingOptionID  uint               `json:"shippingOptionId"`
	PaymentMethodID   uint               `json:"paymentMethodId"`
	PaymentMethodType payment.MethodType `json:"paymentMethodType"`
	PaymentStatus     payment.Status     `json:"paymentStatus"`

	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Notes           *string         `json:"notes,omitempty"`
	Attribution     Attribution     `json:"attribution"`

	Items     []Item    `json:"items,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Item struct {
	ID          int64     `json:"id"`
	OrderID     uuid.UUID `json:"orderId"`
	ProductID   uint      `json:"productId"`
	ProductName string    `json:"productName"`
	UnitPrice   int64     `json:"unitPrice"`
	Quantity    int       `json:"quantity"`
	Size        *string   `json:"size,omitempty"`
	Color       *string   `json:"color,omitempty"`
	Subtotal    int64     `json:"subtotal"`
}

// ShippingAddress is copied onto the order at placement.
type ShippingAddress struct {
	Name  string  `json:"name"`
	Phone string  `json:"phone"`
	Line1 string  `json:"line1"`
	Line2 *string `json:"line2,omitempty"`
	Area  *string `json:"area,omitempty"`
	City  *string `json:"city,omitempty"`
}

// Normalize trims the address and puts the phone in local form.
func (a ShippingAddress) Normalize() ShippingAddress {
	a.Name = strings.TrimSpace(a.Name)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Phone = utils.NormalizePhoneBD(a.Phone)
	return a
}

func (a ShippingAddress) Validate() error {
	switch {
	case a.Name == "":
		return ErrInvalidAddress.Wrapf("name is required")
	case a.Line1 == "":
		return ErrInvalidAddress.Wrapf("address line is required")
	case a.Phone == "":
		return ErrInvalidAddress.Wrapf("phone is required")
	case !utils.IsValidMobileBD(a.Phone):
		return ErrInvalidAddress.Wrapf("phone %q is not a mobile number", a.Phone)
	}
	return nil
}

// Attribution carries the campaign tags the buyer arrived with.
type Attribution struct {
	Source   *string `json:"source,omitempty"`
	Medium   *string `json:"medium,omitempty"`
	Campaign *string `json:"campaign,omitempty"`
}

type HistoryEntry struct {
	ID         int64     `json:"id"`
	OrderID    uuid.UUID `json:"orderId"`
	FromStatus *Status   `json:"fromStatus,omitempty"`
	ToStatus   Status    `json:"toStatus"`
	// Actor is nil for system and gateway changes.
	Actor     *uint     `json:"actor,omitempty"`
	Note      *string   `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Transition is the outcome of a committed status change.
type Transition struct {
	Entry       HistoryEntry
	OrderNumber string
	Phone       string
}

type Product struct {
	ID     uint
	Name   string
	Price  int64
	Active bool
}

type ItemInput struct {
	ProductID uint    `json:"productId"`
	Quantity  int     `json:"quantity"`
	Size      *string `json:"size,omitempty"`
	Color     *string `json:"color,omitempty"`
}

type QuoteInput struct {
	Items            []ItemInput `json:"items"`
	ShippingOptionID uint        `json:"shippingOptionId"`
}

type PlaceOrderInput struct {
	Items            []ItemInput     `json:"items"`
	ShippingOptionID uint            `json:"shippingOptionId"`
	PaymentMethodID  uint            `json:"paymentMethodId"`
	Address          ShippingAddress `json:"address"`
	Notes            *string         `json:"notes,omitempty"`
	Attribution      Attribution     `json:"attribution"`
}
