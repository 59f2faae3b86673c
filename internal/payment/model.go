package payment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type MethodType string

const (
	MethodCOD         MethodType = "cod"
	MethodBkashManual MethodType = "bkash_manual"
	MethodNagadManual MethodType = "nagad_manual"
	MethodBkash       MethodType = "bkash"
	MethodSSLCommerz  MethodType = "sslcommerz"
	MethodGeneric     MethodType = "generic"
)

func (t MethodType) Valid() bool {
	switch t {
	case MethodCOD, MethodBkashManual, MethodNagadManual, MethodBkash, MethodSSLCommerz, MethodGeneric:
		return true
	}
	return false
}

// Hosted methods redirect the buyer to a remote gateway and resolve by callback.
func (t MethodType) Hosted() bool {
	return t == MethodBkash || t == MethodSSLCommerz
}

func (t MethodType) RequiresAccountNumber() bool {
	return t == MethodBkashManual || t == MethodNagadManual
}

// Method is a configured payment option shown at checkout.
type Method struct {
	ID            uint       `json:"id"`
	Type          MethodType `json:"type"`
	Name          string     `json:"name"`
	Enabled       bool       `json:"enabled"`
	Instructions  *string    `json:"instructions,omitempty"`
	AccountNumber *string    `json:"accountNumber,omitempty"`
	SortOrder     int        `json:"sortOrder"`
}

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

func (s Status) Final() bool {
	return s == StatusPaid || s == StatusFailed
}

// Charge is the slice of an order the adapter needs to collect payment.
type Charge struct {
	OrderID       uuid.UUID
	OrderNumber   string
	// UserID is nil for guest orders.
	UserID        *uint
	Amount        int64
	PaymentStatus Status
	BuyerName     string
	BuyerPhone    string
	Method        Method
}

// Session is one hosted-gateway payment attempt for an order.
type Session struct {
	ID             int64
	OrderID        uuid.UUID
	Provider       MethodType
	IdempotencyKey string
	ProviderRef    string
	RedirectURL    string
	Amount         int64
	Status         Status
	TransactionID  *string
	FailureReason  *string
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

type CallbackURLs struct {
	// Root carries no outcome marker, for providers that append their own
	// status query to a single return url.
	Root    string
	Success string
	Failure string
	Cancel  string
}

type SessionRequest struct {
	IdempotencyKey string
	OrderNumber    string
	Amount         int64
	BuyerName      string
	BuyerPhone     string
	URLs           CallbackURLs
}

type SessionResponse struct {
	ProviderRef string
	RedirectURL string
	Raw         json.RawMessage
}

type CallbackOutcome string

const (
	OutcomeSuccess CallbackOutcome = "success"
	OutcomeFailure CallbackOutcome = "failure"
	OutcomeCancel  CallbackOutcome = "cancel"
)

// Callback is a provider notification reduced to what resolution needs.
type Callback struct {
	Provider        MethodType
	SessionRef      string
	ValidationToken string
	Outcome         CallbackOutcome
	Payload         json.RawMessage
}

// Validation is the gateway's verdict on a completed session.
type Validation struct {
	Success       bool
	TransactionID string
	Amount        int64
	Reason        string
}

type InitiateResult struct {
	OrderID      uuid.UUID  `json:"orderId"`
	Method       MethodType `json:"method"`
	Manual       bool       `json:"manual"`
	RedirectURL  string     `json:"redirectUrl,omitempty"`
	Instructions []string   `json:"instructions,omitempty"`
}

type Resolution struct {
	OrderID         uuid.UUID `json:"orderId"`
	OrderNumber     string    `json:"orderNumber"`
	Success         bool      `json:"success"`
	PaymentStatus   Status    `json:"paymentStatus"`
	TransactionID   string    `json:"transactionId,omitempty"`
	AlreadyResolved bool      `json:"alreadyResolved"`
}
