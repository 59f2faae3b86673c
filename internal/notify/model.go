package notify

type Template string

const (
	TemplateOTP             Template = "otp_code"
	TemplateOrderPlaced     Template = "order_placed"
	TemplateOrderStatus     Template = "order_status_changed"
	TemplatePaymentReceived Template = "payment_received"
	TemplatePaymentFailed   Template = "payment_failed"
)

// Message is a single SMS to render and deliver.
type Message struct {
	Template Template
	Phone    string
	Vars     map[string]string
}

var templates = map[Template]string{
	TemplateOTP:             "Your verification code is {{code}}. It expires in {{minutes}} minutes.",
	TemplateOrderPlaced:     "Hi {{name}}, your order {{order_number}} of {{total}} has been placed.",
	TemplateOrderStatus:     "Your order {{order_number}} is now {{status}}.",
	TemplatePaymentReceived: "We received {{total}} for order {{order_number}}. Transaction {{transaction_id}}.",
	TemplatePaymentFailed:   "Payment for order {{order_number}} did not go through. You can retry from your order page.",
}
