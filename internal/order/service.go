package order

import (
	"context"
	"errors"
	"time"

	"storefront-be/internal/events"
	"storefront-be/internal/logger"
	"storefront-be/internal/notify"
	"storefront-be/internal/otp"
	"storefront-be/internal/payment"
	"storefront-be/internal/pricing"
	"storefront-be/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service interface {
	QuotePrice(ctx context.Context, in QuoteInput) (*pricing.Quote, error)
	ListShippingOptions(ctx context.Context) ([]pricing.ShippingOption, error)
	PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	GetHistory(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, to Status, note *string) (*HistoryEntry, error)
}

// MethodSource resolves the payment method a buyer picked.
type MethodSource interface {
	GetMethod(ctx context.Context, id uint) (*payment.Method, error)
}

// PhoneVerifier reports whether a phone recently passed OTP verification.
type PhoneVerifier interface {
	IsVerified(ctx context.Context, phone string) (bool, error)
}

type Options struct {
	NumberPrefix string
	// NumberAttempts bounds order-number generation; at least 2.
	NumberAttempts  int
	RequireGuestOTP bool
}

type service struct {
	repo      Repository
	methods   MethodSource
	verifier  PhoneVerifier
	publisher events.Publisher
	notifier  notify.Dispatcher
	opts      Options
	now       func() time.Time
}

func NewService(
	repo Repository,
	methods MethodSource,
	verifier PhoneVerifier,
	publisher events.Publisher,
	notifier notify.Dispatcher,
	opts Options,
) Service {
	if opts.NumberAttempts < 2 {
		opts.NumberAttempts = 2
	}
	if opts.NumberPrefix == "" {
		opts.NumberPrefix = "ORD"
	}
	return &service{
		repo:      repo,
		methods:   methods,
		verifier:  verifier,
		publisher: publisher,
		notifier:  notifier,
		opts:      opts,
		now:       time.Now,
	}
}

func (s *service) ListShippingOptions(ctx context.Context) ([]pricing.ShippingOption, error) {
	return s.repo.ListShippingOptions(ctx, true)
}

func (s *service) QuotePrice(ctx context.Context, in QuoteInput) (*pricing.Quote, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "QuotePrice"),
		zap.Int("item_count", len(in.Items)),
	)

	_, quote, err := s.price(ctx, in.Items, in.ShippingOptionID)
	if err != nil {
		log.Warn("quote failed", zap.Error(err))
		return nil, err
	}
	return quote, nil
}

// price loads authoritative unit prices and the shipping option, then runs
// the pricing engine. Client-sent prices are never used.
func (s *service) price(ctx context.Context, inputs []ItemInput, shippingOptionID uint) ([]Item, *pricing.Quote, error) {
	if len(inputs) == 0 {
		return nil, nil, ErrNoItems
	}
	if shippingOptionID == 0 {
		return nil, nil, pricing.ErrShippingOptionRequired
	}

	option, err := s.repo.GetShippingOption(ctx, shippingOptionID)
	if err != nil {
		return nil, nil, err
	}
	if !option.Enabled {
		return nil, nil, ErrShippingNotFound.Wrapf("option %d is disabled", option.ID)
	}

	ids := make([]uint, 0, len(inputs))
	for _, in := range inputs {
		ids = append(ids, in.ProductID)
	}
	products, err := s.repo.GetProducts(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	lines := make([]pricing.LineItem, 0, len(inputs))
	items := make([]Item, 0, len(inputs))
	for _, in := range inputs {
		p, ok := products[in.ProductID]
		if !ok || !p.Active {
			return nil, nil, ErrProductNotFound.Wrapf("product %d", in.ProductID)
		}
		line := pricing.LineItem{
			ProductID: p.ID,
			UnitPrice: p.Price,
			Quantity:  in.Quantity,
			Size:      in.Size,
			Color:     in.Color,
		}
		lines = append(lines, line)
		items = append(items, Item{
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    in.Quantity,
			Size:        in.Size,
			Color:       in.Color,
			Subtotal:    line.Subtotal(),
		})
	}

	quote, err := pricing.Price(lines, option)
	if err != nil {
		return nil, nil, err
	}
	return items, &quote, nil
}

func (s *service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "PlaceOrder"),
		zap.Int("item_count", len(in.Items)),
		zap.Uint("payment_method_id", in.PaymentMethodID),
	)

	log.Info("place order started")

	// 1. Address
	addr := in.Address.Normalize()
	if err := addr.Validate(); err != nil {
		log.Warn("invalid address", zap.Error(err))
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, ErrNoItems
	}

	// 2. Payment method
	method, err := s.methods.GetMethod(ctx, in.PaymentMethodID)
	if errors.Is(err, payment.ErrMethodNotFound) {
		return nil, ErrPaymentMethodInvalid
	}
	if err != nil {
		log.Error("failed to load payment method", zap.Error(err))
		return nil, err
	}
	if !method.Enabled {
		log.Warn("payment method disabled", zap.String("payment_method", string(method.Type)))
		return nil, ErrPaymentMethodDisabled
	}
	if method.Type.RequiresAccountNumber() && utils.PtrString(method.AccountNumber) == "" {
		log.Error("manual payment method has no account number", zap.Uint("method_id", method.ID))
		return nil, payment.ErrMethodMisconfigured
	}

	// 3. Guest verification
	userID, loggedIn := utils.GetUserIDFromContext(ctx)
	if !loggedIn && s.opts.RequireGuestOTP {
		ok, err := s.verifier.IsVerified(ctx, addr.Phone)
		if err != nil {
			log.Error("failed to check phone verification", zap.Error(err))
			return nil, err
		}
		if !ok {
			log.Warn("guest phone not verified")
			return nil, otp.ErrPhoneNotVerified
		}
	}

	// 4. Authoritative pricing
	items, quote, err := s.price(ctx, in.Items, in.ShippingOptionID)
	if err != nil {
		log.Warn("pricing failed", zap.Error(err))
		return nil, err
	}

	log.Info("price calculated",
		zap.Int64("subtotal", quote.Subtotal),
		zap.Int64("shipping_fee", quote.ShippingFee),
		zap.Int64("total", quote.Total),
	)

	o := &Order{
		ID:                uuid.New(),
		Subtotal:          quote.Subtotal,
		ShippingFee:       quote.ShippingFee,
		Total:             quote.Total,
		Status:            StatusPending,
		ShippingOptionID:  in.ShippingOptionID,
		PaymentMethodID:   method.ID,
		PaymentMethodType: method.Type,
		PaymentStatus:     payment.StatusPending,
		ShippingAddress:   addr,
		Notes:             in.Notes,
		Attribution:       in.Attribution,
		Items:             items,
	}
	if loggedIn {
		o.UserID = &userID
	}

	// 5. Persist, retrying on order-number collisions
	if err := s.persist(ctx, o, log); err != nil {
		return nil, err
	}

	log.Info("order placed",
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.OrderNumber),
	)

	s.announcePlaced(ctx, o)

	return o, nil
}

func (s *service) persist(ctx context.Context, o *Order, log *zap.Logger) error {
	for attempt := 1; attempt <= s.opts.NumberAttempts; attempt++ {
		o.OrderNumber = utils.GenerateOrderNumber(s.opts.NumberPrefix, s.now())

		err := s.repo.CreateOrderTx(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errOrderNumberTaken) {
			log.Error("failed to create order", zap.Error(err))
			return err
		}
		log.Warn("order number collision, retrying",
			zap.String("order_number", o.OrderNumber),
			zap.Int("attempt", attempt),
		)
	}
	return ErrOrderNumberCollision
}

func (s *service) announcePlaced(ctx context.Context, o *Order) {
	ev, err := events.New(ctx, events.OrderPlaced, o.ID.String(), events.OrderPlacedPayload{
		OrderID:       o.ID.String(),
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Subtotal:      o.Subtotal,
		ShippingFee:   o.ShippingFee,
		Total:         o.Total,
		PaymentMethod: string(o.PaymentMethodType),
	})
	if err == nil {
		s.publisher.Publish(ctx, ev)
	}

	s.notifier.Dispatch(ctx, notify.Message{
		Template: notify.TemplateOrderPlaced,
		Phone:    o.ShippingAddress.Phone,
		Vars: map[string]string{
			"name":         o.ShippingAddress.Name,
			"order_number": o.OrderNumber,
			"total":        utils.FormatTaka(o.Total),
		},
	})
}

// GetOrder returns the order with its items. Buyers see only their own
// orders; guest orders are reachable by id alone.
func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(ctx, o) {
		return nil, ErrOrderNotFound
	}

	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (s *service) canView(ctx context.Context, o *Order) bool {
	if o.UserID == nil || utils.IsAdmin(ctx) {
		return true
	}
	uid, ok := utils.GetUserIDFromContext(ctx)
	return ok && uid == *o.UserID
}

func (s *service) GetHistory(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "GetHistory"),
		zap.String("order_id", id.String()),
	)

	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(ctx, o) {
		return nil, ErrOrderNotFound
	}

	history, err := s.repo.ListHistory(ctx, id)
	if err != nil {
		return nil, err
	}

	if len(history) == 0 || history[0].ToStatus != o.Status {
		latest := Status("")
		if len(history) > 0 {
			latest = history[0].ToStatus
		}
		log.Error("status history diverged from order",
			zap.String("order_status", string(o.Status)),
			zap.String("latest_history_status", string(latest)),
			zap.Int("entries", len(history)),
		)
		return nil, ErrHistoryDiverged
	}
	return history, nil
}

func (s *service) ChangeStatus(ctx context.Context, id uuid.UUID, to Status, note *string) (*HistoryEntry, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ChangeOrderStatus"),
		zap.String("order_id", id.String()),
		zap.String("to", string(to)),
	)

	if !to.Valid() {
		return nil, ErrInvalidStatus.Wrapf("%q", to)
	}

	actor := utils.ActorFromContext(ctx)
	t, err := s.repo.TransitionTx(ctx, id, to, actor, note)
	if err != nil {
		log.Warn("status change rejected", zap.Error(err))
		return nil, err
	}

	from := ""
	if t.Entry.FromStatus != nil {
		from = string(*t.Entry.FromStatus)
	}
	log.Info("order status changed", zap.String("from", from))

	ev, err := events.New(ctx, events.OrderStatusChanged, id.String(), events.OrderStatusChangedPayload{
		OrderID:     id.String(),
		OrderNumber: t.OrderNumber,
		From:        from,
		To:          string(to),
		ChangedBy:   actor,
		Note:        utils.PtrString(note),
	})
	if err == nil {
		s.publisher.Publish(ctx, ev)
	}

	s.notifier.Dispatch(ctx, notify.Message{
		Template: notify.TemplateOrderStatus,
		Phone:    t.Phone,
		Vars: map[string]string{
			"order_number": t.OrderNumber,
			"status":       string(to),
		},
	})

	return &t.Entry, nil
}
