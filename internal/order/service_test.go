package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"storefront-be/internal/apperror"
	"storefront-be/internal/events"
	"storefront-be/internal/notify"
	"storefront-be/internal/otp"
	"storefront-be/internal/payment"
	"storefront-be/internal/pricing"
	"storefront-be/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetProducts(ctx context.Context, ids []uint) (map[uint]Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uint]Product), args.Error(1)
}

func (m *MockRepository) GetShippingOption(ctx context.Context, id uint) (*pricing.ShippingOption, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pricing.ShippingOption), args.Error(1)
}

func (m *MockRepository) ListShippingOptions(ctx context.Context, enabledOnly bool) ([]pricing.ShippingOption, error) {
	args := m.Called(ctx, enabledOnly)
	return args.Get(0).([]pricing.ShippingOption), args.Error(1)
}

func (m *MockRepository) CreateOrderTx(ctx context.Context, o *Order) error {
	return m.Called(ctx, o).Error(0)
}

func (m *MockRepository) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) ListItems(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]Item), args.Error(1)
}

func (m *MockRepository) TransitionTx(ctx context.Context, orderID uuid.UUID, to Status, actor *uint, note *string) (*Transition, error) {
	args := m.Called(ctx, orderID, to, actor, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Transition), args.Error(1)
}

func (m *MockRepository) ListHistory(ctx context.Context, orderID uuid.UUID) ([]HistoryEntry, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]HistoryEntry), args.Error(1)
}

type MockMethods struct {
	mock.Mock
}

func (m *MockMethods) GetMethod(ctx context.Context, id uint) (*payment.Method, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Method), args.Error(1)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) IsVerified(ctx context.Context, phone string) (bool, error) {
	args := m.Called(ctx, phone)
	return args.Bool(0), args.Error(1)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Envelope
}

func (c *capturePublisher) Publish(_ context.Context, ev events.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

type captureDispatcher struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (c *captureDispatcher) Dispatch(_ context.Context, msg notify.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

type fixture struct {
	repo     *MockRepository
	methods  *MockMethods
	verifier *MockVerifier
	pub      *capturePublisher
	sms      *captureDispatcher
	svc      Service
}

func newFixture(requireGuestOTP bool) *fixture {
	f := &fixture{
		repo:     new(MockRepository),
		methods:  new(MockMethods),
		verifier: new(MockVerifier),
		pub:      &capturePublisher{},
		sms:      &captureDispatcher{},
	}
	f.svc = NewService(f.repo, f.methods, f.verifier, f.pub, f.sms, Options{
		NumberPrefix:    "ORD",
		RequireGuestOTP: requireGuestOTP,
	})
	return f
}

func i64(v int64) *int64 { return &v }

var catalog = map[uint]Product{
	1: {ID: 1, Name: "Tee", Price: 500, Active: true},
	2: {ID: 2, Name: "Cap", Price: 300, Active: true},
}

// 2 x 500 + 1 x 300 = 1300
var cartItems = []ItemInput{
	{ProductID: 1, Quantity: 2, Size: utils.StrPtr("M")},
	{ProductID: 2, Quantity: 1},
}

func freeOver1000() *pricing.ShippingOption {
	return &pricing.ShippingOption{ID: 1, Name: "Inside Dhaka", BasePrice: 60, FreeShippingThreshold: i64(1000), Enabled: true}
}

func freeOver1500() *pricing.ShippingOption {
	return &pricing.ShippingOption{ID: 2, Name: "Outside Dhaka", BasePrice: 60, FreeShippingThreshold: i64(1500), Enabled: true}
}

func validInput() PlaceOrderInput {
	return PlaceOrderInput{
		Items:            cartItems,
		ShippingOptionID: 2,
		PaymentMethodID:  1,
		Address:          ShippingAddress{Name: "Rahim", Phone: "+8801711000000", Line1: "House 4, Road 2"},
	}
}

func buyerCtx() context.Context {
	return utils.SetUserContext(context.Background(), 42, "buyer@shop.test", utils.RoleUser)
}

// --- Quote ---

func TestService_QuotePrice(t *testing.T) {
	t.Run("Free shipping reached", func(t *testing.T) {
		f := newFixture(false)
		ctx := context.Background()
		f.repo.On("GetShippingOption", ctx, uint(1)).Return(freeOver1000(), nil)
		f.repo.On("GetProducts", ctx, []uint{1, 2}).Return(catalog, nil)

		q, err := f.svc.QuotePrice(ctx, QuoteInput{Items: cartItems, ShippingOptionID: 1})
		require.NoError(t, err)
		assert.Equal(t, pricing.Quote{Subtotal: 1300, ShippingFee: 0, Total: 1300}, *q)
	})

	t.Run("Below threshold pays base fee", func(t *testing.T) {
		f := newFixture(false)
		ctx := context.Background()
		f.repo.On("GetShippingOption", ctx, uint(2)).Return(freeOver1500(), nil)
		f.repo.On("GetProducts", ctx, []uint{1, 2}).Return(catalog, nil)

		q, err := f.svc.QuotePrice(ctx, QuoteInput{Items: cartItems, ShippingOptionID: 2})
		require.NoError(t, err)
		assert.Equal(t, pricing.Quote{Subtotal: 1300, ShippingFee: 60, Total: 1360}, *q)
	})

	t.Run("Zero quantity rejected", func(t *testing.T) {
		f := newFixture(false)
		ctx := context.Background()
		f.repo.On("GetShippingOption", ctx, uint(1)).Return(freeOver1000(), nil)
		f.repo.On("GetProducts", ctx, []uint{1}).Return(catalog, nil)

		_, err := f.svc.QuotePrice(ctx, QuoteInput{Items: []ItemInput{{ProductID: 1, Quantity: 0}}, ShippingOptionID: 1})
		assert.ErrorIs(t, err, pricing.ErrInvalidQuantity)
	})

	t.Run("Missing shipping option", func(t *testing.T) {
		f := newFixture(false)
		_, err := f.svc.QuotePrice(context.Background(), QuoteInput{Items: cartItems})
		assert.ErrorIs(t, err, pricing.ErrShippingOptionRequired)
	})

	t.Run("Inactive product", func(t *testing.T) {
		f := newFixture(false)
		ctx := context.Background()
		f.repo.On("GetShippingOption", ctx, uint(1)).Return(freeOver1000(), nil)
		f.repo.On("GetProducts", ctx, []uint{3}).Return(map[uint]Product{3: {ID: 3, Price: 10}}, nil)

		_, err := f.svc.QuotePrice(ctx, QuoteInput{Items: []ItemInput{{ProductID: 3, Quantity: 1}}, ShippingOptionID: 1})
		assert.ErrorIs(t, err, ErrProductNotFound)
	})
}

// --- PlaceOrder ---

func TestService_PlaceOrder_Success(t *testing.T) {
	f := newFixture(true)
	ctx := buyerCtx()

	f.methods.On("GetMethod", ctx, uint(1)).Return(&payment.Method{ID: 1, Type: payment.MethodCOD, Enabled: true}, nil)
	f.repo.On("GetShippingOption", ctx, uint(2)).Return(freeOver1500(), nil)
	f.repo.On("GetProducts", ctx, []uint{1, 2}).Return(catalog, nil)
	f.repo.On("CreateOrderTx", ctx, mock.AnythingOfType("*order.Order")).Return(nil)

	o, err := f.svc.PlaceOrder(ctx, validInput())
	require.NoError(t, err)

	assert.Equal(t, int64(1300), o.Subtotal)
	assert.Equal(t, int64(60), o.ShippingFee)
	assert.Equal(t, int64(1360), o.Total)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, payment.StatusPending, o.PaymentStatus)
	assert.Equal(t, payment.MethodCOD, o.PaymentMethodType)
	assert.Equal(t, "01711000000", o.ShippingAddress.Phone)
	require.NotNil(t, o.UserID)
	assert.Equal(t, uint(42), *o.UserID)
	assert.Regexp(t, `^ORD-\d{8}-\d{4}$`, o.OrderNumber)
	require.Len(t, o.Items, 2)
	assert.Equal(t, int64(1000), o.Items[0].Subtotal)
	assert.Equal(t, "M", *o.Items[0].Size)

	// logged-in buyers skip the guest OTP gate
	f.verifier.AssertNotCalled(t, "IsVerified", mock.Anything, mock.Anything)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, events.OrderPlaced, f.pub.events[0].EventType)
	require.Len(t, f.sms.msgs, 1)
	assert.Equal(t, notify.TemplateOrderPlaced, f.sms.msgs[0].Template)
	assert.Equal(t, "৳1,360", f.sms.msgs[0].Vars["total"])
}

func TestService_PlaceOrder_DisabledMethodWritesNothing(t *testing.T) {
	f := newFixture(false)
	ctx := buyerCtx()

	f.methods.On("GetMethod", ctx, uint(1)).Return(&payment.Method{ID: 1, Type: payment.MethodBkash, Enabled: false}, nil)

	_, err := f.svc.PlaceOrder(ctx, validInput())
	assert.ErrorIs(t, err, ErrPaymentMethodDisabled)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	f.repo.AssertNotCalled(t, "CreateOrderTx", mock.Anything, mock.Anything)
	assert.Empty(t, f.pub.events)
	assert.Empty(t, f.sms.msgs)
}

func TestService_PlaceOrder_Validation(t *testing.T) {
	t.Run("Bad address", func(t *testing.T) {
		f := newFixture(false)
		in := validInput()
		in.Address.Phone = "12345"

		_, err := f.svc.PlaceOrder(buyerCtx(), in)
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("No items", func(t *testing.T) {
		f := newFixture(false)
		in := validInput()
		in.Items = nil

		_, err := f.svc.PlaceOrder(buyerCtx(), in)
		assert.ErrorIs(t, err, ErrNoItems)
	})

	t.Run("Unknown method", func(t *testing.T) {
		f := newFixture(false)
		ctx := buyerCtx()
		f.methods.On("GetMethod", ctx, uint(1)).Return(nil, payment.ErrMethodNotFound)

		_, err := f.svc.PlaceOrder(ctx, validInput())
		assert.ErrorIs(t, err, ErrPaymentMethodInvalid)
	})

	t.Run("Manual wallet without account", func(t *testing.T) {
		f := newFixture(false)
		ctx := buyerCtx()
		f.methods.On("GetMethod", ctx, uint(1)).Return(&payment.Method{ID: 1, Type: payment.MethodNagadManual, Enabled: true}, nil)

		_, err := f.svc.PlaceOrder(ctx, validInput())
		assert.ErrorIs(t, err, payment.ErrMethodMisconfigured)
	})
}

func TestService_PlaceOrder_GuestOTP(t *testing.T) {
	t.Run("Unverified guest rejected", func(t *testing.T) {
		f := newFixture(true)
		ctx := context.Background()
		f.methods.On("GetMethod", ctx, uint(1)).Return(&payment.Method{ID: 1, Type: payment.MethodCOD, Enabled: true}, nil)
		f.verifier.On("IsVerified", ctx, "01711000000").Return(false, nil)

		_, err := f.svc.PlaceOrder(ctx, validInput())
		assert.ErrorIs(t, err, otp.ErrPhoneNotVerified)
		f.repo.AssertNotCalled(t, "CreateOrderTx", mock.Anything, mock.Anything)
	})

	t.Run("Verified guest placed without user", func(t *testing.T) {
		f := newFixture(true)
		ctx := context.Background()
		f.methods.On("GetMethod", ctx, uint(1)).Return(&payment.Method{ID: 1, Type: payment.MethodCOD, Enabled: true}, nil)
		f.verifier.On("IsVerified", ctx, "01711000000").Return(true, nil)
		f.repo.On("GetShippingOption", ctx, uint(2)).Return(freeOver1500(), nil)
		f.repo.On("GetProducts", ctx, []uint{1, 2}).Return(catalog, nil)
		f.repo.On("CreateOrderTx", ctx, mock.Anything).Return(nil)

		o, err := f.svc.PlaceOrder(ctx, validInput())
		require.NoError(t, err)
		assert.Nil(t, o.UserID)
	})

	t.Run("Gate disabled", func(t *testing.T) {
		f := newFixture(false)
		ctx := context.Background()
		f.methods.On("GetMethod", ctx, uint(1)).Return(&payment.Method{ID: 1, Type: payment.MethodCOD, Enabled: true}, nil)
		f.repo.On("GetShippingOption", ctx, uint(2)).Return(freeOver1500(), nil)
		f.repo.On("GetProducts", ctx, []uint{1, 2}).Return(catalog, nil)
		f.repo.On("CreateOrderTx", ctx, mock.Anything).Return(nil)

		_, err := f.svc.PlaceOrder(ctx, validInput())
		require.NoError(t, err)
		f.verifier.AssertNotCalled(t, "IsVerified", mock.Anything, mock.Anything)
	})
}

func TestService_PlaceOrder_OrderNumberRetry(t *testing.T) {
	setup := func() (*fixture, context.Context) {
		f := newFixture(false)
		ctx := buyerCtx()
		f.methods.On("GetMethod", ctx, uint(1)).Return(&payment.Method{ID: 1, Type: payment.MethodCOD, Enabled: true}, nil)
		f.repo.On("GetShippingOption", ctx, uint(2)).Return(freeOver1500(), nil)
		f.repo.On("GetProducts", ctx, []uint{1, 2}).Return(catalog, nil)
		return f, ctx
	}

	t.Run("Second attempt succeeds", func(t *testing.T) {
		f, ctx := setup()
		f.repo.On("CreateOrderTx", ctx, mock.Anything).Return(errOrderNumberTaken).Once()
		f.repo.On("CreateOrderTx", ctx, mock.Anything).Return(nil).Once()

		_, err := f.svc.PlaceOrder(ctx, validInput())
		require.NoError(t, err)
		f.repo.AssertNumberOfCalls(t, "CreateOrderTx", 2)
	})

	t.Run("Exhausted", func(t *testing.T) {
		f, ctx := setup()
		f.repo.On("CreateOrderTx", ctx, mock.Anything).Return(errOrderNumberTaken)

		_, err := f.svc.PlaceOrder(ctx, validInput())
		assert.ErrorIs(t, err, ErrOrderNumberCollision)
		f.repo.AssertNumberOfCalls(t, "CreateOrderTx", 2)
		assert.Empty(t, f.pub.events)
	})

	t.Run("Store failure is not retried", func(t *testing.T) {
		f, ctx := setup()
		f.repo.On("CreateOrderTx", ctx, mock.Anything).Return(errors.New("connection reset"))

		_, err := f.svc.PlaceOrder(ctx, validInput())
		assert.Error(t, err)
		f.repo.AssertNumberOfCalls(t, "CreateOrderTx", 1)
	})
}

// --- Status machine ---

func TestService_ChangeStatus(t *testing.T) {
	t.Run("Pending to processing records history", func(t *testing.T) {
		f := newFixture(false)
		admin := uint(1)
		ctx := utils.SetUserContext(context.Background(), admin, "admin@shop.test", utils.RoleAdmin)
		id := uuid.New()
		from := StatusPending
		note := utils.StrPtr("packed")

		f.repo.On("TransitionTx", ctx, id, StatusProcessing, &admin, note).Return(&Transition{
			Entry:       HistoryEntry{ID: 2, OrderID: id, FromStatus: &from, ToStatus: StatusProcessing, Actor: &admin, Note: note},
			OrderNumber: "ORD-20261018-0042",
			Phone:       "01711000000",
		}, nil)

		entry, err := f.svc.ChangeStatus(ctx, id, StatusProcessing, note)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, *entry.FromStatus)
		assert.Equal(t, StatusProcessing, entry.ToStatus)
		assert.Equal(t, admin, *entry.Actor)

		require.Len(t, f.pub.events, 1)
		assert.Equal(t, events.OrderStatusChanged, f.pub.events[0].EventType)
		require.Len(t, f.sms.msgs, 1)
		assert.Equal(t, "processing", f.sms.msgs[0].Vars["status"])
	})

	t.Run("Illegal transition surfaces conflict", func(t *testing.T) {
		f := newFixture(false)
		ctx := context.Background()
		id := uuid.New()
		f.repo.On("TransitionTx", ctx, id, StatusCancelled, (*uint)(nil), (*string)(nil)).
			Return(nil, ErrIllegalTransition.Wrapf("delivered to cancelled"))

		_, err := f.svc.ChangeStatus(ctx, id, StatusCancelled, nil)
		assert.ErrorIs(t, err, ErrIllegalTransition)
		assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
		assert.Empty(t, f.pub.events)
	})

	t.Run("Unknown status", func(t *testing.T) {
		f := newFixture(false)
		_, err := f.svc.ChangeStatus(context.Background(), uuid.New(), Status("lost"), nil)
		assert.ErrorIs(t, err, ErrInvalidStatus)
		f.repo.AssertNotCalled(t, "TransitionTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

// --- Reads ---

func TestService_GetHistory(t *testing.T) {
	id := uuid.New()
	pending := StatusPending

	t.Run("Newest first and consistent", func(t *testing.T) {
		f := newFixture(false)
		ctx := context.Background()
		f.repo.On("GetOrder", ctx, id).Return(&Order{ID: id, Status: StatusProcessing}, nil)
		f.repo.On("ListHistory", ctx, id).Return([]HistoryEntry{
			{ID: 2, FromStatus: &pending, ToStatus: StatusProcessing},
			{ID: 1, ToStatus: StatusPending},
		}, nil)

		h, err := f.svc.GetHistory(ctx, id)
		require.NoError(t, err)
		assert.Len(t, h, 2)
	})

	t.Run("Diverged history is an integrity error", func(t *testing.T) {
		f := newFixture(false)
		ctx := context.Background()
		f.repo.On("GetOrder", ctx, id).Return(&Order{ID: id, Status: StatusShipped}, nil)
		f.repo.On("ListHistory", ctx, id).Return([]HistoryEntry{{ID: 1, ToStatus: StatusPending}}, nil)

		_, err := f.svc.GetHistory(ctx, id)
		assert.ErrorIs(t, err, ErrHistoryDiverged)
		assert.Equal(t, "could not complete, try again", apperror.PublicMessage(err))
	})
}

func TestService_GetOrder_Ownership(t *testing.T) {
	id := uuid.New()
	owner := uint(42)

	t.Run("Owner sees items", func(t *testing.T) {
		f := newFixture(false)
		ctx := buyerCtx()
		f.repo.On("GetOrder", ctx, id).Return(&Order{ID: id, UserID: &owner}, nil)
		f.repo.On("ListItems", ctx, id).Return([]Item{{ID: 1}}, nil)

		o, err := f.svc.GetOrder(ctx, id)
		require.NoError(t, err)
		assert.Len(t, o.Items, 1)
	})

	t.Run("Other buyer gets not found", func(t *testing.T) {
		f := newFixture(false)
		ctx := utils.SetUserContext(context.Background(), 7, "other@shop.test", utils.RoleUser)
		f.repo.On("GetOrder", ctx, id).Return(&Order{ID: id, UserID: &owner}, nil)

		_, err := f.svc.GetOrder(ctx, id)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("Admin sees any order", func(t *testing.T) {
		f := newFixture(false)
		ctx := utils.SetUserContext(context.Background(), 1, "admin@shop.test", utils.RoleAdmin)
		f.repo.On("GetOrder", ctx, id).Return(&Order{ID: id, UserID: &owner}, nil)
		f.repo.On("ListItems", ctx, id).Return([]Item{}, nil)

		_, err := f.svc.GetOrder(ctx, id)
		assert.NoError(t, err)
	})
}
