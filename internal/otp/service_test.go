package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront-be/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- Mocks ---

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Replace(ctx context.Context, c *Challenge, cutoff time.Time) error {
	args := m.Called(ctx, c, cutoff)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, phone string) (*Challenge, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Challenge), args.Error(1)
}

func (m *MockStore) Consume(ctx context.Context, phone string, issuedAt, at time.Time) (bool, error) {
	args := m.Called(ctx, phone, issuedAt, at)
	return args.Bool(0), args.Error(1)
}

type captureDispatcher struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (c *captureDispatcher) Dispatch(ctx context.Context, msg notify.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *captureDispatcher) lastCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return ""
	}
	return c.msgs[len(c.msgs)-1].Vars["code"]
}

var testOpts = Options{
	TTL:            5 * time.Minute,
	ResendCooldown: 60 * time.Second,
	VerifiedWindow: 30 * time.Minute,
	HashCost:       bcrypt.MinCost,
}

func newTestService(store Store, d notify.Dispatcher, now time.Time) *service {
	svc := NewService(store, d, testOpts).(*service)
	svc.now = func() time.Time { return now }
	return svc
}

func challengeFor(t *testing.T, code string, issued time.Time) *Challenge {
	h, err := hashCode(code, bcrypt.MinCost)
	require.NoError(t, err)
	return &Challenge{
		Phone:     "01712345678",
		CodeHash:  h,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(testOpts.TTL),
	}
}

// --- Tests ---

func TestService_Issue(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		store := new(MockStore)
		d := &captureDispatcher{}
		svc := newTestService(store, d, now)

		var stored *Challenge
		store.On("Replace", mock.Anything, mock.AnythingOfType("*otp.Challenge"), now.Add(-time.Minute)).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*Challenge) }).
			Return(nil)

		res, err := svc.Issue(context.Background(), "+8801712345678")

		require.NoError(t, err)
		assert.Equal(t, "01712345678", res.Phone)
		assert.Equal(t, now.Add(5*time.Minute), res.ExpiresAt)
		assert.Equal(t, now.Add(time.Minute), res.ResendAfter)

		code := d.lastCode()
		assert.Len(t, code, 6)
		assert.True(t, codeMatches(stored.CodeHash, code))
		assert.NotContains(t, stored.CodeHash, code)
		store.AssertExpectations(t)
	})

	t.Run("RateLimited", func(t *testing.T) {
		store := new(MockStore)
		d := &captureDispatcher{}
		svc := newTestService(store, d, now)

		store.On("Replace", mock.Anything, mock.Anything, mock.Anything).Return(ErrRateLimited)

		_, err := svc.Issue(context.Background(), "01712345678")

		assert.ErrorIs(t, err, ErrRateLimited)
		assert.Empty(t, d.msgs, "no sms when rate limited")
	})

	t.Run("InvalidPhone", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store, &captureDispatcher{}, now)

		_, err := svc.Issue(context.Background(), "12345")

		assert.ErrorIs(t, err, ErrInvalidPhone)
		store.AssertNotCalled(t, "Replace")
	})

	t.Run("StoreError", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store, &captureDispatcher{}, now)
		store.On("Replace", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db down"))

		_, err := svc.Issue(context.Background(), "01712345678")
		assert.EqualError(t, err, "db down")
	})
}

func TestService_Verify(t *testing.T) {
	issued := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	phone := "01712345678"

	t.Run("Success", func(t *testing.T) {
		store := new(MockStore)
		now := issued.Add(time.Minute)
		svc := newTestService(store, &captureDispatcher{}, now)

		store.On("Get", mock.Anything, phone).Return(challengeFor(t, "042917", issued), nil)
		store.On("Consume", mock.Anything, phone, issued, now).Return(true, nil)

		err := svc.Verify(context.Background(), phone, "042917")
		assert.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("NotFound", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store, &captureDispatcher{}, issued)
		store.On("Get", mock.Anything, phone).Return(nil, ErrNotFound)

		assert.ErrorIs(t, svc.Verify(context.Background(), phone, "123456"), ErrNotFound)
	})

	t.Run("ExpiredEvenWhenDigitsMatch", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store, &captureDispatcher{}, issued.Add(5*time.Minute))
		store.On("Get", mock.Anything, phone).Return(challengeFor(t, "123456", issued), nil)

		assert.ErrorIs(t, svc.Verify(context.Background(), phone, "123456"), ErrExpired)
		store.AssertNotCalled(t, "Consume")
	})

	t.Run("Mismatch", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store, &captureDispatcher{}, issued.Add(time.Second))
		store.On("Get", mock.Anything, phone).Return(challengeFor(t, "123456", issued), nil)

		assert.ErrorIs(t, svc.Verify(context.Background(), phone, "123457"), ErrMismatch)
		assert.ErrorIs(t, svc.Verify(context.Background(), phone, "12345"), ErrMismatch)
		assert.ErrorIs(t, svc.Verify(context.Background(), phone, "12345a"), ErrMismatch)
		store.AssertNotCalled(t, "Consume")
	})

	t.Run("ReplayAlreadyConsumed", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store, &captureDispatcher{}, issued.Add(time.Minute))

		c := challengeFor(t, "123456", issued)
		consumed := issued.Add(30 * time.Second)
		c.ConsumedAt = &consumed
		store.On("Get", mock.Anything, phone).Return(c, nil)

		assert.ErrorIs(t, svc.Verify(context.Background(), phone, "123456"), ErrAlreadyConsumed)
	})

	t.Run("LostConsumeRace", func(t *testing.T) {
		store := new(MockStore)
		now := issued.Add(time.Minute)
		svc := newTestService(store, &captureDispatcher{}, now)

		c := challengeFor(t, "123456", issued)
		store.On("Get", mock.Anything, phone).Return(c, nil)
		store.On("Consume", mock.Anything, phone, issued, now).Return(false, nil)

		assert.ErrorIs(t, svc.Verify(context.Background(), phone, "123456"), ErrAlreadyConsumed)
	})

	t.Run("ReplacedDuringVerify", func(t *testing.T) {
		store := new(MockStore)
		now := issued.Add(2 * time.Minute)
		svc := newTestService(store, &captureDispatcher{}, now)

		old := challengeFor(t, "123456", issued)
		fresh := challengeFor(t, "654321", issued.Add(90*time.Second))
		store.On("Get", mock.Anything, phone).Return(old, nil).Once()
		store.On("Consume", mock.Anything, phone, issued, now).Return(false, nil)
		store.On("Get", mock.Anything, phone).Return(fresh, nil).Once()

		assert.ErrorIs(t, svc.Verify(context.Background(), phone, "123456"), ErrMismatch)
	})
}

func TestService_IsVerified(t *testing.T) {
	issued := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	phone := "01712345678"

	consumedChallenge := func() *Challenge {
		c := challengeFor(t, "123456", issued)
		at := issued.Add(time.Minute)
		c.ConsumedAt = &at
		return c
	}

	t.Run("WithinWindow", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store, &captureDispatcher{}, issued.Add(10*time.Minute))
		store.On("Get", mock.Anything, phone).Return(consumedChallenge(), nil)

		ok, err := svc.IsVerified(context.Background(), "+880 1712-345678")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("WindowElapsed", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store, &captureDispatcher{}, issued.Add(2*time.Hour))
		store.On("Get", mock.Anything, phone).Return(consumedChallenge(), nil)

		ok, err := svc.IsVerified(context.Background(), phone)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("NotConsumed", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store, &captureDispatcher{}, issued.Add(time.Minute))
		store.On("Get", mock.Anything, phone).Return(challengeFor(t, "123456", issued), nil)

		ok, err := svc.IsVerified(context.Background(), phone)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("NoChallenge", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store, &captureDispatcher{}, issued)
		store.On("Get", mock.Anything, phone).Return(nil, ErrNotFound)

		ok, err := svc.IsVerified(context.Background(), phone)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestChallenge_Remaining(t *testing.T) {
	issued := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	c := &Challenge{IssuedAt: issued, ExpiresAt: issued.Add(5 * time.Minute)}

	assert.Equal(t, 3*time.Minute, c.Remaining(issued.Add(2*time.Minute)))
	assert.Equal(t, time.Duration(0), c.Remaining(issued.Add(10*time.Minute)))
	assert.True(t, c.Expired(issued.Add(5*time.Minute)))
	assert.False(t, c.Expired(issued.Add(5*time.Minute-time.Millisecond)))
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.True(t, wellFormed(code), code)
	}
}
