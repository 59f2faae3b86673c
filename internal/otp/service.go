package otp

import (
	"context"
	"errors"
	"strconv"
	"time"

	"storefront-be/internal/logger"
	"storefront-be/internal/notify"
	"storefront-be/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	Issue(ctx context.Context, phone string) (*IssueResult, error)
	Verify(ctx context.Context, phone, code string) error
	// IsVerified reports whether phone completed verification within the
	// configured window.
	IsVerified(ctx context.Context, phone string) (bool, error)
}

type Options struct {
	TTL            time.Duration
	ResendCooldown time.Duration
	VerifiedWindow time.Duration
	HashCost       int
}

type service struct {
	store    Store
	notifier notify.Dispatcher
	opts     Options
	now      func() time.Time
}

func NewService(store Store, notifier notify.Dispatcher, opts Options) Service {
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	return &service{
		store:    store,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

// clock truncates to milliseconds so timestamps survive a store round trip unchanged.
func (s *service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *service) Issue(ctx context.Context, phone string) (*IssueResult, error) {
	phone = utils.NormalizePhoneBD(phone)

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "IssueOTP"),
		zap.String("phone", phone),
	)

	if !utils.IsValidMobileBD(phone) {
		log.Warn("invalid phone")
		return nil, ErrInvalidPhone
	}

	code, err := generateCode()
	if err != nil {
		log.Error("failed to generate code", zap.Error(err))
		return nil, err
	}
	hash, err := hashCode(code, s.opts.HashCost)
	if err != nil {
		log.Error("failed to hash code", zap.Error(err))
		return nil, err
	}

	now := s.clock()
	challenge := &Challenge{
		Phone:     phone,
		CodeHash:  hash,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.opts.TTL),
	}

	if err := s.store.Replace(ctx, challenge, now.Add(-s.opts.ResendCooldown)); err != nil {
		if errors.Is(err, ErrRateLimited) {
			log.Info("otp resend within cooldown")
			return nil, err
		}
		log.Error("failed to store challenge", zap.Error(err))
		return nil, err
	}

	s.notifier.Dispatch(ctx, notify.Message{
		Template: notify.TemplateOTP,
		Phone:    phone,
		Vars: map[string]string{
			"code":    code,
			"minutes": strconv.Itoa(int(s.opts.TTL.Minutes())),
		},
	})

	log.Info("otp issued", zap.Time("expires_at", challenge.ExpiresAt))

	return &IssueResult{
		Phone:       phone,
		ExpiresAt:   challenge.ExpiresAt,
		ResendAfter: now.Add(s.opts.ResendCooldown),
	}, nil
}

func (s *service) Verify(ctx context.Context, phone, code string) error {
	phone = utils.NormalizePhoneBD(phone)

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "VerifyOTP"),
		zap.String("phone", phone),
	)

	c, err := s.store.Get(ctx, phone)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error("failed to load challenge", zap.Error(err))
		}
		return err
	}

	now := s.clock()

	if c.Consumed() {
		log.Warn("otp replay rejected")
		return ErrAlreadyConsumed
	}
	if c.Expired(now) {
		return ErrExpired
	}
	if !wellFormed(code) || !codeMatches(c.CodeHash, code) {
		log.Info("otp mismatch")
		return ErrMismatch
	}

	ok, err := s.store.Consume(ctx, phone, c.IssuedAt, now)
	if err != nil {
		log.Error("failed to consume challenge", zap.Error(err))
		return err
	}
	if !ok {
		// lost a race: either a concurrent verify consumed it or a new code replaced it
		latest, err := s.store.Get(ctx, phone)
		if err == nil && !latest.IssuedAt.Equal(c.IssuedAt) {
			return ErrMismatch
		}
		return ErrAlreadyConsumed
	}

	log.Info("otp verified")
	return nil
}

func (s *service) IsVerified(ctx context.Context, phone string) (bool, error) {
	c, err := s.store.Get(ctx, utils.NormalizePhoneBD(phone))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !c.Consumed() {
		return false, nil
	}
	return s.clock().Sub(*c.ConsumedAt) <= s.opts.VerifiedWindow, nil
}
