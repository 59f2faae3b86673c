package payment

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"storefront-be/internal/events"
	"storefront-be/internal/logger"
	"storefront-be/internal/notify"
	"storefront-be/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service interface {
	// ListMethods returns the enabled methods in display order.
	ListMethods(ctx context.Context) ([]Method, error)
	GetMethod(ctx context.Context, id uint) (*Method, error)

	Initiate(ctx context.Context, orderID uuid.UUID) (*InitiateResult, error)
	ParseCallback(provider MethodType, r *http.Request) (*Callback, error)
	// ResolveCallback validates a provider callback and settles the order.
	// Repeating a callback returns the first result.
	ResolveCallback(ctx context.Context, cb *Callback) (*Resolution, error)
	ResolveManual(ctx context.Context, orderID uuid.UUID, paid bool, reference string) (*Resolution, error)
}

type service struct {
	repo            Repository
	gateways        map[MethodType]Gateway
	publisher       events.Publisher
	notifier        notify.Dispatcher
	callbackBaseURL string
	newKey          func(orderID uuid.UUID, attempt int) string
}

func NewService(
	repo Repository,
	gateways []Gateway,
	publisher events.Publisher,
	notifier notify.Dispatcher,
	callbackBaseURL string,
) Service {
	byProvider := make(map[MethodType]Gateway, len(gateways))
	for _, g := range gateways {
		byProvider[g.Provider()] = g
	}
	return &service{
		repo:            repo,
		gateways:        byProvider,
		publisher:       publisher,
		notifier:        notifier,
		callbackBaseURL: callbackBaseURL,
		newKey:          sessionKey,
	}
}

func (s *service) ListMethods(ctx context.Context) ([]Method, error) {
	return s.repo.ListMethods(ctx, true)
}

func (s *service) GetMethod(ctx context.Context, id uint) (*Method, error) {
	return s.repo.GetMethod(ctx, id)
}

func (s *service) Initiate(ctx context.Context, orderID uuid.UUID) (*InitiateResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "InitiatePayment"),
		zap.String("order_id", orderID.String()),
	)

	charge, err := s.repo.GetCharge(ctx, orderID)
	if err != nil {
		log.Warn("failed to load order for payment", zap.Error(err))
		return nil, err
	}
	if !canPay(ctx, charge) {
		log.Warn("payment initiation by non-owner")
		return nil, ErrOrderNotFound
	}
	if charge.PaymentStatus.Final() {
		return nil, ErrAlreadyResolved
	}

	result := &InitiateResult{OrderID: orderID, Method: charge.Method.Type}

	if !charge.Method.Type.Hosted() {
		result.Manual = true
		result.Instructions = InjectVariables(GetInstructions(charge.Method), InstructionVars{
			"amount":         utils.FormatTaka(charge.Amount),
			"account_number": utils.PtrString(charge.Method.AccountNumber),
			"order_number":   charge.OrderNumber,
		})
		log.Info("manual payment instructions issued", zap.String("payment_method", string(charge.Method.Type)))
		return result, nil
	}

	gw, ok := s.gateways[charge.Method.Type]
	if !ok {
		log.Error("no gateway configured", zap.String("provider", string(charge.Method.Type)))
		return nil, ErrUnsupportedProvider
	}

	session, err := s.openSession(ctx, charge)
	if err != nil {
		return nil, err
	}
	if session.RedirectURL != "" {
		log.Info("reusing open payment session", zap.Int64("session_id", session.ID))
		result.RedirectURL = session.RedirectURL
		return result, nil
	}

	resp, err := gw.CreateSession(ctx, SessionRequest{
		IdempotencyKey: session.IdempotencyKey,
		OrderNumber:    charge.OrderNumber,
		Amount:         charge.Amount,
		BuyerName:      charge.BuyerName,
		BuyerPhone:     charge.BuyerPhone,
		URLs:           callbackURLs(s.callbackBaseURL, gw.Provider()),
	})
	if err != nil {
		// A rejection is final for this session. When the gateway was
		// unreachable the session stays open so a retry reuses its key.
		if errors.Is(err, ErrGatewayRejected) {
			if aerr := s.repo.AbandonSession(ctx, session.ID, err.Error()); aerr != nil {
				log.Error("failed to abandon session", zap.Error(aerr))
			}
		}
		log.Warn("gateway session failed", zap.Error(err))
		return nil, err
	}

	if err := s.repo.AttachProviderSession(ctx, session.ID, resp.ProviderRef, resp.RedirectURL); err != nil {
		log.Error("failed to store provider session", zap.Error(err))
		return nil, err
	}

	log.Info("payment session created",
		zap.Int64("session_id", session.ID),
		zap.String("provider_ref", resp.ProviderRef),
	)

	result.RedirectURL = resp.RedirectURL
	return result, nil
}

// sessionKey derives the idempotency key of the order's nth session, so a
// retried initiation of the same attempt always presents the same key.
func sessionKey(orderID uuid.UUID, attempt int) string {
	return uuid.NewSHA1(orderID, []byte("payment-session-"+strconv.Itoa(attempt))).String()
}

// canPay applies the order read rule: guest orders are open to anyone
// holding the id, account orders only to the owner or an admin.
func canPay(ctx context.Context, c *Charge) bool {
	if c.UserID == nil || utils.IsAdmin(ctx) {
		return true
	}
	uid, ok := utils.GetUserIDFromContext(ctx)
	return ok && uid == *c.UserID
}

// openSession returns the order's pending session, creating one if none
// exists.
func (s *service) openSession(ctx context.Context, charge *Charge) (*Session, error) {
	existing, err := s.repo.GetOpenSession(ctx, charge.OrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	attempts, err := s.repo.CountSessions(ctx, charge.OrderID)
	if err != nil {
		return nil, err
	}

	session := &Session{
		OrderID:        charge.OrderID,
		Provider:       charge.Method.Type,
		IdempotencyKey: s.newKey(charge.OrderID, attempts+1),
		Amount:         charge.Amount,
	}
	err = s.repo.CreateSession(ctx, session)
	if errors.Is(err, errSessionOpen) {
		// Lost a race with a concurrent initiation.
		existing, err = s.repo.GetOpenSession(ctx, charge.OrderID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrAlreadyResolved
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *service) ParseCallback(provider MethodType, r *http.Request) (*Callback, error) {
	gw, ok := s.gateways[provider]
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	return gw.ParseCallback(r)
}

func (s *service) ResolveCallback(ctx context.Context, cb *Callback) (*Resolution, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ResolvePaymentCallback"),
		zap.String("provider", string(cb.Provider)),
		zap.String("session_ref", cb.SessionRef),
		zap.String("outcome", string(cb.Outcome)),
	)

	gw, ok := s.gateways[cb.Provider]
	if !ok {
		return nil, ErrUnsupportedProvider
	}

	callbackID, err := s.repo.SaveCallback(ctx, cb)
	if err != nil {
		log.Error("failed to journal callback", zap.Error(err))
		return nil, err
	}

	res, err := s.resolveCallback(ctx, gw, cb, log)
	if err != nil {
		if merr := s.repo.MarkCallbackFailed(ctx, callbackID, err.Error()); merr != nil {
			log.Error("failed to mark callback failed", zap.Error(merr))
		}
		return nil, err
	}

	if err := s.repo.MarkCallbackProcessed(ctx, callbackID); err != nil {
		log.Error("failed to mark callback processed", zap.Error(err))
	}
	return res, nil
}

func (s *service) resolveCallback(ctx context.Context, gw Gateway, cb *Callback, log *zap.Logger) (*Resolution, error) {
	session, err := s.repo.GetSessionByRef(ctx, cb.Provider, cb.SessionRef)
	if err != nil {
		log.Warn("callback for unknown session", zap.Error(err))
		return nil, err
	}
	log = log.With(zap.Int64("session_id", session.ID), zap.String("order_id", session.OrderID.String()))

	charge, err := s.repo.GetCharge(ctx, session.OrderID)
	if err != nil {
		return nil, err
	}

	if session.Status.Final() {
		log.Info("callback for resolved session, returning prior result")
		return priorResolution(session, charge), nil
	}

	v, err := gw.Validate(ctx, session, cb)
	if errors.Is(err, ErrPaymentUnconfirmed) {
		log.Warn("gateway has no final verdict yet, session left pending", zap.Error(err))
		return nil, err
	}
	if err != nil {
		log.Error("gateway validation failed", zap.Error(err))
		return nil, err
	}

	if v.Success && v.Amount != session.Amount {
		log.Error("gateway amount differs from order total",
			zap.Int64("expected", session.Amount),
			zap.Int64("received", v.Amount),
		)
		return nil, ErrAmountMismatch.Wrapf("expected %d, gateway reported %d", session.Amount, v.Amount)
	}

	status := StatusFailed
	if v.Success {
		status = StatusPaid
	}

	rr, err := s.repo.ResolveSession(ctx, session, status, v.TransactionID, v.Reason)
	if err != nil {
		log.Error("failed to resolve session", zap.Error(err))
		return nil, err
	}
	if !rr.SessionResolved {
		// A concurrent callback settled it first.
		current, err := s.repo.GetSessionByRef(ctx, cb.Provider, cb.SessionRef)
		if err != nil {
			return nil, err
		}
		return priorResolution(current, charge), nil
	}
	if !rr.OrderSettled && status == StatusPaid {
		log.Error("payment captured for an order that was already settled",
			zap.String("transaction_id", v.TransactionID),
		)
	}

	log.Info("payment resolved",
		zap.String("payment_status", string(status)),
		zap.String("transaction_id", v.TransactionID),
	)

	res := &Resolution{
		OrderID:       session.OrderID,
		OrderNumber:   charge.OrderNumber,
		Success:       v.Success,
		PaymentStatus: status,
		TransactionID: v.TransactionID,
	}
	if rr.OrderSettled {
		s.announce(ctx, charge, cb.Provider, res)
	}
	return res, nil
}

func priorResolution(session *Session, charge *Charge) *Resolution {
	return &Resolution{
		OrderID:         session.OrderID,
		OrderNumber:     charge.OrderNumber,
		Success:         session.Status == StatusPaid,
		PaymentStatus:   session.Status,
		TransactionID:   utils.PtrString(session.TransactionID),
		AlreadyResolved: true,
	}
}

func (s *service) ResolveManual(ctx context.Context, orderID uuid.UUID, paid bool, reference string) (*Resolution, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ResolveManualPayment"),
		zap.String("order_id", orderID.String()),
		zap.Bool("paid", paid),
	)

	charge, err := s.repo.GetCharge(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if charge.Method.Type.Hosted() {
		log.Warn("manual resolution attempted on hosted payment")
		return nil, ErrNotManualMethod
	}

	status := StatusFailed
	if paid {
		status = StatusPaid
	}

	ok, err := s.repo.ResolveManual(ctx, orderID, status, reference, utils.ActorFromContext(ctx))
	if err != nil {
		log.Error("failed to resolve manual payment", zap.Error(err))
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyResolved
	}

	log.Info("manual payment resolved")

	res := &Resolution{
		OrderID:       orderID,
		OrderNumber:   charge.OrderNumber,
		Success:       paid,
		PaymentStatus: status,
		TransactionID: reference,
	}
	s.announce(ctx, charge, charge.Method.Type, res)
	return res, nil
}

func (s *service) announce(ctx context.Context, charge *Charge, provider MethodType, res *Resolution) {
	ev, err := events.New(ctx, events.PaymentResolved, res.OrderID.String(), events.PaymentResolvedPayload{
		OrderID:       res.OrderID.String(),
		OrderNumber:   res.OrderNumber,
		Provider:      string(provider),
		PaymentStatus: string(res.PaymentStatus),
		TransactionID: res.TransactionID,
		Amount:        charge.Amount,
	})
	if err == nil {
		s.publisher.Publish(ctx, ev)
	}

	tmpl := notify.TemplatePaymentFailed
	if res.Success {
		tmpl = notify.TemplatePaymentReceived
	}
	s.notifier.Dispatch(ctx, notify.Message{
		Template: tmpl,
		Phone:    charge.BuyerPhone,
		Vars: map[string]string{
			"order_number":   charge.OrderNumber,
			"total":          utils.FormatTaka(charge.Amount),
			"transaction_id": res.TransactionID,
		},
	})
}
