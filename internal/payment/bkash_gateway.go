package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"storefront-be/internal/config"
	"storefront-be/internal/logger"

	"go.uber.org/zap"
)

const (
	bkashStatusOK               = "0000"
	bkashStatusAlreadyCompleted = "2062"
	bkashTransactionCompleted   = "Completed"
)

type bkashGateway struct {
	cfg        config.BkashConfig
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewBkashGateway(cfg config.BkashConfig, timeout time.Duration) Gateway {
	if cfg.AppKey == "" {
		logger.L().Warn("bKash app key is empty")
	}
	return &bkashGateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (b *bkashGateway) Provider() MethodType { return MethodBkash }

type bkashStatus struct {
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
	ErrorCode     string `json:"errorCode"`
	ErrorMessage  string `json:"errorMessage"`
}

func (s bkashStatus) code() string {
	if s.StatusCode != "" {
		return s.StatusCode
	}
	return s.ErrorCode
}

func (s bkashStatus) message() string {
	if s.StatusMessage != "" {
		return s.StatusMessage
	}
	return s.ErrorMessage
}

type bkashPayment struct {
	bkashStatus
	PaymentID             string `json:"paymentID"`
	BkashURL              string `json:"bkashURL"`
	TrxID                 string `json:"trxID"`
	TransactionStatus     string `json:"transactionStatus"`
	Amount                string `json:"amount"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
}

// grantToken returns a cached id_token, requesting a new one shortly
// before the old one expires.
func (b *bkashGateway) grantToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.token != "" && b.now().Before(b.tokenExpiry) {
		return b.token, nil
	}

	body, _ := json.Marshal(map[string]string{
		"app_key":    b.cfg.AppKey,
		"app_secret": b.cfg.AppSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/tokenized/checkout/token/grant", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("username", b.cfg.Username)
	req.Header.Set("password", b.cfg.Password)

	raw, err := send(b.httpClient, req)
	if err != nil {
		return "", err
	}

	var res struct {
		bkashStatus
		IDToken   string `json:"id_token"`
		ExpiresIn int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", ErrGatewayUnreachable.Wrapf("decode token response: %v", err)
	}
	if res.IDToken == "" {
		return "", ErrGatewayRejected.Wrapf("token grant %s: %s", res.code(), res.message())
	}

	ttl := time.Duration(res.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	b.token = res.IDToken
	b.tokenExpiry = b.now().Add(ttl - time.Minute)
	return b.token, nil
}

func (b *bkashGateway) post(ctx context.Context, path string, payload any) (*bkashPayment, json.RawMessage, error) {
	token, err := b.grantToken(ctx)
	if err != nil {
		return nil, nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", token)
	req.Header.Set("X-APP-Key", b.cfg.AppKey)

	raw, err := send(b.httpClient, req)
	if err != nil {
		return nil, nil, err
	}

	var res bkashPayment
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, nil, ErrGatewayUnreachable.Wrapf("decode %s response: %v", path, err)
	}
	return &res, raw, nil
}

func (b *bkashGateway) CreateSession(ctx context.Context, in SessionRequest) (*SessionResponse, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", string(MethodBkash)),
		zap.String("order_number", in.OrderNumber),
		zap.Int64("amount", in.Amount),
	)

	res, raw, err := b.post(ctx, "/tokenized/checkout/create", map[string]string{
		"mode":                  "0011",
		"payerReference":        in.BuyerPhone,
		"callbackURL":           in.URLs.Root,
		"amount":                strconv.FormatInt(in.Amount, 10),
		"currency":              "BDT",
		"intent":                "sale",
		"merchantInvoiceNumber": in.IdempotencyKey,
	})
	if err != nil {
		log.Error("bKash create payment failed", zap.Error(err))
		return nil, err
	}
	if res.code() != bkashStatusOK || res.PaymentID == "" || res.BkashURL == "" {
		log.Warn("bKash rejected create payment",
			zap.String("status_code", res.code()),
			zap.String("status_message", res.message()),
		)
		return nil, ErrGatewayRejected.Wrapf("create payment %s: %s", res.code(), res.message())
	}

	log.Info("bKash payment created", zap.String("payment_id", res.PaymentID))

	return &SessionResponse{
		ProviderRef: res.PaymentID,
		RedirectURL: res.BkashURL,
		Raw:         raw,
	}, nil
}

// Validate executes the payment on a success callback. Any other outcome
// only queries status, since executing a cancelled payment is meaningless.
func (b *bkashGateway) Validate(ctx context.Context, s *Session, cb *Callback) (*Validation, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", string(MethodBkash)),
		zap.String("payment_id", s.ProviderRef),
	)

	var (
		res *bkashPayment
		err error
	)
	if cb.Outcome == OutcomeSuccess {
		res, _, err = b.post(ctx, "/tokenized/checkout/execute", map[string]string{"paymentID": s.ProviderRef})
		if err == nil && res.code() == bkashStatusAlreadyCompleted {
			log.Info("bKash payment already executed, querying status")
			res, _, err = b.queryStatus(ctx, s.ProviderRef)
		}
	} else {
		res, _, err = b.queryStatus(ctx, s.ProviderRef)
	}
	if err != nil {
		log.Error("bKash validation failed", zap.Error(err))
		return nil, err
	}

	if res.code() != bkashStatusOK || res.TransactionStatus != bkashTransactionCompleted {
		reason := res.message()
		if reason == "" {
			reason = res.TransactionStatus
		}
		log.Info("bKash payment not completed",
			zap.String("status_code", res.code()),
			zap.String("transaction_status", res.TransactionStatus),
		)
		return &Validation{Success: false, Reason: reason}, nil
	}

	amount, err := parseAmount(res.Amount)
	if err != nil {
		return nil, err
	}

	return &Validation{
		Success:       true,
		TransactionID: res.TrxID,
		Amount:        amount,
	}, nil
}

func (b *bkashGateway) queryStatus(ctx context.Context, paymentID string) (*bkashPayment, json.RawMessage, error) {
	return b.post(ctx, "/tokenized/checkout/payment/status", map[string]string{"paymentID": paymentID})
}

// ParseCallback reads the redirect bKash sends to callbackURL:
// ?paymentID=...&status=success|failure|cancel
func (b *bkashGateway) ParseCallback(r *http.Request) (*Callback, error) {
	q := r.URL.Query()

	paymentID := q.Get("paymentID")
	if paymentID == "" {
		return nil, ErrInvalidCallback.Wrapf("missing paymentID")
	}
	outcome, ok := parseOutcome(q.Get("status"))
	if !ok {
		return nil, ErrInvalidCallback.Wrapf("unknown status %q", q.Get("status"))
	}

	payload, _ := json.Marshal(q)

	return &Callback{
		Provider:   MethodBkash,
		SessionRef: paymentID,
		Outcome:    outcome,
		Payload:    payload,
	}, nil
}
