package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront-be/internal/config"
	"storefront-be/internal/logger"

	"go.uber.org/zap"
)

type sslCommerzGateway struct {
	cfg        config.SSLCommerzConfig
	httpClient *http.Client
}

func NewSSLCommerzGateway(cfg config.SSLCommerzConfig, timeout time.Duration) Gateway {
	if cfg.StoreID == "" {
		logger.L().Warn("SSLCommerz store id is empty")
	}
	return &sslCommerzGateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *sslCommerzGateway) Provider() MethodType { return MethodSSLCommerz }

// CreateSession opens a hosted checkout. The session is keyed on our
// idempotency key, which SSLCommerz echoes back as tran_id.
func (g *sslCommerzGateway) CreateSession(ctx context.Context, in SessionRequest) (*SessionResponse, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", string(MethodSSLCommerz)),
		zap.String("order_number", in.OrderNumber),
		zap.Int64("amount", in.Amount),
	)

	form := url.Values{}
	form.Set("store_id", g.cfg.StoreID)
	form.Set("store_passwd", g.cfg.StorePassword)
	form.Set("total_amount", formatAmount(in.Amount))
	form.Set("currency", "BDT")
	form.Set("tran_id", in.IdempotencyKey)
	form.Set("success_url", in.URLs.Success)
	form.Set("fail_url", in.URLs.Failure)
	form.Set("cancel_url", in.URLs.Cancel)
	form.Set("cus_name", in.BuyerName)
	form.Set("cus_phone", in.BuyerPhone)
	form.Set("cus_email", "noreply@storefront.local")
	form.Set("cus_add1", "N/A")
	form.Set("cus_city", "N/A")
	form.Set("cus_country", "Bangladesh")
	form.Set("shipping_method", "NO")
	form.Set("product_name", "Order "+in.OrderNumber)
	form.Set("product_category", "general")
	form.Set("product_profile", "general")
	form.Set("value_a", in.OrderNumber)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/gwprocess/v4/api.php", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	raw, err := send(g.httpClient, req)
	if err != nil {
		log.Error("SSLCommerz session request failed", zap.Error(err))
		return nil, err
	}

	var res struct {
		Status         string `json:"status"`
		FailedReason   string `json:"failedreason"`
		SessionKey     string `json:"sessionkey"`
		GatewayPageURL string `json:"GatewayPageURL"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Error("failed decoding SSLCommerz response", zap.Error(err))
		return nil, ErrGatewayUnreachable.Wrapf("decode session response: %v", err)
	}
	if !strings.EqualFold(res.Status, "SUCCESS") || res.GatewayPageURL == "" {
		log.Warn("SSLCommerz rejected session", zap.String("reason", res.FailedReason))
		return nil, ErrGatewayRejected.Wrapf("session %s: %s", res.Status, res.FailedReason)
	}

	log.Info("SSLCommerz session created", zap.String("session_key", res.SessionKey))

	return &SessionResponse{
		ProviderRef: in.IdempotencyKey,
		RedirectURL: res.GatewayPageURL,
		Raw:         raw,
	}, nil
}

// Validate checks val_id against the validation API. A callback without a
// valid val_id settles nothing on its own: the outcome comes from the
// transaction query for our tran_id, since fail and cancel posts are
// unsigned.
func (g *sslCommerzGateway) Validate(ctx context.Context, s *Session, cb *Callback) (*Validation, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", string(MethodSSLCommerz)),
		zap.String("tran_id", s.ProviderRef),
	)

	if cb.ValidationToken != "" {
		v, err := g.validateValID(ctx, s, cb.ValidationToken)
		if err != nil || v != nil {
			return v, err
		}
		log.Warn("SSLCommerz val_id not valid, querying transaction")
	}

	return g.queryTransaction(ctx, s)
}

// validateValID returns nil without error when the validation API does
// not vouch for the val_id.
func (g *sslCommerzGateway) validateValID(ctx context.Context, s *Session, valID string) (*Validation, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", string(MethodSSLCommerz)),
		zap.String("tran_id", s.ProviderRef),
	)

	q := url.Values{}
	q.Set("val_id", valID)
	q.Set("store_id", g.cfg.StoreID)
	q.Set("store_passwd", g.cfg.StorePassword)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/validator/api/validationserverAPI.php?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	raw, err := send(g.httpClient, req)
	if err != nil {
		log.Error("SSLCommerz validation request failed", zap.Error(err))
		return nil, err
	}

	var res struct {
		Status      string `json:"status"`
		TranID      string `json:"tran_id"`
		BankTranID  string `json:"bank_tran_id"`
		Amount      string `json:"amount"`
		Currency    string `json:"currency"`
		ErrorReason string `json:"error"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, ErrGatewayUnreachable.Wrapf("decode validation response: %v", err)
	}

	if res.Status != "VALID" && res.Status != "VALIDATED" {
		log.Info("SSLCommerz val_id rejected", zap.String("status", res.Status), zap.String("reason", res.ErrorReason))
		return nil, nil
	}
	return g.settled(log, s, res.TranID, res.BankTranID, res.Amount)
}

// queryTransaction asks SSLCommerz for every attempt made under the
// session's tran_id. Only a confirmed terminal status settles the session;
// anything else leaves it pending.
func (g *sslCommerzGateway) queryTransaction(ctx context.Context, s *Session) (*Validation, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("gateway", string(MethodSSLCommerz)),
		zap.String("tran_id", s.ProviderRef),
	)

	q := url.Values{}
	q.Set("tran_id", s.ProviderRef)
	q.Set("store_id", g.cfg.StoreID)
	q.Set("store_passwd", g.cfg.StorePassword)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/validator/api/merchantTransIDvalidationAPI.php?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	raw, err := send(g.httpClient, req)
	if err != nil {
		log.Error("SSLCommerz transaction query failed", zap.Error(err))
		// A rejected query is still not a verdict on the payment.
		if errors.Is(err, ErrGatewayRejected) {
			return nil, ErrGatewayUnreachable.Wrap(err)
		}
		return nil, err
	}

	var res struct {
		APIConnect string `json:"APIConnect"`
		Element    []struct {
			Status      string `json:"status"`
			TranID      string `json:"tran_id"`
			BankTranID  string `json:"bank_tran_id"`
			Amount      string `json:"amount"`
			ErrorReason string `json:"error"`
		} `json:"element"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, ErrGatewayUnreachable.Wrapf("decode transaction query: %v", err)
	}
	if res.APIConnect != "DONE" {
		log.Warn("SSLCommerz transaction query not served", zap.String("api_connect", res.APIConnect))
		return nil, ErrGatewayUnreachable.Wrapf("transaction query: %s", res.APIConnect)
	}

	// One tran_id can carry several attempts; a validated one wins.
	failure := ""
	for _, el := range res.Element {
		switch strings.ToUpper(el.Status) {
		case "VALID", "VALIDATED":
			return g.settled(log, s, el.TranID, el.BankTranID, el.Amount)
		case "FAILED", "CANCELLED", "EXPIRED":
			if failure == "" {
				failure = el.ErrorReason
				if failure == "" {
					failure = strings.ToUpper(el.Status)
				}
			}
		}
	}
	if failure != "" {
		log.Info("SSLCommerz confirmed failed transaction", zap.String("reason", failure))
		return &Validation{Success: false, Reason: failure}, nil
	}

	log.Info("SSLCommerz has no final status", zap.Int("attempts", len(res.Element)))
	return nil, ErrPaymentUnconfirmed.Wrapf("tran_id %s has no final status", s.ProviderRef)
}

func (g *sslCommerzGateway) settled(log *zap.Logger, s *Session, tranID, bankTranID, rawAmount string) (*Validation, error) {
	if tranID != s.ProviderRef {
		log.Error("SSLCommerz validation for another transaction", zap.String("got_tran_id", tranID))
		return nil, ErrAmountMismatch.Wrapf("validation tran_id %q does not match session", tranID)
	}

	amount, err := parseAmount(rawAmount)
	if err != nil {
		return nil, err
	}

	return &Validation{
		Success:       true,
		TransactionID: bankTranID,
		Amount:        amount,
	}, nil
}

// ParseCallback reads the form SSLCommerz posts to the success, fail and
// cancel urls. The outcome query parameter we attached picks the branch
// when the form status is missing.
func (g *sslCommerzGateway) ParseCallback(r *http.Request) (*Callback, error) {
	if err := r.ParseForm(); err != nil {
		return nil, ErrInvalidCallback.Wrap(err)
	}

	tranID := r.Form.Get("tran_id")
	if tranID == "" {
		return nil, ErrInvalidCallback.Wrapf("missing tran_id")
	}

	var outcome CallbackOutcome
	switch strings.ToUpper(r.Form.Get("status")) {
	case "VALID", "VALIDATED":
		outcome = OutcomeSuccess
	case "FAILED", "EXPIRED", "UNATTEMPTED":
		outcome = OutcomeFailure
	case "CANCELLED":
		outcome = OutcomeCancel
	default:
		o, ok := parseOutcome(r.URL.Query().Get("outcome"))
		if !ok {
			return nil, ErrInvalidCallback.Wrapf("unknown status %q", r.Form.Get("status"))
		}
		outcome = o
	}

	payload, _ := json.Marshal(r.PostForm)

	return &Callback{
		Provider:        MethodSSLCommerz,
		SessionRef:      tranID,
		ValidationToken: r.Form.Get("val_id"),
		Outcome:         outcome,
		Payload:         payload,
	}, nil
}
