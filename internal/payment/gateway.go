package payment

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"

	"go.uber.org/zap"
)

// Gateway is a hosted payment provider.
type Gateway interface {
	Provider() MethodType
	CreateSession(ctx context.Context, req SessionRequest) (*SessionResponse, error)
	// Validate asks the provider for the final verdict on a session the
	// callback refers to. Callback fields are never trusted on their own.
	Validate(ctx context.Context, s *Session, cb *Callback) (*Validation, error)
	ParseCallback(r *http.Request) (*Callback, error)
}

const maxGatewayResponse = 1 << 20

// send performs req and sorts failures into unreachable (transport, 5xx)
// and rejected (4xx) so callers can tell retryable outages apart.
func send(client *http.Client, req *http.Request) ([]byte, error) {
	timer := metrics.StartTimer()
	resp, err := client.Do(req)
	if err != nil {
		return nil, ErrGatewayUnreachable.Wrap(err)
	}
	defer resp.Body.Close()

	logger.FromCtx(req.Context()).Debug("gateway call",
		zap.String("host", req.URL.Host),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", timer.Duration()),
	)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponse))
	if err != nil {
		return nil, ErrGatewayUnreachable.Wrapf("read response: %v", err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, ErrGatewayUnreachable.Wrapf("http %d: %s", resp.StatusCode, truncate(body))
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, ErrGatewayRejected.Wrapf("http %d: %s", resp.StatusCode, truncate(body))
	}
	return body, nil
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

func formatAmount(amount int64) string {
	return strconv.FormatInt(amount, 10) + ".00"
}

// parseAmount reads a provider decimal string as whole taka.
func parseAmount(s string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, ErrAmountMismatch.Wrapf("unparseable amount %q", s)
	}
	paisa := math.Round(f * 100)
	if math.Mod(paisa, 100) != 0 {
		return 0, ErrAmountMismatch.Wrapf("fractional amount %q", s)
	}
	return int64(paisa / 100), nil
}

func callbackURLs(base string, provider MethodType) CallbackURLs {
	root := fmt.Sprintf("%s/api/payments/callback/%s", strings.TrimRight(base, "/"), provider)
	return CallbackURLs{
		Root:    root,
		Success: root + "?outcome=" + string(OutcomeSuccess),
		Failure: root + "?outcome=" + string(OutcomeFailure),
		Cancel:  root + "?outcome=" + string(OutcomeCancel),
	}
}

func parseOutcome(s string) (CallbackOutcome, bool) {
	switch CallbackOutcome(strings.ToLower(s)) {
	case OutcomeSuccess:
		return OutcomeSuccess, true
	case OutcomeFailure, "fail", "failed":
		return OutcomeFailure, true
	case OutcomeCancel, "cancelled", "canceled":
		return OutcomeCancel, true
	}
	return "", false
}
