package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront-be/internal/logger"

	"go.uber.org/zap"
)

// Sender delivers a rendered SMS body.
type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

type httpSender struct {
	baseURL    string
	apiKey     string
	senderID   string
	httpClient *http.Client
}

// NewHTTPSender returns a Sender for a JSON SMS gateway (POST {base}/send).
func NewHTTPSender(baseURL, apiKey, senderID string) Sender {
	return &httpSender{
		baseURL:  baseURL,
		apiKey:   apiKey,
		senderID: senderID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *httpSender) Send(ctx context.Context, phone, text string) error {
	body, err := json.Marshal(map[string]string{
		"api_key":   s.apiKey,
		"sender_id": s.senderID,
		"number":    phone,
		"message":   text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sms gateway error: status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

type logSender struct{}

// NewLogSender returns a Sender that only logs, for environments without an SMS gateway.
func NewLogSender() Sender {
	return logSender{}
}

func (logSender) Send(ctx context.Context, phone, text string) error {
	logger.FromCtx(ctx).Info("sms (not delivered)",
		zap.String("phone", phone),
		zap.Int("length", len(text)),
	)
	return nil
}
