package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"storefront-be/internal/apperror"
	"storefront-be/internal/logger"
	"storefront-be/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var (
	errInvalidBody = apperror.New(apperror.KindValidation, "INVALID_BODY", "request body is not valid JSON")
	errInvalidID   = apperror.New(apperror.KindValidation, "INVALID_ID", "invalid order id")
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindRateLimited:
		return http.StatusTooManyRequests
	case apperror.KindRejected:
		return http.StatusPaymentRequired
	case apperror.KindIntegrity:
		return http.StatusInternalServerError
	default:
		return http.StatusServiceUnavailable
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperror.KindOf(err)
	code := statusFor(kind)

	log := logger.FromCtx(r.Context()).With(
		zap.String("path", r.URL.Path),
		zap.String("code", apperror.CodeOf(err)),
		zap.Error(err),
	)
	if code >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Info("request rejected")
	}

	utils.WriteJSON(w, code, errorResponse{
		Error:     apperror.PublicMessage(err),
		Code:      apperror.CodeOf(err),
		Retryable: apperror.Retryable(err),
	})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errInvalidBody.Wrapf("empty body")
		}
		return errInvalidBody.Wrap(err)
	}
	return nil
}

func parseOrderID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errInvalidID.Wrap(err)
	}
	return id, nil
}
