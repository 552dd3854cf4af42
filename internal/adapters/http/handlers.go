package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/domain"
)

// maxWebhookBody bounds vendor webhook payloads well above anything
// Loyverse or Odoo actually sends.
const maxWebhookBody = 1 << 20

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	var order domain.CanonicalOrder
	if err := decodeBody(r, &order); err != nil {
		writeValidationError(r.Context(), w, "submit_order", err)
		return
	}

	status, err := h.service.Dispatch(r.Context(), order)
	if err != nil {
		writeMappedError(r.Context(), w, "submit_order", err)
		return
	}
	writeSuccess(w, http.StatusAccepted, status)
}

func (h *Handler) orderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	status, err := h.service.Status(r.Context(), orderID)
	if err != nil {
		writeMappedError(r.Context(), w, "order_status", err)
		return
	}
	writeSuccess(w, http.StatusOK, status)
}

func (h *Handler) ingestWebhook(w http.ResponseWriter, r *http.Request) {
	provider, ok := domain.ParseProviderKind(chi.URLParam(r, "provider"))
	if !ok {
		writeError(w, http.StatusNotFound, "UNKNOWN_PROVIDER", "unknown webhook provider")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeValidationError(r.Context(), w, "ingest_webhook", err)
		return
	}

	result, err := h.service.Ingest(r.Context(), provider, raw, r.Header)
	if err != nil {
		writeMappedError(r.Context(), w, "ingest_webhook", err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (h *Handler) syncMenu(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "location_id")
	provider, ok := domain.ParseProviderKind(chi.URLParam(r, "provider"))
	if !ok {
		writeError(w, http.StatusNotFound, "UNKNOWN_PROVIDER", "unknown provider")
		return
	}

	result, err := h.service.Reconcile(r.Context(), locationID, provider)
	if err != nil {
		writeMappedError(r.Context(), w, "sync_menu", err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ReloadConfig(r.Context()); err != nil {
		writeMappedError(r.Context(), w, "reload_config", err)
		return
	}
	writeMessage(w, http.StatusOK, "configuration reloaded")
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

func writeMappedError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	status, code, msg := mapDomainError(err)
	logHTTPOperationError(ctx, operation, status, code, msg, err)
	writeError(w, status, code, msg)
}

func writeValidationError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	code := "VALIDATION_ERROR"
	msg := err.Error()
	logHTTPOperationError(ctx, operation, http.StatusBadRequest, code, msg, err)
	writeError(w, http.StatusBadRequest, code, msg)
}

func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusUnauthorized, "INVALID_SIGNATURE", "webhook signature verification failed"
	case errors.Is(err, domain.ErrLocationNotFound):
		return http.StatusNotFound, "LOCATION_NOT_FOUND", "location not found"
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "ORDER_NOT_FOUND", "order not found"
	case errors.Is(err, domain.ErrOrderExists), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, domain.ErrReconcileBusy):
		return http.StatusConflict, "RECONCILE_IN_PROGRESS", "a reconciliation run is already in progress"
	case errors.Is(err, domain.ErrConfigInvalid):
		return http.StatusUnprocessableEntity, "CONFIG_INVALID", err.Error()
	case errors.Is(err, domain.ErrProviderRateLimited):
		return http.StatusTooManyRequests, "PROVIDER_RATE_LIMITED", "provider rate limit exceeded"
	case errors.Is(err, domain.ErrProviderUnauthorized),
		errors.Is(err, domain.ErrProviderRejected),
		errors.Is(err, domain.ErrProviderUnreachable):
		return http.StatusBadGateway, "PROVIDER_ERROR", err.Error()
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
