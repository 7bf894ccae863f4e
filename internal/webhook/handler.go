package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"loanflow/internal/platform/middleware"
	dErrors "loanflow/pkg/domain-errors"
	"loanflow/pkg/platform/httputil"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// Handler exposes the webhook ingestion endpoint.
type Handler struct {
	processor    *Processor
	maxBodyBytes int64
	logger       *slog.Logger
}

func NewHandler(processor *Processor, maxBodyBytes int64, logger *slog.Logger) *Handler {
	return &Handler{processor: processor, maxBodyBytes: maxBodyBytes, logger: logger}
}

// Register registers the webhook routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/banking", h.handleBankingWebhook)
}

func (h *Handler) handleBankingWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	// Bound the read before touching the body; the processor re-checks the
	// limit so non-HTTP callers get the same guarantee.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodePayloadTooLarge,
				"payload exceeds %d bytes", h.maxBodyBytes))
			return
		}
		h.logger.WarnContext(ctx, "failed to read webhook body",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable request body"))
		return
	}

	result, err := h.processor.Process(ctx, body, r.Header.Get(SignatureHeader))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "webhook processing failed",
				"request_id", requestID,
				"error", err.Error(),
			)
		} else {
			h.logger.WarnContext(ctx, "webhook rejected",
				"request_id", requestID,
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}
