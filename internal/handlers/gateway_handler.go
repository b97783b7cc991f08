package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Gamenter95/wewa/internal/domain"
)

// Query parameters of the gateway endpoint.
const (
	paramToken          = "TOKEN"
	paramNumber         = "NUMBER"
	paramAmount         = "AMOUNT"
	paramComment        = "COMMENT"
	paramIdempotencyKey = "IDEMPOTENCY_KEY"
)

const (
	codeMissingParams = "missing_required_params"
	codeInternalError = "internal_error"
	messageSuccess    = "payment_successful"
)

// TransferExecutor runs a single gateway transfer.
type TransferExecutor interface {
	ExecuteTransfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error)
}

// GatewayHandler serves the token-gated transfer endpoint.
type GatewayHandler struct {
	engine TransferExecutor
	logger logrus.FieldLogger
}

// NewGatewayHandler creates a new GatewayHandler.
func NewGatewayHandler(engine TransferExecutor, logger logrus.FieldLogger) *GatewayHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GatewayHandler{
		engine: engine,
		logger: logger,
	}
}

// TransactionResponse describes a committed transfer.
type TransactionResponse struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Amount     string `json:"amount"`
	Comment    string `json:"comment"`
	NewBalance string `json:"new_balance"`
}

// SuccessResponse is the body of a 200 response.
type SuccessResponse struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message"`
	Transaction TransactionResponse `json:"transaction"`
}

// ErrorResponse is the body of every non-200 response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Transfer handles GET /gateway?TOKEN=&NUMBER=&AMOUNT=&COMMENT=
func (h *GatewayHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := domain.TransferRequest{
		Token:          strings.TrimSpace(q.Get(paramToken)),
		ToPhoneNumber:  strings.TrimSpace(q.Get(paramNumber)),
		Amount:         strings.TrimSpace(q.Get(paramAmount)),
		Comment:        q.Get(paramComment),
		IdempotencyKey: strings.TrimSpace(q.Get(paramIdempotencyKey)),
	}

	if req.Token == "" || req.ToPhoneNumber == "" || req.Amount == "" {
		sendErrorResponse(w, http.StatusBadRequest, codeMissingParams)
		return
	}

	result, err := h.engine.ExecuteTransfer(r.Context(), req)
	if err != nil {
		h.handleTransferError(w, req, err)
		return
	}

	resp := SuccessResponse{
		Success: true,
		Message: messageSuccess,
		Transaction: TransactionResponse{
			ID:         result.TransactionID.String(),
			From:       result.FromPhone,
			To:         result.ToPhone,
			Amount:     domain.FormatAmount(result.Amount),
			Comment:    result.Comment,
			NewBalance: domain.FormatAmount(result.NewBalance),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// Preflight answers OPTIONS requests with no body.
func (h *GatewayHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleTransferError converts engine errors to HTTP responses.
func (h *GatewayHandler) handleTransferError(w http.ResponseWriter, req domain.TransferRequest, err error) {
	log := h.logger.WithFields(logrus.Fields{
		"to_phone": req.ToPhoneNumber,
		"amount":   req.Amount,
	})

	kind, ok := domain.KindOf(err)
	if !ok {
		if errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("transfer request cancelled by client")
		} else {
			log.WithError(err).Error("transfer failed with infrastructure error")
		}
		sendErrorResponse(w, http.StatusInternalServerError, codeInternalError)
		return
	}

	statusCode := statusForKind(kind)
	if statusCode >= http.StatusInternalServerError {
		log.WithError(err).WithField("error_code", kind).Error("transfer failed")
	} else {
		log.WithField("error_code", kind).Warn("transfer rejected")
	}
	sendErrorResponse(w, statusCode, string(kind))
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrorKindInvalidAmount, domain.ErrorKindSameAccount:
		return http.StatusBadRequest
	case domain.ErrorKindInvalidToken:
		return http.StatusUnauthorized
	case domain.ErrorKindInsufficientFunds:
		return http.StatusPaymentRequired
	case domain.ErrorKindGatewayDisabled:
		return http.StatusForbidden
	case domain.ErrorKindSenderNotFound, domain.ErrorKindReceiverNotFound:
		return http.StatusNotFound
	case domain.ErrorKindIdempotencyConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// sendErrorResponse sends an error response in the expected format
func sendErrorResponse(w http.ResponseWriter, statusCode int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Success: false, Error: code})
}
