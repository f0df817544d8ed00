package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/custopay/transfer-relay/internal/ledger"
	"github.com/custopay/transfer-relay/internal/model"
	"github.com/custopay/transfer-relay/internal/transfer"
)

// RequesterHeader carries the authenticated caller's id. Session issuance
// lives upstream; this service only requires the identity to be present.
const RequesterHeader = "X-Requester-Id"

// TransferHandler exposes the transfer flow over HTTP.
type TransferHandler struct {
	builder    *transfer.Builder
	completion *transfer.Completion
	oracle     *transfer.BalanceOracle
	ledger     *ledger.Service
}

// NewTransferHandler creates the handler set.
func NewTransferHandler(builder *transfer.Builder, completion *transfer.Completion, oracle *transfer.BalanceOracle, ledgerSvc *ledger.Service) *TransferHandler {
	return &TransferHandler{
		builder:    builder,
		completion: completion,
		oracle:     oracle,
		ledger:     ledgerSvc,
	}
}

// Prepare handles POST /transfers/prepare
func (h *TransferHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	requester := r.Header.Get(RequesterHeader)
	if requester == "" {
		writeError(w, http.StatusUnauthorized, "missing requester identity", "unauthorized")
		return
	}

	var req model.PrepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", string(model.KindValidation))
		return
	}

	envelope, record, err := h.builder.Prepare(r.Context(), model.TransferIntent{
		SenderAddress:    req.Sender,
		RecipientAddress: req.Recipient,
		Amount:           req.Amount,
		AssetID:          req.AssetID,
		RequestedBy:      requester,
	})
	if err != nil {
		writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.PrepareResponse{
		Envelope:      envelope,
		TransactionID: record.ID.String(),
		ExpiresAt:     envelope.ExpiresAt,
	})
}

// Complete handles POST /transfers/complete
func (h *TransferHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req model.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", string(model.KindValidation))
		return
	}

	envelopeID, err := uuid.Parse(req.EnvelopeID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid envelope id", string(model.KindValidation))
		return
	}

	result, err := h.completion.Complete(r.Context(), envelopeID, req.SenderSignature)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Get handles GET /transfers/{id}
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	requester := r.Header.Get(RequesterHeader)
	if requester == "" {
		writeError(w, http.StatusUnauthorized, "missing requester identity", "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id", string(model.KindValidation))
		return
	}

	tx, err := h.ledger.Get(r.Context(), id, requester)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// List handles GET /transfers
func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	requester := r.Header.Get(RequesterHeader)
	if requester == "" {
		writeError(w, http.StatusUnauthorized, "missing requester identity", "unauthorized")
		return
	}

	var req model.ListRequest
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status := model.Status(statusStr)
		switch status {
		case model.StatusPending, model.StatusProcessing, model.StatusCompleted, model.StatusFailed, model.StatusCancelled:
			req.Status = &status
		default:
			writeError(w, http.StatusBadRequest, "invalid status filter", string(model.KindValidation))
			return
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit", string(model.KindValidation))
			return
		}
		req.Limit = limit
	}

	txs, err := h.ledger.List(r.Context(), requester, req)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if txs == nil {
		txs = []model.LedgerTransaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// FeePayer handles GET /feepayer
func (h *TransferHandler) FeePayer(w http.ResponseWriter, r *http.Request) {
	status, err := h.oracle.FeePayerBalance(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// statusCodes maps the error taxonomy to HTTP status codes.
var statusCodes = map[model.Kind]int{
	model.KindValidation:           http.StatusBadRequest,
	model.KindInsufficientBalance:  http.StatusUnprocessableEntity,
	model.KindNetworkUnavailable:   http.StatusServiceUnavailable,
	model.KindEnvelopeExpired:      http.StatusGone,
	model.KindIncompleteSignatures: http.StatusBadRequest,
	model.KindBroadcastRejected:    http.StatusUnprocessableEntity,
	model.KindAlreadyInState:       http.StatusConflict,
	model.KindOwnership:            http.StatusForbidden,
	model.KindNotFound:             http.StatusNotFound,
	model.KindInternal:             http.StatusInternalServerError,
}

func writeFlowError(w http.ResponseWriter, err error) {
	kind := model.KindOf(err)
	code, ok := statusCodes[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	reason := model.ReasonOf(err)
	if kind == model.KindInternal {
		// Never leak storage or RPC internals to the caller.
		reason = "internal error"
	}
	writeError(w, code, reason, string(kind))
}

func writeError(w http.ResponseWriter, code int, message, errCode string) {
	writeJSON(w, code, model.ErrorResponse{Error: message, Code: errCode})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
