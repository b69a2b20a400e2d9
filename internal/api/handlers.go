package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Naiemjoy1/mfs-server/internal/auth"
	"github.com/Naiemjoy1/mfs-server/internal/domain"
	"github.com/Naiemjoy1/mfs-server/internal/models"
	"github.com/Naiemjoy1/mfs-server/internal/service"
)

var transferRoutes = map[string]domain.Operation{
	"/send-money":       domain.OpSendMoney,
	"/cash-out":         domain.OpCashOut,
	"/cash-in":          domain.OpCashIn,
	"/cash-in-request":  domain.OpCashInRequest,
	"/cash-out-request": domain.OpCashOutRequest,
}

func successMessage(res *service.Result) string {
	switch res.Transaction.Type {
	case domain.OpSendMoney:
		return fmt.Sprintf("Money sent successfully. Transaction fee: %s", res.Fee.String())
	case domain.OpCashOut:
		return "Cash Out successfully done"
	case domain.OpCashInRequest, domain.OpCashOutRequest:
		return "Request submitted successfully"
	}
	return "Money sent successfully"
}

// transferHandler serves one money-movement endpoint. An optional
// Idempotency-Key header makes retries safe: the body hash is stored with
// the record and a repeat returns the stored outcome with 200.
func (h *Handler) transferHandler(op domain.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFrom(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Unauthorized access")
			return
		}

		// 1. Read and hash body
		bodyBytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Unable to read request body")
			return
		}
		hash := sha256.Sum256(bodyBytes)
		reqHash := hex.EncodeToString(hash[:])

		var req models.TransferRequest
		if err := json.Unmarshal(bodyBytes, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
			return
		}

		// 2. Execute
		res, err := h.engine.Execute(r.Context(), op, identity, service.TransferRequest{
			ReceiverIdentifier: req.ReceiverIdentifier,
			Amount:             string(req.Amount),
			PIN:                string(req.PIN),
			IdempotencyKey:     r.Header.Get("Idempotency-Key"),
			RequestHash:        reqHash,
		})
		if err != nil {
			h.respondWithServiceError(w, r, err)
			return
		}

		resp := models.TransferResponse{
			Message:     successMessage(res),
			Sender:      models.FromAccount(res.Sender),
			Receiver:    models.FromAccount(res.Receiver),
			Transaction: models.FromTransaction(res.Transaction),
		}
		if op == domain.OpCashOut {
			fee := json.Number(res.Fee.String())
			resp.Fee = &fee
		}

		// 3. Replay or new record
		if res.Replayed {
			respondWithJSON(w, http.StatusOK, resp)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/history/%s", res.Transaction.ID))
		respondWithJSON(w, http.StatusCreated, resp)
	}
}

func (h *Handler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	status := domain.TxStatus(r.URL.Query().Get("status"))
	txs, err := h.engine.History(r.Context(), status)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.FromTransactions(txs))
}

func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.Transaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.FromTransaction(*t))
}

func (h *Handler) SettleHandler(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.SettlePending(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.SettleResponse{
		Message:     "Transaction status and balances updated successfully",
		Transaction: models.FromTransaction(*t),
	})
}
