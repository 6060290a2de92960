package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/systembank/internal/customers"
	"github.com/example/systembank/internal/ledger"
	"github.com/example/systembank/internal/security"
)

type movementRequest struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type openAccountRequest struct {
	Number         string `json:"number"`
	OwnerID        string `json:"owner_id"`
	InitialBalance int64  `json:"initial_balance"`
}

type customerRequest struct {
	Document  string `json:"document"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Address   string `json:"address"`
}

type movementResponse struct {
	CorrelationID string           `json:"correlation_id"`
	Movement      *ledger.Movement `json:"movement"`
}

type listMovementsResponse struct {
	CorrelationID string            `json:"correlation_id"`
	Movements     []ledger.Movement `json:"movements"`
	Stale         bool              `json:"stale,omitempty"`
}

type accountResponse struct {
	CorrelationID string          `json:"correlation_id"`
	Account       *ledger.Account `json:"account"`
	Stale         bool            `json:"stale,omitempty"`
}

type customerResponse struct {
	CorrelationID string              `json:"correlation_id"`
	Customer      *customers.Customer `json:"customer"`
}

type listCustomersResponse struct {
	CorrelationID string               `json:"correlation_id"`
	Customers     []customers.Customer `json:"customers"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Available bool   `json:"available"`
}

func handleHealth(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Available: true}
		if deps.Health != nil && !deps.Health.Available() {
			resp.Status = "degraded"
			resp.Available = false
		}
		writeJSON(w, r, http.StatusOK, resp)
	}
}

func handleDeposit(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req movementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		m, err := deps.Engine.Deposit(r.Context(), req.Account, req.Amount)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, movementResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Movement:      m,
		})
	}
}

func handleWithdraw(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req movementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		m, err := deps.Engine.Withdraw(r.Context(), req.Account, req.Amount)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, movementResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Movement:      m,
		})
	}
}

func handleTransfer(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		m, err := deps.Engine.Transfer(r.Context(), req.From, req.To, req.Amount)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, movementResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Movement:      m,
		})
	}
}

func handleListMovements(deps Dependencies, kind ledger.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cid := security.CorrelationIDFromContext(r.Context())

		if degraded(deps) {
			if deps.Standby == nil {
				security.WriteJSONError(w, r, http.StatusServiceUnavailable, "storage_unavailable")
				return
			}
			movements, err := deps.Standby.ListMovements(r.Context(), kind)
			if err != nil {
				security.WriteJSONError(w, r, http.StatusServiceUnavailable, "storage_unavailable")
				return
			}
			writeJSON(w, r, http.StatusOK, listMovementsResponse{CorrelationID: cid, Movements: movements, Stale: true})
			return
		}

		movements, err := deps.Engine.ListMovements(r.Context(), kind)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, listMovementsResponse{CorrelationID: cid, Movements: movements})
	}
}

func handleOpenAccount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req openAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		account, err := deps.Engine.OpenAccount(r.Context(), req.Number, req.OwnerID, req.InitialBalance)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, accountResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Account:       account,
		})
	}
}

func handleAccountByRef(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := chi.URLParam(r, "ref")
		cid := security.CorrelationIDFromContext(r.Context())

		if degraded(deps) {
			if deps.Standby == nil {
				security.WriteJSONError(w, r, http.StatusServiceUnavailable, "storage_unavailable")
				return
			}
			account, err := deps.Standby.AccountByRef(r.Context(), ref)
			if err != nil {
				security.WriteJSONError(w, r, http.StatusNotFound, "account_not_found")
				return
			}
			writeJSON(w, r, http.StatusOK, accountResponse{CorrelationID: cid, Account: account, Stale: true})
			return
		}

		account, err := deps.Engine.AccountByRef(r.Context(), ref)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, accountResponse{CorrelationID: cid, Account: account})
	}
}

func handleAccountByDocument(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		document := chi.URLParam(r, "document")
		cid := security.CorrelationIDFromContext(r.Context())

		if degraded(deps) {
			if deps.Standby == nil {
				security.WriteJSONError(w, r, http.StatusServiceUnavailable, "storage_unavailable")
				return
			}
			account, err := deps.Standby.AccountByOwnerDocument(r.Context(), document)
			if err != nil {
				security.WriteJSONError(w, r, http.StatusNotFound, "account_not_found")
				return
			}
			writeJSON(w, r, http.StatusOK, accountResponse{CorrelationID: cid, Account: account, Stale: true})
			return
		}

		account, err := deps.Engine.AccountByOwnerDocument(r.Context(), document)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, accountResponse{CorrelationID: cid, Account: account})
	}
}

func handleListCustomers(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Customers.List(r.Context())
		if err != nil {
			writeCustomerError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, listCustomersResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Customers:     list,
		})
	}
}

func handleCustomerByDocument(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := deps.Customers.GetByDocument(r.Context(), chi.URLParam(r, "document"))
		if err != nil {
			writeCustomerError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, customerResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Customer:      c,
		})
	}
}

func handleCreateCustomer(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req customerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		c, err := deps.Customers.Create(r.Context(), customers.Customer{
			Document:  req.Document,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Address:   req.Address,
		})
		if err != nil {
			writeCustomerError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, customerResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Customer:      c,
		})
	}
}

func handleUpdateCustomer(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req customerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		id := chi.URLParam(r, "id")
		err := deps.Customers.Update(r.Context(), id, customers.Customer{
			Document:  req.Document,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Address:   req.Address,
		})
		if err != nil {
			writeCustomerError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDeleteCustomer(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Customers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeCustomerError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func degraded(deps Dependencies) bool {
	return deps.Health != nil && !deps.Health.Available()
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, ledger.ErrSameAccount):
		security.WriteJSONError(w, r, http.StatusBadRequest, "validation_error")
	case errors.Is(err, ledger.ErrAccountNotFound):
		security.WriteJSONError(w, r, http.StatusNotFound, "account_not_found")
	case errors.Is(err, ledger.ErrAccountExists):
		security.WriteJSONError(w, r, http.StatusConflict, "account_exists")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		security.WriteJSONError(w, r, http.StatusUnprocessableEntity, "insufficient_funds")
	case errors.Is(err, ledger.ErrConflict):
		security.WriteJSONError(w, r, http.StatusConflict, "conflict")
	case errors.Is(err, ledger.ErrUnavailable):
		security.WriteJSONError(w, r, http.StatusServiceUnavailable, "storage_unavailable")
	default:
		security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func writeCustomerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, customers.ErrNotFound):
		security.WriteJSONError(w, r, http.StatusNotFound, "customer_not_found")
	case errors.Is(err, customers.ErrDocumentExists):
		security.WriteJSONError(w, r, http.StatusConflict, "document_exists")
	default:
		security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
	}
}
