package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/soko/soko-api/internal/middleware"
	"github.com/soko/soko-api/internal/pkg/pin"
	"github.com/soko/soko-api/internal/pkg/response"
	"github.com/soko/soko-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	wallet, err := h.svc.GetBalance(r.Context(), userID)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, newBalanceResponse(wallet))
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txns, err := h.svc.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}
	out := make([]transactionResponse, 0, len(txns))
	for i := range txns {
		out = append(out, newTransactionResponse(&txns[i]))
	}
	response.OK(w, out)
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req depositRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	txn, err := h.svc.Deposit(r.Context(), userID, req.Amount, req.Method)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, newTransactionResponse(txn))
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req withdrawRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	txn, err := h.svc.Withdraw(r.Context(), userID, req.Amount, req.Destination, req.PIN)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, newTransactionResponse(txn))
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req transferRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	txn, err := h.svc.Transfer(r.Context(), userID, req.Amount, req.RecipientAccount, req.PIN, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, newTransactionResponse(txn))
}

func (h *Handler) SetPIN(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req setPINRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	if err := h.svc.SetPIN(r.Context(), userID, req.PIN); err != nil {
		h.writeError(w, err)
		return
	}
	response.NoContent(w)
}

// SetKYC is admin-only; it updates the verification tier of any user's
// wallet.
func (h *Handler) SetKYC(w http.ResponseWriter, r *http.Request) {
	var req setKYCRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	if err := h.svc.SetKYCLevel(r.Context(), req.UserID, KYCLevel(req.Level)); err != nil {
		h.writeError(w, err)
		return
	}
	response.NoContent(w)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, pin.ErrInvalidFormat):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrPINMismatch), errors.Is(err, ErrPINNotSet):
		response.Forbidden(w, err.Error())
	case errors.Is(err, pin.ErrTooManyAttempts):
		response.TooManyRequests(w)
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrLimitExceeded),
		errors.Is(err, ErrKYCRequired), errors.Is(err, ErrSelfTransfer):
		response.Conflict(w, err.Error())
	case errors.Is(err, ErrWalletNotFound), errors.Is(err, ErrTxNotFound):
		response.NotFound(w, err.Error())
	default:
		response.InternalError(w)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler, adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.Transactions)
	r.Post("/deposit", h.Deposit)
	r.Post("/withdraw", h.Withdraw)
	r.Post("/transfer", h.Transfer)
	r.Post("/pin", h.SetPIN)
	r.With(adminMiddleware).Post("/kyc", h.SetKYC)
	return r
}
