package escrow

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/soko/soko-api/internal/domain/order"
	"github.com/soko/soko-api/internal/domain/wallet"
	"github.com/soko/soko-api/internal/middleware"
	"github.com/soko/soko-api/internal/pkg/response"
	"github.com/soko/soko-api/internal/pkg/validator"
)

// maxEvidenceSize caps dispute uploads at 10 MB.
const maxEvidenceSize = 10 << 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req createRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	e, err := h.svc.CreateForOrder(r.Context(), userID, req.OrderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, newEscrowResponse(e))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.parties(w, r)
	if !ok {
		return
	}
	e, err := h.svc.Get(r.Context(), userID, h.isAdmin(r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, newEscrowResponse(e))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	escrows, err := h.svc.ListForUser(r.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}
	out := make([]escrowResponse, 0, len(escrows))
	for i := range escrows {
		out = append(out, newEscrowResponse(&escrows[i]))
	}
	response.OK(w, out)
}

func (h *Handler) Fund(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.parties(w, r)
	if !ok {
		return
	}
	e, err := h.svc.Fund(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, newEscrowResponse(e))
}

func (h *Handler) SellerConfirm(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.parties(w, r)
	if !ok {
		return
	}
	if err := h.svc.SellerConfirm(r.Context(), userID, id); err != nil {
		h.writeError(w, err)
		return
	}
	response.NoContent(w)
}

func (h *Handler) Ship(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.parties(w, r)
	if !ok {
		return
	}

	var req shipRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	e, err := h.svc.MarkShipped(r.Context(), userID, id, req.TrackingNumber, req.Carrier)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, newEscrowResponse(e))
}

// Deliver is the seller's (or an admin's) delivery notice.
func (h *Handler) Deliver(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.parties(w, r)
	if !ok {
		return
	}
	e, err := h.svc.MarkDelivered(r.Context(), userID, h.isAdmin(r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, newEscrowResponse(e))
}

func (h *Handler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.parties(w, r)
	if !ok {
		return
	}
	e, err := h.svc.ConfirmDelivery(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, newEscrowResponse(e))
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.parties(w, r)
	if !ok {
		return
	}
	e, err := h.svc.Release(r.Context(), userID, h.isAdmin(r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, newEscrowResponse(e))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.parties(w, r)
	if !ok {
		return
	}
	e, err := h.svc.Cancel(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, newEscrowResponse(e))
}

func (h *Handler) Dispute(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.parties(w, r)
	if !ok {
		return
	}

	var req disputeRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	e, err := h.svc.OpenDispute(r.Context(), userID, id, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, newEscrowResponse(e))
}

// Resolve is admin-only: it settles a disputed escrow.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid escrow id")
		return
	}

	var req resolveRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	e, err := h.svc.ResolveDispute(r.Context(), id, Resolution(req.Resolution))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, newEscrowResponse(e))
}

func (h *Handler) UploadEvidence(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.parties(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxEvidenceSize); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "missing file")
		return
	}
	defer file.Close()

	ev, err := h.svc.AttachEvidence(r.Context(), userID, id,
		header.Filename, file, r.FormValue("note"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, evidenceResponse{
		ID:        ev.ID,
		EscrowID:  ev.EscrowID,
		Uploader:  ev.UploaderID,
		FileName:  ev.FileName,
		Note:      ev.Note,
		URL:       h.svc.EvidenceURL(ev),
		CreatedAt: ev.CreatedAt,
	})
}

func (h *Handler) ListEvidence(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.parties(w, r)
	if !ok {
		return
	}
	evidence, err := h.svc.ListEvidence(r.Context(), userID, h.isAdmin(r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]evidenceResponse, 0, len(evidence))
	for i := range evidence {
		ev := &evidence[i]
		out = append(out, evidenceResponse{
			ID:        ev.ID,
			EscrowID:  ev.EscrowID,
			Uploader:  ev.UploaderID,
			FileName:  ev.FileName,
			Note:      ev.Note,
			URL:       h.svc.EvidenceURL(ev),
			CreatedAt: ev.CreatedAt,
		})
	}
	response.OK(w, out)
}

// parties pulls the caller and the escrow id out of the request,
// writing the error response itself when either is missing.
func (h *Handler) parties(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid escrow id")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

func (h *Handler) isAdmin(r *http.Request) bool {
	return middleware.GetRole(r.Context()) == "admin"
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidUpload):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrNotParty), errors.Is(err, ErrAdminRequired):
		response.Forbidden(w, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, order.ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrStateConflict), errors.Is(err, ErrConcurrency),
		errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrNotDisputed),
		errors.Is(err, wallet.ErrInsufficientFunds):
		response.Conflict(w, err.Error())
	case errors.Is(err, wallet.ErrWalletNotFound):
		response.NotFound(w, err.Error())
	default:
		response.InternalError(w)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler, adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/fund", h.Fund)
	r.Post("/{id}/confirm-terms", h.SellerConfirm)
	r.Post("/{id}/ship", h.Ship)
	r.Post("/{id}/deliver", h.Deliver)
	r.Post("/{id}/confirm", h.ConfirmDelivery)
	r.Post("/{id}/release", h.Release)
	r.Post("/{id}/cancel", h.Cancel)
	r.Post("/{id}/dispute", h.Dispute)
	r.Post("/{id}/evidence", h.UploadEvidence)
	r.Get("/{id}/evidence", h.ListEvidence)
	r.With(adminMiddleware).Post("/{id}/resolve", h.Resolve)
	return r
}
