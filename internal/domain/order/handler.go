package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/soko/soko-api/internal/middleware"
	"github.com/soko/soko-api/internal/pkg/response"
	"github.com/soko/soko-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type itemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
	UnitPrice int64     `json:"unit_price" validate:"required,gt=0"`
}

type createOrderRequest struct {
	SellerID     uuid.UUID     `json:"seller_id" validate:"required"`
	Items        []itemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingCost int64         `json:"shipping_cost" validate:"gte=0"`
}

type updateItemsRequest struct {
	Items        []itemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingCost int64         `json:"shipping_cost" validate:"gte=0"`
}

type advanceRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req createOrderRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	items := make([]ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}

	o, err := h.svc.Create(r.Context(), userID, req.SellerID, items, req.ShippingCost)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, o)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid order id")
		return
	}

	o, err := h.svc.Get(r.Context(), orderID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, o)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	orders, err := h.svc.ListForUser(r.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, orders)
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid order id")
		return
	}

	var req advanceRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}

	o, err := h.svc.Advance(r.Context(), orderID, userID, Status(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, o)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid order id")
		return
	}

	o, err := h.svc.Cancel(r.Context(), orderID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, o)
}

func (h *Handler) UpdateItems(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid order id")
		return
	}

	var req updateItemsRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	items := make([]ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}

	o, err := h.svc.UpdateItems(r.Context(), orderID, userID, items, req.ShippingCost)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, o)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidItems):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrNotParty):
		response.Forbidden(w, err.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrStateConflict), errors.Is(err, ErrAlreadyEscrowed):
		response.Conflict(w, err.Error())
	default:
		response.InternalError(w)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}/items", h.UpdateItems)
	r.Post("/{id}/advance", h.Advance)
	r.Post("/{id}/cancel", h.Cancel)
	return r
}
