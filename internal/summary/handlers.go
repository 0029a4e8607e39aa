package summary

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/repo"
)

// Call sites that request summaries. They only label metrics and cache keys.
const (
	SourceCart        = "cart"
	SourceCheckout    = "checkout"
	SourceOrderDrawer = "order_drawer"
	SourceInvoice     = "invoice"
	SourceOrderDetail = "order_detail"
)

type summaryRequest struct {
	Source string         `json:"source" validate:"omitempty,oneof=cart checkout order_drawer invoice order_detail"`
	Record pricing.Record `json:"record" validate:"required"`
}

// Handler exposes pricing summaries over HTTP.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Routes mounts the pricing endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/pricing/summary", h.Summary)
	r.Post("/pricing/groups", h.Groups)
	r.Get("/orders/{id}/summary", h.OrderSummary)
}

// Summary handles POST /api/v1/pricing/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing service not configured", nil)
		return
	}
	req, err := h.decode(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	source := req.Source
	if source == "" {
		source = SourceCart
	}
	out, err := h.svc.Summarize(r.Context(), source, req.Record)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Groups handles POST /api/v1/pricing/groups.
func (h *Handler) Groups(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing service not configured", nil)
		return
	}
	req, err := h.decode(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.svc.Groups(req.Record)})
}

// OrderSummary handles GET /api/v1/orders/{id}/summary.
func (h *Handler) OrderSummary(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing service not configured", nil)
		return
	}
	out, err := h.svc.SummarizeOrder(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		common.JSON(w, http.StatusOK, map[string]any{"data": out})
	case errors.Is(err, repo.ErrOrderNotFound):
		common.WriteError(w, common.NotFound("order not found", err))
	case errors.Is(err, repo.ErrInvalidOrderID):
		common.WriteError(w, common.BadRequest("invalid order id", err, nil))
	case errors.Is(err, ErrOrdersUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "order lookups are disabled", nil)
	default:
		common.WriteError(w, err)
	}
}

// decode reads the request body, keeping numbers as json.Number so money values
// reach the engine without float rounding.
func (h *Handler) decode(r *http.Request) (summaryRequest, error) {
	var req summaryRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return req, common.BadRequest("invalid payload", err, nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return req, common.BadRequest("validation failed", err, validationDetails(err))
	}
	return req, nil
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
