package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/nahidhasan98/icon-sync/internal/deliveries"
	"github.com/nahidhasan98/icon-sync/internal/errors"
	"github.com/nahidhasan98/icon-sync/internal/models"
)

const defaultListLimit = 50

// ListDeliveries returns the most recent webhook deliveries
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params := map[string]string{
		"limit":  query.Get("limit"),
		"offset": query.Get("offset"),
	}
	if appErr := h.validator.ValidateQueryParams(params); appErr != nil {
		h.writeAppError(w, appErr)
		return
	}

	limit := defaultListLimit
	if params["limit"] != "" {
		limit, _ = strconv.Atoi(params["limit"])
	}
	offset, _ := strconv.Atoi(params["offset"])

	list, err := h.deliveries.List(r.Context(), limit, offset)
	if err != nil {
		h.writeAppError(w, errors.DatabaseError(err))
		return
	}

	h.writeJSON(w, &models.DeliveriesResponse{
		Deliveries: list,
		Count:      len(list),
		Limit:      limit,
		Offset:     offset,
	}, http.StatusOK)
}

// GetDelivery returns one webhook delivery
func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	d, err := h.deliveries.Get(r.Context(), id)
	if stderrors.Is(err, deliveries.ErrNotFound) {
		h.writeAppError(w, errors.NotFound("Delivery "+id+" not found"))
		return
	}
	if err != nil {
		h.writeAppError(w, errors.DatabaseError(err))
		return
	}

	h.writeJSON(w, d, http.StatusOK)
}
