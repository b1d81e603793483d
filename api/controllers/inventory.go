package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mfigueroa/stockroom-backend/api/responses"
	"github.com/mfigueroa/stockroom-backend/api/validators"
	"github.com/mfigueroa/stockroom-backend/internal/inventory"
	"github.com/mfigueroa/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/mfigueroa/stockroom-backend/pkg/errors"
	"github.com/mfigueroa/stockroom-backend/pkg/logger"
)

type inventoryMutationRequest struct {
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"omitempty,max=255"`
	ReferenceID string `json:"reference_id" validate:"omitempty,uuid"`
}

type inventoryAdjustRequest struct {
	Quantity          int    `json:"quantity" validate:"gte=0"`
	LowStockThreshold *int   `json:"low_stock_threshold" validate:"omitempty,gte=0"`
	Reason            string `json:"reason" validate:"omitempty,max=255"`
}

// ReserveInventory places a hold on stock for a pending order.
func ReserveInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return inventoryMutation(svc, logg, func(svc inventory.Service) mutationFn {
		return svc.Reserve
	})
}

// ReleaseInventory returns previously reserved stock to the sellable pool.
func ReleaseInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return inventoryMutation(svc, logg, func(svc inventory.Service) mutationFn {
		return svc.Release
	})
}

// FinalizeInventory converts a reservation into a committed sale.
func FinalizeInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return inventoryMutation(svc, logg, func(svc inventory.Service) mutationFn {
		return svc.Finalize
	})
}

type mutationFn func(ctx context.Context, params inventory.MutationParams) (*models.InventoryItem, error)

func inventoryMutation(svc inventory.Service, logg *logger.Logger, pick func(inventory.Service) mutationFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		productID, size, err := inventoryKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req inventoryMutationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := inventory.MutationParams{
			ProductID: productID,
			Size:      size,
			Quantity:  req.Quantity,
			Reason:    strings.TrimSpace(req.Reason),
		}
		if req.ReferenceID != "" {
			refID, parseErr := uuid.Parse(req.ReferenceID)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid reference id"))
				return
			}
			params.ReferenceID = &refID
		}

		item, err := pick(svc)(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// AdjustInventory sets the absolute stock level, creating the item when it
// does not exist yet.
func AdjustInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		productID, size, err := inventoryKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req inventoryAdjustRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Adjust(r.Context(), inventory.AdjustParams{
			ProductID:         productID,
			Size:              size,
			Quantity:          req.Quantity,
			LowStockThreshold: req.LowStockThreshold,
			Reason:            strings.TrimSpace(req.Reason),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// GetInventory returns a single inventory item.
func GetInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		productID, size, err := inventoryKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Get(r.Context(), productID, size)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// ListInventory returns a cursor-paginated listing of all items.
func ListInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		params := inventory.ListParams{}
		limit, cursor, err := pageQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Limit = limit
		params.Cursor = cursor

		resp, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// ListInventoryLogs returns the audit trail for one item, newest first.
func ListInventoryLogs(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		productID, size, err := inventoryKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := inventory.LogsParams{ProductID: productID, Size: size}
		limit, cursor, err := pageQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Limit = limit
		params.Cursor = cursor

		resp, err := svc.Logs(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// DeleteInventory removes an item and is restricted to admins.
func DeleteInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		productID, size, err := inventoryKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), productID, size); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

func inventoryKey(r *http.Request) (uuid.UUID, string, error) {
	rawID := chi.URLParam(r, "productId")
	productID, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
	}

	size := strings.TrimSpace(chi.URLParam(r, "size"))
	if size == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeValidation, "size is required")
	}
	return productID, size, nil
}

func pageQuery(r *http.Request) (int, string, error) {
	limit := 0
	if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
		value, err := strconv.Atoi(limitStr)
		if err != nil || value <= 0 {
			return 0, "", pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer")
		}
		limit = value
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	return limit, cursor, nil
}
