package inventory

import (
	"bytes"
	"context"
	stdErrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfigueroa/stockroom-backend/internal/realtime"
	"github.com/mfigueroa/stockroom-backend/pkg/db/models"
	"github.com/mfigueroa/stockroom-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/stockroom-backend/pkg/errors"
	"github.com/mfigueroa/stockroom-backend/pkg/pagination"
)

// Service defines inventory counter operations.
type Service interface {
	Reserve(ctx context.Context, params MutationParams) (*models.InventoryItem, error)
	Release(ctx context.Context, params MutationParams) (*models.InventoryItem, error)
	Finalize(ctx context.Context, params MutationParams) (*models.InventoryItem, error)
	ApplyBatch(ctx context.Context, kind MutationKind, items []MutationParams) ([]*models.InventoryItem, error)
	Adjust(ctx context.Context, params AdjustParams) (*models.InventoryItem, error)
	Get(ctx context.Context, productID uuid.UUID, size string) (*models.InventoryItem, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Logs(ctx context.Context, params LogsParams) (*LogsResult, error)
	Delete(ctx context.Context, productID uuid.UUID, size string) error
}

// TxRunner runs a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier pushes stock alerts to connected admins.
type Notifier interface {
	SendToAdmins(ctx context.Context, n realtime.Notification)
}

type service struct {
	tx       TxRunner
	repo     Repository
	notifier Notifier
	now      func() time.Time
}

// NewService wires inventory dependencies. The notifier may be nil;
// stock alerts are then dropped silently.
func NewService(tx TxRunner, repo Repository, notifier Notifier) (Service, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "inventory transaction runner required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "inventory repository required")
	}
	return &service{tx: tx, repo: repo, notifier: notifier, now: time.Now}, nil
}

func (s *service) Reserve(ctx context.Context, params MutationParams) (*models.InventoryItem, error) {
	if err := validateMutation(params); err != nil {
		return nil, err
	}
	return s.mutate(ctx, params.ProductID, params.Size, s.reserveStep(params))
}

func (s *service) Release(ctx context.Context, params MutationParams) (*models.InventoryItem, error) {
	if err := validateMutation(params); err != nil {
		return nil, err
	}
	return s.mutate(ctx, params.ProductID, params.Size, s.releaseStep(params))
}

// Finalize converts a reservation into a committed sale: both quantity
// and reserved shrink, so available stock is unchanged.
func (s *service) Finalize(ctx context.Context, params MutationParams) (*models.InventoryItem, error) {
	if err := validateMutation(params); err != nil {
		return nil, err
	}
	return s.mutate(ctx, params.ProductID, params.Size, s.finalizeStep(params))
}

// ApplyBatch runs one mutation per entry inside a single transaction, so
// a multi-line order commits or rolls back as a unit. Entries are locked
// in key order to keep row lock acquisition consistent across concurrent
// batches.
func (s *service) ApplyBatch(ctx context.Context, kind MutationKind, items []MutationParams) ([]*models.InventoryItem, error) {
	step, err := s.stepFor(kind)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	for _, params := range items {
		if err := validateMutation(params); err != nil {
			return nil, err
		}
	}

	ordered := append([]MutationParams(nil), items...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].ProductID != ordered[j].ProductID {
			return bytes.Compare(ordered[i].ProductID[:], ordered[j].ProductID[:]) < 0
		}
		return ordered[i].Size < ordered[j].Size
	})

	var (
		updated []*models.InventoryItem
		alerts  []*realtime.Notification
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated = updated[:0]
		alerts = alerts[:0]
		repo := s.repo.WithTx(tx)
		for _, params := range ordered {
			item, alert, stepErr := s.mutateOne(ctx, repo, params.ProductID, params.Size, step(params))
			if stepErr != nil {
				return stepErr
			}
			updated = append(updated, item)
			alerts = append(alerts, alert)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, alert := range alerts {
		s.notify(ctx, alert)
	}
	return updated, nil
}

func (s *service) stepFor(kind MutationKind) (func(MutationParams) mutateFn, error) {
	switch kind {
	case MutationReserve:
		return s.reserveStep, nil
	case MutationRelease:
		return s.releaseStep, nil
	case MutationFinalize:
		return s.finalizeStep, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown mutation kind %q", kind))
}

func (s *service) reserveStep(params MutationParams) mutateFn {
	return func(item *models.InventoryItem) (*models.InventoryLog, error) {
		if item.Available() < params.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
				WithDetails(map[string]any{
					"available": item.Available(),
					"requested": params.Quantity,
				})
		}
		previous := item.ReservedQty
		item.ReservedQty += params.Quantity
		return s.auditLog(params, enums.InventoryActionReserve, params.Quantity, previous, item.ReservedQty), nil
	}
}

func (s *service) releaseStep(params MutationParams) mutateFn {
	return func(item *models.InventoryItem) (*models.InventoryLog, error) {
		if item.ReservedQty < params.Quantity {
			return nil, overRelease(item.ReservedQty, params.Quantity)
		}
		previous := item.ReservedQty
		item.ReservedQty -= params.Quantity
		return s.auditLog(params, enums.InventoryActionRelease, -params.Quantity, previous, item.ReservedQty), nil
	}
}

func (s *service) finalizeStep(params MutationParams) mutateFn {
	return func(item *models.InventoryItem) (*models.InventoryLog, error) {
		if item.ReservedQty < params.Quantity {
			return nil, overRelease(item.ReservedQty, params.Quantity)
		}
		previous := item.Quantity
		item.Quantity -= params.Quantity
		item.ReservedQty -= params.Quantity
		return s.auditLog(params, enums.InventoryActionSubtract, -params.Quantity, previous, item.Quantity), nil
	}
}

func (s *service) Adjust(ctx context.Context, params AdjustParams) (*models.InventoryItem, error) {
	if params.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if params.Size == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "size required")
	}
	if params.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	if params.LowStockThreshold != nil && *params.LowStockThreshold < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "low stock threshold must not be negative")
	}

	var (
		updated *models.InventoryItem
		alert   *realtime.Notification
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.GetForUpdate(ctx, params.ProductID, params.Size)
		switch {
		case err == nil:
			item, alert, err = s.applyAdjust(ctx, repo, item, params)
			if err != nil {
				return err
			}
			updated = item
			return nil
		case isNotFound(err):
			item, err = s.createAdjusted(ctx, repo, params)
			if err != nil {
				return err
			}
			updated = item
			return nil
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
		}
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, alert)
	return updated, nil
}

func (s *service) applyAdjust(ctx context.Context, repo Repository, item *models.InventoryItem, params AdjustParams) (*models.InventoryItem, *realtime.Notification, error) {
	if params.Quantity < item.ReservedQty {
		return nil, nil, pkgerrors.New(pkgerrors.CodeOverRelease, "quantity cannot drop below reserved").
			WithDetails(map[string]any{
				"reserved":  item.ReservedQty,
				"requested": params.Quantity,
			})
	}

	prevAvailable := item.Available()
	delta := params.Quantity - item.Quantity
	previous := item.Quantity
	item.Quantity = params.Quantity
	if params.LowStockThreshold != nil {
		item.LowStockThreshold = *params.LowStockThreshold
	}
	if delta > 0 {
		now := s.now().UTC()
		item.LastRestocked = &now
	}
	item.InStock = item.Available() > 0

	if err := repo.Save(ctx, item); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save inventory item")
	}
	if delta != 0 {
		action := enums.InventoryActionAdd
		if delta < 0 {
			action = enums.InventoryActionSubtract
		}
		log := &models.InventoryLog{
			ID:             uuid.New(),
			ProductID:      item.ProductID,
			Size:           item.Size,
			Action:         action,
			QuantityChange: delta,
			PreviousQty:    previous,
			NewQty:         item.Quantity,
			Reason:         params.Reason,
		}
		if err := repo.CreateLog(ctx, log); err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write inventory log")
		}
	}
	return item, stockAlert(prevAvailable, item), nil
}

func (s *service) createAdjusted(ctx context.Context, repo Repository, params AdjustParams) (*models.InventoryItem, error) {
	item := &models.InventoryItem{
		ProductID:         params.ProductID,
		Size:              params.Size,
		Quantity:          params.Quantity,
		LowStockThreshold: 5,
		InStock:           params.Quantity > 0,
	}
	if params.LowStockThreshold != nil {
		item.LowStockThreshold = *params.LowStockThreshold
	}
	if params.Quantity > 0 {
		now := s.now().UTC()
		item.LastRestocked = &now
	}
	if err := repo.Create(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create inventory item")
	}
	if params.Quantity != 0 {
		log := &models.InventoryLog{
			ID:             uuid.New(),
			ProductID:      item.ProductID,
			Size:           item.Size,
			Action:         enums.InventoryActionAdd,
			QuantityChange: params.Quantity,
			PreviousQty:    0,
			NewQty:         params.Quantity,
			Reason:         params.Reason,
		}
		if err := repo.CreateLog(ctx, log); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write inventory log")
		}
	}
	return item, nil
}

func (s *service) Get(ctx context.Context, productID uuid.UUID, size string) (*models.InventoryItem, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if size == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "size required")
	}
	item, err := s.repo.Get(ctx, productID, size)
	if err != nil {
		if isNotFound(err) {
			return nil, itemNotFound(productID, size)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
	}
	return item, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listItemsParams{Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseKeyCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeKeyCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) Logs(ctx context.Context, params LogsParams) (*LogsResult, error) {
	if params.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if params.Size == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "size required")
	}

	query := listLogsParams{
		ProductID: params.ProductID,
		Size:      params.Size,
		Limit:     params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListLogs(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory logs")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &LogsResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) Delete(ctx context.Context, productID uuid.UUID, size string) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if size == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "size required")
	}
	deleted, err := s.repo.Delete(ctx, productID, size)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete inventory item")
	}
	if !deleted {
		return itemNotFound(productID, size)
	}
	return nil
}

// mutateFn applies one counter movement to a locked row and returns the
// audit row describing it.
type mutateFn func(item *models.InventoryItem) (*models.InventoryLog, error)

// mutate runs a single counter movement in its own transaction and emits
// the stock alert after commit.
func (s *service) mutate(ctx context.Context, productID uuid.UUID, size string, fn mutateFn) (*models.InventoryItem, error) {
	var (
		updated *models.InventoryItem
		alert   *realtime.Notification
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		updated, alert, txErr = s.mutateOne(ctx, s.repo.WithTx(tx), productID, size, fn)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, alert)
	return updated, nil
}

// mutateOne loads the row under a FOR UPDATE lock, applies fn and
// persists the result plus its audit row. The caller owns the
// transaction and delivers the returned alert after commit.
func (s *service) mutateOne(ctx context.Context, repo Repository, productID uuid.UUID, size string, fn mutateFn) (*models.InventoryItem, *realtime.Notification, error) {
	item, err := repo.GetForUpdate(ctx, productID, size)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, itemNotFound(productID, size)
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
	}

	prevAvailable := item.Available()
	log, err := fn(item)
	if err != nil {
		return nil, nil, err
	}

	item.InStock = item.Available() > 0
	if err := repo.Save(ctx, item); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save inventory item")
	}
	if log != nil {
		if err := repo.CreateLog(ctx, log); err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write inventory log")
		}
	}

	return item, stockAlert(prevAvailable, item), nil
}

func (s *service) auditLog(params MutationParams, action enums.InventoryAction, change, previous, current int) *models.InventoryLog {
	return &models.InventoryLog{
		ID:             uuid.New(),
		ProductID:      params.ProductID,
		Size:           params.Size,
		Action:         action,
		QuantityChange: change,
		PreviousQty:    previous,
		NewQty:         current,
		Reason:         params.Reason,
		ReferenceID:    params.ReferenceID,
	}
}

func (s *service) notify(ctx context.Context, alert *realtime.Notification) {
	if alert == nil || s.notifier == nil {
		return
	}
	s.notifier.SendToAdmins(ctx, *alert)
}

// stockAlert emits at most one notification per mutation, and only on a
// downward crossing: repeated mutations inside the low band stay silent,
// as do upward moves.
func stockAlert(prevAvailable int, item *models.InventoryItem) *realtime.Notification {
	available := item.Available()
	switch {
	case prevAvailable > 0 && available <= 0:
		n := realtime.NewNotification(
			enums.NotificationTypeOutOfStock,
			"Out of stock",
			fmt.Sprintf("Product %s size %s is out of stock", item.ProductID, item.Size),
		).WithEntity("inventory_item", item.ProductID)
		return &n
	case prevAvailable > item.LowStockThreshold && available > 0 && available <= item.LowStockThreshold:
		n := realtime.NewNotification(
			enums.NotificationTypeLowStock,
			"Low stock",
			fmt.Sprintf("Product %s size %s is down to %d available", item.ProductID, item.Size, available),
		).WithEntity("inventory_item", item.ProductID)
		return &n
	}
	return nil
}

func validateMutation(params MutationParams) error {
	if params.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if params.Size == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "size required")
	}
	if params.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}

func overRelease(reserved, requested int) error {
	return pkgerrors.New(pkgerrors.CodeOverRelease, "release exceeds reserved quantity").
		WithDetails(map[string]any{
			"reserved":  reserved,
			"requested": requested,
		})
}

func itemNotFound(productID uuid.UUID, size string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("inventory item %s/%s not found", productID, size))
}

func isNotFound(err error) bool {
	return stdErrors.Is(err, gorm.ErrRecordNotFound)
}
