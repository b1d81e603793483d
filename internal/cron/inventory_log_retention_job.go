package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/mfigueroa/stockroom-backend/pkg/logger"
)

const defaultLogRetention = 90 * 24 * time.Hour

type inventoryLogPruner interface {
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// InventoryLogRetentionJobParams configure the audit log retention job.
type InventoryLogRetentionJobParams struct {
	Logger    *logger.Logger
	Pruner    inventoryLogPruner
	Retention time.Duration
}

// NewInventoryLogRetentionJob deletes audit rows older than the
// retention window. The delete is a single statement, so no wrapping
// transaction is needed.
func NewInventoryLogRetentionJob(params InventoryLogRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Pruner == nil {
		return nil, fmt.Errorf("inventory log pruner required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultLogRetention
	}
	return &inventoryLogRetentionJob{
		logg:      params.Logger,
		pruner:    params.Pruner,
		retention: retention,
		now:       time.Now,
	}, nil
}

type inventoryLogRetentionJob struct {
	logg      *logger.Logger
	pruner    inventoryLogPruner
	retention time.Duration
	now       func() time.Time
}

func (j *inventoryLogRetentionJob) Name() string { return "inventory-log-retention" }

func (j *inventoryLogRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.pruner.DeleteLogsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("inventory log retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "inventory log retention complete")
	return nil
}
