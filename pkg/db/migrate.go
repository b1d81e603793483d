package db

import (
	"context"
	"fmt"

	"github.com/mfigueroa/stockroom-backend/pkg/config"
	"github.com/mfigueroa/stockroom-backend/pkg/db/models"
	"github.com/mfigueroa/stockroom-backend/pkg/logger"
)

// MaybeAutoMigrate applies the gorm schema when the auto-migrate flag is
// set. Intended for dev and test environments; production schema changes
// ship as reviewed migrations.
func MaybeAutoMigrate(ctx context.Context, cfg config.DBConfig, logg *logger.Logger, client *Client) error {
	if !cfg.AutoMigrate || client == nil {
		return nil
	}

	if err := client.DB().WithContext(ctx).AutoMigrate(
		&models.InventoryItem{},
		&models.InventoryLog{},
	); err != nil {
		return fmt.Errorf("auto-migrating schema: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "auto-migration complete")
	}
	return nil
}
