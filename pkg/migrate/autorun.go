package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-inventory/pkg/config"
	"github.com/angelmondragon/packfinderz-inventory/pkg/db"
	"github.com/angelmondragon/packfinderz-inventory/pkg/db/models"
	"github.com/angelmondragon/packfinderz-inventory/pkg/logger"
)

// MaybeRunDev migrates on startup in dev when INVENTORY_AUTO_MIGRATE is set. sqlite gets
// its schema from the models since the SQL files are Postgres-only.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	if cfg.FeatureFlags.UseSQLite {
		ctx = logg.WithField(ctx, "driver", "sqlite")
		logg.Info(ctx, "bootstrapping sqlite schema from models")
		if err := AutoMigrateModels(client); err != nil {
			return err
		}
		logg.Info(ctx, "sqlite schema ready")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithField(ctx, "driver", "postgres")
	runner, err := NewRunner(sqlDB, DefaultDir, nil)
	if err != nil {
		return err
	}
	logg.Info(ctx, "applying embedded migrations")
	if err := runner.Up(ctx); err != nil {
		return err
	}
	logg.Info(ctx, "postgres schema ready")
	return nil
}

// AutoMigrateModels creates the schema straight from the gorm models.
func AutoMigrateModels(client *db.Client) error {
	if err := client.DB().AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}
	return nil
}
