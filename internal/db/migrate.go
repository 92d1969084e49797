/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/heimdall_preroll/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Library
		&models.Category{},
		&models.Preroll{},
		&models.Sequence{},

		// Scheduling
		&models.Schedule{},

		// Apply targets
		&models.MediaServer{},
		&models.PathMapping{},
		&models.ApplyState{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return nil
}
