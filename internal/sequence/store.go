/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sequence

import (
	"github.com/friendsincode/heimdall_preroll/internal/models"
	"gorm.io/gorm"
)

// GormIndex serves the resolver from the database.
type GormIndex struct {
	db *gorm.DB
}

// NewGormIndex wraps a gorm handle as a read-only index.
func NewGormIndex(db *gorm.DB) *GormIndex {
	return &GormIndex{db: db}
}

func (g *GormIndex) CategoryByID(id string) (*models.Category, error) {
	var cat models.Category
	if err := g.db.First(&cat, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cat, nil
}

func (g *GormIndex) SequenceByID(id string) (*models.Sequence, error) {
	var seq models.Sequence
	if err := g.db.First(&seq, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &seq, nil
}

func (g *GormIndex) PrerollByID(id string) (*models.Preroll, error) {
	var p models.Preroll
	if err := g.db.First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (g *GormIndex) PrerollsInCategory(categoryID string) ([]models.Preroll, error) {
	var prerolls []models.Preroll
	err := g.db.
		Joins("JOIN preroll_categories ON preroll_categories.preroll_id = prerolls.id").
		Where("preroll_categories.category_id = ?", categoryID).
		Order("prerolls.id ASC").
		Find(&prerolls).Error
	if err != nil {
		return nil, err
	}
	return prerolls, nil
}
