// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gormstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/ratify/database/models"
	"github.com/blinklabs-io/ratify/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Store implements the campaign index on top of any gorm dialect
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New wraps an open gorm handle, enabling tracing and migrating the index
// tables
func New(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Configure tracing for GORM
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	s := &Store{
		db:     db,
		logger: logger,
	}
	for _, model := range models.MigrateModels {
		s.logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := s.db.AutoMigrate(model); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DB returns the underlying gorm handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) List(ctx context.Context) ([]models.Campaign, error) {
	var ret []models.Campaign
	result := s.db.WithContext(ctx).Order("address").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

func (s *Store) Get(
	ctx context.Context,
	address string,
) (*models.Campaign, error) {
	ret := &models.Campaign{}
	result := s.db.WithContext(ctx).
		Where("address = ?", address).
		First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, result.Error
	}
	return ret, nil
}

// Upsert writes the entry when its version is greater than the stored one.
// The comparison happens in the UPDATE statement so that concurrent writers
// cannot both succeed with the same version.
func (s *Store) Upsert(
	ctx context.Context,
	entry *models.Campaign,
) error {
	if entry.Address == "" {
		return errors.New("campaign index entry has no address")
	}
	now := time.Now()
	entry.UpdatedAt = now
	result := s.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("address = ? AND version < ?", entry.Address, entry.Version).
		Select("*").
		Omit("id", "created_at").
		Updates(entry)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var count int64
	if result := s.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("address = ?", entry.Address).
		Count(&count); result.Error != nil {
		return result.Error
	}
	if count > 0 {
		return types.ErrStaleUpdate
	}
	entry.ID = 0
	entry.CreatedAt = now
	result = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Lost a race with another creator
		return types.ErrStaleUpdate
	}
	return nil
}

func (s *Store) MarkInactive(ctx context.Context, address string) error {
	return s.mark(ctx, address, map[string]any{
		"is_active": false,
	})
}

func (s *Store) MarkCompleted(ctx context.Context, address string) error {
	return s.mark(ctx, address, map[string]any{
		"is_active":    false,
		"is_completed": true,
	})
}

func (s *Store) mark(
	ctx context.Context,
	address string,
	updates map[string]any,
) error {
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("address = ?", address).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
