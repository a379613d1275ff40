package database

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetEntityByID returns a single record of type T by its primary key id.
func GetEntityByID[T any, ID comparable](ctx context.Context, db *gorm.DB, id ID) (*T, error) {
	var out T
	if err := db.WithContext(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// UpsertEntity inserts entity or overwrites the given columns on a key conflict.
func UpsertEntity[T any](ctx context.Context, db *gorm.DB, entity *T, columns ...string) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(entity).Error
}

// WithTx runs fn within a transaction.
func WithTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(fn)
}
