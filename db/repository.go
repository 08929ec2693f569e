package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ExportRepository stores the history of written exports.
type ExportRepository interface {
	Put(ctx context.Context, e *Export) error
	List(ctx context.Context, provider string, limit int) ([]Export, error)
	Latest(ctx context.Context, provider, endpoint string) (*Export, error)
	Clear(ctx context.Context) error
}

// gormExportRepo is a GORM-backed implementation of ExportRepository.
type gormExportRepo struct{ db *gorm.DB }

// NewExportRepository creates an ExportRepository. Accepts *gorm.DB to avoid global access.
func NewExportRepository(db *gorm.DB) ExportRepository { return &gormExportRepo{db: db} }

func (r *gormExportRepo) Put(ctx context.Context, e *Export) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Create(e).Error
}

// List returns the newest exports first. An empty provider matches all; limit <= 0 means no limit.
func (r *gormExportRepo) List(ctx context.Context, provider string, limit int) ([]Export, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var exports []Export
	if err := q.Find(&exports).Error; err != nil {
		return nil, err
	}
	return exports, nil
}

// Latest returns nil without error when nothing matches.
func (r *gormExportRepo) Latest(ctx context.Context, provider, endpoint string) (*Export, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var e Export
	err := r.db.WithContext(ctx).
		Where("provider = ? AND endpoint = ?", provider, endpoint).
		Order("created_at DESC").
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormExportRepo) Clear(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&Export{}).Error
}
