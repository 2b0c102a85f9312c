package handlers

import (
	"context"

	"github.com/sdko-org/edge-proxy/internal/models"
	"gorm.io/gorm"
)

// DomainStore resolves a configured domain name to its origin mapping.
// Lookups for unknown domains return gorm.ErrRecordNotFound.
type DomainStore interface {
	FindByName(ctx context.Context, name string) (*models.Domain, error)
}

type GormDomainStore struct {
	db *gorm.DB
}

func NewGormDomainStore(db *gorm.DB) *GormDomainStore {
	return &GormDomainStore{db: db}
}

func (s *GormDomainStore) FindByName(ctx context.Context, name string) (*models.Domain, error) {
	var domain models.Domain
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&domain).Error; err != nil {
		return nil, err
	}
	return &domain, nil
}
