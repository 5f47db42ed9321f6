package repository

import (
	"sourcedpos/internal/model"

	"gorm.io/gorm"
)

type PartExchangeRepository interface {
	CreateTx(tx *gorm.DB, p *model.PartExchangeItem) error
}

type partExchangeRepo struct{ db *gorm.DB }

func NewPartExchangeRepository(db *gorm.DB) PartExchangeRepository {
	return &partExchangeRepo{db: db}
}

func (r *partExchangeRepo) CreateTx(tx *gorm.DB, p *model.PartExchangeItem) error {
	return tx.Create(p).Error
}
