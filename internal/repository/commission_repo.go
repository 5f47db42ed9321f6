package repository

import (
	"context"
	"errors"

	"sourcedpos/internal/model"

	"gorm.io/gorm"
)

type CommissionRepository interface {
	// FindByStaffID returns nil, nil when the staff member has no override.
	FindByStaffID(ctx context.Context, staffID string) (*model.StaffCommissionSetting, error)
	ListByStaffIDs(ctx context.Context, staffIDs []string) (map[string]*model.StaffCommissionSetting, error)
}

type commissionRepo struct{ db *gorm.DB }

func NewCommissionRepository(db *gorm.DB) CommissionRepository { return &commissionRepo{db: db} }

func (r *commissionRepo) FindByStaffID(ctx context.Context, staffID string) (*model.StaffCommissionSetting, error) {
	var s model.StaffCommissionSetting
	err := r.db.WithContext(ctx).Where("staff_id = ?", staffID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *commissionRepo) ListByStaffIDs(ctx context.Context, staffIDs []string) (map[string]*model.StaffCommissionSetting, error) {
	var settings []model.StaffCommissionSetting
	if err := r.db.WithContext(ctx).Where("staff_id IN ?", staffIDs).Find(&settings).Error; err != nil {
		return nil, err
	}
	out := make(map[string]*model.StaffCommissionSetting, len(settings))
	for i := range settings {
		out[settings[i].StaffID] = &settings[i]
	}
	return out, nil
}
