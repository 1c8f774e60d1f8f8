package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
)

type gormPreviewRepository struct {
	db *gorm.DB
}

func NewPreviewRepository(db *gorm.DB) PreviewRepository {
	return &gormPreviewRepository{db: db}
}

func (r *gormPreviewRepository) Upsert(ctx context.Context, preview *domain.Preview) error {
	model := PreviewDomainToModel(preview)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}},
		UpdateAll: true,
	}).Create(model).Error
}

func (r *gormPreviewRepository) GetByRoom(ctx context.Context, roomID domain.RoomID) (*domain.Preview, error) {
	var model RoomPreviewModel
	if err := r.db.WithContext(ctx).First(&model, "room_id = ?", roomID.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return PreviewModelToDomain(&model), nil
}

func (r *gormPreviewRepository) Delete(ctx context.Context, roomID domain.RoomID) error {
	return r.db.WithContext(ctx).
		Where("room_id = ?", roomID.String()).
		Delete(&RoomPreviewModel{}).Error
}
