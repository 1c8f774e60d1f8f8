package repository

import (
	"context"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
)

const insertBatchSize = 100

type gormMessageCacheRepository struct {
	db *gorm.DB
}

func NewMessageCacheRepository(db *gorm.DB) MessageCacheRepository {
	return &gormMessageCacheRepository{db: db}
}

func (r *gormMessageCacheRepository) ReplaceRoom(ctx context.Context, roomID domain.RoomID, msgs []*domain.Message, retention int) error {
	kept := make([]*domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m != nil && m.Key != "" {
			kept = append(kept, m)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Key < kept[j].Key })
	if retention > 0 && len(kept) > retention {
		kept = kept[len(kept)-retention:]
	}

	models := make([]*CachedMessageModel, len(kept))
	for i, m := range kept {
		models[i] = MessageDomainToCached(roomID, m)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID.String()).Delete(&CachedMessageModel{}).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(models, insertBatchSize).Error
	})
}

func (r *gormMessageCacheRepository) GetByRoom(ctx context.Context, roomID domain.RoomID) ([]*domain.Message, error) {
	var models []CachedMessageModel
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID.String()).
		Order("msg_key ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	messages := make([]*domain.Message, len(models))
	for i := range models {
		messages[i] = CachedMessageToDomain(&models[i])
	}
	return messages, nil
}

func (r *gormMessageCacheRepository) CountByRoom(ctx context.Context, roomID domain.RoomID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&CachedMessageModel{}).
		Where("room_id = ?", roomID.String()).
		Count(&count).Error
	return count, err
}
