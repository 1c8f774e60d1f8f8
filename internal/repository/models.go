package repository

import (
	"time"

	"github.com/clippy-oss/homie/chat-sync/internal/domain"
)

type CachedMessageModel struct {
	RoomID        string    `gorm:"primaryKey;column:room_id"`
	Key           string    `gorm:"primaryKey;column:msg_key"`
	MessageID     string    `gorm:"column:message_id;index"`
	SenderID      string    `gorm:"column:sender_id"`
	SenderPhone   string    `gorm:"column:sender_phone"`
	SenderName    string    `gorm:"column:sender_name"`
	ReceiverID    string    `gorm:"column:receiver_id"`
	ReceiverPhone string    `gorm:"column:receiver_phone"`
	Type          string    `gorm:"column:type"`
	Text          string    `gorm:"column:text"`
	URL           string    `gorm:"column:url"`
	Delivered     bool      `gorm:"column:is_delivered"`
	Read          bool      `gorm:"column:is_read"`
	Timestamp     time.Time `gorm:"column:timestamp"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (CachedMessageModel) TableName() string { return "cached_messages" }

type RoomPreviewModel struct {
	RoomID     string    `gorm:"primaryKey;column:room_id"`
	Key        string    `gorm:"column:msg_key"`
	SenderID   string    `gorm:"column:sender_id"`
	SenderName string    `gorm:"column:sender_name"`
	Type       string    `gorm:"column:type"`
	Text       string    `gorm:"column:text"`
	Timestamp  time.Time `gorm:"column:timestamp;index"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (RoomPreviewModel) TableName() string { return "room_previews" }

// AllModels lists every table the cache owns, for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{&CachedMessageModel{}, &RoomPreviewModel{}}
}

func CachedMessageToDomain(m *CachedMessageModel) *domain.Message {
	if m == nil {
		return nil
	}
	return &domain.Message{
		Key:           m.Key,
		MessageID:     m.MessageID,
		SenderID:      m.SenderID,
		SenderPhone:   m.SenderPhone,
		SenderName:    m.SenderName,
		ReceiverID:    m.ReceiverID,
		ReceiverPhone: m.ReceiverPhone,
		Type:          domain.MessageType(m.Type),
		Text:          m.Text,
		URL:           m.URL,
		Delivered:     m.Delivered,
		Read:          m.Read,
		Timestamp:     m.Timestamp,
	}
}

func MessageDomainToCached(roomID domain.RoomID, msg *domain.Message) *CachedMessageModel {
	if msg == nil {
		return nil
	}
	return &CachedMessageModel{
		RoomID:        roomID.String(),
		Key:           msg.Key,
		MessageID:     msg.MessageID,
		SenderID:      msg.SenderID,
		SenderPhone:   msg.SenderPhone,
		SenderName:    msg.SenderName,
		ReceiverID:    msg.ReceiverID,
		ReceiverPhone: msg.ReceiverPhone,
		Type:          string(msg.Type),
		Text:          msg.Text,
		URL:           msg.URL,
		Delivered:     msg.Delivered,
		Read:          msg.Read,
		Timestamp:     msg.Timestamp,
	}
}

func PreviewModelToDomain(m *RoomPreviewModel) *domain.Preview {
	if m == nil {
		return nil
	}
	return &domain.Preview{
		RoomID:     domain.RoomID(m.RoomID),
		Key:        m.Key,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Type:       domain.MessageType(m.Type),
		Text:       m.Text,
		Timestamp:  m.Timestamp,
	}
}

func PreviewDomainToModel(p *domain.Preview) *RoomPreviewModel {
	if p == nil {
		return nil
	}
	return &RoomPreviewModel{
		RoomID:     p.RoomID.String(),
		Key:        p.Key,
		SenderID:   p.SenderID,
		SenderName: p.SenderName,
		Type:       string(p.Type),
		Text:       p.Text,
		Timestamp:  p.Timestamp,
	}
}
