// Package mirror is the secondary relational store. Rows mirror the
// primary store on a best-effort basis: callers log write failures and
// move on, the mirror is never read back and never blocks an operation.
package mirror

import (
	"fmt"
	"time"

	"neonchat/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type UserRow struct {
	UID       string `gorm:"primaryKey;column:uid"`
	Name      string
	Email     string
	Phone     string
	Avatar    string
	Blocked   bool
	CreatedAt time.Time
}

func (UserRow) TableName() string { return "users" }

type MessageRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ChatID    string `gorm:"column:chat_id;index"`
	SenderID  string `gorm:"column:sender_id"`
	Text      string
	CreatedAt time.Time
}

func (MessageRow) TableName() string { return "messages" }

type PrivateChatRow struct {
	Code       string `gorm:"primaryKey"`
	CreatedBy  string `gorm:"column:created_by"`
	MaxMembers int    `gorm:"column:max_members"`
	CreatedAt  time.Time
}

func (PrivateChatRow) TableName() string { return "private_chats" }

type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror db: %w", err)
	}

	if err := db.AutoMigrate(&UserRow{}, &MessageRow{}, &PrivateChatRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate mirror schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) SaveUser(u models.User) error {
	row := UserRow{
		UID:       u.UID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Avatar:    u.Avatar,
		Blocked:   u.Blocked,
		CreatedAt: time.UnixMilli(u.CreatedAt),
	}
	return s.db.Save(&row).Error
}

func (s *Store) SetUserBlocked(uid string, blocked bool) error {
	return s.db.Model(&UserRow{}).Where("uid = ?", uid).Update("blocked", blocked).Error
}

func (s *Store) DeleteUser(uid string) error {
	return s.db.Delete(&UserRow{}, "uid = ?", uid).Error
}

func (s *Store) SaveMessage(chatID string, m models.Message) error {
	row := MessageRow{
		ChatID:    chatID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		CreatedAt: time.UnixMilli(m.Timestamp),
	}
	return s.db.Create(&row).Error
}

func (s *Store) SaveRoom(r models.Room) error {
	row := PrivateChatRow{
		Code:       r.Code,
		CreatedBy:  r.CreatedBy,
		MaxMembers: r.MaxMembers,
		CreatedAt:  time.UnixMilli(r.CreatedAt),
	}
	return s.db.Save(&row).Error
}

func (s *Store) DeleteRoom(code string) error {
	return s.db.Delete(&PrivateChatRow{}, "code = ?", code).Error
}
