package model

import "time"

type ChatMessage struct {
	ID          string    `gorm:"size:64;primaryKey"`
	MeetingID   string    `gorm:"size:64;index;not null"`
	UserID      *int64    `gorm:"index"`
	GuestUserID *string   `gorm:"size:255"`
	UserName    string    `gorm:"size:100"`
	Content     string    `gorm:"type:text;not null"`
	Timestamp   time.Time `gorm:"index;not null"`
	CreatedAt   time.Time
}

type Meeting struct {
	ID        string `gorm:"size:64;primaryKey"`
	Title     string `gorm:"size:255;not null"`
	OwnerID   int64  `gorm:"index"`
	StartsAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID        int64   `gorm:"primaryKey"`
	Name      string  `gorm:"size:255;not null"`
	Email     *string `gorm:"size:255;uniqueIndex:idx_users_email,where:email IS NOT NULL"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
