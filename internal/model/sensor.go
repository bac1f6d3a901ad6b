package model

import "time"

// Sensor holds the dashboard state of one canonical sensor (hot table).
type Sensor struct {
	Key         string    `gorm:"primaryKey;size:64"`
	DisplayName string    `gorm:"size:128;not null"`
	Unit        string    `gorm:"size:32"`
	LastValue   string    `gorm:"size:64"`
	LastStatus  string    `gorm:"size:16;not null"`
	ObservedAt  *int64    // epoch ms of LastValue
	UpdatedAt   time.Time `gorm:"not null"`
}
